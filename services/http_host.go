package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/awerar/allysync/protocol"
)

// HTTPHost is one agent's view of a remote gateway substrate. It
// implements the protocol collaborator interfaces over the gateway's HTTP
// API, so the sync core runs unchanged out of process.
//
// The tick is cached: the runner calls RefreshTick once per poll and the
// synchronous Step sees one consistent tick. Transport failures on the
// void host surfaces are logged and degrade to the pending/empty cases the
// protocol retries anyway.
type HTTPHost struct {
	log    *slog.Logger
	client *http.Client
	base   string
	name   string

	tick uint64
}

var (
	_ protocol.SegmentStore   = (*HTTPHost)(nil)
	_ protocol.Clock          = (*HTTPHost)(nil)
	_ protocol.TransferLedger = (*HTTPHost)(nil)
	_ protocol.StateStore     = (*HTTPHost)(nil)
)

// NewHTTPHost registers the agent with the gateway and fetches the initial
// tick.
func NewHTTPHost(log *slog.Logger, gatewayURL, name, address string) (*HTTPHost, error) {
	h := &HTTPHost{
		log:    log,
		client: &http.Client{Timeout: 10 * time.Second},
		base:   strings.TrimSuffix(gatewayURL, "/"),
		name:   name,
	}

	var status StatusResponse
	err := h.post("/substrate/agents", &RegisterAgentRequest{Name: name, Address: address}, &status)
	if err != nil {
		return nil, fmt.Errorf("registering agent: %w", err)
	}
	if _, err := h.RefreshTick(); err != nil {
		return nil, fmt.Errorf("fetching tick: %w", err)
	}
	return h, nil
}

// RefreshTick fetches the gateway tick and caches it for CurrentTick.
func (h *HTTPHost) RefreshTick() (uint64, error) {
	var res TickResponse
	if err := h.get("/substrate/tick", &res); err != nil {
		return 0, err
	}
	h.tick = res.Tick
	return res.Tick, nil
}

// CurrentTick implements protocol.Clock, returning the last refreshed tick.
func (h *HTTPHost) CurrentTick() uint64 {
	return h.tick
}

// SubscribeForeignSegment implements protocol.SegmentStore.
func (h *HTTPHost) SubscribeForeignSegment(owner string, id uint8) {
	err := h.put(h.agentPath("subscription"), &SubscribeRequest{Owner: owner, ID: id}, nil)
	if err != nil {
		h.log.Error("subscribe failed", "agent", h.name, "err", err)
	}
}

// ForeignSegmentResult implements protocol.SegmentStore.
func (h *HTTPHost) ForeignSegmentResult() *protocol.ForeignSegment {
	var res SubscriptionResponse
	if err := h.get(h.agentPath("subscription"), &res); err != nil {
		h.log.Error("subscription poll failed", "agent", h.name, "err", err)
		return nil
	}
	if !res.Settled {
		return nil
	}
	return &protocol.ForeignSegment{Owner: res.Owner, ID: res.ID, Data: res.Data}
}

// WriteLocalSegment implements protocol.SegmentStore.
func (h *HTTPHost) WriteLocalSegment(id uint8, data []byte) {
	err := h.post(h.agentPath(fmt.Sprintf("segments/%d", id)), &WriteSegmentRequest{Data: data}, nil)
	if err != nil {
		h.log.Error("segment write failed", "agent", h.name, "segment", id, "err", err)
	}
}

// LocalSegment implements protocol.SegmentStore.
func (h *HTTPHost) LocalSegment(id uint8) ([]byte, bool) {
	var res SegmentResponse
	if err := h.get(h.agentPath(fmt.Sprintf("segments/%d", id)), &res); err != nil {
		h.log.Error("segment read failed", "agent", h.name, "segment", id, "err", err)
		return nil, false
	}
	return res.Data, res.Settled
}

// DeclarePublicSegments implements protocol.SegmentStore.
func (h *HTTPHost) DeclarePublicSegments(ids []uint8) {
	if err := h.post(h.agentPath("public"), &DeclareRequest{IDs: ids}, nil); err != nil {
		h.log.Error("public declaration failed", "agent", h.name, "err", err)
	}
}

// DeclareActiveSegments implements protocol.SegmentStore.
func (h *HTTPHost) DeclareActiveSegments(ids []uint8) {
	if err := h.post(h.agentPath("active"), &DeclareRequest{IDs: ids}, nil); err != nil {
		h.log.Error("active declaration failed", "agent", h.name, "err", err)
	}
}

// RecentInboundTransfers implements protocol.TransferLedger.
func (h *HTTPHost) RecentInboundTransfers() []protocol.Transfer {
	var res TransfersResponse
	if err := h.get(h.agentPath("transfers"), &res); err != nil {
		h.log.Error("transfer read failed", "agent", h.name, "err", err)
		return nil
	}
	return res.Transfers
}

// SendTransfer implements protocol.TransferLedger.
func (h *HTTPHost) SendTransfer(resource string, amount uint32, destination string, description string) error {
	return h.post(h.agentPath("transfers"), &TransferRequest{
		Resource:    resource,
		Amount:      amount,
		Destination: destination,
		Description: description,
	}, nil)
}

// LoadSyncState implements protocol.StateStore.
func (h *HTTPHost) LoadSyncState() (protocol.SyncState, bool) {
	var res StateResponse
	if err := h.get(h.agentPath("state"), &res); err != nil {
		h.log.Error("state load failed", "agent", h.name, "err", err)
		return protocol.SyncState{}, false
	}
	return res.State, res.Found
}

// SaveSyncState implements protocol.StateStore.
func (h *HTTPHost) SaveSyncState(state protocol.SyncState) {
	if err := h.put(h.agentPath("state"), &StateResponse{State: state}, nil); err != nil {
		h.log.Error("state save failed", "agent", h.name, "err", err)
	}
}

func (h *HTTPHost) agentPath(suffix string) string {
	return fmt.Sprintf("/substrate/agents/%s/%s", h.name, suffix)
}

func (h *HTTPHost) get(path string, out any) error {
	resp, err := h.client.Get(h.base + path)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func (h *HTTPHost) post(path string, body, out any) error {
	return h.send(http.MethodPost, path, body, out)
}

func (h *HTTPHost) put(path string, body, out any) error {
	return h.send(http.MethodPut, path, body, out)
}

func (h *HTTPHost) send(method, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(method, h.base+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, err := io.Copy(io.Discard, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
