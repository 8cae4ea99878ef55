package services

import (
	"log/slog"

	"github.com/awerar/allysync/protocol"
)

// LocalHost is one agent's view of an in-process Substrate. It implements
// the protocol collaborator interfaces directly, without HTTP, for the
// demo and for end-to-end tests. Substrate errors surface as the pending
// or empty cases the protocol already tolerates, and are logged.
type LocalHost struct {
	log  *slog.Logger
	sub  *Substrate
	name string
}

var (
	_ protocol.SegmentStore   = (*LocalHost)(nil)
	_ protocol.Clock          = (*LocalHost)(nil)
	_ protocol.TransferLedger = (*LocalHost)(nil)
	_ protocol.StateStore     = (*LocalHost)(nil)
)

// NewLocalHost registers the agent on the substrate and returns its host
// view.
func NewLocalHost(log *slog.Logger, sub *Substrate, name, address string) (*LocalHost, error) {
	if err := sub.RegisterAgent(name, address); err != nil {
		return nil, err
	}
	return &LocalHost{log: log, sub: sub, name: name}, nil
}

// CurrentTick implements protocol.Clock.
func (h *LocalHost) CurrentTick() uint64 {
	return h.sub.Tick()
}

// RefreshTick implements the runner's tick source.
func (h *LocalHost) RefreshTick() (uint64, error) {
	return h.sub.Tick(), nil
}

// SubscribeForeignSegment implements protocol.SegmentStore.
func (h *LocalHost) SubscribeForeignSegment(owner string, id uint8) {
	if err := h.sub.Subscribe(h.name, owner, id); err != nil {
		h.log.Error("subscribe failed", "agent", h.name, "err", err)
	}
}

// ForeignSegmentResult implements protocol.SegmentStore.
func (h *LocalHost) ForeignSegmentResult() *protocol.ForeignSegment {
	res, err := h.sub.SubscriptionResult(h.name)
	if err != nil {
		h.log.Error("subscription result failed", "agent", h.name, "err", err)
		return nil
	}
	return res
}

// WriteLocalSegment implements protocol.SegmentStore.
func (h *LocalHost) WriteLocalSegment(id uint8, data []byte) {
	if err := h.sub.WriteSegment(h.name, id, data); err != nil {
		h.log.Error("segment write failed", "agent", h.name, "segment", id, "err", err)
	}
}

// LocalSegment implements protocol.SegmentStore.
func (h *LocalHost) LocalSegment(id uint8) ([]byte, bool) {
	data, ok, err := h.sub.ReadSegment(h.name, id)
	if err != nil {
		h.log.Error("segment read failed", "agent", h.name, "segment", id, "err", err)
		return nil, false
	}
	return data, ok
}

// DeclarePublicSegments implements protocol.SegmentStore.
func (h *LocalHost) DeclarePublicSegments(ids []uint8) {
	if err := h.sub.SetPublic(h.name, ids); err != nil {
		h.log.Error("public declaration failed", "agent", h.name, "err", err)
	}
}

// DeclareActiveSegments implements protocol.SegmentStore.
func (h *LocalHost) DeclareActiveSegments(ids []uint8) {
	if err := h.sub.SetActive(h.name, ids); err != nil {
		h.log.Error("active declaration failed", "agent", h.name, "err", err)
	}
}

// RecentInboundTransfers implements protocol.TransferLedger.
func (h *LocalHost) RecentInboundTransfers() []protocol.Transfer {
	transfers, err := h.sub.InboundTransfers(h.name)
	if err != nil {
		h.log.Error("transfer read failed", "agent", h.name, "err", err)
		return nil
	}
	return transfers
}

// SendTransfer implements protocol.TransferLedger.
func (h *LocalHost) SendTransfer(resource string, amount uint32, destination string, description string) error {
	return h.sub.SendTransfer(h.name, resource, amount, destination, description)
}

// LoadSyncState implements protocol.StateStore.
func (h *LocalHost) LoadSyncState() (protocol.SyncState, bool) {
	state, ok, err := h.sub.AgentState(h.name)
	if err != nil {
		h.log.Error("state load failed", "agent", h.name, "err", err)
		return protocol.SyncState{}, false
	}
	return state, ok
}

// SaveSyncState implements protocol.StateStore.
func (h *LocalHost) SaveSyncState(state protocol.SyncState) {
	if err := h.sub.SaveAgentState(h.name, state); err != nil {
		h.log.Error("state save failed", "agent", h.name, "err", err)
	}
}
