package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/awerar/allysync/metrics"
)

// Gateway exposes a Substrate over HTTP so agents can run out of process.
// Public routes cover the per-agent host surface; the tick advance is an
// admin operation, normally driven by the gateway's own ticker.
type Gateway struct {
	log        *slog.Logger
	substrate  *Substrate
	adminToken string
}

// NewGateway creates a gateway over the substrate. adminToken, when set,
// protects the admin routes with basic auth (user:pass).
func NewGateway(log *slog.Logger, substrate *Substrate, adminToken string) *Gateway {
	return &Gateway{log: log, substrate: substrate, adminToken: adminToken}
}

// RegisterRoutes registers the public agent-facing routes.
func (g *Gateway) RegisterRoutes(r chi.Router) {
	r.Post("/substrate/agents", g.handleRegisterAgent)
	r.Get("/substrate/tick", g.handleTick)

	r.Route("/substrate/agents/{name}", func(r chi.Router) {
		r.Post("/segments/{id}", g.handleWriteSegment)
		r.Get("/segments/{id}", g.handleReadSegment)
		r.Put("/subscription", g.handleSubscribe)
		r.Get("/subscription", g.handleSubscriptionResult)
		r.Post("/public", g.handleSetPublic)
		r.Post("/active", g.handleSetActive)
		r.Post("/transfers", g.handleSendTransfer)
		r.Get("/transfers", g.handleInboundTransfers)
		r.Put("/state", g.handleSaveState)
		r.Get("/state", g.handleLoadState)
	})
}

// RegisterAdminRoutes registers the tick-advance route, behind basic auth
// when an admin token is configured.
func (g *Gateway) RegisterAdminRoutes(r chi.Router) {
	register := func(r chi.Router) {
		r.Post("/substrate/tick/advance", g.handleAdvanceTick)
	}
	if g.adminToken == "" {
		register(r)
		return
	}
	user, pass, _ := strings.Cut(g.adminToken, ":")
	r.Group(func(r chi.Router) {
		r.Use(middleware.BasicAuth("substrate", map[string]string{user: pass}))
		register(r)
	})
}

// StartTicker advances the world tick at a fixed interval until the
// context is canceled.
func (g *Gateway) StartTicker(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				tick := g.substrate.AdvanceTick()
				metrics.IncTickAdvance()
				g.log.Debug("tick advanced", "tick", tick)
			}
		}
	}()
}

func (g *Gateway) handleRegisterAgent(w http.ResponseWriter, req *http.Request) {
	var body RegisterAgentRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.substrate.RegisterAgent(body.Name, body.Address); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, ErrAgentExists) {
			status = http.StatusConflict
		}
		http.Error(w, err.Error(), status)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (g *Gateway) handleTick(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, &TickResponse{Tick: g.substrate.Tick()})
}

func (g *Gateway) handleAdvanceTick(w http.ResponseWriter, _ *http.Request) {
	tick := g.substrate.AdvanceTick()
	metrics.IncTickAdvance()
	writeJSON(w, &TickResponse{Tick: tick})
}

func (g *Gateway) handleWriteSegment(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	id, ok := segmentID(w, req)
	if !ok {
		return
	}
	var body WriteSegmentRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.substrate.WriteSegment(name, id, body.Data); err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (g *Gateway) handleReadSegment(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	id, ok := segmentID(w, req)
	if !ok {
		return
	}
	data, settled, err := g.substrate.ReadSegment(name, id)
	if err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &SegmentResponse{Settled: settled, Data: data})
}

func (g *Gateway) handleSubscribe(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	var body SubscribeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.substrate.Subscribe(name, body.Owner, body.ID); err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (g *Gateway) handleSubscriptionResult(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	res, err := g.substrate.SubscriptionResult(name)
	if err != nil {
		agentError(w, err)
		return
	}
	if res == nil {
		writeJSON(w, &SubscriptionResponse{Settled: false})
		return
	}
	writeJSON(w, &SubscriptionResponse{Settled: true, Owner: res.Owner, ID: res.ID, Data: res.Data})
}

func (g *Gateway) handleSetPublic(w http.ResponseWriter, req *http.Request) {
	g.handleDeclare(w, req, g.substrate.SetPublic)
}

func (g *Gateway) handleSetActive(w http.ResponseWriter, req *http.Request) {
	g.handleDeclare(w, req, g.substrate.SetActive)
}

func (g *Gateway) handleDeclare(w http.ResponseWriter, req *http.Request, apply func(string, []uint8) error) {
	name := chi.URLParam(req, "name")
	var body DeclareRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := apply(name, body.IDs); err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (g *Gateway) handleSendTransfer(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	var body TransferRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.substrate.SendTransfer(name, body.Resource, body.Amount, body.Destination, body.Description); err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (g *Gateway) handleInboundTransfers(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	transfers, err := g.substrate.InboundTransfers(name)
	if err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &TransfersResponse{Transfers: transfers})
}

func (g *Gateway) handleSaveState(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	var body StateResponse
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := g.substrate.SaveAgentState(name, body.State); err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &StatusResponse{Success: true})
}

func (g *Gateway) handleLoadState(w http.ResponseWriter, req *http.Request) {
	name := chi.URLParam(req, "name")
	state, found, err := g.substrate.AgentState(name)
	if err != nil {
		agentError(w, err)
		return
	}
	writeJSON(w, &StateResponse{Found: found, State: state})
}

func segmentID(w http.ResponseWriter, req *http.Request) (uint8, bool) {
	id, err := strconv.ParseUint(chi.URLParam(req, "id"), 10, 8)
	if err != nil {
		http.Error(w, "invalid segment id", http.StatusBadRequest)
		return 0, false
	}
	return uint8(id), true
}

func agentError(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownAgent) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
