package services

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/awerar/allysync/protocol"
)

var (
	// ErrUnknownAgent reports an operation against an unregistered agent.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrAgentExists reports a registration conflict.
	ErrAgentExists = errors.New("agent already registered with a different address")
)

// inboundHistoryLimit bounds the per-agent transfer history. The protocol
// only ever inspects a bounded recent prefix.
const inboundHistoryLimit = 100

type subscription struct {
	owner   string
	id      uint8
	settled bool
	data    []byte
}

type substrateAgent struct {
	name    string
	address string

	segments map[uint8][]byte
	public   map[uint8]bool
	declared map[uint8]bool
	settled  map[uint8]bool

	sub     *subscription
	inbound []protocol.Transfer
	state   *protocol.SyncState
}

type pendingTransfer struct {
	transfer    protocol.Transfer
	destination string
}

// Substrate is the authoritative world the agents run against: per-agent
// segments with the two-phase settle model, a single foreign-subscription
// slot per agent, and transfer routing by address. It is safe for
// concurrent use by the HTTP gateway; writes go through the store so a
// restart resumes from the persisted snapshot.
type Substrate struct {
	log   *slog.Logger
	store SubstrateStore

	mu      sync.RWMutex
	tick    uint64
	agents  map[string]*substrateAgent
	pending []pendingTransfer
}

// NewSubstrate creates a substrate over the given store, restoring the
// persisted snapshot. Everything restored counts as settled: a restart
// behaves like one long tick boundary.
func NewSubstrate(log *slog.Logger, store SubstrateStore) (*Substrate, error) {
	snap, err := store.LoadSnapshot()
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	s := &Substrate{
		log:    log,
		store:  store,
		tick:   snap.Tick,
		agents: make(map[string]*substrateAgent),
	}
	for name, restored := range snap.Agents {
		a := newSubstrateAgent(name, restored.Address)
		for id, data := range restored.Segments {
			a.segments[id] = append([]byte(nil), data...)
			a.settled[id] = true
		}
		a.state = restored.State
		s.agents[name] = a
	}
	if len(s.agents) > 0 || s.tick > 0 {
		log.Info("substrate restored", "tick", s.tick, "agents", len(s.agents))
	}
	return s, nil
}

func newSubstrateAgent(name, address string) *substrateAgent {
	return &substrateAgent{
		name:     name,
		address:  address,
		segments: make(map[uint8][]byte),
		public:   make(map[uint8]bool),
		declared: make(map[uint8]bool),
		settled:  make(map[uint8]bool),
	}
}

// Tick returns the current world tick.
func (s *Substrate) Tick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tick
}

// Agents returns the registered agent names.
func (s *Substrate) Agents() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.agents))
	for name := range s.agents {
		names = append(names, name)
	}
	return names
}

// RegisterAgent adds an agent with its transfer address. Re-registering
// with the same address is a no-op, so agents can register on every start.
func (s *Substrate) RegisterAgent(name, address string) error {
	if name == "" || address == "" {
		return errors.New("agent name and address must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.agents[name]; ok {
		if existing.address != address {
			return ErrAgentExists
		}
		return nil
	}
	s.agents[name] = newSubstrateAgent(name, address)
	s.persist(s.store.SaveAgent(name, address))
	s.log.Info("agent registered", "agent", name, "address", address)
	return nil
}

// AdvanceTick moves the world one tick forward: in-flight transfers are
// delivered, declared local reads settle, and active subscriptions settle
// against the owners' current public segments. Returns the new tick.
func (s *Substrate) AdvanceTick() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tick++

	for _, p := range s.pending {
		p.transfer.Tick = s.tick
		for _, a := range s.agents {
			if a.address == p.destination {
				a.inbound = append([]protocol.Transfer{p.transfer}, a.inbound...)
				if len(a.inbound) > inboundHistoryLimit {
					a.inbound = a.inbound[:inboundHistoryLimit]
				}
			}
		}
	}
	s.pending = nil

	for _, a := range s.agents {
		for id := range a.declared {
			a.settled[id] = true
		}
		if a.sub != nil {
			a.sub.settled = true
			a.sub.data = nil
			if owner, ok := s.agents[a.sub.owner]; ok && owner.public[a.sub.id] {
				if data, ok := owner.segments[a.sub.id]; ok {
					a.sub.data = append([]byte(nil), data...)
				}
			}
		}
	}

	s.persist(s.store.SaveTick(s.tick))
	return s.tick
}

// WriteSegment replaces one of the agent's own segments.
func (s *Substrate) WriteSegment(agent string, id uint8, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agent]
	if !ok {
		return ErrUnknownAgent
	}
	a.segments[id] = append([]byte(nil), data...)
	a.settled[id] = true
	s.persist(s.store.SaveSegment(agent, id, data))
	return nil
}

// ReadSegment reads one of the agent's own segments; ok is false until the
// segment has settled after an active declaration.
func (s *Substrate) ReadSegment(agent string, id uint8) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agent]
	if !ok {
		return nil, false, ErrUnknownAgent
	}
	if !a.settled[id] {
		return nil, false, nil
	}
	return append([]byte(nil), a.segments[id]...), true, nil
}

// Subscribe points the agent's single foreign-subscription slot at an
// owner's segment. A new target displaces the previous one and restarts
// the settle cycle; re-subscribing the current target is a no-op.
func (s *Substrate) Subscribe(agent, owner string, id uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agent]
	if !ok {
		return ErrUnknownAgent
	}
	if a.sub != nil && a.sub.owner == owner && a.sub.id == id {
		return nil
	}
	a.sub = &subscription{owner: owner, id: id}
	return nil
}

// SubscriptionResult returns the settled foreign segment, or nil while the
// active subscription has not settled.
func (s *Substrate) SubscriptionResult(agent string) (*protocol.ForeignSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agent]
	if !ok {
		return nil, ErrUnknownAgent
	}
	if a.sub == nil || !a.sub.settled {
		return nil, nil
	}
	return &protocol.ForeignSegment{
		Owner: a.sub.owner,
		ID:    a.sub.id,
		Data:  append([]byte(nil), a.sub.data...),
	}, nil
}

// SetPublic replaces the agent's set of publicly readable segments.
func (s *Substrate) SetPublic(agent string, ids []uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agent]
	if !ok {
		return ErrUnknownAgent
	}
	a.public = make(map[uint8]bool, len(ids))
	for _, id := range ids {
		a.public[id] = true
	}
	return nil
}

// SetActive requests the agent's own segments for the next read window.
func (s *Substrate) SetActive(agent string, ids []uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agent]
	if !ok {
		return ErrUnknownAgent
	}
	for _, id := range ids {
		a.declared[id] = true
	}
	return nil
}

// SendTransfer queues a resource transfer for delivery on the next tick.
func (s *Substrate) SendTransfer(from, resource string, amount uint32, destination, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[from]
	if !ok {
		return ErrUnknownAgent
	}
	s.pending = append(s.pending, pendingTransfer{
		transfer: protocol.Transfer{
			Sender:      a.name,
			Resource:    resource,
			Amount:      amount,
			Description: description,
		},
		destination: destination,
	})
	return nil
}

// InboundTransfers returns the agent's received transfers, most recent
// first.
func (s *Substrate) InboundTransfers(agent string) ([]protocol.Transfer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agent]
	if !ok {
		return nil, ErrUnknownAgent
	}
	return append([]protocol.Transfer(nil), a.inbound...), nil
}

// AgentState returns the agent's persisted scheduler state.
func (s *Substrate) AgentState(agent string) (protocol.SyncState, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.agents[agent]
	if !ok {
		return protocol.SyncState{}, false, ErrUnknownAgent
	}
	if a.state == nil {
		return protocol.SyncState{}, false, nil
	}
	return *a.state, true, nil
}

// SaveAgentState replaces the agent's persisted scheduler state.
func (s *Substrate) SaveAgentState(agent string, state protocol.SyncState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.agents[agent]
	if !ok {
		return ErrUnknownAgent
	}
	st := state
	a.state = &st
	s.persist(s.store.SaveAgentState(agent, state))
	return nil
}

// persist logs a store failure without failing the in-memory operation;
// the substrate stays authoritative and the next write retries.
func (s *Substrate) persist(err error) {
	if err != nil {
		s.log.Error("substrate persistence failed", "err", err)
	}
}
