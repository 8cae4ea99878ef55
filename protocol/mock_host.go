package protocol

// MockHost is an in-memory multi-agent world for tests. It models the
// host surfaces the sync core runs against: tick-settled segment reads, a
// single foreign-subscription slot per agent, and transfer routing by
// address. AdvanceTick settles everything issued during the current tick.
type MockHost struct {
	tick   uint64
	agents map[string]*MockAgent

	// in-flight transfers, delivered on the next AdvanceTick
	pending []Transfer
	dests   []string
}

// NewMockHost creates an empty world at tick zero.
func NewMockHost() *MockHost {
	return &MockHost{agents: map[string]*MockAgent{}}
}

// Tick returns the current world tick.
func (h *MockHost) Tick() uint64 {
	return h.tick
}

// Agent registers an agent under a name and a transfer address, returning
// its host-surface view.
func (h *MockHost) Agent(name, address string) *MockAgent {
	a := &MockAgent{
		host:     h,
		name:     name,
		address:  address,
		segments: map[uint8][]byte{},
		public:   map[uint8]bool{},
		declared: map[uint8]bool{},
		settled:  map[uint8]bool{},
	}
	h.agents[name] = a
	return a
}

// AdvanceTick moves the world one tick forward and settles every pending
// subscription, local read declaration, and in-flight transfer.
func (h *MockHost) AdvanceTick() {
	h.tick++

	for i, tr := range h.pending {
		tr.Tick = h.tick
		for _, a := range h.agents {
			if a.address == h.dests[i] {
				a.inbound = append([]Transfer{tr}, a.inbound...)
			}
		}
	}
	h.pending = nil
	h.dests = nil

	for _, a := range h.agents {
		a.settleTick()
	}
}

// MockAgent is one agent's view of the world. It implements SegmentStore,
// Clock, TransferLedger and StateStore.
type MockAgent struct {
	host    *MockHost
	name    string
	address string

	segments map[uint8][]byte
	public   map[uint8]bool

	// local-read declarations settle one tick after they are declared
	declared map[uint8]bool
	settled  map[uint8]bool

	subOwner   string
	subID      uint8
	subActive  bool
	subSettled bool
	foreign    *ForeignSegment

	inbound []Transfer

	state    SyncState
	hasState bool
}

var (
	_ SegmentStore   = (*MockAgent)(nil)
	_ Clock          = (*MockAgent)(nil)
	_ TransferLedger = (*MockAgent)(nil)
	_ StateStore     = (*MockAgent)(nil)
)

func (a *MockAgent) settleTick() {
	for id := range a.declared {
		a.settled[id] = true
	}

	if a.subActive {
		a.subSettled = true
		seg := &ForeignSegment{Owner: a.subOwner, ID: a.subID}
		if owner, ok := a.host.agents[a.subOwner]; ok && owner.public[a.subID] {
			if data, ok := owner.segments[a.subID]; ok {
				seg.Data = append([]byte(nil), data...)
			}
		}
		a.foreign = seg
	}
}

// CurrentTick implements Clock.
func (a *MockAgent) CurrentTick() uint64 {
	return a.host.tick
}

// SubscribeForeignSegment implements SegmentStore. A new target displaces
// the previous subscription and restarts the settle cycle.
func (a *MockAgent) SubscribeForeignSegment(owner string, id uint8) {
	if a.subActive && a.subOwner == owner && a.subID == id {
		return
	}
	a.subOwner = owner
	a.subID = id
	a.subActive = true
	a.subSettled = false
	a.foreign = nil
}

// ForeignSegmentResult implements SegmentStore. It returns nil until the
// subscription has settled.
func (a *MockAgent) ForeignSegmentResult() *ForeignSegment {
	if !a.subSettled {
		return nil
	}
	return a.foreign
}

// WriteLocalSegment implements SegmentStore. Written segments are readable
// by the owner immediately once declared active, and by others when public.
func (a *MockAgent) WriteLocalSegment(id uint8, data []byte) {
	a.segments[id] = append([]byte(nil), data...)
	a.settled[id] = true
}

// LocalSegment implements SegmentStore. Reads settle one tick after the
// segment is declared active; a settled read of an unwritten segment
// returns empty data.
func (a *MockAgent) LocalSegment(id uint8) ([]byte, bool) {
	if !a.settled[id] {
		return nil, false
	}
	return a.segments[id], true
}

// DeclarePublicSegments implements SegmentStore.
func (a *MockAgent) DeclarePublicSegments(ids []uint8) {
	a.public = map[uint8]bool{}
	for _, id := range ids {
		a.public[id] = true
	}
}

// DeclareActiveSegments implements SegmentStore.
func (a *MockAgent) DeclareActiveSegments(ids []uint8) {
	for _, id := range ids {
		a.declared[id] = true
	}
}

// RecentInboundTransfers implements TransferLedger, most recent first.
func (a *MockAgent) RecentInboundTransfers() []Transfer {
	return a.inbound
}

// SendTransfer implements TransferLedger. Delivery happens on the next
// AdvanceTick, stamped with the sender's name and the delivery tick.
func (a *MockAgent) SendTransfer(resource string, amount uint32, destination string, description string) error {
	a.host.pending = append(a.host.pending, Transfer{
		Sender:      a.name,
		Resource:    resource,
		Amount:      amount,
		Description: description,
	})
	a.host.dests = append(a.host.dests, destination)
	return nil
}

// LoadSyncState implements StateStore.
func (a *MockAgent) LoadSyncState() (SyncState, bool) {
	return a.state, a.hasState
}

// SaveSyncState implements StateStore.
func (a *MockAgent) SaveSyncState(state SyncState) {
	a.state = state
	a.hasState = true
}
