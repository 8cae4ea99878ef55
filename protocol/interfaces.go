package protocol

// ForeignSegment is the settled result of a foreign segment subscription.
type ForeignSegment struct {
	Owner string
	ID    uint8
	Data  []byte
}

// SegmentStore is the host engine's blob-storage surface. Own segments
// write synchronously; foreign segments follow the two-phase subscribe and
// read model and generally settle one tick after the subscription.
type SegmentStore interface {
	// SubscribeForeignSegment declares interest in another agent's public
	// segment. The host keeps a single foreign subscription slot; a new
	// call displaces the previous target and discards its in-flight result.
	SubscribeForeignSegment(owner string, id uint8)

	// ForeignSegmentResult returns the settled foreign segment, or nil if
	// the active subscription has not settled since it was (re)issued. The
	// result is only meaningful when owner and id match the most recent
	// subscription.
	ForeignSegmentResult() *ForeignSegment

	// WriteLocalSegment synchronously replaces one of the agent's own
	// segments. No failure is observable by the caller.
	WriteLocalSegment(id uint8, data []byte)

	// LocalSegment returns an own segment's contents once the host has made
	// it readable; ok is false until the segment settles for the first
	// time. A segment that was never written settles with nil data.
	LocalSegment(id uint8) (data []byte, ok bool)

	// DeclarePublicSegments marks which own segments other agents may
	// subscribe to.
	DeclarePublicSegments(ids []uint8)

	// DeclareActiveSegments requests which own segments should be readable
	// in the next read window.
	DeclareActiveSegments(ids []uint8)
}

// Clock exposes the scheduler's tick counter: monotonically non-decreasing,
// advanced externally once per scheduling quantum.
type Clock interface {
	CurrentTick() uint64
}

// Transfer is one entry of the inbound resource-transfer ledger.
type Transfer struct {
	Sender      string `json:"sender"`
	Resource    string `json:"resource"`
	Amount      uint32 `json:"amount"`
	Description string `json:"description"`
	Tick        uint64 `json:"tick"`
}

// TransferLedger is the host's resource-transfer surface, doubling as the
// out-of-band key delivery channel.
type TransferLedger interface {
	// RecentInboundTransfers returns received transfers most-recent-first.
	// The history may be unbounded; callers inspect a bounded prefix.
	RecentInboundTransfers() []Transfer

	// SendTransfer sends resources to an address from any owned structure
	// with available capacity and no cooldown. An error means the send
	// could not be attempted this tick; callers defer, they never fail.
	SendTransfer(resource string, amount uint32, destination string, description string) error
}

// SyncState is the orchestrator's durable scalar state: the two interval
// timers and the round-robin cursor.
type SyncState struct {
	NextLeaderSync uint64 `json:"nextLeaderSync"`
	NextPeerSync   uint64 `json:"nextPeerSync"`
	PeerCursor     int    `json:"peerCursor"`
}

// StateStore persists SyncState across agent restarts.
type StateStore interface {
	LoadSyncState() (SyncState, bool)
	SaveSyncState(SyncState)
}
