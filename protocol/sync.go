package protocol

import (
	"errors"
	"log/slog"

	"github.com/awerar/allysync/crypto"
)

// StepResult summarizes one per-tick invocation of the orchestrator.
type StepResult int

const (
	// StepIdle means no interval timer has elapsed; the tick was skipped
	// entirely.
	StepIdle StepResult = iota

	// StepPending means the step is waiting: on a subscription settle, the
	// key record load, or a key delivery. Retried next eligible tick.
	StepPending

	// StepSkipped means a poll settled but could not be applied; prior
	// state is retained and the poll retries on a later tick.
	StepSkipped

	// StepSynced means the roster or a peer's data advanced this tick.
	StepSynced
)

// String returns the result name used in logs and metrics labels.
func (r StepResult) String() string {
	switch r {
	case StepIdle:
		return "idle"
	case StepPending:
		return "pending"
	case StepSkipped:
		return "skipped"
	case StepSynced:
		return "synced"
	}
	return "unknown"
}

// Syncer is the top-level per-tick synchronization state machine for an
// alliance member. It is not safe for concurrent use; the external
// scheduler calls Step once per tick and every call runs to completion.
type Syncer struct {
	cfg     *SyncConfig
	log     *slog.Logger
	channel *SegmentChannel
	keys    *KeyManager
	clock   Clock
	states  StateStore

	stateLoaded bool
	stateDirty  bool
	state       SyncState

	roster   Roster
	eligible []string
	peerData map[string]*PeerPayload
	outgoing *PeerPayload
}

// NewSyncer wires a member orchestrator over the host surfaces. The
// config is normalized in place; the ledger is wrapped with the
// once-per-tick send throttle.
func NewSyncer(cfg *SyncConfig, log *slog.Logger, segments SegmentStore, ledger TransferLedger, clock Clock, states StateStore) *Syncer {
	cfg.Normalize()

	channel := NewSegmentChannel(segments, cfg)
	keys := NewKeyManager(cfg, log, channel, NewThrottledLedger(ledger, clock))

	s := &Syncer{
		cfg:      cfg,
		log:      log,
		channel:  channel,
		keys:     keys,
		clock:    clock,
		states:   states,
		roster:   Roster{},
		peerData: make(map[string]*PeerPayload),
	}

	// A key installed at the expiry boundary re-publishes our data under it.
	keys.OnKeyChanged(func(key *crypto.SharedKey) {
		s.publishWith(key)
	})
	return s
}

// KeyManager exposes the key lifecycle manager, e.g. for rotation hooks.
func (s *Syncer) KeyManager() *KeyManager {
	return s.keys
}

// Roster returns the cached roster.
func (s *Syncer) Roster() Roster {
	return s.roster
}

// EligiblePeers returns the current round-robin peer list.
func (s *Syncer) EligiblePeers() []string {
	return s.eligible
}

// PeerData returns the last decoded, permission-filtered payload cached
// for a peer.
func (s *Syncer) PeerData(peer string) (*PeerPayload, bool) {
	p, ok := s.peerData[peer]
	return p, ok
}

// SetOutgoing replaces the record published on the data segment. It does
// not publish by itself; call Publish.
func (s *Syncer) SetOutgoing(p *PeerPayload) {
	s.outgoing = p
}

// Step runs one tick of the synchronization state machine: key state
// reconciliation, then the leader-roster poll, then the per-peer round
// robin, each gated by its interval timer. The leader check always
// precedes the round robin, and a non-pending roster result is required
// before the round robin runs on a roster tick.
func (s *Syncer) Step() StepResult {
	tick := s.clock.CurrentTick()
	s.loadState()
	s.channel.DeclareActive()

	if tick < s.state.NextLeaderSync && tick < s.state.NextPeerSync {
		return StepIdle
	}

	if !s.keys.Load() {
		return s.finish(StepPending)
	}

	if s.keys.ApplyExpiry(tick) {
		// Never act on a key that changed mid-tick.
		return s.finish(StepPending)
	}

	key, usingNew := s.keys.PollKey()
	if key == nil || s.keys.NeedsKey(tick) {
		s.keys.ScanDeliveries(tick)
		if s.keys.NeedsKey(tick) {
			s.keys.RequestKey(tick)
		}
		return s.finish(StepPending)
	}

	leaderRan := false
	result := StepSynced
	if tick >= s.state.NextLeaderSync {
		leaderRan = true
		result = s.syncLeader(tick, key, usingNew)
		if result == StepPending {
			return s.finish(StepPending)
		}
	}

	if tick >= s.state.NextPeerSync {
		peerResult := s.syncPeer(tick, key, usingNew)
		if !leaderRan {
			result = peerResult
		}
	}

	return s.finish(result)
}

// Publish seals the outgoing record to the public data segment. The call
// is omitted entirely while no usable key is held; a record with no
// populated fields writes an empty marker instead of sealed bytes.
func (s *Syncer) Publish() {
	key, _ := s.keys.PollKey()
	if key == nil {
		return
	}
	s.publishWith(key)
}

func (s *Syncer) publishWith(key *crypto.SharedKey) {
	s.channel.DeclarePublic()

	if !s.outgoing.HasContent() {
		s.channel.WriteOwn(s.cfg.DataSegmentID, nil)
		return
	}

	data, err := SerializeMessage(s.outgoing)
	if err != nil {
		s.log.Error("serialize outgoing payload", "err", err)
		return
	}
	s.channel.WriteOwnSealed(s.cfg.DataSegmentID, key, string(data))
	s.log.Debug("published data segment", "bytes", len(data))
}

// syncLeader polls the leader's roster segment and classifies the result.
func (s *Syncer) syncLeader(tick uint64, key *crypto.SharedKey, usingNew bool) StepResult {
	s.channel.Subscribe(s.cfg.LeaderName, s.cfg.DataSegmentID)
	out := s.channel.Poll()

	switch out.Status {
	case StatusPending:
		return StepPending

	case StatusMalformed:
		s.log.Warn("leader roster malformed, keeping previous roster")
		return StepSkipped

	case StatusEmpty:
		s.applyRoster(&RosterPayload{}, tick)
		return StepSynced
	}

	text, err := crypto.Open(key, out.Words)
	if err != nil {
		if !errors.Is(err, crypto.ErrDecryptFailed) {
			s.log.Warn("leader roster malformed, keeping previous roster", "err", err)
			return StepSkipped
		}
		if usingNew {
			// The leader may still seal under the old key until the
			// boundary; wait it out rather than flapping between keys.
			s.log.Warn("roster unreadable under replacement key, update skipped")
			return StepSkipped
		}
		s.log.Warn("roster unreadable, assuming stale key")
		s.keys.ClearActiveKey()
		return StepPending
	}

	payload, err := UnmarshalMessage[RosterPayload]([]byte(text))
	if err != nil {
		s.log.Warn("leader roster undecodable", "err", err)
		return StepSkipped
	}

	s.applyRoster(payload, tick)
	return StepSynced
}

// applyRoster replaces the cached roster, recomputes round-robin
// eligibility, drops cache entries whose rank lost publish permission, and
// advances the leader interval timer.
func (s *Syncer) applyRoster(p *RosterPayload, tick uint64) {
	s.keys.UpdateRotationMeta(p.Expire, p.LeaderRoom)

	s.roster = p.Ranks
	if s.roster == nil {
		s.roster = Roster{}
	}
	s.eligible = s.roster.EligiblePeers(s.cfg.Self)
	for peer := range s.peerData {
		if !s.roster[peer].CanPublish() {
			delete(s.peerData, peer)
		}
	}

	s.state.PeerCursor = 0
	s.state.NextLeaderSync = tick + s.cfg.LeaderSyncInterval
	s.stateDirty = true
	s.log.Info("roster updated", "tick", tick, "eligible", len(s.eligible))
}

// syncPeer polls one eligible peer's data segment. The cursor and the peer
// interval timer advance only on a definite (non-pending) result.
func (s *Syncer) syncPeer(tick uint64, key *crypto.SharedKey, usingNew bool) StepResult {
	if len(s.eligible) == 0 {
		s.state.NextPeerSync = tick + s.cfg.PeerSyncInterval
		s.stateDirty = true
		return StepSynced
	}
	if s.state.PeerCursor >= len(s.eligible) {
		s.state.PeerCursor = 0
	}
	peer := s.eligible[s.state.PeerCursor]

	s.channel.Subscribe(peer, s.cfg.DataSegmentID)
	out := s.channel.Poll()

	switch out.Status {
	case StatusPending:
		return StepPending

	case StatusEmpty:
		delete(s.peerData, peer)

	case StatusMalformed:
		s.log.Warn("peer data malformed, keeping cached value", "peer", peer)

	case StatusValue:
		text, err := crypto.Open(key, out.Words)
		switch {
		case err == nil:
			payload, perr := UnmarshalMessage[PeerPayload]([]byte(text))
			if perr != nil {
				s.log.Warn("peer payload undecodable, keeping cached value", "peer", peer, "err", perr)
			} else {
				s.peerData[peer] = FilterPayload(payload, s.roster[peer])
			}
		case errors.Is(err, crypto.ErrDecryptFailed) && !usingNew:
			s.log.Warn("peer data unreadable, assuming stale key", "peer", peer)
			s.keys.ClearActiveKey()
			return StepPending
		default:
			s.log.Warn("peer data unreadable, update skipped", "peer", peer, "err", err)
		}
	}

	s.state.PeerCursor = (s.state.PeerCursor + 1) % len(s.eligible)
	s.state.NextPeerSync = tick + s.cfg.PeerSyncInterval
	s.stateDirty = true
	return StepSynced
}

func (s *Syncer) loadState() {
	if s.stateLoaded {
		return
	}
	if st, ok := s.states.LoadSyncState(); ok {
		s.state = st
	}
	s.stateLoaded = true
}

// finish writes durable state back at the end of a mutating step.
func (s *Syncer) finish(result StepResult) StepResult {
	if s.stateDirty {
		s.states.SaveSyncState(s.state)
		s.stateDirty = false
	}
	return result
}
