package protocol

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/awerar/allysync/crypto"
)

// LeaderService is the per-tick state machine for the alliance leader. It
// mints and rotates the shared key, answers tagged key requests, pushes
// scheduled replacements to members, and publishes the sealed roster.
// Like Syncer it is single-threaded: one Step call per tick.
type LeaderService struct {
	cfg     *SyncConfig
	log     *slog.Logger
	channel *SegmentChannel
	keys    *KeyManager
	clock   Clock
	ledger  TransferLedger

	roster    Roster
	addresses map[string]string

	rosterDirty bool

	// served tracks the last direct-delivery tick per requester, so a
	// request burst is answered once per scan window.
	served map[string]uint64

	// replacementSent tracks which members already received the scheduled
	// replacement. Reset whenever the replacement changes.
	replacementSent map[string]bool
}

// NewLeaderService wires a leader over the host surfaces. The outbound
// ledger is throttled the same way as on members, so key distribution
// trickles out at one transfer per tick.
func NewLeaderService(cfg *SyncConfig, log *slog.Logger, segments SegmentStore, ledger TransferLedger, clock Clock) *LeaderService {
	cfg.Normalize()

	channel := NewSegmentChannel(segments, cfg)
	throttled := NewThrottledLedger(ledger, clock)
	keys := NewKeyManager(cfg, log, channel, throttled)

	l := &LeaderService{
		cfg:             cfg,
		log:             log,
		channel:         channel,
		keys:            keys,
		clock:           clock,
		ledger:          throttled,
		roster:          Roster{},
		addresses:       map[string]string{},
		served:          map[string]uint64{},
		replacementSent: map[string]bool{},
	}
	keys.OnKeyChanged(func(*crypto.SharedKey) {
		l.rosterDirty = true
	})
	return l
}

// KeyManager exposes the key lifecycle manager.
func (l *LeaderService) KeyManager() *KeyManager {
	return l.keys
}

// SetMembers replaces the roster and the member address book. Addresses
// are where key deliveries for each member are sent.
func (l *LeaderService) SetMembers(roster Roster, addresses map[string]string) {
	l.roster = roster
	if l.roster == nil {
		l.roster = Roster{}
	}
	l.addresses = addresses
	if l.addresses == nil {
		l.addresses = map[string]string{}
	}
	l.rosterDirty = true
}

// Roster returns the current membership.
func (l *LeaderService) Roster() Roster {
	return l.roster
}

// Step runs one leader tick: key maintenance first, then delivery work,
// then the roster publish if anything changed.
func (l *LeaderService) Step() StepResult {
	tick := l.clock.CurrentTick()
	l.channel.DeclareActive()

	if !l.keys.Load() {
		return StepPending
	}

	rec := l.keys.Record()

	if l.keys.ApplyExpiry(tick) {
		l.replacementSent = map[string]bool{}
		if rec.Key != nil {
			// Re-arm the boundary for the key that just became active.
			expire := tick + l.cfg.KeyLifetime
			l.keys.InstallKey(rec.Key, &expire)
		}
	}

	if rec.Key == nil {
		key, err := crypto.NewRandomKey()
		if err != nil {
			l.log.Error("mint shared key", "err", err)
			return StepPending
		}
		expire := tick + l.cfg.KeyLifetime
		l.keys.InstallKey(key, &expire)
		l.rosterDirty = true
		l.log.Info("minted shared key", "tick", tick, "expire", expire)
	}

	if rec.NewKey == nil && rec.Expire != nil && *rec.Expire <= tick+l.cfg.RotationLookahead {
		key, err := crypto.NewRandomKey()
		if err != nil {
			l.log.Error("mint replacement key", "err", err)
		} else {
			l.keys.ScheduleReplacement(key)
			l.replacementSent = map[string]bool{}
			l.log.Info("scheduled replacement key", "tick", tick, "expire", *rec.Expire)
		}
	}

	if rec.NewKey != nil {
		l.distributeReplacement(tick)
	}
	l.serveRequests(tick)

	if l.rosterDirty && rec.Key != nil {
		l.publishRoster(rec)
		l.rosterDirty = false
		return StepSynced
	}
	return StepIdle
}

// publishRoster seals the membership and rotation metadata to the public
// data segment under the active key.
func (l *LeaderService) publishRoster(rec *KeyRecord) {
	l.channel.DeclarePublic()

	payload := &RosterPayload{
		Ranks:      l.roster,
		Expire:     rec.Expire,
		LeaderRoom: l.cfg.LeaderRoom,
	}
	data, err := SerializeMessage(payload)
	if err != nil {
		l.log.Error("serialize roster", "err", err)
		return
	}
	l.channel.WriteOwnSealed(l.cfg.DataSegmentID, rec.Key, string(data))
	l.log.Info("published roster", "members", len(l.roster))
}

// serveRequests answers tagged key requests from recognized members with a
// direct key delivery. A requester is served at most once per scan window.
func (l *LeaderService) serveRequests(tick uint64) {
	rec := l.keys.Record()
	if rec.Key == nil {
		return
	}

	for i, tr := range l.ledger.RecentInboundTransfers() {
		if i >= l.cfg.TransferScanLimit {
			break
		}
		if tick-tr.Tick > l.cfg.TransferScanWindow {
			break
		}
		if tr.Description != keyRequestDescription || tr.Resource != l.cfg.KeyResource || tr.Amount != l.cfg.KeyTransferAmount {
			continue
		}
		if last, ok := l.served[tr.Sender]; ok && tick-last <= l.cfg.TransferScanWindow {
			continue
		}
		addr, ok := l.addresses[tr.Sender]
		if !ok {
			l.log.Warn("key request from unknown member", "sender", tr.Sender)
			continue
		}

		err := l.ledger.SendTransfer(l.cfg.KeyResource, l.cfg.KeyTransferAmount, addr, rec.Key.String())
		if err != nil {
			if !errors.Is(err, ErrSendThrottled) {
				l.log.Warn("key delivery failed", "member", tr.Sender, "err", err)
			}
			return
		}
		l.served[tr.Sender] = tick
		l.log.Info("key delivered", "member", tr.Sender, "tick", tick)
	}
}

// distributeReplacement pushes the scheduled replacement to every member
// with a known address, one transfer per tick under the send throttle.
func (l *LeaderService) distributeReplacement(tick uint64) {
	rec := l.keys.Record()
	desc := rotationPrefix + rec.NewKey.String()

	members := make([]string, 0, len(l.roster))
	for name, rank := range l.roster {
		if rank.CanPublish() && !l.replacementSent[name] {
			members = append(members, name)
		}
	}
	sort.Strings(members)

	for _, name := range members {
		addr, ok := l.addresses[name]
		if !ok {
			continue
		}
		err := l.ledger.SendTransfer(l.cfg.KeyResource, l.cfg.KeyTransferAmount, addr, desc)
		if err != nil {
			if !errors.Is(err, ErrSendThrottled) {
				l.log.Warn("replacement delivery failed", "member", name, "err", err)
			}
			return
		}
		l.replacementSent[name] = true
		l.log.Info("replacement key delivered", "member", name, "tick", tick)
	}
}
