package protocol

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/awerar/allysync/crypto"
)

// rotationPrefix tags a delivery that replaces the key at the next expiry
// boundary rather than immediately.
const rotationPrefix = "next:"

// keyRequestDescription marks a recognition transfer as a key request.
const keyRequestDescription = "key-request"

// KeyRecord is the persisted key state. NewKey is only meaningful while
// Expire is set; once the current tick reaches Expire, Key becomes NewKey
// exactly once.
type KeyRecord struct {
	Key        *crypto.SharedKey `json:"key,omitempty"`
	NewKey     *crypto.SharedKey `json:"newKey,omitempty"`
	Expire     *uint64           `json:"expire,omitempty"`
	LeaderRoom string            `json:"leaderRoom,omitempty"`
}

// KeyManager owns the persisted key record and the out-of-band delivery
// channel. It never blocks: loading goes through the host's two-phase
// local read, and a request that cannot be sent this tick is deferred
// without error. The record is persisted after every mutation.
type KeyManager struct {
	cfg     *SyncConfig
	log     *slog.Logger
	channel *SegmentChannel
	ledger  TransferLedger

	loaded bool
	record KeyRecord

	keyChanged []func(*crypto.SharedKey)
}

// NewKeyManager creates a key manager over the given channel and ledger.
func NewKeyManager(cfg *SyncConfig, log *slog.Logger, channel *SegmentChannel, ledger TransferLedger) *KeyManager {
	return &KeyManager{
		cfg:     cfg,
		log:     log,
		channel: channel,
		ledger:  ledger,
	}
}

// OnKeyChanged registers a notification fired after an expiry boundary
// installs a non-nil key.
func (m *KeyManager) OnKeyChanged(fn func(*crypto.SharedKey)) {
	m.keyChanged = append(m.keyChanged, fn)
}

// Loaded reports whether the persisted record has been read.
func (m *KeyManager) Loaded() bool {
	return m.loaded
}

// Load reads the persisted record from the private key segment, defaulting
// to an empty record if absent or unreadable. Returns false while the
// first two-phase read has not settled.
func (m *KeyManager) Load() bool {
	if m.loaded {
		return true
	}

	data, ok := m.channel.ReadLocal(m.cfg.KeySegmentID)
	if !ok {
		return false
	}

	if len(data) > 0 {
		if err := json.Unmarshal(data, &m.record); err != nil {
			m.log.Warn("key record unreadable, starting fresh", "err", err)
			m.record = KeyRecord{}
		}
	}
	if m.record.LeaderRoom == "" {
		m.record.LeaderRoom = m.cfg.LeaderRoom
	}

	m.loaded = true
	m.channel.SetKeyLoaded()
	return true
}

// Record returns the live key record. Callers outside this package treat
// it as read-only.
func (m *KeyManager) Record() *KeyRecord {
	return &m.record
}

// PollKey returns the key to seal and open segments with, and whether that
// is the unconfirmed replacement. The replacement is preferred only when
// no expiry boundary is pending: a delivered NewKey with no Expire means
// the leader already rotated.
func (m *KeyManager) PollKey() (*crypto.SharedKey, bool) {
	if m.record.NewKey != nil && m.record.Expire == nil {
		return m.record.NewKey, true
	}
	return m.record.Key, false
}

// ApplyExpiry performs the rotation boundary transition. Returns true when
// the transition fired this call; it can fire at most once per boundary.
func (m *KeyManager) ApplyExpiry(tick uint64) bool {
	if m.record.Expire == nil || tick < *m.record.Expire {
		return false
	}

	m.record.Key = m.record.NewKey
	m.record.NewKey = nil
	m.record.Expire = nil
	m.persist()

	if m.record.Key == nil {
		m.log.Warn("key expired with no replacement delivered", "tick", tick)
		return true
	}

	m.log.Info("rotated to replacement key", "tick", tick)
	for _, fn := range m.keyChanged {
		fn(m.record.Key)
	}
	return true
}

// NeedsKey reports whether a key request should be issued: no active key,
// or expiry within the rotation lookahead, provided no delivery is already
// pending.
func (m *KeyManager) NeedsKey(tick uint64) bool {
	if m.record.NewKey != nil {
		return false
	}
	if m.record.Key == nil {
		return true
	}
	return m.record.Expire != nil && *m.record.Expire <= tick+m.cfg.RotationLookahead
}

// ScanDeliveries looks for key material in recent inbound transfers from
// the leader. The scan is bounded to the most recent TransferScanLimit
// entries within the TransferScanWindow. The first match updates the
// record, persists it, and short-circuits the rest of the scan.
func (m *KeyManager) ScanDeliveries(tick uint64) bool {
	for i, tr := range m.ledger.RecentInboundTransfers() {
		if i >= m.cfg.TransferScanLimit {
			break
		}
		// Most-recent-first: everything past the window is older still.
		if tick-tr.Tick > m.cfg.TransferScanWindow {
			break
		}
		if tr.Sender != m.cfg.LeaderName || tr.Resource != m.cfg.KeyResource || tr.Amount != m.cfg.KeyTransferAmount {
			continue
		}
		if m.applyDelivery(tr.Description) {
			m.persist()
			return true
		}
	}
	return false
}

// applyDelivery parses a delivery description. The two encodings are told
// apart purely by length: a prefixed 64-hex-digit string schedules a
// replacement, exactly 64 hex digits replaces the key immediately.
func (m *KeyManager) applyDelivery(desc string) bool {
	if rest, ok := strings.CutPrefix(desc, rotationPrefix); ok {
		key, err := crypto.ParseSharedKey(rest)
		if err != nil {
			return false
		}
		m.record.NewKey = key
		m.log.Info("replacement key delivered")
		return true
	}

	if len(desc) == crypto.KeyHexLen {
		key, err := crypto.ParseSharedKey(desc)
		if err != nil {
			return false
		}
		m.record.Key = key
		m.log.Info("key delivered")
		return true
	}
	return false
}

// RequestKey sends the tagged recognition transfer toward the leader. A
// missing destination or an ineligible outbound channel defers the request
// to a later tick without error.
func (m *KeyManager) RequestKey(tick uint64) {
	if m.record.LeaderRoom == "" {
		m.log.Debug("key request deferred: no leader address")
		return
	}

	err := m.ledger.SendTransfer(m.cfg.KeyResource, m.cfg.KeyTransferAmount, m.record.LeaderRoom, keyRequestDescription)
	if err != nil {
		m.log.Debug("key request deferred", "err", err)
		return
	}
	m.log.Info("key requested", "tick", tick, "leaderRoom", m.record.LeaderRoom)
}

// ClearActiveKey drops the active key after a stale-key classification,
// keeping any pending replacement and the leader address.
func (m *KeyManager) ClearActiveKey() {
	m.record.Key = nil
	m.persist()
}

// UpdateRotationMeta records rotation metadata published in the roster,
// persisting only when something changed.
func (m *KeyManager) UpdateRotationMeta(expire *uint64, leaderRoom string) {
	changed := false
	if expire != nil && (m.record.Expire == nil || *m.record.Expire != *expire) {
		e := *expire
		m.record.Expire = &e
		changed = true
	}
	if leaderRoom != "" && leaderRoom != m.record.LeaderRoom {
		m.record.LeaderRoom = leaderRoom
		changed = true
	}
	if changed {
		m.persist()
	}
}

// InstallKey replaces the active key and expiry outright. Used by the
// leader, which mints keys instead of receiving them.
func (m *KeyManager) InstallKey(key *crypto.SharedKey, expire *uint64) {
	m.record.Key = key
	m.record.Expire = expire
	m.persist()
}

// ScheduleReplacement stores a minted replacement key awaiting the expiry
// boundary. Leader-side counterpart of a rotation delivery.
func (m *KeyManager) ScheduleReplacement(key *crypto.SharedKey) {
	m.record.NewKey = key
	m.persist()
}

func (m *KeyManager) persist() {
	data, err := json.Marshal(&m.record)
	if err != nil {
		m.log.Error("marshal key record", "err", err)
		return
	}
	m.channel.WriteOwn(m.cfg.KeySegmentID, data)
}
