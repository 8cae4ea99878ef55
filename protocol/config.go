package protocol

// Defaults applied by SyncConfig.Normalize.
const (
	DefaultDataSegmentID      = 90
	DefaultKeySegmentID       = 89
	DefaultLeaderSyncInterval = 100
	DefaultPeerSyncInterval   = 10
	DefaultRotationLookahead  = 1000
	DefaultTransferScanLimit  = 30
	DefaultTransferScanWindow = 1000
	DefaultKeyResource        = "energy"
	DefaultKeyTransferAmount  = 97
	DefaultKeyLifetime        = 20000
)

// SyncConfig enumerates every recognized option of the alliance sync core.
// Zero-valued fields are replaced with defaults by Normalize; there are no
// implicit fallbacks anywhere else.
type SyncConfig struct {
	// Self is the agent's own identity.
	Self string `json:"self" yaml:"self"`

	// LeaderName is the identity whose published roster segment is
	// authoritative for membership and key-rotation metadata.
	LeaderName string `json:"leader_name" yaml:"leader_name"`

	// LeaderRoom seeds the key-request destination until the roster
	// supplies one.
	LeaderRoom string `json:"leader_room" yaml:"leader_room"`

	// DataSegmentID is the public segment every member publishes sealed
	// payloads on. The leader's copy carries the roster.
	DataSegmentID uint8 `json:"data_segment_id" yaml:"data_segment_id"`

	// KeySegmentID is the private segment holding the persisted key record.
	KeySegmentID uint8 `json:"key_segment_id" yaml:"key_segment_id"`

	// LeaderSyncInterval is the number of ticks between roster polls.
	LeaderSyncInterval uint64 `json:"leader_sync_interval" yaml:"leader_sync_interval"`

	// PeerSyncInterval is the number of ticks between per-peer data polls.
	PeerSyncInterval uint64 `json:"peer_sync_interval" yaml:"peer_sync_interval"`

	// RotationLookahead is how many ticks before key expiry a replacement
	// key is requested.
	RotationLookahead uint64 `json:"rotation_lookahead" yaml:"rotation_lookahead"`

	// TransferScanLimit bounds how many recent inbound transfers the key
	// delivery scan inspects per tick.
	TransferScanLimit int `json:"transfer_scan_limit" yaml:"transfer_scan_limit"`

	// TransferScanWindow bounds the delivery scan to transfers at most this
	// many ticks old.
	TransferScanWindow uint64 `json:"transfer_scan_window" yaml:"transfer_scan_window"`

	// KeyResource is the resource type carrying key traffic.
	KeyResource string `json:"key_resource" yaml:"key_resource"`

	// KeyTransferAmount is the exact amount recognizing key traffic among
	// ordinary transfers.
	KeyTransferAmount uint32 `json:"key_transfer_amount" yaml:"key_transfer_amount"`

	// KeyLifetime is how many ticks a minted key remains active before the
	// scheduled expiry boundary. Only the leader consults it.
	KeyLifetime uint64 `json:"key_lifetime" yaml:"key_lifetime"`
}

// Normalize fills unset options with their defaults.
func (c *SyncConfig) Normalize() {
	if c.DataSegmentID == 0 {
		c.DataSegmentID = DefaultDataSegmentID
	}
	if c.KeySegmentID == 0 {
		c.KeySegmentID = DefaultKeySegmentID
	}
	if c.LeaderSyncInterval == 0 {
		c.LeaderSyncInterval = DefaultLeaderSyncInterval
	}
	if c.PeerSyncInterval == 0 {
		c.PeerSyncInterval = DefaultPeerSyncInterval
	}
	if c.RotationLookahead == 0 {
		c.RotationLookahead = DefaultRotationLookahead
	}
	if c.TransferScanLimit == 0 {
		c.TransferScanLimit = DefaultTransferScanLimit
	}
	if c.TransferScanWindow == 0 {
		c.TransferScanWindow = DefaultTransferScanWindow
	}
	if c.KeyResource == "" {
		c.KeyResource = DefaultKeyResource
	}
	if c.KeyTransferAmount == 0 {
		c.KeyTransferAmount = DefaultKeyTransferAmount
	}
	if c.KeyLifetime == 0 {
		c.KeyLifetime = DefaultKeyLifetime
	}
}
