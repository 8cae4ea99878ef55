package protocol

// Status classifies the result of polling a synced segment. No variant is
// fatal: every one degrades to "retry later" with last-known-good data
// retained.
type Status int

const (
	// StatusPending means the subscription has not settled yet, or was
	// retargeted since the last poll. Expected, not logged.
	StatusPending Status = iota

	// StatusEmpty means the segment settled with an explicitly empty value.
	// A valid terminal state, not an error.
	StatusEmpty

	// StatusMalformed means the segment settled but its bytes were not a
	// valid encoded structure.
	StatusMalformed

	// StatusDecryptFailed means the signature tag did not match after
	// decryption: a stale key or corrupted ciphertext.
	StatusDecryptFailed

	// StatusValue means the segment settled and decoded.
	StatusValue
)

// String returns the status name used in logs and metrics labels.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusEmpty:
		return "empty"
	case StatusMalformed:
		return "malformed"
	case StatusDecryptFailed:
		return "decrypt-failed"
	case StatusValue:
		return "value"
	}
	return "unknown"
}

// Outcome is a tagged poll result. Words carries the ciphertext words and
// is set only for StatusValue.
type Outcome struct {
	Status Status
	Words  []uint32
}
