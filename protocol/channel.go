package protocol

import (
	"github.com/awerar/allysync/crypto"
)

// segmentTarget identifies one (owner, segment) subscription.
type segmentTarget struct {
	owner string
	id    uint8
}

// SegmentChannel wraps the host's two-phase remote-read primitive. It owns
// the single foreign-subscription slot: subscribing to a new target
// discards whatever the displaced subscription would have returned, and a
// settled result is consumed by the poll that classifies it.
type SegmentChannel struct {
	store SegmentStore
	cfg   *SyncConfig

	target    *segmentTarget
	keyLoaded bool
}

// NewSegmentChannel creates a channel over the host's segment store.
func NewSegmentChannel(store SegmentStore, cfg *SyncConfig) *SegmentChannel {
	return &SegmentChannel{store: store, cfg: cfg}
}

// Subscribe declares interest in owner's segment and returns immediately;
// it never yields data on the same call. Subscribing to a different target
// than the active one resets the slot to pending.
func (c *SegmentChannel) Subscribe(owner string, id uint8) {
	t := segmentTarget{owner: owner, id: id}
	if c.target != nil && *c.target == t {
		return
	}
	c.target = &t
	c.store.SubscribeForeignSegment(owner, id)
}

// Poll classifies whatever the active subscription has produced. A
// definite (non-pending) outcome consumes the subscription, so the next
// Subscribe for the same target issues a fresh read.
func (c *SegmentChannel) Poll() Outcome {
	if c.target == nil {
		return Outcome{Status: StatusPending}
	}

	res := c.store.ForeignSegmentResult()
	if res == nil || res.Owner != c.target.owner || res.ID != c.target.id {
		return Outcome{Status: StatusPending}
	}
	c.target = nil

	if len(res.Data) == 0 {
		return Outcome{Status: StatusEmpty}
	}
	words, err := crypto.UnmarshalWords(res.Data)
	if err != nil {
		return Outcome{Status: StatusMalformed}
	}
	return Outcome{Status: StatusValue, Words: words}
}

// WriteOwn synchronously replaces one of the agent's own segments.
func (c *SegmentChannel) WriteOwn(id uint8, data []byte) {
	c.store.WriteLocalSegment(id, data)
}

// WriteOwnSealed seals plaintext under key and writes the ciphertext words
// to an own segment.
func (c *SegmentChannel) WriteOwnSealed(id uint8, key *crypto.SharedKey, plaintext string) {
	c.store.WriteLocalSegment(id, crypto.MarshalWords(crypto.Seal(key, plaintext)))
}

// ReadLocal reads an own segment once the host has settled it.
func (c *SegmentChannel) ReadLocal(id uint8) ([]byte, bool) {
	return c.store.LocalSegment(id)
}

// DeclarePublic marks own segments readable by other agents. The data
// segment is always included; extras are unioned in.
func (c *SegmentChannel) DeclarePublic(extra ...uint8) {
	c.store.DeclarePublicSegments(unionIDs(c.cfg.DataSegmentID, extra))
}

// DeclareActive requests own segments for the next read window. The
// private key segment is always included until the key record has been
// loaded.
func (c *SegmentChannel) DeclareActive(ids ...uint8) {
	if c.keyLoaded {
		c.store.DeclareActiveSegments(ids)
		return
	}
	c.store.DeclareActiveSegments(unionIDs(c.cfg.KeySegmentID, ids))
}

// SetKeyLoaded records that the key record has been read, releasing the
// key segment from the active set.
func (c *SegmentChannel) SetKeyLoaded() {
	c.keyLoaded = true
}

func unionIDs(always uint8, extra []uint8) []uint8 {
	ids := []uint8{always}
	for _, id := range extra {
		if id != always {
			ids = append(ids, id)
		}
	}
	return ids
}
