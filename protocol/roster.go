package protocol

import "slices"

// Rank is an alliance membership tier. It governs both publish eligibility
// and field-level visibility of synced payloads.
type Rank string

const (
	RankCouncil   Rank = "council"
	RankMember    Rank = "member"
	RankAssociate Rank = "associate"
	RankInactive  Rank = "inactive"
)

// Valid reports whether the rank is recognized.
func (r Rank) Valid() bool {
	switch r {
	case RankCouncil, RankMember, RankAssociate, RankInactive:
		return true
	}
	return false
}

// CanPublish reports whether peers of this rank publish a data segment
// worth polling.
func (r Rank) CanPublish() bool {
	switch r {
	case RankCouncil, RankMember, RankAssociate:
		return true
	}
	return false
}

// SharesBattlefield reports whether this rank's attack plans and player
// standings are visible to the alliance.
func (r Rank) SharesBattlefield() bool {
	return r == RankCouncil
}

// Roster maps peer identity to rank.
type Roster map[string]Rank

// EligiblePeers returns publishers other than self in a fixed
// deterministic order, so the round robin visits each exactly once per
// full pass.
func (r Roster) EligiblePeers(self string) []string {
	peers := make([]string, 0, len(r))
	for name, rank := range r {
		if name != self && rank.CanPublish() {
			peers = append(peers, name)
		}
	}
	slices.Sort(peers)
	return peers
}

// RosterPayload is the leader's published data segment: membership plus
// key-rotation metadata.
type RosterPayload struct {
	Ranks Roster `json:"ranks,omitempty"`

	// Expire is the tick at which the current shared key is replaced.
	Expire *uint64 `json:"expire,omitempty"`

	// LeaderRoom is the address key requests should be sent to.
	LeaderRoom string `json:"leaderRoom,omitempty"`
}

// FilterPayload strips the fields a peer's rank has no permission to
// share. Council payloads pass through unchanged; the input is never
// modified.
func FilterPayload(p *PeerPayload, rank Rank) *PeerPayload {
	if p == nil || rank.SharesBattlefield() {
		return p
	}
	filtered := *p
	filtered.Attack = nil
	filtered.Player = nil
	return &filtered
}
