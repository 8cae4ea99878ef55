package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEligiblePeersExcludesSelfAndNonPublishers(t *testing.T) {
	roster := Roster{
		"Me":     RankMember,
		"Carol":  RankCouncil,
		"Alice":  RankMember,
		"Bob":    RankAssociate,
		"Dana":   RankInactive,
		"Mallet": Rank("bogus"),
	}

	require.Equal(t, []string{"Alice", "Bob", "Carol"}, roster.EligiblePeers("Me"))
}

func TestFilterPayloadStripsBattlefieldFields(t *testing.T) {
	payload := &PeerPayload{
		Attack:   []AttackRequest{{Room: "W5N5", Priority: 1}},
		Player:   []PlayerIntel{{Name: "Invader", Hate: 0.9}},
		Resource: []ResourceRequest{{Room: "W1N1", Resource: "energy", Amount: 5000}},
	}

	filtered := FilterPayload(payload, RankMember)
	require.Nil(t, filtered.Attack)
	require.Nil(t, filtered.Player)
	require.Len(t, filtered.Resource, 1)

	// The input payload is left untouched.
	require.Len(t, payload.Attack, 1)
	require.Len(t, payload.Player, 1)
}

func TestFilterPayloadPassesCouncilThrough(t *testing.T) {
	payload := &PeerPayload{
		Attack: []AttackRequest{{Room: "W5N5", Priority: 1}},
	}
	require.Same(t, payload, FilterPayload(payload, RankCouncil))
}

func TestHasContent(t *testing.T) {
	require.False(t, (*PeerPayload)(nil).HasContent())
	require.False(t, (&PeerPayload{}).HasContent())
	require.True(t, (&PeerPayload{Econ: &EconInfo{Credits: 1}}).HasContent())
	require.True(t, (&PeerPayload{Defense: []DefenseRequest{{Room: "W1N1"}}}).HasContent())
}
