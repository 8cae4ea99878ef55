package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awerar/allysync/crypto"
)

type leaderEnv struct {
	host  *MockHost
	agent *MockAgent
	alice *MockAgent
	cfg   *SyncConfig
	svc   *LeaderService
}

func newLeaderEnv(t *testing.T) *leaderEnv {
	t.Helper()
	host := NewMockHost()
	agent := host.Agent("Leader", "W0N0")
	alice := host.Agent("Alice", "W2N2")

	cfg := testConfig("Leader")
	svc := NewLeaderService(cfg, testLogger(), agent, agent, agent)
	return &leaderEnv{host: host, agent: agent, alice: alice, cfg: cfg, svc: svc}
}

// start runs the leader through the record load and the initial key mint.
func (e *leaderEnv) start(t *testing.T) {
	t.Helper()
	require.Equal(t, StepPending, e.svc.Step())
	e.host.AdvanceTick()
	require.Equal(t, StepSynced, e.svc.Step())
}

func (e *leaderEnv) readRoster(t *testing.T, key *crypto.SharedKey) *RosterPayload {
	t.Helper()
	data, ok := e.agent.LocalSegment(e.cfg.DataSegmentID)
	require.True(t, ok)
	words, err := crypto.UnmarshalWords(data)
	require.NoError(t, err)
	text, err := crypto.Open(key, words)
	require.NoError(t, err)
	payload, err := UnmarshalMessage[RosterPayload]([]byte(text))
	require.NoError(t, err)
	return payload
}

func TestLeaderMintsAndPublishes(t *testing.T) {
	env := newLeaderEnv(t)
	env.svc.SetMembers(Roster{"Alice": RankMember}, map[string]string{"Alice": "W2N2"})
	env.start(t)

	rec := env.svc.KeyManager().Record()
	require.NotNil(t, rec.Key)
	require.Equal(t, env.host.Tick()+env.cfg.KeyLifetime, *rec.Expire)

	payload := env.readRoster(t, rec.Key)
	require.Equal(t, RankMember, payload.Ranks["Alice"])
	require.Equal(t, *rec.Expire, *payload.Expire)
	require.Equal(t, "W0N0", payload.LeaderRoom)
	require.True(t, env.agent.public[env.cfg.DataSegmentID])
}

func TestLeaderServesKeyRequest(t *testing.T) {
	env := newLeaderEnv(t)
	env.svc.SetMembers(Roster{"Alice": RankMember}, map[string]string{"Alice": "W2N2"})
	env.start(t)
	key := env.svc.KeyManager().Record().Key

	require.NoError(t, env.alice.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W0N0", keyRequestDescription))
	env.host.AdvanceTick()
	env.svc.Step()
	env.host.AdvanceTick()

	transfers := env.alice.RecentInboundTransfers()
	require.Len(t, transfers, 1)
	require.Equal(t, key.String(), transfers[0].Description)
	require.Equal(t, env.cfg.KeyTransferAmount, transfers[0].Amount)

	// A repeated request inside the scan window is not served again.
	require.NoError(t, env.alice.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W0N0", keyRequestDescription))
	env.host.AdvanceTick()
	env.svc.Step()
	env.host.AdvanceTick()
	require.Len(t, env.alice.RecentInboundTransfers(), 1)
}

func TestLeaderIgnoresRequestFromUnknownSender(t *testing.T) {
	env := newLeaderEnv(t)
	env.start(t)
	stranger := env.host.Agent("Stranger", "W9N9")

	require.NoError(t, stranger.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W0N0", keyRequestDescription))
	env.host.AdvanceTick()
	env.svc.Step()
	env.host.AdvanceTick()

	require.Empty(t, stranger.RecentInboundTransfers())
}

func TestLeaderDistributesReplacement(t *testing.T) {
	env := newLeaderEnv(t)
	env.cfg.KeyLifetime = 500 // inside the rotation lookahead from the start
	bob := env.host.Agent("Bob", "W3N3")
	env.svc.SetMembers(
		Roster{"Alice": RankMember, "Bob": RankMember},
		map[string]string{"Alice": "W2N2", "Bob": "W3N3"},
	)
	env.start(t)

	rec := env.svc.KeyManager().Record()
	require.NotNil(t, rec.NewKey)
	want := rotationPrefix + rec.NewKey.String()

	// One delivery per tick under the send throttle.
	env.host.AdvanceTick()
	aliceIn := env.alice.RecentInboundTransfers()
	require.Len(t, aliceIn, 1)
	require.Equal(t, want, aliceIn[0].Description)
	require.Empty(t, bob.RecentInboundTransfers())

	env.svc.Step()
	env.host.AdvanceTick()
	bobIn := bob.RecentInboundTransfers()
	require.Len(t, bobIn, 1)
	require.Equal(t, want, bobIn[0].Description)
}

func TestLeaderRotationBoundary(t *testing.T) {
	env := newLeaderEnv(t)
	env.cfg.KeyLifetime = 2
	env.start(t)

	rec := env.svc.KeyManager().Record()
	scheduled := rec.NewKey
	require.NotNil(t, scheduled)
	boundary := *rec.Expire

	for env.host.Tick() < boundary {
		env.host.AdvanceTick()
	}
	require.Equal(t, StepSynced, env.svc.Step())

	// The replacement became active, the boundary re-armed, and the roster
	// republished under the new key.
	require.True(t, scheduled.Equal(rec.Key))
	require.Equal(t, boundary+env.cfg.KeyLifetime, *rec.Expire)
	require.NotNil(t, rec.NewKey)
	require.False(t, scheduled.Equal(rec.NewKey))
	env.readRoster(t, scheduled)
}
