package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awerar/allysync/crypto"
)

type syncEnv struct {
	host   *MockHost
	me     *MockAgent
	leader *MockAgent
	cfg    *SyncConfig
	syncer *Syncer
	key    *crypto.SharedKey
}

func newSyncEnv(t *testing.T) *syncEnv {
	t.Helper()
	host := NewMockHost()
	me := host.Agent("Me", "W1N1")
	leader := host.Agent("Leader", "W0N0")

	cfg := testConfig("Me")
	cfg.PeerSyncInterval = 1

	env := &syncEnv{
		host:   host,
		me:     me,
		leader: leader,
		cfg:    cfg,
		syncer: NewSyncer(cfg, testLogger(), me, me, me, me),
		key:    crypto.DeriveSharedKey([]byte("sync-test")),
	}
	env.seedKey(t, KeyRecord{Key: env.key})
	return env
}

func (e *syncEnv) seedKey(t *testing.T, rec KeyRecord) {
	t.Helper()
	data, err := json.Marshal(&rec)
	require.NoError(t, err)
	e.me.WriteLocalSegment(e.cfg.KeySegmentID, data)
}

func (e *syncEnv) publishSealed(t *testing.T, agent *MockAgent, key *crypto.SharedKey, payload any) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	channel := NewSegmentChannel(agent, e.cfg)
	channel.DeclarePublic()
	channel.WriteOwnSealed(e.cfg.DataSegmentID, key, string(data))
}

func (e *syncEnv) publishRoster(t *testing.T, ranks Roster) {
	t.Helper()
	e.publishSealed(t, e.leader, e.key, &RosterPayload{Ranks: ranks, LeaderRoom: "W0N0"})
}

func TestStepAppliesLeaderRoster(t *testing.T) {
	env := newSyncEnv(t)
	env.publishRoster(t, Roster{"Alice": RankMember, "Bob": RankCouncil, "Me": RankMember})

	// The subscription needs a tick to settle.
	require.Equal(t, StepPending, env.syncer.Step())
	env.host.AdvanceTick()

	require.Equal(t, StepSynced, env.syncer.Step())
	require.Equal(t, []string{"Alice", "Bob"}, env.syncer.EligiblePeers())

	// Interval timer advanced and was persisted.
	state, ok := env.me.LoadSyncState()
	require.True(t, ok)
	require.Equal(t, env.host.Tick()+env.cfg.LeaderSyncInterval, state.NextLeaderSync)
}

func TestStepIdleUntilTimersElapse(t *testing.T) {
	env := newSyncEnv(t)
	env.me.SaveSyncState(SyncState{NextLeaderSync: 10, NextPeerSync: 10})
	require.Equal(t, StepIdle, env.syncer.Step())
}

func TestRoundRobinVisitsEachPeer(t *testing.T) {
	env := newSyncEnv(t)
	alice := env.host.Agent("Alice", "W2N2")
	bob := env.host.Agent("Bob", "W3N3")

	env.publishSealed(t, alice, env.key, &PeerPayload{Econ: &EconInfo{Credits: 11}})
	env.publishSealed(t, bob, env.key, &PeerPayload{Econ: &EconInfo{Credits: 22}})
	env.publishRoster(t, Roster{"Alice": RankMember, "Bob": RankMember})

	env.syncer.Step()
	env.host.AdvanceTick()
	require.Equal(t, StepSynced, env.syncer.Step()) // roster applied, Alice subscribed

	env.host.AdvanceTick()
	require.Equal(t, StepSynced, env.syncer.Step()) // Alice settled

	env.host.AdvanceTick()
	require.Equal(t, StepPending, env.syncer.Step()) // Bob subscribed
	env.host.AdvanceTick()
	require.Equal(t, StepSynced, env.syncer.Step()) // Bob settled

	a, ok := env.syncer.PeerData("Alice")
	require.True(t, ok)
	require.Equal(t, float64(11), a.Econ.Credits)
	b, ok := env.syncer.PeerData("Bob")
	require.True(t, ok)
	require.Equal(t, float64(22), b.Econ.Credits)
}

func TestPeerRankFilterApplied(t *testing.T) {
	env := newSyncEnv(t)
	alice := env.host.Agent("Alice", "W2N2")

	env.publishSealed(t, alice, env.key, &PeerPayload{
		Attack: []AttackRequest{{Room: "W5N5", Priority: 1}},
		Econ:   &EconInfo{Credits: 7},
	})
	env.publishRoster(t, Roster{"Alice": RankMember})

	env.syncer.Step()
	env.host.AdvanceTick()
	env.syncer.Step()
	env.host.AdvanceTick()
	env.syncer.Step()

	a, ok := env.syncer.PeerData("Alice")
	require.True(t, ok)
	require.Nil(t, a.Attack)
	require.NotNil(t, a.Econ)
}

func TestEmptyPeerSegmentClearsCache(t *testing.T) {
	env := newSyncEnv(t)
	alice := env.host.Agent("Alice", "W2N2")

	env.publishSealed(t, alice, env.key, &PeerPayload{Econ: &EconInfo{Credits: 7}})
	env.publishRoster(t, Roster{"Alice": RankMember})

	env.syncer.Step()
	env.host.AdvanceTick()
	env.syncer.Step()
	env.host.AdvanceTick()
	env.syncer.Step()
	_, ok := env.syncer.PeerData("Alice")
	require.True(t, ok)

	// Alice retracts her data; the next visit drops the cached value.
	alice.WriteLocalSegment(env.cfg.DataSegmentID, nil)
	env.host.AdvanceTick()
	env.syncer.Step()
	env.host.AdvanceTick()
	env.syncer.Step()

	_, ok = env.syncer.PeerData("Alice")
	require.False(t, ok)
}

func TestStaleKeyStartsRequestCycle(t *testing.T) {
	env := newSyncEnv(t)
	rotated := crypto.DeriveSharedKey([]byte("rotated"))
	env.publishSealed(t, env.leader, rotated, &RosterPayload{Ranks: Roster{"Alice": RankMember}})

	env.syncer.Step()
	env.host.AdvanceTick()

	// Unreadable under the held key: drop it rather than trusting it.
	require.Equal(t, StepPending, env.syncer.Step())
	require.Nil(t, env.syncer.KeyManager().Record().Key)

	// The next step finds no delivery and requests one from the leader.
	require.Equal(t, StepPending, env.syncer.Step())
	env.host.AdvanceTick()
	transfers := env.leader.RecentInboundTransfers()
	require.Len(t, transfers, 1)
	require.Equal(t, keyRequestDescription, transfers[0].Description)

	// Delivery restores the key and the roster becomes readable.
	require.NoError(t, env.leader.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W1N1", rotated.String()))
	env.host.AdvanceTick()
	require.Equal(t, StepPending, env.syncer.Step())
	require.True(t, rotated.Equal(env.syncer.KeyManager().Record().Key))

	require.Equal(t, StepSynced, env.syncer.Step())
	require.Equal(t, []string{"Alice"}, env.syncer.EligiblePeers())
}

func TestUnconfirmedReplacementDoesNotClearOnFailure(t *testing.T) {
	env := newSyncEnv(t)
	replacement := crypto.DeriveSharedKey([]byte("replacement"))
	env.seedKey(t, KeyRecord{NewKey: replacement})

	// Leader still seals under a key we never had.
	env.publishSealed(t, env.leader, crypto.DeriveSharedKey([]byte("other")), &RosterPayload{})

	env.syncer.Step()
	env.host.AdvanceTick()
	require.Equal(t, StepSkipped, env.syncer.Step())

	// The replacement survives; no flapping back into the request cycle.
	require.True(t, replacement.Equal(env.syncer.KeyManager().Record().NewKey))
}

func TestMalformedRosterKeepsPrevious(t *testing.T) {
	env := newSyncEnv(t)
	env.cfg.LeaderSyncInterval = 1
	env.publishRoster(t, Roster{"Alice": RankMember})

	env.syncer.Step()
	env.host.AdvanceTick()
	require.Equal(t, StepSynced, env.syncer.Step())

	env.leader.WriteLocalSegment(env.cfg.DataSegmentID, []byte{9, 9, 9})
	env.host.AdvanceTick()
	require.Equal(t, StepPending, env.syncer.Step())
	env.host.AdvanceTick()

	require.Equal(t, StepSkipped, env.syncer.Step())
	require.Equal(t, []string{"Alice"}, env.syncer.EligiblePeers())
}

func TestPublishSealsOutgoingPayload(t *testing.T) {
	env := newSyncEnv(t)
	env.syncer.Step() // loads the key record

	env.syncer.SetOutgoing(&PeerPayload{Econ: &EconInfo{Credits: 42}})
	env.syncer.Publish()

	data, ok := env.me.LocalSegment(env.cfg.DataSegmentID)
	require.True(t, ok)
	words, err := crypto.UnmarshalWords(data)
	require.NoError(t, err)
	text, err := crypto.Open(env.key, words)
	require.NoError(t, err)

	payload, err := UnmarshalMessage[PeerPayload]([]byte(text))
	require.NoError(t, err)
	require.Equal(t, float64(42), payload.Econ.Credits)
	require.True(t, env.me.public[env.cfg.DataSegmentID])
}

func TestPublishEmptyPayloadWritesMarker(t *testing.T) {
	env := newSyncEnv(t)
	env.syncer.Step()

	env.syncer.SetOutgoing(&PeerPayload{})
	env.syncer.Publish()

	data, ok := env.me.LocalSegment(env.cfg.DataSegmentID)
	require.True(t, ok)
	require.Empty(t, data)
}

func TestRotationBoundaryRepublishesUnderNewKey(t *testing.T) {
	env := newSyncEnv(t)
	replacement := crypto.DeriveSharedKey([]byte("replacement"))
	expire := uint64(3)
	env.seedKey(t, KeyRecord{Key: env.key, NewKey: replacement, Expire: &expire})
	env.syncer.SetOutgoing(&PeerPayload{Econ: &EconInfo{Credits: 9}})

	for env.host.Tick() < expire {
		env.host.AdvanceTick()
	}
	require.Equal(t, StepPending, env.syncer.Step())

	data, ok := env.me.LocalSegment(env.cfg.DataSegmentID)
	require.True(t, ok)
	words, err := crypto.UnmarshalWords(data)
	require.NoError(t, err)
	_, err = crypto.Open(replacement, words)
	require.NoError(t, err)
}
