package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awerar/allysync/crypto"
)

type keyEnv struct {
	host    *MockHost
	agent   *MockAgent
	leader  *MockAgent
	cfg     *SyncConfig
	channel *SegmentChannel
	keys    *KeyManager
}

func newKeyEnv(t *testing.T) *keyEnv {
	t.Helper()
	host := NewMockHost()
	agent := host.Agent("Me", "W1N1")
	leader := host.Agent("Leader", "W0N0")

	cfg := testConfig("Me")
	channel := NewSegmentChannel(agent, cfg)
	keys := NewKeyManager(cfg, testLogger(), channel, agent)
	return &keyEnv{host: host, agent: agent, leader: leader, cfg: cfg, channel: channel, keys: keys}
}

func (e *keyEnv) seedRecord(t *testing.T, rec KeyRecord) {
	t.Helper()
	data, err := json.Marshal(&rec)
	require.NoError(t, err)
	e.agent.WriteLocalSegment(e.cfg.KeySegmentID, data)
	require.True(t, e.keys.Load())
}

func TestLoadTwoPhase(t *testing.T) {
	env := newKeyEnv(t)

	// First read has not settled yet.
	env.channel.DeclareActive()
	require.False(t, env.keys.Load())
	require.False(t, env.keys.Loaded())

	env.host.AdvanceTick()
	require.True(t, env.keys.Load())
	require.True(t, env.keys.Loaded())

	// An absent record defaults to empty, with the configured leader address.
	rec := env.keys.Record()
	require.Nil(t, rec.Key)
	require.Equal(t, "W0N0", rec.LeaderRoom)
}

func TestLoadCorruptRecordStartsFresh(t *testing.T) {
	env := newKeyEnv(t)
	env.agent.WriteLocalSegment(env.cfg.KeySegmentID, []byte("{not json"))

	require.True(t, env.keys.Load())
	require.Nil(t, env.keys.Record().Key)
}

func TestApplyExpiryExactlyOnce(t *testing.T) {
	env := newKeyEnv(t)
	oldKey := crypto.DeriveSharedKey([]byte("old"))
	newKey := crypto.DeriveSharedKey([]byte("new"))
	expire := uint64(100)
	env.seedRecord(t, KeyRecord{Key: oldKey, NewKey: newKey, Expire: &expire})

	var notified int
	env.keys.OnKeyChanged(func(k *crypto.SharedKey) {
		notified++
		require.True(t, newKey.Equal(k))
	})

	require.False(t, env.keys.ApplyExpiry(99))
	require.True(t, env.keys.ApplyExpiry(100))
	require.False(t, env.keys.ApplyExpiry(100))
	require.False(t, env.keys.ApplyExpiry(101))

	rec := env.keys.Record()
	require.True(t, newKey.Equal(rec.Key))
	require.Nil(t, rec.NewKey)
	require.Nil(t, rec.Expire)
	require.Equal(t, 1, notified)
}

func TestApplyExpiryWithoutReplacement(t *testing.T) {
	env := newKeyEnv(t)
	expire := uint64(50)
	env.seedRecord(t, KeyRecord{Key: crypto.DeriveSharedKey([]byte("old")), Expire: &expire})

	var notified int
	env.keys.OnKeyChanged(func(*crypto.SharedKey) { notified++ })

	require.True(t, env.keys.ApplyExpiry(50))
	require.Nil(t, env.keys.Record().Key)
	require.Zero(t, notified)
}

func TestPollKeyPrefersDeliveredReplacement(t *testing.T) {
	env := newKeyEnv(t)
	oldKey := crypto.DeriveSharedKey([]byte("old"))
	newKey := crypto.DeriveSharedKey([]byte("new"))

	// With a boundary still pending the active key wins.
	expire := uint64(100)
	env.seedRecord(t, KeyRecord{Key: oldKey, NewKey: newKey, Expire: &expire})
	key, usingNew := env.keys.PollKey()
	require.True(t, oldKey.Equal(key))
	require.False(t, usingNew)

	// Without one, the delivered replacement means the leader already
	// rotated.
	env.keys.Record().Expire = nil
	key, usingNew = env.keys.PollKey()
	require.True(t, newKey.Equal(key))
	require.True(t, usingNew)
}

func TestNeedsKey(t *testing.T) {
	env := newKeyEnv(t)
	env.seedRecord(t, KeyRecord{})
	require.True(t, env.keys.NeedsKey(0))

	key := crypto.DeriveSharedKey([]byte("k"))
	env.keys.Record().Key = key
	require.False(t, env.keys.NeedsKey(0))

	expire := uint64(5000)
	env.keys.Record().Expire = &expire
	require.False(t, env.keys.NeedsKey(5000-env.cfg.RotationLookahead-1))
	require.True(t, env.keys.NeedsKey(5000-env.cfg.RotationLookahead))

	// A pending delivery suppresses further requests.
	env.keys.Record().NewKey = crypto.DeriveSharedKey([]byte("next"))
	require.False(t, env.keys.NeedsKey(5000))
}

func TestScanDeliveriesDirect(t *testing.T) {
	env := newKeyEnv(t)
	env.seedRecord(t, KeyRecord{})
	key := crypto.DeriveSharedKey([]byte("delivered"))

	require.NoError(t, env.leader.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W1N1", key.String()))
	env.host.AdvanceTick()

	require.True(t, env.keys.ScanDeliveries(env.host.Tick()))
	require.True(t, key.Equal(env.keys.Record().Key))
}

func TestScanDeliveriesReplacement(t *testing.T) {
	env := newKeyEnv(t)
	env.seedRecord(t, KeyRecord{Key: crypto.DeriveSharedKey([]byte("old"))})
	next := crypto.DeriveSharedKey([]byte("next"))

	require.NoError(t, env.leader.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W1N1", rotationPrefix+next.String()))
	env.host.AdvanceTick()

	require.True(t, env.keys.ScanDeliveries(env.host.Tick()))
	rec := env.keys.Record()
	require.True(t, next.Equal(rec.NewKey))
	require.False(t, next.Equal(rec.Key))
}

func TestScanDeliveriesIgnoresNonMatching(t *testing.T) {
	env := newKeyEnv(t)
	env.seedRecord(t, KeyRecord{})
	key := crypto.DeriveSharedKey([]byte("delivered"))
	stranger := env.host.Agent("Stranger", "W9N9")

	// Wrong sender, wrong resource, wrong amount, junk description.
	require.NoError(t, stranger.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W1N1", key.String()))
	require.NoError(t, env.leader.SendTransfer("power", env.cfg.KeyTransferAmount, "W1N1", key.String()))
	env.host.AdvanceTick()
	require.NoError(t, env.leader.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount+1, "W1N1", key.String()))
	require.NoError(t, env.leader.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W1N1", "not a key"))
	env.host.AdvanceTick()

	require.False(t, env.keys.ScanDeliveries(env.host.Tick()))
	require.Nil(t, env.keys.Record().Key)
}

func TestScanDeliveriesStopsAtWindow(t *testing.T) {
	env := newKeyEnv(t)
	env.seedRecord(t, KeyRecord{})
	key := crypto.DeriveSharedKey([]byte("delivered"))

	require.NoError(t, env.leader.SendTransfer(env.cfg.KeyResource, env.cfg.KeyTransferAmount, "W1N1", key.String()))
	env.host.AdvanceTick()

	// The delivery fell out of the scan window.
	tick := env.host.Tick() + env.cfg.TransferScanWindow + 1
	require.False(t, env.keys.ScanDeliveries(tick))
	require.Nil(t, env.keys.Record().Key)
}

func TestRequestKey(t *testing.T) {
	env := newKeyEnv(t)
	env.seedRecord(t, KeyRecord{})

	env.keys.RequestKey(env.host.Tick())
	env.host.AdvanceTick()

	transfers := env.leader.RecentInboundTransfers()
	require.Len(t, transfers, 1)
	require.Equal(t, "Me", transfers[0].Sender)
	require.Equal(t, keyRequestDescription, transfers[0].Description)
	require.Equal(t, env.cfg.KeyTransferAmount, transfers[0].Amount)
}

func TestRequestKeyDeferredWithoutLeaderAddress(t *testing.T) {
	env := newKeyEnv(t)
	env.cfg.LeaderRoom = ""
	env.seedRecord(t, KeyRecord{})

	env.keys.RequestKey(env.host.Tick())
	env.host.AdvanceTick()
	require.Empty(t, env.leader.RecentInboundTransfers())
}

func TestClearActiveKeyKeepsReplacement(t *testing.T) {
	env := newKeyEnv(t)
	next := crypto.DeriveSharedKey([]byte("next"))
	env.seedRecord(t, KeyRecord{Key: crypto.DeriveSharedKey([]byte("old")), NewKey: next})

	env.keys.ClearActiveKey()
	rec := env.keys.Record()
	require.Nil(t, rec.Key)
	require.True(t, next.Equal(rec.NewKey))
	require.Equal(t, "W0N0", rec.LeaderRoom)
}

func TestRecordPersistsAcrossReload(t *testing.T) {
	env := newKeyEnv(t)
	key := crypto.DeriveSharedKey([]byte("persisted"))
	expire := uint64(777)
	env.seedRecord(t, KeyRecord{})
	env.keys.InstallKey(key, &expire)

	// A second manager over the same segment sees the installed key.
	reloaded := NewKeyManager(env.cfg, testLogger(), NewSegmentChannel(env.agent, env.cfg), env.agent)
	require.True(t, reloaded.Load())
	rec := reloaded.Record()
	require.True(t, key.Equal(rec.Key))
	require.Equal(t, expire, *rec.Expire)
}
