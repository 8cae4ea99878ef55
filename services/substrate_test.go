package services

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awerar/allysync/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSubstrate(t *testing.T) (*Substrate, *InMemoryStore) {
	t.Helper()
	store := NewInMemoryStore()
	sub, err := NewSubstrate(testLogger(), store)
	require.NoError(t, err)
	return sub, store
}

func TestRegisterAgent(t *testing.T) {
	sub, _ := newTestSubstrate(t)

	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))
	// Re-registration with the same address is idempotent.
	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))
	// A different address is a conflict.
	require.ErrorIs(t, sub.RegisterAgent("Alice", "W2N2"), ErrAgentExists)

	require.Error(t, sub.RegisterAgent("", "W1N1"))
	require.ErrorIs(t, sub.WriteSegment("Nobody", 1, nil), ErrUnknownAgent)
}

func TestTwoPhaseLocalRead(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))

	// Undeclared segments do not settle.
	_, ok, err := sub.ReadSegment("Alice", 7)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, sub.SetActive("Alice", []uint8{7}))
	_, ok, _ = sub.ReadSegment("Alice", 7)
	require.False(t, ok)

	sub.AdvanceTick()
	data, ok, err := sub.ReadSegment("Alice", 7)
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, data)

	// Own writes settle immediately.
	require.NoError(t, sub.WriteSegment("Alice", 8, []byte("x")))
	data, ok, _ = sub.ReadSegment("Alice", 8)
	require.True(t, ok)
	require.Equal(t, []byte("x"), data)
}

func TestSubscriptionSettleAndPreempt(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))
	require.NoError(t, sub.RegisterAgent("Bob", "W2N2"))
	require.NoError(t, sub.RegisterAgent("Carol", "W3N3"))

	require.NoError(t, sub.WriteSegment("Bob", 90, []byte{1, 2, 3, 4}))
	require.NoError(t, sub.SetPublic("Bob", []uint8{90}))

	require.NoError(t, sub.Subscribe("Alice", "Bob", 90))
	res, err := sub.SubscriptionResult("Alice")
	require.NoError(t, err)
	require.Nil(t, res)

	sub.AdvanceTick()
	res, err = sub.SubscriptionResult("Alice")
	require.NoError(t, err)
	require.NotNil(t, res)
	require.Equal(t, "Bob", res.Owner)
	require.Equal(t, []byte{1, 2, 3, 4}, res.Data)

	// A new target resets the slot to pending.
	require.NoError(t, sub.Subscribe("Alice", "Carol", 90))
	res, _ = sub.SubscriptionResult("Alice")
	require.Nil(t, res)

	// A non-public segment settles with no data.
	sub.AdvanceTick()
	res, _ = sub.SubscriptionResult("Alice")
	require.NotNil(t, res)
	require.Equal(t, "Carol", res.Owner)
	require.Nil(t, res.Data)
}

func TestTransferRouting(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))
	require.NoError(t, sub.RegisterAgent("Bob", "W2N2"))

	require.NoError(t, sub.SendTransfer("Alice", "energy", 97, "W2N2", "hello"))
	transfers, err := sub.InboundTransfers("Bob")
	require.NoError(t, err)
	require.Empty(t, transfers)

	tick := sub.AdvanceTick()
	transfers, _ = sub.InboundTransfers("Bob")
	require.Len(t, transfers, 1)
	require.Equal(t, "Alice", transfers[0].Sender)
	require.Equal(t, "hello", transfers[0].Description)
	require.Equal(t, tick, transfers[0].Tick)

	// Most recent first.
	require.NoError(t, sub.SendTransfer("Alice", "energy", 1, "W2N2", "second"))
	sub.AdvanceTick()
	transfers, _ = sub.InboundTransfers("Bob")
	require.Len(t, transfers, 2)
	require.Equal(t, "second", transfers[0].Description)
}

func TestSnapshotRestore(t *testing.T) {
	sub, store := newTestSubstrate(t)
	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))
	require.NoError(t, sub.WriteSegment("Alice", 89, []byte("keys")))
	require.NoError(t, sub.SaveAgentState("Alice", protocol.SyncState{NextLeaderSync: 7, PeerCursor: 2}))
	sub.AdvanceTick()
	sub.AdvanceTick()

	restored, err := NewSubstrate(testLogger(), store)
	require.NoError(t, err)
	require.Equal(t, uint64(2), restored.Tick())

	// Restored segments count as settled.
	data, ok, err := restored.ReadSegment("Alice", 89)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("keys"), data)

	state, found, err := restored.AgentState("Alice")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, uint64(7), state.NextLeaderSync)
	require.Equal(t, 2, state.PeerCursor)

	// Registration survives, including the conflict check.
	require.NoError(t, restored.RegisterAgent("Alice", "W1N1"))
	require.ErrorIs(t, restored.RegisterAgent("Alice", "W9N9"), ErrAgentExists)
}

func TestInboundHistoryBounded(t *testing.T) {
	sub, _ := newTestSubstrate(t)
	require.NoError(t, sub.RegisterAgent("Alice", "W1N1"))
	require.NoError(t, sub.RegisterAgent("Bob", "W2N2"))

	for i := 0; i < inboundHistoryLimit+10; i++ {
		require.NoError(t, sub.SendTransfer("Alice", "energy", 1, "W2N2", "x"))
		sub.AdvanceTick()
	}
	transfers, _ := sub.InboundTransfers("Bob")
	require.Len(t, transfers, inboundHistoryLimit)
}
