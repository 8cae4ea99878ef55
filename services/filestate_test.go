package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/awerar/allysync/protocol"
)

func TestFileStateStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewFileStateStore(testLogger(), path)

	_, found := store.LoadSyncState()
	require.False(t, found)

	store.SaveSyncState(protocol.SyncState{NextLeaderSync: 123, NextPeerSync: 45, PeerCursor: 6})

	reopened := NewFileStateStore(testLogger(), path)
	state, found := reopened.LoadSyncState()
	require.True(t, found)
	require.Equal(t, uint64(123), state.NextLeaderSync)
	require.Equal(t, uint64(45), state.NextPeerSync)
	require.Equal(t, 6, state.PeerCursor)
}

func TestFileStateStoreCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := NewFileStateStore(testLogger(), path)
	_, found := store.LoadSyncState()
	require.False(t, found)

	// A save over the corrupt file recovers it.
	store.SaveSyncState(protocol.SyncState{NextPeerSync: 1})
	state, found := store.LoadSyncState()
	require.True(t, found)
	require.Equal(t, uint64(1), state.NextPeerSync)
}
