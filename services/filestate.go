package services

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/awerar/allysync/protocol"
)

// FileStateStore persists an agent's scheduler state as a JSON file, for
// standalone agents that keep their state next to their config instead of
// on the gateway. Writes go through a temp file and rename.
type FileStateStore struct {
	log  *slog.Logger
	path string
}

var _ protocol.StateStore = (*FileStateStore)(nil)

// NewFileStateStore creates a store at the given path. The file does not
// need to exist yet.
func NewFileStateStore(log *slog.Logger, path string) *FileStateStore {
	return &FileStateStore{log: log, path: path}
}

// LoadSyncState implements protocol.StateStore. A missing or unreadable
// file reports no stored state.
func (s *FileStateStore) LoadSyncState() (protocol.SyncState, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.log.Warn("state file unreadable, starting fresh", "path", s.path, "err", err)
		}
		return protocol.SyncState{}, false
	}

	var state protocol.SyncState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Warn("state file corrupt, starting fresh", "path", s.path, "err", err)
		return protocol.SyncState{}, false
	}
	return state, true
}

// SaveSyncState implements protocol.StateStore.
func (s *FileStateStore) SaveSyncState(state protocol.SyncState) {
	data, err := json.Marshal(&state)
	if err != nil {
		s.log.Error("marshal sync state", "err", err)
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".state-*")
	if err != nil {
		s.log.Error("state save failed", "path", s.path, "err", err)
		return
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.log.Error("state save failed", "path", s.path, "err", err)
		return
	}
	if err := tmp.Close(); err != nil {
		s.log.Error("state save failed", "path", s.path, "err", err)
		return
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		s.log.Error("state save failed", "path", s.path, "err", err)
	}
}
