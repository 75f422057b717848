// Package snapshot implements the periodic, atomically-written snapshot
// of the scheduler's in-memory job table (spec §4.10), distinct from
// internal/project's per-project symbol snapshot: this one captures the
// pending queue and processing table so a daemon restart can resume
// without replaying the whole WAL from the beginning.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rosrad/rtagsd/pkg/rtags"
)

var (
	ErrCorrupted           = errors.New("snapshot: file is corrupted")
	ErrIncompatibleVersion = errors.New("snapshot: schema version is incompatible")
)

// schemaVersion is the compile-time constant the on-disk snapshot's
// Version field must equal, per the §4.1 {version, file_size, payload}
// sanity check this spec extends to the scheduler's own snapshot.
const schemaVersion = 2

// JobRecord is the serializable projection of an IndexerJob kept in a
// snapshot: enough to rebuild the pending queue and processing table,
// not enough to resume a live subprocess or peer connection (those do
// not survive a restart regardless).
type JobRecord struct {
	ID          rtags.JobID
	Project     string
	SourceFile  string
	Source      string
	Flags       rtags.Flag
	Destination string
	Port        uint16
	StartedAtMS int64
	CrashCount  int
}

// Data is the full payload written to disk.
type Data struct {
	Version int    `json:"version"`
	WALSeq  uint64 `json:"wal_seq"`
	Jobs    []JobRecord `json:"jobs"`
}

// Manager writes and reads the scheduler snapshot file at path.
type Manager struct {
	mu   sync.Mutex
	path string
}

func NewManager(path string) *Manager {
	return &Manager{path: path}
}

// Write atomically persists data: write to a temp file, then rename.
func (m *Manager) Write(data Data) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	data.Version = schemaVersion
	buf, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("snapshot: marshal: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, buf, 0o644); err != nil {
		return fmt.Errorf("snapshot: write temp: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("snapshot: rename: %w", err)
	}
	return nil
}

// Load reads the snapshot, returning an empty Data on first run (no file
// yet) and deleting the file on detected corruption rather than erroring,
// matching §7's "delete file, continue without that project" disposition
// generalized to the whole job table.
func (m *Manager) Load() (Data, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	raw, err := os.ReadFile(m.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Data{Version: schemaVersion}, nil
		}
		return Data{}, fmt.Errorf("snapshot: read: %w", err)
	}

	var data Data
	if err := json.Unmarshal(raw, &data); err != nil {
		os.Remove(m.path)
		return Data{Version: schemaVersion}, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}
	if data.Version != schemaVersion {
		os.Remove(m.path)
		return Data{Version: schemaVersion}, fmt.Errorf("%w: got %d want %d", ErrIncompatibleVersion, data.Version, schemaVersion)
	}
	return data, nil
}

func (m *Manager) Exists() bool {
	_, err := os.Stat(m.path)
	return err == nil
}
