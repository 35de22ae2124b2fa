package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrNoSession is returned by Load when no session snapshot exists.
var ErrNoSession = errors.New("no active session")

// SessionStore persists the snapshot of the current Session. The snapshot
// only serves recovery across restarts; the Coordinator owns the live state.
type SessionStore interface {
	Save(s *Session) error
	Load() (*Session, error) // returns ErrNoSession if none exists
	Delete() error
}

// snapshotFile is the SessionStore kept as one JSON file.
type snapshotFile struct {
	path string
}

// NewSessionStore returns the store at
// $XDG_DATA_HOME/contractdesk/session.json (or the ~/.local/share
// equivalent).
func NewSessionStore() (SessionStore, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, fmt.Errorf("resolving data directory: %w", err)
	}
	return NewSessionStoreAt(dir)
}

// NewSessionStoreAt returns a store keeping session.json in dir, creating
// dir when needed.
func NewSessionStoreAt(dir string) (SessionStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &snapshotFile{path: filepath.Join(dir, "session.json")}, nil
}

func dataDir() (string, error) {
	if base := os.Getenv("XDG_DATA_HOME"); base != "" {
		return filepath.Join(base, "contractdesk"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "contractdesk"), nil
}

// Save replaces the snapshot atomically: it writes a sibling temp file and
// renames it over session.json.
func (f *snapshotFile) Save(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return &SnapshotError{Op: "encode", Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".session-*")
	if err != nil {
		return &SnapshotError{Op: "write", Err: err}
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = os.Remove(tmp.Name())
		return &SnapshotError{Op: "write", Err: err}
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		_ = os.Remove(tmp.Name())
		return &SnapshotError{Op: "write", Err: err}
	}
	return nil
}

// Load returns ErrNoSession when no snapshot was saved.
func (f *snapshotFile) Load() (*Session, error) {
	data, err := os.ReadFile(f.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil, ErrNoSession
	case err != nil:
		return nil, &SnapshotError{Op: "read", Err: err}
	}
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, &SnapshotError{Op: "decode", Err: err}
	}
	return &s, nil
}

// Delete is a no-op when no snapshot exists.
func (f *snapshotFile) Delete() error {
	err := os.Remove(f.path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return &SnapshotError{Op: "delete", Err: err}
}

// SnapshotError reports a failed snapshot read or write.
type SnapshotError struct {
	Op  string
	Err error
}

func (e *SnapshotError) Error() string {
	return "session snapshot " + e.Op + ": " + e.Err.Error()
}

func (e *SnapshotError) Unwrap() error { return e.Err }

// memStore keeps the snapshot in memory.
type memStore struct {
	mu sync.Mutex
	s  *Session
}

// NewMemoryStore returns a SessionStore that never touches disk.
func NewMemoryStore() SessionStore {
	return &memStore{}
}

func (m *memStore) Save(s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return &SnapshotError{Op: "encode", Err: err}
	}
	var cp Session
	if err := json.Unmarshal(data, &cp); err != nil {
		return &SnapshotError{Op: "decode", Err: err}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = &cp
	return nil
}

func (m *memStore) Load() (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, ErrNoSession
	}
	cp := *m.s
	return &cp, nil
}

func (m *memStore) Delete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
