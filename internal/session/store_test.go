package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/fakeyudi/contractdesk/internal/compare"
	"github.com/fakeyudi/contractdesk/internal/session"
)

// generateTime produces an arbitrary time.Time value at second precision.
func generateTime(t *rapid.T) time.Time {
	sec := rapid.Int64Range(0, 1_700_000_000).Draw(t, "unix_sec")
	return time.Unix(sec, 0).UTC()
}

func generateFile(t *rapid.T, label string) session.UploadedFile {
	return session.UploadedFile{
		Name:      rapid.StringMatching(`[a-z]{1,10}\.(pdf|docx|xlsx)`).Draw(t, label+"_name"),
		Size:      rapid.Int64Range(0, 64<<20).Draw(t, label+"_size"),
		RemoteURL: "https://acct.blob.core.windows.net/c/" + rapid.StringMatching(`[a-z0-9/]{1,30}`).Draw(t, label+"_url"),
	}
}

func generateMessage(t *rapid.T, label string) session.Message {
	return session.Message{
		Role:      rapid.SampledFrom([]string{"user", "assistant"}).Draw(t, label+"_role"),
		Content:   rapid.StringN(1, 200, -1).Draw(t, label+"_content"),
		Timestamp: generateTime(t),
	}
}

// generateSession produces an arbitrary Session value.
func generateSession(t *rapid.T) *session.Session {
	s := &session.Session{
		ID:        rapid.StringMatching(`[0-9]{13}`).Draw(t, "id"),
		Mode:      rapid.SampledFrom([]session.Mode{session.ModeChat, session.ModeCompare}).Draw(t, "mode"),
		CreatedAt: generateTime(t),
		Category:  rapid.SampledFrom(compare.Categories).Draw(t, "category"),
	}
	for i := rapid.IntRange(0, session.MaxFiles).Draw(t, "num_files"); i > 0; i-- {
		s.Files = append(s.Files, generateFile(t, "file"))
	}
	s.FilesUploaded = len(s.Files) > 0
	for i := rapid.IntRange(0, 5).Draw(t, "num_messages"); i > 0; i-- {
		s.Messages = append(s.Messages, generateMessage(t, "message"))
	}
	if rapid.Bool().Draw(t, "has_comparison") {
		s.Comparison = &compare.Result{
			Summary:  rapid.String().Draw(t, "summary"),
			Sections: []compare.Section{{Title: compare.ClauseSection, Headers: []string{"Clause"}, Rows: [][]string{{"Payment"}}}},
		}
	}
	return s
}

// Feature: contractdesk, Property 1: Session persistence round-trip
func TestSessionPersistenceRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	t.Setenv("XDG_DATA_HOME", tmp)

	store, err := session.NewSessionStore()
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}

	rapid.Check(t, func(t *rapid.T) {
		want := generateSession(t)

		if err := store.Save(want); err != nil {
			t.Fatalf("Save: %v", err)
		}

		loaded, err := store.Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}

		if loaded.ID != want.ID || loaded.Mode != want.Mode || loaded.Category != want.Category {
			t.Errorf("identity mismatch: got %q/%q/%q, want %q/%q/%q",
				loaded.ID, loaded.Mode, loaded.Category, want.ID, want.Mode, want.Category)
		}
		if !loaded.CreatedAt.Equal(want.CreatedAt) {
			t.Errorf("CreatedAt mismatch: got %v, want %v", loaded.CreatedAt, want.CreatedAt)
		}
		if loaded.FilesUploaded != want.FilesUploaded {
			t.Errorf("FilesUploaded mismatch: got %v, want %v", loaded.FilesUploaded, want.FilesUploaded)
		}

		if len(loaded.Files) != len(want.Files) {
			t.Fatalf("Files length mismatch: got %d, want %d", len(loaded.Files), len(want.Files))
		}
		for i, f := range want.Files {
			if loaded.Files[i] != f {
				t.Errorf("Files[%d] mismatch: got %+v, want %+v", i, loaded.Files[i], f)
			}
		}

		if len(loaded.Messages) != len(want.Messages) {
			t.Fatalf("Messages length mismatch: got %d, want %d", len(loaded.Messages), len(want.Messages))
		}
		for i, m := range want.Messages {
			got := loaded.Messages[i]
			if got.Role != m.Role || got.Content != m.Content || !got.Timestamp.Equal(m.Timestamp) {
				t.Errorf("Messages[%d] mismatch: got %+v, want %+v", i, got, m)
			}
		}

		if (loaded.Comparison == nil) != (want.Comparison == nil) {
			t.Fatalf("Comparison nil mismatch")
		}
		if loaded.Comparison != nil && loaded.Comparison.Summary != want.Comparison.Summary {
			t.Errorf("Comparison summary mismatch: got %q, want %q", loaded.Comparison.Summary, want.Comparison.Summary)
		}
	})
}

// TestLoadReturnsErrNoSession verifies that Load returns ErrNoSession when no
// session file exists on disk.
func TestLoadReturnsErrNoSession(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	store, err := session.NewSessionStore()
	if err != nil {
		t.Fatalf("NewSessionStore: %v", err)
	}

	_, err = store.Load()
	if !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession, got: %v", err)
	}

	if err := store.Save(&session.Session{ID: "1"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(); err != nil {
		t.Fatalf("second Delete: %v", err)
	}
	if _, err := store.Load(); !errors.Is(err, session.ErrNoSession) {
		t.Errorf("expected ErrNoSession after Delete, got: %v", err)
	}
}

// TestSaveFailurePropagatesError verifies that creating a store fails when the
// data directory is not writable.
func TestSaveFailurePropagatesError(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("running as root; permission checks are ineffective")
	}

	tmp := t.TempDir()
	if err := os.Chmod(tmp, 0o000); err != nil {
		t.Fatalf("chmod: %v", err)
	}
	t.Cleanup(func() { os.Chmod(tmp, 0o755) })

	t.Setenv("XDG_DATA_HOME", tmp)

	if _, err := session.NewSessionStore(); err == nil {
		t.Fatal("expected error creating store in unwritable directory, got nil")
	}
}

func TestMemoryStoreCopies(t *testing.T) {
	store := session.NewMemoryStore()
	s := &session.Session{ID: "1", Files: []session.UploadedFile{{Name: "a.pdf"}}}
	if err := store.Save(s); err != nil {
		t.Fatal(err)
	}
	s.Files[0].Name = "mutated.pdf"

	loaded, err := store.Load()
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Files[0].Name != "a.pdf" {
		t.Errorf("memory store shares state with caller: %q", loaded.Files[0].Name)
	}
}

func TestCorruptSnapshotIsReported(t *testing.T) {
	dir := t.TempDir()
	store, err := session.NewSessionStoreAt(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = store.Load()
	var snapErr *session.SnapshotError
	if !errors.As(err, &snapErr) || snapErr.Op != "decode" {
		t.Fatalf("expected decode SnapshotError, got %T: %v", err, err)
	}
	if errors.Is(err, session.ErrNoSession) {
		t.Error("a corrupt snapshot must not look like a missing one")
	}
}
