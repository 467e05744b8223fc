package privacy

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func newManager(t *testing.T, path string) *Manager {
	t.Helper()
	m, err := New(path, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	return m
}

func TestManager_BlockUnblock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "privacy.json")
	m := newManager(t, path)

	added, err := m.Block(42)
	if err != nil || !added {
		t.Fatalf("block: added=%v err=%v", added, err)
	}
	if added, _ = m.Block(42); added {
		t.Fatal("double block reported as added")
	}
	if !m.IsBlocked(42) || m.IsBlocked(43) {
		t.Fatal("IsBlocked misreported")
	}

	removed, err := m.Unblock(42)
	if err != nil || !removed {
		t.Fatalf("unblock: removed=%v err=%v", removed, err)
	}
	if removed, _ = m.Unblock(42); removed {
		t.Fatal("double unblock reported as removed")
	}
}

func TestManager_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "privacy.json")
	m := newManager(t, path)
	m.Block(42)
	m.Block(7)

	m2 := newManager(t, path)
	if !m2.IsBlocked(42) || !m2.IsBlocked(7) {
		t.Fatal("blocked set lost across restart")
	}
	got := m2.Blocked()
	if len(got) != 2 || got[0] != 7 || got[1] != 42 {
		t.Fatalf("blocked = %v, want sorted [7 42]", got)
	}

	// on-disk shape carries the version and timestamp
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var f struct {
		BlockedUsers []int64 `json:"blocked_users"`
		LastUpdated  string  `json:"last_updated"`
		Version      int     `json:"version"`
	}
	if err = json.Unmarshal(data, &f); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if f.Version != fileVersion || f.LastUpdated == "" || len(f.BlockedUsers) != 2 {
		t.Fatalf("file = %+v", f)
	}
	// no temp file left behind
	if _, err = os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatal("temp file left behind after rename")
	}
}

func TestManager_MissingFileStartsEmpty(t *testing.T) {
	m := newManager(t, filepath.Join(t.TempDir(), "nope.json"))
	if m.Count() != 0 {
		t.Fatalf("count = %d", m.Count())
	}
}
