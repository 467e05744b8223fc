// Package privacy keeps the set of users who opted out of search, persisted
// as a small JSON file next to the bot.
package privacy

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"tgindex/lib/clock"
	"tgindex/lib/sl"
)

const fileVersion = 1

type fileShape struct {
	BlockedUsers []int64 `json:"blocked_users"`
	LastUpdated  string  `json:"last_updated"`
	Version      int     `json:"version"`
}

type Manager struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	blocked map[int64]bool
}

// New loads the opt-out file; a missing file starts empty.
func New(path string, log *slog.Logger) (*Manager, error) {
	m := &Manager{
		path:    path,
		log:     log.With(sl.Module("privacy")),
		blocked: make(map[int64]bool),
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return m, nil
		}
		return nil, fmt.Errorf("read privacy file: %w", err)
	}
	var f fileShape
	if err = json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse privacy file %s: %w", path, err)
	}
	for _, id := range f.BlockedUsers {
		m.blocked[id] = true
	}
	m.log.With(slog.Int("blocked", len(m.blocked))).Info("privacy set loaded")
	return m, nil
}

// Block adds a user to the opt-out set. Returns false if already blocked.
func (m *Manager) Block(userId int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.blocked[userId] {
		return false, nil
	}
	m.blocked[userId] = true
	return true, m.persistLocked()
}

// Unblock removes a user. Returns false if the user was not blocked.
func (m *Manager) Unblock(userId int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.blocked[userId] {
		return false, nil
	}
	delete(m.blocked, userId)
	return true, m.persistLocked()
}

func (m *Manager) IsBlocked(userId int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blocked[userId]
}

// Blocked returns a sorted copy of the set; callers filter against the
// copy so the lock is never held across search post-processing.
func (m *Manager) Blocked() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int64, 0, len(m.blocked))
	for id := range m.blocked {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.blocked)
}

// persistLocked writes through a temp file and rename; callers hold m.mu.
func (m *Manager) persistLocked() error {
	f := fileShape{
		BlockedUsers: make([]int64, 0, len(m.blocked)),
		LastUpdated:  clock.Now(),
		Version:      fileVersion,
	}
	for id := range m.blocked {
		f.BlockedUsers = append(f.BlockedUsers, id)
	}
	sort.Slice(f.BlockedUsers, func(i, j int) bool { return f.BlockedUsers[i] < f.BlockedUsers[j] })

	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode privacy file: %w", err)
	}
	tmp := m.path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write privacy file: %w", err)
	}
	if err = os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace privacy file: %w", err)
	}
	return nil
}
