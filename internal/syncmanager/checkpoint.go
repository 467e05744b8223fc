package syncmanager

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"tgindex/entity"
	"tgindex/lib/clock"
)

// loadCheckpoint reads the persisted progress map. A missing file is a
// normal first start; a corrupt file is reported so the operator can
// decide, not silently discarded.
func loadCheckpoint(path string) (map[int64]*entity.SyncProgress, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[int64]*entity.SyncProgress{}, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var cp entity.Checkpoint
	if err = json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", path, err)
	}
	chats := make(map[int64]*entity.SyncProgress, len(cp.Chats))
	for i := range cp.Chats {
		p := cp.Chats[i]
		chats[p.ChatId] = &p
	}
	return chats, nil
}

// saveCheckpoint writes the progress map through a temp file and rename,
// so a crash mid-write never leaves a truncated checkpoint behind.
func saveCheckpoint(path string, chats map[int64]*entity.SyncProgress) error {
	cp := entity.Checkpoint{
		LastUpdated: clock.Now(),
		Chats:       make([]entity.SyncProgress, 0, len(chats)),
	}
	for _, p := range chats {
		p.ProgressPercent = p.Percent()
		cp.Chats = append(cp.Chats, *p)
	}
	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err = os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace checkpoint: %w", err)
	}
	return nil
}
