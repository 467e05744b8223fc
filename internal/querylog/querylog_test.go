package querylog

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "logs.db"), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_LogAndRecent(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := s.Log(ctx, Record{
			UserId:           42,
			Username:         "ann",
			ChatId:           -100555,
			ChatType:         "SUPERGROUP",
			Query:            "hello world",
			SearchType:       "fuzzy",
			ResultsCount:     int64(i),
			PageNumber:       1,
			ProcessingTimeMs: 12,
		})
		if err != nil {
			t.Fatalf("log: %v", err)
		}
	}
	s.Log(ctx, Record{UserId: 7, Query: "other"})

	recent, err := s.Recent(ctx, 42, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("recent = %d records, want 3", len(recent))
	}
	// newest first
	if recent[0].ResultsCount != 2 {
		t.Fatalf("order wrong: first results_count = %d", recent[0].ResultsCount)
	}
	if recent[0].Query != "hello world" || recent[0].Username != "ann" {
		t.Fatalf("record = %+v", recent[0])
	}

	n, err := s.Count(ctx, 0)
	if err != nil || n != 4 {
		t.Fatalf("count all = %d err=%v", n, err)
	}
	n, _ = s.Count(ctx, 42)
	if n != 3 {
		t.Fatalf("count user = %d", n)
	}
}

func TestStore_Purge(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := Record{UserId: 1, Query: "old", Timestamp: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := Record{UserId: 1, Query: "fresh"}
	s.Log(ctx, old)
	s.Log(ctx, fresh)

	n, err := s.Purge(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	recent, _ := s.Recent(ctx, 1, 10)
	if len(recent) != 1 || recent[0].Query != "fresh" {
		t.Fatalf("survivors = %+v", recent)
	}
}

func TestStore_Settings(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "auto_delete"); err != ErrSettingNotFound {
		t.Fatalf("missing key err = %v", err)
	}
	if got, err := s.GetBool(ctx, "auto_delete", true); err != nil || !got {
		t.Fatalf("default bool = %v err=%v", got, err)
	}

	if err := s.SetSetting(ctx, "auto_delete", "false", TypeBool, "delete paginated replies", 1000); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.GetBool(ctx, "auto_delete", true)
	if err != nil || got {
		t.Fatalf("bool = %v err=%v", got, err)
	}

	// upsert keeps the description when the update omits it
	if err = s.SetSetting(ctx, "auto_delete", "true", TypeBool, "", 1000); err != nil {
		t.Fatalf("update: %v", err)
	}
	st, err := s.GetSetting(ctx, "auto_delete")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if st.Value != "true" || st.Description != "delete paginated replies" {
		t.Fatalf("setting = %+v", st)
	}

	if err = s.SetSetting(ctx, "bad", "1", "decimal", "", 0); err == nil {
		t.Fatal("unknown value_type accepted")
	}

	s.SetSetting(ctx, "page_limit", "100", TypeInt, "", 0)
	if n, err := s.GetInt(ctx, "page_limit", 1); err != nil || n != 100 {
		t.Fatalf("int = %d err=%v", n, err)
	}

	// three seeded defaults plus the two keys set above
	list, err := s.ListSettings(ctx)
	if err != nil || len(list) != 5 {
		t.Fatalf("list = %d err=%v", len(list), err)
	}
}

func TestStore_SeededDefaults(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	if got, err := s.GetBool(ctx, "enable_query_logging", false); err != nil || !got {
		t.Fatalf("enable_query_logging = %v err=%v", got, err)
	}
	if n, err := s.GetInt(ctx, "log_retention_days", 0); err != nil || n != 30 {
		t.Fatalf("log_retention_days = %d err=%v", n, err)
	}

	// reopening must not reset an operator override
	if err := s.SetSetting(ctx, "log_retention_days", "7", TypeInt, "", 1); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := s.seedDefaults(ctx); err != nil {
		t.Fatalf("reseed: %v", err)
	}
	if n, _ := s.GetInt(ctx, "log_retention_days", 0); n != 7 {
		t.Fatalf("override lost, got %d", n)
	}
}

func TestStore_Trim(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		s.Log(ctx, Record{UserId: 1, Query: "q", ResultsCount: int64(i)})
	}
	n, err := s.Trim(ctx, 4)
	if err != nil {
		t.Fatalf("trim: %v", err)
	}
	if n != 6 {
		t.Fatalf("trimmed %d, want 6", n)
	}
	recent, _ := s.Recent(ctx, 1, 20)
	if len(recent) != 4 || recent[0].ResultsCount != 9 || recent[3].ResultsCount != 6 {
		t.Fatalf("survivors = %+v", recent)
	}
	// zero cap is a no-op
	if n, _ = s.Trim(ctx, 0); n != 0 {
		t.Fatalf("trim(0) removed %d", n)
	}
}
