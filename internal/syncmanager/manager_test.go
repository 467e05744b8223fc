package syncmanager

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tgindex/entity"
	"tgindex/internal/config"
	"tgindex/internal/upstream"
)

// fakeUpstream serves a fixed newest-first history for one chat.
type fakeUpstream struct {
	mu       sync.Mutex
	messages []upstream.Message // newest first
	countErr error
	histErr  error
	failOnce bool
	calls    int
}

func (f *fakeUpstream) HistoryCount(ctx context.Context, chatId int64) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return len(f.messages), nil
}

func (f *fakeUpstream) History(ctx context.Context, chatId, offsetId int64, limit int) ([]upstream.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.histErr != nil {
		err := f.histErr
		if f.failOnce {
			f.histErr = nil
		}
		return nil, err
	}
	start := 0
	if offsetId != 0 {
		for i, m := range f.messages {
			if m.Id < offsetId {
				start = i
				break
			}
			start = len(f.messages)
		}
	}
	end := start + limit
	if end > len(f.messages) {
		end = len(f.messages)
	}
	return f.messages[start:end], nil
}

func (f *fakeUpstream) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]upstream.Event, error) {
	return nil, nil
}

type fakeSink struct {
	mu      sync.Mutex
	docs    []entity.Document
	flushes int
	err     error
}

func (s *fakeSink) Upsert(ctx context.Context, doc entity.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

func (s *fakeSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flushes++
	return nil
}

func history(chatId int64, n int) []upstream.Message {
	msgs := make([]upstream.Message, 0, n)
	for id := int64(n); id >= 1; id-- {
		msgs = append(msgs, upstream.Message{
			Id:   id,
			Chat: upstream.Chat{Id: chatId, Type: entity.ChatTypeSupergroup},
			From: &upstream.User{Id: 42, FirstName: "Ann"},
			Text: "hello",
			Date: 1700000000 + id,
		})
	}
	return msgs
}

func testConf(t *testing.T) config.SyncConfig {
	t.Helper()
	return config.SyncConfig{
		Enabled:             true,
		CheckpointFile:      filepath.Join(t.TempDir(), "checkpoint.json"),
		BatchSize:           10,
		RetryOnError:        true,
		MaxRetries:          3,
		ResumeOnRestart:     true,
		DelayBetweenBatches: 0,
	}
}

func newManager(t *testing.T, up upstream.Client, sink Sink, conf config.SyncConfig) *Manager {
	t.Helper()
	m, err := New(up, sink, conf, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	m.sleep = func(time.Duration) {}
	return m
}

func TestManager_SyncChatComplete(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 25)}
	sink := &fakeSink{}
	conf := testConf(t)
	m := newManager(t, up, sink, conf)

	if _, err := m.AddChat(-100200); err != nil {
		t.Fatalf("add chat: %v", err)
	}
	var seen []entity.SyncProgress
	if err := m.SyncChat(context.Background(), -100200, func(p entity.SyncProgress) {
		seen = append(seen, p)
	}); err != nil {
		t.Fatalf("sync: %v", err)
	}

	p, ok := m.GetProgress(-100200)
	if !ok || p.Status != entity.SyncCompleted {
		t.Fatalf("progress = %+v", p)
	}
	if p.SyncedCount != 25 || p.TotalCount != 25 {
		t.Fatalf("counts = %d/%d, want 25/25", p.SyncedCount, p.TotalCount)
	}
	if p.ProgressPercent != 100 {
		t.Fatalf("percent = %v", p.ProgressPercent)
	}
	if len(sink.docs) != 25 {
		t.Fatalf("indexed %d docs, want 25", len(sink.docs))
	}
	if sink.flushes == 0 {
		t.Fatal("completed sync must flush the shared indexer")
	}
	if len(seen) == 0 {
		t.Fatal("progress callback never invoked")
	}

	// checkpoint survives a manager restart
	m2 := newManager(t, up, sink, conf)
	p2, ok := m2.GetProgress(-100200)
	if !ok || p2.Status != entity.SyncCompleted || p2.SyncedCount != 25 {
		t.Fatalf("restart progress = %+v", p2)
	}
}

func TestManager_SyncedCountSkipsUnsearchable(t *testing.T) {
	msgs := history(-100200, 9)
	// service messages carry no text or caption and are not indexed
	msgs[1].Text = ""
	msgs[4].Text = ""
	msgs[7].Text = ""
	up := &fakeUpstream{messages: msgs}
	sink := &fakeSink{}
	m := newManager(t, up, sink, testConf(t))

	m.AddChat(-100200)
	if err := m.SyncChat(context.Background(), -100200, nil); err != nil {
		t.Fatalf("sync: %v", err)
	}

	p, _ := m.GetProgress(-100200)
	if p.Status != entity.SyncCompleted {
		t.Fatalf("status = %s", p.Status)
	}
	if p.SyncedCount != 6 {
		t.Fatalf("synced_count = %d, want 6 indexed", p.SyncedCount)
	}
	if len(sink.docs) != 6 {
		t.Fatalf("indexed %d docs, want 6", len(sink.docs))
	}
}

func TestManager_AddChatStates(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 5)}
	m := newManager(t, up, &fakeSink{}, testConf(t))

	if _, err := m.AddChat(-100200); err != nil {
		t.Fatalf("add: %v", err)
	}
	if _, err := m.AddChat(-100200); !errors.Is(err, ErrAlreadySyncing) {
		t.Fatalf("re-add pending = %v, want ErrAlreadySyncing", err)
	}
	if err := m.SyncChat(context.Background(), -100200, nil); err != nil {
		t.Fatalf("sync: %v", err)
	}
	// completed chats can be re-enrolled for a fresh sync
	p, err := m.AddChat(-100200)
	if err != nil {
		t.Fatalf("re-add completed: %v", err)
	}
	if p.Status != entity.SyncPending || p.SyncedCount != 0 {
		t.Fatalf("re-enrolled progress = %+v", p)
	}
}

func TestManager_PauseResume(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 5)}
	m := newManager(t, up, &fakeSink{}, testConf(t))

	if err := m.PauseChat(-1); !errors.Is(err, ErrUnknownChat) {
		t.Fatalf("pause unknown = %v", err)
	}
	m.AddChat(-100200)
	if err := m.PauseChat(-100200); err != nil {
		t.Fatalf("pause: %v", err)
	}
	p, _ := m.GetProgress(-100200)
	if p.Status != entity.SyncPaused {
		t.Fatalf("status = %s", p.Status)
	}
	if err := m.ResumeChat(-100200); err != nil {
		t.Fatalf("resume: %v", err)
	}
	p, _ = m.GetProgress(-100200)
	if p.Status != entity.SyncPending {
		t.Fatalf("status after resume = %s", p.Status)
	}
}

func TestManager_PermissionErrorFails(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 5), countErr: upstream.ErrChannelPrivate}
	m := newManager(t, up, &fakeSink{}, testConf(t))

	m.AddChat(-100200)
	if err := m.SyncChat(context.Background(), -100200, nil); err == nil {
		t.Fatal("expected error")
	}
	p, _ := m.GetProgress(-100200)
	if p.Status != entity.SyncFailed {
		t.Fatalf("status = %s, want failed", p.Status)
	}
	if p.LastError == "" {
		t.Fatal("last_error not recorded")
	}
	// a failed chat can be re-enrolled
	if _, err := m.AddChat(-100200); err != nil {
		t.Fatalf("re-add failed chat: %v", err)
	}
}

func TestManager_RateLimitPausesAndRetries(t *testing.T) {
	up := &fakeUpstream{
		messages: history(-100200, 5),
		histErr:  &upstream.RateLimitedError{Wait: 30 * time.Second},
		failOnce: true,
	}
	m := newManager(t, up, &fakeSink{}, testConf(t))

	var slept time.Duration
	m.sleep = func(d time.Duration) { slept += d }

	m.AddChat(-100200)
	if err := m.SyncChat(context.Background(), -100200, nil); err != nil {
		t.Fatalf("sync after flood wait: %v", err)
	}
	if slept < 30*time.Second {
		t.Fatalf("slept %v, want the requested 30s wait", slept)
	}
	p, _ := m.GetProgress(-100200)
	if p.Status != entity.SyncCompleted {
		t.Fatalf("status = %s, want completed after retry", p.Status)
	}
}

func TestManager_TransientErrorGoesBackToPending(t *testing.T) {
	up := &fakeUpstream{
		messages: history(-100200, 5),
		histErr:  &upstream.Error{Kind: upstream.KindTransient, Detail: "gateway hiccup"},
		failOnce: true,
	}
	m := newManager(t, up, &fakeSink{}, testConf(t))

	m.AddChat(-100200)
	if err := m.SyncChat(context.Background(), -100200, nil); err == nil {
		t.Fatal("expected transient error to surface")
	}
	p, _ := m.GetProgress(-100200)
	if p.Status != entity.SyncPending {
		t.Fatalf("status = %s, want pending for the worker to retry", p.Status)
	}
	if p.ErrorCount != 1 {
		t.Fatalf("error_count = %d", p.ErrorCount)
	}
}

func TestManager_RetryBudgetExhausted(t *testing.T) {
	up := &fakeUpstream{
		messages: history(-100200, 5),
		histErr:  &upstream.Error{Kind: upstream.KindTransient, Detail: "gateway down"},
	}
	conf := testConf(t)
	conf.MaxRetries = 2
	m := newManager(t, up, &fakeSink{}, conf)

	m.AddChat(-100200)
	for i := 0; i < 2; i++ {
		m.SyncChat(context.Background(), -100200, nil)
	}
	p, _ := m.GetProgress(-100200)
	if p.Status != entity.SyncFailed {
		t.Fatalf("status = %s, want failed after retry budget", p.Status)
	}
}

func TestManager_ResumeFromCheckpoint(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 30)}
	sink := &fakeSink{}
	conf := testConf(t)
	m := newManager(t, up, sink, conf)

	m.AddChat(-100200)
	// simulate a crash after the first batch: pause at the first boundary
	first := true
	err := m.SyncChat(context.Background(), -100200, func(p entity.SyncProgress) {
		if first {
			first = false
			m.PauseChat(-100200)
		}
	})
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	p, _ := m.GetProgress(-100200)
	if p.SyncedCount != 10 || p.LastMessageId != 21 {
		t.Fatalf("after pause: synced=%d last=%d", p.SyncedCount, p.LastMessageId)
	}

	// restart: in_progress/paused records come back as pending
	m2 := newManager(t, up, sink, conf)
	p2, _ := m2.GetProgress(-100200)
	if p2.Status != entity.SyncPending {
		t.Fatalf("restart status = %s", p2.Status)
	}
	if err := m2.SyncChat(context.Background(), -100200, nil); err != nil {
		t.Fatalf("resume sync: %v", err)
	}
	p2, _ = m2.GetProgress(-100200)
	if p2.Status != entity.SyncCompleted || p2.SyncedCount != 30 {
		t.Fatalf("resumed progress = %+v", p2)
	}
	// resumed portion starts strictly below the checkpointed message id
	for _, d := range sink.docs[10:] {
		if d.MessageId >= 21 {
			t.Fatalf("resume re-fetched message %d", d.MessageId)
		}
	}
}

func TestManager_SummaryAndClearCompleted(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 5)}
	m := newManager(t, up, &fakeSink{}, testConf(t))

	m.AddChat(-100200)
	m.AddChat(-100300)
	m.PauseChat(-100300)
	m.SyncChat(context.Background(), -100200, nil)

	s := m.GetSummary()
	if s.TotalChats != 2 || s.Completed != 1 || s.Paused != 1 {
		t.Fatalf("summary = %+v", s)
	}
	if n := m.ClearCompleted(); n != 1 {
		t.Fatalf("cleared %d, want 1", n)
	}
	if _, ok := m.GetProgress(-100200); ok {
		t.Fatal("completed record survived ClearCompleted")
	}
}

func TestWorker_DrainsPending(t *testing.T) {
	up := &fakeUpstream{messages: history(-100200, 8)}
	sink := &fakeSink{}
	m := newManager(t, up, sink, testConf(t))

	var mu sync.Mutex
	var final entity.SyncProgress
	m.Notify(func(p entity.SyncProgress) {
		mu.Lock()
		final = p
		mu.Unlock()
	})

	m.AddChat(-100200)
	ctx := context.Background()
	m.StartWorker(ctx)
	defer m.StopWorker(ctx)

	deadline := time.Now().Add(3 * time.Second)
	for {
		if p, ok := m.GetProgress(-100200); ok && p.Status == entity.SyncCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("worker never completed the pending chat")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := m.StopWorker(ctx); err != nil {
		t.Fatalf("stop worker: %v", err)
	}
	// second stop is a no-op
	if err := m.StopWorker(ctx); err != nil {
		t.Fatalf("stop worker again: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if final.Status != entity.SyncCompleted || final.SyncedCount != 8 {
		t.Fatalf("notify snapshot = %+v", final)
	}
}
