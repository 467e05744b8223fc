package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"tgindex/entity"
)

type fakeEngine struct {
	mu      sync.Mutex
	batches [][]entity.Document
	fail    bool
	block   chan struct{}
}

func (f *fakeEngine) UpsertBatch(ctx context.Context, docs []entity.Document) (*entity.BatchUpsertResponse, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, errors.New("engine down")
	}
	cp := make([]entity.Document, len(docs))
	copy(cp, docs)
	f.batches = append(f.batches, cp)
	return &entity.BatchUpsertResponse{Success: true, IndexedCount: len(docs)}, nil
}

func (f *fakeEngine) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doc(chatId, msgId int64) entity.Document {
	return entity.Document{
		Id:        entity.CompositeId(chatId, msgId),
		MessageId: msgId,
		Text:      fmt.Sprintf("message %d", msgId),
		Chat:      entity.ChatInfo{Id: chatId, Type: entity.ChatTypeGroup},
	}
}

func TestBuffered_FlushOnSize(t *testing.T) {
	engine := &fakeEngine{}
	b := NewBuffered(engine, 3, time.Hour, discard())
	defer b.Shutdown(context.Background())

	ctx := context.Background()
	for i := int64(1); i <= 2; i++ {
		if err := b.Upsert(ctx, doc(-100123, i)); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	if got := engine.batchCount(); got != 0 {
		t.Fatalf("flushed before buffer full: %d batches", got)
	}
	if err := b.Upsert(ctx, doc(-100123, 3)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if got := engine.batchCount(); got != 1 {
		t.Fatalf("batches = %d, want 1", got)
	}
	if got := len(engine.batches[0]); got != 3 {
		t.Fatalf("batch len = %d, want 3", got)
	}
	s := b.Stats()
	if s.Flushed != 3 || s.Buffered != 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestBuffered_FlushOnInterval(t *testing.T) {
	engine := &fakeEngine{}
	b := NewBuffered(engine, 1000, 20*time.Millisecond, discard())
	defer b.Shutdown(context.Background())

	if err := b.Upsert(context.Background(), doc(-100123, 1)); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for engine.batchCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("ticker never flushed the buffer")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBuffered_FailedFlushDropsBatch(t *testing.T) {
	engine := &fakeEngine{fail: true}
	b := NewBuffered(engine, 2, time.Hour, discard())
	defer b.Shutdown(context.Background())

	ctx := context.Background()
	b.Upsert(ctx, doc(-100123, 1))
	if err := b.Upsert(ctx, doc(-100123, 2)); err == nil {
		t.Fatal("expected flush error")
	}
	s := b.Stats()
	if s.Errors != 1 || s.DroppedDocs != 2 {
		t.Fatalf("stats = %+v, want 1 error and 2 dropped", s)
	}
	if s.Buffered != 0 {
		t.Fatalf("failed batch must not be requeued, buffered = %d", s.Buffered)
	}

	// the indexer keeps accepting new documents after a failure
	engine.mu.Lock()
	engine.fail = false
	engine.mu.Unlock()
	b.Upsert(ctx, doc(-100123, 3))
	if err := b.Upsert(ctx, doc(-100123, 4)); err != nil {
		t.Fatalf("upsert after recovery: %v", err)
	}
	if got := engine.batchCount(); got != 1 {
		t.Fatalf("batches after recovery = %d, want 1", got)
	}
}

func TestBuffered_UpsertDoesNotBlockDuringFlush(t *testing.T) {
	engine := &fakeEngine{block: make(chan struct{})}
	b := NewBuffered(engine, 2, time.Hour, discard())

	ctx := context.Background()
	b.Upsert(ctx, doc(-100123, 1))
	go b.Upsert(ctx, doc(-100123, 2)) // triggers flush, parks on engine

	// give the flusher time to take the buffer out and park
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		b.Upsert(ctx, doc(-100123, 3))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("upsert blocked behind an in-flight flush")
	}

	close(engine.block)
	b.Shutdown(ctx)
}

func TestBuffered_ShutdownFlushesRemainder(t *testing.T) {
	engine := &fakeEngine{}
	b := NewBuffered(engine, 100, time.Hour, discard())

	ctx := context.Background()
	b.Upsert(ctx, doc(-100123, 1))
	b.Upsert(ctx, doc(-100123, 2))
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if got := engine.batchCount(); got != 1 {
		t.Fatalf("batches = %d, want final flush", got)
	}
	if err := b.Upsert(ctx, doc(-100123, 3)); !errors.Is(err, ErrClosed) {
		t.Fatalf("upsert after shutdown = %v, want ErrClosed", err)
	}
	if err := b.Shutdown(ctx); err != nil {
		t.Fatalf("second shutdown: %v", err)
	}
}
