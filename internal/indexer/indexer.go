// Package indexer buffers document upserts and ships them to the search
// engine in batches, trading a bounded ingestion delay for far fewer HTTP
// round trips.
package indexer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"tgindex/entity"
	"tgindex/lib/sl"
)

// ErrClosed is returned by Upsert after Shutdown.
var ErrClosed = errors.New("indexer is shut down")

// Engine is the slice of the search client the indexer needs.
type Engine interface {
	UpsertBatch(ctx context.Context, docs []entity.Document) (*entity.BatchUpsertResponse, error)
}

// Stats is a snapshot of indexer counters.
type Stats struct {
	Buffered     int   `json:"buffered"`
	Flushed      int64 `json:"flushed"`
	Batches      int64 `json:"batches"`
	Errors       int64 `json:"errors"`
	DroppedDocs  int64 `json:"dropped_docs"`
	LastFlushAt  int64 `json:"last_flush_at,omitempty"`
	LastBatchLen int   `json:"last_batch_len,omitempty"`
}

// Buffered accumulates documents and flushes when the buffer reaches the
// configured size or the flush interval elapses, whichever comes first.
// A failed flush drops its batch after logging; live traffic must not
// back up behind a broken engine.
type Buffered struct {
	engine    Engine
	batchSize int
	interval  time.Duration
	log       *slog.Logger

	mu     sync.Mutex
	buf    []entity.Document
	stats  Stats
	closed bool

	stopCh chan struct{}
	doneCh chan struct{}
}

func NewBuffered(engine Engine, batchSize int, interval time.Duration, log *slog.Logger) *Buffered {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	b := &Buffered{
		engine:    engine,
		batchSize: batchSize,
		interval:  interval,
		log:       log.With(sl.Module("indexer")),
		buf:       make([]entity.Document, 0, batchSize),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	go b.loop()
	return b
}

// Upsert queues one document. The newest version of a document id wins:
// within a buffered batch later appends supersede earlier ones on the
// engine side, so no in-buffer dedup is needed.
func (b *Buffered) Upsert(ctx context.Context, doc entity.Document) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	b.buf = append(b.buf, doc)
	full := len(b.buf) >= b.batchSize
	b.mu.Unlock()

	if full {
		return b.Flush(ctx)
	}
	return nil
}

// Flush sends everything currently buffered. The lock is held only while
// swapping the buffer out and while recording the outcome, never across
// the engine call.
func (b *Buffered) Flush(ctx context.Context) error {
	b.mu.Lock()
	if len(b.buf) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.buf
	b.buf = make([]entity.Document, 0, b.batchSize)
	b.mu.Unlock()

	resp, err := b.engine.UpsertBatch(ctx, batch)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.stats.Batches++
	b.stats.LastFlushAt = time.Now().Unix()
	b.stats.LastBatchLen = len(batch)
	if err != nil {
		b.stats.Errors++
		b.stats.DroppedDocs += int64(len(batch))
		b.log.With(
			slog.Int("batch_len", len(batch)),
			sl.Err(err),
		).Error("batch flush failed, dropping batch")
		return err
	}
	b.stats.Flushed += int64(len(batch))
	if resp != nil && resp.FailedCount > 0 {
		b.stats.DroppedDocs += int64(resp.FailedCount)
		b.log.With(
			slog.Int("failed", resp.FailedCount),
			slog.Int("indexed", resp.IndexedCount),
		).Warn("engine rejected part of a batch")
	}
	return nil
}

// Stats returns a copy of the counters plus the current buffer depth.
func (b *Buffered) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := b.stats
	s.Buffered = len(b.buf)
	return s
}

// Shutdown stops the background flusher and performs a final flush. Safe
// to call once; subsequent Upserts fail with ErrClosed.
func (b *Buffered) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.stopCh)
	<-b.doneCh

	err := b.Flush(ctx)
	s := b.Stats()
	b.log.With(
		slog.Int64("flushed", s.Flushed),
		slog.Int64("batches", s.Batches),
		slog.Int64("errors", s.Errors),
		slog.Int64("dropped", s.DroppedDocs),
	).Info("indexer stopped")
	return err
}

func (b *Buffered) loop() {
	defer close(b.doneCh)
	t := time.NewTicker(b.interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := b.Flush(context.Background()); err != nil {
				// already logged in Flush
				continue
			}
		case <-b.stopCh:
			return
		}
	}
}
