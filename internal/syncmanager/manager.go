// Package syncmanager replays full chat histories into the search engine,
// resumably, throttled, one chat at a time.
package syncmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"tgindex/entity"
	"tgindex/internal/config"
	"tgindex/internal/upstream"
	"tgindex/lib/clock"
	"tgindex/lib/sl"
)

// Sink is the indexing surface the sync writes through. It is the same
// buffered indexer the live ingest uses, so a completed sync flushes it.
type Sink interface {
	Upsert(ctx context.Context, doc entity.Document) error
	Flush(ctx context.Context) error
}

// ProgressFunc observes per-batch progress during a sync.
type ProgressFunc func(p entity.SyncProgress)

var (
	// ErrAlreadySyncing is returned by AddChat for a chat that is pending,
	// in progress or paused.
	ErrAlreadySyncing = errors.New("chat sync already enrolled")
	// ErrUnknownChat is returned by pause/resume for a chat that was never
	// enrolled.
	ErrUnknownChat = errors.New("chat is not enrolled for sync")
)

type Manager struct {
	upstream upstream.Client
	sink     Sink
	conf     config.SyncConfig
	log      *slog.Logger

	mu      sync.Mutex
	chats   map[int64]*entity.SyncProgress
	current int64 // chat id the worker is syncing right now, 0 if idle

	workerMu sync.Mutex
	stopCh   chan struct{}
	doneCh   chan struct{}
	notify   ProgressFunc

	// sleep is swapped out in tests
	sleep func(time.Duration)
}

// New loads the checkpoint file and returns a manager ready to accept
// enrollments. Records left in_progress by a crash are coerced back to
// pending so the worker re-runs them.
func New(up upstream.Client, sink Sink, conf config.SyncConfig, log *slog.Logger) (*Manager, error) {
	chats, err := loadCheckpoint(conf.CheckpointFile)
	if err != nil {
		return nil, err
	}
	coerced := 0
	for id, p := range chats {
		switch p.Status {
		case entity.SyncCompleted:
			if conf.ClearCompleted {
				delete(chats, id)
			}
		case entity.SyncPending:
		default:
			if conf.ResumeOnRestart {
				p.Status = entity.SyncPending
				coerced++
			}
		}
	}
	m := &Manager{
		upstream: up,
		sink:     sink,
		conf:     conf,
		log:      log.With(sl.Module("syncmanager")),
		chats:    chats,
		sleep:    time.Sleep,
	}
	if len(chats) > 0 {
		m.log.With(
			slog.Int("chats", len(chats)),
			slog.Int("resumed", coerced),
		).Info("checkpoint loaded")
	}
	return m, nil
}

// Notify registers the callback the background worker passes to SyncChat.
// Set it before StartWorker; the final snapshot of a finished chat carries
// Status completed.
func (m *Manager) Notify(cb ProgressFunc) {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()
	m.notify = cb
}

// AddChat enrolls a chat for history sync. Completed chats are reset to
// pending (a deliberate re-sync); chats in any other state are rejected.
func (m *Manager) AddChat(chatId int64) (*entity.SyncProgress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p, ok := m.chats[chatId]; ok {
		switch p.Status {
		case entity.SyncCompleted, entity.SyncFailed:
			*p = entity.SyncProgress{ChatId: chatId, Status: entity.SyncPending}
		default:
			return nil, fmt.Errorf("%w: chat %d is %s", ErrAlreadySyncing, chatId, p.Status)
		}
	} else {
		m.chats[chatId] = &entity.SyncProgress{ChatId: chatId, Status: entity.SyncPending}
	}
	m.persistLocked()
	cp := *m.chats[chatId]
	return &cp, nil
}

// PauseChat requests a cooperative pause; a running sync stops at its next
// batch boundary.
func (m *Manager) PauseChat(chatId int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.chats[chatId]
	if !ok {
		return ErrUnknownChat
	}
	switch p.Status {
	case entity.SyncPending, entity.SyncInProgress:
		p.Status = entity.SyncPaused
		m.persistLocked()
		return nil
	default:
		return fmt.Errorf("chat %d is %s, cannot pause", chatId, p.Status)
	}
}

// ResumeChat puts a paused or failed chat back in the worker's queue.
func (m *Manager) ResumeChat(chatId int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.chats[chatId]
	if !ok {
		return ErrUnknownChat
	}
	switch p.Status {
	case entity.SyncPaused, entity.SyncFailed:
		p.Status = entity.SyncPending
		p.LastError = ""
		m.persistLocked()
		return nil
	default:
		return fmt.Errorf("chat %d is %s, cannot resume", chatId, p.Status)
	}
}

// GetProgress returns a copy of one chat's progress.
func (m *Manager) GetProgress(chatId int64) (*entity.SyncProgress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.chats[chatId]
	if !ok {
		return nil, false
	}
	cp := *p
	cp.ProgressPercent = cp.Percent()
	return &cp, true
}

// GetAllProgress returns a snapshot of every tracked chat.
func (m *Manager) GetAllProgress() []entity.SyncProgress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]entity.SyncProgress, 0, len(m.chats))
	for _, p := range m.chats {
		cp := *p
		cp.ProgressPercent = cp.Percent()
		out = append(out, cp)
	}
	return out
}

// GetSummary aggregates the progress map.
func (m *Manager) GetSummary() entity.SyncSummary {
	m.mu.Lock()
	defer m.mu.Unlock()
	var s entity.SyncSummary
	s.TotalChats = len(m.chats)
	for _, p := range m.chats {
		switch p.Status {
		case entity.SyncCompleted:
			s.Completed++
		case entity.SyncInProgress:
			s.InProgress++
		case entity.SyncFailed:
			s.Failed++
		case entity.SyncPending:
			s.Pending++
		case entity.SyncPaused:
			s.Paused++
		}
		s.TotalMessages += p.TotalCount
		s.SyncedMessages += p.SyncedCount
	}
	if s.TotalMessages > 0 {
		s.ProgressPercent = float64(int(float64(s.SyncedMessages)/float64(s.TotalMessages)*100*100)) / 100
	}
	return s
}

// ClearCompleted drops completed records from the map and the checkpoint.
func (m *Manager) ClearCompleted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, p := range m.chats {
		if p.Status == entity.SyncCompleted {
			delete(m.chats, id)
			n++
		}
	}
	if n > 0 {
		m.persistLocked()
	}
	return n
}

// SyncChat runs the full history sync for one chat on the calling
// goroutine. Pause requests are honored at batch boundaries.
func (m *Manager) SyncChat(ctx context.Context, chatId int64, cb ProgressFunc) error {
	m.mu.Lock()
	p, ok := m.chats[chatId]
	if !ok {
		p = &entity.SyncProgress{ChatId: chatId, Status: entity.SyncPending}
		m.chats[chatId] = p
	}
	p.Status = entity.SyncInProgress
	if p.StartedAt == "" {
		p.StartedAt = clock.Now()
	}
	m.persistLocked()
	total := p.TotalCount
	offsetId := p.LastMessageId
	m.mu.Unlock()

	log := m.log.With(sl.Chat(chatId))

	if total == 0 {
		count, err := m.upstream.HistoryCount(ctx, chatId)
		if err != nil {
			return m.handleUpstreamError(ctx, chatId, err, cb)
		}
		m.mu.Lock()
		p.TotalCount = count
		m.persistLocked()
		m.mu.Unlock()
		log.With(slog.Int("total", count)).Info("history sync started")
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.pauseRequested(chatId) {
			log.Info("sync paused")
			return nil
		}

		batch, err := m.upstream.History(ctx, chatId, offsetId, m.conf.BatchSize)
		if err != nil {
			return m.handleUpstreamError(ctx, chatId, err, cb)
		}
		if len(batch) == 0 {
			break
		}

		indexed := 0
		for _, msg := range batch {
			doc := entity.FromUpstreamMessage(msg)
			if doc.SearchableText() == "" {
				continue
			}
			if err = m.sink.Upsert(ctx, doc); err != nil {
				if failed := m.recordError(chatId, err); failed {
					log.With(sl.Err(err)).Error("sync failed, retry budget exhausted")
					return err
				}
				continue
			}
			indexed++
		}

		// upstream is newest-first, so the batch tail is the oldest message
		// and becomes the resume offset
		offsetId = batch[len(batch)-1].Id

		m.mu.Lock()
		p.SyncedCount += indexed
		p.LastMessageId = offsetId
		p.LastCheckpoint = clock.Now()
		m.persistLocked()
		snapshot := *p
		snapshot.ProgressPercent = snapshot.Percent()
		m.mu.Unlock()

		if cb != nil {
			cb(snapshot)
		}
		log.With(
			slog.Int("synced", snapshot.SyncedCount),
			slog.Int("total", snapshot.TotalCount),
			slog.Int("batch", indexed),
		).Debug("batch indexed")

		if m.conf.DelayBetweenBatches > 0 {
			m.sleep(time.Duration(m.conf.DelayBetweenBatches * float64(time.Second)))
		}
	}

	// the live indexer shares this sink; flush so the tail of the history
	// is searchable immediately
	if err := m.sink.Flush(ctx); err != nil {
		log.With(sl.Err(err)).Warn("final flush failed")
	}

	m.mu.Lock()
	p.Status = entity.SyncCompleted
	p.CompletedAt = clock.Now()
	if p.SyncedCount > p.TotalCount {
		p.TotalCount = p.SyncedCount
	}
	m.persistLocked()
	done := *p
	m.mu.Unlock()

	if cb != nil {
		done.ProgressPercent = done.Percent()
		cb(done)
	}
	log.With(slog.Int("synced", done.SyncedCount)).Info("history sync completed")
	return nil
}

// handleUpstreamError maps an upstream failure to a state transition.
// Rate limits pause the chat, wait and retry the whole sync; permission
// errors fail it permanently.
func (m *Manager) handleUpstreamError(ctx context.Context, chatId int64, err error, cb ProgressFunc) error {
	log := m.log.With(sl.Chat(chatId))

	var rl *upstream.RateLimitedError
	if errors.As(err, &rl) {
		m.mu.Lock()
		if p, ok := m.chats[chatId]; ok {
			p.Status = entity.SyncPaused
			p.LastError = rl.Error()
			m.persistLocked()
		}
		m.mu.Unlock()
		log.With(slog.Duration("wait", rl.Wait)).Warn("rate limited, pausing sync")
		m.sleep(rl.Wait)

		m.mu.Lock()
		if p, ok := m.chats[chatId]; ok && p.Status == entity.SyncPaused {
			p.Status = entity.SyncInProgress
		}
		m.mu.Unlock()
		return m.SyncChat(ctx, chatId, cb)
	}

	if errors.Is(err, upstream.ErrChannelPrivate) || errors.Is(err, upstream.ErrAdminRequired) {
		m.failChat(chatId, err)
		log.With(sl.Err(err)).Error("sync failed, no access")
		return err
	}

	if m.recordError(chatId, err) {
		log.With(sl.Err(err)).Error("sync failed")
		return err
	}

	// transient and retry budget remains: hand the chat back to the worker
	m.mu.Lock()
	if p, ok := m.chats[chatId]; ok && p.Status == entity.SyncInProgress {
		p.Status = entity.SyncPending
		m.persistLocked()
	}
	m.mu.Unlock()
	log.With(sl.Err(err)).Warn("sync interrupted, will retry")
	return err
}

// recordError bumps the error counter and reports whether the chat just
// crossed into failed.
func (m *Manager) recordError(chatId int64, err error) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.chats[chatId]
	if !ok {
		return true
	}
	p.ErrorCount++
	p.LastError = err.Error()
	if !m.conf.RetryOnError || p.ErrorCount >= m.conf.MaxRetries {
		p.Status = entity.SyncFailed
		m.persistLocked()
		return true
	}
	m.persistLocked()
	return false
}

func (m *Manager) failChat(chatId int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.chats[chatId]; ok {
		p.Status = entity.SyncFailed
		p.LastError = err.Error()
		m.persistLocked()
	}
}

func (m *Manager) pauseRequested(chatId int64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.chats[chatId]
	return ok && p.Status == entity.SyncPaused
}

// persistLocked writes the checkpoint; callers hold m.mu. Persistence
// failures are logged, not fatal: the in-memory state stays authoritative.
func (m *Manager) persistLocked() {
	if err := saveCheckpoint(m.conf.CheckpointFile, m.chats); err != nil {
		m.log.With(sl.Err(err)).Error("checkpoint save failed")
	}
}
