package syncmanager

import (
	"context"
	"log/slog"
	"time"

	"tgindex/entity"
	"tgindex/lib/sl"
)

const (
	scanInterval  = time.Second
	errorCooldown = 5 * time.Second
)

// StartWorker launches the single background goroutine that drains pending
// chats one at a time. Calling it twice is a no-op.
func (m *Manager) StartWorker(ctx context.Context) {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()
	if m.stopCh != nil {
		return
	}
	m.stopCh = make(chan struct{})
	m.doneCh = make(chan struct{})
	go m.workerLoop(ctx, m.stopCh, m.doneCh, m.notify)
	m.log.Info("sync worker started")
}

// StopWorker signals the worker and waits for it to finish the chat it is
// on, bounded by the context deadline.
func (m *Manager) StopWorker(ctx context.Context) error {
	m.workerMu.Lock()
	defer m.workerMu.Unlock()
	if m.stopCh == nil {
		return nil
	}
	close(m.stopCh)
	select {
	case <-m.doneCh:
	case <-ctx.Done():
		return ctx.Err()
	}
	m.stopCh = nil
	m.doneCh = nil
	m.log.Info("sync worker stopped")
	return nil
}

// CurrentChat returns the chat id the worker is syncing, 0 when idle.
func (m *Manager) CurrentChat() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

func (m *Manager) workerLoop(ctx context.Context, stopCh, doneCh chan struct{}, cb ProgressFunc) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		chatId, ok := m.nextPending()
		if !ok {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(scanInterval):
			}
			continue
		}

		m.mu.Lock()
		m.current = chatId
		m.mu.Unlock()

		err := m.SyncChat(ctx, chatId, cb)

		m.mu.Lock()
		m.current = 0
		m.mu.Unlock()

		if err != nil && ctx.Err() == nil {
			m.log.With(sl.Chat(chatId), sl.Err(err), slog.Duration("cooldown", errorCooldown)).Warn("sync error, cooling down")
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(errorCooldown):
			}
		}
	}
}

func (m *Manager) nextPending() (int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, p := range m.chats {
		if p.Status == entity.SyncPending {
			return id, true
		}
	}
	return 0, false
}
