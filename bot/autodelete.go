package bot

import (
	"log/slog"
	"sync"
	"time"
)

// paginated replies in groups are removed after this interval unless the
// user keeps navigating
const autoDeleteDelay = 120 * time.Second

type deleteKey struct {
	chatId    int64
	messageId int64
}

// autoDelete schedules message deletions keyed by (chat, message).
// Rescheduling under the same key cancels the previous timer.
type autoDelete struct {
	delete func(chatId, messageId int64)
	log    *slog.Logger

	mu     sync.Mutex
	timers map[deleteKey]*time.Timer
	closed bool
}

func newAutoDelete(del func(chatId, messageId int64), log *slog.Logger) *autoDelete {
	return &autoDelete{
		delete: del,
		log:    log,
		timers: make(map[deleteKey]*time.Timer),
	}
}

// Schedule arms (or re-arms) deletion of one message after delay.
func (a *autoDelete) Schedule(chatId, messageId int64, delay time.Duration) {
	key := deleteKey{chatId: chatId, messageId: messageId}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	if timer, ok := a.timers[key]; ok {
		timer.Stop()
	}
	a.timers[key] = time.AfterFunc(delay, func() {
		a.mu.Lock()
		delete(a.timers, key)
		a.mu.Unlock()
		// a Cancel racing the fired timer may still see this delete run;
		// deleting an already-deleted message is harmless
		a.delete(chatId, messageId)
	})
}

// Cancel disarms a pending deletion, reporting whether one existed.
func (a *autoDelete) Cancel(chatId, messageId int64) bool {
	key := deleteKey{chatId: chatId, messageId: messageId}
	a.mu.Lock()
	defer a.mu.Unlock()
	timer, ok := a.timers[key]
	if !ok {
		return false
	}
	timer.Stop()
	delete(a.timers, key)
	return true
}

// Stop disarms everything; used on shutdown.
func (a *autoDelete) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	for key, timer := range a.timers {
		timer.Stop()
		delete(a.timers, key)
	}
}

// Pending returns the number of armed timers.
func (a *autoDelete) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.timers)
}
