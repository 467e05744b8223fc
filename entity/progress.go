package entity

// Sync status values. Transitions: pending -> in_progress -> completed,
// failed or paused; paused -> pending (resume) and failed -> pending
// (re-enroll) by operator action.
const (
	SyncPending    = "pending"
	SyncInProgress = "in_progress"
	SyncCompleted  = "completed"
	SyncFailed     = "failed"
	SyncPaused     = "paused"
)

// SyncProgress is the per-chat state of a history backfill. It is persisted
// to the checkpoint file after every flushed batch, so a restart loses at
// most one batch of work.
type SyncProgress struct {
	ChatId          int64   `json:"chat_id"`
	TotalCount      int     `json:"total_count"`
	SyncedCount     int     `json:"synced_count"`
	LastMessageId   int64   `json:"last_message_id,omitempty"`
	Status          string  `json:"status"`
	ErrorCount      int     `json:"error_count"`
	LastError       string  `json:"last_error,omitempty"`
	StartedAt       string  `json:"started_at,omitempty"`
	CompletedAt     string  `json:"completed_at,omitempty"`
	LastCheckpoint  string  `json:"last_checkpoint,omitempty"`
	ProgressPercent float64 `json:"progress_percent"`
}

// Percent recomputes the derived progress ratio, rounded to two decimals.
func (p *SyncProgress) Percent() float64 {
	if p.TotalCount <= 0 {
		return 0
	}
	return float64(int(float64(p.SyncedCount)/float64(p.TotalCount)*100*100)) / 100
}

// Checkpoint is the on-disk shape of the sync progress file.
type Checkpoint struct {
	LastUpdated string         `json:"last_updated"`
	Chats       []SyncProgress `json:"chats"`
}

// SyncSummary aggregates the progress map for status reporting.
type SyncSummary struct {
	TotalChats      int     `json:"total_chats"`
	Completed       int     `json:"completed"`
	InProgress      int     `json:"in_progress"`
	Failed          int     `json:"failed"`
	Pending         int     `json:"pending"`
	Paused          int     `json:"paused"`
	TotalMessages   int     `json:"total_messages"`
	SyncedMessages  int     `json:"synced_messages"`
	ProgressPercent float64 `json:"progress_percent"`
}
