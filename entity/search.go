package entity

// SearchRequest is the body of POST /api/v1/search on the search engine.
type SearchRequest struct {
	Keyword        string  `json:"keyword"`
	Page           int     `json:"page"`
	PageSize       int     `json:"page_size"`
	ExactMatch     bool    `json:"exact_match"`
	ChatType       string  `json:"chat_type,omitempty"`
	Username       string  `json:"username,omitempty"`
	ChatId         *int64  `json:"chat_id,omitempty"`
	BlockedUsers   []int64 `json:"blocked_users,omitempty"`
	IncludeDeleted bool    `json:"include_deleted"`
}

// SearchResponse is what the engine returns for a search.
type SearchResponse struct {
	Hits        []Document `json:"hits"`
	TotalHits   int64      `json:"total_hits"`
	TotalPages  int        `json:"total_pages"`
	Page        int        `json:"page"`
	HitsPerPage int        `json:"hits_per_page"`
	TookMs      int64      `json:"took_ms"`
}

// BatchUpsertResponse reports the outcome of a batch upsert.
type BatchUpsertResponse struct {
	Success      bool     `json:"success"`
	IndexedCount int      `json:"indexed_count"`
	FailedCount  int      `json:"failed_count"`
	Errors       []string `json:"errors,omitempty"`
}

// PingResponse is the engine status snapshot.
type PingResponse struct {
	Status         string `json:"status"`
	Engine         string `json:"engine"`
	TotalDocuments int64  `json:"total_documents"`
}

// DeleteResponse reports a bulk delete by chat or user.
type DeleteResponse struct {
	Success      bool  `json:"success"`
	DeletedCount int64 `json:"deleted_count"`
}

// DedupResponse reports an index deduplication run.
type DedupResponse struct {
	Success           bool  `json:"success"`
	DuplicatesFound   int64 `json:"duplicates_found"`
	DuplicatesRemoved int64 `json:"duplicates_removed"`
}

// UserStatsRequest is the body of POST /api/v1/stats/user.
type UserStatsRequest struct {
	GroupId         int64 `json:"group_id"`
	UserId          int64 `json:"user_id"`
	FromTimestamp   int64 `json:"from_timestamp"`
	ToTimestamp     int64 `json:"to_timestamp"`
	IncludeMentions bool  `json:"include_mentions"`
	IncludeDeleted  bool  `json:"include_deleted"`
}

// UserStatsResponse is the per-user activity breakdown for a group.
type UserStatsResponse struct {
	UserMessageCount  int64   `json:"user_message_count"`
	GroupMessageTotal int64   `json:"group_message_total"`
	UserRatio         float64 `json:"user_ratio"`
	MentionsOut       int64   `json:"mentions_out,omitempty"`
	MentionsIn        int64   `json:"mentions_in,omitempty"`
}
