// Package syncclient lets the bot drive the ingestor's Sync Control API.
package syncclient

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tgindex/entity"
	"tgindex/internal/apiclient"
	"tgindex/lib/sl"
)

type Client struct {
	api *apiclient.Client
	log *slog.Logger
}

func New(baseURL string, timeout time.Duration, maxRetries int, auth apiclient.TokenSource, log *slog.Logger) *Client {
	return &Client{
		api: apiclient.New(baseURL, entity.ServiceUserbot, timeout, maxRetries, auth, log),
		log: log.With(sl.Module("syncclient")),
	}
}

type SyncResult struct {
	Success bool   `json:"success"`
	ChatId  int64  `json:"chat_id"`
	Message string `json:"message"`
	Status  string `json:"status,omitempty"`
}

type StatusResult struct {
	Timestamp string                `json:"timestamp"`
	Chats     []entity.SyncProgress `json:"chats"`
	Summary   *entity.SyncSummary   `json:"summary,omitempty"`
}

func (c *Client) AddSync(ctx context.Context, chatId int64, requestedBy int64) (*SyncResult, error) {
	body := struct {
		ChatId      int64 `json:"chat_id"`
		RequestedBy int64 `json:"requested_by,omitempty"`
	}{ChatId: chatId, RequestedBy: requestedBy}
	var out SyncResult
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/sync", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Status(ctx context.Context, chatId int64) (*StatusResult, error) {
	var q url.Values
	if chatId != 0 {
		q = url.Values{"chat_id": {strconv.FormatInt(chatId, 10)}}
	}
	var out StatusResult
	if err := c.api.Do(ctx, http.MethodGet, "/api/v1/sync/status", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Pause(ctx context.Context, chatId int64) (*SyncResult, error) {
	body := struct {
		ChatId int64 `json:"chat_id"`
	}{ChatId: chatId}
	var out SyncResult
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/sync/pause", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Resume(ctx context.Context, chatId int64) (*SyncResult, error) {
	body := struct {
		ChatId int64 `json:"chat_id"`
	}{ChatId: chatId}
	var out SyncResult
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/sync/resume", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
