// Package searchclient speaks the search engine's REST contract. The
// engine's indexing and ranking internals are a black box; this client is
// the only place that knows its wire paths.
package searchclient

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

// dedup walks the whole index, so it gets its own generous deadline.
const dedupTimeout = 600 * time.Second

type Client struct {
	api *apiclient.Client
	log *slog.Logger
}

func New(baseURL string, timeout time.Duration, maxRetries int, auth apiclient.TokenSource, log *slog.Logger) *Client {
	return &Client{
		api: apiclient.New(baseURL, entity.ServiceSearch, timeout, maxRetries, auth, log),
		log: log.With(sl.Module("searchclient")),
	}
}

func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.api.Do(ctx, http.MethodGet, "/health", nil, nil, &out)
}

func (c *Client) Ping(ctx context.Context) (*entity.PingResponse, error) {
	var out entity.PingResponse
	if err := c.api.Do(ctx, http.MethodGet, "/api/v1/ping", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Upsert(ctx context.Context, doc entity.Document) error {
	var out struct {
		Success bool `json:"success"`
	}
	return c.api.Do(ctx, http.MethodPost, "/api/v1/upsert", nil, doc, &out)
}

func (c *Client) UpsertBatch(ctx context.Context, docs []entity.Document) (*entity.BatchUpsertResponse, error) {
	body := struct {
		Messages []entity.Document `json:"messages"`
	}{Messages: docs}
	var out entity.BatchUpsertResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/upsert/batch", nil, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Search(ctx context.Context, req entity.SearchRequest) (*entity.SearchResponse, error) {
	var out entity.SearchResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/search", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Clear(ctx context.Context) error {
	var out struct {
		Success bool `json:"success"`
	}
	return c.api.Do(ctx, http.MethodDelete, "/api/v1/clear", nil, nil, &out)
}

func (c *Client) DeleteChat(ctx context.Context, chatId int64) (*entity.DeleteResponse, error) {
	q := url.Values{"chat_id": {strconv.FormatInt(chatId, 10)}}
	var out entity.DeleteResponse
	if err := c.api.Do(ctx, http.MethodDelete, "/api/v1/messages", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteUser(ctx context.Context, userId int64) (*entity.DeleteResponse, error) {
	var out entity.DeleteResponse
	path := "/api/v1/users/" + strconv.FormatInt(userId, 10)
	if err := c.api.Do(ctx, http.MethodDelete, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SoftDelete marks one document deleted without removing it; excluded from
// default search but retained in the index.
func (c *Client) SoftDelete(ctx context.Context, chatId, messageId int64) error {
	body := struct {
		ChatId    int64 `json:"chat_id"`
		MessageId int64 `json:"message_id"`
	}{ChatId: chatId, MessageId: messageId}
	var out struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	return c.api.Do(ctx, http.MethodPost, "/api/v1/messages/soft-delete", nil, body, &out)
}

func (c *Client) Dedup(ctx context.Context) (*entity.DedupResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, dedupTimeout)
	defer cancel()
	var out entity.DedupResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/dedup", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) ClearCommands(ctx context.Context) (*entity.DeleteResponse, error) {
	var out entity.DeleteResponse
	if err := c.api.Do(ctx, http.MethodDelete, "/api/v1/commands", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UserStats(ctx context.Context, req entity.UserStatsRequest) (*entity.UserStatsResponse, error) {
	var out entity.UserStatsResponse
	if err := c.api.Do(ctx, http.MethodPost, "/api/v1/stats/user", nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
