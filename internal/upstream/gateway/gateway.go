// Package gateway is the HTTP client for the account-session gateway, the
// process holding the user-account MTProto session. The gateway exposes
// history, live updates and message counts over a small REST contract;
// rate limits surface as 429 with a retry_after body.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"tgindex/internal/upstream"
	"tgindex/lib/sl"
)

// The updates long poll holds the connection for its whole window, so the
// client deadline needs headroom beyond the configured timeout or polls
// abort right at the boundary.
const pollHeadroom = 5 * time.Second

type Client struct {
	baseURL string
	client  *http.Client
	log     *slog.Logger
}

func New(baseURL string, timeout time.Duration, log *slog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: timeout + pollHeadroom,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     30 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		log: log.With(sl.Module("upstream.gateway")),
	}
}

type errorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	RetryAfter int    `json:"retry_after,omitempty"`
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return &upstream.Error{Kind: upstream.KindPermanent, Detail: err.Error()}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &upstream.Error{Kind: upstream.KindTransient, Detail: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.mapError(resp)
	}
	if err = json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &upstream.Error{Kind: upstream.KindPermanent, Detail: fmt.Sprintf("decode response: %v", err)}
	}
	return nil
}

// mapError translates gateway failures into the typed error variants the
// sync manager dispatches on.
func (c *Client) mapError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var eb errorBody
	_ = json.Unmarshal(body, &eb)

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		wait := eb.RetryAfter
		if wait == 0 {
			if s := resp.Header.Get("Retry-After"); s != "" {
				wait, _ = strconv.Atoi(s)
			}
		}
		if wait == 0 {
			wait = 1
		}
		return &upstream.RateLimitedError{Wait: time.Duration(wait) * time.Second}
	case http.StatusForbidden:
		if eb.Error == "ADMIN_REQUIRED" {
			return upstream.ErrAdminRequired
		}
		return upstream.ErrChannelPrivate
	default:
		kind := upstream.KindPermanent
		if resp.StatusCode >= 500 {
			kind = upstream.KindTransient
		}
		detail := eb.Message
		if detail == "" {
			detail = fmt.Sprintf("status %d", resp.StatusCode)
		}
		return &upstream.Error{Kind: kind, Detail: detail}
	}
}

func (c *Client) HistoryCount(ctx context.Context, chatId int64) (int, error) {
	q := url.Values{"chat_id": {strconv.FormatInt(chatId, 10)}}
	var out struct {
		Count int `json:"count"`
	}
	if err := c.get(ctx, "/api/v1/history/count", q, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (c *Client) History(ctx context.Context, chatId, offsetId int64, limit int) ([]upstream.Message, error) {
	q := url.Values{
		"chat_id":   {strconv.FormatInt(chatId, 10)},
		"offset_id": {strconv.FormatInt(offsetId, 10)},
		"limit":     {strconv.Itoa(limit)},
	}
	var out struct {
		Messages []upstream.Message `json:"messages"`
	}
	if err := c.get(ctx, "/api/v1/history", q, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (c *Client) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]upstream.Event, error) {
	q := url.Values{
		"offset":  {strconv.FormatInt(offset, 10)},
		"timeout": {strconv.Itoa(int(timeout.Seconds()))},
	}
	var out struct {
		Events []upstream.Event `json:"events"`
	}
	if err := c.get(ctx, "/api/v1/updates", q, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}
