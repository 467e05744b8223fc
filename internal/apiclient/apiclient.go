// Package apiclient carries the behavior shared by every control-plane
// client: a pooled HTTP/2-capable transport, per-request JWT minting and
// automatic retry on 5xx responses.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"tgindex/lib/sl"
)

// TokenSource mints a bearer token for the given target audience. A nil
// TokenSource disables authentication (local development only).
type TokenSource interface {
	GenerateToken(targetAudience string) (string, error)
}

// StatusError is a non-2xx response decoded into the standard error body.
type StatusError struct {
	Code    int
	Err     string
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("status %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("status %d: %s", e.Code, e.Err)
}

type Client struct {
	baseURL    string
	audience   string
	timeout    time.Duration
	http       *http.Client
	maxRetries int
	auth       TokenSource
	log        *slog.Logger
}

func New(baseURL, audience string, timeout time.Duration, maxRetries int, auth TokenSource, log *slog.Logger) *Client {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		audience: audience,
		timeout:  timeout,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     30 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		maxRetries: maxRetries,
		auth:       auth,
		log:        log.With(sl.Module("apiclient"), slog.String("target", audience)),
	}
}

// Do issues one JSON request. body and out may be nil. 5xx responses are
// retried up to maxRetries times; timeouts and 4xx are not.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	// Callers override the default deadline by passing a context that
	// already carries one (dedup does).
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, u, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.auth != nil {
			// A fresh token on every call keeps each request inside the
			// validity window regardless of retry delays.
			token, err := c.auth.GenerateToken(c.audience)
			if err != nil {
				return fmt.Errorf("mint token: %w", err)
			}
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		if resp.StatusCode >= 500 && attempt < c.maxRetries {
			resp.Body.Close()
			lastErr = &StatusError{Code: resp.StatusCode}
			c.log.With(
				slog.String("path", path),
				slog.Int("status", resp.StatusCode),
				slog.Int("attempt", attempt),
			).Warn("retrying request")
			time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
			continue
		}

		err = decode(resp, out)
		resp.Body.Close()
		return err
	}
	return lastErr
}

func decode(resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{Code: resp.StatusCode}
		var eb struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(io.LimitReader(resp.Body, 8192)).Decode(&eb); err == nil {
			se.Err = eb.Error
			se.Message = eb.Message
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
