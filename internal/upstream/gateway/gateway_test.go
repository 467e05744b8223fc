package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"tgindex/internal/upstream"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNew_ClientOutlivesLongPoll(t *testing.T) {
	c := New("http://gateway", 30*time.Second, discard())
	if c.client.Timeout <= 30*time.Second {
		t.Fatalf("client timeout = %v, must exceed the 30s poll window", c.client.Timeout)
	}
}

func TestClient_MapsRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"error":       "FLOOD_WAIT",
			"retry_after": 17,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, discard())
	_, err := c.History(context.Background(), -100200, 0, 10)
	var rl *upstream.RateLimitedError
	if !errors.As(err, &rl) {
		t.Fatalf("err = %v, want RateLimitedError", err)
	}
	if rl.Wait != 17*time.Second {
		t.Fatalf("wait = %v", rl.Wait)
	}
}

func TestClient_MapsPermissionErrors(t *testing.T) {
	body := map[string]string{"error": "ADMIN_REQUIRED"}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		json.NewEncoder(w).Encode(body)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, discard())
	_, err := c.HistoryCount(context.Background(), -100200)
	if !errors.Is(err, upstream.ErrAdminRequired) {
		t.Fatalf("err = %v, want ErrAdminRequired", err)
	}

	body = map[string]string{"error": "CHANNEL_PRIVATE"}
	_, err = c.HistoryCount(context.Background(), -100200)
	if !errors.Is(err, upstream.ErrChannelPrivate) {
		t.Fatalf("err = %v, want ErrChannelPrivate", err)
	}
}

func TestClient_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second, discard())
	_, err := c.Updates(context.Background(), 0, time.Second)
	var ue *upstream.Error
	if !errors.As(err, &ue) {
		t.Fatalf("err = %v, want upstream.Error", err)
	}
	if ue.Kind != upstream.KindTransient {
		t.Fatalf("kind = %v, want transient", ue.Kind)
	}
}
