package syncapi

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"tgindex/entity"
	"tgindex/internal/auth"
	"tgindex/internal/config"
	"tgindex/internal/msgstore"
	"tgindex/internal/syncmanager"
	"tgindex/internal/upstream"
)

type stubUpstream struct{}

func (stubUpstream) HistoryCount(ctx context.Context, chatId int64) (int, error) { return 0, nil }
func (stubUpstream) History(ctx context.Context, chatId, offsetId int64, limit int) ([]upstream.Message, error) {
	return nil, nil
}
func (stubUpstream) Updates(ctx context.Context, offset int64, timeout time.Duration) ([]upstream.Event, error) {
	return nil, nil
}

type nopSink struct{}

func (nopSink) Upsert(ctx context.Context, doc entity.Document) error { return nil }
func (nopSink) Flush(ctx context.Context) error                       { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testKeys(t *testing.T) (pubPEM, privPEM string) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	pubDER, _ := x509.MarshalPKIXPublicKey(pub)
	privDER, _ := x509.MarshalPKCS8PrivateKey(priv)
	pubPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}))
	privPEM = string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: privDER}))
	return pubPEM, privPEM
}

// newServer spins up the full route tree with a real manager, a real queue
// and real token verification. The returned config shares the server's
// keypair so tests can mint tokens under arbitrary issuers.
func newServer(t *testing.T) (*httptest.Server, *auth.JWT, config.AuthConfig) {
	t.Helper()
	pubPEM, privPEM := testKeys(t)
	conf := config.AuthConfig{UseJWT: true, PublicKeyInline: pubPEM, PrivateKeyInline: privPEM, TokenTTL: 60}

	verifier, err := auth.New(conf, entity.ServiceUserbot, entity.ServiceUserbot)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	// the bot signs with the same key but its own issuer
	caller, err := auth.New(conf, entity.ServiceBot, entity.ServiceBot)
	if err != nil {
		t.Fatalf("caller: %v", err)
	}

	mgr, err := syncmanager.New(stubUpstream{}, nopSink{}, config.SyncConfig{
		CheckpointFile: filepath.Join(t.TempDir(), "checkpoint.json"),
		BatchSize:      10,
		MaxRetries:     3,
	}, discard())
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	queue, err := msgstore.New(filepath.Join(t.TempDir(), "relay.db"), discard())
	if err != nil {
		t.Fatalf("queue: %v", err)
	}
	t.Cleanup(func() { queue.Close() })

	srv := httptest.NewServer(Router(discard(), verifier, []string{entity.ServiceBot}, mgr, queue))
	t.Cleanup(srv.Close)
	return srv, caller, conf
}

func call(t *testing.T, srv *httptest.Server, token, method, path string, body interface{}) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	return resp, data
}

func TestServer_HealthIsOpen(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, body := call(t, srv, "", http.MethodGet, "/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var h struct {
		Status string `json:"status"`
	}
	json.Unmarshal(body, &h)
	if h.Status != "healthy" {
		t.Fatalf("body = %s", body)
	}
}

func TestServer_RejectsWithoutToken(t *testing.T) {
	srv, _, _ := newServer(t)

	resp, body := call(t, srv, "", http.MethodPost, "/api/v1/sync", map[string]int64{"chat_id": -100555})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d body=%s", resp.StatusCode, body)
	}
	var e struct {
		Error string `json:"error"`
	}
	json.Unmarshal(body, &e)
	if e.Error != "Unauthorized" {
		t.Fatalf("error body = %s", body)
	}
}

func TestServer_RejectsForeignKey(t *testing.T) {
	srv, _, _ := newServer(t)
	pubPEM, privPEM := testKeys(t)

	// signed by a different key entirely
	attacker, err := auth.New(config.AuthConfig{
		PublicKeyInline:  pubPEM,
		PrivateKeyInline: privPEM,
	}, entity.ServiceBot, entity.ServiceBot)
	if err != nil {
		t.Fatalf("attacker jwt: %v", err)
	}
	token, _ := attacker.GenerateToken(entity.ServiceUserbot)
	resp, _ := call(t, srv, token, http.MethodGet, "/api/v1/sync/status", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_RejectsDisallowedIssuer(t *testing.T) {
	srv, _, conf := newServer(t)

	// correct key and audience, issuer outside the allow-list
	rogue, err := auth.New(conf, entity.ServiceSearch, entity.ServiceSearch)
	if err != nil {
		t.Fatalf("rogue jwt: %v", err)
	}
	token, _ := rogue.GenerateToken(entity.ServiceUserbot)
	resp, _ := call(t, srv, token, http.MethodGet, "/api/v1/sync/status", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestServer_SyncLifecycle(t *testing.T) {
	srv, caller, _ := newServer(t)
	token, err := caller.GenerateToken(entity.ServiceUserbot)
	if err != nil {
		t.Fatalf("token: %v", err)
	}

	// enroll
	resp, body := call(t, srv, token, http.MethodPost, "/api/v1/sync", map[string]int64{"chat_id": -100555})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("enroll status = %d body=%s", resp.StatusCode, body)
	}
	var enrolled struct {
		Success bool   `json:"success"`
		Status  string `json:"status"`
	}
	json.Unmarshal(body, &enrolled)
	if !enrolled.Success || enrolled.Status != entity.SyncPending {
		t.Fatalf("enroll body = %s", body)
	}

	// double enrollment conflicts
	resp, _ = call(t, srv, token, http.MethodPost, "/api/v1/sync", map[string]int64{"chat_id": -100555})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("re-enroll status = %d", resp.StatusCode)
	}

	// pause, then resume
	resp, _ = call(t, srv, token, http.MethodPost, "/api/v1/sync/pause", map[string]int64{"chat_id": -100555})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pause status = %d", resp.StatusCode)
	}
	resp, body = call(t, srv, token, http.MethodGet, "/api/v1/sync/status?chat_id=-100555", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status status = %d", resp.StatusCode)
	}
	var status struct {
		Chats []entity.SyncProgress `json:"chats"`
	}
	json.Unmarshal(body, &status)
	if len(status.Chats) != 1 || status.Chats[0].Status != entity.SyncPaused {
		t.Fatalf("status body = %s", body)
	}
	resp, _ = call(t, srv, token, http.MethodPost, "/api/v1/sync/resume", map[string]int64{"chat_id": -100555})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("resume status = %d", resp.StatusCode)
	}

	// unknown chat transitions answer 404
	resp, _ = call(t, srv, token, http.MethodPost, "/api/v1/sync/pause", map[string]int64{"chat_id": -1})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("pause unknown status = %d", resp.StatusCode)
	}

	// full status carries the summary
	resp, body = call(t, srv, token, http.MethodGet, "/api/v1/sync/status", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("summary status = %d", resp.StatusCode)
	}
	var full struct {
		Summary entity.SyncSummary `json:"summary"`
	}
	json.Unmarshal(body, &full)
	if full.Summary.TotalChats != 1 || full.Summary.Pending != 1 {
		t.Fatalf("summary = %+v", full.Summary)
	}

	// bad body answers 400
	resp, _ = call(t, srv, token, http.MethodPost, "/api/v1/sync", map[string]string{"chat": "x"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad body status = %d", resp.StatusCode)
	}
}

func TestServer_RelayQueue(t *testing.T) {
	srv, caller, _ := newServer(t)
	token, _ := caller.GenerateToken(entity.ServiceUserbot)

	payload, _ := json.Marshal(map[string]string{"note": "sync done"})
	resp, body := call(t, srv, token, http.MethodPost, "/api/v1/messages", entity.RelayMessage{
		FromService: entity.ServiceUserbot,
		ToService:   entity.ServiceBot,
		Type:        "notice",
		Payload:     payload,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("post status = %d body=%s", resp.StatusCode, body)
	}
	var posted struct {
		Id string `json:"id"`
	}
	json.Unmarshal(body, &posted)
	if posted.Id == "" {
		t.Fatalf("post body = %s", body)
	}

	resp, body = call(t, srv, token, http.MethodGet, "/api/v1/messages?to=bot", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("get status = %d", resp.StatusCode)
	}
	var got struct {
		Messages []entity.RelayMessage `json:"messages"`
	}
	json.Unmarshal(body, &got)
	if len(got.Messages) != 1 || got.Messages[0].Type != "notice" {
		t.Fatalf("messages = %s", body)
	}

	resp, _ = call(t, srv, token, http.MethodDelete, "/api/v1/messages/"+posted.Id, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("ack status = %d", resp.StatusCode)
	}
	_, body = call(t, srv, token, http.MethodGet, "/api/v1/messages?to=bot", nil)
	json.Unmarshal(body, &got)
	if len(got.Messages) != 0 {
		t.Fatalf("after ack = %s", body)
	}
}
