package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"sqlcopilot/internal/agent"
	"sqlcopilot/internal/events"
	"sqlcopilot/internal/ledger"
	"sqlcopilot/internal/policy"
)

type stubAgent struct{}

func (stubAgent) StartSession(context.Context, agent.StartRequest) (*agent.Stream, error) {
	return &agent.Stream{
		Events: make(chan events.Event),
		Done:   make(chan error),
	}, nil
}

func (stubAgent) Approve(context.Context, string, string, string) error   { return nil }
func (stubAgent) Reject(context.Context, string, string, string) error   { return nil }
func (stubAgent) Stop(context.Context, string, string) error             { return nil }
func (stubAgent) SendResult(context.Context, string, string, events.ExecutionResult) error {
	return nil
}

func newTestServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	store, err := ledger.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("init ledger: %v", err)
	}

	mgr := agent.NewManager(stubAgent{}, nil, store, time.Second)
	s := New("127.0.0.1:0", "test-token", mgr, policy.New(nil, 0), store, opts)
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func doJSON(t *testing.T, method, url, token string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestAuthRequired(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/targets", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/targets", "wrong-token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/targets", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.StatusCode)
	}
}

func TestHealthIsOpen(t *testing.T) {
	_, ts := newTestServer(t, Options{})
	resp := doJSON(t, http.MethodGet, ts.URL+"/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected open health endpoint, got %d", resp.StatusCode)
	}
}

func TestStartAndSnapshot(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/start", "test-token", map[string]any{
		"message": "show me top customers",
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var started struct {
		RunID  string `json:"run_id"`
		Status string `json:"status"`
		WSURL  string `json:"ws_url"`
	}
	decodeBody(t, resp, &started)
	if started.RunID == "" || started.Status != "thinking" {
		t.Fatalf("unexpected start response: %+v", started)
	}
	if started.WSURL != "/api/v1/agent/db1/ws" {
		t.Fatalf("unexpected ws url: %q", started.WSURL)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/agent/db1", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap agent.Snapshot
	decodeBody(t, resp, &snap)
	if snap.TargetID != "db1" || snap.Status != agent.StatusThinking || len(snap.Transcript) != 1 {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

func TestStartValidation(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/start", "test-token", map[string]any{
		"message": "   ",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank message, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/bad%20target/start", "test-token", map[string]any{
		"message": "hi",
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed target, got %d", resp.StatusCode)
	}
}

func TestStartRateLimited(t *testing.T) {
	_, ts := newTestServer(t, Options{
		Security: SecurityConfig{StartRateLimit: 1, StartRateWindow: time.Minute},
	})

	body := map[string]any{"message": "hi"}
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/start", "test-token", body)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected first start accepted, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/start", "test-token", body)
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on second start, got %d", resp.StatusCode)
	}
	if resp.Header.Get("Retry-After") == "" {
		t.Fatalf("expected Retry-After header")
	}
}

func TestCommandsReturnSnapshot(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	// Approve before any run: no agent session, so this is a pure no-op.
	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/approve", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var snap agent.Snapshot
	decodeBody(t, resp, &snap)
	if snap.Status != agent.StatusIdle || len(snap.Transcript) != 0 {
		t.Fatalf("no-op approve must leave pristine state: %+v", snap)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/stop", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &snap)
	if snap.Status != agent.StatusStopped {
		t.Fatalf("expected Stopped after stop, got %s", snap.Status)
	}

	resp = doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/reset", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeBody(t, resp, &snap)
	if snap.Status != agent.StatusIdle {
		t.Fatalf("expected Idle after reset, got %s", snap.Status)
	}
}

func TestApproveRejectsOversizedSQL(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	resp := doJSON(t, http.MethodPost, ts.URL+"/api/v1/agent/db1/approve", "test-token", map[string]any{
		"modified_sql": strings.Repeat("a", 1<<20+1),
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for oversized sql, got %d", resp.StatusCode)
	}
}

func TestRunHistoryEndpoints(t *testing.T) {
	s, ts := newTestServer(t, Options{})
	ctx := context.Background()

	if err := s.store.RunStarted(ctx, "run-1", "db1", "first question"); err != nil {
		t.Fatalf("seed run: %v", err)
	}
	if err := s.store.RunStatus(ctx, "run-1", "completed", ""); err != nil {
		t.Fatalf("seed status: %v", err)
	}

	resp := doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs?target=db1", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var list struct {
		Items []runViewJSON `json:"items"`
	}
	decodeBody(t, resp, &list)
	if len(list.Items) != 1 || list.Items[0].RunID != "run-1" || list.Items[0].Status != "completed" {
		t.Fatalf("unexpected run list: %+v", list.Items)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/run-1", "test-token", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/api/v1/runs/missing", "test-token", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown run, got %d", resp.StatusCode)
	}
}

func TestSnapshotWebsocket(t *testing.T) {
	s, ts := newTestServer(t, Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agent/db1/ws?token=test-token"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	defer conn.Close()

	var first agent.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&first); err != nil {
		t.Fatalf("read first snapshot: %v", err)
	}
	if first.TargetID != "db1" || first.Status != agent.StatusIdle {
		t.Fatalf("unexpected initial snapshot: %+v", first)
	}

	if _, err := s.mgr.Controller("db1").Start(context.Background(), "hello", "", nil); err != nil {
		t.Fatalf("start: %v", err)
	}

	var next agent.Snapshot
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&next); err != nil {
		t.Fatalf("read pushed snapshot: %v", err)
	}
	if next.Status != agent.StatusThinking {
		t.Fatalf("expected pushed Thinking snapshot, got %+v", next)
	}
}

func TestWebsocketRequiresAuth(t *testing.T) {
	_, ts := newTestServer(t, Options{})

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/agent/db1/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatalf("expected dial to fail without token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 handshake response, got %+v", resp)
	}
}
