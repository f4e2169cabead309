// Package api exposes the approval workflow over HTTP and websocket.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"sqlcopilot/internal/agent"
	"sqlcopilot/internal/events"
	"sqlcopilot/internal/ledger"
	"sqlcopilot/internal/policy"
)

type Server struct {
	httpServer *http.Server
	mgr        *agent.Manager
	pol        *policy.Policy
	store      *ledger.Store
	authToken  string
	security   SecurityConfig

	wsWriteTimeout  time.Duration
	snapshotBuffer  int
	startLimiter    *windowLimiter
	authFailCounter *windowCounter
}

type Options struct {
	WSWriteTimeout time.Duration
	SnapshotBuffer int
	Security       SecurityConfig
}

func New(addr, authToken string, mgr *agent.Manager, pol *policy.Policy, store *ledger.Store, opts Options) *Server {
	cfg := normalizeSecurityConfig(opts.Security)
	if opts.WSWriteTimeout <= 0 {
		opts.WSWriteTimeout = 10 * time.Second
	}
	if opts.SnapshotBuffer <= 0 {
		opts.SnapshotBuffer = 32
	}
	s := &Server{
		mgr:             mgr,
		pol:             pol,
		store:           store,
		authToken:       authToken,
		security:        cfg,
		wsWriteTimeout:  opts.WSWriteTimeout,
		snapshotBuffer:  opts.SnapshotBuffer,
		startLimiter:    newWindowLimiter(cfg.StartRateLimit, cfg.StartRateWindow),
		authFailCounter: newWindowCounter(cfg.AuthFailureAlertWindow),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/v1/targets", s.withAuth(s.handleTargets))
	mux.HandleFunc("/api/v1/agent/", s.withAuth(s.handleAgent))
	mux.HandleFunc("/api/v1/runs", s.withAuth(s.handleRuns))
	mux.HandleFunc("/api/v1/runs/", s.withAuth(s.handleRunByID))

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() error {
	log.Printf("copilot api listening on %s", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.authenticate(r); err != nil {
			s.auditf(r, "auth_failed", "invalid bearer token")
			s.maybeAlertAuthFailure(r)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": err.Error()})
			return
		}
		s.authFailCounter.Reset(s.clientIP(r))
		next(w, r)
	}
}

func (s *Server) authenticate(r *http.Request) error {
	if s.authToken == "" {
		return nil
	}
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	token := ""
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			return fmt.Errorf("missing or invalid bearer token")
		}
		token = strings.TrimSpace(parts[1])
	}
	// Browser websocket clients cannot set headers; accept the token as a
	// query parameter there.
	if token == "" {
		token = strings.TrimSpace(r.URL.Query().Get("token"))
	}
	if token == "" || token != s.authToken {
		return fmt.Errorf("missing or invalid bearer token")
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleTargets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"targets": s.mgr.Targets()})
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/agent/"), "/")
	if path == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "target id missing"})
		return
	}
	parts := strings.Split(path, "/")
	targetID := parts[0]
	if err := s.pol.ValidateTarget(targetID); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	c := s.mgr.Controller(targetID)

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		writeJSON(w, http.StatusOK, c.Snapshot())
		return
	}
	if len(parts) != 2 {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown action"})
		return
	}

	action := parts[1]
	if action == "ws" {
		if r.Method != http.MethodGet {
			writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
			return
		}
		s.handleSnapshotStream(w, r, c)
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}

	switch action {
	case "start":
		s.handleStart(w, r, c)
	case "approve":
		var req struct {
			ModifiedSQL string `json:"modified_sql"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
		}
		if err := s.pol.ValidateModifiedSQL(req.ModifiedSQL); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		c.Approve(r.Context(), req.ModifiedSQL)
		writeJSON(w, http.StatusOK, c.Snapshot())
	case "reject":
		var req struct {
			Reason string `json:"reason"`
		}
		if r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
				return
			}
		}
		c.Reject(r.Context(), req.Reason)
		writeJSON(w, http.StatusOK, c.Snapshot())
	case "result":
		var result events.ExecutionResult
		if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
		c.SendExecutionResult(r.Context(), result)
		writeJSON(w, http.StatusOK, c.Snapshot())
	case "stop":
		c.Stop()
		writeJSON(w, http.StatusOK, c.Snapshot())
	case "reset":
		c.Reset()
		writeJSON(w, http.StatusOK, c.Snapshot())
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown action"})
	}
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, c *agent.Controller) {
	ok, attempts, retryAfter := s.startLimiter.Allow(s.clientIP(r), time.Now().UTC())
	if !ok {
		retrySec := int(retryAfter.Seconds())
		if retrySec < 1 {
			retrySec = 1
		}
		w.Header().Set("Retry-After", strconv.Itoa(retrySec))
		s.auditf(r, "start_rate_limited", fmt.Sprintf("attempts=%d retry_after=%ds", attempts, retrySec))
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"error": "too many start requests"})
		return
	}

	var req struct {
		Message         string   `json:"message"`
		ResumeSessionID string   `json:"resume_session_id"`
		ContextScopes   []string `json:"context_scopes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := s.pol.ValidateMessage(req.Message); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	if err := s.pol.ValidateScopes(req.ContextScopes); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}

	snap, err := c.Start(r.Context(), req.Message, req.ResumeSessionID, req.ContextScopes)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": snap.RunID,
		"status": snap.Status,
		"ws_url": "/api/v1/agent/" + snap.TargetID + "/ws",
	})
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleSnapshotStream pushes the current snapshot and then every published
// update until the client goes away.
func (s *Server) handleSnapshotStream(w http.ResponseWriter, r *http.Request, c *agent.Controller) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	snap := c.Snapshot()
	_ = conn.SetWriteDeadline(time.Now().Add(s.wsWriteTimeout))
	if err := conn.WriteJSON(snap); err != nil {
		return
	}

	sub, unsub := s.mgr.Hub().Subscribe(snap.TargetID, s.snapshotBuffer)
	defer unsub()

	for snap := range sub {
		_ = conn.SetWriteDeadline(time.Now().Add(s.wsWriteTimeout))
		if err := conn.WriteJSON(snap); err != nil {
			return
		}
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run history unavailable"})
		return
	}
	targetID := strings.TrimSpace(r.URL.Query().Get("target"))
	if targetID != "" {
		if err := s.pol.ValidateTarget(targetID); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
			return
		}
	}
	limit := int64(0)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = n
		}
	}
	runs, err := s.store.ListRuns(r.Context(), targetID, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": runViews(runs)})
}

func (s *Server) handleRunByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "method not allowed"})
		return
	}
	if s.store == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "run history unavailable"})
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/runs/"), "/")
	if path == "" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "run id missing"})
		return
	}
	parts := strings.Split(path, "/")
	runID := parts[0]

	if len(parts) == 1 {
		run, err := s.store.GetRun(r.Context(), runID)
		if err != nil {
			if errors.Is(err, ledger.ErrNotFound) {
				writeJSON(w, http.StatusNotFound, map[string]any{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, runView(run))
		return
	}
	if len(parts) != 2 || parts[1] != "entries" {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "unknown action"})
		return
	}

	fromSeq := int64(0)
	if v := r.URL.Query().Get("from_seq"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			fromSeq = n
		}
	}
	limit := int64(0)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			limit = n
		}
	}
	entries, err := s.store.ListEntries(r.Context(), runID, fromSeq, limit)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": entries})
}

type runViewJSON struct {
	RunID     string    `json:"run_id"`
	TargetID  string    `json:"target_id"`
	Message   string    `json:"message"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func runView(r ledger.RunRecord) runViewJSON {
	return runViewJSON{
		RunID:     r.ID,
		TargetID:  r.TargetID,
		Message:   r.Message,
		Status:    r.Status,
		Error:     r.Error,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func runViews(rs []ledger.RunRecord) []runViewJSON {
	out := make([]runViewJSON, 0, len(rs))
	for _, r := range rs {
		out = append(out, runView(r))
	}
	return out
}

func (s *Server) clientIP(r *http.Request) string {
	if v := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); v != "" {
		parts := strings.Split(v, ",")
		if len(parts) > 0 {
			if ip := strings.TrimSpace(parts[0]); ip != "" {
				return ip
			}
		}
	}
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if h, _, err := net.SplitHostPort(host); err == nil && h != "" {
		return h
	}
	return host
}

func (s *Server) auditf(r *http.Request, event, detail string) {
	log.Printf(
		"audit event=%s ip=%s method=%s path=%s detail=%q",
		event, s.clientIP(r), r.Method, r.URL.Path, detail,
	)
}

func (s *Server) maybeAlertAuthFailure(r *http.Request) {
	ip := s.clientIP(r)
	n := s.authFailCounter.Inc(ip, time.Now().UTC())
	if n >= s.security.AuthFailureAlertLimit {
		log.Printf(
			"security_alert event=auth_fail_burst ip=%s failures=%d window_sec=%d",
			ip, n, int(s.security.AuthFailureAlertWindow.Seconds()),
		)
	}
}

func writeJSON(w http.ResponseWriter, status int, obj any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(obj)
}
