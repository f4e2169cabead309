package agent

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"sqlcopilot/internal/events"
	"sqlcopilot/internal/transcript"

	"github.com/google/uuid"
)

// Stream is one open event stream from the remote agent. Events arrive in
// transport order; Done yields at most one terminal error (nil or closed
// means the remote closed cleanly).
type Stream struct {
	Events <-chan events.Event
	Done   <-chan error
}

// AgentService is the boundary to the remote copilot agent. StartSession
// opens an event stream; the rest are one-shot commands keyed by the agent
// session id announced on that stream.
type AgentService interface {
	StartSession(ctx context.Context, req StartRequest) (*Stream, error)
	Approve(ctx context.Context, targetID, agentSessionID, modifiedSQL string) error
	Reject(ctx context.Context, targetID, agentSessionID, reason string) error
	SendResult(ctx context.Context, targetID, agentSessionID string, result events.ExecutionResult) error
	Stop(ctx context.Context, targetID, agentSessionID string) error
}

// AuditSink persists the run record and transcript as they grow. A nil sink
// disables persistence; sink failures never disturb the in-memory run.
type AuditSink interface {
	RunStarted(ctx context.Context, runID, targetID, message string) error
	RunStatus(ctx context.Context, runID, status, errText string) error
	RunEntry(ctx context.Context, runID string, seq int64, entry transcript.Entry) error
}

// Controller drives one target's approval workflow: it owns the state
// machine, opens and cancels event streams, and issues out-of-band commands.
// All command failures are converted into transcript error entries rather
// than returned; the UI observes everything through snapshots.
type Controller struct {
	targetID   string
	svc        AgentService
	hub        *Hub
	audit      AuditSink
	cmdTimeout time.Duration

	mu           sync.Mutex
	m            machine
	runID        string
	generation   uint64
	cancelStream context.CancelFunc
}

func NewController(targetID string, svc AgentService, hub *Hub, audit AuditSink, cmdTimeout time.Duration) *Controller {
	if cmdTimeout <= 0 {
		cmdTimeout = 30 * time.Second
	}
	return &Controller{
		targetID:   targetID,
		svc:        svc,
		hub:        hub,
		audit:      audit,
		cmdTimeout: cmdTimeout,
		m:          newMachine(),
	}
}

// Start begins a fresh run: any open stream is cancelled, all state from the
// previous run is cleared, the operator's message becomes the first
// transcript entry, and a new stream is opened with the state machine as its
// sink. Stream establishment happens asynchronously; an immediate failure
// surfaces through the same path as any transport error.
func (c *Controller) Start(ctx context.Context, message, resumeSessionID string, scopes []string) (Snapshot, error) {
	if strings.TrimSpace(message) == "" {
		return Snapshot{}, fmt.Errorf("message is required")
	}

	c.mu.Lock()
	c.abortStreamLocked()
	gen := c.generation
	c.m.reset()
	c.runID = uuid.NewString()
	runID := c.runID
	c.m.status = StatusThinking
	entry := c.m.log.Append(transcript.Entry{Kind: transcript.KindUser, Text: message})
	streamCtx, cancel := context.WithCancel(context.Background())
	c.cancelStream = cancel
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.audit != nil {
		_ = c.audit.RunStarted(ctx, runID, c.targetID, message)
		_ = c.audit.RunStatus(ctx, runID, string(StatusThinking), "")
		_ = c.audit.RunEntry(ctx, runID, 1, entry)
	}
	c.publish(snap)

	go c.consume(streamCtx, gen, StartRequest{
		TargetID:        c.targetID,
		RunID:           runID,
		Message:         message,
		ResumeSessionID: resumeSessionID,
		ContextScopes:   scopes,
	})
	return snap, nil
}

func (c *Controller) consume(ctx context.Context, gen uint64, req StartRequest) {
	stream, err := c.svc.StartSession(ctx, req)
	if err != nil {
		c.streamFailed(gen, err)
		return
	}
	for {
		select {
		case ev, ok := <-stream.Events:
			if !ok {
				stream.Events = nil
				continue
			}
			c.deliver(gen, ev)
		case doneErr, ok := <-stream.Done:
			if !ok || doneErr == nil {
				c.streamClosed(gen)
				return
			}
			c.streamFailed(gen, doneErr)
			return
		}
	}
}

// deliver applies one inbound event. Events carrying a stale generation
// (queued before a cancellation took effect) are discarded so a previous
// run's tail can never mutate the current run.
func (c *Controller) deliver(gen uint64, ev events.Event) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	lenBefore := c.m.log.Len()
	applied, err := c.m.apply(ev)
	if err != nil {
		runID := c.runID
		c.mu.Unlock()
		log.Printf("event rejected target=%s run=%s: %v", c.targetID, runID, err)
		return
	}
	if !applied {
		c.mu.Unlock()
		return
	}
	snap := c.snapshotLocked()
	runID := c.runID
	var appended *transcript.Entry
	if c.m.log.Len() > lenBefore {
		e := snap.Transcript[len(snap.Transcript)-1]
		appended = &e
	}
	c.mu.Unlock()

	if c.audit != nil {
		_ = c.audit.RunStatus(context.Background(), runID, string(snap.Status), "")
		if appended != nil {
			_ = c.audit.RunEntry(context.Background(), runID, int64(len(snap.Transcript)), *appended)
		}
	}
	c.publish(snap)
}

// streamFailed treats a transport-level stream error like a non-recoverable
// agent error: terminal Error status, error entry, pending state cleared.
func (c *Controller) streamFailed(gen uint64, cause error) {
	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		return
	}
	c.m.failTransport(cause.Error())
	snap := c.snapshotLocked()
	runID := c.runID
	entry := snap.Transcript[len(snap.Transcript)-1]
	c.mu.Unlock()

	log.Printf("stream failed target=%s run=%s: %v", c.targetID, runID, cause)
	if c.audit != nil {
		_ = c.audit.RunStatus(context.Background(), runID, string(StatusError), cause.Error())
		_ = c.audit.RunEntry(context.Background(), runID, int64(len(snap.Transcript)), entry)
	}
	c.publish(snap)
}

// streamClosed handles a clean close. The remote contract promises a
// terminal event before closing, so a close without one is left as-is: the
// status freezes where it was and only diagnostics record the oddity.
func (c *Controller) streamClosed(gen uint64) {
	c.mu.Lock()
	current := gen == c.generation
	status := c.m.status
	runID := c.runID
	c.mu.Unlock()
	if current && !status.Terminal() {
		log.Printf("stream closed without terminal event target=%s run=%s status=%s", c.targetID, runID, status)
	}
}

// Approve sends the operator's approval, optionally substituting an edited
// statement. Resolving the gate is local bookkeeping that happens regardless
// of the command outcome; a command failure is logged to the transcript and
// the operator may approve again once the agent re-proposes.
func (c *Controller) Approve(ctx context.Context, modifiedSQL string) {
	c.mu.Lock()
	agentID := c.m.identity.AgentSessionID
	if agentID == "" {
		c.mu.Unlock()
		return
	}
	c.m.gate.resolve()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	cctx, cancel := context.WithTimeout(ctx, c.cmdTimeout)
	defer cancel()
	if err := c.svc.Approve(cctx, c.targetID, agentID, modifiedSQL); err != nil {
		c.appendError(fmt.Sprintf("approve command failed: %v", err))
	}
}

// Reject clears the gate synchronously before the remote call returns:
// rejection is final from the operator's perspective, so the local state is
// never rolled back even if the command fails.
func (c *Controller) Reject(ctx context.Context, reason string) {
	c.mu.Lock()
	agentID := c.m.identity.AgentSessionID
	if agentID == "" {
		c.mu.Unlock()
		return
	}
	c.m.gate.resolve()
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)

	cctx, cancel := context.WithTimeout(ctx, c.cmdTimeout)
	defer cancel()
	if err := c.svc.Reject(cctx, c.targetID, agentID, reason); err != nil {
		c.appendError(fmt.Sprintf("reject command failed: %v", err))
	}
}

// SendExecutionResult forwards an externally-obtained execution outcome so
// the agent can continue planning. The SQL itself runs outside this engine.
func (c *Controller) SendExecutionResult(ctx context.Context, result events.ExecutionResult) {
	c.mu.Lock()
	agentID := c.m.identity.AgentSessionID
	c.mu.Unlock()
	if agentID == "" {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, c.cmdTimeout)
	defer cancel()
	if err := c.svc.SendResult(cctx, c.targetID, agentID, result); err != nil {
		c.appendError(fmt.Sprintf("send result command failed: %v", err))
	}
}

// Stop aborts the open stream, forces the run into Stopped, and fires a
// best-effort stop command. Safe to call at any time, any number of times;
// it never blocks on the remote and never fails.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.abortStreamLocked()
	agentID := c.m.identity.AgentSessionID
	lenBefore := c.m.log.Len()
	c.m.forceStopped()
	snap := c.snapshotLocked()
	runID := c.runID
	c.mu.Unlock()

	if c.audit != nil && runID != "" {
		_ = c.audit.RunStatus(context.Background(), runID, string(StatusStopped), "")
		if len(snap.Transcript) > lenBefore {
			_ = c.audit.RunEntry(context.Background(), runID, int64(len(snap.Transcript)), snap.Transcript[len(snap.Transcript)-1])
		}
	}
	c.publish(snap)

	if agentID == "" {
		return
	}
	go func() {
		cctx, cancel := context.WithTimeout(context.Background(), c.cmdTimeout)
		defer cancel()
		if err := c.svc.Stop(cctx, c.targetID, agentID); err != nil {
			// The session may already be gone remotely; nothing to surface.
			log.Printf("stop command failed target=%s run=%s: %v", c.targetID, runID, err)
		}
	}()
}

// Reset aborts any open stream and restores the initial state. No remote
// command is issued.
func (c *Controller) Reset() {
	c.mu.Lock()
	c.abortStreamLocked()
	c.m.reset()
	c.runID = ""
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.publish(snap)
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) appendError(message string) {
	c.mu.Lock()
	entry := c.m.log.Append(transcript.Entry{Kind: transcript.KindError, Text: message})
	snap := c.snapshotLocked()
	runID := c.runID
	c.mu.Unlock()

	if c.audit != nil && runID != "" {
		_ = c.audit.RunEntry(context.Background(), runID, int64(len(snap.Transcript)), entry)
	}
	c.publish(snap)
}

// abortStreamLocked cancels the active stream (a no-op when none is open)
// and bumps the generation so any in-flight events are discarded.
func (c *Controller) abortStreamLocked() {
	if c.cancelStream != nil {
		c.cancelStream()
		c.cancelStream = nil
	}
	c.generation++
}

func (c *Controller) snapshotLocked() Snapshot {
	return Snapshot{
		TargetID:          c.targetID,
		RunID:             c.runID,
		Status:            c.m.status,
		Identity:          c.m.identity,
		AwaitingApproval:  c.m.gate.awaiting,
		AwaitingExecution: c.m.awaitingExecution,
		Proposal:          c.m.gate.current(),
		Transcript:        c.m.log.Entries(),
		UpdatedAt:         time.Now().UTC(),
	}
}

func (c *Controller) publish(snap Snapshot) {
	if c.hub != nil {
		c.hub.Publish(snap)
	}
}
