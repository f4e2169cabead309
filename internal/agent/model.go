package agent

import (
	"time"

	"sqlcopilot/internal/transcript"
)

type Status string

const (
	StatusIdle      Status = "idle"
	StatusThinking  Status = "thinking"
	StatusPlanning  Status = "planning"
	StatusProposing Status = "proposing"
	StatusExecuting Status = "executing"
	StatusAnalyzing Status = "analyzing"
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusStopped   Status = "stopped"
)

// Terminal reports whether the status ends the run. A new Start always
// begins a fresh run regardless of the previous terminal state.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusError, StatusStopped:
		return true
	}
	return false
}

// Identity holds the two correlation ids assigned by the remote side. Both
// arrive asynchronously after the stream opens; empty means not yet
// assigned. Commands require AgentSessionID and are no-ops without it.
type Identity struct {
	TransportSessionID string `json:"transport_session_id,omitempty"`
	AgentSessionID     string `json:"agent_session_id,omitempty"`
}

// Proposal is a single SQL statement awaiting the operator's decision.
type Proposal struct {
	SQL             string `json:"sql"`
	StepIndex       int    `json:"step_index"`
	StepDescription string `json:"step_description,omitempty"`
	IsRetry         bool   `json:"is_retry,omitempty"`
	RetryCount      int    `json:"retry_count,omitempty"`
}

// Snapshot is the observable triple (status, transcript, gate) plus run
// metadata, published to the hub after every state change.
type Snapshot struct {
	TargetID          string             `json:"target_id"`
	RunID             string             `json:"run_id,omitempty"`
	Status            Status             `json:"status"`
	Identity          Identity           `json:"identity"`
	AwaitingApproval  bool               `json:"awaiting_approval"`
	AwaitingExecution bool               `json:"awaiting_execution"`
	Proposal          *Proposal          `json:"proposal,omitempty"`
	Transcript        []transcript.Entry `json:"transcript"`
	UpdatedAt         time.Time          `json:"updated_at"`
}

// StartRequest carries everything the remote agent needs to begin a session
// against one database target.
type StartRequest struct {
	TargetID        string   `json:"target_id"`
	RunID           string   `json:"run_id"`
	Message         string   `json:"message"`
	ResumeSessionID string   `json:"resume_session_id,omitempty"`
	ContextScopes   []string `json:"context_scopes,omitempty"`
}
