package events

const (
	TypeSession      = "session"
	TypeAgentSession = "agent_session"
	TypeThinking     = "agent_thinking"
	TypePlan         = "agent_plan"
	TypeProposal     = "agent_proposal"
	TypeExecuting    = "agent_executing"
	TypeResult       = "agent_result"
	TypeContent      = "content"
	TypeComplete     = "agent_complete"
	TypeError        = "agent_error"
	TypeStopped      = "agent_stopped"
)

// Event is the wire envelope pushed by the remote copilot agent. The agent
// emits camelCase JSON; only Type is common to every kind, everything else is
// kind-specific and passed through to the state machine untouched.
type Event struct {
	Type string `json:"type"`

	SessionID      string `json:"sessionId,omitempty"`
	AgentSessionID string `json:"agentSessionId,omitempty"`

	Content string `json:"content,omitempty"`

	Plan []string `json:"plan,omitempty"`

	SQL             string `json:"sql,omitempty"`
	StepIndex       *int   `json:"stepIndex,omitempty"`
	StepDescription string `json:"stepDescription,omitempty"`
	IsRetry         bool   `json:"isRetry,omitempty"`
	RetryCount      int    `json:"retryCount,omitempty"`

	Result *ExecutionResult `json:"result,omitempty"`

	Summary        string `json:"summary,omitempty"`
	StepsCompleted int    `json:"stepsCompleted,omitempty"`
	StepsTotal     int    `json:"stepsTotal,omitempty"`

	Recoverable bool   `json:"recoverable,omitempty"`
	Error       string `json:"error,omitempty"`
	Detail      string `json:"detail,omitempty"`
}

// ExecutionResult is the outcome of running one statement against the target
// database. It is produced by an external executor and forwarded verbatim;
// this engine only inspects Success and the error fields.
type ExecutionResult struct {
	Success      bool             `json:"success"`
	RowCount     int64            `json:"rowCount,omitempty"`
	AffectedRows int64            `json:"affectedRows,omitempty"`
	DurationMS   int64            `json:"durationMs,omitempty"`
	Columns      []string         `json:"columns,omitempty"`
	Rows         []map[string]any `json:"rows,omitempty"`
	Error        string           `json:"error,omitempty"`
	Detail       string           `json:"detail,omitempty"`
}
