package transcript

import (
	"time"

	"sqlcopilot/internal/events"

	"github.com/google/uuid"
)

const (
	KindUser      = "user"
	KindThinking  = "thinking"
	KindPlan      = "plan"
	KindProposal  = "proposal"
	KindExecuting = "executing"
	KindResult    = "result"
	KindAnalysis  = "analysis"
	KindComplete  = "complete"
	KindError     = "error"
	KindStopped   = "stopped"
)

// Entry is one line of the operator-visible chat history. Entries are
// immutable once appended; the id and timestamp are assigned locally at
// append time, not taken from the wire.
type Entry struct {
	ID   string    `json:"id"`
	Kind string    `json:"kind"`
	TS   time.Time `json:"ts"`

	Text string   `json:"text,omitempty"`
	Plan []string `json:"plan,omitempty"`

	SQL             string `json:"sql,omitempty"`
	StepIndex       int    `json:"step_index,omitempty"`
	StepDescription string `json:"step_description,omitempty"`
	IsRetry         bool   `json:"is_retry,omitempty"`
	RetryCount      int    `json:"retry_count,omitempty"`

	Result *events.ExecutionResult `json:"result,omitempty"`

	Summary        string `json:"summary,omitempty"`
	StepsCompleted int    `json:"steps_completed,omitempty"`
	StepsTotal     int    `json:"steps_total,omitempty"`

	Recoverable bool `json:"recoverable,omitempty"`
}

// Log is the append-only transcript of one run. It is the audit trail of
// exactly what the operator saw and approved: no entry is ever removed,
// reordered or deduplicated during a run. The log carries no lock of its
// own; the owning controller serializes access.
type Log struct {
	entries []Entry
}

func NewLog() *Log {
	return &Log{entries: make([]Entry, 0, 64)}
}

// Append stamps the entry with a fresh id and capture timestamp and inserts
// it at the tail. It returns the stamped entry.
func (l *Log) Append(e Entry) Entry {
	e.ID = uuid.NewString()
	e.TS = time.Now().UTC()
	l.entries = append(l.entries, e)
	return e
}

func (l *Log) Entries() []Entry {
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Log) Len() int {
	return len(l.entries)
}

// Clear drops the whole history. Only run boundaries (start, reset) may do
// this; there is no single-entry removal.
func (l *Log) Clear() {
	l.entries = l.entries[:0]
}
