package agent

import (
	"fmt"

	"sqlcopilot/internal/events"
	"sqlcopilot/internal/transcript"
)

// machine is the synchronous reducer at the core of a session run. It never
// suspends and never does I/O: the controller feeds it one event at a time
// and publishes the resulting snapshot. The machine performs no timeout
// logic of its own; a stalled agent stays visible in its last status until
// the remote reports a terminal event or the operator stops the run.
type machine struct {
	status            Status
	identity          Identity
	log               *transcript.Log
	gate              gate
	awaitingExecution bool
}

func newMachine() machine {
	return machine{
		status: StatusIdle,
		log:    transcript.NewLog(),
	}
}

// apply reduces one inbound event. It returns whether any state changed.
// Malformed events (per events.Validate) are rejected whole: no transition,
// no transcript entry. Unknown discriminators are skipped silently.
func (m *machine) apply(ev events.Event) (bool, error) {
	if !events.Known(ev.Type) {
		return false, nil
	}
	if err := events.Validate(ev); err != nil {
		return false, fmt.Errorf("malformed %s event: %w", ev.Type, err)
	}
	if m.status.Terminal() {
		// The remote contract ends each stream with a terminal event;
		// anything after that belongs to no live run.
		return false, nil
	}

	switch ev.Type {
	case events.TypeSession:
		m.identity.TransportSessionID = ev.SessionID
	case events.TypeAgentSession:
		m.identity.AgentSessionID = ev.AgentSessionID
	case events.TypeThinking:
		m.status = StatusThinking
		m.log.Append(transcript.Entry{Kind: transcript.KindThinking, Text: ev.Content})
	case events.TypePlan:
		m.status = StatusPlanning
		m.log.Append(transcript.Entry{Kind: transcript.KindPlan, Plan: ev.Plan})
	case events.TypeProposal:
		m.status = StatusProposing
		m.gate.propose(Proposal{
			SQL:             ev.SQL,
			StepIndex:       *ev.StepIndex,
			StepDescription: ev.StepDescription,
			IsRetry:         ev.IsRetry,
			RetryCount:      ev.RetryCount,
		})
		m.log.Append(transcript.Entry{
			Kind:            transcript.KindProposal,
			SQL:             ev.SQL,
			StepIndex:       *ev.StepIndex,
			StepDescription: ev.StepDescription,
			IsRetry:         ev.IsRetry,
			RetryCount:      ev.RetryCount,
		})
	case events.TypeExecuting:
		m.status = StatusExecuting
		m.gate.resolve()
		m.awaitingExecution = true
		stepIndex := 0
		if ev.StepIndex != nil {
			stepIndex = *ev.StepIndex
		}
		m.log.Append(transcript.Entry{
			Kind:            transcript.KindExecuting,
			SQL:             ev.SQL,
			StepIndex:       stepIndex,
			StepDescription: ev.StepDescription,
		})
	case events.TypeResult:
		m.status = StatusAnalyzing
		m.awaitingExecution = false
		m.log.Append(transcript.Entry{Kind: transcript.KindResult, Result: ev.Result})
	case events.TypeContent:
		m.log.Append(transcript.Entry{Kind: transcript.KindAnalysis, Text: ev.Content})
	case events.TypeComplete:
		m.status = StatusCompleted
		m.clearPending()
		m.log.Append(transcript.Entry{
			Kind:           transcript.KindComplete,
			Summary:        ev.Summary,
			StepsCompleted: ev.StepsCompleted,
			StepsTotal:     ev.StepsTotal,
		})
	case events.TypeError:
		if ev.Recoverable {
			m.log.Append(transcript.Entry{
				Kind:        transcript.KindError,
				Text:        errorText(ev.Error, ev.Detail),
				Recoverable: true,
			})
			break
		}
		m.status = StatusError
		m.clearPending()
		m.log.Append(transcript.Entry{
			Kind: transcript.KindError,
			Text: errorText(ev.Error, ev.Detail),
		})
	case events.TypeStopped:
		m.status = StatusStopped
		m.clearPending()
		m.log.Append(transcript.Entry{Kind: transcript.KindStopped})
	}
	return true, nil
}

// failTransport maps a stream-level failure to the same terminal path as a
// non-recoverable agent error.
func (m *machine) failTransport(message string) {
	m.status = StatusError
	m.clearPending()
	m.log.Append(transcript.Entry{Kind: transcript.KindError, Text: message})
}

// forceStopped is the operator-initiated stop. Idempotent: a run already
// stopped gains no second transcript entry.
func (m *machine) forceStopped() {
	if m.status == StatusStopped {
		return
	}
	m.status = StatusStopped
	m.clearPending()
	m.log.Append(transcript.Entry{Kind: transcript.KindStopped})
}

// reset restores the pristine initial state: Idle, empty transcript, no
// identity, no proposal, no pending flags.
func (m *machine) reset() {
	m.status = StatusIdle
	m.identity = Identity{}
	m.log.Clear()
	m.gate.resolve()
	m.awaitingExecution = false
}

func (m *machine) clearPending() {
	m.gate.resolve()
	m.awaitingExecution = false
}

func errorText(msg, detail string) string {
	if msg == "" {
		msg = "agent error"
	}
	if detail == "" {
		return msg
	}
	return msg + ": " + detail
}
