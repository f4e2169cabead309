package events

import (
	"encoding/json"
	"fmt"
	"strings"
)

var knownTypes = map[string]struct{}{
	TypeSession:      {},
	TypeAgentSession: {},
	TypeThinking:     {},
	TypePlan:         {},
	TypeProposal:     {},
	TypeExecuting:    {},
	TypeResult:       {},
	TypeContent:      {},
	TypeComplete:     {},
	TypeError:        {},
	TypeStopped:      {},
}

func KnownTypes() []string {
	return []string{
		TypeSession,
		TypeAgentSession,
		TypeThinking,
		TypePlan,
		TypeProposal,
		TypeExecuting,
		TypeResult,
		TypeContent,
		TypeComplete,
		TypeError,
		TypeStopped,
	}
}

// Known reports whether the discriminator names an event kind this engine
// understands. Unknown kinds are skipped by the consumer, not treated as
// errors, so newer agents can emit kinds older bridges ignore.
func Known(typ string) bool {
	_, ok := knownTypes[typ]
	return ok
}

func Decode(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if strings.TrimSpace(ev.Type) == "" {
		return Event{}, fmt.Errorf("event type is required")
	}
	return ev, nil
}

// Validate enforces the per-kind required fields. Only agent_proposal carries
// hard requirements; a proposal the operator cannot see the SQL or step for
// is unactionable and must never reach the approval gate.
func Validate(ev Event) error {
	if ev.Type == "" {
		return fmt.Errorf("event type is required")
	}
	if ev.Type != TypeProposal {
		return nil
	}
	if strings.TrimSpace(ev.SQL) == "" {
		return fmt.Errorf("agent_proposal requires sql")
	}
	if ev.StepIndex == nil {
		return fmt.Errorf("agent_proposal requires stepIndex")
	}
	if *ev.StepIndex < 0 {
		return fmt.Errorf("agent_proposal stepIndex must be >= 0, got %d", *ev.StepIndex)
	}
	return nil
}
