// Package policy validates operator input before it reaches the agent.
package policy

import (
	"fmt"
	"regexp"
	"strings"
)

type Policy struct {
	// AllowedTargets restricts start requests to a known set of database
	// targets. Empty means any well-formed target id is accepted.
	AllowedTargets []string
	// MaxMessageLen caps the operator message; 0 applies the default.
	MaxMessageLen int
}

const defaultMaxMessageLen = 8192

var safeTargetID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
var safeScope = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

func New(targets []string, maxMessageLen int) *Policy {
	return &Policy{AllowedTargets: targets, MaxMessageLen: maxMessageLen}
}

func (p *Policy) ValidateTarget(targetID string) error {
	if targetID == "" {
		return fmt.Errorf("target id is required")
	}
	if !safeTargetID.MatchString(targetID) {
		return fmt.Errorf("invalid target id %q", targetID)
	}
	if len(p.AllowedTargets) == 0 {
		return nil
	}
	for _, t := range p.AllowedTargets {
		if t == targetID {
			return nil
		}
	}
	return fmt.Errorf("target %q is not in the allowed set", targetID)
}

func (p *Policy) ValidateMessage(message string) error {
	if strings.TrimSpace(message) == "" {
		return fmt.Errorf("message is required")
	}
	max := p.MaxMessageLen
	if max <= 0 {
		max = defaultMaxMessageLen
	}
	if len(message) > max {
		return fmt.Errorf("message exceeds %d bytes", max)
	}
	return nil
}

func (p *Policy) ValidateScopes(scopes []string) error {
	for _, s := range scopes {
		if !safeScope.MatchString(s) {
			return fmt.Errorf("invalid context scope %q", s)
		}
	}
	return nil
}

// ValidateModifiedSQL sanity-checks an operator-edited statement carried on
// an approval. It does not parse SQL; executability is the agent's problem.
// It only rejects input that cannot be a statement at all.
func (p *Policy) ValidateModifiedSQL(sql string) error {
	if sql == "" {
		return nil
	}
	if strings.TrimSpace(sql) == "" {
		return fmt.Errorf("modified sql is blank")
	}
	if len(sql) > 1<<20 {
		return fmt.Errorf("modified sql exceeds 1MiB")
	}
	return nil
}
