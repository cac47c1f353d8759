// Package condition provides the legacy substring-matching condition
// evaluator, kept for behavioral parity with historical rule text.
//
// The legacy grammar is a fixed set of substring probes, not an expression
// language: a condition mentioning "agentType", "action", or "userRole" is
// tested by membership of the corresponding context field in the condition
// text. Conditions with no recognized probe evaluate to true (fail open);
// an evaluation failure yields false (fail closed). New rule text should use
// CEL conditions instead; the engine falls back to this shim only when a
// condition does not compile as CEL.
package condition

import (
	"fmt"
	"strings"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// Shim evaluates conditions with the historical substring semantics.
type Shim struct{}

// NewShim returns the legacy substring evaluator.
func NewShim() *Shim {
	return &Shim{}
}

// Evaluate applies the legacy probes in their historical order. The checks
// are ordered so that a condition containing "true" always matches and one
// containing "false" never does, regardless of context content.
func (s *Shim) Evaluate(cond string, execCtx rule.ExecutionContext) (ok bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
			err = fmt.Errorf("legacy condition evaluation panicked: %v", rec)
		}
	}()

	switch {
	case strings.Contains(cond, "true"):
		return true, nil
	case strings.Contains(cond, "false"):
		return false, nil
	case strings.Contains(cond, "agentType"):
		return strings.Contains(cond, execCtx.AgentType), nil
	case strings.Contains(cond, "action"):
		return strings.Contains(cond, execCtx.Action), nil
	case strings.Contains(cond, "userRole"):
		for _, role := range execCtx.User.Roles {
			if strings.Contains(cond, role) {
				return true, nil
			}
		}
		return false, nil
	default:
		// No recognized probe: the rule applies by default.
		return true, nil
	}
}

var _ rule.Evaluator = (*Shim)(nil)
