// Package action parses and executes rule action expressions.
//
// Action strings form a small closed DSL: "allow", "deny", "log:<message>",
// "modify:<hint>", "notify:<message>". Strings are parsed once into a Spec
// when rules are loaded or added, not re-parsed on every execution.
package action

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// Kind enumerates the recognized action forms.
type Kind int

const (
	// KindAllow permits the action. Unrecognized action strings also parse
	// as KindAllow; allow is the documented default effect.
	KindAllow Kind = iota
	// KindDeny blocks the action.
	KindDeny
	// KindLog records a message to the operational log.
	KindLog
	// KindModify attaches a modification payload to the result.
	KindModify
	// KindNotify raises an out-of-band notification message.
	KindNotify
)

// denyMessage is the fixed message attached to deny results.
const denyMessage = "Access denied by rule"

// Spec is a parsed action expression.
type Spec struct {
	// Kind is the action form.
	Kind Kind
	// Arg is the text after the first colon for log/modify/notify forms.
	Arg string
}

// Parse interprets an action string into a Spec. Anything unrecognized
// parses as allow rather than failing; rule authors get the permissive
// default instead of a broken rule set.
func Parse(s string) Spec {
	trimmed := strings.TrimSpace(s)
	head, arg, _ := strings.Cut(trimmed, ":")
	switch strings.ToLower(head) {
	case "allow":
		return Spec{Kind: KindAllow}
	case "deny":
		return Spec{Kind: KindDeny}
	case "log":
		return Spec{Kind: KindLog, Arg: arg}
	case "modify":
		return Spec{Kind: KindModify, Arg: arg}
	case "notify":
		return Spec{Kind: KindNotify, Arg: arg}
	default:
		return Spec{Kind: KindAllow}
	}
}

// Effect returns the rule.Effect this spec produces when executed.
func (s Spec) Effect() rule.Effect {
	switch s.Kind {
	case KindDeny:
		return rule.EffectDeny
	case KindLog:
		return rule.EffectLog
	case KindModify:
		return rule.EffectModify
	case KindNotify:
		return rule.EffectNotify
	default:
		return rule.EffectAllow
	}
}

// Executor applies parsed action specs, producing per-rule results.
type Executor struct {
	logger *slog.Logger
	// now is swappable for deterministic tests.
	now func() time.Time
}

// NewExecutor creates an Executor that writes log actions to the given logger.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger, now: time.Now}
}

// Execute applies spec for the named rule and fills in the effect-specific
// fields of an ExecutionResult. A panic during execution is recovered and
// converted to a failed deny result; action failures never propagate.
func (e *Executor) Execute(spec Spec, r rule.Rule) (result rule.ExecutionResult) {
	result = rule.ExecutionResult{
		RuleID:    r.ID,
		RuleName:  r.Name,
		Executed:  true,
		Success:   true,
		Timestamp: e.now().UTC(),
	}

	defer func() {
		if rec := recover(); rec != nil {
			result.Success = false
			result.Effect = rule.EffectDeny
			result.Message = fmt.Sprintf("Action execution failed: %v", rec)
			e.logger.Warn("action execution failed",
				"rule_id", r.ID, "rule_name", r.Name, "error", rec)
		}
	}()

	switch spec.Kind {
	case KindDeny:
		result.Effect = rule.EffectDeny
		result.Message = denyMessage
	case KindLog:
		result.Effect = rule.EffectLog
		result.Message = spec.Arg
		e.logger.Info("rule log action",
			"rule_id", r.ID, "rule_name", r.Name, "message", spec.Arg)
	case KindModify:
		result.Effect = rule.EffectModify
		result.Modifications = map[string]any{
			"modified":  true,
			"timestamp": e.now().UTC(),
		}
		if spec.Arg != "" {
			result.Modifications["hint"] = spec.Arg
		}
	case KindNotify:
		result.Effect = rule.EffectNotify
		result.Message = spec.Arg
		e.logger.Info("rule notify action",
			"rule_id", r.ID, "rule_name", r.Name, "message", spec.Arg)
	default:
		result.Effect = rule.EffectAllow
	}
	return result
}
