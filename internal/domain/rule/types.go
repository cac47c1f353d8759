// Package rule contains domain types for dynamic governance rule evaluation.
package rule

import "time"

// Type classifies a rule. Classification only; it does not affect evaluation.
type Type string

const (
	// TypeValidation marks rules that validate an action's inputs.
	TypeValidation Type = "validation"
	// TypeMutation marks rules that rewrite an action's payload.
	TypeMutation Type = "mutation"
	// TypeBehavior marks rules that observe or log agent behavior.
	TypeBehavior Type = "behavior"
	// TypeSecurity marks rules that gate dangerous operations.
	TypeSecurity Type = "security"
)

// Scope determines which execution contexts a rule applies to.
type Scope string

const (
	// ScopeGlobal rules apply to every context.
	ScopeGlobal Scope = "global"
	// ScopeProject rules apply only when the context carries project info.
	ScopeProject Scope = "project"
	// ScopeAgent rules apply to every context (every context has an agent).
	ScopeAgent Scope = "agent"
	// ScopeSession rules apply to every context (every context is in a session).
	ScopeSession Scope = "session"
)

// Metadata carries bookkeeping fields for a rule.
type Metadata struct {
	// CreatedBy identifies who or what created the rule.
	CreatedBy string `json:"created_by" yaml:"created_by"`
	// LastModified is refreshed on every update (UTC).
	LastModified time.Time `json:"last_modified" yaml:"last_modified"`
	// Version is a semantic version, patch-bumped on every update.
	Version string `json:"version" yaml:"version"`
	// Description provides additional context about the rule.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	// Tags are free-form labels for grouping and search.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Rule is a named condition->action governance policy.
type Rule struct {
	// ID is the unique identifier, assigned at creation, immutable.
	ID string `json:"id" yaml:"id"`
	// Name is a human-readable label.
	Name string `json:"name" yaml:"name"`
	// Type classifies the rule (validation/mutation/behavior/security).
	Type Type `json:"type" yaml:"type"`
	// Scope determines applicability (global/project/agent/session).
	Scope Scope `json:"scope" yaml:"scope"`
	// Condition is an expression evaluated against an execution context.
	Condition string `json:"condition" yaml:"condition"`
	// Action names the effect applied when the condition holds
	// ("allow", "deny", "log:<msg>", "modify:<hint>", "notify:<msg>").
	Action string `json:"action" yaml:"action"`
	// Priority orders evaluation, 1-100; higher runs first.
	Priority int `json:"priority" yaml:"priority"`
	// Enabled rules are selectable; disabled rules are never evaluated.
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Metadata carries versioning and provenance fields.
	Metadata Metadata `json:"metadata" yaml:"metadata"`
}

// Patch is a partial rule update. Zero-valued fields are left unchanged;
// Enabled is a pointer so an omitted flag is distinguishable from false.
type Patch struct {
	Name      string `json:"name,omitempty"`
	Type      Type   `json:"type,omitempty"`
	Scope     Scope  `json:"scope,omitempty"`
	Condition string `json:"condition,omitempty"`
	Action    string `json:"action,omitempty"`
	Priority  int    `json:"priority,omitempty"`
	Enabled   *bool  `json:"enabled,omitempty"`
	// Description and Tags patch the rule's metadata.
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// User identifies the human principal behind an execution context.
type User struct {
	ID    string   `json:"id"`
	Roles []string `json:"roles"`
}

// Project carries optional project info; its presence gates project-scoped rules.
type Project struct {
	Name     string `json:"name"`
	Category string `json:"category"`
}

// ExecutionContext is the input to one evaluation pass: who is doing what.
// Contexts are ephemeral; the engine never stores them beyond history records.
type ExecutionContext struct {
	// AgentID identifies the actor requesting the action.
	AgentID string `json:"agent_id"`
	// AgentType is the actor's kind (e.g. "cursor", "vscode", "cli").
	AgentType string `json:"agent_type"`
	// Action is the attempted operation (e.g. "secret_read", "delete").
	Action string `json:"action"`
	// Data is an arbitrary payload relevant to the action.
	Data map[string]any `json:"data,omitempty"`
	// User is the human principal on whose behalf the agent acts.
	User User `json:"user"`
	// Project is optional; nil means no project-scoped rules apply.
	Project *Project `json:"project,omitempty"`
	// Timestamp is when the action was attempted.
	Timestamp time.Time `json:"timestamp"`
}

// Effect is the outcome kind an executed rule produces.
type Effect string

const (
	// EffectAllow permits the action.
	EffectAllow Effect = "allow"
	// EffectDeny blocks the action.
	EffectDeny Effect = "deny"
	// EffectModify rewrites part of the action payload.
	EffectModify Effect = "modify"
	// EffectLog records an operational log entry.
	EffectLog Effect = "log"
	// EffectNotify raises an out-of-band notification.
	EffectNotify Effect = "notify"
)

// ExecutionResult is the per-rule outcome of one evaluation pass.
type ExecutionResult struct {
	// RuleID is the ID of the evaluated rule.
	RuleID string `json:"rule_id"`
	// RuleName is the human-readable name of the evaluated rule.
	RuleName string `json:"rule_name"`
	// Executed is false when the rule's condition did not match.
	Executed bool `json:"executed"`
	// Success is false only when action execution itself failed.
	Success bool `json:"success"`
	// Effect is the action taken (allow/deny/modify/log/notify).
	Effect Effect `json:"effect"`
	// Modifications is the payload attached by modify effects.
	Modifications map[string]any `json:"modifications,omitempty"`
	// Message is an optional diagnostic or log message.
	Message string `json:"message,omitempty"`
	// ExecutionTime is how long condition + action evaluation took.
	ExecutionTime time.Duration `json:"execution_time"`
	// Timestamp is when the rule was evaluated (UTC).
	Timestamp time.Time `json:"timestamp"`
}

// ValidationResult is the engine's aggregate verdict for one context.
//
// Invariant: Valid is false if and only if at least one executed rule failed
// or at least one executed rule's effect was deny.
type ValidationResult struct {
	// Valid is the aggregate allow/deny verdict.
	Valid bool `json:"valid"`
	// Errors lists deny and failure messages, in execution order.
	Errors []string `json:"errors"`
	// Warnings lists non-deny messages (e.g. log output), in execution order.
	Warnings []string `json:"warnings"`
	// Modifications accumulates modify payloads, in execution order.
	Modifications []map[string]any `json:"modifications"`
	// Results are the per-rule outcomes that produced this verdict.
	Results []ExecutionResult `json:"results,omitempty"`
	// Duration is the total wall-clock time of the evaluation pass.
	Duration time.Duration `json:"duration"`
}

// Document is the persisted shape of a rule set.
type Document struct {
	// Version is the document format version.
	Version string `json:"version" yaml:"version"`
	// LastUpdated is when the document was last written (UTC).
	LastUpdated time.Time `json:"last_updated" yaml:"last_updated"`
	// Rules is the full rule collection, in insertion order.
	Rules []Rule `json:"rules" yaml:"rules"`
}

// Sync records one synchronization pass of the canonical rule document.
type Sync struct {
	// ID is a unique identifier for this sync pass.
	ID string `json:"id"`
	// Source is the path of the canonical document.
	Source string `json:"source"`
	// Targets lists the roots that were successfully written.
	Targets []string `json:"targets"`
	// Timestamp is when the pass ran (UTC).
	Timestamp time.Time `json:"timestamp"`
	// SyncCount is the number of successfully written targets.
	SyncCount int `json:"sync_count"`
	// Errors lists per-target failures; a failed target never aborts others.
	Errors []string `json:"errors"`
}

// Health grades the governance status reported by the synchronizer.
type Health string

const (
	// HealthHealthy means the last sync had no errors and full coverage.
	HealthHealthy Health = "healthy"
	// HealthWarning means the last sync had errors or partial coverage.
	HealthWarning Health = "warning"
	// HealthError means no sync has ever run.
	HealthError Health = "error"
)

// GovernanceStatus summarizes rule distribution health across project roots.
type GovernanceStatus struct {
	// Health is the overall grade (healthy/warning/error).
	Health Health `json:"health"`
	// LastSync is the most recent sync record, nil if none has run.
	LastSync *Sync `json:"last_sync,omitempty"`
	// ConfiguredRoots is the number of project roots under governance.
	ConfiguredRoots int `json:"configured_roots"`
	// RuleCount is the current number of governance rules.
	RuleCount int `json:"rule_count"`
	// Recommendations are actionable follow-ups for the operator.
	Recommendations []string `json:"recommendations"`
}
