package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/cel-go/cel"

	celeval "github.com/jonthemediocre/secrets-agent-sub010/internal/adapter/outbound/cel"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/action"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/condition"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/metrics"
)

// conditionKind identifies how a compiled condition is evaluated.
type conditionKind int

const (
	// condLiteral is a trimmed "true"/"false" constant.
	condLiteral conditionKind = iota
	// condCEL is a pre-compiled CEL program.
	condCEL
	// condLegacy falls back to the substring shim for rule text that does
	// not compile as CEL.
	condLegacy
)

// compiledCondition is a rule condition prepared for repeated evaluation.
type compiledCondition struct {
	kind    conditionKind
	literal bool
	program cel.Program
	raw     string
}

// compiledRule is a rule with its condition and action parsed once at load.
type compiledRule struct {
	rule rule.Rule
	cond compiledCondition
	spec action.Spec
}

// rulesSnapshot is the immutable compiled rule set stored in atomic.Value.
// Rules keep their document insertion order; selection sorts stably by
// priority so ties resolve deterministically. The generation increments on
// every reload and is folded into result cache keys, so a verdict computed
// against a superseded snapshot can never be served after a reload.
type rulesSnapshot struct {
	gen      uint64
	compiled []compiledRule
	rules    []rule.Rule
}

// Archiver receives every recorded execution result for long-term retention.
// Archive failures are logged and never affect evaluation.
type Archiver interface {
	Append(ctx context.Context, results ...rule.ExecutionResult) error
}

// RuleEngine evaluates execution contexts against the governed rule set.
//
// Per evaluation it selects applicable rules, evaluates each condition in
// descending priority order, executes matching actions, aggregates one
// ValidationResult, and records per-rule outcomes to the bounded history.
// The compiled rule set lives in an atomic.Value snapshot so the evaluation
// hot path is lock-free; mutations and reloads serialize on a mutex and
// publish a fresh snapshot.
type RuleEngine struct {
	store     rule.Store
	evaluator *celeval.Evaluator
	shim      *condition.Shim
	executor  *action.Executor
	history   *ExecutionHistory
	archiver  Archiver
	cache     *ResultCache
	metrics   *metrics.Metrics
	logger    *slog.Logger

	snapshot atomic.Value // stores *rulesSnapshot
	mu       sync.Mutex   // serializes Reload and snapshot publication
	gen      uint64       // snapshot generation, guarded by mu
}

// EngineOption configures a RuleEngine.
type EngineOption func(*RuleEngine)

// WithHistoryCapacity sets the execution history ring capacity.
func WithHistoryCapacity(capacity int) EngineOption {
	return func(e *RuleEngine) {
		e.history = NewExecutionHistory(capacity)
	}
}

// WithResultCache enables validation result caching with the given capacity.
// The cache is cleared on every reload. Disabled by default: cached verdicts
// skip history recording, which analytics-heavy deployments may not want.
func WithResultCache(size int) EngineOption {
	return func(e *RuleEngine) {
		e.cache = NewResultCache(size)
	}
}

// WithArchiver attaches a long-term execution record sink.
func WithArchiver(a Archiver) EngineOption {
	return func(e *RuleEngine) {
		e.archiver = a
	}
}

// WithMetrics attaches Prometheus instrumentation.
func WithMetrics(m *metrics.Metrics) EngineOption {
	return func(e *RuleEngine) {
		e.metrics = m
	}
}

// NewRuleEngine creates an engine, loading and compiling the rule set from
// the store. The ctx parameter covers the initial load and can be cancelled
// to abort startup.
func NewRuleEngine(ctx context.Context, store rule.Store, logger *slog.Logger, opts ...EngineOption) (*RuleEngine, error) {
	evaluator, err := celeval.NewEvaluator()
	if err != nil {
		return nil, fmt.Errorf("create condition evaluator: %w", err)
	}

	e := &RuleEngine{
		store:     store,
		evaluator: evaluator,
		shim:      condition.NewShim(),
		executor:  action.NewExecutor(logger),
		history:   NewExecutionHistory(defaultHistoryCap),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}

	if err := e.Reload(ctx); err != nil {
		return nil, err
	}

	snap := e.loadSnapshot()
	logger.Info("rule engine initialized", "rules", len(snap.compiled))
	return e, nil
}

// Reload loads the rule document from the store, recompiles all conditions
// and actions, and atomically publishes the new snapshot. Safe to call
// concurrently with ExecuteRules.
func (e *RuleEngine) Reload(ctx context.Context) error {
	doc, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rule document: %w", err)
	}

	compiled := e.compileRules(doc.Rules)

	e.mu.Lock()
	e.gen++
	e.snapshot.Store(&rulesSnapshot{gen: e.gen, compiled: compiled, rules: doc.Rules})
	e.mu.Unlock()

	if e.cache != nil {
		e.cache.Clear()
	}
	if e.metrics != nil {
		e.metrics.RulesLoaded.Set(float64(len(compiled)))
	}

	e.logger.Debug("rule set reloaded", "rules", len(compiled))
	return nil
}

// StartWatching runs the store watcher until ctx is cancelled, reloading the
// rule set on every external edit. Watch failures are logged and non-fatal:
// the engine keeps serving its last snapshot.
func (e *RuleEngine) StartWatching(ctx context.Context) {
	go func() {
		err := e.store.Watch(ctx, func() {
			if reloadErr := e.Reload(ctx); reloadErr != nil {
				e.logger.Warn("hot reload failed", "error", reloadErr)
			}
		})
		if err != nil && ctx.Err() == nil {
			e.logger.Warn("rule store watch stopped", "error", err)
		}
	}()
}

// compileRules prepares each rule for repeated evaluation. Conditions that
// are not literal booleans are compiled as CEL; text that does not compile
// falls back to the legacy substring shim rather than being rejected, so an
// externally edited store never breaks evaluation.
func (e *RuleEngine) compileRules(rules []rule.Rule) []compiledRule {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		cr := compiledRule{
			rule: r,
			spec: action.Parse(r.Action),
		}

		trimmed := strings.TrimSpace(r.Condition)
		switch trimmed {
		case "true", "":
			// An absent condition means the rule always applies.
			cr.cond = compiledCondition{kind: condLiteral, literal: true, raw: r.Condition}
		case "false":
			cr.cond = compiledCondition{kind: condLiteral, literal: false, raw: r.Condition}
		default:
			prg, err := e.evaluator.Compile(trimmed)
			if err != nil {
				e.logger.Debug("condition is not CEL, using legacy evaluation",
					"rule_id", r.ID, "rule_name", r.Name, "error", err)
				cr.cond = compiledCondition{kind: condLegacy, raw: r.Condition}
			} else {
				cr.cond = compiledCondition{kind: condCEL, program: prg, raw: r.Condition}
			}
		}
		compiled = append(compiled, cr)
	}
	return compiled
}

// loadSnapshot returns the current snapshot atomically (lock-free).
func (e *RuleEngine) loadSnapshot() *rulesSnapshot {
	return e.snapshot.Load().(*rulesSnapshot)
}

// Rules returns a copy of the active rule set in document order.
func (e *RuleEngine) Rules() []rule.Rule {
	snap := e.loadSnapshot()
	out := make([]rule.Rule, len(snap.rules))
	copy(out, snap.rules)
	return out
}

// History exposes the bounded execution history for analytics.
func (e *RuleEngine) History() *ExecutionHistory {
	return e.history
}

// selectRules filters the snapshot to rules applicable to the context and
// orders them by descending priority, ties preserving insertion order.
func selectRules(snap *rulesSnapshot, execCtx rule.ExecutionContext) []compiledRule {
	selected := make([]compiledRule, 0, len(snap.compiled))
	for _, cr := range snap.compiled {
		if rule.Applicable(cr.rule, execCtx) {
			selected = append(selected, cr)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].rule.Priority > selected[j].rule.Priority
	})
	return selected
}

// evaluateCondition decides whether a compiled condition holds.
//
// The asymmetry here is deliberate and load-bearing: a condition with no
// recognized structure evaluates to true (the rule applies by default),
// while an error during evaluation yields false (the rule is skipped).
func (e *RuleEngine) evaluateCondition(cr compiledRule, execCtx rule.ExecutionContext) bool {
	switch cr.cond.kind {
	case condLiteral:
		return cr.cond.literal
	case condCEL:
		ok, err := e.evaluator.EvaluateProgram(cr.cond.program, execCtx)
		if err != nil {
			e.logger.Warn("condition evaluation failed",
				"rule_id", cr.rule.ID, "rule_name", cr.rule.Name, "error", err)
			return false
		}
		return ok
	default:
		ok, err := e.shim.Evaluate(cr.cond.raw, execCtx)
		if err != nil {
			e.logger.Warn("legacy condition evaluation failed",
				"rule_id", cr.rule.ID, "rule_name", cr.rule.Name, "error", err)
			return false
		}
		return ok
	}
}

// ExecuteRules evaluates one execution context against the active rule set
// and returns the aggregate verdict.
//
// The engine never returns an error for a well-formed context: individual
// condition and action failures are folded into per-rule results. The only
// error path is a failure to obtain the rule snapshot, which is fatal to
// this call.
func (e *RuleEngine) ExecuteRules(ctx context.Context, execCtx rule.ExecutionContext) (rule.ValidationResult, error) {
	start := time.Now()

	snapVal := e.snapshot.Load()
	if snapVal == nil {
		if e.metrics != nil {
			e.metrics.EvaluationsTotal.WithLabelValues("error").Inc()
		}
		return rule.ValidationResult{}, fmt.Errorf("rule snapshot unavailable")
	}
	snap := snapVal.(*rulesSnapshot)

	// The snapshot generation is part of the key: an in-flight evaluation
	// may Put after a concurrent Reload already cleared the cache, but its
	// entry lands under the old generation and can never be served.
	var cacheKey uint64
	if e.cache != nil {
		cacheKey = computeCacheKey(snap.gen, execCtx)
		if cached, ok := e.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	selected := selectRules(snap, execCtx)

	result := rule.ValidationResult{
		Valid:         true,
		Errors:        []string{},
		Warnings:      []string{},
		Modifications: []map[string]any{},
	}

	for _, cr := range selected {
		ruleStart := time.Now()

		if !e.evaluateCondition(cr, execCtx) {
			// Condition-false rules stay in the result trail but never
			// affect the verdict; evaluation continues with the rest.
			result.Results = append(result.Results, rule.ExecutionResult{
				RuleID:        cr.rule.ID,
				RuleName:      cr.rule.Name,
				Executed:      false,
				Success:       true,
				Effect:        rule.EffectAllow,
				ExecutionTime: time.Since(ruleStart),
				Timestamp:     time.Now().UTC(),
			})
			continue
		}

		execResult := e.executor.Execute(cr.spec, cr.rule)
		execResult.ExecutionTime = time.Since(ruleStart)
		result.Results = append(result.Results, execResult)

		if e.metrics != nil {
			e.metrics.RuleExecutionsTotal.WithLabelValues(string(execResult.Effect)).Inc()
		}

		switch {
		case !execResult.Success:
			result.Valid = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("Rule '%s': %s", cr.rule.Name, execResult.Message))
		case execResult.Effect == rule.EffectDeny:
			result.Valid = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("Rule '%s': %s", cr.rule.Name, execResult.Message))
		default:
			if execResult.Effect == rule.EffectModify {
				result.Modifications = append(result.Modifications, execResult.Modifications)
			}
			if execResult.Message != "" {
				result.Warnings = append(result.Warnings,
					fmt.Sprintf("Rule '%s': %s", cr.rule.Name, execResult.Message))
			}
		}
	}

	result.Duration = time.Since(start)

	e.history.Append(result.Results...)
	if e.archiver != nil && len(result.Results) > 0 {
		if err := e.archiver.Append(ctx, result.Results...); err != nil {
			e.logger.Warn("history archive append failed", "error", err)
		}
	}

	if e.metrics != nil {
		outcome := "valid"
		if !result.Valid {
			outcome = "invalid"
		}
		e.metrics.EvaluationsTotal.WithLabelValues(outcome).Inc()
		e.metrics.EvaluationDuration.Observe(result.Duration.Seconds())
	}

	if e.cache != nil {
		e.cache.Put(cacheKey, result)
	}

	return result, nil
}

// ValidateCondition checks whether a condition is acceptable for a new or
// updated rule. Literal booleans and valid CEL pass; anything else is
// accepted for legacy-shim evaluation but reported so callers can notify
// the author.
func (e *RuleEngine) ValidateCondition(cond string) (legacy bool, err error) {
	trimmed := strings.TrimSpace(cond)
	if trimmed == "" || trimmed == "true" || trimmed == "false" {
		return false, nil
	}
	if celErr := e.evaluator.ValidateExpression(trimmed); celErr != nil {
		return true, celErr
	}
	return false, nil
}
