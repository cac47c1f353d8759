package rule

import (
	"context"
	"errors"
)

// Error values for store and rule-management operations.
var (
	// ErrRuleNotFound is returned by update/remove when the target id does not exist.
	ErrRuleNotFound = errors.New("rule not found")
	// ErrDuplicateRule is returned when adding a rule whose id already exists.
	ErrDuplicateRule = errors.New("rule id already exists")
)

// Store persists the rule set and notifies on external changes.
// Implementations must tolerate a missing or corrupt backing document by
// degrading to an empty rule set rather than failing the load.
type Store interface {
	// Load reads the persisted document, replacing the in-memory set entirely.
	// A missing or corrupt store yields an empty document, not an error.
	Load(ctx context.Context) (*Document, error)
	// Save atomically overwrites the persisted document.
	Save(ctx context.Context, doc *Document) error
	// Watch monitors the backing store for external edits and invokes onChange
	// for each detected change until ctx is cancelled. Watch failures are
	// logged and non-fatal; the engine keeps its last in-memory snapshot.
	Watch(ctx context.Context, onChange func()) error
}

// Evaluator decides whether a rule's condition holds for a context.
//
// The asymmetry between the two failure modes is deliberate and must be
// preserved: a condition with no recognized structure evaluates to true
// (fail open), while an error during evaluation yields false (fail closed).
type Evaluator interface {
	// Evaluate reports whether the condition is satisfied by the context.
	// The returned error is diagnostic only; callers treat an error as a
	// false result for that rule and never propagate it.
	Evaluate(condition string, execCtx ExecutionContext) (bool, error)
}
