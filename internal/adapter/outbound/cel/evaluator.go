package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// maxExpressionLength is the maximum allowed length for condition expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, preventing cost-exhaustion
// from pathological rule text.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout bounds a single condition evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL condition expressions.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an Evaluator over the governance environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewGovernanceEnvironment()
	if err != nil {
		return nil, fmt.Errorf("create governance environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses and type-checks a condition, returning a compiled program.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// validateNesting checks the expression stays within the nesting depth limit.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// ValidateExpression checks that a condition is syntactically valid CEL and
// within the safety limits (expression length, nesting depth). Called before
// persisting a rule so invalid expressions cannot poison the store.
func (e *Evaluator) ValidateExpression(expr string) error {
	if len(expr) > maxExpressionLength {
		return fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if expr == "" {
		return errors.New("expression is empty")
	}
	if err := validateNesting(expr); err != nil {
		return err
	}
	if _, err := e.Compile(expr); err != nil {
		return fmt.Errorf("invalid condition expression: %w", err)
	}
	return nil
}

// EvaluateProgram runs a compiled program against the execution context.
// Evaluation runs under a timeout so a hostile expression cannot hang the
// engine; any error is returned for the caller to convert into a
// fail-closed (false) result.
func (e *Evaluator) EvaluateProgram(prg cel.Program, execCtx rule.ExecutionContext) (bool, error) {
	activation := BuildActivation(execCtx)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("condition did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// Evaluate compiles and runs a condition in one step, implementing the
// domain Evaluator interface. The engine's hot path uses pre-compiled
// programs instead; this form serves ad-hoc evaluation and tests.
func (e *Evaluator) Evaluate(condition string, execCtx rule.ExecutionContext) (bool, error) {
	prg, err := e.Compile(condition)
	if err != nil {
		return false, err
	}
	return e.EvaluateProgram(prg, execCtx)
}

var _ rule.Evaluator = (*Evaluator)(nil)
