package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/adapter/outbound/memory"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T, store rule.Store, opts ...EngineOption) *RuleEngine {
	t.Helper()
	engine, err := NewRuleEngine(context.Background(), store, discardLogger(), opts...)
	if err != nil {
		t.Fatalf("NewRuleEngine() error: %v", err)
	}
	return engine
}

func storeWith(t *testing.T, rules ...rule.Rule) *memory.RuleStore {
	t.Helper()
	store := memory.NewRuleStore()
	err := store.Save(context.Background(), &rule.Document{
		Version: rule.DocumentVersion,
		Rules:   rules,
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func baseContext() rule.ExecutionContext {
	return rule.ExecutionContext{
		AgentID:   "agent-1",
		AgentType: "cursor",
		Action:    "secret_read",
		Data:      map[string]any{},
		User:      rule.User{ID: "u1", Roles: []string{"developer"}},
		Timestamp: time.Now().UTC(),
	}
}

func TestSecretReadTriggersAuditLog(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatalf("ExecuteRules() error: %v", err)
	}

	if !result.Valid {
		t.Errorf("secret_read should be valid, errors: %v", result.Errors)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "Secret accessed") {
		t.Errorf("expected one audit warning, got %v", result.Warnings)
	}

	found := false
	for _, r := range result.Results {
		if r.RuleID == "seed-secret-access-audit" {
			found = true
			if !r.Executed || !r.Success || r.Effect != rule.EffectLog {
				t.Errorf("audit rule result = %+v", r)
			}
		}
	}
	if !found {
		t.Error("audit rule missing from result trail")
	}
}

func TestNonAdminDeleteIsDenied(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	execCtx := baseContext()
	execCtx.Action = "delete"

	result, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}

	if result.Valid {
		t.Error("non-admin delete should be denied")
	}
	if len(result.Errors) != 1 {
		t.Fatalf("got errors %v, want exactly one", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "Admin Only Dangerous Operations") ||
		!strings.Contains(result.Errors[0], "Access denied by rule") {
		t.Errorf("error should name the rule and the deny message, got %q", result.Errors[0])
	}
}

func TestAdminDeleteIsAllowed(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	execCtx := baseContext()
	execCtx.Action = "delete"
	execCtx.User.Roles = []string{"admin"}

	result, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}

	if !result.Valid {
		t.Errorf("admin delete should be valid, errors: %v", result.Errors)
	}
	// The deny rule's condition did not match: it appears in the trail as
	// not-executed and leaves the verdict alone.
	for _, r := range result.Results {
		if r.RuleID == "seed-admin-only-dangerous" && r.Executed {
			t.Error("deny rule should not execute for admin users")
		}
	}
}

func TestProjectScopedRuleSkippedWithoutProject(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	execCtx := baseContext()
	execCtx.Action = "secret_create"

	result, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range result.Results {
		if r.RuleID == "seed-auto-categorize-secrets" {
			t.Error("project-scoped rule must not appear for a context without a project")
		}
	}
	if len(result.Modifications) != 0 {
		t.Errorf("unexpected modifications: %v", result.Modifications)
	}
}

func TestProjectScopedRuleAppliesModifications(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	execCtx := baseContext()
	execCtx.Action = "secret_create"
	execCtx.Project = &rule.Project{Name: "vault", Category: "infra"}

	result, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Errorf("secret_create should be valid, errors: %v", result.Errors)
	}
	if len(result.Modifications) != 1 {
		t.Fatalf("got %d modifications, want 1", len(result.Modifications))
	}
	mod := result.Modifications[0]
	if mod["modified"] != true || mod["hint"] != "auto_categorize" {
		t.Errorf("modification payload = %v", mod)
	}
}

func TestNoApplicableRulesYieldsCleanVerdict(t *testing.T) {
	engine := newTestEngine(t, storeWith(t))

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("empty rule set should be valid")
	}
	if result.Errors == nil || result.Warnings == nil || result.Modifications == nil {
		t.Error("aggregate slices must be empty, not nil")
	}
	if len(result.Errors)+len(result.Warnings)+len(result.Modifications)+len(result.Results) != 0 {
		t.Errorf("expected an empty verdict, got %+v", result)
	}
}

func TestDenyDoesNotShortCircuitRemainingRules(t *testing.T) {
	now := time.Now().UTC()
	meta := rule.NewMetadata("test", now)
	store := storeWith(t,
		rule.Rule{ID: "deny-first", Name: "Deny First", Type: rule.TypeSecurity,
			Scope: rule.ScopeGlobal, Condition: "true", Action: "deny",
			Priority: 90, Enabled: true, Metadata: meta},
		rule.Rule{ID: "log-second", Name: "Log Second", Type: rule.TypeBehavior,
			Scope: rule.ScopeGlobal, Condition: "true", Action: "log:still ran",
			Priority: 10, Enabled: true, Metadata: meta},
	)
	engine := newTestEngine(t, store)

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Error("deny should invalidate the verdict")
	}
	if len(result.Results) != 2 {
		t.Fatalf("both rules should run, got %d results", len(result.Results))
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "still ran") {
		t.Errorf("lower-priority rule should still execute after a deny, warnings: %v", result.Warnings)
	}
}

func TestRulesRunInDescendingPriorityOrder(t *testing.T) {
	now := time.Now().UTC()
	meta := rule.NewMetadata("test", now)
	store := storeWith(t,
		rule.Rule{ID: "low", Name: "Low", Type: rule.TypeBehavior, Scope: rule.ScopeGlobal,
			Condition: "true", Action: "log:low", Priority: 10, Enabled: true, Metadata: meta},
		rule.Rule{ID: "high", Name: "High", Type: rule.TypeBehavior, Scope: rule.ScopeGlobal,
			Condition: "true", Action: "log:high", Priority: 90, Enabled: true, Metadata: meta},
		rule.Rule{ID: "mid", Name: "Mid", Type: rule.TypeBehavior, Scope: rule.ScopeGlobal,
			Condition: "true", Action: "log:mid", Priority: 50, Enabled: true, Metadata: meta},
	)
	engine := newTestEngine(t, store)

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	var order []string
	for _, r := range result.Results {
		order = append(order, r.RuleID)
	}
	want := []string{"high", "mid", "low"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("execution order = %v, want %v", order, want)
		}
	}
}

func TestDisabledRulesNeverRun(t *testing.T) {
	now := time.Now().UTC()
	store := storeWith(t,
		rule.Rule{ID: "off", Name: "Off", Type: rule.TypeSecurity, Scope: rule.ScopeGlobal,
			Condition: "true", Action: "deny", Priority: 99, Enabled: false,
			Metadata: rule.NewMetadata("test", now)},
	)
	engine := newTestEngine(t, store)

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid || len(result.Results) != 0 {
		t.Errorf("disabled rule must be invisible to evaluation, got %+v", result)
	}
}

func TestConditionEvaluationFailureSkipsRule(t *testing.T) {
	now := time.Now().UTC()
	// data.missing errors at runtime: the key is absent from the map.
	store := storeWith(t,
		rule.Rule{ID: "errs", Name: "Errs", Type: rule.TypeSecurity, Scope: rule.ScopeGlobal,
			Condition: `data.missing == "x"`, Action: "deny", Priority: 90, Enabled: true,
			Metadata: rule.NewMetadata("test", now)},
	)
	engine := newTestEngine(t, store)

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Errorf("a failing condition must skip the rule, not deny: %v", result.Errors)
	}
	if len(result.Results) != 1 || result.Results[0].Executed {
		t.Errorf("rule should be recorded as not executed, got %+v", result.Results)
	}
}

func TestLegacyConditionTextFallsBackToSubstringEvaluation(t *testing.T) {
	now := time.Now().UTC()
	store := storeWith(t,
		// Not valid CEL; the substring evaluator sees "action" plus the
		// action name and matches it against the context.
		rule.Rule{ID: "legacy", Name: "Legacy", Type: rule.TypeBehavior, Scope: rule.ScopeGlobal,
			Condition: `action includes secret_read`, Action: "log:legacy matched",
			Priority: 50, Enabled: true, Metadata: rule.NewMetadata("test", now)},
	)
	engine := newTestEngine(t, store)

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "legacy matched") {
		t.Errorf("legacy condition should match via substring evaluation, warnings: %v", result.Warnings)
	}
}

func TestLiteralFalseConditionNeverExecutes(t *testing.T) {
	now := time.Now().UTC()
	store := storeWith(t,
		rule.Rule{ID: "never", Name: "Never", Type: rule.TypeSecurity, Scope: rule.ScopeGlobal,
			Condition: "false", Action: "deny", Priority: 90, Enabled: true,
			Metadata: rule.NewMetadata("test", now)},
	)
	engine := newTestEngine(t, store)

	result, err := engine.ExecuteRules(context.Background(), baseContext())
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Error("a literal false condition must never deny")
	}
	if len(result.Results) != 1 || result.Results[0].Executed {
		t.Errorf("expected one not-executed result, got %+v", result.Results)
	}
}

func TestExecutionHistoryRecordsAllOutcomes(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	if _, err := engine.ExecuteRules(context.Background(), baseContext()); err != nil {
		t.Fatal(err)
	}

	entries := engine.History().Snapshot()
	if len(entries) == 0 {
		t.Fatal("history should record per-rule outcomes")
	}
	// Both matched and unmatched rules land in history.
	var executed, skipped int
	for _, e := range entries {
		if e.Executed {
			executed++
		} else {
			skipped++
		}
	}
	if executed == 0 || skipped == 0 {
		t.Errorf("history should contain executed and skipped outcomes, got %d/%d", executed, skipped)
	}
}

func TestReloadPublishesNewRuleSet(t *testing.T) {
	store := memory.NewSeededRuleStore()
	engine := newTestEngine(t, store)

	if got := len(engine.Rules()); got != 3 {
		t.Fatalf("seeded engine has %d rules, want 3", got)
	}

	err := store.Save(context.Background(), &rule.Document{
		Version: rule.DocumentVersion,
		Rules:   []rule.Rule{},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatalf("Reload() error: %v", err)
	}
	if got := len(engine.Rules()); got != 0 {
		t.Errorf("after reload engine has %d rules, want 0", got)
	}
}

func TestValidateCondition(t *testing.T) {
	engine := newTestEngine(t, memory.NewSeededRuleStore())

	tests := []struct {
		name       string
		cond       string
		wantLegacy bool
	}{
		{"empty", "", false},
		{"literal true", "true", false},
		{"literal false", "false", false},
		{"valid cel", `action == "delete"`, false},
		{"legacy text", "userRole contains admin", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			legacy, err := engine.ValidateCondition(tt.cond)
			if legacy != tt.wantLegacy {
				t.Errorf("ValidateCondition(%q) legacy = %v, want %v (err %v)",
					tt.cond, legacy, tt.wantLegacy, err)
			}
		})
	}
}

func TestConcurrentExecutionAndReload(t *testing.T) {
	store := memory.NewSeededRuleStore()
	engine := newTestEngine(t, store)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := engine.ExecuteRules(context.Background(), baseContext()); err != nil {
					t.Errorf("ExecuteRules() error: %v", err)
					return
				}
			}
		}()
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for j := 0; j < 20; j++ {
			if err := engine.Reload(context.Background()); err != nil {
				t.Errorf("Reload() error: %v", err)
				return
			}
		}
	}()
	wg.Wait()
}

func TestCachedVerdictIsReused(t *testing.T) {
	archive := &countingArchiver{}
	engine := newTestEngine(t, memory.NewSeededRuleStore(),
		WithResultCache(16), WithArchiver(archive))

	execCtx := baseContext()
	first, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}
	second, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}

	if first.Valid != second.Valid || len(first.Results) != len(second.Results) {
		t.Error("cached verdict should match the computed one")
	}
	// The second call was served from cache: no new archive appends.
	if got := archive.calls(); got != 1 {
		t.Errorf("archive received %d appends, want 1", got)
	}
}

func TestReloadSupersedesInFlightVerdict(t *testing.T) {
	store := memory.NewSeededRuleStore()
	// The archiver runs between verdict computation and the cache store, so
	// gating it holds an evaluation exactly where a concurrent reload races
	// with its cache write.
	gate := &gateArchiver{entered: make(chan struct{}, 4), release: make(chan struct{})}
	engine := newTestEngine(t, store, WithResultCache(16), WithArchiver(gate))

	execCtx := baseContext()

	done := make(chan rule.ValidationResult, 1)
	go func() {
		result, err := engine.ExecuteRules(context.Background(), execCtx)
		if err != nil {
			t.Errorf("ExecuteRules() error: %v", err)
		}
		done <- result
	}()

	<-gate.entered

	// While the first evaluation is parked, a deny-all rule lands and the
	// engine reloads.
	doc, err := store.Load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	doc.Rules = append(doc.Rules, rule.Rule{
		ID: "deny-all", Name: "Deny All", Type: rule.TypeSecurity,
		Scope: rule.ScopeGlobal, Condition: "true", Action: "deny",
		Priority: 99, Enabled: true,
		Metadata: rule.NewMetadata("test", time.Now().UTC()),
	})
	if err := store.Save(context.Background(), doc); err != nil {
		t.Fatal(err)
	}
	if err := engine.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}

	close(gate.release)
	stale := <-done
	if !stale.Valid {
		t.Fatal("the in-flight evaluation ran under the old rule set and should be valid")
	}

	// The parked evaluation's cache write must not mask the new rule set.
	result, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Valid {
		t.Errorf("verdict after reload = valid, want deny (errors=%v)", result.Errors)
	}
}

// gateArchiver parks the first Append until released; later Appends pass
// straight through.
type gateArchiver struct {
	entered chan struct{}
	release chan struct{}
}

func (a *gateArchiver) Append(ctx context.Context, results ...rule.ExecutionResult) error {
	select {
	case a.entered <- struct{}{}:
	default:
	}
	<-a.release
	return nil
}

type countingArchiver struct {
	mu sync.Mutex
	n  int
}

func (a *countingArchiver) Append(ctx context.Context, results ...rule.ExecutionResult) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.n++
	return nil
}

func (a *countingArchiver) calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.n
}
