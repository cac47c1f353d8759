package service

import (
	"context"
	"errors"
	"testing"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/adapter/outbound/memory"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

func newAdminFixture(t *testing.T) (*RuleAdminService, *RuleEngine) {
	t.Helper()
	store := memory.NewSeededRuleStore()
	engine := newTestEngine(t, store)
	return NewRuleAdminService(store, engine, discardLogger()), engine
}

func TestAddRuleAssignsIDAndMetadata(t *testing.T) {
	admin, engine := newAdminFixture(t)

	added, err := admin.AddRule(context.Background(), rule.Rule{
		Name:      "Block Prod Writes",
		Type:      rule.TypeSecurity,
		Scope:     rule.ScopeGlobal,
		Condition: `action == "write" && project_category == "production"`,
		Action:    "deny",
		Priority:  80,
		Enabled:   true,
	})
	if err != nil {
		t.Fatalf("AddRule() error: %v", err)
	}

	if added.ID == "" {
		t.Error("service should assign an id")
	}
	if added.Metadata.Version != "1.0.0" {
		t.Errorf("initial version = %q, want 1.0.0", added.Metadata.Version)
	}
	if added.Metadata.CreatedBy != "admin" {
		t.Errorf("CreatedBy = %q, want admin", added.Metadata.CreatedBy)
	}
	if added.Metadata.LastModified.IsZero() {
		t.Error("LastModified should be set")
	}

	// The engine reloads immediately: the new rule is live.
	if got := len(engine.Rules()); got != 4 {
		t.Errorf("engine has %d rules after add, want 4", got)
	}
}

func TestAddRuleValidation(t *testing.T) {
	admin, _ := newAdminFixture(t)
	ctx := context.Background()

	if _, err := admin.AddRule(ctx, rule.Rule{Priority: 50}); err == nil {
		t.Error("nameless rule should be rejected")
	}
	if _, err := admin.AddRule(ctx, rule.Rule{Name: "x", Priority: 0}); err == nil {
		t.Error("priority 0 should be rejected")
	}
	if _, err := admin.AddRule(ctx, rule.Rule{Name: "x", Priority: 101}); err == nil {
		t.Error("priority 101 should be rejected")
	}
}

func TestAddRuleRejectsDuplicateID(t *testing.T) {
	admin, _ := newAdminFixture(t)

	_, err := admin.AddRule(context.Background(), rule.Rule{
		ID: "seed-secret-access-audit", Name: "Clone", Priority: 50,
	})
	if !errors.Is(err, rule.ErrDuplicateRule) {
		t.Errorf("duplicate id error = %v, want ErrDuplicateRule", err)
	}
}

func TestUpdateRuleBumpsPatchVersion(t *testing.T) {
	admin, _ := newAdminFixture(t)

	updated, err := admin.UpdateRule(context.Background(), "seed-secret-access-audit", rule.Patch{
		Priority: 70,
	})
	if err != nil {
		t.Fatalf("UpdateRule() error: %v", err)
	}
	if updated.ID != "seed-secret-access-audit" {
		t.Errorf("id changed to %q", updated.ID)
	}
	if updated.Priority != 70 {
		t.Errorf("Priority = %d, want 70", updated.Priority)
	}
	if updated.Metadata.Version != "1.0.1" {
		t.Errorf("Version = %q, want 1.0.1", updated.Metadata.Version)
	}
	// Untouched fields survive the merge.
	if updated.Name != "Secret Access Audit" {
		t.Errorf("Name = %q, want unchanged", updated.Name)
	}
	if updated.Condition != `action.contains("secret_read")` {
		t.Errorf("Condition = %q, want unchanged", updated.Condition)
	}
}

func TestUpdateRuleOmittedEnabledIsPreserved(t *testing.T) {
	admin, _ := newAdminFixture(t)

	// A priority-only patch must not touch the enabled flag.
	updated, err := admin.UpdateRule(context.Background(), "seed-admin-only-dangerous", rule.Patch{
		Priority: 60,
	})
	if err != nil {
		t.Fatalf("UpdateRule() error: %v", err)
	}
	if !updated.Enabled {
		t.Error("patch without Enabled disabled the rule")
	}

	disabled := false
	updated, err = admin.UpdateRule(context.Background(), "seed-admin-only-dangerous", rule.Patch{
		Enabled: &disabled,
	})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Enabled {
		t.Error("explicit Enabled=false should disable the rule")
	}
	if updated.Priority != 60 {
		t.Errorf("Priority = %d, want 60 from the previous patch", updated.Priority)
	}
}

func TestUpdateRuleCanDisable(t *testing.T) {
	admin, engine := newAdminFixture(t)

	disabled := false
	if _, err := admin.UpdateRule(context.Background(), "seed-admin-only-dangerous", rule.Patch{
		Enabled: &disabled,
	}); err != nil {
		t.Fatal(err)
	}

	execCtx := baseContext()
	execCtx.Action = "delete"
	result, err := engine.ExecuteRules(context.Background(), execCtx)
	if err != nil {
		t.Fatal(err)
	}
	if !result.Valid {
		t.Errorf("disabled deny rule should no longer block, errors: %v", result.Errors)
	}
}

func TestUpdateRuleUnknownID(t *testing.T) {
	admin, _ := newAdminFixture(t)
	_, err := admin.UpdateRule(context.Background(), "nope", rule.Patch{Priority: 10})
	if !errors.Is(err, rule.ErrRuleNotFound) {
		t.Errorf("error = %v, want ErrRuleNotFound", err)
	}
}

func TestRemoveRule(t *testing.T) {
	admin, engine := newAdminFixture(t)
	ctx := context.Background()

	if err := admin.RemoveRule(ctx, "seed-auto-categorize-secrets"); err != nil {
		t.Fatalf("RemoveRule() error: %v", err)
	}
	if got := len(engine.Rules()); got != 2 {
		t.Errorf("engine has %d rules after remove, want 2", got)
	}
	if _, err := admin.Get(ctx, "seed-auto-categorize-secrets"); !errors.Is(err, rule.ErrRuleNotFound) {
		t.Errorf("Get after remove = %v, want ErrRuleNotFound", err)
	}
	if err := admin.RemoveRule(ctx, "seed-auto-categorize-secrets"); !errors.Is(err, rule.ErrRuleNotFound) {
		t.Errorf("second remove = %v, want ErrRuleNotFound", err)
	}
}

func TestListAndGet(t *testing.T) {
	admin, _ := newAdminFixture(t)
	ctx := context.Background()

	rules, err := admin.List(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 3 {
		t.Fatalf("List() returned %d rules, want 3", len(rules))
	}

	r, err := admin.Get(ctx, "seed-admin-only-dangerous")
	if err != nil {
		t.Fatal(err)
	}
	if r.Name != "Admin Only Dangerous Operations" {
		t.Errorf("Get returned %q", r.Name)
	}
}

func TestBumpPatch(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1.0.0", "1.0.1"},
		{"1.2.9", "1.2.10"},
		{"2.0.0", "2.0.1"},
		{"garbage", "1.0.1"},
		{"", "1.0.1"},
	}
	for _, tt := range tests {
		if got := bumpPatch(tt.in); got != tt.want {
			t.Errorf("bumpPatch(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
