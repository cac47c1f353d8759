package action

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParse(t *testing.T) {
	tests := []struct {
		input    string
		wantKind Kind
		wantArg  string
	}{
		{"allow", KindAllow, ""},
		{"deny", KindDeny, ""},
		{"log:Secret accessed", KindLog, "Secret accessed"},
		{"log:with:colons", KindLog, "with:colons"},
		{"modify:auto_categorize", KindModify, "auto_categorize"},
		{"notify:ping ops", KindNotify, "ping ops"},
		{"DENY", KindDeny, ""},
		{"  allow  ", KindAllow, ""},
		{"escalate", KindAllow, ""}, // unrecognized defaults to allow
		{"", KindAllow, ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			spec := Parse(tt.input)
			if spec.Kind != tt.wantKind {
				t.Errorf("Parse(%q).Kind = %v, want %v", tt.input, spec.Kind, tt.wantKind)
			}
			if spec.Arg != tt.wantArg {
				t.Errorf("Parse(%q).Arg = %q, want %q", tt.input, spec.Arg, tt.wantArg)
			}
		})
	}
}

func TestSpecEffect(t *testing.T) {
	tests := []struct {
		kind Kind
		want rule.Effect
	}{
		{KindAllow, rule.EffectAllow},
		{KindDeny, rule.EffectDeny},
		{KindLog, rule.EffectLog},
		{KindModify, rule.EffectModify},
		{KindNotify, rule.EffectNotify},
	}
	for _, tt := range tests {
		if got := (Spec{Kind: tt.kind}).Effect(); got != tt.want {
			t.Errorf("Effect(%v) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestExecuteDeny(t *testing.T) {
	exec := NewExecutor(testLogger())
	r := rule.Rule{ID: "r1", Name: "Block deletes"}

	result := exec.Execute(Parse("deny"), r)
	if !result.Executed || !result.Success {
		t.Errorf("deny should be executed and successful: %+v", result)
	}
	if result.Effect != rule.EffectDeny {
		t.Errorf("effect = %v, want deny", result.Effect)
	}
	if result.Message != "Access denied by rule" {
		t.Errorf("message = %q, want %q", result.Message, "Access denied by rule")
	}
}

func TestExecuteLogCarriesMessage(t *testing.T) {
	exec := NewExecutor(testLogger())
	result := exec.Execute(Parse("log:Secret accessed"), rule.Rule{ID: "r1", Name: "Audit"})

	if result.Effect != rule.EffectLog {
		t.Fatalf("effect = %v, want log", result.Effect)
	}
	if result.Message != "Secret accessed" {
		t.Errorf("message = %q, want %q", result.Message, "Secret accessed")
	}
	if !result.Success {
		t.Error("log action should succeed")
	}
}

func TestExecuteModifyAttachesPayload(t *testing.T) {
	exec := NewExecutor(testLogger())
	result := exec.Execute(Parse("modify:auto_categorize"), rule.Rule{ID: "r1", Name: "Categorize"})

	if result.Effect != rule.EffectModify {
		t.Fatalf("effect = %v, want modify", result.Effect)
	}
	if modified, ok := result.Modifications["modified"].(bool); !ok || !modified {
		t.Errorf("modifications missing modified=true marker: %v", result.Modifications)
	}
	if _, ok := result.Modifications["timestamp"]; !ok {
		t.Error("modifications missing timestamp")
	}
	if hint, _ := result.Modifications["hint"].(string); hint != "auto_categorize" {
		t.Errorf("hint = %q, want auto_categorize", hint)
	}
}

func TestExecuteUnrecognizedDefaultsToAllow(t *testing.T) {
	exec := NewExecutor(testLogger())
	result := exec.Execute(Parse("escalate_to_human"), rule.Rule{ID: "r1", Name: "Odd"})

	if result.Effect != rule.EffectAllow || !result.Success {
		t.Errorf("unrecognized action should default to successful allow: %+v", result)
	}
}
