package rule

import "time"

// DocumentVersion is the current persisted document format version.
const DocumentVersion = "1.0.0"

// initialRuleVersion is the semantic version assigned to newly created rules.
const initialRuleVersion = "1.0.0"

// DefaultRules returns the rule set seeded on first run with no existing store.
// Conditions are CEL expressions over the governance environment.
func DefaultRules(now time.Time) []Rule {
	meta := Metadata{
		CreatedBy:    "system",
		LastModified: now,
		Version:      initialRuleVersion,
	}

	audit := meta
	audit.Description = "Log every secret read for audit trails"
	audit.Tags = []string{"audit", "secrets"}

	adminOnly := meta
	adminOnly.Description = "Block delete operations for non-admin users"
	adminOnly.Tags = []string{"security", "rbac"}

	categorize := meta
	categorize.Description = "Attach auto-categorization to new secrets"
	categorize.Tags = []string{"secrets", "hygiene"}

	return []Rule{
		{
			ID:        "seed-secret-access-audit",
			Name:      "Secret Access Audit",
			Type:      TypeBehavior,
			Scope:     ScopeGlobal,
			Condition: `action.contains("secret_read")`,
			Action:    "log:Secret accessed",
			Priority:  90,
			Enabled:   true,
			Metadata:  audit,
		},
		{
			ID:        "seed-admin-only-dangerous",
			Name:      "Admin Only Dangerous Operations",
			Type:      TypeSecurity,
			Scope:     ScopeGlobal,
			Condition: `action == "delete" && !("admin" in user_roles)`,
			Action:    "deny",
			Priority:  95,
			Enabled:   true,
			Metadata:  adminOnly,
		},
		{
			ID:        "seed-auto-categorize-secrets",
			Name:      "Auto-Categorize Secrets",
			Type:      TypeMutation,
			Scope:     ScopeProject,
			Condition: `action == "secret_create"`,
			Action:    "modify:auto_categorize",
			Priority:  50,
			Enabled:   true,
			Metadata:  categorize,
		},
	}
}

// NewMetadata returns metadata for a freshly created rule.
func NewMetadata(createdBy string, now time.Time) Metadata {
	return Metadata{
		CreatedBy:    createdBy,
		LastModified: now,
		Version:      initialRuleVersion,
	}
}
