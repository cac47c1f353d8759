package rule

import "sort"

// Applicable reports whether a rule's scope admits the given context.
// Agent and session scopes always apply: every context has an agent and is
// implicitly within a session. Project scope requires project info.
func Applicable(r Rule, execCtx ExecutionContext) bool {
	if !r.Enabled {
		return false
	}
	switch r.Scope {
	case ScopeGlobal, ScopeAgent, ScopeSession:
		return true
	case ScopeProject:
		return execCtx.Project != nil
	default:
		return false
	}
}

// Select computes the ordered list of rules to run for a context: enabled
// rules whose scope admits the context, in descending priority order. Ties
// preserve original rule-set order, which keeps evaluation deterministic.
func Select(rules []Rule, execCtx ExecutionContext) []Rule {
	selected := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if Applicable(r, execCtx) {
			selected = append(selected, r)
		}
	}
	sort.SliceStable(selected, func(i, j int) bool {
		return selected[i].Priority > selected[j].Priority
	})
	return selected
}
