package service

import (
	"sort"
	"time"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// topRuleCount is how many most-executed rules analytics reports.
const topRuleCount = 10

// recentEntryCount is how many recent history entries analytics includes.
const recentEntryCount = 10

// RuleExecutionCount pairs a rule with how often it actually executed.
type RuleExecutionCount struct {
	RuleID     string `json:"rule_id"`
	RuleName   string `json:"rule_name"`
	Executions int    `json:"executions"`
}

// ExecutionStats aggregates history entries where the rule executed.
type ExecutionStats struct {
	// TotalExecutions counts history entries with Executed=true.
	TotalExecutions int `json:"total_executions"`
	// SuccessRate is the percentage of executed entries with Success=true.
	SuccessRate float64 `json:"success_rate"`
	// AverageExecutionTime is the mean duration of executed entries.
	AverageExecutionTime time.Duration `json:"average_execution_time"`
	// TopRules are the most frequently executed rules, descending.
	TopRules []RuleExecutionCount `json:"top_rules"`
}

// Analytics is the full analytics report over the rule set and history.
type Analytics struct {
	// TotalRules is the size of the active rule set.
	TotalRules int `json:"total_rules"`
	// RulesByType groups the rule set by classification.
	RulesByType map[rule.Type]int `json:"rules_by_type"`
	// RulesByScope groups the rule set by scope.
	RulesByScope map[rule.Scope]int `json:"rules_by_scope"`
	// Execution aggregates the bounded in-memory history.
	Execution ExecutionStats `json:"execution"`
	// RecentEntries are the most recent history entries, newest first.
	RecentEntries []rule.ExecutionResult `json:"recent_entries"`
}

// AnalyticsService computes reports from the engine's rule set and history.
type AnalyticsService struct {
	engine *RuleEngine
}

// NewAnalyticsService creates an AnalyticsService over the given engine.
func NewAnalyticsService(engine *RuleEngine) *AnalyticsService {
	return &AnalyticsService{engine: engine}
}

// GetAnalytics computes the report from the current rule set and history.
// Counting is over executed entries: a rule that was selected but whose
// condition never matched does not appear in execution stats.
func (s *AnalyticsService) GetAnalytics() Analytics {
	rules := s.engine.Rules()
	history := s.engine.History().Snapshot()

	byType := make(map[rule.Type]int)
	byScope := make(map[rule.Scope]int)
	for _, r := range rules {
		byType[r.Type]++
		byScope[r.Scope]++
	}

	var executed, succeeded int
	var totalTime time.Duration
	countsByRule := make(map[string]*RuleExecutionCount)
	for _, entry := range history {
		if !entry.Executed {
			continue
		}
		executed++
		if entry.Success {
			succeeded++
		}
		totalTime += entry.ExecutionTime

		c, ok := countsByRule[entry.RuleID]
		if !ok {
			c = &RuleExecutionCount{RuleID: entry.RuleID, RuleName: entry.RuleName}
			countsByRule[entry.RuleID] = c
		}
		c.Executions++
	}

	stats := ExecutionStats{TotalExecutions: executed}
	if executed > 0 {
		stats.SuccessRate = float64(succeeded) / float64(executed) * 100
		stats.AverageExecutionTime = totalTime / time.Duration(executed)
	}

	top := make([]RuleExecutionCount, 0, len(countsByRule))
	for _, c := range countsByRule {
		top = append(top, *c)
	}
	sort.Slice(top, func(i, j int) bool {
		if top[i].Executions != top[j].Executions {
			return top[i].Executions > top[j].Executions
		}
		return top[i].RuleID < top[j].RuleID
	})
	if len(top) > topRuleCount {
		top = top[:topRuleCount]
	}
	stats.TopRules = top

	return Analytics{
		TotalRules:    len(rules),
		RulesByType:   byType,
		RulesByScope:  byScope,
		Execution:     stats,
		RecentEntries: s.engine.History().Recent(recentEntryCount),
	}
}
