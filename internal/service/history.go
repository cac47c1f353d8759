// Package service contains application services for rule governance.
package service

import (
	"sync"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// defaultHistoryCap is the default capacity of the execution history ring.
const defaultHistoryCap = 1000

// ExecutionHistory is a bounded ring buffer of execution results, shared as
// an append target across concurrent evaluations. It is append-only during
// normal operation and truncated from the front on overflow (FIFO eviction).
// History feeds analytics only; it never affects future evaluations.
type ExecutionHistory struct {
	mu      sync.Mutex
	entries []rule.ExecutionResult
	cap     int
}

// NewExecutionHistory creates a history ring with the given capacity.
// Non-positive capacities use the default (1000).
func NewExecutionHistory(capacity int) *ExecutionHistory {
	if capacity <= 0 {
		capacity = defaultHistoryCap
	}
	return &ExecutionHistory{
		entries: make([]rule.ExecutionResult, 0, capacity),
		cap:     capacity,
	}
}

// Append records results, evicting the oldest entries once at capacity.
func (h *ExecutionHistory) Append(results ...rule.ExecutionResult) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range results {
		if len(h.entries) >= h.cap {
			copy(h.entries, h.entries[1:])
			h.entries[len(h.entries)-1] = r
		} else {
			h.entries = append(h.entries, r)
		}
	}
}

// Len returns the current number of entries.
func (h *ExecutionHistory) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.entries)
}

// Recent returns the n most recent entries, newest first.
func (h *ExecutionHistory) Recent(n int) []rule.ExecutionResult {
	h.mu.Lock()
	defer h.mu.Unlock()

	total := len(h.entries)
	if n > total {
		n = total
	}
	if n <= 0 {
		return nil
	}
	result := make([]rule.ExecutionResult, n)
	for i := 0; i < n; i++ {
		result[i] = h.entries[total-1-i]
	}
	return result
}

// Snapshot returns a copy of all entries in insertion order (oldest first).
func (h *ExecutionHistory) Snapshot() []rule.ExecutionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]rule.ExecutionResult, len(h.entries))
	copy(out, h.entries)
	return out
}
