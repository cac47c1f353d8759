// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// RuleStore implements rule.Store with an in-memory document.
// Thread-safe for concurrent access. For development and testing.
type RuleStore struct {
	mu  sync.RWMutex
	doc rule.Document
}

// NewRuleStore creates an empty in-memory rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{
		doc: rule.Document{
			Version:     rule.DocumentVersion,
			LastUpdated: time.Now().UTC(),
			Rules:       []rule.Rule{},
		},
	}
}

// NewSeededRuleStore creates an in-memory store holding the default rule set.
func NewSeededRuleStore() *RuleStore {
	now := time.Now().UTC()
	return &RuleStore{
		doc: rule.Document{
			Version:     rule.DocumentVersion,
			LastUpdated: now,
			Rules:       rule.DefaultRules(now),
		},
	}
}

// Load returns a copy of the in-memory document.
func (s *RuleStore) Load(ctx context.Context) (*rule.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyDocument(&s.doc), nil
}

// Save replaces the in-memory document with a copy of doc.
func (s *RuleStore) Save(ctx context.Context, doc *rule.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.LastUpdated = time.Now().UTC()
	s.doc = *copyDocument(doc)
	return nil
}

// Watch blocks until ctx is cancelled. The in-memory store has no external
// edit source, so there is nothing to observe.
func (s *RuleStore) Watch(ctx context.Context, onChange func()) error {
	<-ctx.Done()
	return ctx.Err()
}

// copyDocument deep-copies a rule document so callers cannot mutate the
// stored rule set through returned slices.
func copyDocument(doc *rule.Document) *rule.Document {
	out := &rule.Document{
		Version:     doc.Version,
		LastUpdated: doc.LastUpdated,
		Rules:       make([]rule.Rule, len(doc.Rules)),
	}
	copy(out.Rules, doc.Rules)
	return out
}

var _ rule.Store = (*RuleStore)(nil)
