package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// RuleAdminService provides CRUD operations on the rule set with validation,
// persistence, and hot-reload. Mutations serialize on a single writer mutex
// relative to each other and to any in-flight save; in-flight evaluations
// keep reading the engine's previous snapshot until the reload publishes.
type RuleAdminService struct {
	store  rule.Store
	engine *RuleEngine
	logger *slog.Logger
	mu     sync.Mutex
}

// NewRuleAdminService creates a RuleAdminService.
func NewRuleAdminService(store rule.Store, engine *RuleEngine, logger *slog.Logger) *RuleAdminService {
	return &RuleAdminService{
		store:  store,
		engine: engine,
		logger: logger,
	}
}

// List returns all rules from the store in document order.
func (s *RuleAdminService) List(ctx context.Context) ([]rule.Rule, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return doc.Rules, nil
}

// Get returns a single rule by id.
// Returns rule.ErrRuleNotFound if no rule has that id.
func (s *RuleAdminService) Get(ctx context.Context, id string) (*rule.Rule, error) {
	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	for i := range doc.Rules {
		if doc.Rules[i].ID == id {
			r := doc.Rules[i]
			return &r, nil
		}
	}
	return nil, rule.ErrRuleNotFound
}

// AddRule creates a new rule. The service assigns the id (UUID when the
// caller leaves it empty) and initial metadata, validates the condition,
// appends the rule to the persisted document, and hot-reloads the engine.
func (s *RuleAdminService) AddRule(ctx context.Context, r rule.Rule) (*rule.Rule, error) {
	if r.Name == "" {
		return nil, errors.New("rule name is required")
	}
	if r.Priority < 1 || r.Priority > 100 {
		return nil, fmt.Errorf("rule priority must be 1-100, got %d", r.Priority)
	}
	s.validateCondition(r)

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	now := time.Now().UTC()
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	for _, existing := range doc.Rules {
		if existing.ID == r.ID {
			return nil, fmt.Errorf("add rule %s: %w", r.ID, rule.ErrDuplicateRule)
		}
	}
	if r.Metadata.CreatedBy == "" {
		r.Metadata.CreatedBy = "admin"
	}
	r.Metadata.LastModified = now
	r.Metadata.Version = "1.0.0"

	doc.Rules = append(doc.Rules, r)
	if err := s.persistAndReload(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("rule added", "id", r.ID, "name", r.Name, "priority", r.Priority)
	return &r, nil
}

// UpdateRule applies patch onto the rule with the given id. Only provided
// fields change: zero-valued fields are skipped, Enabled only when its
// pointer is set. The id is immutable and preserved; the metadata version
// is patch-bumped and LastModified refreshed.
// Returns rule.ErrRuleNotFound for unknown ids.
func (s *RuleAdminService) UpdateRule(ctx context.Context, id string, patch rule.Patch) (*rule.Rule, error) {
	if patch.Priority != 0 && (patch.Priority < 1 || patch.Priority > 100) {
		return nil, fmt.Errorf("rule priority must be 1-100, got %d", patch.Priority)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}

	idx := -1
	for i := range doc.Rules {
		if doc.Rules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("update rule %s: %w", id, rule.ErrRuleNotFound)
	}

	current := doc.Rules[idx]

	if patch.Name != "" {
		current.Name = patch.Name
	}
	if patch.Type != "" {
		current.Type = patch.Type
	}
	if patch.Scope != "" {
		current.Scope = patch.Scope
	}
	if patch.Condition != "" {
		current.Condition = patch.Condition
	}
	if patch.Action != "" {
		current.Action = patch.Action
	}
	if patch.Priority != 0 {
		current.Priority = patch.Priority
	}
	if patch.Enabled != nil {
		current.Enabled = *patch.Enabled
	}
	if patch.Description != "" {
		current.Metadata.Description = patch.Description
	}
	if patch.Tags != nil {
		current.Metadata.Tags = patch.Tags
	}

	s.validateCondition(current)

	current.Metadata.LastModified = time.Now().UTC()
	current.Metadata.Version = bumpPatch(current.Metadata.Version)

	doc.Rules[idx] = current
	if err := s.persistAndReload(ctx, doc); err != nil {
		return nil, err
	}

	s.logger.Info("rule updated", "id", id, "name", current.Name, "version", current.Metadata.Version)
	return &current, nil
}

// RemoveRule hard-deletes the rule with the given id. Execution history
// retains whatever outcomes the rule already produced.
// Returns rule.ErrRuleNotFound for unknown ids.
func (s *RuleAdminService) RemoveRule(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	idx := -1
	for i := range doc.Rules {
		if doc.Rules[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("remove rule %s: %w", id, rule.ErrRuleNotFound)
	}

	name := doc.Rules[idx].Name
	doc.Rules = append(doc.Rules[:idx], doc.Rules[idx+1:]...)
	if err := s.persistAndReload(ctx, doc); err != nil {
		return err
	}

	s.logger.Info("rule removed", "id", id, "name", name)
	return nil
}

// persistAndReload saves the document and hot-reloads the engine. A save
// failure is surfaced to the caller of the mutating operation; the engine
// keeps its previous snapshot in that case.
func (s *RuleAdminService) persistAndReload(ctx context.Context, doc *rule.Document) error {
	if err := s.store.Save(ctx, doc); err != nil {
		s.logger.Error("failed to persist rule document", "error", err)
		return fmt.Errorf("save rules: %w", err)
	}
	if err := s.engine.Reload(ctx); err != nil {
		s.logger.Error("failed to reload rules after mutation", "error", err)
		return fmt.Errorf("reload rules: %w", err)
	}
	return nil
}

// validateCondition logs a notice for conditions that will use legacy-shim
// evaluation. Such rules are accepted: the shim's fail-open default is part
// of the documented contract, and external editors may write legacy text.
func (s *RuleAdminService) validateCondition(r rule.Rule) {
	if legacy, err := s.engine.ValidateCondition(r.Condition); legacy {
		s.logger.Warn("rule condition is not valid CEL, legacy evaluation will apply",
			"rule_name", r.Name, "error", err)
	}
}

// bumpPatch increments the patch component of a semantic version.
// Unparseable versions restart at 1.0.1 rather than failing the update.
func bumpPatch(version string) string {
	v, err := semver.NewVersion(version)
	if err != nil {
		return "1.0.1"
	}
	next := v.IncPatch()
	return next.String()
}
