package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/metrics"
)

// defaultSyncRetention is how many sync records are kept for health reporting.
const defaultSyncRetention = 50

// minRuleCount is the threshold below which governance recommends adding rules.
const minRuleCount = 3

// staleThreshold is the age after which the canonical document counts as stale.
const staleThreshold = 30 * 24 * time.Hour

// versionLine matches the version token under the "## Version" heading of
// the canonical document. The synchronizer treats the rest of the document
// as an opaque blob; only this line is rewritten per sync.
var versionLine = regexp.MustCompile(`(?m)^(## Version\s*\n+)v\S+`)

// SyncService replicates the canonical rule document to every configured
// project root and tracks sync health.
type SyncService struct {
	canonicalPath string
	roots         []string
	targetName    string
	retention     int
	ruleCount     func() int
	metrics       *metrics.Metrics
	logger        *slog.Logger

	mu      sync.Mutex
	records []rule.Sync
}

// SyncOption configures a SyncService.
type SyncOption func(*SyncService)

// WithSyncRetention sets how many sync records are retained.
func WithSyncRetention(n int) SyncOption {
	return func(s *SyncService) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithSyncMetrics attaches Prometheus instrumentation.
func WithSyncMetrics(m *metrics.Metrics) SyncOption {
	return func(s *SyncService) {
		s.metrics = m
	}
}

// WithRuleCounter supplies the current governance rule count for status
// recommendations. Without it, the rule-count recommendation is skipped.
func WithRuleCounter(count func() int) SyncOption {
	return func(s *SyncService) {
		s.ruleCount = count
	}
}

// NewSyncService creates a synchronizer for the canonical document at
// canonicalPath, distributing to the given project roots. The replica in
// each root keeps the canonical document's base name.
func NewSyncService(canonicalPath string, roots []string, logger *slog.Logger, opts ...SyncOption) *SyncService {
	s := &SyncService{
		canonicalPath: canonicalPath,
		roots:         roots,
		targetName:    filepath.Base(canonicalPath),
		retention:     defaultSyncRetention,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Synchronize reads the canonical document and writes a copy, with an
// injected provenance header and refreshed version token, into each
// configured project root. Roots are written in parallel; a failed root
// never aborts the others (continue-on-error). The returned Sync record
// collects successes and per-target errors.
//
// A failure to read the canonical document is the one fatal path: with no
// source there is nothing to distribute.
func (s *SyncService) Synchronize(ctx context.Context) (*rule.Sync, error) {
	source, err := os.ReadFile(s.canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("read canonical document: %w", err)
	}

	now := time.Now().UTC()
	content := s.stampVersion(string(source), now)
	header := fmt.Sprintf("<!-- Synced from %s at %s -->\n\n", s.canonicalPath, now.Format(time.RFC3339))
	payload := []byte(header + content)

	type outcome struct {
		root string
		err  error
	}
	outcomes := make([]outcome, len(s.roots))

	var wg sync.WaitGroup
	for i, root := range s.roots {
		wg.Add(1)
		go func(i int, root string) {
			defer wg.Done()
			outcomes[i] = outcome{root: root, err: s.writeTarget(root, payload)}
		}(i, root)
	}
	wg.Wait()

	record := rule.Sync{
		ID:        uuid.New().String(),
		Source:    s.canonicalPath,
		Targets:   []string{},
		Timestamp: now,
		Errors:    []string{},
	}
	for _, o := range outcomes {
		if o.err != nil {
			record.Errors = append(record.Errors, fmt.Sprintf("%s: %v", o.root, o.err))
			s.logger.Warn("sync target failed", "root", o.root, "error", o.err)
			continue
		}
		record.Targets = append(record.Targets, o.root)
	}
	record.SyncCount = len(record.Targets)

	if s.metrics != nil && len(record.Errors) > 0 {
		s.metrics.SyncErrorsTotal.Add(float64(len(record.Errors)))
	}

	s.mu.Lock()
	s.records = append(s.records, record)
	if len(s.records) > s.retention {
		s.records = s.records[len(s.records)-s.retention:]
	}
	s.mu.Unlock()

	s.logger.Info("rule synchronization complete",
		"synced", record.SyncCount, "failed", len(record.Errors))
	return &record, nil
}

// writeTarget writes the payload into one project root, creating the root
// directory if absent.
func (s *SyncService) writeTarget(root string, payload []byte) error {
	if err := os.MkdirAll(root, 0755); err != nil {
		return fmt.Errorf("create project root: %w", err)
	}
	target := filepath.Join(root, s.targetName)
	if err := os.WriteFile(target, payload, 0644); err != nil {
		return fmt.Errorf("write replica: %w", err)
	}
	return nil
}

// stampVersion rewrites the version token under the "## Version" heading
// with a sync-time-derived token. Documents without a version section get
// one appended.
func (s *SyncService) stampVersion(content string, now time.Time) string {
	token := fmt.Sprintf("v%d", now.Unix())
	if versionLine.MatchString(content) {
		return versionLine.ReplaceAllString(content, "${1}"+token)
	}
	return content + fmt.Sprintf("\n## Version\n%s\n", token)
}

// LastSync returns the most recent sync record, or nil if none has run.
func (s *SyncService) LastSync() *rule.Sync {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return nil
	}
	last := s.records[len(s.records)-1]
	return &last
}

// Records returns all retained sync records, oldest first.
func (s *SyncService) Records() []rule.Sync {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]rule.Sync, len(s.records))
	copy(out, s.records)
	return out
}

// GovernanceStatus reports distribution health plus actionable
// recommendations for the operator.
//
// Health grades: healthy (last sync had zero errors and covered all
// configured roots), warning (errors or partial coverage), error (no sync
// has ever run).
func (s *SyncService) GovernanceStatus() rule.GovernanceStatus {
	status := rule.GovernanceStatus{
		ConfiguredRoots: len(s.roots),
		Recommendations: []string{},
	}
	if s.ruleCount != nil {
		status.RuleCount = s.ruleCount()
	}

	last := s.LastSync()
	status.LastSync = last

	switch {
	case last == nil:
		status.Health = rule.HealthError
		status.Recommendations = append(status.Recommendations,
			"run an initial rule synchronization")
	case len(last.Errors) > 0 || last.SyncCount < len(s.roots):
		status.Health = rule.HealthWarning
		status.Recommendations = append(status.Recommendations,
			"fix synchronization errors before relying on distributed rules")
	default:
		status.Health = rule.HealthHealthy
	}

	if s.ruleCount != nil && status.RuleCount < minRuleCount {
		status.Recommendations = append(status.Recommendations,
			"add more governance rules to cover common agent actions")
	}

	if info, err := os.Stat(s.canonicalPath); err == nil {
		if time.Since(info.ModTime()) > staleThreshold {
			status.Recommendations = append(status.Recommendations,
				"review stale rules: the canonical document is over 30 days old")
		}
	}

	return status
}
