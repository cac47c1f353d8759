// Package file provides the file-backed rule store: a versioned JSON or YAML
// document with atomic writes, first-boot seeding, and fsnotify-based change
// notification for hot reload.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/domain/rule"
)

// Format selects the on-disk encoding of the rule document.
type Format string

const (
	// FormatJSON stores the document as indented JSON.
	FormatJSON Format = "json"
	// FormatYAML stores the document as YAML.
	FormatYAML Format = "yaml"
)

// FormatForPath derives the document format from a file extension.
// Unknown extensions default to JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// RuleStore persists the rule document to a single file.
// Writes are atomic (write-tmp-fsync-rename) with a cross-process flock and
// a .bak copy of the previous document. First load with no existing file
// seeds the default rule set and persists it immediately.
type RuleStore struct {
	path   string
	format Format
	mu     sync.Mutex
	logger *slog.Logger
}

// NewRuleStore creates a RuleStore for the given path. The encoding is
// derived from the file extension (.yaml/.yml for YAML, JSON otherwise).
func NewRuleStore(path string, logger *slog.Logger) *RuleStore {
	return &RuleStore{
		path:   path,
		format: FormatForPath(path),
		logger: logger,
	}
}

// Path returns the configured file path.
func (s *RuleStore) Path() string {
	return s.path
}

// Load reads and parses the rule document.
//
// A missing file is first-boot: the default rule set is seeded and persisted
// before returning. A corrupt file degrades to an empty document with a
// logged warning; the corrupt file is left in place for operator inspection.
func (s *RuleStore) Load(ctx context.Context) (*rule.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.seed(ctx)
		}
		s.logger.Warn("rule store unreadable, starting with empty rule set",
			"path", s.path, "error", err)
		return s.emptyDocument(), nil
	}

	// Warn if the document is readable by group/other.
	if runtime.GOOS != "windows" {
		if info, statErr := os.Stat(s.path); statErr == nil {
			if mode := info.Mode().Perm(); mode&0077 != 0 {
				s.logger.Warn("rule store has too-open permissions, should be 0600",
					"path", s.path, "current_mode", fmt.Sprintf("%04o", mode))
			}
		}
	}

	doc, err := s.unmarshal(data)
	if err != nil {
		s.logger.Warn("rule store corrupt, starting with empty rule set",
			"path", s.path, "error", err)
		return s.emptyDocument(), nil
	}
	return doc, nil
}

// Save atomically overwrites the persisted document.
//
// The write sequence is: in-process mutex, flock on path+".lock", backup of
// the current file to path+".bak", marshal, write path+".tmp" with 0600,
// fsync, rename over path.
func (s *RuleStore) Save(ctx context.Context, doc *rule.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc.LastUpdated = time.Now().UTC()
	if doc.Version == "" {
		doc.Version = rule.DocumentVersion
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("create rule store directory: %w", err)
	}

	lockPath := s.path + ".lock"
	lockFile, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	defer func() { _ = lockFile.Close() }()

	if err := flockLock(lockFile.Fd()); err != nil {
		return fmt.Errorf("acquire file lock: %w", err)
	}
	defer flockUnlock(lockFile.Fd()) //nolint:errcheck

	if currentData, readErr := os.ReadFile(s.path); readErr == nil {
		if writeErr := os.WriteFile(s.path+".bak", currentData, 0600); writeErr != nil {
			s.logger.Warn("failed to create backup", "error", writeErr)
		}
	}

	data, err := s.marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal rule document: %w", err)
	}

	if err := s.writeAtomic(data); err != nil {
		return err
	}

	if err := os.Chmod(s.path, 0600); err != nil {
		s.logger.Warn("failed to set permissions on rule store", "error", err)
	}

	s.logger.Debug("rule document saved", "path", s.path, "rules", len(doc.Rules))
	return nil
}

// seed writes the default rule set on first boot and returns it.
func (s *RuleStore) seed(ctx context.Context) (*rule.Document, error) {
	now := time.Now().UTC()
	doc := &rule.Document{
		Version:     rule.DocumentVersion,
		LastUpdated: now,
		Rules:       rule.DefaultRules(now),
	}
	if err := s.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("seed default rules: %w", err)
	}
	s.logger.Info("seeded default rule set", "path", s.path, "rules", len(doc.Rules))
	return doc, nil
}

func (s *RuleStore) emptyDocument() *rule.Document {
	return &rule.Document{
		Version:     rule.DocumentVersion,
		LastUpdated: time.Now().UTC(),
		Rules:       []rule.Rule{},
	}
}

func (s *RuleStore) marshal(doc *rule.Document) ([]byte, error) {
	if s.format == FormatYAML {
		return yaml.Marshal(doc)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (s *RuleStore) unmarshal(data []byte) (*rule.Document, error) {
	var doc rule.Document
	if s.format == FormatYAML {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rule document: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse rule document: %w", err)
		}
	}
	if doc.Rules == nil {
		doc.Rules = []rule.Rule{}
	}
	return &doc, nil
}

// writeAtomic writes data to a temp file, fsyncs it, and renames it over the
// target path. On any error the temp file is cleaned up.
func (s *RuleStore) writeAtomic(data []byte) error {
	tmpPath := s.path + ".tmp"

	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		_ = f.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := f.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp to rule store: %w", err)
	}
	return nil
}

var _ rule.Store = (*RuleStore)(nil)
