package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jonthemediocre/secrets-agent-sub010/internal/adapter/outbound/file"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/adapter/outbound/sqlite"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/config"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/metrics"
	"github.com/jonthemediocre/secrets-agent-sub010/internal/service"
)

// runtimeDeps bundles the wired engine and its collaborators for commands.
type runtimeDeps struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *file.RuleStore
	engine   *service.RuleEngine
	admin    *service.RuleAdminService
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	archive  *sqlite.HistoryArchive
}

// buildRuntime loads config and wires the engine stack. The caller must
// invoke close() when finished to release the optional archive handle.
func buildRuntime(ctx context.Context) (*runtimeDeps, func(), error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := newLogger(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store := file.NewRuleStore(cfg.Store.Path, logger)

	opts := []service.EngineOption{
		service.WithHistoryCapacity(cfg.History.Capacity),
		service.WithMetrics(m),
	}
	if cfg.Cache.Enabled {
		opts = append(opts, service.WithResultCache(cfg.Cache.Size))
	}

	var archive *sqlite.HistoryArchive
	if cfg.History.ArchivePath != "" {
		archive, err = sqlite.OpenHistoryArchive(cfg.History.ArchivePath)
		if err != nil {
			// Archive failures degrade to in-memory-only history.
			logger.Warn("history archive unavailable", "error", err)
		} else {
			opts = append(opts, service.WithArchiver(archive))
		}
	}

	engine, err := service.NewRuleEngine(ctx, store, logger, opts...)
	if err != nil {
		if archive != nil {
			_ = archive.Close()
		}
		return nil, nil, fmt.Errorf("initialize rule engine: %w", err)
	}

	deps := &runtimeDeps{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		engine:   engine,
		admin:    service.NewRuleAdminService(store, engine, logger),
		registry: registry,
		metrics:  m,
		archive:  archive,
	}
	closeFn := func() {
		if archive != nil {
			_ = archive.Close()
		}
	}
	return deps, closeFn, nil
}

// newSyncService wires the synchronizer from config, or reports a usable
// error when sync is unconfigured.
func (d *runtimeDeps) newSyncService() (*service.SyncService, error) {
	if d.cfg.Sync.CanonicalPath == "" {
		return nil, fmt.Errorf("sync.canonical_path is not configured")
	}
	return service.NewSyncService(
		d.cfg.Sync.CanonicalPath,
		d.cfg.Sync.Roots,
		d.logger,
		service.WithSyncRetention(d.cfg.Sync.Retention),
		service.WithSyncMetrics(d.metrics),
		service.WithRuleCounter(func() int { return len(d.engine.Rules()) }),
	), nil
}
