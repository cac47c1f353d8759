// Package metrics defines Prometheus instrumentation for the rule engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the governance engine.
// Pass to components that need to record metrics.
type Metrics struct {
	EvaluationsTotal    *prometheus.CounterVec
	RuleExecutionsTotal *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	RulesLoaded         prometheus.Gauge
	SyncErrorsTotal     prometheus.Counter
}

// New creates and registers all metrics with the given registry.
func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "governance",
				Name:      "evaluations_total",
				Help:      "Total evaluation passes by aggregate outcome",
			},
			[]string{"outcome"}, // outcome=valid/invalid/error
		),
		RuleExecutionsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "governance",
				Name:      "rule_executions_total",
				Help:      "Total rule executions by effect",
			},
			[]string{"effect"}, // effect=allow/deny/modify/log/notify
		),
		EvaluationDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "governance",
				Name:      "evaluation_duration_seconds",
				Help:      "End-to-end duration of one evaluation pass",
				Buckets:   prometheus.DefBuckets,
			},
		),
		RulesLoaded: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Namespace: "governance",
				Name:      "rules_loaded",
				Help:      "Number of rules in the active snapshot",
			},
		),
		SyncErrorsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "governance",
				Name:      "sync_errors_total",
				Help:      "Total per-target failures during rule synchronization",
			},
		),
	}
}
