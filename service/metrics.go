package service

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const MetricsSubsystem = "verification"

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Challenges issued, labelled by outcome (issued, rate_limited, invalid).
	Challenges metrics.Counter
	// Signature verifications, labelled by outcome.
	Verifications metrics.Counter
	// Role mutations applied, labelled by op.
	RoleMutations metrics.Counter
	// Role mutations skipped, labelled by op and reason.
	RoleSkips metrics.Counter
	// Balance lookups that failed and were counted as zero.
	BalanceErrors metrics.Counter
	// Batch run subjects, labelled by outcome (successful, unchanged, failed).
	BatchSubjects metrics.Counter
	// Duration of a full batch run in seconds.
	BatchDuration metrics.Histogram
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
func PrometheusMetrics(namespace string) *Metrics {
	return &Metrics{
		Challenges: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "challenges_total",
			Help:      "Verification challenges requested, by outcome.",
		}, []string{"outcome"}),
		Verifications: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "signatures_total",
			Help:      "Signature verifications, by outcome.",
		}, []string{"outcome"}),
		RoleMutations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "role_mutations_total",
			Help:      "Role additions and removals applied.",
		}, []string{"op"}),
		RoleSkips: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "role_skips_total",
			Help:      "Role mutations that were planned but skipped.",
		}, []string{"op", "reason"}),
		BalanceErrors: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "balance_errors_total",
			Help:      "Balance lookups that failed during a batch run.",
		}, []string{}),
		BatchSubjects: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_subjects_total",
			Help:      "Subjects reconciled by batch runs, by outcome.",
		}, []string{"outcome"}),
		BatchDuration: prometheus.NewHistogramFrom(stdprometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a full batch run.",
			Buckets:   stdprometheus.ExponentialBuckets(1, 2, 12),
		}, []string{}),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Challenges:    discard.NewCounter(),
		Verifications: discard.NewCounter(),
		RoleMutations: discard.NewCounter(),
		RoleSkips:     discard.NewCounter(),
		BalanceErrors: discard.NewCounter(),
		BatchSubjects: discard.NewCounter(),
		BatchDuration: discard.NewHistogram(),
	}
}
