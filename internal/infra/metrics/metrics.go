// Package metrics provides Prometheus metrics for LevelHabit.
// Counters for completions and unlocks, histograms for HTTP latency,
// gauges for health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Completions ────────────────────────────────────────────────────────────

// Completions counts recorded habit completions by difficulty.
var Completions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "levelhabit",
	Name:      "completions_total",
	Help:      "Total recorded habit completions.",
}, []string{"difficulty"})

// CompletionRejections counts completions that were refused.
var CompletionRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "levelhabit",
	Name:      "completion_rejections_total",
	Help:      "Total refused completions by reason.",
}, []string{"reason"})

// ExpAwarded sums all experience handed out, completions and rewards.
var ExpAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "levelhabit",
	Name:      "exp_awarded_total",
	Help:      "Total experience awarded.",
}, []string{"source"})

// LevelUps counts player and stat level increases.
var LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "levelhabit",
	Name:      "level_ups_total",
	Help:      "Total level increases by kind (player, stat).",
}, []string{"kind"})

// ─── Unlocks ────────────────────────────────────────────────────────────────

// Unlocks counts newly unlocked achievements and jobs.
var Unlocks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "levelhabit",
	Name:      "unlocks_total",
	Help:      "Total unlocks by kind (achievement, job).",
}, []string{"kind"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// HTTPDuration tracks API request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "levelhabit",
	Name:      "http_request_duration_seconds",
	Help:      "API request duration in seconds.",
	Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
}, []string{"route", "method", "status"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthStatus reports each health check (1 = healthy, 0 = failing).
var HealthStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "levelhabit",
	Name:      "health_check_status",
	Help:      "Health check status (1 healthy, 0 failing).",
}, []string{"check"})

// LeaderboardErrors counts failed leaderboard writes. They never fail a
// request.
var LeaderboardErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "levelhabit",
	Name:      "leaderboard_errors_total",
	Help:      "Total failed leaderboard updates.",
})
