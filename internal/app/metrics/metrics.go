// Package metrics exposes Prometheus collectors for the lottery service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	drawAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "draw",
			Name:      "attempts_total",
			Help:      "Total number of draw attempts by trigger and outcome.",
		},
		[]string{"trigger", "outcome"},
	)

	drawPollDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lottery",
			Subsystem: "draw",
			Name:      "poll_duration_seconds",
			Help:      "Time spent waiting for randomness resolution.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8), // 1s to ~2m
		},
	)

	instructions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "ledger",
			Name:      "instructions_total",
			Help:      "Total instructions submitted by kind and status.",
		},
		[]string{"instruction", "status"},
	)

	healthFindings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "lottery",
			Subsystem: "health",
			Name:      "findings_total",
			Help:      "Total health monitor findings by condition.",
		},
		[]string{"condition"},
	)

	roundID = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery",
			Subsystem: "round",
			Name:      "current_id",
			Help:      "Round id last observed on the ledger.",
		},
	)

	roundParticipants = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "lottery",
			Subsystem: "round",
			Name:      "participants",
			Help:      "Participant count last observed on the ledger.",
		},
	)
)

func init() {
	Registry.MustRegister(
		drawAttempts,
		drawPollDuration,
		instructions,
		healthFindings,
		roundID,
		roundParticipants,
	)
}

// Handler returns the HTTP handler serving the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// ObserveDrawAttempt records a finished draw attempt.
func ObserveDrawAttempt(trigger, outcome string) {
	drawAttempts.WithLabelValues(trigger, outcome).Inc()
}

// ObserveDrawPoll records how long the randomness wait took.
func ObserveDrawPoll(d time.Duration) {
	drawPollDuration.Observe(d.Seconds())
}

// ObserveInstruction records a submitted instruction's status.
func ObserveInstruction(instruction, status string) {
	instructions.WithLabelValues(instruction, status).Inc()
}

// ObserveHealthFinding records a health condition firing.
func ObserveHealthFinding(condition string) {
	healthFindings.WithLabelValues(condition).Inc()
}

// SetRoundState publishes the last observed round gauges.
func SetRoundState(id, participants uint64) {
	roundID.Set(float64(id))
	roundParticipants.Set(float64(participants))
}
