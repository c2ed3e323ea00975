// Package metrics registers harmony's Prometheus instrumentation.
//
// Collectors live on the default registry and are served by the server's /metrics route.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesMerged counts reconciler mutations.
	// Labels:
	//   - source: "snapshot", "optimistic", "broadcast", "confirm", "edit", "delete"
	MessagesMerged = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmony_chat_messages_merged_total",
			Help: "Total number of messages merged into a room view",
		},
		[]string{"source"},
	)

	// SendsDropped counts sends attempted while a channel was not subscribed.
	SendsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "harmony_chat_sends_dropped_total",
			Help: "Total number of chat sends dropped because the channel was not subscribed",
		},
	)

	// ChannelStates counts channel state transitions.
	ChannelStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmony_chat_channel_transitions_total",
			Help: "Total number of chat channel state transitions",
		},
		[]string{"state"},
	)

	// TokenRefreshes counts provider token refreshes.
	// Labels:
	//   - outcome: "success", "failure"
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmony_token_refresh_total",
			Help: "Total number of provider token refresh attempts",
		},
		[]string{"outcome"},
	)

	// TokenRefreshDuration measures refresh latency.
	TokenRefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harmony_token_refresh_duration_seconds",
			Help:    "Duration of provider token refreshes in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	// ProviderRequests counts provider API calls by endpoint and status class.
	ProviderRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmony_provider_requests_total",
			Help: "Total number of provider REST API requests",
		},
		[]string{"endpoint", "status"},
	)

	// FallbackAttempts counts per-item play attempts made after a restriction failure.
	// Labels:
	//   - outcome: "success", "failure", "exhausted"
	FallbackAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmony_playback_fallback_attempts_total",
			Help: "Total number of playback fallback attempts after restriction errors",
		},
		[]string{"outcome"},
	)

	// CandidatesScored counts candidates scored by the ranker, split by retention.
	CandidatesScored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harmony_match_candidates_scored_total",
			Help: "Total number of candidates scored against a taste profile",
		},
		[]string{"retained"},
	)
)

// RecordMerge increments [MessagesMerged] for source.
func RecordMerge(source string) {
	MessagesMerged.WithLabelValues(source).Inc()
}

// RecordTokenRefresh records a refresh outcome and its latency.
func RecordTokenRefresh(err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	TokenRefreshes.WithLabelValues(outcome).Inc()
	TokenRefreshDuration.Observe(elapsed.Seconds())
}

// RecordProviderRequest records a provider call; status 0 means a transport error.
func RecordProviderRequest(endpoint string, status int) {
	class := "error"
	switch {
	case status >= 500:
		class = "5xx"
	case status >= 400:
		class = "4xx"
	case status >= 200:
		class = "2xx"
	}
	ProviderRequests.WithLabelValues(endpoint, class).Inc()
}

// RecordScored records how many candidates were scored and how many were retained.
func RecordScored(scored, retained int) {
	CandidatesScored.WithLabelValues("true").Add(float64(retained))
	CandidatesScored.WithLabelValues("false").Add(float64(scored - retained))
}
