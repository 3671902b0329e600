package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the relay server.
//
// Naming convention: namespace_subsystem_name
// - namespace: relay (application-level grouping)
// - subsystem: websocket, hub, replay, breaker, rate_limit (feature-level grouping)
// - name: specific metric (connections_active, events_total, etc.)
//
// Metric Types:
// - Gauge: Current state (connections, hubs, clients per hub)
// - Counter: Cumulative events (envelopes emitted, replay outcomes, drops)
// - Histogram: Latency distributions (dispatch processing time)

var (
	// ActiveWebSocketConnections tracks the current number of active WebSocket connections.
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveHubs tracks the current number of live per-game hubs.
	ActiveHubs = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "hub",
		Name:      "hubs_active",
		Help:      "Current number of active game hubs",
	})

	// HubClients tracks the number of clients registered to each hub.
	HubClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "hub",
		Name:      "clients_count",
		Help:      "Number of clients currently registered to each hub",
	}, []string{"game_id"})

	// WebsocketEvents tracks the total number of WebSocket events processed.
	WebsocketEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "websocket",
		Name:      "events_total",
		Help:      "Total WebSocket events processed",
	}, []string{"event_type", "status"})

	// MessageProcessingDuration tracks the time spent in the hub dispatch loop per envelope.
	MessageProcessingDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "relay",
		Subsystem: "hub",
		Name:      "dispatch_seconds",
		Help:      "Time spent dispatching one envelope through a hub's loop",
		Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25},
	}, []string{"event_type"})

	// EnvelopesEmitted tracks envelopes the hub has sent to clients, by intent.
	EnvelopesEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "hub",
		Name:      "envelopes_emitted_total",
		Help:      "Total envelopes emitted to clients, by intent",
	}, []string{"intent"})

	// ReplayOutcomes tracks the result of a lastnum-bearing reconnect.
	ReplayOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "replay",
		Name:      "outcomes_total",
		Help:      "Outcomes of reconnect replay requests (delivered, empty, stale)",
	}, []string{"outcome"})

	// BackpressureDrops tracks clients dropped because their inbound queue stayed full.
	BackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "hub",
		Name:      "backpressure_drops_total",
		Help:      "Total clients dropped due to sustained send backpressure",
	}, []string{"game_id"})

	// CircuitBreakerState tracks the current state of each client's backpressure breaker.
	// 0: Closed (Healthy), 1: Open (Tripped), 2: Half-Open (Recovering)
	CircuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "relay",
		Subsystem: "breaker",
		Name:      "state",
		Help:      "Current state of a client's backpressure circuit breaker (0: Closed, 1: Open, 2: Half-Open)",
	}, []string{"client_id"})

	// CircuitBreakerFailures tracks the total number of times a client's breaker tripped open.
	CircuitBreakerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "breaker",
		Name:      "failures_total",
		Help:      "Total number of times a client's circuit breaker tripped open",
	}, []string{"client_id"})

	// RateLimitExceeded tracks the total number of requests that exceeded the connect rate limit.
	RateLimitExceeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "rate_limit",
		Name:      "exceeded_total",
		Help:      "Total number of requests that exceeded the rate limit",
	}, []string{"endpoint", "reason"})

	// RateLimitRequests tracks the total number of requests checked against the rate limiter.
	RateLimitRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "relay",
		Subsystem: "rate_limit",
		Name:      "requests_total",
		Help:      "Total number of requests checked against the rate limiter",
	}, []string{"endpoint"})
)

func IncConnection() {
	ActiveWebSocketConnections.Inc()
}

func DecConnection() {
	ActiveWebSocketConnections.Dec()
}
