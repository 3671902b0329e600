// Package breaker builds the per-client circuit breaker the hub uses to
// guard against a slow or wedged WebSocket write path, adapted from the
// breaker-wrapped RPC calls in the teacher's SFU client.
package breaker

import (
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/metrics"
	"github.com/sony/gobreaker"
)

// consecutiveFailureThreshold trips a client's breaker after this many
// back-to-back full-channel sends, marking it as failed rather than letting
// the hub dispatch loop keep retrying a client that never drains.
const consecutiveFailureThreshold = 3

// openStateTimeout is how long the breaker stays open before allowing a
// single probe request through again. In practice a tripped client is
// removed from the hub immediately, so this mostly matters for tests that
// exercise the breaker directly.
const openStateTimeout = 5 * time.Second

// NewClientBreaker returns a circuit breaker scoped to one client ID,
// wired to the relay's circuit-breaker metrics.
func NewClientBreaker(clientID string) *gobreaker.CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        clientID,
		MaxRequests: 1,
		Timeout:     openStateTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= consecutiveFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
			if to == gobreaker.StateOpen {
				metrics.CircuitBreakerFailures.WithLabelValues(name).Inc()
			}
		},
	}
	return gobreaker.NewCircuitBreaker(settings)
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateOpen:
		return 1
	case gobreaker.StateHalfOpen:
		return 2
	default:
		return -1
	}
}
