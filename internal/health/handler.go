package health

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// DirectoryStats reports the relay's in-memory state for readiness reporting.
// internal/relay.Directory satisfies this.
type DirectoryStats interface {
	Stats() (hubs int, clients int)
}

// Handler manages health check endpoints.
type Handler struct {
	dir DirectoryStats
}

// NewHandler creates a new health check handler. dir may be nil, in which case
// readiness reports zero hubs/clients without error (used before the relay
// directory is wired up, e.g. in unit tests).
func NewHandler(dir DirectoryStats) *Handler {
	return &Handler{dir: dir}
}

// LivenessResponse represents the liveness probe response.
type LivenessResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// ReadinessResponse represents the readiness probe response.
type ReadinessResponse struct {
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
	ActiveHubs   int    `json:"active_hubs"`
	ActiveClient int    `json:"active_clients"`
}

// Liveness handles the liveness probe endpoint.
// GET /health/live
// Returns 200 if the process is alive (no dependency checks; this process
// has no external dependencies to be unready for).
func (h *Handler) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, LivenessResponse{
		Status:    "alive",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Readiness handles the readiness probe endpoint.
// GET /health/ready
// The relay keeps all state in-process, so readiness is equivalent to
// liveness; this still reports hub/client counts for operational visibility.
func (h *Handler) Readiness(c *gin.Context) {
	var hubs, clients int
	if h.dir != nil {
		hubs, clients = h.dir.Stats()
	}

	c.JSON(http.StatusOK, ReadinessResponse{
		Status:       "ready",
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		ActiveHubs:   hubs,
		ActiveClient: clients,
	})
}
