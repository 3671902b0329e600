package relay

import (
	"sync"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/config"
	"github.com/RoseWrightdev/board-game-relay/internal/logging"
	"github.com/RoseWrightdev/board-game-relay/internal/metrics"
	"go.uber.org/zap"
)

// Directory owns the set of live hubs, one per game ID, creating them on
// first connect and tearing them down after a grace period once empty —
// the same deferred-cleanup shape as the teacher's Hub.getOrCreateRoom /
// removeRoom, generalized from rooms to games.
type Directory struct {
	mu             sync.Mutex
	hubs           map[string]*Hub
	pendingCleanup map[string]*time.Timer

	replaySize   int
	maxClients   int
	cleanupGrace time.Duration

	log *zap.Logger
}

// NewDirectory builds a Directory from relay-wide configuration.
func NewDirectory(cfg *config.Config) *Directory {
	return &Directory{
		hubs:           make(map[string]*Hub),
		pendingCleanup: make(map[string]*time.Timer),
		replaySize:     cfg.ReplayBufferSize,
		maxClients:     cfg.MaxClientsPerHub,
		cleanupGrace:   5 * time.Second,
		log:            logging.GetLogger(),
	}
}

// GetOrCreate returns the hub for gameID, creating it if this is the first
// client to reach it, and cancelling any pending empty-hub cleanup.
func (d *Directory) GetOrCreate(gameID string) *Hub {
	d.mu.Lock()
	defer d.mu.Unlock()

	if h, ok := d.hubs[gameID]; ok {
		if timer, pending := d.pendingCleanup[gameID]; pending {
			timer.Stop()
			delete(d.pendingCleanup, gameID)
			d.log.Info("cancelled pending hub cleanup due to reconnection", zap.String("game_id", gameID))
		}
		return h
	}

	d.log.Info("creating hub", zap.String("game_id", gameID))
	h := NewHub(gameID, d, d.replaySize, d.maxClients)
	d.hubs[gameID] = h
	metrics.ActiveHubs.Inc()
	return h
}

// onHubEmpty is invoked by a hub's dispatcher goroutine the instant its
// membership drops to zero. It schedules the hub for removal after a grace
// period rather than deleting it immediately, so a client that drops and
// immediately reconnects finds its room (and replay history) still there.
func (d *Directory) onHubEmpty(gameID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if existing, ok := d.pendingCleanup[gameID]; ok {
		existing.Stop()
		delete(d.pendingCleanup, gameID)
	}

	timer := time.AfterFunc(d.cleanupGrace, func() {
		d.removeIfStillEmpty(gameID)
	})
	d.pendingCleanup[gameID] = timer
}

func (d *Directory) removeIfStillEmpty(gameID string) {
	d.mu.Lock()
	h, ok := d.hubs[gameID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if h.Stats() > 0 {
		// A client rejoined since the timer was scheduled; cancel cleanup.
		delete(d.pendingCleanup, gameID)
		d.mu.Unlock()
		return
	}
	delete(d.hubs, gameID)
	delete(d.pendingCleanup, gameID)
	d.mu.Unlock()

	h.Shutdown()
	metrics.ActiveHubs.Dec()
	metrics.HubClients.DeleteLabelValues(gameID)
	d.log.Info("removed empty hub", zap.String("game_id", gameID))
}

// Stats reports the directory's current hub and total-client counts, for
// the readiness handler (health.DirectoryStats).
func (d *Directory) Stats() (hubs int, clients int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	hubs = len(d.hubs)
	for _, h := range d.hubs {
		clients += h.Stats()
	}
	return hubs, clients
}

// Shutdown tears down every live hub, used on server shutdown.
func (d *Directory) Shutdown() {
	d.mu.Lock()
	for gameID, timer := range d.pendingCleanup {
		timer.Stop()
		delete(d.pendingCleanup, gameID)
	}
	hubs := make([]*Hub, 0, len(d.hubs))
	for gameID, h := range d.hubs {
		hubs = append(hubs, h)
		delete(d.hubs, gameID)
	}
	d.mu.Unlock()

	for _, h := range hubs {
		h.Shutdown()
	}
	metrics.ActiveHubs.Set(0)
}
