// Package transport wires the relay engine to HTTP: it validates the game
// ID, performs the WebSocket upgrade, resolves the client's identity from
// its cookie or query string, and hands the new connection to the relay
// package's Hub/Client types (spec.md §6).
package transport

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/clientid"
	"github.com/RoseWrightdev/board-game-relay/internal/logging"
	"github.com/RoseWrightdev/board-game-relay/internal/metrics"
	"github.com/RoseWrightdev/board-game-relay/internal/relay"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// admitTimeout bounds how long the upgrade handler waits for the hub
// dispatcher to process an Admit request before giving up on the connection.
const admitTimeout = 5 * time.Second

// Handler serves the game relay's single WebSocket upgrade route.
type Handler struct {
	dir      *relay.Directory
	upgrader websocket.Upgrader
}

// NewHandler builds a Handler backed by dir. allowedOrigins, when non-empty,
// restricts the Origin header an upgrade request may carry; an empty list
// allows any origin, the same permissive default the teacher's reference
// protocol implementation uses for local testing.
func NewHandler(dir *relay.Directory, allowedOrigins []string) *Handler {
	return &Handler{
		dir: dir,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range allowedOrigins {
					if origin == allowed {
						return true
					}
				}
				return false
			},
		},
	}
}

// ServeGame handles GET /g/:gameId. It rejects a malformed game ID before
// ever touching the socket (spec.md §6, §8 scenario 6), then upgrades,
// resolves the connecting client's ID from its cookie (or an overriding
// `id` query parameter), and admits it to the game's hub — replaying any
// envelopes owed to a `lastnum` reconnection first.
func (h *Handler) ServeGame(c *gin.Context) {
	gameID := c.Param("gameId")
	if !relay.ValidGameID(gameID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid game id"})
		return
	}

	id := c.Query("id")
	if id == "" {
		id = clientid.ClientIDOrNew(c.Request.Cookies())
	}

	clientid.SetCookie(c.Writer, id)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, c.Writer.Header())
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err), zap.String("game_id", gameID))
		return
	}

	hub := h.dir.GetOrCreate(gameID)
	client := relay.NewClient(id, conn, hub)

	lastNum, hasLastNum := parseLastNum(c.Query("lastnum"))

	ctx, cancel := context.WithTimeout(c.Request.Context(), admitTimeout)
	defer cancel()

	if err := hub.Admit(ctx, client, lastNum, hasLastNum); err != nil {
		h.rejectAdmit(conn, err)
		return
	}

	metrics.IncConnection()
	client.Start(context.Background())
	logging.Info(c.Request.Context(), "client admitted", zap.String("game_id", gameID), zap.String("client_id", id))
}

// rejectAdmit closes conn with a close frame appropriate to why Admit
// failed. A stale lastnum gets the spec-mandated code 4000 with a reason
// containing "lastnum" (spec.md §4.3, §7 item 3); a hub at capacity gets a
// try-again-later close with reason "game is full"; any other admit failure
// (hub shutting down mid-teardown, timeout) gets an ordinary going-away close
// so the client's shim treats it as a transient disconnect.
func (h *Handler) rejectAdmit(conn *websocket.Conn, err error) {
	defer conn.Close()

	switch err {
	case relay.ErrStaleLastNum:
		metrics.WebsocketEvents.WithLabelValues("admit", "stale_lastnum").Inc()
		msg := websocket.FormatCloseMessage(4000, "lastnum too old to resume from")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeControlTimeout))
	case relay.ErrHubFull:
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "game is full")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeControlTimeout))
	default:
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeControlTimeout))
	}
}

const writeControlTimeout = 5 * time.Second

// parseLastNum interprets the `lastnum` query parameter. Its absence, or a
// value that doesn't parse, means "no replay requested" — an ordinary fresh
// join rather than a reconnection attempt.
func parseLastNum(raw string) (num uint64, ok bool) {
	if raw == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
