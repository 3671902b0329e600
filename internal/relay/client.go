package relay

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/breaker"
	"github.com/RoseWrightdev/board-game-relay/internal/logging"
	"github.com/RoseWrightdev/board-game-relay/internal/metrics"
	"github.com/gorilla/websocket"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// How often the write loop pings a socket to detect a half-open connection.
const pingFreq = 30 * time.Second

// How long to wait for a pong (or any read) before giving up on the socket.
// Must exceed pingFreq.
const pongTimeout = (pingFreq * 5) / 4

// How long a single socket write may take.
const writeTimeout = 10 * time.Second

// Largest frame a client may send; bodies are opaque application payloads,
// not expected to be large.
const maxMessageBytes = 64 * 1024

// inboundQueueSize bounds a client's private inbound queue. It must
// exceed a hub's replay buffer row count (2 × DefaultReplayBufferSize = 1000
// rows by default) so a reconnecting client's replay burst never trips its
// own fresh circuit breaker.
const inboundQueueSize = 1024

// wsConn abstracts the gorilla/websocket connection so the relay can be
// tested without a real socket, the same indirection the teacher's
// transport.Client uses over *websocket.Conn.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
	Close() error
}

// Client is the per-socket actor: it owns a WebSocket, runs a read loop
// (socket to hub) and a write loop (hub to socket), and mediates its own
// teardown. The hub is the only writer to, and only closer of, inbound.
type Client struct {
	ID  string
	hub *Hub

	conn    wsConn
	inbound chan *Envelope
	breaker *gobreaker.CircuitBreaker

	stopOnce        sync.Once
	closeSocketOnce sync.Once
	closeInboundOnce sync.Once

	log *zap.Logger
}

// NewClient constructs a Client bound to hub but does not register it;
// callers must call hub.Admit before Start.
func NewClient(id string, conn wsConn, hub *Hub) *Client {
	return &Client{
		ID:      id,
		hub:     hub,
		conn:    conn,
		inbound: make(chan *Envelope, inboundQueueSize),
		breaker: breaker.NewClientBreaker(id),
		log:     logging.GetLogger().With(zap.String("client_id", id), zap.String("game_id", hub.gameID)),
	}
}

// Start launches the client's read and write loops. Must be called exactly
// once, after a successful hub.Admit.
func (c *Client) Start(ctx context.Context) {
	go c.writeLoop()
	go c.readLoop(ctx)
}

// readLoop reads frames off the socket and forwards them to the hub's
// inbound queue. The enqueue blocks if the hub is saturated, which is how
// backpressure reaches the socket (spec §4.2).
func (c *Client) readLoop(ctx context.Context) {
	c.conn.SetReadLimit(maxMessageBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, body, err := c.conn.ReadMessage()
		if err != nil {
			metrics.WebsocketEvents.WithLabelValues("read", "error").Inc()
			c.stop()
			return
		}

		select {
		case c.hub.inbound <- &inboundMessage{from: c, body: body}:
		case <-ctx.Done():
			c.stop()
			return
		}
	}
}

// writeLoop drains the inbound queue and writes envelopes to the socket,
// pinging on an idle ticker to catch sockets that never produce a read
// error on their own.
func (c *Client) writeLoop() {
	ticker := time.NewTicker(pingFreq)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-c.inbound:
			if !ok {
				// Hub closed the queue: stop request acknowledged and acted on.
				c.stop()
				return
			}
			if err := c.write(env); err != nil {
				metrics.WebsocketEvents.WithLabelValues("write", "error").Inc()
				c.stop()
				return
			}
			metrics.EnvelopesEmitted.WithLabelValues(string(env.Intent)).Inc()
		case <-ticker.C:
			if err := c.ping(); err != nil {
				metrics.WebsocketEvents.WithLabelValues("ping", "error").Inc()
				c.stop()
				return
			}
		}
	}
}

func (c *Client) write(env *Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		// A marshalling failure here is an internal coding mistake, not a
		// client fault; never inspected by the client's body is opaque.
		c.log.Error("envelope marshal failed", zap.Error(err))
		return nil
	}
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *Client) ping() error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// stop requests removal from the hub, then drains the inbound queue until
// the hub closes it, then closes the socket exactly once. Both loops call
// this on their own terminal errors; it is safe to call more than once.
func (c *Client) stop() {
	c.stopOnce.Do(func() {
		c.hub.requestStop(c)
	})
	for range c.inbound {
		// Swallow anything still queued; we're on our way out.
	}
	c.closeSocket()
}

// closeInbound is called exactly once by the hub, the queue's sole owner,
// whenever it removes this client from its membership (ordinary stop,
// backpressure drop, or reconnect takeover).
func (c *Client) closeInbound() {
	c.closeInboundOnce.Do(func() {
		close(c.inbound)
	})
}

// closeSocket is idempotent: both the client's own teardown and a hub-driven
// takeover may close the same socket. Decrements the active-connection
// gauge exactly once per client, pairing with the Inc in transport's
// ServeGame once admission succeeds.
func (c *Client) closeSocket() {
	c.closeSocketOnce.Do(func() {
		_ = c.conn.Close()
		metrics.DecConnection()
	})
}

// forceTakeover is used only by the hub, to tear down a prior socket during
// a reconnect takeover (spec.md §4 addition) or a client dropped for
// backpressure, immediately rather than through the cooperative stop
// protocol, since the hub is already the one mutating its own membership in
// those cases.
func (c *Client) forceTakeover() {
	c.closeInbound()
	c.closeSocket()
}
