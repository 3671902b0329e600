package relay

import (
	"context"
	"errors"
	"sort"
	"sync/atomic"
	"time"

	"github.com/RoseWrightdev/board-game-relay/internal/logging"
	"github.com/RoseWrightdev/board-game-relay/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// DefaultReplayBufferSize is how many emitted-envelope records a Hub
// retains for reconnect replay; the same value config.ValidateEnv uses as its
// default. Covers a comfortable tens-of-seconds window for a turn-paced
// board-game room.
const DefaultReplayBufferSize = 500

// DefaultMaxClientsPerHub bounds how many clients may be members of a
// single Hub at once; the same value config.ValidateEnv uses as its default.
const DefaultMaxClientsPerHub = 64

// ErrHubFull is returned by Admit when a hub has reached maxClients.
var ErrHubFull = errors.New("relay: hub is at capacity")

// ErrStaleLastNum is returned by Admit when a reconnecting client's lastnum
// is older than anything the hub still retains, so the gap cannot be closed.
var ErrStaleLastNum = errors.New("relay: lastnum is too old to resume from")

// ErrHubClosed is returned by Admit once a hub's dispatcher has shut down.
var ErrHubClosed = errors.New("relay: hub is shutting down")

// recentEnvelope is one retained delivery record. A single client message
// send produces two rows sharing the same Num (a Receipt row and a Peer
// row), since the two envelopes go to disjoint recipient sets.
type recentEnvelope struct {
	num        uint64
	recipients map[string]struct{}
	env        *Envelope
}

type addRequest struct {
	client  *Client
	lastNum uint64
	hasLast bool
	result  chan error
}

type stopRequest struct {
	client *Client
}

// Hub is the per-game dispatcher: a single goroutine owns all envelope
// numbering and membership for one game, the same way the teacher's Room
// centralizes its state mutations, but driven by channels rather than a
// mutex so delivery order is the order requests arrive on the channel.
type Hub struct {
	gameID     string
	dir        *Directory
	replaySize int
	maxClients int

	addCh      chan *addRequest
	stopCh     chan *stopRequest
	inbound    chan *inboundMessage
	shutdownCh chan struct{}
	doneCh     chan struct{}

	// Dispatcher-owned; touched only inside run().
	clients map[string]*Client
	nextNum uint64
	recent  []recentEnvelope

	// memberCount mirrors len(clients) so Directory.Stats can read it
	// without racing the dispatcher goroutine.
	memberCount atomic.Int64

	log *zap.Logger
}

// NewHub constructs a Hub for gameID and starts its dispatcher goroutine.
// dir may be nil in tests that exercise a Hub standalone.
func NewHub(gameID string, dir *Directory, replaySize, maxClients int) *Hub {
	h := &Hub{
		gameID:     gameID,
		dir:        dir,
		replaySize: replaySize,
		maxClients: maxClients,
		addCh:      make(chan *addRequest),
		stopCh:     make(chan *stopRequest, 32),
		inbound:    make(chan *inboundMessage, 256),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
		clients:    make(map[string]*Client),
		log:        logging.GetLogger().With(zap.String("game_id", gameID)),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	defer close(h.doneCh)
	for {
		select {
		case req := <-h.addCh:
			req.result <- h.handleAdd(req.client, req.lastNum, req.hasLast)
		case req := <-h.stopCh:
			h.handleStop(req.client)
		case msg := <-h.inbound:
			h.handleMessage(msg)
		case <-h.shutdownCh:
			return
		}
	}
}

// Shutdown stops the dispatcher goroutine. The Directory calls this once an
// empty hub's grace period has elapsed, and for every hub on server shutdown.
func (h *Hub) Shutdown() {
	close(h.shutdownCh)
	<-h.doneCh
}

// Admit registers c with the hub, replaying any retained envelopes owed to
// a reconnecting client first, then emitting Welcome (and, for a brand new
// identity, Joiner). It blocks until the dispatcher has processed the
// request or ctx is done.
func (h *Hub) Admit(ctx context.Context, c *Client, lastNum uint64, hasLastNum bool) error {
	req := &addRequest{client: c, lastNum: lastNum, hasLast: hasLastNum, result: make(chan error, 1)}
	select {
	case h.addCh <- req:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.doneCh:
		return ErrHubClosed
	}
	select {
	case err := <-req.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// requestStop is called by a Client's own stop() once it has decided to
// tear down, whether from a socket error or a cooperative close.
func (h *Hub) requestStop(c *Client) {
	select {
	case h.stopCh <- &stopRequest{client: c}:
	case <-h.doneCh:
	}
}

// Stats reports the hub's current membership size for health reporting.
func (h *Hub) Stats() int {
	return int(h.memberCount.Load())
}

func (h *Hub) handleAdd(c *Client, lastNum uint64, hasLast bool) error {
	isTakeover := false
	if existing, ok := h.clients[c.ID]; ok {
		isTakeover = true
		h.removeClient(existing, true)
	} else if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		metrics.WebsocketEvents.WithLabelValues("admit", "rejected_full").Inc()
		return ErrHubFull
	}

	if hasLast {
		envs, err := h.collectReplay(c.ID, lastNum)
		if err != nil {
			return err
		}
		for _, env := range envs {
			h.deliver(c, env)
		}
	}

	h.clients[c.ID] = c
	h.memberCount.Add(1)
	metrics.HubClients.WithLabelValues(h.gameID).Set(float64(len(h.clients)))
	metrics.WebsocketEvents.WithLabelValues("admit", "success").Inc()

	h.emitWelcome(c)
	if !isTakeover {
		h.emitJoiner(c)
	}
	return nil
}

func (h *Hub) handleStop(c *Client) {
	if !h.removeClient(c, false) {
		return
	}
	h.emitLeaver(c.ID)
	h.maybeScheduleEmpty()
}

// dropClient is the hub-initiated removal path for a client that has
// tripped its own circuit breaker: the hub, not the client, decided this
// socket has to go, so it closes both the inbound queue and the socket.
func (h *Hub) dropClient(c *Client) {
	if !h.removeClient(c, true) {
		return
	}
	h.emitLeaver(c.ID)
	h.maybeScheduleEmpty()
}

// removeClient deletes c from membership if it is still the current holder
// of its ID; a stale request (the client already replaced by a reconnect
// takeover, or already removed) is a no-op. Reports whether it acted.
func (h *Hub) removeClient(c *Client, forceSocket bool) bool {
	existing, ok := h.clients[c.ID]
	if !ok || existing != c {
		return false
	}
	delete(h.clients, c.ID)
	h.memberCount.Add(-1)
	metrics.HubClients.WithLabelValues(h.gameID).Set(float64(len(h.clients)))
	if forceSocket {
		c.forceTakeover()
	} else {
		c.closeInbound()
	}
	return true
}

func (h *Hub) maybeScheduleEmpty() {
	if len(h.clients) == 0 && h.dir != nil {
		h.dir.onHubEmpty(h.gameID)
	}
}

func (h *Hub) handleMessage(msg *inboundMessage) {
	sender := msg.from
	if existing, ok := h.clients[sender.ID]; !ok || existing != sender {
		// Sender was already removed (breaker trip, stop race); drop silently.
		return
	}

	start := time.Now()
	defer func() {
		metrics.MessageProcessingDuration.WithLabelValues("message").Observe(time.Since(start).Seconds())
	}()

	num := h.consumeNum()
	ts := time.Now().UnixMilli()

	receipt := &Envelope{Intent: IntentReceipt, From: []string{sender.ID}, To: []string{sender.ID}, Num: num, Time: ts, Body: msg.body}
	h.record(num, map[string]struct{}{sender.ID: {}}, receipt)
	h.deliver(sender, receipt)

	if peers := h.otherMembers(sender.ID); len(peers) > 0 {
		peerEnv := &Envelope{Intent: IntentPeer, From: []string{sender.ID}, To: peers, Num: num, Time: ts, Body: msg.body}
		h.record(num, toSet(peers), peerEnv)
		for _, id := range peers {
			if target, ok := h.clients[id]; ok {
				h.deliver(target, peerEnv)
			}
		}
	}

	metrics.WebsocketEvents.WithLabelValues("message", "success").Inc()
}

func (h *Hub) emitWelcome(c *Client) {
	num := h.consumeNum()
	env := &Envelope{Intent: IntentWelcome, From: h.otherMembers(c.ID), To: []string{c.ID}, Num: num, Time: time.Now().UnixMilli()}
	h.record(num, map[string]struct{}{c.ID: {}}, env)
	h.deliver(c, env)
}

// emitJoiner tells every other current member about c. If c joined an
// otherwise-empty room, there is nobody to tell: no envelope is emitted and
// no Num is consumed (spec.md §8 scenario 1).
func (h *Hub) emitJoiner(c *Client) {
	recipients := h.otherMembers(c.ID)
	if len(recipients) == 0 {
		return
	}
	num := h.consumeNum()
	env := &Envelope{Intent: IntentJoiner, From: []string{c.ID}, To: recipients, Num: num, Time: time.Now().UnixMilli()}
	h.record(num, toSet(recipients), env)
	for _, id := range recipients {
		if target, ok := h.clients[id]; ok {
			h.deliver(target, env)
		}
	}
}

// emitLeaver tells every remaining member that id has left. id must
// already be absent from h.clients by the time this is called.
func (h *Hub) emitLeaver(id string) {
	recipients := h.otherMembers(id)
	if len(recipients) == 0 {
		return
	}
	num := h.consumeNum()
	env := &Envelope{Intent: IntentLeaver, From: []string{id}, To: recipients, Num: num, Time: time.Now().UnixMilli()}
	h.record(num, toSet(recipients), env)
	for _, rid := range recipients {
		if target, ok := h.clients[rid]; ok {
			h.deliver(target, env)
		}
	}
}

// deliver attempts a non-blocking, breaker-guarded send to c. A full queue
// counts as a breaker failure; once the breaker trips, c is evicted the
// same way a socket error would evict it.
func (h *Hub) deliver(c *Client, env *Envelope) {
	if err := h.trySend(c, env); err != nil && c.breaker.State() == gobreaker.StateOpen {
		metrics.BackpressureDrops.WithLabelValues(h.gameID).Inc()
		h.dropClient(c)
	}
}

var errChannelFull = errors.New("relay: client inbound queue is full")

func (h *Hub) trySend(c *Client, env *Envelope) error {
	_, err := c.breaker.Execute(func() (interface{}, error) {
		select {
		case c.inbound <- env:
			return nil, nil
		default:
			return nil, errChannelFull
		}
	})
	return err
}

// collectReplay returns the retained envelopes addressed to clientID with
// Num greater than lastNum, in emission order. It fails if the hub no
// longer retains enough history to close the gap.
func (h *Hub) collectReplay(clientID string, lastNum uint64) ([]*Envelope, error) {
	if len(h.recent) > 0 {
		if lastNum+1 < h.recent[0].num {
			metrics.ReplayOutcomes.WithLabelValues("stale").Inc()
			return nil, ErrStaleLastNum
		}
	} else if lastNum+1 < h.nextNum {
		metrics.ReplayOutcomes.WithLabelValues("stale").Inc()
		return nil, ErrStaleLastNum
	}

	var out []*Envelope
	for _, row := range h.recent {
		if row.num <= lastNum {
			continue
		}
		if _, ok := row.recipients[clientID]; ok {
			out = append(out, row.env)
		}
	}
	if len(out) == 0 {
		metrics.ReplayOutcomes.WithLabelValues("empty").Inc()
	} else {
		metrics.ReplayOutcomes.WithLabelValues("delivered").Inc()
	}
	return out, nil
}

func (h *Hub) consumeNum() uint64 {
	n := h.nextNum
	h.nextNum++
	return n
}

// record retains one delivery row, trimming the oldest rows once the
// buffer grows past twice the configured replay size (a message send can
// produce two rows per Num, a Receipt row and a Peer row).
func (h *Hub) record(num uint64, recipients map[string]struct{}, env *Envelope) {
	h.recent = append(h.recent, recentEnvelope{num: num, recipients: recipients, env: env})
	if maxRows := h.replaySize * 2; maxRows > 0 && len(h.recent) > maxRows {
		drop := len(h.recent) - maxRows
		h.recent = h.recent[drop:]
	}
}

func (h *Hub) otherMembers(excludeID string) []string {
	out := make([]string, 0, len(h.clients))
	for id := range h.clients {
		if id == excludeID {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func toSet(ids []string) map[string]struct{} {
	s := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}
