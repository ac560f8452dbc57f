// Package gateway owns websocket connection lifecycle, connection-scoped room
// membership and the broadcast primitives the chat layer builds on.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/inland-taipen/teamchat/internal/config"
	"github.com/inland-taipen/teamchat/internal/metrics"
)

// Handler receives the inbound events of every connection and the teardown
// notification when a connection goes away.
//
// HandleEvent is called from the connection's read loop, so the events of a
// single connection are handled one at a time and in arrival order.
// HandleDisconnect is called exactly once per registered connection, after
// it has been removed from every room.
type Handler interface {
	HandleEvent(ctx context.Context, c *Conn, ev Event)
	HandleDisconnect(c *Conn)
}

// Options configures a Hub.
type Options struct {
	MaxMessageSize int64
	SendBuffer     int
	RateLimit      config.RateLimitConfig
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
}

// ErrClosed is returned by Register once the hub has shut down.
var ErrClosed = errors.New("gateway: hub closed")

// Hub tracks live connections and the rooms each of them has joined.
// Registration and unregistration go through Run; room membership and
// broadcast are safe to call from any goroutine.
type Hub struct {
	conns     map[string]*Conn
	rooms     map[string]map[string]*Conn
	connRooms map[string]map[string]struct{}
	userConns map[string]int
	mutex     sync.RWMutex

	register   chan *Conn
	unregister chan *Conn
	handler    Handler

	opts    Options
	log     *slog.Logger
	metrics *metrics.Metrics

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub. Call SetHandler before Run.
func NewHub(opts Options) *Hub {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		conns:      make(map[string]*Conn),
		rooms:      make(map[string]map[string]*Conn),
		connRooms:  make(map[string]map[string]struct{}),
		userConns:  make(map[string]int),
		register:   make(chan *Conn),
		unregister: make(chan *Conn),
		opts:       opts,
		log:        opts.Logger,
		metrics:    opts.Metrics,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetHandler installs the event handler. It must be called before Run.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

// Register hands a new connection to the hub, which starts its pumps.
func (h *Hub) Register(c *Conn) error {
	select {
	case h.register <- c:
		return nil
	case <-h.ctx.Done():
		return ErrClosed
	}
}

func (h *Hub) requestUnregister(c *Conn) {
	select {
	case h.unregister <- c:
	case <-h.ctx.Done():
		h.detach(c)
	}
}

// Run starts the hub's main loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownConns()
			return

		case c := <-h.register:
			if c == nil {
				h.log.Warn("nil_connection_registration")
				continue
			}
			h.attach(c)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				c.writePump()
			}()
			go func() {
				defer h.wg.Done()
				c.readPump()
			}()

		case c := <-h.unregister:
			h.detach(c)
		}
	}
}

func (h *Hub) attach(c *Conn) {
	h.mutex.Lock()
	h.conns[c.id] = c
	h.connRooms[c.id] = make(map[string]struct{})
	h.userConns[c.userID]++
	total := len(h.conns)
	h.mutex.Unlock()

	h.metrics.ConnectionOpened()
	h.log.Info("client_registered", "conn", c.id, "user", c.userID, "addr", c.addr, "total", total)
}

// detach removes c from every table and closes its send channel. It is
// idempotent; only the first call has an effect.
func (h *Hub) detach(c *Conn) {
	h.mutex.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mutex.Unlock()
		return
	}
	delete(h.conns, c.id)
	for room := range h.connRooms[c.id] {
		h.removeFromRoomLocked(room, c.id)
	}
	delete(h.connRooms, c.id)

	h.userConns[c.userID]--
	remaining := h.userConns[c.userID]
	if remaining <= 0 {
		delete(h.userConns, c.userID)
	}
	total := len(h.conns)
	c.lastForUser = remaining <= 0
	close(c.send)
	close(c.detached)
	h.mutex.Unlock()

	h.metrics.ConnectionClosed()
	h.log.Info("client_unregistered", "conn", c.id, "user", c.userID, "addr", c.addr, "total", total)
}

func (h *Hub) removeFromRoomLocked(room, connID string) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// Join adds c to room. Joining twice is a no-op, as is joining with a
// connection that is no longer registered.
func (h *Hub) Join(c *Conn, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	joined, ok := h.connRooms[c.id]
	if !ok {
		return
	}
	members := h.rooms[room]
	if members == nil {
		members = make(map[string]*Conn)
		h.rooms[room] = members
	}
	members[c.id] = c
	joined[room] = struct{}{}
}

// Leave removes c from room. Leaving a room that was never joined is a no-op.
func (h *Hub) Leave(c *Conn, room string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if joined, ok := h.connRooms[c.id]; ok {
		delete(joined, room)
	}
	h.removeFromRoomLocked(room, c.id)
}

// InRoom reports whether c has joined room.
func (h *Hub) InRoom(c *Conn, room string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	_, ok := h.connRooms[c.id][room]
	return ok
}

// Rooms returns the rooms c has joined.
func (h *Hub) Rooms(c *Conn) []string {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	out := make([]string, 0, len(h.connRooms[c.id]))
	for room := range h.connRooms[c.id] {
		out = append(out, room)
	}
	return out
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.conns)
}

// UserConnections returns the number of registered connections of userID.
func (h *Hub) UserConnections(userID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.userConns[userID]
}

// BroadcastToRoom queues event to every connection in room and returns the
// number of connections it was queued to.
func (h *Hub) BroadcastToRoom(room, event string, data any) int {
	return h.BroadcastToRoomExcept(room, nil, event, data)
}

// BroadcastToRoomExcept queues event to every connection in room other than
// except. Connections whose send buffer is full are dropped.
func (h *Hub) BroadcastToRoomExcept(room string, except *Conn, event string, data any) int {
	payload, err := Encode(event, data)
	if err != nil {
		h.log.Error("broadcast_encode_failed", "event", event, "error", err)
		return 0
	}

	var (
		delivered int
		failed    []*Conn
	)
	h.mutex.RLock()
	for id, c := range h.rooms[room] {
		if except != nil && id == except.id {
			continue
		}
		select {
		case c.send <- payload:
			delivered++
		default:
			failed = append(failed, c)
		}
	}
	h.mutex.RUnlock()

	h.metrics.Delivered(event, delivered)
	h.dropSlow(failed)
	h.log.Debug("broadcast", "room", room, "event", event, "delivered", delivered, "dropped", len(failed))
	return delivered
}

// Emit queues event to a single connection.
func (h *Hub) Emit(c *Conn, event string, data any) bool {
	payload, err := Encode(event, data)
	if err != nil {
		h.log.Error("emit_encode_failed", "event", event, "error", err)
		return false
	}

	h.mutex.RLock()
	if _, ok := h.conns[c.id]; !ok {
		h.mutex.RUnlock()
		return false
	}
	var queued bool
	select {
	case c.send <- payload:
		queued = true
	default:
	}
	h.mutex.RUnlock()

	if !queued {
		h.dropSlow([]*Conn{c})
		return false
	}
	h.metrics.Delivered(event, 1)
	return true
}

func (h *Hub) dropSlow(conns []*Conn) {
	if len(conns) == 0 {
		return
	}
	for _, c := range conns {
		h.log.Warn("broadcast_dropped", "conn", c.id, "user", c.userID, "addr", c.addr)
		h.detach(c)
	}
	h.metrics.Dropped(len(conns))
}

// shutdownConns closes every live websocket so the read pumps exit.
func (h *Hub) shutdownConns() {
	h.log.Info("hub_shutdown_closing_connections")

	h.mutex.RLock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mutex.RUnlock()

	for _, c := range conns {
		if c.ws == nil {
			continue
		}
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("close_connection_failed", "conn", c.id, "error", err)
		}
	}
	h.log.Info("hub_connections_closed", "count", len(conns))
}

// Shutdown stops the hub and waits for every connection goroutine to finish,
// or for the timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("hub_shutdown_started")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub_shutdown_completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub_shutdown_timeout")
		return context.DeadlineExceeded
	}
}

// Context is cancelled when the hub shuts down.
func (h *Hub) Context() context.Context {
	return h.ctx
}
