package gateway

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Conn is one live websocket session of an authenticated user.
type Conn struct {
	id     string
	userID string
	addr   string

	ws      *websocket.Conn
	hub     *Hub
	send    chan []byte
	limiter *rate.Limiter
	log     *slog.Logger

	detached    chan struct{}
	lastForUser bool
}

// NewConn wraps an upgraded websocket for userID. The connection does
// nothing until it is passed to Hub.Register.
func NewConn(ws *websocket.Conn, hub *Hub, userID, addr string) *Conn {
	opts := hub.opts
	if ws != nil && opts.MaxMessageSize > 0 {
		ws.SetReadLimit(opts.MaxMessageSize)
	}
	id := uuid.NewString()

	return &Conn{
		id:       id,
		userID:   userID,
		addr:     addr,
		ws:       ws,
		hub:      hub,
		send:     make(chan []byte, opts.SendBuffer),
		limiter:  newLimiter(opts.RateLimit.Burst, opts.RateLimit.RefillInterval),
		log:      hub.log.With("conn", id, "user", userID),
		detached: make(chan struct{}),
	}
}

// newLimiter allows burst events, refilled at burst per interval.
func newLimiter(burst int, interval time.Duration) *rate.Limiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return rate.NewLimiter(rate.Limit(float64(burst)/interval.Seconds()), burst)
}

func (c *Conn) ID() string     { return c.id }
func (c *Conn) UserID() string { return c.userID }
func (c *Conn) Addr() string   { return c.addr }

// Emit queues an event to this connection only.
func (c *Conn) Emit(event string, data any) bool {
	return c.hub.Emit(c, event, data)
}

// EmitError queues an "error" event to this connection.
func (c *Conn) EmitError(message, details string) bool {
	return c.Emit(EventError, ErrorPayload{Message: message, Details: details})
}

// LastForUser reports whether this was the user's last live connection when
// it was removed. It is only meaningful inside Handler.HandleDisconnect.
func (c *Conn) LastForUser() bool {
	return c.lastForUser
}

func (c *Conn) setupReadConnection() {
	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("set_read_deadline_failed", "error", err)
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// logReadError records why the read loop ended.
func (c *Conn) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message_too_large", "limit", c.hub.opts.MaxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client_disconnected", "reason", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client_connection_closed", "reason", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.log.Warn("unexpected_close", "error", err)
	default:
		c.log.Warn("read_error", "error", err)
	}
}

func (c *Conn) readPump() {
	defer func() {
		c.hub.requestUnregister(c)
		<-c.detached
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("close_connection_failed", "error", err)
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleDisconnect(c)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.limiter.Allow() {
			c.log.Warn("rate_limit_exceeded", "burst", c.hub.opts.RateLimit.Burst,
				"interval", c.hub.opts.RateLimit.RefillInterval)
			c.EmitError("rate limit exceeded", "")
			continue
		}

		ev, err := parseEvent(raw)
		if err != nil {
			c.log.Debug("invalid_event", "error", err)
			c.EmitError("invalid event", err.Error())
			continue
		}
		if c.hub.handler != nil {
			c.hub.handler.HandleEvent(c.hub.ctx, c, ev)
		}
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		if err := c.ws.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("close_connection_failed", "error", err)
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.write(message, ok) {
				return
			}
		case <-ticker.C:
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("ping_failed", "error", err)
				return
			}
		}
	}
}

// write sends message plus anything already queued in one frame, separated
// by newlines. A closed send channel turns into a close frame.
func (c *Conn) write(message []byte, ok bool) bool {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if !ok {
		if err := c.ws.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
			c.log.Debug("write_close_failed", "error", err)
		}
		return false
	}

	w, err := c.ws.NextWriter(websocket.TextMessage)
	if err != nil {
		c.log.Debug("next_writer_failed", "error", err)
		return false
	}
	if _, err := w.Write(message); err != nil {
		return false
	}

	n := len(c.send)
	for i := 0; i < n; i++ {
		next, ok := <-c.send
		if !ok {
			break
		}
		if _, err := w.Write([]byte{'\n'}); err != nil {
			return false
		}
		if _, err := w.Write(next); err != nil {
			return false
		}
	}

	if err := w.Close(); err != nil {
		c.log.Debug("writer_close_failed", "error", err)
		return false
	}
	return true
}
