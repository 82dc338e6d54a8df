package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"dm-relay/contract"
	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/errors"
	"dm-relay/observability"
	"dm-relay/repositories"

	"github.com/gorilla/websocket"
)

type connState int

const (
	stateAnonymous connState = iota
	stateIdentified
	stateClosed
)

// session is the per-connection state machine: Anonymous until a valid
// register event, Identified afterwards, Closed on transport close.
type session struct {
	conn     *Conn
	state    connState
	identity string
}

type Options struct {
	ConnBufferSize   int
	WriteTimeout     time.Duration
	PingInterval     time.Duration
	MaxContentLength int
}

// Gateway owns every open connection. It upgrades HTTP requests,
// dispatches inbound events to the relay and directory, and exposes the
// live connection set to the broadcast fan-out.
type Gateway struct {
	log        *slog.Logger
	users      repositories.IUserRepository
	relay      contract.IRelay
	directory  contract.IDirectory
	stats      *observability.Stats
	broadcasts chan<- event.Event
	opts       Options
	upgrader   websocket.Upgrader

	mu    sync.RWMutex
	conns map[domain.ConnID]*Conn
}

func NewGateway(log *slog.Logger, users repositories.IUserRepository, relay contract.IRelay,
	directory contract.IDirectory, stats *observability.Stats,
	broadcasts chan<- event.Event, opts Options) *Gateway {
	return &Gateway{
		log:        log,
		users:      users,
		relay:      relay,
		directory:  directory,
		stats:      stats,
		broadcasts: broadcasts,
		opts:       opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[domain.ConnID]*Conn),
	}
}

// Sinks returns the sink of every open connection, identified or not.
func (g *Gateway) Sinks() []contract.EventSink {
	g.mu.RLock()
	defer g.mu.RUnlock()
	sinks := make([]contract.EventSink, 0, len(g.conns))
	for _, c := range g.conns {
		sinks = append(sinks, c)
	}
	return sinks
}

// HandleWS upgrades the request and serves the connection until the
// client goes away. One reader goroutine (this one) and one writer.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	conn := newConn(ws, g.log, g.stats, g.opts.ConnBufferSize, g.opts.WriteTimeout, g.opts.PingInterval)
	g.track(conn)
	g.stats.ConnOpened()
	g.log.Debug("Connection opened", "remote", r.RemoteAddr)

	go conn.writePump()
	sess := &session{conn: conn}
	g.readLoop(r.Context(), sess)
	g.teardown(context.Background(), sess)
}

func (g *Gateway) track(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.conns[c.id] = c
}

func (g *Gateway) untrack(c *Conn) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.conns, c.id)
}

func (g *Gateway) readLoop(ctx context.Context, sess *session) {
	ws := sess.conn.ws
	pongWait := g.opts.PingInterval * 6 / 5
	ws.SetReadLimit(int64(g.opts.MaxContentLength) + 1024)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, payload, err := ws.ReadMessage()
		if err != nil {
			return
		}

		var env Envelope
		if err := json.Unmarshal(payload, &env); err != nil {
			g.emit(ctx, sess.conn, event.Error{Reason: "malformed frame"})
			continue
		}
		g.dispatch(ctx, sess, env)
	}
}

func (g *Gateway) dispatch(ctx context.Context, sess *session, env Envelope) {
	switch env.Event {
	case eventRegister:
		g.handleRegister(ctx, sess, env.Data)
	case eventSendMessage:
		g.handleSend(ctx, sess, env.Data)
	case eventTyping:
		g.handleTyping(ctx, sess, env.Data)
	default:
		g.emit(ctx, sess.conn, event.Error{Reason: "unknown event: " + env.Event})
	}
}

// handleRegister moves the connection from Anonymous to Identified. An
// identity the user store does not know gets an error event back and
// the connection stays Anonymous.
func (g *Gateway) handleRegister(ctx context.Context, sess *session, data json.RawMessage) {
	var identity string
	if err := json.Unmarshal(data, &identity); err != nil || identity == "" {
		g.emit(ctx, sess.conn, event.Error{Reason: "register requires an identity"})
		return
	}

	if _, err := g.users.GetUserByID(identity); err != nil {
		g.log.Debug("Register rejected", "identity", identity, "error", err)
		g.emit(ctx, sess.conn, event.Error{Reason: "unknown identity"})
		return
	}

	online := g.directory.Register(identity, sess.conn.id, sess.conn)
	sess.state = stateIdentified
	sess.identity = identity
	g.stats.SetOnline(len(online))
	g.log.Info("User registered", "identity", identity)
	g.broadcast(event.PresenceChanged{Online: online})

	// Pending messages flow before anything the user does next on this
	// connection.
	if n, err := g.relay.Replay(ctx, identity, sess.conn); err != nil {
		g.log.Error("Replay failed", "identity", identity, "error", err)
	} else if n > 0 {
		g.log.Info("Replayed pending messages", "identity", identity, "count", n)
	}
}

func (g *Gateway) handleSend(ctx context.Context, sess *session, data json.RawMessage) {
	var payload SendMessagePayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.emit(ctx, sess.conn, event.Error{Reason: "malformed sendMessage payload"})
		return
	}
	if err := payload.Validate(); err != nil {
		g.emit(ctx, sess.conn, event.Error{Reason: "sendMessage requires senderId, recipientId and content"})
		return
	}
	if !g.senderAllowed(ctx, sess, payload.SenderID) {
		return
	}
	if g.opts.MaxContentLength > 0 && len(payload.Content) > g.opts.MaxContentLength {
		g.emit(ctx, sess.conn, event.MessageError{Reason: "content too long"})
		return
	}

	message, err := g.relay.Send(ctx, sess.identity, payload.RecipientID, payload.Content)
	if err != nil {
		g.log.Error("Send failed", "sender", sess.identity, "recipient", payload.RecipientID, "error", err)
		g.emit(ctx, sess.conn, event.MessageError{Reason: "message could not be stored"})
		return
	}
	g.emit(ctx, sess.conn, event.MessageSent{Message: message})
}

func (g *Gateway) handleTyping(ctx context.Context, sess *session, data json.RawMessage) {
	var payload TypingPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		g.emit(ctx, sess.conn, event.Error{Reason: "malformed typing payload"})
		return
	}
	if err := payload.Validate(); err != nil {
		g.emit(ctx, sess.conn, event.Error{Reason: "typing requires senderId and recipientId"})
		return
	}
	if !g.senderAllowed(ctx, sess, payload.SenderID) {
		return
	}

	if sink, online := g.directory.Lookup(payload.RecipientID); online {
		if err := sink.Consume(ctx, event.UserTyping{UserID: sess.identity}); err != nil {
			g.log.Debug("Typing signal dropped", "recipient", payload.RecipientID, "error", err)
		}
	}
}

// senderAllowed enforces the identity binding: the sender named in a
// payload must be the identity this connection registered. Anything
// else would let a client impersonate another user.
func (g *Gateway) senderAllowed(ctx context.Context, sess *session, senderID string) bool {
	if sess.state != stateIdentified {
		g.emit(ctx, sess.conn, event.Error{Reason: errors.ErrNotRegistered.Error()})
		return false
	}
	if senderID != sess.identity {
		g.log.Warn("Sender identity mismatch",
			"registered", sess.identity, "claimed", senderID)
		g.emit(ctx, sess.conn, event.Error{Reason: errors.ErrSenderMismatch.Error()})
		return false
	}
	return true
}

// teardown runs once the reader is gone: drop the connection, free its
// presence entry and tell everyone who is left.
func (g *Gateway) teardown(_ context.Context, sess *session) {
	sess.conn.close()
	g.untrack(sess.conn)
	g.stats.ConnClosed()
	sess.state = stateClosed

	identity, online, found := g.directory.Unregister(sess.conn.id)
	if !found {
		// Anonymous connection, or superseded by a newer registration.
		return
	}
	g.stats.SetOnline(len(online))
	g.log.Info("User disconnected", "identity", identity)
	g.broadcast(event.PresenceChanged{Online: online})
	g.broadcast(event.UserDisconnected{UserID: identity})
}

func (g *Gateway) emit(ctx context.Context, c *Conn, evt event.Event) {
	if err := c.Consume(ctx, evt); err != nil {
		g.log.Debug("Event not delivered", "event", evt.Name(), "error", err)
	}
}

func (g *Gateway) broadcast(evt event.Event) {
	select {
	case g.broadcasts <- evt:
	default:
		g.stats.EventDropped()
		g.log.Warn("Broadcast queue full, presence event dropped", "event", evt.Name())
	}
}
