package gateway

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"time"

	"dm-relay/domain"
	"dm-relay/domain/event"
	"dm-relay/observability"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	errConnClosed   = stderrors.New("connection closed")
	errSlowConsumer = stderrors.New("outbound buffer full")
)

// Conn is one client connection: the presence handle the directory keys
// on, and the event sink everything else delivers to. Outbound frames go
// through a buffered channel drained by a single writer goroutine, so
// Consume never blocks its caller.
type Conn struct {
	id    domain.ConnID
	ws    *websocket.Conn
	log   *slog.Logger
	stats *observability.Stats

	send chan []byte
	done chan struct{}
	once sync.Once

	writeTimeout time.Duration
	pingInterval time.Duration
}

func newConn(ws *websocket.Conn, log *slog.Logger, stats *observability.Stats,
	bufferSize int, writeTimeout, pingInterval time.Duration) *Conn {
	id := domain.ConnID(uuid.NewString())
	return &Conn{
		id:           id,
		ws:           ws,
		log:          log.With("conn", id),
		stats:        stats,
		send:         make(chan []byte, bufferSize),
		done:         make(chan struct{}),
		writeTimeout: writeTimeout,
		pingInterval: pingInterval,
	}
}

func (c *Conn) ID() domain.ConnID { return c.id }

// Consume enqueues the event for this connection. It never blocks: a
// full buffer means the client is not keeping up and the event is lost.
func (c *Conn) Consume(_ context.Context, e event.Event) error {
	frame, err := toWire(e)
	if err != nil {
		return err
	}

	select {
	case <-c.done:
		return errConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.stats.EventDropped()
		c.log.Debug("Outbound event dropped", "event", e.Name())
		return errSlowConsumer
	}
}

// writePump is the sole writer on the underlying WebSocket. It drains
// the outbound buffer and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("Write failed, closing", "error", err)
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}
