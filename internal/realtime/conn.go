package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
	maxFrameSize    = 16 << 10
	sendBufferSize  = 64
	opQueueSize     = 32
)

var (
	errConnClosed = errors.New("connection closed")
	errBufferFull = errors.New("connection buffer exceeded")
)

// Conn is one websocket client. Outbound frames go through a buffered
// queue drained by the write loop; inbound operations are handled one at a
// time, in arrival order, by the connection's worker.
type Conn struct {
	id    string
	ws    *websocket.Conn
	gw    *Gateway
	token string

	send   chan []byte
	ops    chan Frame
	closed chan struct{}
	once   sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	identity atomic.Int64
	warned   atomic.Bool
	limiter  *rate.Limiter

	graceMu sync.Mutex
	grace   *time.Timer
}

func newConn(gw *Gateway, ws *websocket.Conn, token string) *Conn {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		id:     uuid.NewString(),
		ws:     ws,
		gw:     gw,
		token:  token,
		send:   make(chan []byte, sendBufferSize),
		ops:    make(chan Frame, opQueueSize),
		closed: make(chan struct{}),
		ctx:    ctx,
		cancel: cancel,
	}
	if gw.opts.SendRate > 0 {
		burst := gw.opts.SendBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(gw.opts.SendRate), burst)
	}
	return c
}

func (c *Conn) ID() string { return c.id }

// IdentityID is zero until the session resolves.
func (c *Conn) IdentityID() int64 { return c.identity.Load() }

// Deliver queues payload without blocking. A client that cannot keep up is
// disconnected rather than allowed to stall a broadcast.
func (c *Conn) Deliver(payload []byte) error {
	select {
	case <-c.closed:
		return errConnClosed
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.closed:
		return errConnClosed
	default:
		// closing writes a control frame; keep it off the broadcaster's path
		go c.closeWith(websocket.ClosePolicyViolation, "send buffer full")
		return errBufferFull
	}
}

func (c *Conn) Close() {
	c.closeWith(websocket.CloseGoingAway, "")
}

func (c *Conn) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		c.cancel()
		c.stopGrace()
		c.gw.detach(c)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(writeWait))
		_ = c.ws.Close()
		c.gw.logger.Debug("realtime_connection_closed", "conn_id", c.id, "identity_id", c.IdentityID(), "reason", reason)
	})
}

func (c *Conn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) readLoop() {
	defer c.Close()

	pongWait := c.gw.opts.PongWait
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.gw.logger.Debug("realtime_read_failed", "conn_id", c.id, "error", err)
			}
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			c.gw.logger.Debug("realtime_frame_invalid", "conn_id", c.id)
			continue
		}
		select {
		case c.ops <- frame:
			continue
		case <-c.closed:
			return
		default:
		}

		// The worker is behind. Pongs are not read until the queue has
		// room, so the peer's liveness deadline is suspended meanwhile.
		_ = c.ws.SetReadDeadline(time.Time{})
		select {
		case c.ops <- frame:
		case <-c.closed:
			return
		}
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.gw.opts.PongWait * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(messageType, payload)
}

// work resolves the session once up front, then handles queued operations
// until the connection closes. Operations still queued at close are dropped.
func (c *Conn) work() {
	c.authenticate()
	for {
		select {
		case <-c.closed:
			return
		case frame := <-c.ops:
			if c.isClosed() {
				return
			}
			c.handle(frame)
		}
	}
}

// authenticate resolves the session token when the connection has no
// identity yet. It is safe to call before every operation.
func (c *Conn) authenticate() (int64, bool) {
	if id := c.identity.Load(); id > 0 {
		return id, true
	}
	id, err := c.gw.resolver.Resolve(c.ctx, c.token)
	if err != nil || id <= 0 {
		return 0, false
	}
	c.identity.Store(id)
	c.stopGrace()
	c.gw.logger.Info("realtime_identity_resolved", "conn_id", c.id, "identity_id", id)
	return id, true
}

func (c *Conn) startGrace(d time.Duration) {
	c.graceMu.Lock()
	defer c.graceMu.Unlock()
	c.grace = time.AfterFunc(d, func() {
		if c.identity.Load() == 0 {
			c.closeWith(websocket.ClosePolicyViolation, "authentication required")
		}
	})
}

func (c *Conn) stopGrace() {
	c.graceMu.Lock()
	defer c.graceMu.Unlock()
	if c.grace != nil {
		c.grace.Stop()
		c.grace = nil
	}
}

func (c *Conn) allowSend() bool {
	return c.limiter == nil || c.limiter.Allow()
}

func (c *Conn) emit(event string, data any) {
	payload, err := Encode(event, data)
	if err != nil {
		c.gw.logger.Error("realtime_encode_failed", "conn_id", c.id, "event", event, "error", err)
		return
	}
	_ = c.Deliver(payload)
}

func (c *Conn) emitError(message string) {
	c.emit(EventError, ErrorPayload{Message: message})
}
