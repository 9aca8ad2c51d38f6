// Package realtime serves the websocket endpoint: session resolution,
// room membership operations and message sends for live clients.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"facultychat/internal/rooms"
	"facultychat/internal/store"
)

// Resolver maps the session token carried on the upgrade request to an
// identity id.
type Resolver interface {
	Token(r *http.Request) string
	Resolve(ctx context.Context, token string) (int64, error)
}

// Pipeline persists and fans out messages on behalf of a resolved identity.
type Pipeline interface {
	SendGroupMessage(ctx context.Context, identityID int64, roomName, body string) (*store.GroupMessage, error)
	SendPrivateMessage(ctx context.Context, identityID, peerID int64, body string) (*store.PrivateMessage, error)
	IdentitySummary(ctx context.Context, identityID int64) (store.Identity, error)
}

type Options struct {
	// AllowedOrigin is matched against the Origin header; "*" or empty
	// accepts any origin.
	AllowedOrigin string
	// UnauthGrace closes connections that have not authenticated within
	// the window. Zero keeps them open.
	UnauthGrace time.Duration
	// SendRate is the sustained sends per second per connection. Zero
	// disables limiting.
	SendRate  float64
	SendBurst int
	// Location formats the time shown in join notices.
	Location *time.Location
	// PongWait is how long the peer may stay silent before the connection
	// is dropped. Pings go out at 9/10 of it.
	PongWait time.Duration
	Now      func() time.Time
}

type Gateway struct {
	resolver Resolver
	pipeline Pipeline
	rooms    *rooms.Registry
	catalog  *rooms.Catalog
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu    sync.Mutex
	conns map[string]*Conn
}

func NewGateway(resolver Resolver, pipeline Pipeline, registry *rooms.Registry, catalog *rooms.Catalog, opts Options) *Gateway {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.PongWait <= 0 {
		opts.PongWait = defaultPongWait
	}
	g := &Gateway{
		resolver: resolver,
		pipeline: pipeline,
		rooms:    registry,
		catalog:  catalog,
		opts:     opts,
		logger:   slog.Default().With("component", "realtime"),
		conns:    make(map[string]*Conn),
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := g.resolver.Token(r)
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("realtime_upgrade_failed", "error", err)
		return
	}

	c := newConn(g, ws, token)
	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()
	g.logger.Debug("realtime_connection_opened", "conn_id", c.id, "remote", r.RemoteAddr)

	if g.opts.UnauthGrace > 0 {
		c.startGrace(g.opts.UnauthGrace)
	}
	go c.writeLoop()
	go c.work()
	c.readLoop()
}

// Connections is the number of open websocket connections.
func (g *Gateway) Connections() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Shutdown closes every open connection.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	open := make([]*Conn, 0, len(g.conns))
	for _, c := range g.conns {
		open = append(open, c)
	}
	g.mu.Unlock()

	for _, c := range open {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.closeWith(websocket.CloseGoingAway, "server shutdown")
	}
	return nil
}

func (g *Gateway) detach(c *Conn) {
	g.rooms.Remove(c)
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	if g.opts.AllowedOrigin == "" || g.opts.AllowedOrigin == "*" {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || origin == g.opts.AllowedOrigin
}

func (c *Conn) handle(frame Frame) {
	defer func() {
		if r := recover(); r != nil {
			c.gw.logger.Error("realtime_op_panic", "conn_id", c.id, "event", frame.Event, "panic", fmt.Sprint(r))
		}
	}()

	identityID, ok := c.authenticate()
	if !ok {
		if c.warned.CompareAndSwap(false, true) {
			c.emitError(msgSessionExpired)
		}
		return
	}

	switch frame.Event {
	case EventJoinFaculty:
		c.joinFaculty(identityID, frame.Data)
	case EventLeaveFaculty:
		name, err := decodeRoomName(frame.Data)
		if err != nil {
			return
		}
		c.gw.rooms.LeaveFaculty(c, name)
	case EventJoinPrivate:
		peer, err := decodePeerID(frame.Data)
		if err != nil || peer <= 0 || peer == identityID {
			c.emitError("Invalid peer")
			return
		}
		c.gw.rooms.JoinPrivate(c, identityID, peer)
		c.dropIfClosed()
	case EventLeavePrivate:
		peer, err := decodePeerID(frame.Data)
		if err != nil || peer <= 0 {
			return
		}
		c.gw.rooms.LeavePrivate(c, identityID, peer)
	case EventSendGroup:
		var in sendGroupInput
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			c.emitError("Invalid message")
			return
		}
		if !c.allowSend() {
			c.emitError("rate limited")
			return
		}
		_, err := c.gw.pipeline.SendGroupMessage(c.ctx, identityID, in.room(), in.text())
		c.reportSendError(err)
	case EventSendPrivate:
		var in sendPrivateInput
		if err := json.Unmarshal(frame.Data, &in); err != nil {
			c.emitError("Invalid message")
			return
		}
		if !c.allowSend() {
			c.emitError("rate limited")
			return
		}
		_, err := c.gw.pipeline.SendPrivateMessage(c.ctx, identityID, in.peer(), in.text())
		c.reportSendError(err)
	default:
		c.gw.logger.Debug("realtime_event_unknown", "conn_id", c.id, "event", frame.Event)
	}
}

func (c *Conn) joinFaculty(identityID int64, data json.RawMessage) {
	name, err := decodeRoomName(data)
	if err != nil || !c.gw.catalog.Contains(name) {
		c.emitError("Unknown room")
		return
	}
	c.gw.rooms.JoinFaculty(c, name)
	if c.dropIfClosed() {
		return
	}

	identity, err := c.gw.pipeline.IdentitySummary(c.ctx, identityID)
	if err != nil {
		c.gw.logger.Warn("realtime_join_notice_skipped", "conn_id", c.id, "identity_id", identityID, "error", err)
		return
	}
	payload, err := Encode(EventUserJoined, UserJoined{
		User: identity,
		Time: c.gw.opts.Now().In(c.gw.opts.Location).Format("15:04:05"),
	})
	if err != nil {
		return
	}
	c.gw.rooms.Broadcast(rooms.FacultyKey(name), payload, c.id)
}

// dropIfClosed undoes a join that raced with the connection closing.
func (c *Conn) dropIfClosed() bool {
	if !c.isClosed() {
		return false
	}
	c.gw.rooms.Remove(c)
	return true
}

type publicError interface {
	error
	PublicMessage() string
}

func (c *Conn) reportSendError(err error) {
	if err == nil {
		return
	}
	if errors.Is(err, context.Canceled) && c.isClosed() {
		return
	}
	var pub publicError
	if errors.As(err, &pub) {
		c.emitError(pub.PublicMessage())
	} else {
		c.emitError("Message could not be sent")
	}
	c.gw.logger.Warn("realtime_send_failed", "conn_id", c.id, "identity_id", c.IdentityID(), "error", err)
}
