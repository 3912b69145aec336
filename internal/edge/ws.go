package edge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
)

const defaultConnectTimeout = 10 * time.Second

// WSConnector reaches devices over websocket channels.
type WSConnector struct {
	identity IdentityFunc
	resolver Resolver
	timeout  time.Duration
	logger   *slog.Logger
}

// NewWSConnector creates a connector. resolver may be nil when local
// discovery is disabled. A zero timeout uses the 10s default.
func NewWSConnector(identity IdentityFunc, resolver Resolver, timeout time.Duration, logger *slog.Logger) *WSConnector {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	return &WSConnector{
		identity: identity,
		resolver: resolver,
		timeout:  timeout,
		logger:   logger,
	}
}

// Channels lists the candidate addresses for b: the locally discovered
// address first, then the bookmarked one.
func (c *WSConnector) Channels(b bookmark.Bookmark) []string {
	var out []string
	if c.resolver != nil {
		if addr, ok := c.resolver.Lookup(b.ProductID, b.DeviceID); ok && addr != "" {
			out = append(out, addr)
		}
	}
	if b.Address != "" && (len(out) == 0 || out[0] != b.Address) {
		out = append(out, b.Address)
	}
	return out
}

// Connect dials each channel in turn and performs the hello exchange on
// the first one that accepts the socket.
func (c *WSConnector) Connect(ctx context.Context, b bookmark.Bookmark) (Conn, error) {
	channels := c.Channels(b)
	if len(channels) == 0 {
		return nil, fmt.Errorf("%s: %w", b.Key(), ErrNoChannels)
	}

	for _, ch := range channels {
		dialCtx, cancel := context.WithTimeout(ctx, c.timeout)
		ws, _, err := websocket.Dial(dialCtx, "ws://"+ch+Path, nil)
		cancel()
		if err != nil {
			c.logger.Debug("channel dial failed", "device", b.Key(), "channel", ch, "error", err)
			continue
		}

		conn := &wsConn{ws: ws, timeout: c.timeout}
		if err := conn.hello(ctx, b, c.identity()); err != nil {
			conn.Close()
			return nil, err
		}
		c.logger.Debug("device connected", "device", b.Key(), "channel", ch)
		return conn, nil
	}
	return nil, fmt.Errorf("%s: %w", b.Key(), ErrNoChannels)
}

// wsConn serializes request/reply pairs over one socket.
type wsConn struct {
	ws      *websocket.Conn
	timeout time.Duration

	mu     sync.Mutex // serializes calls
	nextID uint64
	closed atomic.Bool
}

func (c *wsConn) hello(ctx context.Context, b bookmark.Bookmark, id Identity) error {
	reply, err := c.call(ctx, Message{
		Type:      TypeHello,
		ProductID: b.ProductID,
		DeviceID:  b.DeviceID,
		ClientID:  id.ClientID,
		Username:  id.Username,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHandshake, err)
	}
	if reply.Type != TypeHelloOK {
		return fmt.Errorf("%w: unexpected reply %q", ErrHandshake, reply.Type)
	}
	return nil
}

func (c *wsConn) CurrentUser(ctx context.Context) (User, error) {
	reply, err := c.call(ctx, Message{Type: TypeIAMMe})
	if err != nil {
		return User{}, fmt.Errorf("iam.me: %w", err)
	}
	return User{Username: reply.Username, Role: reply.Role}, nil
}

func (c *wsConn) PairLocalOpen(ctx context.Context, username string) (User, error) {
	reply, err := c.call(ctx, Message{Type: TypePairLocalOpen, Username: username})
	if err != nil {
		return User{}, fmt.Errorf("pair.local_open: %w", err)
	}
	return User{Username: username, Role: reply.Role}, nil
}

// Close does not wait for an in-flight call; the call fails instead.
func (c *wsConn) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	return c.ws.CloseNow()
}

func (c *wsConn) call(ctx context.Context, req Message) (Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed.Load() {
		return Message{}, ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.nextID++
	req.ID = c.nextID
	if err := wsjson.Write(ctx, c.ws, req); err != nil {
		return Message{}, err
	}

	var reply Message
	if err := wsjson.Read(ctx, c.ws, &reply); err != nil {
		return Message{}, err
	}
	if reply.ID != 0 && reply.ID != req.ID {
		return Message{}, fmt.Errorf("reply id %d does not match request %d", reply.ID, req.ID)
	}
	if err := reply.err(); err != nil {
		return Message{}, err
	}
	return reply, nil
}
