package edge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 3
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// Manager caches one session per bookmark and guards each device with a
// circuit breaker. It is itself a Connector.
type Manager struct {
	connector Connector
	cfg       config.BreakerConfig
	logger    *slog.Logger

	mu       sync.Mutex
	conns    map[string]*managedConn
	breakers map[string]*gobreaker.CircuitBreaker[Conn]
}

// NewManager wraps connector with caching and per-device breakers.
func NewManager(connector Connector, cfg config.BreakerConfig, logger *slog.Logger) *Manager {
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = defaultCBMaxFailures
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultCBTimeout
	}
	if cfg.Interval == 0 {
		cfg.Interval = defaultCBInterval
	}
	return &Manager{
		connector: connector,
		cfg:       cfg,
		logger:    logger,
		conns:     make(map[string]*managedConn),
		breakers:  make(map[string]*gobreaker.CircuitBreaker[Conn]),
	}
}

// Connect returns the cached session for b or opens a new one.
func (m *Manager) Connect(ctx context.Context, b bookmark.Bookmark) (Conn, error) {
	m.mu.Lock()
	if c, ok := m.conns[b.ID]; ok {
		m.mu.Unlock()
		return c, nil
	}
	cb := m.breaker(b.ID)
	m.mu.Unlock()

	conn, err := cb.Execute(func() (Conn, error) {
		return m.connector.Connect(ctx, b)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("device %s circuit open: %w", b.Key(), err)
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.conns[b.ID]; ok {
		// Lost a race with a concurrent connect.
		conn.Close()
		return existing, nil
	}
	mc := &managedConn{Conn: conn, manager: m, id: b.ID, bookmark: b}
	m.conns[b.ID] = mc
	return mc, nil
}

// breaker must be called with m.mu held.
func (m *Manager) breaker(id string) *gobreaker.CircuitBreaker[Conn] {
	if cb, ok := m.breakers[id]; ok {
		return cb
	}
	maxFailures := m.cfg.MaxFailures
	cb := gobreaker.NewCircuitBreaker[Conn](gobreaker.Settings{
		Name:        "device:" + id,
		MaxRequests: 1,
		Interval:    m.cfg.Interval,
		Timeout:     m.cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		// An unreachable device is a status, not a fault.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNoChannels)
		},
	})
	m.breakers[id] = cb
	return cb
}

// State returns the breaker state for a bookmark ID.
func (m *Manager) State(id string) gobreaker.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cb, ok := m.breakers[id]; ok {
		return cb.State()
	}
	return gobreaker.StateClosed
}

// Cached returns the number of open sessions.
func (m *Manager) Cached() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

// Stop closes every cached session and resets the breakers.
func (m *Manager) Stop() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*managedConn)
	m.breakers = make(map[string]*gobreaker.CircuitBreaker[Conn])
	m.mu.Unlock()

	for id, c := range conns {
		if err := c.Conn.Close(); err != nil {
			m.logger.Debug("close cached connection", "bookmark", id, "error", err)
		}
	}
	if len(conns) > 0 {
		m.logger.Info("connections stopped", "count", len(conns))
	}
}

func (m *Manager) evict(id string, c *managedConn) {
	m.mu.Lock()
	if cur, ok := m.conns[id]; ok && cur == c {
		delete(m.conns, id)
	}
	m.mu.Unlock()
	c.Conn.Close()
}

// managedConn drops itself from the cache when the transport breaks.
type managedConn struct {
	Conn
	manager  *Manager
	id       string
	bookmark bookmark.Bookmark
	used     atomic.Bool // at least one call succeeded
}

// CurrentUser redials once when a session that used to work breaks, so a
// device that went away since is reported through Connect as unreachable.
func (c *managedConn) CurrentUser(ctx context.Context) (User, error) {
	u, err := c.Conn.CurrentUser(ctx)
	if !c.check(err) {
		return u, err
	}
	c.manager.logger.Debug("cached session broke, redialing", "bookmark", c.id, "error", err)
	fresh, err := c.manager.Connect(ctx, c.bookmark)
	if err != nil {
		return User{}, err
	}
	return fresh.CurrentUser(ctx)
}

func (c *managedConn) PairLocalOpen(ctx context.Context, username string) (User, error) {
	u, err := c.Conn.PairLocalOpen(ctx, username)
	c.check(err)
	return u, err
}

// Close evicts the session; the next Connect dials again.
func (c *managedConn) Close() error {
	c.manager.evict(c.id, c)
	return nil
}

// check evicts the session on a transport failure and reports whether
// the session had worked before.
func (c *managedConn) check(err error) bool {
	if err == nil {
		c.used.Store(true)
		return false
	}
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return false
	}
	c.manager.evict(c.id, c)
	return c.used.Load()
}
