package edge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/logger"
)

var testIdentity = Identity{ClientID: "client-1", Username: "alice"}

func startSim(t *testing.T, sim *Simulator) string {
	t.Helper()
	srv := httptest.NewServer(sim.Handler())
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func deadAddress(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(nil)
	addr := strings.TrimPrefix(srv.URL, "http://")
	srv.Close()
	return addr
}

func newConnector(resolver Resolver) *WSConnector {
	return NewWSConnector(StaticIdentity(testIdentity), resolver, 2*time.Second, logger.Discard())
}

func simBookmark(sim *Simulator, addr string) bookmark.Bookmark {
	return bookmark.Bookmark{
		ID:        bookmark.Key(sim.ProductID(), sim.DeviceID()),
		ProductID: sim.ProductID(),
		DeviceID:  sim.DeviceID(),
		Address:   addr,
	}
}

type mapResolver map[string]string

func (r mapResolver) Lookup(productID, deviceID string) (string, bool) {
	addr, ok := r[bookmark.Key(productID, deviceID)]
	return addr, ok
}

func TestCurrentUserPaired(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	sim.AddUser(SimUser{Username: "alice", ClientID: "client-1", Role: "Owner"})
	addr := startSim(t, sim)

	ctx := context.Background()
	conn, err := newConnector(nil).Connect(ctx, simBookmark(sim, addr))
	require.NoError(t, err)
	defer conn.Close()

	u, err := conn.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "Owner", u.Role)
	assert.True(t, u.Paired())
}

func TestCurrentUserWithoutRole(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	sim.AddUser(SimUser{Username: "alice", ClientID: "client-1"})
	addr := startSim(t, sim)

	ctx := context.Background()
	conn, err := newConnector(nil).Connect(ctx, simBookmark(sim, addr))
	require.NoError(t, err)
	defer conn.Close()

	u, err := conn.CurrentUser(ctx)
	require.NoError(t, err)
	assert.False(t, u.Paired())
}

func TestCurrentUserDoesNotExist(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	addr := startSim(t, sim)

	ctx := context.Background()
	conn, err := newConnector(nil).Connect(ctx, simBookmark(sim, addr))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.CurrentUser(ctx)
	assert.ErrorIs(t, err, ErrUserDoesNotExist)

	var devErr *DeviceError
	require.ErrorAs(t, err, &devErr)
	assert.Equal(t, CodeUserDoesNotExist, devErr.Code)
}

func TestConnectNoChannels(t *testing.T) {
	unreachable := NewSimulator("pr-1", "de-2", logger.Discard())
	unreachable.SetUnreachable(true)
	unreachableAddr := startSim(t, unreachable)

	tests := []struct {
		name string
		b    bookmark.Bookmark
	}{
		{"no address", bookmark.Bookmark{ID: "x", ProductID: "pr-1", DeviceID: "de-1"}},
		{"nothing listening", bookmark.Bookmark{ID: "x", ProductID: "pr-1", DeviceID: "de-1", Address: deadAddress(t)}},
		{"device refuses socket", simBookmark(unreachable, unreachableAddr)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newConnector(nil).Connect(context.Background(), tt.b)
			assert.ErrorIs(t, err, ErrNoChannels)
		})
	}
}

func TestConnectWrongDeviceIsHandshakeError(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	addr := startSim(t, sim)

	b := bookmark.Bookmark{ID: "x", ProductID: "pr-1", DeviceID: "de-other", Address: addr}
	_, err := newConnector(nil).Connect(context.Background(), b)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrHandshake)
	assert.NotErrorIs(t, err, ErrNoChannels)
}

func TestChannelsOrder(t *testing.T) {
	b := bookmark.Bookmark{ProductID: "pr-1", DeviceID: "de-1", Address: "10.0.0.1:5592"}

	assert.Equal(t, []string{"10.0.0.1:5592"}, newConnector(nil).Channels(b))

	r := mapResolver{"pr-1.de-1": "192.168.1.20:5592"}
	assert.Equal(t, []string{"192.168.1.20:5592", "10.0.0.1:5592"}, newConnector(r).Channels(b))

	same := mapResolver{"pr-1.de-1": "10.0.0.1:5592"}
	assert.Equal(t, []string{"10.0.0.1:5592"}, newConnector(same).Channels(b))

	b.Address = ""
	assert.Empty(t, newConnector(nil).Channels(b))
}

func TestConnectFallsBackToNextChannel(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	sim.AddUser(SimUser{Username: "alice", ClientID: "client-1", Role: "Admin"})
	addr := startSim(t, sim)

	r := mapResolver{"pr-1.de-1": deadAddress(t)}
	conn, err := newConnector(r).Connect(context.Background(), simBookmark(sim, addr))
	require.NoError(t, err)
	defer conn.Close()

	u, err := conn.CurrentUser(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Admin", u.Role)
}

func TestConnectPrefersLocalChannel(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	addr := startSim(t, sim)

	r := mapResolver{"pr-1.de-1": addr}
	b := simBookmark(sim, deadAddress(t))
	conn, err := newConnector(r).Connect(context.Background(), b)
	require.NoError(t, err)
	conn.Close()
}

func TestPairLocalOpen(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	addr := startSim(t, sim)
	ctx := context.Background()

	conn, err := newConnector(nil).Connect(ctx, simBookmark(sim, addr))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.PairLocalOpen(ctx, "alice")
	assert.ErrorIs(t, err, ErrPairingClosed)

	sim.SetPairingOpen(true, "Operator")
	u, err := conn.PairLocalOpen(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Operator", u.Role)

	u, err = conn.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "Operator", u.Role)

	require.Len(t, sim.Users(), 1)
	assert.Equal(t, "client-1", sim.Users()[0].ClientID)
}

func TestDeviceFailureIsNotClassified(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	sim.SetFailure(CodeInternal)
	addr := startSim(t, sim)
	ctx := context.Background()

	conn, err := newConnector(nil).Connect(ctx, simBookmark(sim, addr))
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.CurrentUser(ctx)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUserDoesNotExist)
	assert.NotErrorIs(t, err, ErrNoChannels)
}

func TestCallAfterClose(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	addr := startSim(t, sim)

	conn, err := newConnector(nil).Connect(context.Background(), simBookmark(sim, addr))
	require.NoError(t, err)
	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())

	_, err = conn.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestStartFleet(t *testing.T) {
	f, err := StartFleet(DemoProductID, DemoDevices, testIdentity, logger.Discard())
	require.NoError(t, err)
	defer f.Close()

	require.Len(t, f.Bookmarks, len(DemoDevices))
	ctx := context.Background()
	c := newConnector(nil)

	conn, err := c.Connect(ctx, f.Bookmarks[0])
	require.NoError(t, err)
	u, err := conn.CurrentUser(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Owner", u.Role)
	conn.Close()

	_, err = c.Connect(ctx, f.Bookmarks[2])
	assert.ErrorIs(t, err, ErrNoChannels)
}

func TestSimulatorRoutes(t *testing.T) {
	sim := NewSimulator("pr-1", "de-1", logger.Discard())
	h := sim.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, Path, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/other", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	sim.SetUnreachable(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, Path, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

// silentDevice completes the handshake, then never answers.
func silentDevice(t *testing.T) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer ws.CloseNow()
		var hello Message
		if err := wsjson.Read(r.Context(), ws, &hello); err != nil {
			return
		}
		if err := wsjson.Write(r.Context(), ws, Message{Type: TypeHelloOK, ID: hello.ID}); err != nil {
			return
		}
		var req Message
		for wsjson.Read(r.Context(), ws, &req) == nil {
		}
	}))
	t.Cleanup(srv.Close)
	return strings.TrimPrefix(srv.URL, "http://")
}

func TestCloseDoesNotWaitForInflightCall(t *testing.T) {
	addr := silentDevice(t)
	c := NewWSConnector(StaticIdentity(testIdentity), nil, 5*time.Second, logger.Discard())
	b := bookmark.Bookmark{ID: "pr-1.de-1", ProductID: "pr-1", DeviceID: "de-1", Address: addr}

	conn, err := c.Connect(context.Background(), b)
	require.NoError(t, err)

	callErr := make(chan error, 1)
	go func() {
		_, err := conn.CurrentUser(context.Background())
		callErr <- err
	}()
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	conn.Close()
	assert.Less(t, time.Since(start), time.Second)

	select {
	case err := <-callErr:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("in-flight call did not fail after Close")
	}

	_, err = conn.CurrentUser(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.NoError(t, conn.Close())
}
