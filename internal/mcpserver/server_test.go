package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/logger"
	"github.com/icarus-itcs/lazyedge/internal/status"
)

type stubConn struct {
	user edge.User
	err  error
}

func (c stubConn) CurrentUser(context.Context) (edge.User, error) { return c.user, c.err }
func (c stubConn) PairLocalOpen(context.Context, string) (edge.User, error) {
	return edge.User{}, edge.ErrPairingClosed
}
func (c stubConn) Close() error { return nil }

type stubConnector struct {
	conns   map[string]stubConn
	errs    map[string]error
	stopped int
}

func (s *stubConnector) Connect(_ context.Context, b bookmark.Bookmark) (edge.Conn, error) {
	if err, ok := s.errs[b.ID]; ok {
		return nil, err
	}
	return s.conns[b.ID], nil
}

func (s *stubConnector) Stop() { s.stopped++ }

func newTestServer(t *testing.T) (*Server, *stubConnector) {
	t.Helper()
	repo := bookmark.NewMemoryRepository(
		bookmark.Bookmark{ID: "pr-1.de-1", ProductID: "pr-1", DeviceID: "de-1", Name: "Kitchen"},
		bookmark.Bookmark{ID: "pr-1.de-2", ProductID: "pr-1", DeviceID: "de-2", Name: "Garage"},
		bookmark.Bookmark{ID: "pr-1.de-3", ProductID: "pr-1", DeviceID: "de-3", Name: "Cellar"},
	)
	conn := &stubConnector{
		conns: map[string]stubConn{
			"pr-1.de-1": {user: edge.User{Username: "alice", Role: "Owner"}},
		},
		errs: map[string]error{
			"pr-1.de-2": edge.ErrNoChannels,
			"pr-1.de-3": errors.New("tls alert"),
		},
	}
	return New(conn, repo, status.Options{Order: status.OrderBookmark}, "test", logger.Discard()), conn
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	switch c := res.Content[0].(type) {
	case mcp.TextContent:
		return c.Text
	case *mcp.TextContent:
		return c.Text
	}
	t.Fatalf("unexpected content %T", res.Content[0])
	return ""
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestRefreshDevices(t *testing.T) {
	s, conn := newTestServer(t)

	res, err := s.handleRefreshDevices(context.Background(), callRequest(map[string]any{"reconnect": true}))
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, 1, conn.stopped)

	var out refreshJSON
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.NotEmpty(t, out.Cycle)
	assert.Equal(t, "2 devices, 1 online, 1 paired", out.Summary)
	require.Len(t, out.Devices, 2)
	assert.Equal(t, "pr-1.de-1", out.Devices[0].ID)
	assert.Equal(t, "Owner", out.Devices[0].Role)
	assert.Equal(t, "detail", out.Devices[0].Action)
	assert.Equal(t, "none", out.Devices[1].Action)
	require.Len(t, out.Errors, 1)
	assert.Contains(t, out.Errors[0], "tls alert")
}

func TestListDevicesRefreshesOnFirstCall(t *testing.T) {
	s, conn := newTestServer(t)

	res, err := s.handleListDevices(context.Background(), callRequest(nil))
	require.NoError(t, err)
	assert.Equal(t, 0, conn.stopped)

	var out []deviceJSON
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Len(t, out, 2)
}

func TestGetDevice(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	_, err := s.handleRefreshDevices(ctx, callRequest(nil))
	require.NoError(t, err)

	res, err := s.handleGetDevice(ctx, callRequest(map[string]any{"id": "pr-1.de-1"}))
	require.NoError(t, err)
	var d deviceJSON
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &d))
	assert.True(t, d.Online)
	assert.True(t, d.Paired)

	// Dropped from the refresh by a transient error, still bookmarked.
	res, err = s.handleGetDevice(ctx, callRequest(map[string]any{"id": "pr-1.de-3"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &d))
	assert.Equal(t, "unknown", d.Action)
	assert.Equal(t, "Cellar", d.Name)

	res, err = s.handleGetDevice(ctx, callRequest(map[string]any{"id": "nope"}))
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, err = s.handleGetDevice(ctx, callRequest(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
