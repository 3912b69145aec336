// Package mcpserver exposes device status to AI assistants over the
// Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/device"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/status"
)

// ServerName is announced to MCP clients.
const ServerName = "lazyedge"

// Stopper drops cached device connections.
type Stopper interface {
	Stop()
}

// Server serves the device tools.
type Server struct {
	agg     *status.Aggregator
	repo    bookmark.Repository
	stopper Stopper
	logger  *slog.Logger
	mcp     *server.MCPServer

	refreshMu sync.Mutex // one refresh at a time so notifications map to their cycle
	mu        sync.RWMutex
	rows      []device.Device
	cycle     string
	pending   []string
}

// New builds the server. If connector also implements Stopper,
// refresh_devices can drop cached connections first.
func New(connector edge.Connector, repo bookmark.Repository, opts status.Options, version string, logger *slog.Logger) *Server {
	s := &Server{repo: repo, logger: logger}
	if st, ok := connector.(Stopper); ok {
		s.stopper = st
	}
	s.agg = status.New(connector, repo, s, logger, opts)

	s.mcp = server.NewMCPServer(ServerName, version, server.WithToolCapabilities(false))
	s.mcp.AddTool(mcp.NewTool("list_devices",
		mcp.WithDescription("List bookmarked devices with their online and paired state from the latest refresh"),
	), s.handleListDevices)
	s.mcp.AddTool(mcp.NewTool("refresh_devices",
		mcp.WithDescription("Query every bookmarked device now and return the new state"),
		mcp.WithBoolean("reconnect", mcp.Description("Close cached connections before querying")),
	), s.handleRefreshDevices)
	s.mcp.AddTool(mcp.NewTool("get_device",
		mcp.WithDescription("Get one bookmarked device by bookmark ID"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Bookmark ID, usually <product_id>.<device_id>")),
	), s.handleGetDevice)
	return s
}

// ServeStdio runs the server on stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// Notify collects refresh errors for the running refresh_devices call.
func (s *Server) Notify(n notify.Notification) {
	s.mu.Lock()
	s.pending = append(s.pending, n.Message)
	s.mu.Unlock()
}

type deviceJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProductID string `json:"product_id"`
	DeviceID  string `json:"device_id"`
	Address   string `json:"address,omitempty"`
	Online    bool   `json:"online"`
	Paired    bool   `json:"paired"`
	Role      string `json:"role,omitempty"`
	Action    string `json:"action"`
}

func toJSONDevice(d device.Device) deviceJSON {
	out := deviceJSON{
		ID:        d.Bookmark.ID,
		Name:      d.Name(),
		ProductID: d.Bookmark.ProductID,
		DeviceID:  d.Bookmark.DeviceID,
		Address:   d.Bookmark.Address,
		Online:    d.Online,
		Paired:    d.Paired,
		Action:    device.Route(d).String(),
	}
	if d.Paired {
		out.Role = d.Bookmark.Role
	}
	return out
}

type refreshJSON struct {
	Cycle   string       `json:"cycle"`
	Summary string       `json:"summary"`
	Devices []deviceJSON `json:"devices"`
	Errors  []string     `json:"errors,omitempty"`
}

func (s *Server) refresh(ctx context.Context, reconnect bool) (refreshJSON, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if reconnect && s.stopper != nil {
		s.stopper.Stop()
	}

	s.mu.Lock()
	s.pending = nil
	s.mu.Unlock()

	cycle := status.NewCycleID()
	rows, err := s.agg.RefreshAll(ctx, cycle)
	if err != nil {
		return refreshJSON{}, err
	}

	s.mu.Lock()
	s.rows = rows
	s.cycle = cycle
	errs := s.pending
	s.pending = nil
	s.mu.Unlock()

	out := refreshJSON{
		Cycle:   cycle,
		Summary: status.Summarize(rows).String(),
		Devices: make([]deviceJSON, 0, len(rows)),
		Errors:  errs,
	}
	for _, r := range rows {
		out.Devices = append(out.Devices, toJSONDevice(r))
	}
	return out, nil
}

func (s *Server) snapshot() ([]device.Device, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cycle == "" {
		return nil, false
	}
	rows := make([]device.Device, len(s.rows))
	copy(rows, s.rows)
	return rows, true
}

func (s *Server) handleListDevices(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rows, ok := s.snapshot()
	if !ok {
		if _, err := s.refresh(ctx, false); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		rows, _ = s.snapshot()
	}
	out := make([]deviceJSON, 0, len(rows))
	for _, r := range rows {
		out = append(out, toJSONDevice(r))
	}
	return mcp.NewToolResultText(toJSON(out)), nil
}

func (s *Server) handleRefreshDevices(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := s.refresh(ctx, req.GetBool("reconnect", false))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(toJSON(out)), nil
}

func (s *Server) handleGetDevice(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if rows, ok := s.snapshot(); ok {
		for _, r := range rows {
			if r.Bookmark.ID == id {
				return mcp.NewToolResultText(toJSON(toJSONDevice(r))), nil
			}
		}
	}

	b, err := s.repo.Get(ctx, id)
	if errors.Is(err, bookmark.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("device %s not found", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// Bookmarked but not in the latest refresh: never refreshed or failed transiently.
	out := toJSONDevice(device.Device{Bookmark: b})
	out.Action = "unknown"
	return mcp.NewToolResultText(toJSON(out)), nil
}

func toJSON(v interface{}) string {
	data, _ := json.MarshalIndent(v, "", "  ")
	return string(data)
}
