package lazyedge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/config"
	"github.com/icarus-itcs/lazyedge/internal/discovery"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/logger"
	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/preflight"
	"github.com/icarus-itcs/lazyedge/internal/profile"
	"github.com/icarus-itcs/lazyedge/internal/status"
	"github.com/icarus-itcs/lazyedge/internal/tracer"
)

const demoUsername = "demo"

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	cfgPath  string
	logger   *slog.Logger
	repo     bookmark.Repository
	profiles *profile.Store
	registry *discovery.Registry
	scanner  discovery.Scanner
	manager  *edge.Manager

	closers []func() error
}

func loadConfig() (*config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, err
	}
	return cfg, path, nil
}

// newApp loads config and opens the store. With demo set, bookmarks and
// profile live in memory and a temporary directory, backed by a fleet
// of simulated devices on loopback.
func newApp(ctx context.Context, demo bool) (*app, error) {
	cfg, path, err := loadConfig()
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, cfgPath: path, logger: log, closers: []func() error{closeLog}}

	shutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("setup tracer: %w", err)
	}
	a.closers = append(a.closers, func() error { return shutdown(context.Background()) })

	a.registry = discovery.NewRegistry()

	if demo {
		err = a.openDemo()
	} else {
		err = a.openStore()
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	connector := edge.NewWSConnector(a.profiles.Identity, a.registry, cfg.Edge.ConnectTimeout, log)
	a.manager = edge.NewManager(connector, cfg.Edge.Breaker, log)
	a.closers = append(a.closers, func() error { a.manager.Stop(); return nil })

	log.Debug("app ready", "config", path, "demo", demo)
	return a, nil
}

func (a *app) openStore() error {
	repo, err := bookmark.OpenSQLite(a.cfg.Store.Path)
	if err != nil {
		return err
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)
	a.profiles = profile.NewStore(a.cfg.Profile.Path)
	if a.cfg.Discovery.MDNS {
		a.scanner = discovery.NewMDNS(a.cfg.Discovery, a.logger)
	}
	return nil
}

func (a *app) openDemo() error {
	dir, err := os.MkdirTemp("", "lazyedge-demo-")
	if err != nil {
		return fmt.Errorf("create demo dir: %w", err)
	}
	a.closers = append(a.closers, func() error { return os.RemoveAll(dir) })

	a.profiles = profile.NewStore(filepath.Join(dir, "profile.yaml"))
	p, err := a.profiles.Create(demoUsername)
	if err != nil {
		return err
	}

	fleet, err := edge.StartFleet(edge.DemoProductID, edge.DemoDevices, p.Identity(), a.logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, fleet.Close)
	a.repo = bookmark.NewMemoryRepository(fleet.Bookmarks...)
	return nil
}

func (a *app) aggregator(n notify.Notifier) *status.Aggregator {
	return status.New(a.manager, a.repo, n, a.logger, status.Options{Order: status.Order(a.cfg.UI.Order)})
}

func (a *app) preflight(ctx context.Context) *preflight.Results {
	return preflight.Run(ctx, preflight.Options{
		ConfigPath: a.cfgPath,
		Config:     a.cfg,
		Version:    appVersion,
	})
}

// requireQuietStdout rejects log or trace output on stdout for commands
// that own stdout (the dashboard and the MCP stdio transport).
func (a *app) requireQuietStdout() error {
	if strings.EqualFold(a.cfg.Logger.Output, "stdout") {
		return errors.New("logger.output must not be stdout here; use stderr or a file")
	}
	if a.cfg.Tracer.Enabled && a.cfg.Tracer.Exporter == "stdout" && strings.EqualFold(a.cfg.Tracer.Output, "stdout") {
		return errors.New("tracer.output must not be stdout here; use stderr or a file")
	}
	return nil
}

func (a *app) requireProfile() error {
	if a.profiles.Exists() {
		return nil
	}
	return fmt.Errorf("no local profile at %s; run 'lazyedge profile create <username>' first", a.profiles.Path())
}

// Close releases everything in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("close failed", "error", err)
		}
	}
	a.closers = nil
}
