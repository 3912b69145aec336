package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/config"
	"github.com/icarus-itcs/lazyedge/internal/profile"
)

// CheckResult represents the result of a single check
type CheckResult struct {
	Name    string
	Status  Status
	Message string
	Path    string
}

// Status represents the status of a check
type Status int

const (
	StatusOK Status = iota
	StatusWarning
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	}
	return "ok"
}

// Results contains all preflight check results
type Results struct {
	Checks      []CheckResult
	HasErrors   bool
	HasWarnings bool
	Version     string
}

// Options tells Run where everything lives.
type Options struct {
	ConfigPath string
	Config     *config.Config
	Version    string

	// Overridable for tests.
	IsTerminal func() bool
	Interfaces func() ([]net.Interface, error)
}

// Run executes all preflight checks
func Run(ctx context.Context, opts Options) *Results {
	if opts.IsTerminal == nil {
		opts.IsTerminal = stdoutIsTerminal
	}
	if opts.Interfaces == nil {
		opts.Interfaces = net.Interfaces
	}

	results := &Results{Version: opts.Version}
	results.add(results.VersionCheck())
	results.add(checkConfig(opts.ConfigPath))
	results.add(checkDataDir(filepath.Dir(opts.Config.Store.Path)))
	results.add(checkStore(ctx, opts.Config.Store.Path))
	results.add(checkProfile(opts.Config.Profile.Path))
	if opts.Config.Discovery.MDNS {
		results.add(checkMulticast(opts.Interfaces))
	}
	results.add(checkTerminal(opts.IsTerminal))
	return results
}

func (r *Results) add(c CheckResult) {
	r.Checks = append(r.Checks, c)
	switch c.Status {
	case StatusError:
		r.HasErrors = true
	case StatusWarning:
		r.HasWarnings = true
	}
}

func checkConfig(path string) CheckResult {
	result := CheckResult{Name: "Config", Path: path}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		result.Status = StatusWarning
		result.Message = "Not found - using defaults"
		return result
	}
	if _, err := config.Load(path); err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}
	result.Status = StatusOK
	result.Message = "OK"
	return result
}

func checkDataDir(dir string) CheckResult {
	result := CheckResult{Name: "Data directory", Path: dir}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		result.Status = StatusError
		result.Message = fmt.Sprintf("Cannot create: %v", err)
		return result
	}
	f, err := os.CreateTemp(dir, ".preflight-*")
	if err != nil {
		result.Status = StatusError
		result.Message = "Not writable"
		return result
	}
	f.Close()
	os.Remove(f.Name())

	result.Status = StatusOK
	result.Message = "Writable"
	return result
}

func checkStore(ctx context.Context, path string) CheckResult {
	result := CheckResult{Name: "Bookmark store", Path: path}

	repo, err := bookmark.OpenSQLite(path)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}
	defer repo.Close()

	list, err := repo.List(ctx)
	if err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}
	result.Status = StatusOK
	result.Message = fmt.Sprintf("%d bookmarks", len(list))
	return result
}

func checkProfile(path string) CheckResult {
	result := CheckResult{Name: "Profile", Path: path}

	p, err := profile.NewStore(path).Load()
	switch {
	case errors.Is(err, profile.ErrNoProfile):
		result.Status = StatusWarning
		result.Message = "Not created - run: lazyedge profile create <username>"
	case err != nil:
		result.Status = StatusError
		result.Message = err.Error()
	default:
		result.Status = StatusOK
		result.Message = p.Username
	}
	return result
}

func checkMulticast(interfaces func() ([]net.Interface, error)) CheckResult {
	result := CheckResult{Name: "Multicast"}

	ifaces, err := interfaces()
	if err != nil {
		result.Status = StatusWarning
		result.Message = fmt.Sprintf("Cannot list interfaces: %v", err)
		return result
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if iface.Flags&net.FlagMulticast != 0 {
			result.Status = StatusOK
			result.Message = "OK"
			result.Path = iface.Name
			return result
		}
	}
	result.Status = StatusWarning
	result.Message = "No multicast interface - local discovery disabled"
	return result
}

func checkTerminal(isTerminal func() bool) CheckResult {
	result := CheckResult{Name: "Terminal"}
	if isTerminal() {
		result.Status = StatusOK
		result.Message = "Interactive"
		return result
	}
	result.Status = StatusWarning
	result.Message = "Not a TTY - the dashboard needs an interactive terminal"
	return result
}

func stdoutIsTerminal() bool {
	fd := os.Stdout.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Summary returns a short summary of the results
func (r *Results) Summary() string {
	ok := 0
	warn := 0
	fail := 0

	for _, c := range r.Checks {
		switch c.Status {
		case StatusOK:
			ok++
		case StatusWarning:
			warn++
		case StatusError:
			fail++
		}
	}

	if fail > 0 {
		return fmt.Sprintf("%d errors, %d warnings", fail, warn)
	}
	if warn > 0 {
		return fmt.Sprintf("%d warnings", warn)
	}
	return fmt.Sprintf("%d checks passed", ok)
}

// VersionCheck returns a CheckResult for the current version
func (r *Results) VersionCheck() CheckResult {
	result := CheckResult{
		Name:   "lazyedge",
		Status: StatusOK,
	}
	if r.Version == "" || r.Version == "dev" {
		result.Message = "dev (development build)"
		return result
	}
	result.Message = "v" + r.Version
	return result
}
