package preflight

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-itcs/lazyedge/internal/config"
	"github.com/icarus-itcs/lazyedge/internal/profile"
)

func testOptions(t *testing.T) Options {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Defaults()
	cfg.Store.Path = filepath.Join(dir, "data", "bookmarks.db")
	cfg.Profile.Path = filepath.Join(dir, "profile.yaml")
	return Options{
		ConfigPath: filepath.Join(dir, "config.yaml"),
		Config:     cfg,
		Version:    "1.2.0",
		IsTerminal: func() bool { return true },
		Interfaces: func() ([]net.Interface, error) {
			return []net.Interface{
				{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast},
				{Name: "eth0", Flags: net.FlagUp | net.FlagMulticast},
			}, nil
		},
	}
}

func find(t *testing.T, r *Results, name string) CheckResult {
	t.Helper()
	for _, c := range r.Checks {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("check %q not found", name)
	return CheckResult{}
}

func TestRunFreshInstall(t *testing.T) {
	r := Run(context.Background(), testOptions(t))

	assert.False(t, r.HasErrors)
	assert.True(t, r.HasWarnings)
	assert.Equal(t, StatusWarning, find(t, r, "Config").Status)
	assert.Equal(t, StatusWarning, find(t, r, "Profile").Status)
	assert.Equal(t, StatusOK, find(t, r, "Data directory").Status)
	assert.Equal(t, "0 bookmarks", find(t, r, "Bookmark store").Message)
	assert.Equal(t, "eth0", find(t, r, "Multicast").Path)
	assert.Equal(t, "v1.2.0", find(t, r, "lazyedge").Message)
	assert.Equal(t, "2 warnings", r.Summary())
}

func TestRunAllGood(t *testing.T) {
	opts := testOptions(t)
	require.NoError(t, config.Save(opts.ConfigPath, opts.Config))
	_, err := profile.NewStore(opts.Config.Profile.Path).Create("alice")
	require.NoError(t, err)

	r := Run(context.Background(), opts)
	assert.False(t, r.HasErrors)
	assert.False(t, r.HasWarnings)
	assert.Equal(t, "alice", find(t, r, "Profile").Message)
	assert.Equal(t, "7 checks passed", r.Summary())
}

func TestRunBrokenConfig(t *testing.T) {
	opts := testOptions(t)
	require.NoError(t, os.WriteFile(opts.ConfigPath, []byte("logger: [nope"), 0o600))

	r := Run(context.Background(), opts)
	assert.True(t, r.HasErrors)
	assert.Equal(t, StatusError, find(t, r, "Config").Status)
	assert.Contains(t, r.Summary(), "1 errors")
}

func TestMulticastMissing(t *testing.T) {
	c := checkMulticast(func() ([]net.Interface, error) {
		return []net.Interface{{Name: "lo", Flags: net.FlagUp | net.FlagLoopback | net.FlagMulticast}}, nil
	})
	assert.Equal(t, StatusWarning, c.Status)

	c = checkMulticast(func() ([]net.Interface, error) { return nil, errors.New("denied") })
	assert.Equal(t, StatusWarning, c.Status)
}

func TestMulticastSkippedWhenDiscoveryOff(t *testing.T) {
	opts := testOptions(t)
	opts.Config.Discovery.MDNS = false
	r := Run(context.Background(), opts)
	for _, c := range r.Checks {
		assert.NotEqual(t, "Multicast", c.Name)
	}
}

func TestTerminalCheck(t *testing.T) {
	assert.Equal(t, StatusOK, checkTerminal(func() bool { return true }).Status)
	assert.Equal(t, StatusWarning, checkTerminal(func() bool { return false }).Status)
}

func TestDataDirNotWritable(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(parent, []byte("x"), 0o600))
	c := checkDataDir(filepath.Join(parent, "data"))
	assert.Equal(t, StatusError, c.Status)
}

func TestVersionCheckDev(t *testing.T) {
	r := &Results{Version: "dev"}
	assert.Equal(t, "dev (development build)", r.VersionCheck().Message)
}
