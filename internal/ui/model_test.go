package ui

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/device"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/profile"
)

type fakeRefresher struct {
	rows []device.Device
}

func (f *fakeRefresher) RefreshAll(context.Context, string) ([]device.Device, error) {
	return f.rows, nil
}

type fakeStopper struct{ stopped int }

func (f *fakeStopper) Stop() { f.stopped++ }

var testRows = []device.Device{
	{Bookmark: bookmark.Bookmark{ID: "pr-1.d1", ProductID: "pr-1", DeviceID: "d1", Name: "Kitchen", Role: "Owner"}, Online: true, Paired: true},
	{Bookmark: bookmark.Bookmark{ID: "pr-1.d2", ProductID: "pr-1", DeviceID: "d2", Name: "Garage"}, Online: true},
	{Bookmark: bookmark.Bookmark{ID: "pr-1.d3", ProductID: "pr-1", DeviceID: "d3", Name: "Cabin"}},
}

func newTestModel(t *testing.T, withProfile bool) (Model, *fakeStopper) {
	t.Helper()
	store := profile.NewStore(filepath.Join(t.TempDir(), "profile.yaml"))
	if withProfile {
		_, err := store.Create("alice")
		require.NoError(t, err)
	}
	stopper := &fakeStopper{}
	m := NewModel(Deps{
		Refresher:     &fakeRefresher{rows: testRows},
		Stopper:       stopper,
		Repo:          bookmark.NewMemoryRepository(),
		Profiles:      store,
		Notifications: notify.NewChannel(4),
		Version:       "test",
	})
	return m, stopper
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	out, ok := next.(Model)
	require.True(t, ok)
	return out, cmd
}

func keyRunes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func loaded(t *testing.T, m Model) Model {
	t.Helper()
	m, _ = update(t, m, devicesLoadedMsg{cycle: m.cycle, devices: testRows})
	return m
}

func TestStaleCycleIsDropped(t *testing.T) {
	m, _ := newTestModel(t, true)
	require.True(t, m.loading)

	m, _ = update(t, m, devicesLoadedMsg{cycle: "stale", devices: testRows})
	assert.Empty(t, m.devices)
	assert.True(t, m.loading)

	m = loaded(t, m)
	assert.Len(t, m.devices, 3)
	assert.False(t, m.loading)
}

func TestPlaceholderWhileLoading(t *testing.T) {
	m, _ := newTestModel(t, true)
	assert.Contains(t, m.View(), "Loading devices…")

	m, _ = update(t, m, devicesLoadedMsg{cycle: m.cycle})
	assert.Contains(t, m.View(), "No devices bookmarked")
	assert.Contains(t, m.View(), actionTitle)
}

func TestEnterRoutesByDeviceState(t *testing.T) {
	m := loaded(t, func() Model { m, _ := newTestModel(t, true); return m }())
	down := tea.KeyMsg{Type: tea.KeyDown}
	enter := tea.KeyMsg{Type: tea.KeyEnter}
	esc := tea.KeyMsg{Type: tea.KeyEsc}

	// Paired device opens the detail screen.
	next, _ := update(t, m, enter)
	assert.Equal(t, ScreenDetail, next.screen)
	assert.Equal(t, "pr-1.d1", next.detail.ID())
	next, _ = update(t, next, esc)
	assert.Equal(t, ScreenOverview, next.screen)

	// Unpaired device opens pairing.
	m, _ = update(t, m, down)
	next, _ = update(t, m, enter)
	assert.Equal(t, ScreenPairing, next.screen)
	assert.Equal(t, "pr-1.d2", next.pairing.ID)

	// Offline device only shows a message.
	m, _ = update(t, m, down)
	next, _ = update(t, m, enter)
	assert.Equal(t, ScreenOverview, next.screen)
	assert.Equal(t, OfflineMessage, next.statusMessage)

	// Action row opens discovery, disabled without a scanner.
	m, _ = update(t, m, down)
	next, _ = update(t, m, enter)
	assert.Equal(t, ScreenDiscover, next.screen)
	assert.Contains(t, next.scanErr, "disabled")

	// Cursor stops at the last row.
	m, _ = update(t, m, down)
	assert.Equal(t, 3, m.cursor)
}

// runCmd executes cmd and any batched commands, collecting their messages.
func runCmd(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var out []tea.Msg
		for _, c := range batch {
			out = append(out, runCmd(c)...)
		}
		return out
	}
	return []tea.Msg{msg}
}

func TestRefreshStopsConnectionsAndStartsNewCycle(t *testing.T) {
	m, stopper := newTestModel(t, true)
	m = loaded(t, m)
	before := m.cycle

	m, cmd := update(t, m, keyRunes("R"))
	require.NotNil(t, cmd)
	assert.Equal(t, 0, stopper.stopped, "stop runs with the refresh, not in Update")
	assert.True(t, m.loading)
	assert.NotEqual(t, before, m.cycle)

	var got *devicesLoadedMsg
	for _, msg := range runCmd(cmd) {
		if dl, ok := msg.(devicesLoadedMsg); ok {
			got = &dl
		}
	}
	require.NotNil(t, got)
	assert.Equal(t, 1, stopper.stopped)
	assert.Equal(t, m.cycle, got.cycle)

	// The previous cycle's late result is ignored.
	m, _ = update(t, m, devicesLoadedMsg{cycle: before, devices: testRows[:1]})
	assert.Len(t, m.devices, 3)
	assert.True(t, m.loading)
}

type blockingStopper struct{ release chan struct{} }

func (b *blockingStopper) Stop() { <-b.release }

func TestRefreshDoesNotBlockOnSlowStop(t *testing.T) {
	m, _ := newTestModel(t, true)
	m = loaded(t, m)
	stopper := &blockingStopper{release: make(chan struct{})}
	m.deps.Stopper = stopper

	done := make(chan tea.Cmd, 1)
	go func() {
		_, cmd := m.Update(keyRunes("R"))
		done <- cmd
	}()

	var cmd tea.Cmd
	select {
	case cmd = <-done:
	case <-time.After(time.Second):
		close(stopper.release)
		t.Fatal("Update blocked on Stop")
	}
	close(stopper.release)
	assert.NotEmpty(t, runCmd(cmd))
}

func TestTruncateName(t *testing.T) {
	short := "Kitchen"
	assert.Equal(t, short, truncateName(short))

	long := strings.Repeat("a", 36) + "øøøøøø"
	got := truncateName(long)
	assert.True(t, utf8.ValidString(got))
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.LessOrEqual(t, lipgloss.Width(got), maxNameWidth)

	row := renderDeviceRow(device.Device{Bookmark: bookmark.Bookmark{ID: "x", Name: long}, Online: true}, false)
	assert.True(t, utf8.ValidString(row))
}

func TestProfileScreenUntilCreated(t *testing.T) {
	m, _ := newTestModel(t, false)
	assert.Equal(t, ScreenProfile, m.screen)
	assert.False(t, m.loading)
	assert.Contains(t, m.View(), "CREATE PROFILE")

	for _, r := range "bad name" {
		m, _ = update(t, m, keyRunes(string(r)))
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	assert.NotEmpty(t, m.profileErr)
	assert.Equal(t, ScreenProfile, m.screen)

	m, _ = update(t, m, profileCreatedMsg{p: profile.Profile{Username: "alice"}})
	assert.Equal(t, ScreenOverview, m.screen)
	assert.True(t, m.loading)
	assert.NotEmpty(t, m.cycle)
}

func TestNotificationBanner(t *testing.T) {
	m, _ := newTestModel(t, true)
	m, cmd := update(t, m, notificationMsg{n: notify.Danger("Error", "An error occurred when retrieving device information: boom")})
	assert.NotNil(t, cmd)
	require.Len(t, m.banners, 1)
	assert.Contains(t, m.View(), "boom")

	for i := 0; i < 5; i++ {
		m, _ = update(t, m, notificationMsg{n: notify.Danger("Error", fmt.Sprint(i))})
	}
	assert.Len(t, m.banners, 3)
}

func TestPairingErrorText(t *testing.T) {
	assert.Equal(t, "Device not open for pairing", pairingErrorText(&edge.DeviceError{Code: edge.CodePairingClosed}))
	assert.Equal(t, OfflineMessage, pairingErrorText(fmt.Errorf("connect: %w", edge.ErrNoChannels)))
	assert.Equal(t, "boom", pairingErrorText(errors.New("boom")))
}

func TestPairedResultRepopulates(t *testing.T) {
	m := loaded(t, func() Model { m, _ := newTestModel(t, true); return m }())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	require.Equal(t, ScreenPairing, m.screen)
	m.pairingBusy = true
	cycle := m.cycle

	// Results for another device are ignored.
	m, _ = update(t, m, pairedMsg{bookmarkID: "other", user: edge.User{Role: "Guest"}})
	assert.True(t, m.pairingBusy)

	m, _ = update(t, m, pairedMsg{bookmarkID: "pr-1.d2", user: edge.User{Username: "alice", Role: "Guest"}})
	assert.False(t, m.pairingBusy)
	assert.Equal(t, "Paired as Guest", m.pairingResult)
	assert.NotEqual(t, cycle, m.cycle)
}

func TestQuitNeedsConfirmation(t *testing.T) {
	m, _ := newTestModel(t, true)
	m, cmd := update(t, m, keyRunes("q"))
	assert.True(t, m.confirmQuit)
	require.NotNil(t, cmd)

	_, cmd = update(t, m, keyRunes("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
