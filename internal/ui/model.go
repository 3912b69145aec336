package ui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/device"
	"github.com/icarus-itcs/lazyedge/internal/discovery"
	"github.com/icarus-itcs/lazyedge/internal/edge"
	"github.com/icarus-itcs/lazyedge/internal/logger"
	"github.com/icarus-itcs/lazyedge/internal/notify"
	"github.com/icarus-itcs/lazyedge/internal/preflight"
	"github.com/icarus-itcs/lazyedge/internal/profile"
	"github.com/icarus-itcs/lazyedge/internal/status"
)

const (
	statusTTL = 3 * time.Second
	bannerTTL = 5 * time.Second

	maxNameWidth = 40
	// OfflineMessage is shown when an offline device is selected.
	OfflineMessage = "Device offline - please check device state."
)

// Screen is the page currently shown.
type Screen int

const (
	ScreenOverview Screen = iota
	ScreenProfile
	ScreenPairing
	ScreenDetail
	ScreenDiscover
)

// Refresher produces overview rows for a cycle.
type Refresher interface {
	RefreshAll(ctx context.Context, cycle string) ([]device.Device, error)
}

// Stopper drops cached device connections.
type Stopper interface {
	Stop()
}

// Deps are the collaborators of the dashboard. Scanner and Registry may
// be nil when local discovery is disabled; Preflight may be nil.
type Deps struct {
	Refresher     Refresher
	Stopper       Stopper
	Connector     edge.Connector
	Repo          bookmark.Repository
	Profiles      *profile.Store
	Notifications *notify.Channel
	Scanner       discovery.Scanner
	Registry      *discovery.Registry
	Preflight     func() *preflight.Results
	Logger        *slog.Logger
	Version       string
}

type banner struct {
	n  notify.Notification
	at time.Time
}

// Model is the main app state
type Model struct {
	deps Deps

	screen Screen

	// Overview
	devices []device.Device
	cursor  int
	loading bool
	cycle   string

	// Profile creation
	nameInput  textinput.Model
	profileErr string

	// Pairing
	pairing       bookmark.Bookmark
	pairingBusy   bool
	pairingResult string
	pairingErr    string

	// Detail
	detail device.Device

	// Discovery
	services       []discovery.Service
	discoverCursor int
	scanning       bool
	scanErr        string

	// Preflight
	preflightResults *preflight.Results
	showPreflight    bool

	// UI
	spinner       spinner.Model
	help          help.Model
	keys          keyMap
	width         int
	height        int
	showHelp      bool
	banners       []banner
	statusMessage string
	statusTime    time.Time

	// Quit confirmation
	confirmQuit bool
	quitTime    time.Time
}

type keyMap struct {
	Up        key.Binding
	Down      key.Binding
	Enter     key.Binding
	Back      key.Binding
	Refresh   key.Binding
	Rescan    key.Binding
	Copy      key.Binding
	Preflight key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Up:        key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:      key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Enter:     key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:      key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Refresh:   key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),
		Rescan:    key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "rescan")),
		Copy:      key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "copy device id")),
		Preflight: key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "preflight")),
		Help:      key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:      key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Enter, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.Enter, k.Back},
		{k.Refresh, k.Rescan, k.Copy},
		{k.Preflight, k.Help, k.Quit},
	}
}

// NewModel creates the dashboard. The profile screen is shown first when
// no local profile exists.
func NewModel(deps Deps) Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(edgeTeal)

	ti := textinput.New()
	ti.Placeholder = "username"
	ti.CharLimit = 32
	ti.Width = 32

	m := Model{
		deps:      deps,
		spinner:   s,
		help:      help.New(),
		keys:      defaultKeyMap(),
		nameInput: ti,
	}
	if m.deps.Logger == nil {
		m.deps.Logger = logger.Discard()
	}
	if deps.Profiles != nil && !deps.Profiles.Exists() {
		m.screen = ScreenProfile
		m.nameInput.Focus()
	} else {
		// Init has a value receiver, so the first cycle is opened here.
		m.cycle = status.NewCycleID()
		m.loading = true
	}
	if deps.Preflight != nil {
		m.preflightResults = deps.Preflight()
	}
	return m
}

// Messages
type devicesLoadedMsg struct {
	cycle   string
	devices []device.Device
	err     error
}
type notificationMsg struct{ n notify.Notification }
type profileCreatedMsg struct{ p profile.Profile }
type profileErrMsg struct{ err error }
type pairedMsg struct {
	bookmarkID string
	user       edge.User
	err        error
}
type scanDoneMsg struct {
	services []discovery.Service
	err      error
}
type bookmarkSavedMsg struct {
	b   bookmark.Bookmark
	err error
}
type expireMsg struct{}

// Commands
// refreshDevices stops cached connections first when stopper is set.
// Stop may wait on device I/O, so it runs here and not in Update.
func refreshDevices(r Refresher, stopper Stopper, cycle string) tea.Cmd {
	return func() tea.Msg {
		if stopper != nil {
			stopper.Stop()
		}
		rows, err := r.RefreshAll(context.Background(), cycle)
		return devicesLoadedMsg{cycle: cycle, devices: rows, err: err}
	}
}

func waitForNotification(ch <-chan notify.Notification) tea.Cmd {
	return func() tea.Msg {
		n, ok := <-ch
		if !ok {
			return nil
		}
		return notificationMsg{n: n}
	}
}

func waitForProfile(ev *profile.Event) tea.Cmd {
	return func() tea.Msg {
		return profileCreatedMsg{p: ev.Profile()}
	}
}

func createProfile(store *profile.Store, username string) tea.Cmd {
	return func() tea.Msg {
		// Success is delivered through the store's Created event.
		if _, err := store.Create(username); err != nil {
			return profileErrMsg{err: err}
		}
		return nil
	}
}

func pairDevice(c edge.Connector, repo bookmark.Repository, b bookmark.Bookmark, username string) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		conn, err := c.Connect(ctx, b)
		if err != nil {
			return pairedMsg{bookmarkID: b.ID, err: err}
		}
		u, err := conn.PairLocalOpen(ctx, username)
		if err != nil {
			return pairedMsg{bookmarkID: b.ID, err: err}
		}
		if u.Role != "" {
			if err := repo.SetRole(ctx, b.ID, u.Role); err != nil {
				return pairedMsg{bookmarkID: b.ID, user: u, err: err}
			}
		}
		return pairedMsg{bookmarkID: b.ID, user: u}
	}
}

func scanNetwork(scanner discovery.Scanner, registry *discovery.Registry) tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()
		var (
			services []discovery.Service
			err      error
		)
		if registry != nil {
			services, err = registry.Scan(ctx, scanner)
		} else {
			services, err = scanner.Scan(ctx)
		}
		return scanDoneMsg{services: services, err: err}
	}
}

func saveBookmark(repo bookmark.Repository, b bookmark.Bookmark) tea.Cmd {
	return func() tea.Msg {
		saved, err := repo.Save(context.Background(), b)
		return bookmarkSavedMsg{b: saved, err: err}
	}
}

func expireAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg { return expireMsg{} })
}

// setTerminalTitle sets the terminal tab/window title
func setTerminalTitle(title string) tea.Cmd {
	return tea.SetWindowTitle(title)
}

func (m *Model) getTerminalTitle() string {
	if m.loading {
		return "◆ lazyedge - loading..."
	}
	return fmt.Sprintf("◆ lazyedge - %d devices", len(m.devices))
}

// Init starts the app
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{m.spinner.Tick}
	if m.deps.Notifications != nil {
		cmds = append(cmds, waitForNotification(m.deps.Notifications.C()))
	}
	if m.screen == ScreenProfile {
		cmds = append(cmds, waitForProfile(m.deps.Profiles.Created()), textinput.Blink)
	} else {
		cmds = append(cmds, refreshDevices(m.deps.Refresher, nil, m.cycle), setTerminalTitle(m.getTerminalTitle()))
	}
	return tea.Batch(cmds...)
}

// populate starts a refresh cycle. Results from older cycles are dropped
// when they arrive.
func (m *Model) populate() tea.Cmd {
	return m.startCycle(nil)
}

// reload drops cached connections, then populates.
func (m *Model) reload() tea.Cmd {
	return m.startCycle(m.deps.Stopper)
}

func (m *Model) startCycle(stopper Stopper) tea.Cmd {
	m.cycle = status.NewCycleID()
	m.loading = true
	return tea.Batch(
		refreshDevices(m.deps.Refresher, stopper, m.cycle),
		m.spinner.Tick,
		setTerminalTitle(m.getTerminalTitle()),
	)
}

func (m *Model) setStatus(msg string) tea.Cmd {
	m.statusMessage = msg
	m.statusTime = time.Now()
	return expireAfter(statusTTL)
}

func (m *Model) rows() []Row {
	return Rows(m.devices)
}

func (m *Model) selectedRow() Row {
	rows := m.rows()
	if m.cursor >= len(rows) {
		m.cursor = len(rows) - 1
	}
	return rows[m.cursor]
}

// Update handles all messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		switch m.screen {
		case ScreenProfile:
			return m.handleProfileInput(msg)
		case ScreenPairing:
			return m.handlePairingInput(msg)
		case ScreenDetail:
			return m.handleDetailInput(msg)
		case ScreenDiscover:
			return m.handleDiscoverInput(msg)
		}
		return m.handleOverviewInput(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case spinner.TickMsg:
		if m.loading || m.scanning || m.pairingBusy {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case devicesLoadedMsg:
		if msg.cycle != m.cycle {
			m.deps.Logger.Debug("dropping stale refresh", "cycle", msg.cycle, "current", m.cycle)
			return m, nil
		}
		m.loading = false
		if msg.err != nil {
			m.addBanner(notify.Danger("Error", msg.err.Error()))
			cmds = append(cmds, expireAfter(bannerTTL))
		} else {
			m.devices = msg.devices
		}
		if n := len(m.rows()); m.cursor >= n {
			m.cursor = n - 1
		}
		cmds = append(cmds, setTerminalTitle(m.getTerminalTitle()))

	case notificationMsg:
		m.addBanner(msg.n)
		cmds = append(cmds, waitForNotification(m.deps.Notifications.C()), expireAfter(bannerTTL))

	case profileCreatedMsg:
		m.deps.Logger.Info("profile created", "username", msg.p.Username)
		m.screen = ScreenOverview
		m.nameInput.Blur()
		cmds = append(cmds, m.populate(), m.setStatus("Welcome, "+msg.p.Username))

	case profileErrMsg:
		m.profileErr = msg.err.Error()

	case pairedMsg:
		if msg.bookmarkID != m.pairing.ID {
			return m, nil
		}
		m.pairingBusy = false
		if msg.err != nil {
			m.pairingErr = pairingErrorText(msg.err)
			m.deps.Logger.Warn("pairing failed", "bookmark", msg.bookmarkID, "error", msg.err)
			return m, nil
		}
		m.pairingErr = ""
		m.pairingResult = "Paired as " + msg.user.Role
		cmds = append(cmds, m.populate())

	case scanDoneMsg:
		m.scanning = false
		if msg.err != nil {
			m.scanErr = msg.err.Error()
		} else {
			m.scanErr = ""
			m.services = msg.services
			if m.discoverCursor >= len(m.services) {
				m.discoverCursor = 0
			}
		}

	case bookmarkSavedMsg:
		if msg.err != nil {
			cmds = append(cmds, m.setStatus("Bookmark failed: "+msg.err.Error()))
			break
		}
		cmds = append(cmds, m.setStatus("Bookmarked "+msg.b.DisplayName()), m.populate())

	case expireMsg:
		m.expireBanners()
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) addBanner(n notify.Notification) {
	m.banners = append(m.banners, banner{n: n, at: time.Now()})
	if len(m.banners) > 3 {
		m.banners = m.banners[len(m.banners)-3:]
	}
}

func (m *Model) expireBanners() {
	kept := m.banners[:0]
	for _, b := range m.banners {
		if time.Since(b.at) < bannerTTL {
			kept = append(kept, b)
		}
	}
	m.banners = kept
}

func pairingErrorText(err error) string {
	switch {
	case errors.Is(err, edge.ErrPairingClosed):
		return "Device not open for pairing"
	case errors.Is(err, edge.ErrNoChannels):
		return OfflineMessage
	}
	return err.Error()
}

func (m Model) handleOverviewInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if !key.Matches(msg, m.keys.Quit) {
		m.confirmQuit = false
	}

	if m.showPreflight {
		if key.Matches(msg, m.keys.Preflight) || key.Matches(msg, m.keys.Back) {
			m.showPreflight = false
		}
		return m, nil
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		if m.confirmQuit && time.Since(m.quitTime) < 3*time.Second {
			return m, tea.Quit
		}
		m.confirmQuit = true
		m.quitTime = time.Now()
		return m, m.setStatus("Press q again to quit")

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Preflight):
		if m.deps.Preflight != nil {
			m.preflightResults = m.deps.Preflight()
			m.showPreflight = true
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
		return m, nil

	case key.Matches(msg, m.keys.Down):
		if m.cursor < len(m.rows())-1 {
			m.cursor++
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.reload()

	case key.Matches(msg, m.keys.Enter):
		return m.selectRow(m.selectedRow())
	}
	return m, nil
}

// selectRow dispatches a selection on the overview.
func (m Model) selectRow(row Row) (tea.Model, tea.Cmd) {
	switch row.Kind {
	case RowPlaceholder:
		return m, nil

	case RowAction:
		return m.openDiscover()

	case RowDevice:
		switch device.Route(row.Device) {
		case device.ActionNone:
			return m, m.setStatus(OfflineMessage)
		case device.ActionPairing:
			m.screen = ScreenPairing
			m.pairing = row.Device.Bookmark
			m.pairingBusy = false
			m.pairingResult = ""
			m.pairingErr = ""
			return m, nil
		case device.ActionDetail:
			m.screen = ScreenDetail
			m.detail = row.Device
			return m, nil
		}
	}
	return m, nil
}

func (m Model) openDiscover() (tea.Model, tea.Cmd) {
	m.screen = ScreenDiscover
	m.discoverCursor = 0
	if m.deps.Scanner == nil {
		m.scanErr = "Local discovery is disabled (discovery.mdns: false)"
		return m, nil
	}
	m.scanning = true
	m.scanErr = ""
	return m, tea.Batch(scanNetwork(m.deps.Scanner, m.deps.Registry), m.spinner.Tick)
}

func (m Model) handleProfileInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyEnter {
		name := strings.TrimSpace(m.nameInput.Value())
		if err := profile.ValidateUsername(name); err != nil {
			m.profileErr = err.Error()
			return m, nil
		}
		m.profileErr = ""
		return m, createProfile(m.deps.Profiles, name)
	}
	if msg.Type == tea.KeyEsc {
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.nameInput, cmd = m.nameInput.Update(msg)
	return m, cmd
}

func (m Model) handlePairingInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.screen = ScreenOverview
		return m, nil
	case key.Matches(msg, m.keys.Enter):
		if m.pairingBusy {
			return m, nil
		}
		if m.pairingResult != "" {
			m.screen = ScreenOverview
			return m, nil
		}
		username := m.deps.Profiles.Identity().Username
		m.pairingBusy = true
		m.pairingErr = ""
		return m, tea.Batch(pairDevice(m.deps.Connector, m.deps.Repo, m.pairing, username), m.spinner.Tick)
	case key.Matches(msg, m.keys.Quit) && msg.String() == "q":
		m.screen = ScreenOverview
	}
	return m, nil
}

func (m Model) handleDetailInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Quit):
		m.screen = ScreenOverview
		return m, nil
	case key.Matches(msg, m.keys.Copy):
		if err := clipboard.WriteAll(m.detail.Bookmark.DeviceID); err != nil {
			return m, m.setStatus("Copy failed: " + err.Error())
		}
		return m, m.setStatus("Copied device ID to clipboard")
	}
	return m, nil
}

func (m Model) handleDiscoverInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back), key.Matches(msg, m.keys.Quit):
		m.screen = ScreenOverview
		return m, nil
	case key.Matches(msg, m.keys.Up):
		if m.discoverCursor > 0 {
			m.discoverCursor--
		}
	case key.Matches(msg, m.keys.Down):
		if m.discoverCursor < len(m.services)-1 {
			m.discoverCursor++
		}
	case key.Matches(msg, m.keys.Rescan):
		if m.deps.Scanner != nil && !m.scanning {
			m.scanning = true
			return m, tea.Batch(scanNetwork(m.deps.Scanner, m.deps.Registry), m.spinner.Tick)
		}
	case key.Matches(msg, m.keys.Enter):
		if len(m.services) == 0 {
			return m, nil
		}
		svc := m.services[m.discoverCursor]
		if m.isBookmarked(svc.Key()) {
			return m, m.setStatus(svc.Bookmark().DisplayName() + " is already bookmarked")
		}
		m.screen = ScreenOverview
		return m, saveBookmark(m.deps.Repo, svc.Bookmark())
	}
	return m, nil
}

func (m *Model) isBookmarked(k string) bool {
	for _, d := range m.devices {
		if d.Bookmark.Key() == k {
			return true
		}
	}
	return false
}

// View renders the current screen
func (m Model) View() string {
	if m.showHelp {
		return m.help.View(m.keys)
	}
	if m.showPreflight && m.preflightResults != nil {
		return m.renderPreflight()
	}

	var body string
	switch m.screen {
	case ScreenProfile:
		body = m.renderProfile()
	case ScreenPairing:
		body = m.renderPairing()
	case ScreenDetail:
		body = m.renderDetail()
	case ScreenDiscover:
		body = m.renderDiscover()
	default:
		body = m.renderOverview()
	}

	parts := []string{"", m.renderHeader()}
	if b := m.renderBanners(); b != "" {
		parts = append(parts, b)
	}
	parts = append(parts, "", body, m.renderHelp())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m *Model) paneWidth() int {
	w := m.width - 4
	if w < 44 {
		w = 44
	}
	return w
}

func (m *Model) renderHeader() string {
	logo := "  " + LogoCompact()

	var version string
	if m.deps.Version != "" {
		version = "  " + versionStyle.Render(m.deps.Version)
	}

	var state string
	if m.loading {
		state = m.spinner.View() + " refreshing..."
	} else {
		state = mutedStyle.Render(status.Summarize(m.devices).String())
	}

	var preflightIndicator string
	if m.preflightResults != nil {
		if m.preflightResults.HasErrors {
			preflightIndicator = "  " + errorStyle.Render("⚠ preflight errors")
		} else if m.preflightResults.HasWarnings {
			preflightIndicator = "  " + warnStyle.Render("⚠ preflight warnings")
		}
	}

	// Status message (show for 3 seconds)
	var statusMsg string
	if m.statusMessage != "" && time.Since(m.statusTime) < statusTTL {
		statusMsg = "  " + successStyle.Render(m.statusMessage)
	}

	return fmt.Sprintf("%s%s  %s%s%s", logo, version, state, preflightIndicator, statusMsg)
}

func (m *Model) renderBanners() string {
	var lines []string
	for _, b := range m.banners {
		if time.Since(b.at) >= bannerTTL {
			continue
		}
		style := mutedStyle
		icon := "•"
		switch b.n.Style {
		case notify.StyleDanger:
			style, icon = errorStyle, "✗"
		case notify.StyleWarning:
			style, icon = warnStyle, "!"
		case notify.StyleSuccess:
			style, icon = successStyle, "✓"
		}
		lines = append(lines, "  "+style.Render(fmt.Sprintf("%s %s: %s", icon, b.n.Title, b.n.Message)))
	}
	return strings.Join(lines, "\n")
}

func (m *Model) renderOverview() string {
	title := titleStyle.Render("DEVICES")
	width := m.paneWidth() - 6

	var items []string
	for i, row := range m.rows() {
		selected := i == m.cursor
		switch row.Kind {
		case RowPlaceholder:
			items = append(items, m.renderPlaceholder(selected))
		case RowDevice:
			items = append(items, renderDeviceRow(row.Device, selected))
		case RowAction:
			items = append(items, renderActionRow(selected, width))
		}
	}

	inner := lipgloss.JoinVertical(lipgloss.Left, append([]string{title, ""}, items...)...)
	return paneStyle.Width(m.paneWidth()).Render(inner)
}

func (m *Model) renderPlaceholder(selected bool) string {
	text := PlaceholderText(m.loading)
	if m.loading {
		text = m.spinner.View() + " " + text
	}
	prefix := "   "
	if selected {
		prefix = " " + mutedStyle.Render("▶") + " "
	}
	return lipgloss.NewStyle().Height(Lines(RowHeight(SectionDevices))).
		Render(prefix + placeholderStyle.Render(text))
}

func renderDeviceRow(d device.Device, selected bool) string {
	name := truncateName(d.Name())

	prefix := "   "
	nameStyled := nameStyle.Render(name)
	if selected {
		prefix = " " + lipgloss.NewStyle().Foreground(edgeTeal).Bold(true).Render("▶") + " "
		nameStyled = selectedNameStyle.Render(name)
	}

	line1 := fmt.Sprintf("%s%s %s %s", prefix, StatusIcon(d.Online, d.Paired), StatusDot(d.Online), nameStyled)
	line2 := "       " + mutedStyle.Render(d.Caption())
	return lipgloss.NewStyle().Height(Lines(RowHeight(SectionDevices))).
		Render(lipgloss.JoinVertical(lipgloss.Left, line1, line2))
}

// truncateName shortens a device name to the row's display width.
func truncateName(name string) string {
	return ansi.Truncate(name, maxNameWidth, "...")
}

func renderActionRow(selected bool, width int) string {
	style := actionStyle
	title := nameStyle.Render("＋ " + actionTitle)
	if selected {
		style = activeActionStyle
		title = selectedNameStyle.Render("＋ " + actionTitle)
	}
	box := style.Width(width).Render(title + "\n" + mutedStyle.Render("Find devices on the local network"))
	return lipgloss.NewStyle().Height(Lines(RowHeight(SectionActions))).PaddingTop(1).Render(box)
}

func (m *Model) renderProfile() string {
	lines := []string{
		titleStyle.Render("CREATE PROFILE"),
		"",
		"No local profile exists yet. Choose the username devices will know you by.",
		"",
		"  " + m.nameInput.View(),
	}
	if m.profileErr != "" {
		lines = append(lines, "", "  "+errorStyle.Render(m.profileErr))
	}
	lines = append(lines, "", mutedStyle.Render("enter to create  •  esc to quit"))
	return paneStyle.Width(m.paneWidth()).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderPairing() string {
	username := ""
	if m.deps.Profiles != nil {
		username = m.deps.Profiles.Identity().Username
	}
	lines := []string{
		titleStyle.Render("PAIR DEVICE"),
		"",
		labelStyle.Render("Device") + nameStyle.Render(m.pairing.DisplayName()),
		labelStyle.Render("ID") + mutedStyle.Render(m.pairing.Key()),
		labelStyle.Render("Username") + nameStyle.Render(username),
		"",
		"You are not paired with this device. Pairing uses the device's open",
		"local pairing mode and must be enabled on the device.",
		"",
	}
	switch {
	case m.pairingBusy:
		lines = append(lines, m.spinner.View()+" pairing...")
	case m.pairingResult != "":
		lines = append(lines, successStyle.Render("✓ "+m.pairingResult), "", mutedStyle.Render("enter to return"))
	case m.pairingErr != "":
		lines = append(lines, errorStyle.Render("✗ "+m.pairingErr), "", mutedStyle.Render("enter to retry  •  esc back"))
	default:
		lines = append(lines, mutedStyle.Render("enter to pair  •  esc back"))
	}
	return paneStyle.Width(m.paneWidth()).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderDetail() string {
	b := m.detail.Bookmark
	address := b.Address
	if address == "" {
		address = "-"
	}
	local := "-"
	if m.deps.Registry != nil {
		if addr, ok := m.deps.Registry.Lookup(b.ProductID, b.DeviceID); ok {
			local = addr
		}
	}
	lines := []string{
		titleStyle.Render(strings.ToUpper(b.DisplayName())),
		"",
		labelStyle.Render("Status") + StatusDot(m.detail.Online) + " " + nameStyle.Render(m.detail.Caption()),
		labelStyle.Render("Product ID") + nameStyle.Render(b.ProductID),
		labelStyle.Render("Device ID") + nameStyle.Render(b.DeviceID),
		labelStyle.Render("Role") + nameStyle.Render(b.Role),
		labelStyle.Render("Address") + nameStyle.Render(address),
		labelStyle.Render("Local") + nameStyle.Render(local),
		labelStyle.Render("Bookmarked") + mutedStyle.Render(b.CreatedAt.Local().Format("2006-01-02 15:04")),
		"",
		mutedStyle.Render("c copy device id  •  esc back"),
	}
	return paneStyle.Width(m.paneWidth()).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderDiscover() string {
	lines := []string{titleStyle.Render("DISCOVER DEVICES"), ""}

	switch {
	case m.scanning:
		lines = append(lines, m.spinner.View()+" scanning local network...")
	case m.scanErr != "":
		lines = append(lines, errorStyle.Render(m.scanErr))
	case len(m.services) == 0:
		lines = append(lines, placeholderStyle.Render("No devices found"))
	}

	if !m.scanning {
		for i, svc := range m.services {
			prefix := "   "
			name := nameStyle.Render(svc.Bookmark().DisplayName())
			if i == m.discoverCursor {
				prefix = " " + lipgloss.NewStyle().Foreground(edgeTeal).Bold(true).Render("▶") + " "
				name = selectedNameStyle.Render(svc.Bookmark().DisplayName())
			}
			tag := ""
			if m.isBookmarked(svc.Key()) {
				tag = "  " + successStyle.Render("bookmarked")
			}
			lines = append(lines, fmt.Sprintf("%s%s  %s  %s%s", prefix, name, mutedStyle.Render(svc.Key()), mutedStyle.Render(svc.Address), tag))
		}
	}

	lines = append(lines, "", mutedStyle.Render("enter bookmark  •  r rescan  •  esc back"))
	return paneStyle.Width(m.paneWidth()).Render(strings.Join(lines, "\n"))
}

func (m *Model) renderHelp() string {
	keys := []string{
		helpKeyStyle.Render("enter") + " select",
		helpKeyStyle.Render("R") + " refresh",
		helpKeyStyle.Render("p") + " preflight",
		helpKeyStyle.Render("?") + " help",
		helpKeyStyle.Render("q") + " quit",
	}
	return helpStyle.Render("  " + strings.Join(keys, "  "))
}

func (m *Model) renderPreflight() string {
	title := lipgloss.NewStyle().
		Foreground(edgeTeal).
		Bold(true).
		MarginBottom(1).
		Render("  ◆ Preflight Checks")

	var lines []string
	lines = append(lines, "")
	lines = append(lines, title)
	lines = append(lines, "")

	okIcon := successStyle.Render("✓")
	warnIcon := warnStyle.Render("!")
	errIcon := errorStyle.Render("✗")

	nameCol := lipgloss.NewStyle().Width(20)

	for _, check := range m.preflightResults.Checks {
		var icon string
		var msgStyle lipgloss.Style

		switch check.Status {
		case preflight.StatusOK:
			icon = okIcon
			msgStyle = successStyle
		case preflight.StatusWarning:
			icon = warnIcon
			msgStyle = warnStyle
		case preflight.StatusError:
			icon = errIcon
			msgStyle = errorStyle
		}

		line := fmt.Sprintf("  %s %s %s", icon, nameCol.Render(check.Name), msgStyle.Render(check.Message))
		if check.Path != "" && check.Status == preflight.StatusOK {
			line += "  " + mutedStyle.Render(check.Path)
		}
		lines = append(lines, line)
	}

	lines = append(lines, "", "")
	summary := m.preflightResults.Summary()
	switch {
	case m.preflightResults.HasErrors:
		lines = append(lines, "  "+errorStyle.Render("⚠ "+summary))
	case m.preflightResults.HasWarnings:
		lines = append(lines, "  "+warnStyle.Render("⚠ "+summary))
	default:
		lines = append(lines, "  "+successStyle.Render("✓ "+summary))
	}

	lines = append(lines, "", "")
	lines = append(lines, helpStyle.Render("  Press "+helpKeyStyle.Render("p")+" to close"))

	return strings.Join(lines, "\n")
}
