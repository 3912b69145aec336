// Package notify carries transient, user-visible messages from background
// work to whatever surface is showing them.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Style is the severity of a notification.
type Style int

const (
	StyleInfo Style = iota
	StyleSuccess
	StyleWarning
	StyleDanger
)

func (s Style) String() string {
	switch s {
	case StyleSuccess:
		return "success"
	case StyleWarning:
		return "warning"
	case StyleDanger:
		return "danger"
	}
	return "info"
}

// Notification is a transient banner.
type Notification struct {
	Style   Style
	Title   string
	Message string
	Time    time.Time
}

// Danger builds an error banner.
func Danger(title, message string) Notification {
	return Notification{Style: StyleDanger, Title: title, Message: message, Time: time.Now()}
}

// Notifier displays notifications. Implementations must be safe for
// concurrent use; Notify must not block.
type Notifier interface {
	Notify(n Notification)
}

// Func adapts a function to a Notifier.
type Func func(Notification)

func (f Func) Notify(n Notification) { f(n) }

// Channel delivers notifications on a buffered channel. When the buffer
// is full new notifications are dropped and counted.
type Channel struct {
	ch      chan Notification
	mu      sync.Mutex
	dropped int
}

// NewChannel creates a channel notifier with the given buffer size.
func NewChannel(size int) *Channel {
	if size <= 0 {
		size = 16
	}
	return &Channel{ch: make(chan Notification, size)}
}

func (c *Channel) Notify(n Notification) {
	select {
	case c.ch <- n:
	default:
		c.mu.Lock()
		c.dropped++
		c.mu.Unlock()
	}
}

// C returns the receive side.
func (c *Channel) C() <-chan Notification { return c.ch }

// Dropped returns how many notifications did not fit in the buffer.
func (c *Channel) Dropped() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dropped
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu    sync.Mutex
	items []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	r.items = append(r.items, n)
	r.mu.Unlock()
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.items))
	copy(out, r.items)
	return out
}

var (
	dangerStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F87171")).Bold(true)
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#FBBF24")).Bold(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#4ADE80")).Bold(true)
	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#73B7F6")).Bold(true)
)

// Writer prints one line per notification, styled when color is set.
type Writer struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
}

// NewWriter creates a Writer notifier.
func NewWriter(w io.Writer, color bool) *Writer {
	return &Writer{w: w, color: color}
}

func (w *Writer) Notify(n Notification) {
	w.mu.Lock()
	defer w.mu.Unlock()
	fmt.Fprintf(w.w, "%s %s\n", w.title(n), n.Message)
}

func (w *Writer) title(n Notification) string {
	title := n.Title + ":"
	if !w.color {
		return title
	}
	switch n.Style {
	case StyleDanger:
		return dangerStyle.Render(title)
	case StyleWarning:
		return warnStyle.Render(title)
	case StyleSuccess:
		return successStyle.Render(title)
	}
	return infoStyle.Render(title)
}
