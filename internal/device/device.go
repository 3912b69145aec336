package device

import "github.com/icarus-itcs/lazyedge/internal/bookmark"

// Device is one overview row: a bookmark plus the status found by the
// last refresh. Paired is only meaningful when Online is true.
type Device struct {
	Bookmark bookmark.Bookmark
	Online   bool
	Paired   bool
}

// ID returns the bookmark ID.
func (d Device) ID() string { return d.Bookmark.ID }

// Name returns the display name.
func (d Device) Name() string { return d.Bookmark.DisplayName() }

// Caption describes the row state.
func (d Device) Caption() string {
	switch {
	case !d.Online:
		return "offline"
	case d.Paired:
		return "online, paired as " + d.Bookmark.Role
	default:
		return "online, not paired"
	}
}

// String returns a display string for the device
func (d Device) String() string {
	return d.Name() + " (" + d.Caption() + ")"
}

// Action is what selecting a row leads to.
type Action int

const (
	ActionNone Action = iota
	ActionPairing
	ActionDetail
)

func (a Action) String() string {
	switch a {
	case ActionPairing:
		return "pairing"
	case ActionDetail:
		return "detail"
	}
	return "none"
}

// Route maps a row's (Online, Paired) state to its navigation action.
func Route(d Device) Action {
	switch {
	case !d.Online:
		return ActionNone
	case d.Paired:
		return ActionDetail
	default:
		return ActionPairing
	}
}
