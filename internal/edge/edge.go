// Package edge is the client side of the device protocol: it reaches a
// bookmarked device over its candidate channels and answers identity
// questions about the local user.
package edge

import (
	"context"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
)

// User is the device's view of the local client.
type User struct {
	Username string
	Role     string // empty when the user exists but has no role
}

// Paired reports whether the device granted the user a role.
func (u User) Paired() bool {
	return u.Role != ""
}

// Conn is an established session with one device.
type Conn interface {
	// CurrentUser asks the device who the local client is.
	// Fails with ErrUserDoesNotExist when the device does not know the client.
	CurrentUser(ctx context.Context) (User, error)
	// PairLocalOpen asks the device to add the client under username using
	// the open local pairing mode. Fails with ErrPairingClosed if not enabled.
	PairLocalOpen(ctx context.Context, username string) (User, error)
	Close() error
}

// Connector opens sessions. Connect fails with ErrNoChannels when no
// candidate channel for the bookmark could be reached.
type Connector interface {
	Connect(ctx context.Context, b bookmark.Bookmark) (Conn, error)
}

// Identity is what the client presents to a device during the handshake.
type Identity struct {
	ClientID string
	Username string
}

// IdentityFunc supplies the current identity. It is called on every
// connect so a profile created after startup is picked up.
type IdentityFunc func() Identity

// StaticIdentity returns an IdentityFunc that always yields id.
func StaticIdentity(id Identity) IdentityFunc {
	return func() Identity { return id }
}

// Resolver maps a device to an address found on the local network.
type Resolver interface {
	Lookup(productID, deviceID string) (string, bool)
}
