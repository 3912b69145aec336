// Package bookmark persists the locally known devices.
package bookmark

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a bookmark ID is unknown.
var ErrNotFound = errors.New("bookmark not found")

// Bookmark is a locally persisted reference to a remote device.
type Bookmark struct {
	ID        string
	ProductID string
	DeviceID  string
	Name      string
	Address   string // remote channel, host:port; may be empty if only reachable locally
	Role      string // cached role of the local user; empty when unknown or unpaired
	CreatedAt time.Time
}

// Key returns the product/device pair that identifies the device on the network.
func (b Bookmark) Key() string {
	return Key(b.ProductID, b.DeviceID)
}

// Key builds the network identity of a device.
func Key(productID, deviceID string) string {
	return productID + "." + deviceID
}

// DisplayName returns Name, or the device key when no name was given.
func (b Bookmark) DisplayName() string {
	if strings.TrimSpace(b.Name) != "" {
		return b.Name
	}
	return b.Key()
}

// HasRole reports whether a role is cached on the bookmark.
func (b Bookmark) HasRole() bool {
	return b.Role != ""
}

// Validate checks the fields required to reach a device.
func (b Bookmark) Validate() error {
	if b.ProductID == "" || b.DeviceID == "" {
		return fmt.Errorf("bookmark %q: product and device id are required", b.Name)
	}
	if strings.ContainsAny(b.ProductID+b.DeviceID, ". ") {
		return fmt.Errorf("bookmark %q: ids must not contain dots or spaces", b.Name)
	}
	return nil
}

// Repository is the bookmark store consumed by the status aggregator and UI.
type Repository interface {
	List(ctx context.Context) ([]Bookmark, error)
	Get(ctx context.Context, id string) (Bookmark, error)
	// Save inserts or replaces a bookmark. An empty ID is derived from Key.
	Save(ctx context.Context, b Bookmark) (Bookmark, error)
	Delete(ctx context.Context, id string) error
	SetRole(ctx context.Context, id, role string) error
}
