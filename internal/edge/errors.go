package edge

import (
	"errors"
	"fmt"
)

var (
	// ErrNoChannels means none of the device's channels could be reached.
	ErrNoChannels = errors.New("no channels available")
	// ErrUserDoesNotExist means the device has no user for this client.
	ErrUserDoesNotExist = errors.New("user does not exist")
	// ErrPairingClosed means the device does not accept open local pairing.
	ErrPairingClosed = errors.New("device not open for pairing")
	// ErrHandshake means a socket was established but the device rejected or broke the hello exchange.
	ErrHandshake = errors.New("handshake failed")
	// ErrClosed is returned by calls on a session that was closed.
	ErrClosed = errors.New("connection closed")
)

// DeviceError is an error reply sent by the device.
type DeviceError struct {
	Code    string
	Message string
}

func (e *DeviceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("device error %s: %s", e.Code, e.Message)
	}
	return "device error " + e.Code
}

// Is maps protocol error codes onto the package sentinels.
func (e *DeviceError) Is(target error) bool {
	switch e.Code {
	case CodeUserDoesNotExist:
		return target == ErrUserDoesNotExist
	case CodePairingClosed:
		return target == ErrPairingClosed
	case CodeWrongDevice:
		return target == ErrHandshake
	}
	return false
}
