package edge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
)

// Fleet runs simulated devices on loopback listeners.
type Fleet struct {
	Simulators []*Simulator
	Bookmarks  []bookmark.Bookmark

	servers []*http.Server
	logger  *slog.Logger
}

// FleetDevice describes one member of a fleet.
type FleetDevice struct {
	Name        string
	DeviceID    string
	Role        string // registers the client with this role; "-" registers it without a role
	PairingOpen bool
	Unreachable bool
	FailCode    string
}

// DemoDevices is the fleet used by --demo. It covers every row state.
var DemoDevices = []FleetDevice{
	{Name: "Living room heat pump", DeviceID: "de-livingroom", Role: "Owner"},
	{Name: "Garage heat pump", DeviceID: "de-garage", PairingOpen: true},
	{Name: "Cabin heat pump", DeviceID: "de-cabin", Unreachable: true},
	{Name: "Attic heat pump", DeviceID: "de-attic", Role: "-"},
	{Name: "Basement sensor", DeviceID: "de-basement", FailCode: CodeInternal},
}

// DemoProductID is the product ID of every demo device.
const DemoProductID = "pr-demo"

// StartFleet starts one simulator per device, registering id according
// to each device's Role.
func StartFleet(productID string, devices []FleetDevice, id Identity, logger *slog.Logger) (*Fleet, error) {
	f := &Fleet{logger: logger}
	for _, d := range devices {
		sim := NewSimulator(productID, d.DeviceID, logger.With("device", d.DeviceID))
		switch d.Role {
		case "":
		case "-":
			sim.AddUser(SimUser{Username: id.Username, ClientID: id.ClientID})
		default:
			sim.AddUser(SimUser{Username: id.Username, ClientID: id.ClientID, Role: d.Role})
		}
		sim.SetPairingOpen(d.PairingOpen, "")
		sim.SetUnreachable(d.Unreachable)
		sim.SetFailure(d.FailCode)

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("listen for %s: %w", d.DeviceID, err)
		}
		srv := &http.Server{Handler: sim.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Warn("simulator stopped", "device", d.DeviceID, "error", err)
			}
		}()

		f.servers = append(f.servers, srv)
		f.Simulators = append(f.Simulators, sim)
		f.Bookmarks = append(f.Bookmarks, bookmark.Bookmark{
			ID:        bookmark.Key(productID, d.DeviceID),
			ProductID: productID,
			DeviceID:  d.DeviceID,
			Name:      d.Name,
			Address:   ln.Addr().String(),
			CreatedAt: time.Now().UTC().Add(time.Duration(len(f.Bookmarks)) * time.Millisecond),
		})
	}
	return f, nil
}

// Close stops every simulator.
func (f *Fleet) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var errs []error
	for _, srv := range f.servers {
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
