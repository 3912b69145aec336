// Package discovery finds devices on the local network over mDNS/DNS-SD.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
	"github.com/icarus-itcs/lazyedge/internal/config"
)

const (
	mdnsDomain         = "local."
	defaultService     = "_lazyedge._tcp"
	defaultScanTimeout = 3 * time.Second
)

// Service is a device advertised on the local network.
type Service struct {
	Instance  string
	ProductID string
	DeviceID  string
	Address   string
	Text      map[string]string
}

// Key returns the device identity of the service.
func (s Service) Key() string {
	return bookmark.Key(s.ProductID, s.DeviceID)
}

// Bookmark converts the service into a new bookmark.
func (s Service) Bookmark() bookmark.Bookmark {
	name := s.Text["name"]
	if name == "" {
		name = s.Instance
	}
	return bookmark.Bookmark{
		ProductID: s.ProductID,
		DeviceID:  s.DeviceID,
		Name:      name,
		Address:   s.Address,
	}
}

// Scanner lists devices currently visible on the network.
type Scanner interface {
	Scan(ctx context.Context) ([]Service, error)
}

// MDNS browses and advertises the device service type.
type MDNS struct {
	service string
	timeout time.Duration
	logger  *slog.Logger
}

// NewMDNS creates an mDNS scanner from config.
func NewMDNS(cfg config.DiscoveryConfig, logger *slog.Logger) *MDNS {
	service := cfg.Service
	if service == "" {
		service = defaultService
	}
	timeout := cfg.ScanTimeout
	if timeout <= 0 {
		timeout = defaultScanTimeout
	}
	return &MDNS{service: service, timeout: timeout, logger: logger}
}

// Scan browses for the service type until the scan timeout elapses.
// Entries without product and device IDs are ignored.
func (d *MDNS) Scan(ctx context.Context) ([]Service, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("mdns resolver: %w", err)
	}

	entries := make(chan *zeroconf.ServiceEntry)
	var mu sync.Mutex
	found := make(map[string]Service)
	var wg sync.WaitGroup

	scanCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for entry := range entries {
			svc, ok := entryToService(entry)
			if !ok {
				continue
			}
			mu.Lock()
			found[svc.Key()] = svc
			mu.Unlock()
			d.logger.Debug("mdns discovered device", "device", svc.Key(), "address", svc.Address)
		}
	}()

	if err := resolver.Browse(scanCtx, d.service, mdnsDomain, entries); err != nil {
		cancel()
		wg.Wait()
		return nil, fmt.Errorf("mdns browse: %w", err)
	}

	<-scanCtx.Done()
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	out := make([]Service, 0, len(found))
	for _, s := range found {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// Advertise registers a device on the local network and blocks until
// ctx is cancelled.
func (d *MDNS) Advertise(ctx context.Context, instance string, port int, productID, deviceID string, extra map[string]string) error {
	txt := []string{"product_id=" + productID, "device_id=" + deviceID}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		txt = append(txt, k+"="+extra[k])
	}

	server, err := zeroconf.Register(instance, d.service, mdnsDomain, port, txt, nil)
	if err != nil {
		return fmt.Errorf("mdns register: %w", err)
	}

	d.logger.Info("mdns advertising", "instance", instance, "port", port, "device", bookmark.Key(productID, deviceID))
	<-ctx.Done()
	server.Shutdown()
	return nil
}

func entryToService(entry *zeroconf.ServiceEntry) (Service, bool) {
	text := parseTXTRecords(entry.Text)
	if text["product_id"] == "" || text["device_id"] == "" {
		return Service{}, false
	}

	var address string
	if len(entry.AddrIPv4) > 0 {
		address = fmt.Sprintf("%s:%d", entry.AddrIPv4[0], entry.Port)
	} else if len(entry.AddrIPv6) > 0 {
		address = fmt.Sprintf("[%s]:%d", entry.AddrIPv6[0], entry.Port)
	}

	return Service{
		Instance:  entry.ServiceRecord.Instance,
		ProductID: text["product_id"],
		DeviceID:  text["device_id"],
		Address:   address,
		Text:      text,
	}, true
}

func parseTXTRecords(txt []string) map[string]string {
	m := make(map[string]string, len(txt))
	for _, t := range txt {
		parts := strings.SplitN(t, "=", 2)
		if len(parts) == 2 {
			m[parts[0]] = parts[1]
		}
	}
	return m
}
