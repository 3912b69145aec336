package discovery

import (
	"context"
	"sort"
	"sync"

	"github.com/icarus-itcs/lazyedge/internal/bookmark"
)

// Registry remembers the last scan so connectors can prefer local
// addresses. It implements edge.Resolver.
type Registry struct {
	mu       sync.RWMutex
	services map[string]Service
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{services: make(map[string]Service)}
}

// Update replaces the known services.
func (r *Registry) Update(services []Service) {
	m := make(map[string]Service, len(services))
	for _, s := range services {
		m[s.Key()] = s
	}
	r.mu.Lock()
	r.services = m
	r.mu.Unlock()
}

// Lookup returns the local address of a device seen in the last scan.
func (r *Registry) Lookup(productID, deviceID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.services[bookmark.Key(productID, deviceID)]
	if !ok || s.Address == "" {
		return "", false
	}
	return s.Address, true
}

// Services lists the known services sorted by key.
func (r *Registry) Services() []Service {
	r.mu.RLock()
	out := make([]Service, 0, len(r.services))
	for _, s := range r.services {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Scan runs scanner and records the result.
func (r *Registry) Scan(ctx context.Context, scanner Scanner) ([]Service, error) {
	services, err := scanner.Scan(ctx)
	if err != nil {
		return nil, err
	}
	r.Update(services)
	return services, nil
}
