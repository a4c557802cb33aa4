package cloudflare

import (
	"context"
	"sort"
	"sync"

	"wakeproxy/logging"
	"wakeproxy/types"
)

// Manager keeps the public domains of configured routes in sync
type Manager struct {
	client  *Client
	enabled bool
	domains map[string]types.RouteDomain // route -> domain
	mu      sync.RWMutex
}

// NewManager creates a new domain manager. A nil client disables it.
func NewManager(client *Client) *Manager {
	return &Manager{
		client:  client,
		enabled: client != nil,
		domains: make(map[string]types.RouteDomain),
	}
}

// RegisterRouteDomain ensures a domain exists for a route
func (m *Manager) RegisterRouteDomain(ctx context.Context, route string) (*types.RouteDomain, error) {
	if !m.enabled {
		logging.Debug("CloudflareManager", "Domain registration skipped for route '%s'", route)
		return nil, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if domain, exists := m.domains[route]; exists {
		return &domain, nil
	}

	domain, err := m.client.EnsureDomain(ctx, route)
	if err != nil {
		return nil, err
	}

	m.domains[route] = *domain
	logging.Info("CloudflareManager", "Registered domain for route '%s': %s", route, domain.Domain)
	return domain, nil
}

// SyncRoutes registers a domain for every route. Failures are logged and
// skipped; the number of routes that failed is returned.
func (m *Manager) SyncRoutes(ctx context.Context, routes []types.RouteConfig) int {
	failed := 0
	for _, rc := range routes {
		if _, err := m.RegisterRouteDomain(ctx, rc.Route); err != nil {
			failed++
			logging.Error("CloudflareManager", err, "Failed to register domain for route '%s'", rc.Route)
		}
	}
	return failed
}

// GetRouteDomain retrieves domain info for a route
func (m *Manager) GetRouteDomain(route string) (types.RouteDomain, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domain, exists := m.domains[route]
	return domain, exists
}

// DeleteRouteDomain removes the domain for a route
func (m *Manager) DeleteRouteDomain(ctx context.Context, route string) error {
	if !m.enabled {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.domains[route]; !exists {
		return nil
	}

	if err := m.client.DeleteDomain(ctx, route); err != nil {
		logging.Error("CloudflareManager", err, "Failed to delete domain for route '%s'", route)
		return err
	}

	delete(m.domains, route)
	logging.Info("CloudflareManager", "Deleted domain for route '%s'", route)
	return nil
}

// GetAllDomains returns all registered domains ordered by route
func (m *Manager) GetAllDomains() []types.RouteDomain {
	m.mu.RLock()
	defer m.mu.RUnlock()

	domains := make([]types.RouteDomain, 0, len(m.domains))
	for _, domain := range m.domains {
		domains = append(domains, domain)
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].Route < domains[j].Route })
	return domains
}

// IsEnabled returns whether domain management is enabled
func (m *Manager) IsEnabled() bool {
	return m.enabled
}
