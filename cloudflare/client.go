package cloudflare

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	cf "github.com/cloudflare/cloudflare-go"

	"wakeproxy/logging"
	"wakeproxy/types"
)

// dnsAPI is the part of the Cloudflare API the client uses.
type dnsAPI interface {
	ListDNSRecords(ctx context.Context, rc *cf.ResourceContainer, params cf.ListDNSRecordsParams) ([]cf.DNSRecord, *cf.ResultInfo, error)
	CreateDNSRecord(ctx context.Context, rc *cf.ResourceContainer, params cf.CreateDNSRecordParams) (cf.DNSRecord, error)
	DeleteDNSRecord(ctx context.Context, rc *cf.ResourceContainer, recordID string) error
}

// Client handles interactions with Cloudflare API
type Client struct {
	api       dnsAPI
	config    types.CloudflareConfig
	domainMap map[string]types.RouteDomain // Maps route to domain info
	mu        sync.RWMutex
}

// NewClient creates a new Cloudflare API client. When the integration is
// disabled no API client is built and domains are only tracked locally.
func NewClient(config types.CloudflareConfig) (*Client, error) {
	c := &Client{
		config:    config,
		domainMap: make(map[string]types.RouteDomain),
	}
	if !config.Enabled {
		return c, nil
	}

	api, err := cf.NewWithAPIToken(config.APIToken)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Cloudflare API client: %w", err)
	}
	c.api = api
	return c, nil
}

// EnsureDomain makes sure <route>.<baseDomain> resolves to the server
// address, reusing a record that already exists.
func (c *Client) EnsureDomain(ctx context.Context, route string) (*types.RouteDomain, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	subdomain := sanitizeForDNS(route)
	fullDomain := fmt.Sprintf("%s.%s", subdomain, c.config.BaseDomain)

	if !c.config.Enabled {
		logging.Debug("Cloudflare", "Integration disabled. Would create domain %s for route '%s'", fullDomain, route)
		domain := types.RouteDomain{Route: route, Domain: fullDomain}
		c.domainMap[route] = domain
		return &domain, nil
	}

	recordType := recordTypeFor(c.config.ServerAddress)
	zone := cf.ZoneIdentifier(c.config.ZoneID)

	existing, _, err := c.api.ListDNSRecords(ctx, zone, cf.ListDNSRecordsParams{Name: fullDomain})
	if err != nil {
		return nil, fmt.Errorf("failed to list DNS records for %s: %w", fullDomain, err)
	}

	var record cf.DNSRecord
	if len(existing) > 0 {
		record = existing[0]
		logging.Info("Cloudflare", "Reusing DNS record for %s (ID: %s)", fullDomain, record.ID)
	} else {
		proxied := c.config.Proxied
		params := cf.CreateDNSRecordParams{
			Type:    recordType,
			Name:    subdomain,
			Content: c.config.ServerAddress,
			TTL:     1, // automatic
			Proxied: &proxied,
		}

		logging.Info("Cloudflare", "Creating %s record for %s -> %s", recordType, fullDomain, c.config.ServerAddress)
		record, err = c.api.CreateDNSRecord(ctx, zone, params)
		if err != nil {
			return nil, fmt.Errorf("failed to create DNS record for %s: %w", fullDomain, err)
		}
		logging.Info("Cloudflare", "Created DNS record for %s (ID: %s)", fullDomain, record.ID)
	}

	domain := types.RouteDomain{
		Route:  route,
		Domain: fullDomain,
		DNSRecord: types.CloudflareDNSRecord{
			RecordID: record.ID,
			Name:     fullDomain,
			Content:  record.Content,
			Type:     record.Type,
			Proxied:  record.Proxied != nil && *record.Proxied,
		},
	}
	c.domainMap[route] = domain
	return &domain, nil
}

// DeleteDomain removes a route's domain and its DNS record
func (c *Client) DeleteDomain(ctx context.Context, route string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	domainInfo, exists := c.domainMap[route]
	if !exists {
		return fmt.Errorf("no domain found for route: %s", route)
	}

	if !c.config.Enabled {
		logging.Debug("Cloudflare", "Integration disabled. Would delete domain for route '%s'", route)
		delete(c.domainMap, route)
		return nil
	}

	if domainInfo.DNSRecord.RecordID == "" {
		return fmt.Errorf("no DNS record ID found for domain: %s", domainInfo.Domain)
	}

	logging.Info("Cloudflare", "Deleting DNS record for %s (ID: %s)", domainInfo.Domain, domainInfo.DNSRecord.RecordID)

	err := c.api.DeleteDNSRecord(ctx, cf.ZoneIdentifier(c.config.ZoneID), domainInfo.DNSRecord.RecordID)
	if err != nil {
		return fmt.Errorf("failed to delete DNS record: %w", err)
	}

	delete(c.domainMap, route)
	return nil
}

// GetDomain retrieves domain information for a route
func (c *Client) GetDomain(route string) (types.RouteDomain, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	domain, exists := c.domainMap[route]
	return domain, exists
}

// recordTypeFor picks A for IPv4, AAAA for IPv6 and CNAME for host names.
func recordTypeFor(address string) string {
	ip := net.ParseIP(address)
	switch {
	case ip == nil:
		return "CNAME"
	case ip.To4() != nil:
		return "A"
	default:
		return "AAAA"
	}
}

// sanitizeForDNS removes characters that aren't valid in a DNS name
// and ensures it follows DNS naming conventions
func sanitizeForDNS(name string) string {
	// Replace spaces and special chars with hyphens
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		if r >= 'A' && r <= 'Z' {
			return r + 32
		}
		return '-'
	}, name)

	for strings.Contains(sanitized, "--") {
		sanitized = strings.ReplaceAll(sanitized, "--", "-")
	}
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		sanitized = "app"
	}
	return sanitized
}
