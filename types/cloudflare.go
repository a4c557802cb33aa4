package types

// CloudflareConfig holds configuration for Cloudflare integration
type CloudflareConfig struct {
	Enabled       bool   `json:"enabled" yaml:"enabled"`             // Whether Cloudflare integration is enabled
	APIToken      string `json:"apiToken" yaml:"apiToken"`           // Cloudflare API token for authentication
	ZoneID        string `json:"zoneId" yaml:"zoneId"`               // Cloudflare Zone ID
	BaseDomain    string `json:"baseDomain" yaml:"baseDomain"`       // Base domain for route subdomains, e.g. "example.com"
	ServerAddress string `json:"serverAddress" yaml:"serverAddress"` // Public IP or hostname the records point at
	Proxied       bool   `json:"proxied" yaml:"proxied"`             // Whether records are proxied through Cloudflare
}

// CloudflareDNSRecord represents a DNS record created for a route
type CloudflareDNSRecord struct {
	RecordID string `json:"record_id"` // Cloudflare Record ID
	Name     string `json:"name"`      // The full domain name, e.g. "myapp.example.com"
	Content  string `json:"content"`   // IP address or CNAME value
	Type     string `json:"type"`      // "A" or "CNAME"
	Proxied  bool   `json:"proxied"`   // Whether the record is proxied through Cloudflare
}

// RouteDomain ties a route to its public domain
type RouteDomain struct {
	Route     string              `json:"route"`
	Domain    string              `json:"domain"`
	DNSRecord CloudflareDNSRecord `json:"dns_record,omitempty"`
}
