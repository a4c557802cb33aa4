package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"

	"wakeproxy/types"
)

// EnvConfigPath names the environment variable that points at the config file.
const EnvConfigPath = "WAKEPROXY_CONFIG"

// DefaultConfigPath is used when neither a flag nor EnvConfigPath is given.
const DefaultConfigPath = "config.json"

// Port is a listen address that accepts either a number (8080) or a string
// ("8080", ":8080", "127.0.0.1:8080") in config files. It is stored as ":8080".
type Port string

// UnmarshalJSON accepts JSON numbers and strings.
func (p *Port) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*p = Port(ensurePortFormat(strconv.Itoa(n)))
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("port must be a number or string: %w", err)
	}
	*p = Port(ensurePortFormat(s))
	return nil
}

// UnmarshalYAML accepts YAML integers and strings.
func (p *Port) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return fmt.Errorf("port must be a number or string: %w", err)
	}
	*p = Port(ensurePortFormat(s))
	return nil
}

// WakeConfig tunes the wake sequence.
type WakeConfig struct {
	Cooldown       int   `json:"cooldown" yaml:"cooldown"`             // seconds
	ReadyTimeout   int   `json:"readyTimeout" yaml:"readyTimeout"`     // seconds
	ReadyInterval  int   `json:"readyInterval" yaml:"readyInterval"`   // milliseconds
	ProbeTimeout   int   `json:"probeTimeout" yaml:"probeTimeout"`     // milliseconds per attempt
	CommandTimeout int   `json:"commandTimeout" yaml:"commandTimeout"` // seconds per compose command
	MaxReplayBody  int64 `json:"maxReplayBody" yaml:"maxReplayBody"`   // bytes
}

// Config holds the application configuration
type Config struct {
	ProxyPort     Port                   `json:"proxyPort" yaml:"proxyPort"`
	APIPort       Port                   `json:"apiPort" yaml:"apiPort"`
	IdleThreshold int                    `json:"idleThreshold" yaml:"idleThreshold"` // seconds
	CheckInterval int                    `json:"checkInterval" yaml:"checkInterval"` // seconds
	PathPrefix    string                 `json:"pathPrefix" yaml:"pathPrefix"`
	Domain        string                 `json:"domain" yaml:"domain"`
	StateDir      string                 `json:"stateDir" yaml:"stateDir"`
	ComposeFile   string                 `json:"composeFile" yaml:"composeFile"`
	LogLevel      string                 `json:"logLevel" yaml:"logLevel"`
	LogFormat     string                 `json:"logFormat" yaml:"logFormat"`
	Wake          WakeConfig             `json:"wake" yaml:"wake"`
	Cloudflare    types.CloudflareConfig `json:"cloudflare" yaml:"cloudflare"`
	Services      []types.RouteConfig    `json:"services" yaml:"services"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		ProxyPort:     ":8080",
		APIPort:       "",
		IdleThreshold: 1800, // 30 minutes
		CheckInterval: 300,  // 5 minutes
		PathPrefix:    "proxy",
		StateDir:      "tmp",
		ComposeFile:   "docker-compose.yml",
		LogLevel:      "info",
		LogFormat:     "text",
		Wake: WakeConfig{
			Cooldown:       60,
			ReadyTimeout:   60,
			ReadyInterval:  1000,
			ProbeTimeout:   2000,
			CommandTimeout: 300,
			MaxReplayBody:  1 << 20,
		},
	}
}

// LoadConfig loads configuration from a file, applies environment overrides
// and validates the result. A missing file is an error.
func LoadConfig(configPath string) (Config, error) {
	config := DefaultConfig()

	if configPath == "" {
		return config, fmt.Errorf("no config file given")
	}
	if err := loadFromFile(&config, configPath); err != nil {
		return config, err
	}

	overrideFromEnv(&config)
	config.applyRouteDefaults()

	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// ResolvePath picks the config path from the flag value, the environment, or the default.
func ResolvePath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if val := os.Getenv(EnvConfigPath); val != "" {
		return val
	}
	return DefaultConfigPath
}

// loadFromFile loads configuration from a JSON or YAML file, chosen by extension
func loadFromFile(config *Config, path string) error {
	bytes, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(bytes, config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := json.Unmarshal(bytes, config); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return nil
}

// overrideFromEnv overrides configuration with environment variables
func overrideFromEnv(config *Config) {
	if val := os.Getenv("WAKEPROXY_PROXY_PORT"); val != "" {
		config.ProxyPort = Port(ensurePortFormat(val))
	}

	if val := os.Getenv("WAKEPROXY_API_PORT"); val != "" {
		config.APIPort = Port(ensurePortFormat(val))
	}

	if val := os.Getenv("WAKEPROXY_IDLE_THRESHOLD"); val != "" {
		if threshold, err := parseEnvInt(val); err == nil {
			config.IdleThreshold = threshold
		}
	}

	if val := os.Getenv("WAKEPROXY_CHECK_INTERVAL"); val != "" {
		if interval, err := parseEnvInt(val); err == nil {
			config.CheckInterval = interval
		}
	}

	if val := os.Getenv("WAKEPROXY_STATE_DIR"); val != "" {
		config.StateDir = val
	}

	if val := os.Getenv("WAKEPROXY_LOG_LEVEL"); val != "" {
		config.LogLevel = val
	}

	// Cloudflare settings
	if val := os.Getenv("WAKEPROXY_CLOUDFLARE_ENABLED"); val != "" {
		config.Cloudflare.Enabled = strings.ToLower(val) == "true"
	}

	if val := os.Getenv("WAKEPROXY_CLOUDFLARE_API_TOKEN"); val != "" {
		config.Cloudflare.APIToken = val
	}

	if val := os.Getenv("WAKEPROXY_CLOUDFLARE_ZONE_ID"); val != "" {
		config.Cloudflare.ZoneID = val
	}

	if val := os.Getenv("WAKEPROXY_CLOUDFLARE_BASE_DOMAIN"); val != "" {
		config.Cloudflare.BaseDomain = val
	}
}

// applyRouteDefaults fills per-route fields that fall back to global settings.
func (c *Config) applyRouteDefaults() {
	for i := range c.Services {
		if c.Services[i].ComposeFile == "" {
			c.Services[i].ComposeFile = c.ComposeFile
		}
	}
	if c.Cloudflare.BaseDomain == "" {
		c.Cloudflare.BaseDomain = c.Domain
	}
}

// IdleThresholdDuration returns the idle threshold as a duration.
func (c Config) IdleThresholdDuration() time.Duration {
	return time.Duration(c.IdleThreshold) * time.Second
}

// CheckIntervalDuration returns the sweep period as a duration.
func (c Config) CheckIntervalDuration() time.Duration {
	return time.Duration(c.CheckInterval) * time.Second
}

// CooldownDuration returns the wake cooldown window.
func (w WakeConfig) CooldownDuration() time.Duration {
	return time.Duration(w.Cooldown) * time.Second
}

// ReadyTimeoutDuration returns the overall readiness budget.
func (w WakeConfig) ReadyTimeoutDuration() time.Duration {
	return time.Duration(w.ReadyTimeout) * time.Second
}

// ReadyIntervalDuration returns the pause between readiness polls.
func (w WakeConfig) ReadyIntervalDuration() time.Duration {
	return time.Duration(w.ReadyInterval) * time.Millisecond
}

// ProbeTimeoutDuration returns the per-attempt readiness timeout.
func (w WakeConfig) ProbeTimeoutDuration() time.Duration {
	return time.Duration(w.ProbeTimeout) * time.Millisecond
}

// CommandTimeoutDuration returns the bound on a single compose command.
func (w WakeConfig) CommandTimeoutDuration() time.Duration {
	return time.Duration(w.CommandTimeout) * time.Second
}

// ensurePortFormat ensures port is in the format ":8080" unless a host is given
func ensurePortFormat(port string) string {
	port = strings.TrimSpace(port)
	if port == "" {
		return ""
	}
	if !strings.Contains(port, ":") {
		return ":" + port
	}
	return port
}

// parseEnvInt parses an integer from an environment variable
func parseEnvInt(val string) (int, error) {
	var result int
	if _, err := fmt.Sscanf(val, "%d", &result); err != nil {
		return 0, err
	}
	return result, nil
}

var routeNamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

// ValidationError lists every problem found in a config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// Validate checks the config for problems that would make the proxy unusable.
func (c Config) Validate() error {
	var problems []string
	add := func(format string, args ...interface{}) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := validatePort(string(c.ProxyPort)); err != nil {
		add("proxyPort: %v", err)
	}
	if c.APIPort != "" {
		if err := validatePort(string(c.APIPort)); err != nil {
			add("apiPort: %v", err)
		}
	}
	if c.IdleThreshold <= 0 {
		add("idleThreshold must be positive, got %d", c.IdleThreshold)
	}
	if c.CheckInterval <= 0 {
		add("checkInterval must be positive, got %d", c.CheckInterval)
	}
	if c.PathPrefix == "" || strings.Contains(c.PathPrefix, "/") {
		add("pathPrefix must be a single non-empty path segment, got %q", c.PathPrefix)
	}
	if c.StateDir == "" {
		add("stateDir must not be empty")
	}
	if c.Wake.Cooldown < 0 {
		add("wake.cooldown must not be negative")
	}
	if c.Wake.ReadyTimeout <= 0 || c.Wake.ReadyInterval <= 0 || c.Wake.ProbeTimeout <= 0 {
		add("wake.readyTimeout, wake.readyInterval and wake.probeTimeout must be positive")
	}
	if c.Wake.CommandTimeout <= 0 {
		add("wake.commandTimeout must be positive")
	}
	if c.Cloudflare.Enabled {
		if c.Cloudflare.APIToken == "" || c.Cloudflare.ZoneID == "" || c.Cloudflare.BaseDomain == "" || c.Cloudflare.ServerAddress == "" {
			add("cloudflare requires apiToken, zoneId, baseDomain and serverAddress when enabled")
		}
	}

	if len(c.Services) == 0 {
		add("services must list at least one route")
	}
	seen := make(map[string]bool, len(c.Services))
	for i, svc := range c.Services {
		if !routeNamePattern.MatchString(svc.Route) {
			add("services[%d].route %q must match %s", i, svc.Route, routeNamePattern)
		} else if seen[svc.Route] {
			add("services[%d].route %q is duplicated", i, svc.Route)
		}
		seen[svc.Route] = true

		if err := validateTarget(svc.Target); err != nil {
			add("services[%d].target: %v", i, err)
		}
		if svc.ComposeDir == "" {
			add("services[%d].composeDir must not be empty", i)
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func validatePort(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	n, err := nat.ParsePort(port)
	if err != nil {
		return err
	}
	if n <= 0 {
		return fmt.Errorf("port %q out of range", port)
	}
	return nil
}

func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme must be http or https, got %q", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("missing host in %q", raw)
	}
	if p := u.Port(); p != "" {
		if _, err := nat.ParsePort(p); err != nil {
			return fmt.Errorf("invalid port in %q: %w", raw, err)
		}
	}
	return nil
}
