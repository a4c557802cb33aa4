package types

// RouteConfig holds the static configuration of one on-demand backend.
type RouteConfig struct {
	Route       string `json:"route" yaml:"route"`                                 // Unique path segment and subdomain identifier
	Target      string `json:"target" yaml:"target"`                               // Backend base URL, e.g. "http://127.0.0.1:3000"
	ComposeDir  string `json:"composeDir" yaml:"composeDir"`                       // Directory of the backend's compose project
	Container   string `json:"container,omitempty" yaml:"container,omitempty"`     // Container name, defaults to Route
	ComposeFile string `json:"composeFile,omitempty" yaml:"composeFile,omitempty"` // Compose file name inside ComposeDir
}

// ContainerName returns the configured container name, falling back to the route.
func (r RouteConfig) ContainerName() string {
	if r.Container != "" {
		return r.Container
	}
	return r.Route
}
