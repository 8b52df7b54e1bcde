package model

// Protocol versions spoken over integration links
const (
	VersionIngressV1        = "ingress/v1"
	VersionIngressV2        = "ingress/v2"
	VersionIngressPerUnitV1 = "ingress-per-unit/v1"
	VersionRouteV0          = "traefik-route/v0"
)

// Routing modes for instance requests
const (
	ModeHTTP = "http"
	ModeTCP  = "tcp"
)

// HealthCheck holds peer supplied load balancer health check parameters
type HealthCheck struct {
	Path     string `yaml:"path,omitempty" json:"path,omitempty"`
	Scheme   string `yaml:"scheme,omitempty" json:"scheme,omitempty"`
	Hostname string `yaml:"hostname,omitempty" json:"hostname,omitempty"`
	Port     int    `yaml:"port,omitempty" json:"port,omitempty"`
	Interval string `yaml:"interval,omitempty" json:"interval,omitempty"`
	Timeout  string `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// Empty reports whether no parameter survived filtering
func (h *HealthCheck) Empty() bool {
	return h == nil || *h == HealthCheck{}
}

// Backend is one published peer instance address
type Backend struct {
	Instance string `yaml:"instance" json:"instance"`
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
}

// InstanceRequest is the negotiated request of one per-instance peer
type InstanceRequest struct {
	Instance      string `yaml:"instance" json:"instance"`
	Model         string `yaml:"model" json:"model"`
	Name          string `yaml:"name" json:"name"`
	Host          string `yaml:"host" json:"host"`
	Port          int    `yaml:"port" json:"port"`
	Mode          string `yaml:"mode" json:"mode"`
	Scheme        string `yaml:"scheme" json:"scheme"`
	StripPrefix   bool   `yaml:"strip-prefix" json:"strip-prefix"`
	RedirectHTTPS bool   `yaml:"redirect-https" json:"redirect-https"`
}

// NegotiatedRequest is the validated, version resolved view of a link.
// It is rebuilt from the link records on every pass.
type NegotiatedRequest struct {
	LinkID  int    `yaml:"link" json:"link"`
	App     string `yaml:"app" json:"app"`
	Style   Style  `yaml:"style" json:"style"`
	Version string `yaml:"version" json:"version"`

	// per-app
	Model         string       `yaml:"model,omitempty" json:"model,omitempty"`
	Name          string       `yaml:"name,omitempty" json:"name,omitempty"`
	Scheme        string       `yaml:"scheme,omitempty" json:"scheme,omitempty"`
	StripPrefix   bool         `yaml:"strip-prefix,omitempty" json:"strip-prefix,omitempty"`
	RedirectHTTPS bool         `yaml:"redirect-https,omitempty" json:"redirect-https,omitempty"`
	Backends      []Backend    `yaml:"backends,omitempty" json:"backends,omitempty"`
	HealthCheck   *HealthCheck `yaml:"healthcheck,omitempty" json:"healthcheck,omitempty"`

	// per-instance
	Instances []InstanceRequest `yaml:"instances,omitempty" json:"instances,omitempty"`

	// raw
	RawConfig map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
	RawStatic map[string]any `yaml:"static,omitempty" json:"static,omitempty"`
}
