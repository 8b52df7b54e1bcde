package model

// DynamicConfig is a hot-reloaded proxy routing document
type DynamicConfig struct {
	HTTP *HTTPConfig `yaml:"http,omitempty" json:"http,omitempty"`
	TCP  *TCPConfig  `yaml:"tcp,omitempty" json:"tcp,omitempty"`
}

// HTTPConfig holds http routers, services and their helpers
type HTTPConfig struct {
	Routers           map[string]*Router           `yaml:"routers,omitempty" json:"routers,omitempty"`
	Services          map[string]*Service          `yaml:"services,omitempty" json:"services,omitempty"`
	Middlewares       map[string]*Middleware       `yaml:"middlewares,omitempty" json:"middlewares,omitempty"`
	ServersTransports map[string]*ServersTransport `yaml:"serversTransports,omitempty" json:"serversTransports,omitempty"`
}

// Router matches requests and hands them to a service
type Router struct {
	Rule        string     `yaml:"rule" json:"rule"`
	EntryPoints []string   `yaml:"entryPoints" json:"entryPoints"`
	Service     string     `yaml:"service" json:"service"`
	Middlewares []string   `yaml:"middlewares,omitempty" json:"middlewares,omitempty"`
	TLS         *RouterTLS `yaml:"tls,omitempty" json:"tls,omitempty"`
}

// RouterTLS enables tls on a router; an empty value renders as {}
type RouterTLS struct {
	Domains []TLSDomain `yaml:"domains,omitempty" json:"domains,omitempty"`
}

// TLSDomain is the certificate domain set of a tls router
type TLSDomain struct {
	Main string   `yaml:"main" json:"main"`
	SANs []string `yaml:"sans,omitempty" json:"sans,omitempty"`
}

// Service load balances over backend servers
type Service struct {
	LoadBalancer LoadBalancer `yaml:"loadBalancer" json:"loadBalancer"`
}

// LoadBalancer is the backend set of a service
type LoadBalancer struct {
	Servers          []Server     `yaml:"servers" json:"servers"`
	ServersTransport string       `yaml:"serversTransport,omitempty" json:"serversTransport,omitempty"`
	HealthCheck      *HealthCheck `yaml:"healthCheck,omitempty" json:"healthCheck,omitempty"`
}

// Server is one backend url
type Server struct {
	URL string `yaml:"url" json:"url"`
}

// ServersTransport overrides how the proxy talks to a backend
type ServersTransport struct {
	InsecureSkipVerify bool `yaml:"insecureSkipVerify" json:"insecureSkipVerify"`
}

// Middleware has exactly one kind set
type Middleware struct {
	ForwardAuth    *ForwardAuthMiddleware    `yaml:"forwardAuth,omitempty" json:"forwardAuth,omitempty"`
	StripPrefix    *StripPrefixMiddleware    `yaml:"stripPrefix,omitempty" json:"stripPrefix,omitempty"`
	RedirectScheme *RedirectSchemeMiddleware `yaml:"redirectScheme,omitempty" json:"redirectScheme,omitempty"`
	BasicAuth      *BasicAuthMiddleware      `yaml:"basicAuth,omitempty" json:"basicAuth,omitempty"`
}

// ForwardAuthMiddleware delegates authentication to a decision service
type ForwardAuthMiddleware struct {
	Address             string   `yaml:"address" json:"address"`
	AuthResponseHeaders []string `yaml:"authResponseHeaders,omitempty" json:"authResponseHeaders,omitempty"`
}

// StripPrefixMiddleware removes the route prefix before forwarding
type StripPrefixMiddleware struct {
	Prefixes   []string `yaml:"prefixes" json:"prefixes"`
	ForceSlash bool     `yaml:"forceSlash" json:"forceSlash"`
}

// RedirectSchemeMiddleware redirects plain http to https
type RedirectSchemeMiddleware struct {
	Scheme    string `yaml:"scheme" json:"scheme"`
	Port      int    `yaml:"port" json:"port"`
	Permanent bool   `yaml:"permanent" json:"permanent"`
}

// BasicAuthMiddleware checks requests against fixed credentials
type BasicAuthMiddleware struct {
	Users []string `yaml:"users" json:"users"`
}

// TCPConfig holds tcp routers and services
type TCPConfig struct {
	Routers  map[string]*TCPRouter  `yaml:"routers,omitempty" json:"routers,omitempty"`
	Services map[string]*TCPService `yaml:"services,omitempty" json:"services,omitempty"`
}

// TCPRouter routes raw tcp connections arriving on an entry point
type TCPRouter struct {
	Rule        string   `yaml:"rule" json:"rule"`
	EntryPoints []string `yaml:"entryPoints" json:"entryPoints"`
	Service     string   `yaml:"service" json:"service"`
}

// TCPService load balances tcp connections
type TCPService struct {
	LoadBalancer TCPLoadBalancer `yaml:"loadBalancer" json:"loadBalancer"`
}

// TCPLoadBalancer is the backend set of a tcp service
type TCPLoadBalancer struct {
	Servers []TCPServer `yaml:"servers" json:"servers"`
}

// TCPServer is one tcp backend address
type TCPServer struct {
	Address string `yaml:"address" json:"address"`
}
