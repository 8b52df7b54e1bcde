// Package route compiles negotiated requests into proxy routing fragments.
// Compilation is a pure function of its inputs.
package route

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/sourceplane/edgeroute/internal/model"
)

// Routing modes
const (
	ModePath      = "path"
	ModeSubdomain = "subdomain"
)

// Entry points defined by the baseline static configuration
const (
	EntryPointWeb       = "web"
	EntryPointWebSecure = "websecure"
)

// Backend transport names used by the tls policies
const (
	ReverseTerminationTransport = "reverseTerminationTransport"
	EndToEndTransport           = "endToEndTLS"
)

// ForwardAuth is the global forward-auth state
type ForwardAuth struct {
	Address       string   `yaml:"address" json:"address"`
	Headers       []string `yaml:"headers,omitempty" json:"headers,omitempty"`
	ProtectedApps []string `yaml:"protectedApps,omitempty" json:"protectedApps,omitempty"`
}

func (fa *ForwardAuth) protects(app string) bool {
	if fa == nil || fa.Address == "" {
		return false
	}
	for _, p := range fa.ProtectedApps {
		if p == app {
			return true
		}
	}
	return false
}

// Globals is the global state every route depends on
type Globals struct {
	RoutingMode   string
	ExternalHost  string
	TLSEnabled    bool
	ForwardAuth   *ForwardAuth
	BasicAuthUser string
}

// Prefix derives the canonical route prefix of a peer
func Prefix(modelName, name string) string {
	return modelName + "-" + strings.ReplaceAll(name, "/", "-")
}

// Rule returns the router rule matching prefix
func Rule(prefix string, g Globals) string {
	if g.RoutingMode == ModeSubdomain {
		return fmt.Sprintf("Host(`%s.%s`)", prefix, g.ExternalHost)
	}
	return fmt.Sprintf("PathPrefix(`/%s`)", prefix)
}

// PublishedURL returns the externally reachable url of a route
func PublishedURL(prefix string, g Globals) string {
	scheme := "http"
	if g.TLSEnabled {
		scheme = "https"
	}
	if g.RoutingMode == ModeSubdomain {
		return fmt.Sprintf("%s://%s.%s/", scheme, prefix, g.ExternalHost)
	}
	return fmt.Sprintf("%s://%s/%s", scheme, g.ExternalHost, prefix)
}

// Policy maps edge and backend tls to a tls policy
func Policy(edgeTLS, backendTLS bool) model.TLSPolicy {
	switch {
	case edgeTLS && backendTLS:
		return model.TLSEndToEnd
	case edgeTLS:
		return model.TLSTermination
	case backendTLS:
		return model.TLSReverseTermination
	default:
		return model.TLSNone
	}
}

// RouterTLS returns the tls block for the edge router variant. Domains
// are only set when the external address is a DNS name.
func RouterTLS(externalHost string) *model.RouterTLS {
	if externalHost == "" || net.ParseIP(externalHost) != nil {
		return &model.RouterTLS{}
	}
	return &model.RouterTLS{Domains: []model.TLSDomain{{
		Main: externalHost,
		SANs: []string{"*." + externalHost},
	}}}
}

// Compile turns a negotiated request into the routing fragment of its link
func Compile(req *model.NegotiatedRequest, g Globals) (*model.RouteFragment, error) {
	if req == nil {
		return nil, fmt.Errorf("request cannot be nil")
	}
	if req.Style != model.StyleRaw && g.ExternalHost == "" {
		return nil, fmt.Errorf("link %d: external address is not known", req.LinkID)
	}
	if g.RoutingMode != ModePath && g.RoutingMode != ModeSubdomain {
		return nil, fmt.Errorf("unknown routing mode %q", g.RoutingMode)
	}

	frag := &model.RouteFragment{LinkID: req.LinkID, App: req.App, Style: req.Style}
	switch req.Style {
	case model.StylePerApp:
		compilePerApp(frag, req, g)
	case model.StylePerInstance:
		compilePerInstance(frag, req, g)
	case model.StyleRaw:
		compileRaw(frag, req, g)
	default:
		return nil, fmt.Errorf("link %d: unknown style %q", req.LinkID, req.Style)
	}
	return frag, nil
}

func newHTTPConfig() *model.HTTPConfig {
	return &model.HTTPConfig{
		Routers:           map[string]*model.Router{},
		Services:          map[string]*model.Service{},
		Middlewares:       map[string]*model.Middleware{},
		ServersTransports: map[string]*model.ServersTransport{},
	}
}

// httpRoute is the normalized input of one http route
type httpRoute struct {
	key           string
	app           string
	prefix        string
	scheme        string
	stripPrefix   bool
	redirectHTTPS bool
	targets       []string
	healthCheck   *model.HealthCheck
}

func compilePerApp(frag *model.RouteFragment, req *model.NegotiatedRequest, g Globals) {
	cfg := newHTTPConfig()
	in := httpRoute{
		key:           req.App,
		app:           req.App,
		prefix:        Prefix(req.Model, req.Name),
		scheme:        req.Scheme,
		stripPrefix:   req.StripPrefix,
		redirectHTTPS: req.RedirectHTTPS,
		healthCheck:   req.HealthCheck,
	}
	for _, b := range req.Backends {
		in.targets = append(in.targets, targetURL(req.Scheme, b.Host, b.Port))
	}
	frag.Routes = append(frag.Routes, addHTTPRoute(cfg, in, g))
	frag.Config = &model.DynamicConfig{HTTP: compact(cfg)}
}

func compilePerInstance(frag *model.RouteFragment, req *model.NegotiatedRequest, g Globals) {
	cfg := newHTTPConfig()
	var tcp *model.TCPConfig

	for _, inst := range req.Instances {
		prefix := Prefix(inst.Model, inst.Name)
		if inst.Mode == model.ModeTCP {
			if tcp == nil {
				tcp = &model.TCPConfig{Routers: map[string]*model.TCPRouter{}, Services: map[string]*model.TCPService{}}
			}
			frag.Routes = append(frag.Routes, addTCPRoute(tcp, inst, prefix, g))
			if frag.EntryPoints == nil {
				frag.EntryPoints = map[string]model.EntryPoint{}
			}
			frag.EntryPoints[prefix] = model.EntryPoint{Address: ":" + strconv.Itoa(inst.Port)}
			continue
		}
		frag.Routes = append(frag.Routes, addHTTPRoute(cfg, httpRoute{
			key:           inst.Instance,
			app:           req.App,
			prefix:        prefix,
			scheme:        inst.Scheme,
			stripPrefix:   inst.StripPrefix,
			redirectHTTPS: inst.RedirectHTTPS,
			targets:       []string{targetURL(inst.Scheme, inst.Host, inst.Port)},
		}, g))
	}
	frag.Config = &model.DynamicConfig{HTTP: compact(cfg), TCP: tcp}
}

func addHTTPRoute(cfg *model.HTTPConfig, in httpRoute, g Globals) model.Route {
	routerName := "juju-" + in.prefix + "-router"
	serviceName := "juju-" + in.prefix + "-service"
	rule := Rule(in.prefix, g)
	policy := Policy(g.TLSEnabled, in.scheme == "https")

	lb := model.LoadBalancer{Servers: make([]model.Server, 0, len(in.targets))}
	for _, t := range in.targets {
		lb.Servers = append(lb.Servers, model.Server{URL: t})
	}
	switch policy {
	case model.TLSReverseTermination:
		lb.ServersTransport = ReverseTerminationTransport
		cfg.ServersTransports[ReverseTerminationTransport] = &model.ServersTransport{InsecureSkipVerify: false}
	case model.TLSEndToEnd:
		lb.ServersTransport = EndToEndTransport
		cfg.ServersTransports[EndToEndTransport] = &model.ServersTransport{InsecureSkipVerify: false}
	}
	if !in.healthCheck.Empty() {
		hc := *in.healthCheck
		lb.HealthCheck = &hc
	}
	cfg.Services[serviceName] = &model.Service{LoadBalancer: lb}

	names := addMiddlewares(cfg, in, g)
	cfg.Routers[routerName] = &model.Router{
		Rule:        rule,
		EntryPoints: []string{EntryPointWeb},
		Service:     serviceName,
		Middlewares: names,
	}
	if g.TLSEnabled {
		cfg.Routers[routerName+"-tls"] = &model.Router{
			Rule:        rule,
			EntryPoints: []string{EntryPointWebSecure},
			Service:     serviceName,
			Middlewares: names,
			TLS:         RouterTLS(g.ExternalHost),
		}
	}

	return model.Route{
		Key:         in.key,
		Prefix:      in.prefix,
		Mode:        model.ModeHTTP,
		RouterName:  routerName,
		Rule:        rule,
		ServiceName: serviceName,
		Targets:     append([]string(nil), in.targets...),
		TLS:         policy,
		Middlewares: names,
		URL:         PublishedURL(in.prefix, g),
	}
}

// addMiddlewares registers the middleware chain of a route in its fixed
// order and returns the chain's names
func addMiddlewares(cfg *model.HTTPConfig, in httpRoute, g Globals) []string {
	var names []string
	add := func(name string, mw *model.Middleware) {
		cfg.Middlewares[name] = mw
		names = append(names, name)
	}

	if g.ForwardAuth.protects(in.app) {
		add("juju-sidecar-forward-auth-"+in.prefix, &model.Middleware{ForwardAuth: &model.ForwardAuthMiddleware{
			Address:             g.ForwardAuth.Address,
			AuthResponseHeaders: append([]string(nil), g.ForwardAuth.Headers...),
		}})
	}
	if g.RoutingMode == ModePath && in.stripPrefix {
		add("juju-sidecar-noprefix-"+in.prefix, &model.Middleware{StripPrefix: &model.StripPrefixMiddleware{
			Prefixes:   []string{"/" + in.prefix},
			ForceSlash: false,
		}})
	}
	if in.redirectHTTPS && in.scheme == "https" {
		add("juju-sidecar-redir-https-"+in.prefix, &model.Middleware{RedirectScheme: &model.RedirectSchemeMiddleware{
			Scheme:    "https",
			Port:      443,
			Permanent: true,
		}})
	}
	if g.BasicAuthUser != "" {
		add("juju-basic-auth-"+in.prefix, &model.Middleware{BasicAuth: &model.BasicAuthMiddleware{
			Users: []string{g.BasicAuthUser},
		}})
	}
	return names
}

func addTCPRoute(tcp *model.TCPConfig, inst model.InstanceRequest, prefix string, g Globals) model.Route {
	routerName := "juju-" + prefix + "-tcp-router"
	serviceName := "juju-" + prefix + "-tcp-service"
	rule := "HostSNI(`*`)"
	address := net.JoinHostPort(inst.Host, strconv.Itoa(inst.Port))

	tcp.Routers[routerName] = &model.TCPRouter{Rule: rule, EntryPoints: []string{prefix}, Service: serviceName}
	tcp.Services[serviceName] = &model.TCPService{LoadBalancer: model.TCPLoadBalancer{
		Servers: []model.TCPServer{{Address: address}},
	}}
	return model.Route{
		Key:         inst.Instance,
		Prefix:      prefix,
		Mode:        model.ModeTCP,
		RouterName:  routerName,
		Rule:        rule,
		ServiceName: serviceName,
		Targets:     []string{address},
		TLS:         model.TLSNone,
		URL:         net.JoinHostPort(g.ExternalHost, strconv.Itoa(inst.Port)),
	}
}

func compileRaw(frag *model.RouteFragment, req *model.NegotiatedRequest, g Globals) {
	doc := model.CloneDoc(req.RawConfig)
	if g.TLSEnabled {
		addRawTLSRouters(doc, g.ExternalHost)
	}
	frag.Raw = doc
	frag.Static = model.CloneDoc(req.RawStatic)
}

// addRawTLSRouters adds a websecure twin for every http router of a raw
// document that lacks one
func addRawTLSRouters(doc map[string]any, externalHost string) {
	httpSection, ok := doc["http"].(map[string]any)
	if !ok {
		return
	}
	routers, ok := httpSection["routers"].(map[string]any)
	if !ok {
		return
	}

	tls := map[string]any{}
	if t := RouterTLS(externalHost); len(t.Domains) > 0 {
		tls["domains"] = []any{map[string]any{
			"main": t.Domains[0].Main,
			"sans": []any{t.Domains[0].SANs[0]},
		}}
	}

	twins := map[string]any{}
	for name, r := range routers {
		router, ok := r.(map[string]any)
		if !ok || strings.HasSuffix(name, "-tls") {
			continue
		}
		if _, exists := routers[name+"-tls"]; exists {
			continue
		}
		twin := model.CloneDoc(router)
		twin["entryPoints"] = []any{EntryPointWebSecure}
		twin["tls"] = model.CloneValue(tls)
		twins[name+"-tls"] = twin
	}
	for name, twin := range twins {
		routers[name] = twin
	}
}

// compact drops empty sections so they are left out of the document
func compact(cfg *model.HTTPConfig) *model.HTTPConfig {
	if len(cfg.Middlewares) == 0 {
		cfg.Middlewares = nil
	}
	if len(cfg.ServersTransports) == 0 {
		cfg.ServersTransports = nil
	}
	if len(cfg.Routers) == 0 && len(cfg.Services) == 0 {
		return nil
	}
	return cfg
}

func targetURL(scheme, host string, port int) string {
	if scheme == "" {
		scheme = "http"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}
