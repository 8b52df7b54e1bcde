package route

import (
	"fmt"
	"testing"

	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func perAppRequest(hosts ...string) *model.NegotiatedRequest {
	req := &model.NegotiatedRequest{
		LinkID:  1,
		App:     "appname",
		Style:   model.StylePerApp,
		Version: model.VersionIngressV2,
		Model:   "model",
		Name:    "appname",
		Scheme:  "http",
	}
	for i, h := range hosts {
		req.Backends = append(req.Backends, model.Backend{Instance: fmt.Sprintf("appname/%d", i), Host: h, Port: 80})
	}
	return req
}

func pathGlobals() Globals {
	return Globals{RoutingMode: ModePath, ExternalHost: "foo.com"}
}

func TestCompileThreeInstancesPathMode(t *testing.T) {
	frag, err := Compile(perAppRequest("1.1.1.1", "1.1.1.2", "1.1.1.3"), pathGlobals())
	require.NoError(t, err)

	require.Len(t, frag.Routes, 1)
	r := frag.Routes[0]
	assert.Equal(t, "PathPrefix(`/model-appname`)", r.Rule)
	assert.Equal(t, []string{"http://1.1.1.1:80", "http://1.1.1.2:80", "http://1.1.1.3:80"}, r.Targets)
	assert.Equal(t, model.TLSNone, r.TLS)
	assert.Equal(t, "http://foo.com/model-appname", r.URL)

	svc := frag.Config.HTTP.Services["juju-model-appname-service"]
	require.NotNil(t, svc)
	assert.Equal(t, []model.Server{{URL: "http://1.1.1.1:80"}, {URL: "http://1.1.1.2:80"}, {URL: "http://1.1.1.3:80"}}, svc.LoadBalancer.Servers)

	router := frag.Config.HTTP.Routers["juju-model-appname-router"]
	require.NotNil(t, router)
	assert.Equal(t, []string{EntryPointWeb}, router.EntryPoints)
	assert.NotContains(t, frag.Config.HTTP.Routers, "juju-model-appname-router-tls")
	assert.Nil(t, frag.Config.HTTP.ServersTransports)
}

func TestRuleExactStrings(t *testing.T) {
	assert.Equal(t, "PathPrefix(`/p`)", Rule("p", Globals{RoutingMode: ModePath, ExternalHost: "e"}))
	assert.Equal(t, "Host(`p.e`)", Rule("p", Globals{RoutingMode: ModeSubdomain, ExternalHost: "e"}))
	assert.Equal(t, "test-model-remote-0", Prefix("test-model", "remote/0"))
}

func TestPublishedURL(t *testing.T) {
	tests := []struct {
		name string
		g    Globals
		want string
	}{
		{"path", Globals{RoutingMode: ModePath, ExternalHost: "testhostname"}, "http://testhostname/test-model-remote-0"},
		{"path tls", Globals{RoutingMode: ModePath, ExternalHost: "testhostname", TLSEnabled: true}, "https://testhostname/test-model-remote-0"},
		{"subdomain", Globals{RoutingMode: ModeSubdomain, ExternalHost: "testhostname"}, "http://test-model-remote-0.testhostname/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, PublishedURL("test-model-remote-0", tt.g))
		})
	}
}

func TestTLSPolicyTable(t *testing.T) {
	tests := []struct {
		edge, backend bool
		want          model.TLSPolicy
		transport     string
	}{
		{false, false, model.TLSNone, ""},
		{true, false, model.TLSTermination, ""},
		{false, true, model.TLSReverseTermination, ReverseTerminationTransport},
		{true, true, model.TLSEndToEnd, EndToEndTransport},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			req := perAppRequest("10.0.0.1")
			if tt.backend {
				req.Scheme = "https"
			}
			g := pathGlobals()
			g.TLSEnabled = tt.edge

			frag, err := Compile(req, g)
			require.NoError(t, err)
			assert.Equal(t, tt.want, frag.Routes[0].TLS)

			lb := frag.Config.HTTP.Services["juju-model-appname-service"].LoadBalancer
			assert.Equal(t, tt.transport, lb.ServersTransport)
			if tt.transport != "" {
				require.Contains(t, frag.Config.HTTP.ServersTransports, tt.transport)
				assert.False(t, frag.Config.HTTP.ServersTransports[tt.transport].InsecureSkipVerify)
			}

			_, hasTLSRouter := frag.Config.HTTP.Routers["juju-model-appname-router-tls"]
			assert.Equal(t, tt.edge, hasTLSRouter)
		})
	}
}

func TestTLSRouterDomains(t *testing.T) {
	g := Globals{RoutingMode: ModePath, ExternalHost: "foo.com", TLSEnabled: true}
	frag, err := Compile(perAppRequest("10.0.0.1"), g)
	require.NoError(t, err)
	tlsRouter := frag.Config.HTTP.Routers["juju-model-appname-router-tls"]
	require.NotNil(t, tlsRouter)
	assert.Equal(t, []string{EntryPointWebSecure}, tlsRouter.EntryPoints)
	assert.Equal(t, []model.TLSDomain{{Main: "foo.com", SANs: []string{"*.foo.com"}}}, tlsRouter.TLS.Domains)

	g.ExternalHost = "10.1.2.3"
	frag, err = Compile(perAppRequest("10.0.0.1"), g)
	require.NoError(t, err)
	tlsRouter = frag.Config.HTTP.Routers["juju-model-appname-router-tls"]
	require.NotNil(t, tlsRouter.TLS)
	assert.Empty(t, tlsRouter.TLS.Domains)
}

func TestMiddlewareChainOrder(t *testing.T) {
	req := perAppRequest("10.0.0.1")
	req.Scheme = "https"
	req.StripPrefix = true
	req.RedirectHTTPS = true

	g := pathGlobals()
	g.BasicAuthUser = "admin:$apr1$hash"
	g.ForwardAuth = &ForwardAuth{Address: "http://auth/decisions", Headers: []string{"X-User"}, ProtectedApps: []string{"appname"}}

	frag, err := Compile(req, g)
	require.NoError(t, err)
	want := []string{
		"juju-sidecar-forward-auth-model-appname",
		"juju-sidecar-noprefix-model-appname",
		"juju-sidecar-redir-https-model-appname",
		"juju-basic-auth-model-appname",
	}
	assert.Equal(t, want, frag.Routes[0].Middlewares)
	assert.Equal(t, want, frag.Config.HTTP.Routers["juju-model-appname-router"].Middlewares)

	mw := frag.Config.HTTP.Middlewares
	assert.Equal(t, []string{"/model-appname"}, mw["juju-sidecar-noprefix-model-appname"].StripPrefix.Prefixes)
	assert.Equal(t, 443, mw["juju-sidecar-redir-https-model-appname"].RedirectScheme.Port)
	assert.Equal(t, []string{"admin:$apr1$hash"}, mw["juju-basic-auth-model-appname"].BasicAuth.Users)
	assert.Equal(t, "http://auth/decisions", mw["juju-sidecar-forward-auth-model-appname"].ForwardAuth.Address)
}

func TestMiddlewareToggles(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.NegotiatedRequest, *Globals)
		want   []string
	}{
		{
			name: "strip prefix ignored in subdomain mode",
			mutate: func(r *model.NegotiatedRequest, g *Globals) {
				r.StripPrefix = true
				g.RoutingMode = ModeSubdomain
			},
		},
		{
			name:   "redirect needs https scheme",
			mutate: func(r *model.NegotiatedRequest, g *Globals) { r.RedirectHTTPS = true },
		},
		{
			name: "forward auth only for protected apps",
			mutate: func(r *model.NegotiatedRequest, g *Globals) {
				g.ForwardAuth = &ForwardAuth{Address: "http://auth", ProtectedApps: []string{"other"}}
			},
		},
		{
			name:   "strip prefix in path mode",
			mutate: func(r *model.NegotiatedRequest, g *Globals) { r.StripPrefix = true },
			want:   []string{"juju-sidecar-noprefix-model-appname"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := perAppRequest("10.0.0.1")
			g := pathGlobals()
			tt.mutate(req, &g)
			frag, err := Compile(req, g)
			require.NoError(t, err)
			assert.Equal(t, tt.want, frag.Routes[0].Middlewares)
		})
	}
}

func TestCompileIsByteIdentical(t *testing.T) {
	req := perAppRequest("1.1.1.1", "1.1.1.2")
	req.StripPrefix = true
	g := Globals{RoutingMode: ModePath, ExternalHost: "foo.com", TLSEnabled: true, BasicAuthUser: "u:h"}

	a, err := Compile(req, g)
	require.NoError(t, err)
	b, err := Compile(req, g)
	require.NoError(t, err)

	da, err := yaml.Marshal(a.Document())
	require.NoError(t, err)
	db, err := yaml.Marshal(b.Document())
	require.NoError(t, err)
	assert.Equal(t, string(da), string(db))
}

func TestBackendCountFollowsInstances(t *testing.T) {
	hosts := []string{"10.0.0.1", "10.0.0.2", "10.0.0.3", "10.0.0.4"}
	for n := 1; n <= len(hosts); n++ {
		frag, err := Compile(perAppRequest(hosts[:n]...), pathGlobals())
		require.NoError(t, err)
		assert.Len(t, frag.Routes[0].Targets, n)
	}

	req := perAppRequest(hosts...)
	req.Backends = append(req.Backends[:1], req.Backends[2:]...)
	frag, err := Compile(req, pathGlobals())
	require.NoError(t, err)
	assert.Equal(t, []string{"http://10.0.0.1:80", "http://10.0.0.3:80", "http://10.0.0.4:80"}, frag.Routes[0].Targets)
}

func TestHealthCheckAttached(t *testing.T) {
	req := perAppRequest("10.0.0.1")
	req.HealthCheck = &model.HealthCheck{Path: "/health", Interval: "10s"}
	frag, err := Compile(req, pathGlobals())
	require.NoError(t, err)
	assert.Equal(t, &model.HealthCheck{Path: "/health", Interval: "10s"},
		frag.Config.HTTP.Services["juju-model-appname-service"].LoadBalancer.HealthCheck)
}

func TestCompilePerInstance(t *testing.T) {
	req := &model.NegotiatedRequest{
		LinkID: 3,
		App:    "remote",
		Style:  model.StylePerInstance,
		Instances: []model.InstanceRequest{
			{Instance: "remote/0", Model: "test-model", Name: "remote/0", Host: "10.0.0.1", Port: 9000, Mode: model.ModeHTTP, Scheme: "http"},
			{Instance: "remote/1", Model: "test-model", Name: "remote/1", Host: "10.0.0.2", Port: 9001, Mode: model.ModeTCP, Scheme: "http"},
		},
	}
	frag, err := Compile(req, Globals{RoutingMode: ModePath, ExternalHost: "testhostname"})
	require.NoError(t, err)
	require.Len(t, frag.Routes, 2)

	httpRoute := frag.Routes[0]
	assert.Equal(t, "PathPrefix(`/test-model-remote-0`)", httpRoute.Rule)
	assert.Equal(t, []string{"http://10.0.0.1:9000"}, httpRoute.Targets)
	assert.Equal(t, "http://testhostname/test-model-remote-0", httpRoute.URL)

	tcpRoute := frag.Routes[1]
	assert.Equal(t, model.ModeTCP, tcpRoute.Mode)
	assert.Equal(t, "HostSNI(`*`)", tcpRoute.Rule)
	assert.Equal(t, "testhostname:9001", tcpRoute.URL)
	tcpRouter := frag.Config.TCP.Routers["juju-test-model-remote-1-tcp-router"]
	require.NotNil(t, tcpRouter)
	assert.Equal(t, []string{"test-model-remote-1"}, tcpRouter.EntryPoints)
	assert.Equal(t, map[string]model.EntryPoint{"test-model-remote-1": {Address: ":9001"}}, frag.EntryPoints)
}

func TestCompileRawAddsTLSTwins(t *testing.T) {
	raw := map[string]any{
		"http": map[string]any{
			"routers": map[string]any{
				"a":     map[string]any{"rule": "Host(`a`)", "service": "s", "entryPoints": []any{"web"}},
				"b":     map[string]any{"rule": "Host(`b`)", "service": "s"},
				"b-tls": map[string]any{"rule": "Host(`b`)", "service": "s", "tls": map[string]any{}},
			},
		},
	}
	req := &model.NegotiatedRequest{LinkID: 5, App: "grafana", Style: model.StyleRaw, RawConfig: raw}

	plain, err := Compile(req, Globals{RoutingMode: ModePath})
	require.NoError(t, err)
	assert.Equal(t, raw, plain.Raw)

	secured, err := Compile(req, Globals{RoutingMode: ModePath, ExternalHost: "foo.com", TLSEnabled: true})
	require.NoError(t, err)
	routers := secured.Raw["http"].(map[string]any)["routers"].(map[string]any)
	require.Contains(t, routers, "a-tls")
	assert.Len(t, routers, 4)
	twin := routers["a-tls"].(map[string]any)
	assert.Equal(t, []any{EntryPointWebSecure}, twin["entryPoints"])

	// the request is not mutated
	assert.Len(t, raw["http"].(map[string]any)["routers"].(map[string]any), 3)
}

func TestCompileRequiresExternalHost(t *testing.T) {
	_, err := Compile(perAppRequest("10.0.0.1"), Globals{RoutingMode: ModePath})
	assert.Error(t, err)
}
