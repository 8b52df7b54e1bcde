package render

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/edgeroute/internal/model"
)

// Endpoint is one proxied endpoint as listed to operators
type Endpoint struct {
	Name string `json:"name" yaml:"name"`
	URL  string `json:"url" yaml:"url"`
}

// EndpointOptions controls the endpoint listing
type EndpointOptions struct {
	// Self adds the proxy's own entry
	Self     bool
	SelfName string
	// SelfURL is the proxy's externally reachable address
	SelfURL string
	// UpstreamURL replaces SelfURL when the proxy is itself exposed
	// through an upstream proxy
	UpstreamURL string
}

// ProxiedEndpoints lists the url of every compiled route, sorted by name.
// Raw fragments carry no url and are skipped.
func ProxiedEndpoints(frags []*model.RouteFragment, opts EndpointOptions) []Endpoint {
	var out []Endpoint
	for _, frag := range frags {
		if frag.Style == model.StyleRaw {
			continue
		}
		for _, r := range frag.Routes {
			out = append(out, Endpoint{Name: r.Key, URL: r.URL})
		}
	}

	if opts.Self {
		url := opts.SelfURL
		if opts.UpstreamURL != "" {
			url = opts.UpstreamURL
		}
		if url != "" {
			name := opts.SelfName
			if name == "" {
				name = "traefik"
			}
			out = append(out, Endpoint{Name: name, URL: url})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ViewRoutes returns a tree view of compiled fragments
func ViewRoutes(frags []*model.RouteFragment) string {
	if len(frags) == 0 {
		return "No routes"
	}

	sorted := append([]*model.RouteFragment(nil), frags...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].LinkID < sorted[j].LinkID })

	var sb strings.Builder
	routes := 0
	for i, frag := range sorted {
		lastFrag := i == len(sorted)-1
		prefix, connector := "├─ ", "│  "
		if lastFrag {
			prefix, connector = "└─ ", "   "
		}
		sb.WriteString(fmt.Sprintf("%s%s [%s, link %d]\n", prefix, frag.App, frag.Style, frag.LinkID))

		if frag.Style == model.StyleRaw {
			sb.WriteString(connector + "└─ (raw fragment)\n")
			continue
		}
		for j, r := range frag.Routes {
			routes++
			routePrefix, routeConnector := connector+"├─ ", connector+"│  "
			if j == len(frag.Routes)-1 {
				routePrefix, routeConnector = connector+"└─ ", connector+"   "
			}
			sb.WriteString(fmt.Sprintf("%s%s | %s [tls:%s]\n", routePrefix, r.RouterName, r.Rule, r.TLS))
			for k, target := range r.Targets {
				targetPrefix := routeConnector + "├─ "
				if k == len(r.Targets)-1 && len(r.Middlewares) == 0 {
					targetPrefix = routeConnector + "└─ "
				}
				sb.WriteString(fmt.Sprintf("%s→ %s\n", targetPrefix, target))
			}
			if len(r.Middlewares) > 0 {
				sb.WriteString(fmt.Sprintf("%s└─ middlewares: %s\n", routeConnector, strings.Join(r.Middlewares, ", ")))
			}
		}
	}

	sb.WriteString("═══════════════════════════════════════════════════════════\n")
	sb.WriteString(fmt.Sprintf("Summary: %d links, %d routes\n", len(sorted), routes))
	return sb.String()
}
