package render

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/sourceplane/edgeroute/internal/model"
	"gopkg.in/yaml.v3"
)

// File names on the workload
const (
	FragmentPrefix   = "juju_"
	FragmentSuffix   = ".yaml"
	StaticFileName   = "traefik.yaml"
	CertificatesFile = "certificates.yaml"
	CertFile         = "server.cert"
	KeyFile          = "server.key"
	AppliedFile      = "edgeroute-applied.yaml"
)

const fragmentPrefix = FragmentPrefix + "ingress_"

// FragmentFileName names the dynamic config file of a link
func FragmentFileName(style model.Style, linkID int, app string) string {
	return fmt.Sprintf("%s%s_%d_%s%s", fragmentPrefix, style.Endpoint(), linkID, app, FragmentSuffix)
}

// IsFragmentFile reports whether name looks like a managed fragment file
func IsFragmentFile(name string) bool {
	return strings.HasPrefix(name, FragmentPrefix) && strings.HasSuffix(name, FragmentSuffix)
}

// FragmentLinkID extracts the link id from a fragment file name
func FragmentLinkID(name string) (int, bool) {
	if !strings.HasPrefix(name, fragmentPrefix) || !strings.HasSuffix(name, FragmentSuffix) {
		return 0, false
	}
	parts := strings.SplitN(strings.TrimPrefix(name, fragmentPrefix), "_", 3)
	if len(parts) != 3 {
		return 0, false
	}
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, false
	}
	return id, true
}

// RenderYAML renders a document as YAML
func RenderYAML(doc any) ([]byte, error) {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to render YAML: %w", err)
	}
	return data, nil
}

// RenderJSON renders a document as indented JSON
func RenderJSON(doc any) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to render JSON: %w", err)
	}
	return data, nil
}

// Render renders doc in the named format
func Render(doc any, format string) ([]byte, error) {
	switch format {
	case "json":
		return RenderJSON(doc)
	case "yaml", "yml", "":
		return RenderYAML(doc)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// RenderFragment serializes the dynamic config of a fragment
func RenderFragment(frag *model.RouteFragment) ([]byte, error) {
	return RenderYAML(frag.Document())
}

// TLSDocument is the dynamic config registering the served certificate
func TLSDocument(dir string) map[string]any {
	cert := dir + "/" + CertFile
	key := dir + "/" + KeyFile
	return map[string]any{
		"tls": map[string]any{
			"certificates": []any{map[string]any{"certFile": cert, "keyFile": key}},
			"stores": map[string]any{
				"default": map[string]any{
					"defaultCertificate": map[string]any{"certFile": cert, "keyFile": key},
				},
			},
		},
	}
}
