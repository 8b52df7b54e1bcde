package merge

import (
	"sort"

	"github.com/sourceplane/edgeroute/internal/model"
)

// Baseline listener addresses
const (
	DiagnosticsAddress = ":8082"
	WebAddress         = ":80"
	WebSecureAddress   = ":443"
)

// BaselineParams parameterizes the system's own static document
type BaselineParams struct {
	LogLevel       string
	DynamicDir     string
	TCPEntryPoints map[string]model.EntryPoint
}

// Baseline builds the static document owned by the system
func Baseline(p BaselineParams) map[string]any {
	level := p.LogLevel
	if level == "" {
		level = "DEBUG"
	}

	entryPoints := map[string]any{
		"diagnostics": map[string]any{"address": DiagnosticsAddress},
		"web":         map[string]any{"address": WebAddress},
		"websecure":   map[string]any{"address": WebSecureAddress},
	}
	names := make([]string, 0, len(p.TCPEntryPoints))
	for name := range p.TCPEntryPoints {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, taken := entryPoints[name]; taken {
			continue
		}
		entryPoints[name] = map[string]any{"address": p.TCPEntryPoints[name].Address}
	}

	return map[string]any{
		"log":         map[string]any{"level": level},
		"entryPoints": entryPoints,
		"ping":        map[string]any{"entryPoint": "diagnostics"},
		"metrics": map[string]any{
			"prometheus": map[string]any{
				"addRoutersLabels":  true,
				"addServicesLabels": true,
				"entryPoint":        "diagnostics",
			},
		},
		"providers": map[string]any{
			"file": map[string]any{
				"directory": p.DynamicDir,
				"watch":     true,
			},
		},
	}
}
