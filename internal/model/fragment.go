package model

import "fmt"

// TLSPolicy names how tls is handled between client, proxy and backend
type TLSPolicy string

const (
	TLSNone               TLSPolicy = "none"
	TLSTermination        TLSPolicy = "termination"
	TLSReverseTermination TLSPolicy = "reverse-termination"
	TLSEndToEnd           TLSPolicy = "end-to-end"
)

// Route is the compiled routing of one peer application or instance
type Route struct {
	Key         string    `yaml:"key" json:"key"`
	Prefix      string    `yaml:"prefix" json:"prefix"`
	Mode        string    `yaml:"mode" json:"mode"`
	RouterName  string    `yaml:"router" json:"router"`
	Rule        string    `yaml:"rule" json:"rule"`
	ServiceName string    `yaml:"service" json:"service"`
	Targets     []string  `yaml:"targets" json:"targets"`
	TLS         TLSPolicy `yaml:"tls" json:"tls"`
	Middlewares []string  `yaml:"middlewares,omitempty" json:"middlewares,omitempty"`
	URL         string    `yaml:"url,omitempty" json:"url,omitempty"`
}

// RouteFragment is the compiler output for one ready link
type RouteFragment struct {
	LinkID int     `yaml:"link" json:"link"`
	App    string  `yaml:"app" json:"app"`
	Style  Style   `yaml:"style" json:"style"`
	Routes []Route `yaml:"routes,omitempty" json:"routes,omitempty"`

	// Config is the typed document for per-app and per-instance links
	Config *DynamicConfig `yaml:"-" json:"-"`

	// Raw is the verbatim document for raw links
	Raw map[string]any `yaml:"-" json:"-"`

	// EntryPoints are static listeners the fragment depends on
	EntryPoints map[string]EntryPoint `yaml:"entryPoints,omitempty" json:"entryPoints,omitempty"`

	// Static is a raw peer's static contribution
	Static map[string]any `yaml:"-" json:"-"`
}

// Document returns the value serialized into the fragment file
func (f *RouteFragment) Document() any {
	if f.Raw != nil {
		return f.Raw
	}
	if f.Config == nil {
		return &DynamicConfig{}
	}
	return f.Config
}

// EntryPoint is a static network listener
type EntryPoint struct {
	Address string `yaml:"address" json:"address"`
}

// BaselineOwner owns the system's own static settings
const BaselineOwner = "baseline"

// LinkOwner names the static fragment owner for a link
func LinkOwner(id int) string {
	return fmt.Sprintf("link-%d", id)
}

// StaticFragment is a partial static document with its owner
type StaticFragment struct {
	Owner string         `yaml:"owner" json:"owner"`
	Doc   map[string]any `yaml:"doc" json:"doc"`
}
