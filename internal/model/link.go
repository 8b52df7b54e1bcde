package model

import (
	"fmt"
	"sort"
)

// Style is the shape of exposure a peer requests over a link
type Style string

const (
	StylePerApp      Style = "per-app"
	StylePerInstance Style = "per-instance"
	StyleRaw         Style = "raw"
)

// Endpoint returns the integration endpoint name serving the style
func (s Style) Endpoint() string {
	switch s {
	case StylePerApp:
		return "ingress"
	case StylePerInstance:
		return "ingress-per-unit"
	case StyleRaw:
		return "traefik-route"
	}
	return string(s)
}

// Valid reports whether the style is one of the known styles
func (s Style) Valid() bool {
	switch s {
	case StylePerApp, StylePerInstance, StyleRaw:
		return true
	}
	return false
}

// Record is a flat string-keyed integration record as seen on the wire
type Record map[string]string

// Clone returns an independent copy of the record
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys in sorted order
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InstanceRecord is the record published by one peer instance
type InstanceRecord struct {
	Name string `yaml:"name" json:"name"`
	Data Record `yaml:"record,omitempty" json:"record,omitempty"`
}

// IntegrationLink is one connection to exactly one peer application
type IntegrationLink struct {
	ID        int              `yaml:"id" json:"id"`
	App       string           `yaml:"app" json:"app"`
	Style     Style            `yaml:"style" json:"style"`
	AppRecord Record           `yaml:"app_record,omitempty" json:"app_record,omitempty"`
	Instances []InstanceRecord `yaml:"units,omitempty" json:"units,omitempty"`

	// Published holds the values this side writes back to the peer
	Published Record `yaml:"published,omitempty" json:"published,omitempty"`

	// Closing is set by the host when the link is being torn down
	Closing bool `yaml:"closing,omitempty" json:"closing,omitempty"`
}

// Key returns a human readable identifier for logs and status
func (l *IntegrationLink) Key() string {
	return fmt.Sprintf("%s:%d/%s", l.Style.Endpoint(), l.ID, l.App)
}

// Instance returns the named instance record, if present
func (l *IntegrationLink) Instance(name string) (InstanceRecord, bool) {
	for _, inst := range l.Instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return InstanceRecord{}, false
}

// Arena indexes the links of one reconciliation pass by link id
type Arena struct {
	order []int
	links map[int]*IntegrationLink
}

// NewArena builds an arena from links, rejecting duplicate ids
func NewArena(links []*IntegrationLink) (*Arena, error) {
	a := &Arena{links: make(map[int]*IntegrationLink, len(links))}
	for _, l := range links {
		if l == nil {
			continue
		}
		if _, dup := a.links[l.ID]; dup {
			return nil, fmt.Errorf("duplicate link id %d", l.ID)
		}
		a.links[l.ID] = l
		a.order = append(a.order, l.ID)
	}
	sort.Ints(a.order)
	return a, nil
}

// Get returns the link with the given id
func (a *Arena) Get(id int) (*IntegrationLink, bool) {
	l, ok := a.links[id]
	return l, ok
}

// IDs returns every link id in ascending order
func (a *Arena) IDs() []int {
	return append([]int(nil), a.order...)
}

// Links returns every link ordered by id
func (a *Arena) Links() []*IntegrationLink {
	out := make([]*IntegrationLink, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.links[id])
	}
	return out
}

// Len returns the number of links
func (a *Arena) Len() int { return len(a.order) }

// StyleForEndpoint maps an integration endpoint name back to its style
func StyleForEndpoint(endpoint string) (Style, bool) {
	for _, s := range []Style{StylePerApp, StylePerInstance, StyleRaw} {
		if s.Endpoint() == endpoint {
			return s, true
		}
	}
	return "", false
}
