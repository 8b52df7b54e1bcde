// Package loader reads and writes the host snapshot: the settings, links
// and peer records a reconciliation pass works from.
package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sourceplane/edgeroute/internal/config"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/reconcile"
	"github.com/sourceplane/edgeroute/internal/route"
	"github.com/sourceplane/edgeroute/internal/schema"
	"gopkg.in/yaml.v3"
)

// Snapshot is the host's view of the deployment
type Snapshot struct {
	Settings            config.Settings        `yaml:"settings"`
	Leader              bool                   `yaml:"leader"`
	LoadBalancerAddress string                 `yaml:"loadBalancerAddress,omitempty"`
	Certificate         *reconcile.Certificate `yaml:"certificate,omitempty"`
	ForwardAuth         *route.ForwardAuth     `yaml:"forwardAuth,omitempty"`
	Links               []*Link                `yaml:"links"`
}

// Link is one integration link as recorded in the snapshot
type Link struct {
	ID        int                    `yaml:"id"`
	Endpoint  string                 `yaml:"endpoint"`
	App       string                 `yaml:"app"`
	Closing   bool                   `yaml:"closing,omitempty"`
	AppRecord model.Record           `yaml:"app_record,omitempty"`
	Units     []model.InstanceRecord `yaml:"units,omitempty"`

	// Local holds the values published by this side
	Local model.Record `yaml:"local,omitempty"`
}

// Loader parses snapshots, validating them against the snapshot schema
type Loader struct {
	validator *schema.Validator
}

// NewLoader creates a loader
func NewLoader(v *schema.Validator) *Loader {
	return &Loader{validator: v}
}

// Load reads and parses a snapshot file
func (l *Loader) Load(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot file: %w", err)
	}
	snap, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return snap, nil
}

// Parse decodes and validates snapshot YAML
func (l *Loader) Parse(data []byte) (*Snapshot, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return &Snapshot{}, nil
	}

	var raw interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot YAML: %w", err)
	}
	doc, err := toJSON(raw)
	if err != nil {
		return nil, err
	}
	if err := l.validator.Validate(schema.Snapshot, doc); err != nil {
		return nil, fmt.Errorf("invalid snapshot: %w", err)
	}

	var snap Snapshot
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse snapshot YAML: %w", err)
	}
	return &snap, nil
}

// toJSON converts a YAML document into the JSON value model the schema
// validator expects
func toJSON(raw interface{}) (interface{}, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to convert snapshot: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc interface{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to convert snapshot: %w", err)
	}
	return doc, nil
}

// Input converts the snapshot for a reconciliation pass. The returned
// links are independent copies; use Update to carry published values back.
func (s *Snapshot) Input() (*reconcile.Input, error) {
	in := &reconcile.Input{
		Settings:            s.Settings,
		Leader:              s.Leader,
		LoadBalancerAddress: s.LoadBalancerAddress,
		Certificate:         s.Certificate,
		ForwardAuth:         s.ForwardAuth,
	}
	for _, l := range s.Links {
		style, ok := model.StyleForEndpoint(l.Endpoint)
		if !ok {
			return nil, fmt.Errorf("link %d: unknown endpoint %q", l.ID, l.Endpoint)
		}
		units := make([]model.InstanceRecord, 0, len(l.Units))
		for _, u := range l.Units {
			units = append(units, model.InstanceRecord{Name: u.Name, Data: u.Data.Clone()})
		}
		in.Links = append(in.Links, &model.IntegrationLink{
			ID:        l.ID,
			App:       l.App,
			Style:     style,
			AppRecord: l.AppRecord.Clone(),
			Instances: units,
			Published: l.Local.Clone(),
			Closing:   l.Closing,
		})
	}
	return in, nil
}

// Update copies the values published during a pass back into the
// snapshot. It reports whether anything changed.
func (s *Snapshot) Update(in *reconcile.Input) bool {
	byID := make(map[int]*Link, len(s.Links))
	for _, l := range s.Links {
		byID[l.ID] = l
	}

	changed := false
	for _, link := range in.Links {
		l, ok := byID[link.ID]
		if !ok || recordsEqual(l.Local, link.Published) {
			continue
		}
		l.Local = link.Published.Clone()
		if len(l.Local) == 0 {
			l.Local = nil
		}
		changed = true
	}
	return changed
}

func recordsEqual(a, b model.Record) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if w, ok := b[k]; !ok || w != v {
			return false
		}
	}
	return true
}

// Marshal renders the snapshot as YAML
func (s *Snapshot) Marshal() ([]byte, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to render snapshot: %w", err)
	}
	return data, nil
}

// Write stores the snapshot at path and returns the written bytes
func Write(path string, s *Snapshot) ([]byte, error) {
	data, err := s.Marshal()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write snapshot: %w", err)
	}
	return data, nil
}
