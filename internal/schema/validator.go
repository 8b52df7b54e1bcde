package schema

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed schemas/*.schema.yaml
var schemaFS embed.FS

const schemaBaseURL = "mem://edgeroute/schemas/"

// Schema names, one per record shape
const (
	IngressV2App       = "ingress-v2-app"
	IngressV2Unit      = "ingress-v2-unit"
	IngressV1App       = "ingress-v1-app"
	IngressPerUnitUnit = "ingress-per-unit-v1-unit"
	RouteV0App         = "traefik-route-v0-app"

	// Snapshot is the host snapshot file read by the loader
	Snapshot = "snapshot"
)

var schemaNames = []string{IngressV2App, IngressV2Unit, IngressV1App, IngressPerUnitUnit, RouteV0App, Snapshot}

// Validator holds the compiled record schemas
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// NewValidator compiles every embedded record schema
func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.LoadURL = loadEmbedded

	v := &Validator{schemas: make(map[string]*jsonschema.Schema, len(schemaNames))}
	for _, name := range schemaNames {
		s, err := compiler.Compile(schemaBaseURL + name + ".schema.yaml")
		if err != nil {
			return nil, fmt.Errorf("failed to compile %s schema: %w", name, err)
		}
		v.schemas[name] = s
	}
	return v, nil
}

// Validate checks a decoded document against the named schema.
// On failure the returned Violation locates the first offending field.
func (v *Validator) Validate(name string, doc any) error {
	s, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("schema %s not loaded", name)
	}
	if err := s.Validate(doc); err != nil {
		return toViolation(err)
	}
	return nil
}

// Violation is a schema violation at one instance location
type Violation struct {
	Field   string
	Message string
}

func (e *Violation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func toViolation(err error) error {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return err
	}
	leaf := ve
	for len(leaf.Causes) > 0 {
		leaf = leaf.Causes[0]
	}
	field := strings.ReplaceAll(strings.TrimPrefix(leaf.InstanceLocation, "/"), "/", ".")
	return &Violation{Field: field, Message: leaf.Message}
}

// loadEmbedded resolves schema urls against the embedded schema files,
// converting YAML sources to JSON for the compiler
func loadEmbedded(url string) (io.ReadCloser, error) {
	if !strings.HasPrefix(url, schemaBaseURL) {
		return nil, fmt.Errorf("schema %s not found", url)
	}
	data, err := schemaFS.ReadFile("schemas/" + strings.TrimPrefix(url, schemaBaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to read schema file: %w", err)
	}

	var schemaData interface{}
	if err := yaml.Unmarshal(data, &schemaData); err != nil {
		return nil, fmt.Errorf("failed to parse schema file: %w", err)
	}

	jsonData, err := json.Marshal(schemaData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	return io.NopCloser(bytes.NewReader(jsonData)), nil
}
