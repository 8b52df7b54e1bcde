package schema

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/model"
	"gopkg.in/yaml.v3"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindBool
	kindObject
	kindYAML
)

type fields map[string]kind

var ingressV2AppFields = fields{
	"model":              kindString,
	"name":               kindString,
	"port":               kindInt,
	"scheme":             kindString,
	"strip-prefix":       kindBool,
	"redirect-https":     kindBool,
	"healthcheck-params": kindObject,
}

var ingressV2UnitFields = fields{
	"host": kindString,
	"ip":   kindString,
	"port": kindInt,
}

var ingressV1AppFields = fields{
	"model":          kindString,
	"name":           kindString,
	"host":           kindString,
	"port":           kindInt,
	"strip-prefix":   kindBool,
	"redirect-https": kindBool,
}

var perUnitFields = fields{
	"model":          kindString,
	"name":           kindString,
	"host":           kindString,
	"port":           kindInt,
	"mode":           kindString,
	"scheme":         kindString,
	"strip-prefix":   kindBool,
	"redirect-https": kindBool,
}

var routeFields = fields{
	"config": kindYAML,
	"static": kindYAML,
}

// AppDataV2 is the current per-app application record
type AppDataV2 struct {
	Model         string             `json:"model"`
	Name          string             `json:"name"`
	Port          int                `json:"port"`
	Scheme        string             `json:"scheme"`
	StripPrefix   bool               `json:"strip-prefix"`
	RedirectHTTPS bool               `json:"redirect-https"`
	HealthCheck   *model.HealthCheck `json:"healthcheck-params"`
}

// UnitDataV2 is the current per-app instance record
type UnitDataV2 struct {
	Host string `json:"host"`
	IP   string `json:"ip"`
	Port int    `json:"port"`
}

// AppDataV1 is the legacy per-app application record
type AppDataV1 struct {
	Model         string `json:"model"`
	Name          string `json:"name"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	StripPrefix   bool   `json:"strip-prefix"`
	RedirectHTTPS bool   `json:"redirect-https"`
}

// UnitData is a per-instance record
type UnitData struct {
	Model         string `json:"model"`
	Name          string `json:"name"`
	Host          string `json:"host"`
	Port          int    `json:"port"`
	Mode          string `json:"mode"`
	Scheme        string `json:"scheme"`
	StripPrefix   bool   `json:"strip-prefix"`
	RedirectHTTPS bool   `json:"redirect-https"`
}

// RouteData is a raw routing record
type RouteData struct {
	Config map[string]any
	Static map[string]any
}

// DecodeIngressV2 decodes and validates a current per-app application record
func (v *Validator) DecodeIngressV2(linkID int, rec model.Record) (*AppDataV2, error) {
	out := &AppDataV2{}
	if err := v.decode(linkID, model.VersionIngressV2, IngressV2App, rec, ingressV2AppFields, out); err != nil {
		return nil, err
	}
	if out.Scheme == "" {
		out.Scheme = "http"
	}
	return out, nil
}

// DecodeIngressV2Unit decodes and validates a current per-app instance record
func (v *Validator) DecodeIngressV2Unit(linkID int, rec model.Record) (*UnitDataV2, error) {
	out := &UnitDataV2{}
	if err := v.decode(linkID, model.VersionIngressV2, IngressV2Unit, rec, ingressV2UnitFields, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodeIngressV1 decodes and validates a legacy per-app application record
func (v *Validator) DecodeIngressV1(linkID int, rec model.Record) (*AppDataV1, error) {
	out := &AppDataV1{}
	if err := v.decode(linkID, model.VersionIngressV1, IngressV1App, rec, ingressV1AppFields, out); err != nil {
		return nil, err
	}
	return out, nil
}

// DecodePerUnit decodes and validates a per-instance record
func (v *Validator) DecodePerUnit(linkID int, rec model.Record) (*UnitData, error) {
	out := &UnitData{}
	if err := v.decode(linkID, model.VersionIngressPerUnitV1, IngressPerUnitUnit, rec, perUnitFields, out); err != nil {
		return nil, err
	}
	if out.Mode == "" {
		out.Mode = model.ModeHTTP
	}
	if out.Scheme == "" {
		out.Scheme = "http"
	}
	return out, nil
}

// DecodeRoute decodes and validates a raw routing record. The returned
// documents keep the types produced by the YAML decoder.
func (v *Validator) DecodeRoute(linkID int, rec model.Record) (*RouteData, error) {
	doc, raw, err := decodeFields(rec, routeFields)
	if err != nil {
		return nil, &faults.ValidationFailure{LinkID: linkID, Version: model.VersionRouteV0, Field: err.field, Err: err.err}
	}
	if err := v.Validate(RouteV0App, doc); err != nil {
		return nil, violationFailure(linkID, model.VersionRouteV0, err)
	}
	out := &RouteData{}
	out.Config, _ = raw["config"].(map[string]any)
	out.Static, _ = raw["static"].(map[string]any)
	return out, nil
}

func (v *Validator) decode(linkID int, version, schemaName string, rec model.Record, kinds fields, out any) error {
	doc, _, ferr := decodeFields(rec, kinds)
	if ferr != nil {
		return &faults.ValidationFailure{LinkID: linkID, Version: version, Field: ferr.field, Err: ferr.err}
	}
	if err := v.Validate(schemaName, doc); err != nil {
		return violationFailure(linkID, version, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return &faults.ValidationFailure{LinkID: linkID, Version: version, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &faults.ValidationFailure{LinkID: linkID, Version: version, Err: err}
	}
	return nil
}

func violationFailure(linkID int, version string, err error) error {
	vf := &faults.ValidationFailure{LinkID: linkID, Version: version, Err: err}
	var v *Violation
	if errors.As(err, &v) {
		vf.Field = v.Field
		vf.Err = fmt.Errorf("%s", v.Message)
	}
	return vf
}

type fieldError struct {
	field string
	err   error
}

// decodeFields turns wire strings into JSON-compatible values for schema
// validation. Values may be plain scalars or JSON encoded; ones that do
// not parse as their kind are kept as strings so the schema reports them.
// The second result holds YAML fields with their native decoded types.
func decodeFields(rec model.Record, kinds fields) (map[string]any, map[string]any, *fieldError) {
	doc := make(map[string]any, len(rec))
	raw := make(map[string]any)
	for _, key := range rec.Keys() {
		value := rec[key]
		k, known := kinds[key]
		if !known {
			doc[key] = value
			continue
		}
		switch k {
		case kindString:
			doc[key] = unquote(value)
		case kindInt:
			s := strings.TrimSpace(unquote(value))
			if n, err := strconv.Atoi(s); err == nil {
				doc[key] = json.Number(strconv.Itoa(n))
			} else {
				doc[key] = value
			}
		case kindBool:
			if b, err := strconv.ParseBool(strings.TrimSpace(unquote(value))); err == nil {
				doc[key] = b
			} else {
				doc[key] = value
			}
		case kindObject:
			var obj any
			if err := decodeJSON([]byte(value), &obj); err == nil {
				doc[key] = obj
			} else {
				doc[key] = value
			}
		case kindYAML:
			if strings.TrimSpace(value) == "" {
				continue
			}
			var native any
			if err := yaml.Unmarshal([]byte(value), &native); err != nil {
				return nil, nil, &fieldError{field: key, err: fmt.Errorf("failed to parse YAML: %w", err)}
			}
			normalized, err := normalize(native)
			if err != nil {
				return nil, nil, &fieldError{field: key, err: err}
			}
			raw[key] = native
			doc[key] = normalized
		}
	}
	return doc, raw, nil
}

// unquote strips one level of JSON string encoding, if present
func unquote(value string) string {
	if len(value) < 2 || value[0] != '"' {
		return value
	}
	var s string
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return value
	}
	return s
}

func decodeJSON(data []byte, out *any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	return dec.Decode(out)
}

// normalize converts YAML decoded values into the JSON value space
func normalize(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}
	var out any
	if err := decodeJSON(data, &out); err != nil {
		return nil, fmt.Errorf("failed to convert to JSON: %w", err)
	}
	return out, nil
}
