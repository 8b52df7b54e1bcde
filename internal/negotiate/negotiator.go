// Package negotiate resolves which protocol version each integration link
// speaks and projects its records into a NegotiatedRequest.
package negotiate

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/schema"
)

// State is the negotiation result kind for a link
type State string

const (
	NotReady State = "not-ready"
	Ready    State = "ready"
	Failed   State = "failed"
)

// Outcome is the negotiation result for one link
type Outcome struct {
	LinkID  int
	State   State
	Request *model.NegotiatedRequest
	Err     error
}

// Negotiator negotiates links against the record codec
type Negotiator struct {
	codec  *schema.Validator
	logger *slog.Logger
}

// NewNegotiator creates a negotiator
func NewNegotiator(codec *schema.Validator, logger *slog.Logger) *Negotiator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Negotiator{codec: codec, logger: logger}
}

// Ready reports whether the link negotiates to a request
func (n *Negotiator) Ready(link *model.IntegrationLink) bool {
	return n.Negotiate(link).State == Ready
}

// Failed reports whether the link holds data that cannot be negotiated
func (n *Negotiator) Failed(link *model.IntegrationLink) bool {
	return n.Negotiate(link).State == Failed
}

// Negotiate resolves the link's protocol and validates its records
func (n *Negotiator) Negotiate(link *model.IntegrationLink) Outcome {
	var out Outcome
	switch link.Style {
	case model.StylePerApp:
		out = n.perApp(link)
	case model.StylePerInstance:
		out = n.perInstance(link)
	case model.StyleRaw:
		out = n.raw(link)
	default:
		out = Outcome{State: Failed, Err: fmt.Errorf("link %d: unknown style %q", link.ID, link.Style)}
	}
	out.LinkID = link.ID
	if out.State == Failed {
		n.logger.Warn("link negotiation failed", "link", link.ID, "app", link.App, "style", link.Style, "error", out.Err)
	}
	return out
}

func failed(err error) Outcome { return Outcome{State: Failed, Err: err} }

func ready(req *model.NegotiatedRequest) Outcome { return Outcome{State: Ready, Request: req} }

// hasCurrentData reports whether any instance published current-version data
func hasCurrentData(link *model.IntegrationLink) bool {
	for _, inst := range link.Instances {
		if strings.TrimSpace(inst.Data["host"]) != "" {
			return true
		}
	}
	return false
}

func hasLegacyData(link *model.IntegrationLink) bool {
	return strings.TrimSpace(link.AppRecord["host"]) != ""
}

func (n *Negotiator) perApp(link *model.IntegrationLink) Outcome {
	switch {
	case hasCurrentData(link):
		return n.perAppCurrent(link)
	case hasLegacyData(link):
		return n.perAppLegacy(link)
	default:
		return Outcome{State: NotReady}
	}
}

func (n *Negotiator) perAppCurrent(link *model.IntegrationLink) Outcome {
	if len(link.AppRecord) == 0 {
		return Outcome{State: NotReady}
	}
	app, err := n.codec.DecodeIngressV2(link.ID, link.AppRecord)
	if err != nil {
		return failed(err)
	}

	req := &model.NegotiatedRequest{
		LinkID:        link.ID,
		App:           link.App,
		Style:         model.StylePerApp,
		Version:       model.VersionIngressV2,
		Model:         app.Model,
		Name:          app.Name,
		Scheme:        app.Scheme,
		StripPrefix:   app.StripPrefix,
		RedirectHTTPS: app.RedirectHTTPS,
	}
	if !app.HealthCheck.Empty() {
		hc := *app.HealthCheck
		req.HealthCheck = &hc
	}

	for _, inst := range link.Instances {
		if strings.TrimSpace(inst.Data["host"]) == "" {
			continue
		}
		unit, err := n.codec.DecodeIngressV2Unit(link.ID, inst.Data)
		if err != nil {
			return failed(fmt.Errorf("instance %s: %w", inst.Name, err))
		}
		port := unit.Port
		if port == 0 {
			port = app.Port
		}
		if port == 0 {
			return failed(&faults.ValidationFailure{
				LinkID:  link.ID,
				Version: model.VersionIngressV2,
				Field:   "port",
				Err:     fmt.Errorf("instance %s has no port and the application record sets none", inst.Name),
			})
		}
		req.Backends = append(req.Backends, model.Backend{Instance: inst.Name, Host: unit.Host, Port: port})
	}
	return ready(req)
}

func (n *Negotiator) perAppLegacy(link *model.IntegrationLink) Outcome {
	app, err := n.codec.DecodeIngressV1(link.ID, link.AppRecord)
	if err != nil {
		return failed(err)
	}
	return ready(&model.NegotiatedRequest{
		LinkID:        link.ID,
		App:           link.App,
		Style:         model.StylePerApp,
		Version:       model.VersionIngressV1,
		Model:         app.Model,
		Name:          app.Name,
		Scheme:        "http",
		StripPrefix:   app.StripPrefix,
		RedirectHTTPS: app.RedirectHTTPS,
		Backends:      []model.Backend{{Instance: link.App, Host: app.Host, Port: app.Port}},
	})
}

// uniform holds the values every instance of a link must agree on
type uniform struct {
	instance string
	values   map[string]string
}

func (n *Negotiator) perInstance(link *model.IntegrationLink) Outcome {
	req := &model.NegotiatedRequest{
		LinkID:  link.ID,
		App:     link.App,
		Style:   model.StylePerInstance,
		Version: model.VersionIngressPerUnitV1,
	}

	var first *uniform
	for _, inst := range link.Instances {
		if len(inst.Data) == 0 {
			continue
		}
		unit, err := n.codec.DecodePerUnit(link.ID, inst.Data)
		if err != nil {
			return failed(fmt.Errorf("instance %s: %w", inst.Name, err))
		}

		values := map[string]string{
			"model":   unit.Model,
			"mode":    unit.Mode,
			"version": inst.Data[schema.SupportedVersionsKey],
		}
		if first == nil {
			first = &uniform{instance: inst.Name, values: values}
		} else {
			for _, field := range []string{"model", "mode", "version"} {
				if values[field] != first.values[field] {
					n.logger.Error("instance disagrees with link",
						"link", link.ID, "instance", inst.Name, "field", field,
						"want", first.values[field], "got", values[field], "authoritative", first.instance)
					return failed(&faults.ProtocolMismatch{
						LinkID:   link.ID,
						Instance: inst.Name,
						Field:    field,
						Want:     first.values[field],
						Got:      values[field],
					})
				}
			}
		}

		req.Instances = append(req.Instances, model.InstanceRequest{
			Instance:      inst.Name,
			Model:         unit.Model,
			Name:          unit.Name,
			Host:          unit.Host,
			Port:          unit.Port,
			Mode:          unit.Mode,
			Scheme:        unit.Scheme,
			StripPrefix:   unit.StripPrefix,
			RedirectHTTPS: unit.RedirectHTTPS,
		})
	}

	if first == nil {
		return Outcome{State: NotReady}
	}
	req.Model = first.values["model"]
	return ready(req)
}

func (n *Negotiator) raw(link *model.IntegrationLink) Outcome {
	if strings.TrimSpace(link.AppRecord["config"]) == "" {
		return Outcome{State: NotReady}
	}
	route, err := n.codec.DecodeRoute(link.ID, link.AppRecord)
	if err != nil {
		return failed(err)
	}
	return ready(&model.NegotiatedRequest{
		LinkID:    link.ID,
		App:       link.App,
		Style:     model.StyleRaw,
		Version:   model.VersionRouteV0,
		RawConfig: route.Config,
		RawStatic: route.Static,
	})
}
