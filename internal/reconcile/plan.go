package reconcile

import (
	"fmt"
	"path"

	"github.com/sourceplane/edgeroute/internal/config"
	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/merge"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/negotiate"
	"github.com/sourceplane/edgeroute/internal/render"
	"github.com/sourceplane/edgeroute/internal/route"
)

// Certificate is the served edge certificate, PEM encoded
type Certificate struct {
	Cert string `yaml:"cert" json:"cert"`
	Key  string `yaml:"key" json:"key"`
}

// Input is everything the host knows at the time of a notification
type Input struct {
	Settings            config.Settings
	Links               []*model.IntegrationLink
	Leader              bool
	LoadBalancerAddress string
	Certificate         *Certificate
	ForwardAuth         *route.ForwardAuth
}

// LinkPlan is the computed target state of one link
type LinkPlan struct {
	Link     *model.IntegrationLink
	Closing  bool
	Outcome  negotiate.Outcome
	Fragment *model.RouteFragment
	File     string
	Data     []byte
	Err      error
}

// Ready reports whether the link has a fragment to serve
func (lp *LinkPlan) Ready() bool {
	return !lp.Closing && lp.Err == nil && lp.Fragment != nil
}

// Failed reports whether the link holds data that could not be served
func (lp *LinkPlan) Failed() bool {
	return !lp.Closing && lp.Err != nil
}

// Plan is the complete target configuration of one pass. It is computed
// without touching the workload.
type Plan struct {
	Settings     config.Settings
	ExternalHost string
	Globals      route.Globals
	Links        []*LinkPlan
	Static       map[string]any
	StaticData   []byte
	Conflicts    []faults.MergeConflict

	// Contributions holds the static contribution of every link whose
	// contribution is part of Static, keyed by link id
	Contributions map[int]Contribution

	dynamicDir string
}

// Contribution is what a link adds to the static document
type Contribution struct {
	EntryPoints map[string]model.EntryPoint `yaml:"entryPoints,omitempty"`
	Static      map[string]any              `yaml:"static,omitempty"`
}

func (c Contribution) empty() bool {
	return len(c.EntryPoints) == 0 && len(c.Static) == 0
}

// Fragments returns the fragments of ready links in link order
func (p *Plan) Fragments() []*model.RouteFragment {
	var out []*model.RouteFragment
	for _, lp := range p.Links {
		if lp.Ready() {
			out = append(out, lp.Fragment)
		}
	}
	return out
}

// Link returns the plan of the given link
func (p *Plan) Link(id int) (*LinkPlan, bool) {
	for _, lp := range p.Links {
		if lp.Link.ID == id {
			return lp, true
		}
	}
	return nil, false
}

// Planner negotiates and compiles every link of an input
type Planner struct {
	negotiator *negotiate.Negotiator
	dynamicDir string
}

// NewPlanner creates a planner writing fragments under dynamicDir
func NewPlanner(negotiator *negotiate.Negotiator, dynamicDir string) *Planner {
	return &Planner{negotiator: negotiator, dynamicDir: dynamicDir}
}

// ExternalHost resolves the address routes are published under
func ExternalHost(in *Input) string {
	if in.Settings.ExternalHostname != "" {
		return in.Settings.ExternalHostname
	}
	return in.LoadBalancerAddress
}

// Plan computes the target state for in. Links inside a closing scope
// and links the host marked as closing are planned for removal. Invalid
// settings are returned as a ConfigurationInvalid error.
func (p *Planner) Plan(scope Scope, in *Input) (*Plan, error) {
	arena, err := model.NewArena(in.Links)
	if err != nil {
		return nil, err
	}

	settings := in.Settings
	config.ApplySettingsDefaults(&settings)
	external := ExternalHost(in)
	if err := config.ValidateSettings(settings, external); err != nil {
		return nil, err
	}

	plan := &Plan{
		Settings:     settings,
		ExternalHost: external,
		dynamicDir:   p.dynamicDir,
		Globals: route.Globals{
			RoutingMode:   settings.RoutingMode,
			ExternalHost:  external,
			TLSEnabled:    in.Certificate != nil,
			BasicAuthUser: settings.BasicAuthUser,
		},
	}
	if settings.EnableExperimentalForwardAuth {
		plan.Globals.ForwardAuth = in.ForwardAuth
	}

	for _, link := range arena.Links() {
		lp := &LinkPlan{
			Link:    link,
			Closing: link.Closing || (scope.Kind == ScopeClose && scope.LinkID == link.ID),
			File:    path.Join(p.dynamicDir, render.FragmentFileName(link.Style, link.ID, link.App)),
		}
		plan.Links = append(plan.Links, lp)
		if lp.Closing {
			continue
		}

		lp.Outcome = p.negotiator.Negotiate(link)
		switch lp.Outcome.State {
		case negotiate.Failed:
			lp.Err = lp.Outcome.Err
			continue
		case negotiate.NotReady:
			continue
		}
		if external == "" && link.Style != model.StyleRaw {
			continue
		}

		frag, err := route.Compile(lp.Outcome.Request, plan.Globals)
		if err != nil {
			lp.Err = err
			continue
		}
		data, err := render.RenderFragment(frag)
		if err != nil {
			lp.Err = err
			continue
		}
		lp.Fragment, lp.Data = frag, data
	}

	if err := plan.Carry(nil); err != nil {
		return nil, err
	}
	return plan, nil
}

// Carry merges the static document from the ready links and, for failed
// links, their contribution in prior
func (p *Plan) Carry(prior map[int]Contribution) error {
	entryPoints := map[string]model.EntryPoint{}
	var statics []model.StaticFragment
	p.Contributions = map[int]Contribution{}

	for _, lp := range p.Links {
		var c Contribution
		switch {
		case lp.Ready():
			c = Contribution{EntryPoints: lp.Fragment.EntryPoints, Static: lp.Fragment.Static}
		case lp.Failed():
			c = prior[lp.Link.ID]
		}
		if c.empty() {
			continue
		}
		p.Contributions[lp.Link.ID] = c
		for name, ep := range c.EntryPoints {
			entryPoints[name] = ep
		}
		if len(c.Static) > 0 {
			statics = append(statics, model.StaticFragment{Owner: model.LinkOwner(lp.Link.ID), Doc: c.Static})
		}
	}

	baseline := merge.Baseline(merge.BaselineParams{
		LogLevel:       p.Settings.StaticLogLevel,
		DynamicDir:     p.dynamicDir,
		TCPEntryPoints: entryPoints,
	})
	p.Static, p.Conflicts = merge.Merge(baseline, statics)
	data, err := render.RenderYAML(p.Static)
	if err != nil {
		return fmt.Errorf("failed to render static config: %w", err)
	}
	p.StaticData = data
	return nil
}
