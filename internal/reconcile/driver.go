// Package reconcile drives the proxy workload towards the configuration
// implied by the current integration links.
package reconcile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/google/uuid"
	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/metrics"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/render"
	"github.com/sourceplane/edgeroute/internal/schema"
	"github.com/sourceplane/edgeroute/internal/status"
	"github.com/sourceplane/edgeroute/internal/workload"
)

// Options locates the managed files on the workload
type Options struct {
	DynamicDir string
	StaticPath string
	// AppliedPath defaults to a record next to the static file
	AppliedPath string
}

// Driver runs one reconciliation pass per notification. Passes must not
// overlap; the driver keeps no state between them.
type Driver struct {
	workload workload.Workload
	planner  *Planner
	metrics  *metrics.Collector
	logger   *slog.Logger
	opts     Options
}

// NewDriver creates a driver. metrics may be nil.
func NewDriver(wl workload.Workload, planner *Planner, m *metrics.Collector, logger *slog.Logger, opts Options) *Driver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.AppliedPath == "" {
		opts.AppliedPath = path.Join(path.Dir(opts.StaticPath), render.AppliedFile)
	}
	return &Driver{workload: wl, planner: planner, metrics: m, logger: logger, opts: opts}
}

// pass carries the mutable bookkeeping of one reconciliation pass
type pass struct {
	ctx    context.Context
	logger *slog.Logger
	report *Report
	in     *Input
	files  map[string][]byte
}

// Reconcile handles one notification. Per-link problems are recorded on
// the report; an error is only returned when the pass could not run.
func (d *Driver) Reconcile(ctx context.Context, n model.Notification, in *Input) (*Report, error) {
	scope := Classify(n)
	rep := &Report{PassID: uuid.NewString(), Notification: n, Scope: scope}
	logger := d.logger.With("pass", rep.PassID, "notification", string(n.Kind), "scope", scope.String())

	if scope.Kind == ScopeNone {
		logger.Debug("notification ignored")
		return rep, nil
	}

	p := &pass{ctx: ctx, logger: logger, report: rep, in: in}
	err := d.run(p)
	if faults.IsWorkloadUnreachable(err) {
		logger.Warn("workload unreachable, leaving artifacts in place", "error", err)
		if rep.Status.Level != status.Blocked {
			rep.Status = status.Project(status.Facts{WorkloadReachable: false})
		}
		err = nil
	}
	d.record(rep)
	if err != nil {
		return rep, err
	}
	logger.Info("reconciled", "status", rep.Status.String(), "restarted", rep.Restarted,
		"written", len(rep.Written), "removed", len(rep.Removed))
	return rep, nil
}

func (d *Driver) run(p *pass) error {
	plan, err := d.planner.Plan(p.report.Scope, p.in)
	if err != nil {
		var invalid *faults.ConfigurationInvalid
		if errors.As(err, &invalid) {
			return d.failClosed(p, invalid)
		}
		return err
	}
	p.report.Plan = plan

	if !d.workload.CanConnect(p.ctx) {
		return &faults.WorkloadUnreachable{Op: "connect"}
	}

	if plan.ExternalHost == "" {
		p.logger.Warn("external address unavailable")
		for _, lp := range plan.Links {
			d.clearPublished(p, lp.Link, lp.Closing)
		}
		d.project(p, plan)
		return nil
	}

	if err := d.loadFiles(p); err != nil {
		return err
	}

	recData, err := d.pull(p, d.opts.AppliedPath)
	if err != nil {
		return err
	}
	rec := parseApplied(recData)
	if err := plan.Carry(rec.Links); err != nil {
		return err
	}
	current, err := d.pull(p, d.opts.StaticPath)
	if err != nil {
		return err
	}
	for _, c := range plan.Conflicts {
		p.logger.Warn("static fragment discarded", "owner", c.Owner, "path", c.Path)
	}

	if !bytes.Equal(current, plan.StaticData) || rec.Digest != digest(plan.StaticData) {
		err = d.restartWithStatic(p, plan)
	} else {
		err = d.writeAffected(p, plan)
	}
	if err != nil {
		return err
	}
	if err := d.writeApplied(p, plan, recData); err != nil {
		return err
	}

	if p.report.Scope.Kind == ScopeAll || p.report.Restarted {
		if err := d.syncCertificate(p); err != nil {
			return err
		}
	}

	for _, lp := range plan.Links {
		if p.report.Restarted || p.report.Scope.Affects(lp.Link.ID) {
			if err := d.publish(p, lp); err != nil {
				return err
			}
		}
	}
	d.project(p, plan)
	return nil
}

// failClosed withdraws all routing while the settings are invalid
func (d *Driver) failClosed(p *pass, invalid *faults.ConfigurationInvalid) error {
	p.logger.Error("invalid configuration, withdrawing all routes", "key", invalid.Key, "reason", invalid.Reason)
	p.report.Status = status.Project(status.Facts{ConfigError: invalid})

	for _, link := range p.in.Links {
		d.clearPublished(p, link, false)
	}
	if !d.workload.CanConnect(p.ctx) {
		return nil
	}
	if err := d.loadFiles(p); err != nil {
		return err
	}
	for name := range p.files {
		if render.IsFragmentFile(path.Base(name)) {
			if err := d.remove(p, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// restartWithStatic applies a changed static document: every dynamic
// fragment is removed, the static file pushed and the workload restarted
// before ready fragments are written again. Fragments of failed links
// stay in place throughout.
func (d *Driver) restartWithStatic(p *pass, plan *Plan) error {
	p.logger.Info("static configuration changed, restarting workload")
	kept := map[int]bool{}
	for _, lp := range plan.Links {
		if lp.Failed() {
			kept[lp.Link.ID] = true
		}
	}

	for name := range p.files {
		base := path.Base(name)
		if !render.IsFragmentFile(base) {
			continue
		}
		if id, ok := render.FragmentLinkID(base); ok && kept[id] {
			continue
		}
		if err := d.remove(p, name); err != nil {
			return err
		}
	}
	if err := d.push(p, d.opts.StaticPath, plan.StaticData); err != nil {
		return err
	}
	if err := d.workload.Restart(p.ctx); err != nil {
		return fmt.Errorf("failed to restart workload: %w", err)
	}
	p.report.Restarted = true
	if d.metrics != nil {
		d.metrics.Restart()
	}

	for _, lp := range plan.Links {
		if lp.Ready() {
			if err := d.push(p, lp.File, lp.Data); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeApplied records the static document the workload now runs with
func (d *Driver) writeApplied(p *pass, plan *Plan, current []byte) error {
	data, err := newApplied(plan).marshal()
	if err != nil {
		return err
	}
	if bytes.Equal(current, data) {
		return nil
	}
	return d.push(p, d.opts.AppliedPath, data)
}

// writeAffected converges the fragment files of links within scope
func (d *Driver) writeAffected(p *pass, plan *Plan) error {
	scope := p.report.Scope
	known := map[int]bool{}
	for _, lp := range plan.Links {
		known[lp.Link.ID] = true
		if !scope.Affects(lp.Link.ID) && !d.missing(p, lp) {
			continue
		}
		if err := d.converge(p, lp); err != nil {
			return err
		}
	}

	if scope.Kind == ScopeClose && !known[scope.LinkID] {
		for _, name := range d.filesOf(p, scope.LinkID) {
			if err := d.remove(p, name); err != nil {
				return err
			}
		}
	}

	if scope.Kind == ScopeAll {
		for name := range p.files {
			base := path.Base(name)
			if !render.IsFragmentFile(base) {
				continue
			}
			if id, ok := render.FragmentLinkID(base); ok && known[id] {
				continue
			}
			p.logger.Info("removing orphaned fragment", "file", name)
			if err := d.remove(p, name); err != nil {
				return err
			}
		}
	}
	return nil
}

// missing reports whether a ready link has lost its fragment file
func (d *Driver) missing(p *pass, lp *LinkPlan) bool {
	if !lp.Ready() {
		return false
	}
	_, ok := p.files[lp.File]
	return !ok
}

func (d *Driver) converge(p *pass, lp *LinkPlan) error {
	logger := p.logger.With("link", lp.Link.ID, "app", lp.Link.App, "style", string(lp.Link.Style))
	switch {
	case lp.Failed():
		logger.Warn("leaving fragment untouched for failed link", "error", lp.Err)
		return nil
	case lp.Ready():
		for _, name := range d.filesOf(p, lp.Link.ID) {
			if name != lp.File {
				if err := d.remove(p, name); err != nil {
					return err
				}
			}
		}
		if current, ok := p.files[lp.File]; ok && bytes.Equal(current, lp.Data) {
			logger.Debug("fragment unchanged")
			return nil
		}
		return d.push(p, lp.File, lp.Data)
	default:
		for _, name := range d.filesOf(p, lp.Link.ID) {
			if err := d.remove(p, name); err != nil {
				return err
			}
		}
		return nil
	}
}

// syncCertificate writes or removes the edge tls material
func (d *Driver) syncCertificate(p *pass) error {
	dir := d.opts.DynamicDir
	certPath := path.Join(dir, render.CertFile)
	keyPath := path.Join(dir, render.KeyFile)
	tlsPath := path.Join(dir, render.CertificatesFile)

	if p.in.Certificate == nil {
		for _, name := range []string{tlsPath, certPath, keyPath} {
			if _, ok := p.files[name]; ok {
				if err := d.remove(p, name); err != nil {
					return err
				}
			}
		}
		return nil
	}

	tlsDoc, err := render.RenderYAML(render.TLSDocument(dir))
	if err != nil {
		return err
	}
	for _, f := range []struct {
		name string
		data []byte
	}{
		{certPath, []byte(p.in.Certificate.Cert)},
		{keyPath, []byte(p.in.Certificate.Key)},
		{tlsPath, tlsDoc},
	} {
		if current, ok := p.files[f.name]; ok && bytes.Equal(current, f.data) {
			continue
		}
		if err := d.push(p, f.name, f.data); err != nil {
			return err
		}
	}
	return nil
}

// publish writes the link's published url, when this unit is the leader
func (d *Driver) publish(p *pass, lp *LinkPlan) error {
	link := lp.Link
	switch {
	case lp.Closing:
		d.clearPublished(p, link, true)
		return nil
	case lp.Failed():
		return nil
	}
	if !p.in.Leader {
		return nil
	}
	if link.Published == nil {
		link.Published = model.Record{}
	}

	if link.Style == model.StylePerInstance {
		versions, err := schema.EncodeSupportedVersions("v1")
		if err != nil {
			return err
		}
		link.Published[schema.SupportedVersionsKey] = versions
	}
	if !lp.Ready() || link.Style == model.StyleRaw {
		delete(link.Published, schema.PublishedKey)
		return nil
	}

	value, err := encodeURL(lp)
	if err != nil {
		return err
	}
	if link.Published[schema.PublishedKey] != value {
		p.logger.Info("publishing url", "link", link.ID, "app", link.App)
	}
	link.Published[schema.PublishedKey] = value
	return nil
}

func encodeURL(lp *LinkPlan) (string, error) {
	routes := lp.Fragment.Routes
	switch lp.Link.Style {
	case model.StylePerInstance:
		urls := make(map[string]string, len(routes))
		for _, r := range routes {
			urls[r.Key] = r.URL
		}
		return schema.EncodeInstanceURLs(urls)
	default:
		if len(routes) == 0 {
			return "", fmt.Errorf("link %d compiled without routes", lp.Link.ID)
		}
		if lp.Outcome.Request != nil && lp.Outcome.Request.Version == model.VersionIngressV1 {
			return schema.EncodeURLV1(routes[0].URL)
		}
		return schema.EncodeURLV2(routes[0].URL)
	}
}

// clearPublished withdraws the url published on a link. A closing link
// loses every value this side wrote.
func (d *Driver) clearPublished(p *pass, link *model.IntegrationLink, closing bool) {
	if !p.in.Leader || len(link.Published) == 0 {
		return
	}
	if closing {
		link.Published = model.Record{}
		return
	}
	delete(link.Published, schema.PublishedKey)
}

func (d *Driver) project(p *pass, plan *Plan) {
	facts := status.Facts{
		WorkloadReachable: true,
		ExternalHost:      plan.ExternalHost,
		Conflicts:         plan.Conflicts,
	}
	for _, lp := range plan.Links {
		lr := LinkReport{LinkID: lp.Link.ID, App: lp.Link.App, Style: lp.Link.Style, File: lp.File}
		switch {
		case lp.Closing:
			lr.State = StateGone
			if len(d.filesOf(p, lp.Link.ID)) > 0 {
				lr.State = StateClosing
			}
		case lp.Failed():
			lr.Failed = true
			lr.Err = lp.Err
			lr.State = StatePending
			if len(d.filesOf(p, lp.Link.ID)) > 0 {
				lr.State = StateReady
			}
			facts.FailedLinks = append(facts.FailedLinks, status.LinkFailure{
				LinkID: lp.Link.ID, App: lp.Link.App, Reason: lp.Err.Error(),
			})
		case lp.Ready():
			lr.State = StateReady
			facts.ReadyLinks++
		default:
			lr.State = StatePending
			if unseen(lp.Link) {
				lr.State = StateUnseen
			}
			facts.PendingLinks++
		}
		if lp.Link.Published != nil {
			lr.URL = lp.Link.Published[schema.PublishedKey]
		}
		p.report.Links = append(p.report.Links, lr)
	}
	p.report.Status = status.Project(facts)
}

// unseen reports whether the remote side has not published anything yet
func unseen(link *model.IntegrationLink) bool {
	if len(link.AppRecord) > 0 {
		return false
	}
	for _, inst := range link.Instances {
		if len(inst.Data) > 0 {
			return false
		}
	}
	return true
}

func (d *Driver) record(rep *Report) {
	if d.metrics == nil {
		return
	}
	d.metrics.Pass(rep.Scope.Label(), string(rep.Status.Level))
	for _, c := range rep.conflicts() {
		d.metrics.Conflict(c.Owner)
	}
	if rep.Plan == nil {
		return
	}
	counts := map[string]int{}
	for _, lr := range rep.Links {
		state := string(lr.State)
		if lr.Failed {
			state = "failed"
		}
		counts[state]++
	}
	d.metrics.Links(counts)
}

// loadFiles snapshots the managed files currently on the workload
func (d *Driver) loadFiles(p *pass) error {
	names, err := d.workload.List(p.ctx, d.opts.DynamicDir)
	if err != nil {
		return err
	}
	p.files = make(map[string][]byte, len(names))
	for _, name := range names {
		full := path.Join(d.opts.DynamicDir, name)
		data, err := d.pull(p, full)
		if err != nil {
			return err
		}
		p.files[full] = data
	}
	return nil
}

// filesOf returns the fragment files on the workload owned by a link
func (d *Driver) filesOf(p *pass, linkID int) []string {
	var out []string
	for name := range p.files {
		if id, ok := render.FragmentLinkID(path.Base(name)); ok && id == linkID {
			out = append(out, name)
		}
	}
	return out
}

func (d *Driver) pull(p *pass, name string) ([]byte, error) {
	data, err := d.workload.Pull(p.ctx, name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

func (d *Driver) push(p *pass, name string, data []byte) error {
	if err := d.workload.Push(p.ctx, name, data); err != nil {
		return err
	}
	if p.files != nil && path.Dir(name) == d.opts.DynamicDir {
		p.files[name] = data
	}
	p.report.Written = append(p.report.Written, name)
	if d.metrics != nil {
		d.metrics.Write("write")
	}
	p.logger.Debug("file written", "file", name)
	return nil
}

func (d *Driver) remove(p *pass, name string) error {
	if err := d.workload.Remove(p.ctx, name); err != nil {
		return err
	}
	delete(p.files, name)
	p.report.Removed = append(p.report.Removed, name)
	if d.metrics != nil {
		d.metrics.Write("remove")
	}
	p.logger.Debug("file removed", "file", name)
	return nil
}
