package reconcile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/sourceplane/edgeroute/internal/config"
	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/logging"
	"github.com/sourceplane/edgeroute/internal/metrics"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/negotiate"
	"github.com/sourceplane/edgeroute/internal/schema"
	"github.com/sourceplane/edgeroute/internal/status"
	"github.com/sourceplane/edgeroute/internal/workload"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	dynamicDir = "/opt/traefik/juju"
	staticPath = "/etc/traefik/traefik.yaml"
)

type harness struct {
	root     string
	driver   *Driver
	restarts int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{root: t.TempDir()}
	wl := workload.NewLocal(h.root, "", nil, nil, false)
	wl.OnRestart = func(context.Context) error {
		h.restarts++
		return nil
	}
	h.driver = newDriver(t, wl)
	return h
}

func newDriver(t *testing.T, wl workload.Workload) *Driver {
	t.Helper()
	codec, err := schema.NewValidator()
	require.NoError(t, err)
	planner := NewPlanner(negotiate.NewNegotiator(codec, logging.Discard()), dynamicDir)
	return NewDriver(wl, planner, metrics.NewCollector(), logging.Discard(), Options{DynamicDir: dynamicDir, StaticPath: staticPath})
}

func (h *harness) reconcile(t *testing.T, kind model.NotificationKind, id int, in *Input) *Report {
	t.Helper()
	rep, err := h.driver.Reconcile(context.Background(), model.Notification{Kind: kind, LinkID: id}, in)
	require.NoError(t, err)
	return rep
}

func (h *harness) file(name string) string {
	return filepath.Join(h.root, name)
}

func (h *harness) fragment(style model.Style, id int, app string) string {
	return h.file(filepath.Join(dynamicDir, "juju_ingress_"+style.Endpoint()+"_"+strconv.Itoa(id)+"_"+app+".yaml"))
}

func remoteLink(id int, app string, hosts ...string) *model.IntegrationLink {
	link := &model.IntegrationLink{
		ID:        id,
		App:       app,
		Style:     model.StylePerApp,
		AppRecord: model.Record{"model": "test-model", "name": app, "port": "8080"},
	}
	for i, host := range hosts {
		link.Instances = append(link.Instances, model.InstanceRecord{
			Name: app + "/" + strconv.Itoa(i),
			Data: model.Record{"host": host},
		})
	}
	return link
}

// failingPush fails the first push of one file
type failingPush struct {
	workload.Workload
	name string
	done bool
}

func (f *failingPush) Push(ctx context.Context, name string, data []byte) error {
	if name == f.name && !f.done {
		f.done = true
		return errors.New("disk full")
	}
	return f.Workload.Push(ctx, name, data)
}

func tcpLink(id int, units ...model.InstanceRecord) *model.IntegrationLink {
	return &model.IntegrationLink{ID: id, App: "db", Style: model.StylePerInstance, Instances: units}
}

func tcpUnit(name, modelName string) model.InstanceRecord {
	return model.InstanceRecord{Name: name, Data: model.Record{
		"model": modelName, "name": name, "host": "db.svc", "port": "9000", "mode": "tcp",
	}}
}

func rawLink(id int, static string) *model.IntegrationLink {
	rec := model.Record{"config": "http: {routers: {r: {rule: 'Host(`x`)', service: s}}}"}
	if static != "" {
		rec["static"] = static
	}
	return &model.IntegrationLink{ID: id, App: "grafana", Style: model.StyleRaw, AppRecord: rec}
}

func input(links ...*model.IntegrationLink) *Input {
	return &Input{
		Settings: config.Settings{ExternalHostname: "example.com"},
		Links:    links,
		Leader:   true,
	}
}

func publishedURL(t *testing.T, link *model.IntegrationLink) string {
	t.Helper()
	entries, err := schema.DecodePublished(link.App, link.Published[schema.PublishedKey])
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return entries[0].URL
}

func TestReconcileServesAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1", "10.0.0.2", "10.0.0.3")
	in := input(link)

	rep := h.reconcile(t, model.Start, 0, in)
	assert.True(t, rep.Restarted)
	assert.Equal(t, 1, h.restarts)
	assert.Equal(t, status.Active, rep.Status.Level, rep.Status.String())
	assert.FileExists(t, h.file(staticPath))

	data, err := os.ReadFile(h.fragment(model.StylePerApp, 1, "remote"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "PathPrefix(`/test-model-remote`)")
	assert.Contains(t, string(data), "http://10.0.0.3:8080")
	assert.Equal(t, "http://example.com/test-model-remote", publishedURL(t, link))

	lr, ok := rep.Link(1)
	require.True(t, ok)
	assert.Equal(t, StateReady, lr.State)

	again := h.reconcile(t, model.Start, 0, in)
	assert.False(t, again.Changed(), "written %v removed %v", again.Written, again.Removed)
	assert.Equal(t, 1, h.restarts)
}

func TestReconcileLinkChangeTouchesOnlyThatLink(t *testing.T) {
	h := newHarness(t)
	a := remoteLink(1, "alpha", "10.0.0.1")
	b := remoteLink(2, "beta", "10.0.1.1")
	in := input(a, b)
	h.reconcile(t, model.Start, 0, in)

	b.Instances = append(b.Instances, model.InstanceRecord{Name: "beta/1", Data: model.Record{"host": "10.0.1.2"}})
	rep := h.reconcile(t, model.LinkChanged, 2, in)

	assert.False(t, rep.Restarted)
	assert.Equal(t, []string{dynamicDir + "/juju_ingress_ingress_2_beta.yaml"}, rep.Written)
	data, err := os.ReadFile(h.fragment(model.StylePerApp, 2, "beta"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "http://10.0.1.2:8080")
}

func TestReconcileClosureRemovesEverything(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1")
	in := input(link)
	h.reconcile(t, model.Start, 0, in)
	require.FileExists(t, h.fragment(model.StylePerApp, 1, "remote"))

	rep := h.reconcile(t, model.LinkBroken, 1, in)
	assert.NoFileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
	assert.Empty(t, link.Published)
	lr, ok := rep.Link(1)
	require.True(t, ok)
	assert.Equal(t, StateGone, lr.State)
}

func TestReconcilePendingLink(t *testing.T) {
	h := newHarness(t)
	link := &model.IntegrationLink{ID: 3, App: "idle", Style: model.StylePerApp}
	rep := h.reconcile(t, model.LinkCreated, 3, input(link))

	lr, ok := rep.Link(3)
	require.True(t, ok)
	assert.Equal(t, StateUnseen, lr.State)
	assert.NoFileExists(t, h.fragment(model.StylePerApp, 3, "idle"))
	assert.Equal(t, "serving 0 link(s), 1 pending", rep.Status.Message)
}

func TestReconcileStaticChangeRestarts(t *testing.T) {
	h := newHarness(t)
	served := remoteLink(1, "remote", "10.0.0.1")
	raw := rawLink(2, "")
	in := input(served, raw)
	h.reconcile(t, model.Start, 0, in)
	require.Equal(t, 1, h.restarts)

	raw.AppRecord["static"] = "entryPoints: {extra: {address: ':9999'}}"
	rep := h.reconcile(t, model.LinkChanged, 2, in)
	assert.True(t, rep.Restarted)
	assert.Equal(t, 2, h.restarts)

	static, err := os.ReadFile(h.file(staticPath))
	require.NoError(t, err)
	assert.Contains(t, string(static), ":9999")
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
	assert.FileExists(t, h.fragment(model.StyleRaw, 2, "grafana"))
	assert.Empty(t, raw.Published[schema.PublishedKey])
}

func TestReconcileStaticConflictDegrades(t *testing.T) {
	h := newHarness(t)
	raw := rawLink(2, "log: {level: ERROR}")
	rep := h.reconcile(t, model.Start, 0, input(raw))

	assert.Equal(t, status.Degraded, rep.Status.Level)
	assert.Contains(t, rep.Status.Message, "1 static fragment(s) discarded")
	assert.FileExists(t, h.fragment(model.StyleRaw, 2, "grafana"))

	static, err := os.ReadFile(h.file(staticPath))
	require.NoError(t, err)
	assert.Contains(t, string(static), "DEBUG")
}

func TestReconcileFailedLinkKeepsFragment(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1")
	in := input(link)
	h.reconcile(t, model.Start, 0, in)
	url := link.Published[schema.PublishedKey]

	link.Instances[0].Data["port"] = "not-a-port"
	rep := h.reconcile(t, model.LinkChanged, 1, in)

	assert.Equal(t, status.Degraded, rep.Status.Level)
	assert.Contains(t, rep.Status.Message, "failed links: 1 (remote)")
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
	assert.Equal(t, url, link.Published[schema.PublishedKey])
	lr, _ := rep.Link(1)
	assert.True(t, lr.Failed)
}

func TestReconcileInvalidSettingsFailClosed(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1")
	in := input(link)
	h.reconcile(t, model.Start, 0, in)

	in.Settings.RoutingMode = "bogus"
	rep := h.reconcile(t, model.ConfigChanged, 0, in)

	assert.Equal(t, status.Blocked, rep.Status.Level)
	assert.Contains(t, rep.Status.Message, "routing_mode")
	assert.NoFileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
	assert.NotContains(t, link.Published, schema.PublishedKey)
}

func TestReconcileUnreachableWorkload(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "missing")
	d := newDriver(t, workload.NewLocal(missing, "", nil, nil, false))
	link := remoteLink(1, "remote", "10.0.0.1")

	rep, err := d.Reconcile(context.Background(), model.Notification{Kind: model.Start}, input(link))
	require.NoError(t, err)
	assert.Equal(t, status.Waiting, rep.Status.Level)
	assert.False(t, rep.Changed())
	assert.NoDirExists(t, missing)
}

func TestReconcileWithoutExternalAddress(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1")
	in := input(link)
	in.Settings.ExternalHostname = ""

	rep := h.reconcile(t, model.Start, 0, in)
	assert.Equal(t, status.Waiting, rep.Status.Level)
	assert.Equal(t, "gateway address unavailable", rep.Status.Message)
	assert.False(t, rep.Changed())

	in.LoadBalancerAddress = "192.0.2.10"
	rep = h.reconcile(t, model.Start, 0, in)
	assert.Equal(t, status.Active, rep.Status.Level)
	assert.Equal(t, "http://192.0.2.10/test-model-remote", publishedURL(t, link))
}

func TestReconcileFollowerDoesNotPublish(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1")
	in := input(link)
	in.Leader = false

	h.reconcile(t, model.Start, 0, in)
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
	assert.NotContains(t, link.Published, schema.PublishedKey)
}

func TestReconcileRemovesOrphans(t *testing.T) {
	h := newHarness(t)
	orphan := h.fragment(model.StylePerApp, 9, "gone")
	require.NoError(t, os.MkdirAll(filepath.Dir(orphan), 0755))
	require.NoError(t, os.WriteFile(orphan, []byte("http: {}\n"), 0644))

	h.reconcile(t, model.Start, 0, input(remoteLink(1, "remote", "10.0.0.1")))
	assert.NoFileExists(t, orphan)
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
}

func TestReconcileCertificateLifecycle(t *testing.T) {
	h := newHarness(t)
	link := remoteLink(1, "remote", "10.0.0.1")
	in := input(link)
	in.Certificate = &Certificate{Cert: "CERT", Key: "KEY"}

	h.reconcile(t, model.CertificateReady, 0, in)
	cert, err := os.ReadFile(h.file(filepath.Join(dynamicDir, "server.cert")))
	require.NoError(t, err)
	assert.Equal(t, "CERT", string(cert))
	assert.FileExists(t, h.file(filepath.Join(dynamicDir, "certificates.yaml")))

	data, err := os.ReadFile(h.fragment(model.StylePerApp, 1, "remote"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "juju-test-model-remote-router-tls")
	assert.Equal(t, "https://example.com/test-model-remote", publishedURL(t, link))

	in.Certificate = nil
	h.reconcile(t, model.CertificateRevoked, 0, in)
	assert.NoFileExists(t, h.file(filepath.Join(dynamicDir, "server.cert")))
	assert.NoFileExists(t, h.file(filepath.Join(dynamicDir, "certificates.yaml")))
	assert.Equal(t, "http://example.com/test-model-remote", publishedURL(t, link))
}

func TestReconcileIgnoresUnknownNotifications(t *testing.T) {
	h := newHarness(t)
	rep := h.reconcile(t, model.NotificationKind("bogus"), 0, input())
	assert.Equal(t, ScopeNone, rep.Scope.Kind)
	assert.False(t, rep.Changed())
	assert.NoFileExists(t, h.file(staticPath))
}

func TestReconcileRetriesFailedRestart(t *testing.T) {
	h := newHarness(t)
	wl := workload.NewLocal(h.root, "", nil, nil, false)
	failures := 1
	wl.OnRestart = func(context.Context) error {
		if failures > 0 {
			failures--
			return &faults.WorkloadUnreachable{Op: "restart"}
		}
		h.restarts++
		return nil
	}
	h.driver = newDriver(t, wl)

	a := remoteLink(1, "alpha", "10.0.0.1")
	b := remoteLink(2, "beta", "10.0.1.1")
	in := input(a, b)

	rep := h.reconcile(t, model.Start, 0, in)
	assert.False(t, rep.Restarted)
	assert.Equal(t, status.Waiting, rep.Status.Level)
	require.FileExists(t, h.file(staticPath))

	rep = h.reconcile(t, model.LinkChanged, 1, in)
	assert.True(t, rep.Restarted)
	assert.Equal(t, 1, h.restarts)
	assert.Equal(t, status.Active, rep.Status.Level, rep.Status.String())
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "alpha"))
	assert.FileExists(t, h.fragment(model.StylePerApp, 2, "beta"))

	again := h.reconcile(t, model.LinkChanged, 2, in)
	assert.False(t, again.Restarted)
	assert.Equal(t, 1, h.restarts)
}

func TestReconcileRetriesAfterFailedPush(t *testing.T) {
	h := newHarness(t)
	wl := workload.NewLocal(h.root, "", nil, nil, false)
	wl.OnRestart = func(context.Context) error {
		h.restarts++
		return nil
	}
	beta := dynamicDir + "/juju_ingress_ingress_2_beta.yaml"
	h.driver = newDriver(t, &failingPush{Workload: wl, name: beta})

	in := input(remoteLink(1, "alpha", "10.0.0.1"), remoteLink(2, "beta", "10.0.1.1"))
	_, err := h.driver.Reconcile(context.Background(), model.Notification{Kind: model.Start}, in)
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, h.restarts)
	assert.NoFileExists(t, h.fragment(model.StylePerApp, 2, "beta"))

	rep := h.reconcile(t, model.LinkChanged, 1, in)
	assert.True(t, rep.Restarted)
	assert.Equal(t, 2, h.restarts)
	assert.Equal(t, status.Active, rep.Status.Level, rep.Status.String())
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "alpha"))
	assert.FileExists(t, h.fragment(model.StylePerApp, 2, "beta"))
}

func TestReconcileRewritesMissingFragment(t *testing.T) {
	h := newHarness(t)
	in := input(remoteLink(1, "alpha", "10.0.0.1"), remoteLink(2, "beta", "10.0.1.1"))
	h.reconcile(t, model.Start, 0, in)
	require.NoError(t, os.Remove(h.fragment(model.StylePerApp, 1, "alpha")))

	rep := h.reconcile(t, model.LinkChanged, 2, in)
	assert.False(t, rep.Restarted)
	assert.Equal(t, []string{dynamicDir + "/juju_ingress_ingress_1_alpha.yaml"}, rep.Written)
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "alpha"))
}

func TestReconcileFailedLinkKeepsEntryPoint(t *testing.T) {
	h := newHarness(t)
	link := tcpLink(1, tcpUnit("db/0", "m"))
	in := input(link)

	rep := h.reconcile(t, model.Start, 0, in)
	require.True(t, rep.Restarted)
	require.Equal(t, 1, h.restarts)
	static, err := os.ReadFile(h.file(staticPath))
	require.NoError(t, err)
	require.Contains(t, string(static), "m-db-0")

	link.Instances = append(link.Instances, tcpUnit("db/1", "other"))
	rep = h.reconcile(t, model.LinkChanged, 1, in)

	assert.False(t, rep.Restarted)
	assert.Equal(t, 1, h.restarts)
	assert.Equal(t, status.Degraded, rep.Status.Level)
	static, err = os.ReadFile(h.file(staticPath))
	require.NoError(t, err)
	assert.Contains(t, string(static), "m-db-0")
	assert.FileExists(t, h.fragment(model.StylePerInstance, 1, "db"))
	lr, _ := rep.Link(1)
	assert.True(t, lr.Failed)
	assert.Equal(t, StateReady, lr.State)
}

func TestReconcileFailedLinkKeepsStatic(t *testing.T) {
	h := newHarness(t)
	served := remoteLink(1, "remote", "10.0.0.1")
	raw := rawLink(2, "entryPoints: {extra: {address: ':9999'}}")
	in := input(served, raw)
	h.reconcile(t, model.Start, 0, in)
	require.Equal(t, 1, h.restarts)

	raw.AppRecord["config"] = "http: [unclosed"
	rep := h.reconcile(t, model.LinkChanged, 2, in)
	assert.False(t, rep.Restarted)
	assert.Equal(t, 1, h.restarts)
	assert.Equal(t, status.Degraded, rep.Status.Level)
	static, err := os.ReadFile(h.file(staticPath))
	require.NoError(t, err)
	assert.Contains(t, string(static), ":9999")

	// an unrelated restart keeps the failed link's fragment and static
	in.Settings.StaticLogLevel = "INFO"
	rep = h.reconcile(t, model.ConfigChanged, 0, in)
	assert.True(t, rep.Restarted)
	assert.Equal(t, 2, h.restarts)
	static, err = os.ReadFile(h.file(staticPath))
	require.NoError(t, err)
	assert.Contains(t, string(static), ":9999")
	assert.FileExists(t, h.fragment(model.StyleRaw, 2, "grafana"))
	assert.FileExists(t, h.fragment(model.StylePerApp, 1, "remote"))
}
