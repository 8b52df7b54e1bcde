package merge

import (
	"testing"

	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func doc(t *testing.T, src string) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(src), &out))
	return out
}

func TestMergeIdentity(t *testing.T) {
	base := Baseline(BaselineParams{DynamicDir: "/opt/traefik/juju"})
	merged, conflicts := Merge(base, nil)
	assert.Empty(t, conflicts)
	assert.Equal(t, base, merged)

	// no aliasing: mutating the result leaves the baseline intact
	merged["log"].(map[string]any)["level"] = "ERROR"
	assert.Equal(t, "DEBUG", base["log"].(map[string]any)["level"])
}

func TestMergeIsolation(t *testing.T) {
	base := map[string]any{"log": map[string]any{"level": "DEBUG"}}
	a := model.StaticFragment{Owner: "a", Doc: map[string]any{"log": map[string]any{"level": "ERROR"}}}
	b := model.StaticFragment{Owner: "b", Doc: map[string]any{"extra": map[string]any{"x": 1}}}

	merged, conflicts := Merge(base, []model.StaticFragment{a, b})
	onlyB, none := Merge(base, []model.StaticFragment{b})
	require.Empty(t, none)

	assert.Equal(t, onlyB, merged)
	assert.Equal(t, []faults.MergeConflict{{Owner: "a", Path: "log.level"}}, conflicts)
	assert.Equal(t, "DEBUG", base["log"].(map[string]any)["level"])
}

func TestMergePartialFragmentIsDiscardedWhole(t *testing.T) {
	base := map[string]any{"log": map[string]any{"level": "DEBUG"}}
	frag := model.StaticFragment{Owner: "bad", Doc: map[string]any{
		"aaa": map[string]any{"first": true},
		"log": map[string]any{"level": "ERROR"},
	}}

	merged, conflicts := Merge(base, []model.StaticFragment{frag})
	require.Len(t, conflicts, 1)
	assert.NotContains(t, merged, "aaa")
	assert.Equal(t, base, merged)
}

func TestMergeLists(t *testing.T) {
	tests := []struct {
		name     string
		base     string
		frag     string
		conflict string
	}{
		{name: "equal lists merge", base: "foo: [bar]", frag: "foo: [bar]"},
		{name: "longer list conflicts", base: "foo: [bar]", frag: "foo: [bar, baz]", conflict: "foo"},
		{name: "equal scalars merge", base: "a: {b: 1}", frag: "a: {b: 1}"},
		{name: "mapping vs scalar conflicts", base: "a: {b: 1}", frag: "a: 2", conflict: "a"},
		{name: "nested new keys merge", base: "a: {b: 1}", frag: "a: {c: 2}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, conflicts := Merge(doc(t, tt.base), []model.StaticFragment{{Owner: "f", Doc: doc(t, tt.frag)}})
			if tt.conflict == "" {
				assert.Empty(t, conflicts)
				return
			}
			require.Len(t, conflicts, 1)
			assert.Equal(t, tt.conflict, conflicts[0].Path)
		})
	}
}

func TestMergeOrderIndependent(t *testing.T) {
	base := Baseline(BaselineParams{DynamicDir: "/d"})
	frags := []model.StaticFragment{
		{Owner: "x", Doc: doc(t, "entryPoints: {x: {address: ':7000'}}")},
		{Owner: "y", Doc: doc(t, "entryPoints: {y: {address: ':7001'}}\nlog: {level: DEBUG}")},
		{Owner: "z", Doc: doc(t, "experimental: {plugins: {p: {version: v1}}}")},
	}
	forward, c1 := Merge(base, frags)
	backward, c2 := Merge(base, []model.StaticFragment{frags[2], frags[1], frags[0]})
	assert.Empty(t, c1)
	assert.Empty(t, c2)
	assert.Equal(t, forward, backward)
}

func TestBaselineEntryPoints(t *testing.T) {
	base := Baseline(BaselineParams{
		DynamicDir:     "/opt/traefik/juju",
		TCPEntryPoints: map[string]model.EntryPoint{"m-db-0": {Address: ":5432"}, "web": {Address: ":1"}},
	})
	eps := base["entryPoints"].(map[string]any)
	assert.Equal(t, map[string]any{"address": ":5432"}, eps["m-db-0"])
	assert.Equal(t, map[string]any{"address": WebAddress}, eps["web"])
	assert.Equal(t, "/opt/traefik/juju", base["providers"].(map[string]any)["file"].(map[string]any)["directory"])
}

func TestEqualNumbers(t *testing.T) {
	assert.True(t, Equal(1, 1.0))
	assert.True(t, Equal([]string{"a"}, []any{"a"}))
	assert.False(t, Equal("1", 1))
}
