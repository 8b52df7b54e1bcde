// Package merge deep-merges static proxy configuration fragments.
package merge

import (
	"reflect"
	"sort"

	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/model"
)

// Merge applies fragments over baseline in order. A fragment that collides
// with the document accumulated so far is discarded whole and reported;
// later fragments merge against the document as it was before it. Neither
// baseline nor any fragment is modified or aliased by the result.
func Merge(baseline map[string]any, fragments []model.StaticFragment) (map[string]any, []faults.MergeConflict) {
	merged := model.CloneDoc(baseline)
	if merged == nil {
		merged = map[string]any{}
	}

	var conflicts []faults.MergeConflict
	for _, frag := range fragments {
		trial := model.CloneDoc(merged)
		if path, ok := mergeInto(trial, frag.Doc, ""); !ok {
			conflicts = append(conflicts, faults.MergeConflict{Owner: frag.Owner, Path: path})
			continue
		}
		merged = trial
	}
	return merged, conflicts
}

// mergeInto merges src into dst, returning the dotted path of the first
// collision
func mergeInto(dst, src map[string]any, prefix string) (string, bool) {
	keys := make([]string, 0, len(src))
	for k := range src {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}
		sv := src[k]
		dv, exists := dst[k]
		if !exists {
			dst[k] = model.CloneValue(sv)
			continue
		}

		dm, dIsMap := dv.(map[string]any)
		sm, sIsMap := sv.(map[string]any)
		switch {
		case dIsMap && sIsMap:
			if p, ok := mergeInto(dm, sm, path); !ok {
				return p, false
			}
		case dIsMap || sIsMap:
			return path, false
		case !Equal(dv, sv):
			return path, false
		}
	}
	return "", true
}

// Equal compares two document values. Numbers compare by value regardless
// of their Go type; lists compare element-wise.
func Equal(a, b any) bool {
	if na, ok := number(a); ok {
		nb, ok := number(b)
		return ok && na == nb
	}
	switch at := a.(type) {
	case map[string]any:
		bt, ok := b.(map[string]any)
		if !ok || len(at) != len(bt) {
			return false
		}
		for k, v := range at {
			w, ok := bt[k]
			if !ok || !Equal(v, w) {
				return false
			}
		}
		return true
	case []any, []string:
		la, lb := list(a), list(b)
		if lb == nil || len(la) != len(lb) {
			return false
		}
		for i := range la {
			if !Equal(la[i], lb[i]) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

func list(v any) []any {
	switch t := v.(type) {
	case []any:
		if t == nil {
			return []any{}
		}
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	}
	return nil
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	return 0, false
}
