package reconcile

import (
	"fmt"

	"github.com/sourceplane/edgeroute/internal/model"
)

// ScopeKind is how much of the system a notification affects
type ScopeKind int

const (
	ScopeNone ScopeKind = iota
	ScopeLink
	ScopeClose
	ScopeAll
)

// Scope is the reconciliation scope of one notification
type Scope struct {
	Kind   ScopeKind
	LinkID int
}

func (s Scope) String() string {
	switch s.Kind {
	case ScopeLink:
		return fmt.Sprintf("link:%d", s.LinkID)
	case ScopeClose:
		return fmt.Sprintf("close:%d", s.LinkID)
	case ScopeAll:
		return "all"
	}
	return "none"
}

// Label is the low-cardinality form of the scope used for metrics
func (s Scope) Label() string {
	switch s.Kind {
	case ScopeLink:
		return "link"
	case ScopeClose:
		return "close"
	case ScopeAll:
		return "all"
	}
	return "none"
}

// Affects reports whether a link falls within the scope
func (s Scope) Affects(linkID int) bool {
	switch s.Kind {
	case ScopeAll:
		return true
	case ScopeLink, ScopeClose:
		return s.LinkID == linkID
	}
	return false
}

// Classify maps every notification kind to its scope
func Classify(n model.Notification) Scope {
	switch n.Kind {
	case model.LinkCreated, model.LinkJoined, model.LinkChanged, model.LinkDeparted:
		return Scope{Kind: ScopeLink, LinkID: n.LinkID}
	case model.LinkBroken:
		return Scope{Kind: ScopeClose, LinkID: n.LinkID}
	case model.Start,
		model.WorkloadReady,
		model.ConfigChanged,
		model.LeaderElected,
		model.Upgrade,
		model.CertificateReady,
		model.CertificateRevoked,
		model.ForwardAuthChanged,
		model.UpdateStatus:
		return Scope{Kind: ScopeAll}
	}
	return Scope{Kind: ScopeNone}
}
