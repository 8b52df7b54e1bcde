package reconcile

import (
	"github.com/sourceplane/edgeroute/internal/faults"
	"github.com/sourceplane/edgeroute/internal/model"
	"github.com/sourceplane/edgeroute/internal/status"
)

// LinkState is the lifecycle state of a link as seen by the last pass
type LinkState string

const (
	StateUnseen  LinkState = "unseen"
	StatePending LinkState = "pending"
	StateReady   LinkState = "ready"
	StateClosing LinkState = "closing"
	StateGone    LinkState = "gone"
)

// LinkReport is the outcome of one link within a pass
type LinkReport struct {
	LinkID int         `json:"id" yaml:"id"`
	App    string      `json:"app" yaml:"app"`
	Style  model.Style `json:"style" yaml:"style"`
	State  LinkState   `json:"state" yaml:"state"`
	Failed bool        `json:"failed,omitempty" yaml:"failed,omitempty"`
	Err    error       `json:"-" yaml:"-"`
	File   string      `json:"file,omitempty" yaml:"file,omitempty"`
	URL    string      `json:"url,omitempty" yaml:"url,omitempty"`
}

// Report summarizes what a pass did
type Report struct {
	PassID       string             `json:"pass" yaml:"pass"`
	Notification model.Notification `json:"-" yaml:"-"`
	Scope        Scope              `json:"-" yaml:"-"`
	Links        []LinkReport       `json:"links,omitempty" yaml:"links,omitempty"`
	Restarted    bool               `json:"restarted" yaml:"restarted"`
	Written      []string           `json:"written,omitempty" yaml:"written,omitempty"`
	Removed      []string           `json:"removed,omitempty" yaml:"removed,omitempty"`
	Status       status.Status      `json:"status" yaml:"status"`
	Plan         *Plan              `json:"-" yaml:"-"`
}

// Link returns the report of the given link
func (r *Report) Link(id int) (LinkReport, bool) {
	for _, lr := range r.Links {
		if lr.LinkID == id {
			return lr, true
		}
	}
	return LinkReport{}, false
}

// Changed reports whether the pass touched the workload
func (r *Report) Changed() bool {
	return r.Restarted || len(r.Written) > 0 || len(r.Removed) > 0
}

// Fragments returns the fragments served after the pass
func (r *Report) Fragments() []*model.RouteFragment {
	if r.Plan == nil {
		return nil
	}
	return r.Plan.Fragments()
}

func (r *Report) conflicts() []faults.MergeConflict {
	if r.Plan == nil {
		return nil
	}
	return r.Plan.Conflicts
}
