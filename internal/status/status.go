// Package status projects the aggregate state of a reconciliation pass
// into a user-facing status.
package status

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sourceplane/edgeroute/internal/faults"
)

// Level is the user-facing status level
type Level string

const (
	Active   Level = "active"
	Waiting  Level = "waiting"
	Blocked  Level = "blocked"
	Degraded Level = "degraded"
)

// LinkFailure describes one link that could not be negotiated or compiled
type LinkFailure struct {
	LinkID int
	App    string
	Reason string
}

// Facts are the inputs of the projection
type Facts struct {
	ConfigError       error
	WorkloadReachable bool
	ExternalHost      string
	ReadyLinks        int
	PendingLinks      int
	FailedLinks       []LinkFailure
	Conflicts         []faults.MergeConflict
}

// Status is the projected status
type Status struct {
	Level   Level    `json:"level" yaml:"level"`
	Message string   `json:"message" yaml:"message"`
	Details []string `json:"details,omitempty" yaml:"details,omitempty"`
}

// Ready reports whether every link is being served
func (s Status) Ready() bool {
	return s.Level == Active
}

func (s Status) String() string {
	if s.Message == "" {
		return string(s.Level)
	}
	return fmt.Sprintf("%s: %s", s.Level, s.Message)
}

// Project derives the status. Blocked outranks waiting, waiting outranks
// degraded.
func Project(f Facts) Status {
	if f.ConfigError != nil {
		return Status{Level: Blocked, Message: f.ConfigError.Error()}
	}
	if !f.WorkloadReachable {
		return Status{Level: Waiting, Message: "waiting for the proxy workload to become reachable"}
	}
	if f.ExternalHost == "" {
		return Status{Level: Waiting, Message: "gateway address unavailable"}
	}

	if len(f.FailedLinks) > 0 || len(f.Conflicts) > 0 {
		failures := append([]LinkFailure(nil), f.FailedLinks...)
		sort.Slice(failures, func(i, j int) bool { return failures[i].LinkID < failures[j].LinkID })

		var details []string
		var ids []string
		for _, lf := range failures {
			ids = append(ids, fmt.Sprintf("%d (%s)", lf.LinkID, lf.App))
			details = append(details, fmt.Sprintf("link %d (%s): %s", lf.LinkID, lf.App, lf.Reason))
		}
		for _, c := range f.Conflicts {
			details = append(details, c.Error())
		}

		var parts []string
		if len(ids) > 0 {
			parts = append(parts, fmt.Sprintf("failed links: %s", strings.Join(ids, ", ")))
		}
		if len(f.Conflicts) > 0 {
			parts = append(parts, fmt.Sprintf("%d static fragment(s) discarded", len(f.Conflicts)))
		}
		return Status{Level: Degraded, Message: strings.Join(parts, "; "), Details: details}
	}

	msg := fmt.Sprintf("serving %d link(s)", f.ReadyLinks)
	if f.PendingLinks > 0 {
		msg += fmt.Sprintf(", %d pending", f.PendingLinks)
	}
	return Status{Level: Active, Message: msg}
}
