// Package faults defines the error kinds produced while reconciling
// integration links into proxy configuration.
package faults

import (
	"errors"
	"fmt"
)

// ValidationFailure reports a malformed or incomplete peer record.
type ValidationFailure struct {
	LinkID  int
	Version string
	Field   string
	Err     error
}

func (e *ValidationFailure) Error() string {
	field := e.Field
	if field == "" {
		field = "record"
	}
	return fmt.Sprintf("link %d: invalid %s data at %s: %v", e.LinkID, e.Version, field, e.Err)
}

func (e *ValidationFailure) Unwrap() error { return e.Err }

// ProtocolMismatch reports instances of one link that disagree on a
// link-uniform field.
type ProtocolMismatch struct {
	LinkID   int
	Instance string
	Field    string
	Want     string
	Got      string
}

func (e *ProtocolMismatch) Error() string {
	return fmt.Sprintf("link %d: instance %s sets %s=%q, link already negotiated %q", e.LinkID, e.Instance, e.Field, e.Got, e.Want)
}

// MergeConflict reports a static fragment that collided with the
// accumulated static document.
type MergeConflict struct {
	Owner string
	Path  string
}

func (e *MergeConflict) Error() string {
	return fmt.Sprintf("static fragment from %s conflicts at %s", e.Owner, e.Path)
}

// ConfigurationInvalid reports an invalid global settings combination.
type ConfigurationInvalid struct {
	Key    string
	Reason string
}

func (e *ConfigurationInvalid) Error() string {
	return fmt.Sprintf("invalid configuration %s: %s", e.Key, e.Reason)
}

// WorkloadUnreachable reports that the proxy workload did not answer.
type WorkloadUnreachable struct {
	Op  string
	Err error
}

func (e *WorkloadUnreachable) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("workload unreachable during %s", e.Op)
	}
	return fmt.Sprintf("workload unreachable during %s: %v", e.Op, e.Err)
}

func (e *WorkloadUnreachable) Unwrap() error { return e.Err }

// IsValidationFailure reports whether err wraps a ValidationFailure.
func IsValidationFailure(err error) bool {
	var target *ValidationFailure
	return errors.As(err, &target)
}

// IsProtocolMismatch reports whether err wraps a ProtocolMismatch.
func IsProtocolMismatch(err error) bool {
	var target *ProtocolMismatch
	return errors.As(err, &target)
}

// IsConfigurationInvalid reports whether err wraps a ConfigurationInvalid.
func IsConfigurationInvalid(err error) bool {
	var target *ConfigurationInvalid
	return errors.As(err, &target)
}

// IsWorkloadUnreachable reports whether err wraps a WorkloadUnreachable.
func IsWorkloadUnreachable(err error) bool {
	var target *WorkloadUnreachable
	return errors.As(err, &target)
}
