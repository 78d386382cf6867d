package service

import (
	"fmt"

	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	"github.com/zenGate-Global/edupay-saas/platform/go/domainerr"
)

// Status is the lifecycle state of an institution.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusActive      Status = "active"
	StatusSuspended   Status = "suspended"
	StatusDeactivated Status = "deactivated"
	StatusRejected    Status = "rejected"
)

// ParseStatus decodes a stored or submitted status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusApproved, StatusActive, StatusSuspended, StatusDeactivated, StatusRejected:
		return st, nil
	default:
		return "", domainerr.Invalid("status", fmt.Sprintf("unknown status %q", s))
	}
}

// Operational reports whether staff may work inside an institution in this state.
func (s Status) Operational() bool {
	return s == StatusApproved || s == StatusActive
}

// Action is a lifecycle transition requested by a platform operator.
type Action string

const (
	ActionApprove    Action = "approve"
	ActionReject     Action = "reject"
	ActionActivate   Action = "activate"
	ActionSuspend    Action = "suspend"
	ActionReinstate  Action = "reinstate"
	ActionDeactivate Action = "deactivate"
)

// ParseAction decodes a transition name.
func ParseAction(s string) (Action, error) {
	switch a := Action(s); a {
	case ActionApprove, ActionReject, ActionActivate, ActionSuspend, ActionReinstate, ActionDeactivate:
		return a, nil
	default:
		return "", domainerr.Invalid("action", fmt.Sprintf("unknown action %q", s))
	}
}

// Next returns the status reached by applying a to from, or a Conflict when a is not allowed there.
func (a Action) Next(from Status) (Status, error) {
	var ok bool
	var to Status
	switch a {
	case ActionApprove:
		to, ok = StatusApproved, from == StatusPending
	case ActionReject:
		to, ok = StatusRejected, from == StatusPending
	case ActionActivate:
		to, ok = StatusActive, from == StatusApproved
	case ActionSuspend:
		to, ok = StatusSuspended, from == StatusApproved || from == StatusActive
	case ActionReinstate:
		to, ok = StatusActive, from == StatusSuspended
	case ActionDeactivate:
		to, ok = StatusDeactivated, from != StatusDeactivated
	default:
		return "", domainerr.Invalid("action", fmt.Sprintf("unknown action %q", a))
	}
	if !ok {
		return "", domainerr.Conflict(fmt.Sprintf("cannot %s an institution that is %s", a, from))
	}
	return to, nil
}

// LogAction is the value stored in the status log for a.
func (a Action) LogAction() string {
	switch a {
	case ActionApprove:
		return "approved"
	case ActionReject:
		return "rejected"
	case ActionActivate:
		return "activated"
	case ActionSuspend:
		return "suspended"
	case ActionReinstate:
		return "reinstated"
	default:
		return "deactivated"
	}
}

// AuditAction is the platform audit code for a.
func (a Action) AuditAction() audit.Action {
	switch a {
	case ActionApprove:
		return audit.ActionInstitutionApproved
	case ActionReject:
		return audit.ActionInstitutionRejected
	case ActionActivate:
		return audit.ActionInstitutionActivated
	case ActionSuspend:
		return audit.ActionInstitutionSuspended
	case ActionReinstate:
		return audit.ActionInstitutionReinstated
	default:
		return audit.ActionInstitutionDeactivated
	}
}

// notifies reports whether the institution contact is emailed after a.
func (a Action) notifies() bool {
	return a == ActionApprove || a == ActionReject || a == ActionSuspend
}
