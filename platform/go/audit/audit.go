// Package audit appends immutable records of privileged state transitions.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"

	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
)

// Action is the machine-readable code of an audited transition.
type Action string

const (
	ActionInstitutionCreated     Action = "institution_created"
	ActionInstitutionApproved    Action = "institution_approved"
	ActionInstitutionRejected    Action = "institution_rejected"
	ActionInstitutionActivated   Action = "institution_activated"
	ActionInstitutionSuspended   Action = "institution_suspended"
	ActionInstitutionReinstated  Action = "institution_reinstated"
	ActionInstitutionDeactivated Action = "institution_deactivated"
	ActionInstitutionUpdated     Action = "institution_profile_updated"
	ActionOnboardingCompleted    Action = "onboarding_completed"

	ActionUserCreated              Action = "user_created"
	ActionUserDeactivated          Action = "user_deactivated"
	ActionInstitutionAdminAssigned Action = "institution_admin_assigned"

	ActionDemoRequested Action = "demo_requested"
	ActionDemoApproved  Action = "demo_request_approved"
	ActionDemoRejected  Action = "demo_request_rejected"
	ActionDemoReopened  Action = "demo_request_reopened"

	ActionStaffAdded       Action = "staff_added"
	ActionStaffRoleChanged Action = "staff_role_changed"
	ActionStaffDeactivated Action = "staff_deactivated"

	ActionAcademicYearCreated   Action = "academic_year_created"
	ActionAcademicYearActivated Action = "academic_year_activated"
	ActionTermCreated           Action = "term_created"
	ActionFacultyCreated        Action = "faculty_created"
	ActionProgramCreated        Action = "program_created"

	ActionStudentCreated     Action = "student_created"
	ActionStudentDeactivated Action = "student_deactivated"
	ActionStudentsImported   Action = "students_imported"

	ActionFeeStructureCreated Action = "fee_structure_created"
	ActionFeeStructureUpdated Action = "fee_structure_updated"
	ActionFeeItemAdded        Action = "fee_item_added"
	ActionFeeAssigned         Action = "fee_assigned"
	ActionFeeAdjusted         Action = "fee_adjusted"
	ActionPaymentRecorded     Action = "payment_recorded"
	ActionMarkedOverdue       Action = "assignment_marked_overdue"
	ActionOverdueSweep        Action = "overdue_sweep"
	ActionSnapshotCreated     Action = "fee_snapshot_created"

	ActionMessageSent Action = "message_sent"
)

// Entry is one audit record before it is written. A nil InstitutionID targets the platform log.
// A nil ActorID is filled from the request trace; system actions stay nil.
type Entry struct {
	InstitutionID *uuid.UUID
	ActorID       *uuid.UUID
	Action        Action
	EntityType    string
	EntityID      string
	Description   string
	Changes       map[string]any
}

// Record is a stored entry.
type Record struct {
	ID            uuid.UUID      `json:"id"`
	InstitutionID *uuid.UUID     `json:"institutionId,omitempty"`
	ActorID       *uuid.UUID     `json:"actorId,omitempty"`
	Action        Action         `json:"action"`
	EntityType    string         `json:"entityType"`
	EntityID      string         `json:"entityId"`
	Description   string         `json:"description"`
	Changes       map[string]any `json:"changes,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Write inserts e through q, normally the transaction carrying the audited write.
func Write(ctx context.Context, q persistence.Querier, e Entry) (uuid.UUID, error) {
	if e.Action == "" || e.EntityType == "" {
		return uuid.Nil, fmt.Errorf("audit entry requires action and entity type")
	}
	if e.ActorID == nil {
		e.ActorID = requesttrace.ActorID(ctx)
	}

	var changes []byte
	if len(e.Changes) > 0 {
		var err error
		if changes, err = json.Marshal(e.Changes); err != nil {
			return uuid.Nil, fmt.Errorf("encode audit changes: %w", err)
		}
	}

	id := uuid.New()
	var err error
	if e.InstitutionID == nil {
		_, err = q.Exec(ctx, `
			INSERT INTO platform_audit_logs (audit_id, actor_id, action, entity_type, entity_id, description, changes)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, e.ActorID, string(e.Action), e.EntityType, e.EntityID, e.Description, changes)
	} else {
		_, err = q.Exec(ctx, `
			INSERT INTO institution_audit_logs (audit_id, institution_id, actor_id, action, entity_type, entity_id, description, changes)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, *e.InstitutionID, e.ActorID, string(e.Action), e.EntityType, e.EntityID, e.Description, changes)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("write audit entry %s: %w", e.Action, err)
	}
	return id, nil
}

// Diff returns {"field": {"from": old, "to": new}} for every key whose value differs.
func Diff(before, after map[string]any) map[string]any {
	out := make(map[string]any)
	for k, next := range after {
		prev, ok := before[k]
		if ok && reflect.DeepEqual(prev, next) {
			continue
		}
		out[k] = map[string]any{"from": prev, "to": next}
	}
	for k, prev := range before {
		if _, ok := after[k]; !ok {
			out[k] = map[string]any{"from": prev, "to": nil}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
