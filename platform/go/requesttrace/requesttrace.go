package requesttrace

import (
	"context"
	"errors"

	"github.com/google/uuid"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
)

type contextKey string

const (
	ctxAuditInfo contextKey = "EDUPAY_REQUEST_TRACE"
)

// ActorKind represents who initiated a request.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindAnonymous ActorKind = "anonymous"
	ActorKindSystem    ActorKind = "system"
)

// AuditInfo captures request-scoped metadata needed for traceability and auditing.
// UserID is the platform user id and is set only when ActorKind is user.
type AuditInfo struct {
	ActorKind ActorKind
	UserID    *uuid.UUID
	RequestID string
}

// IntoContext stores the AuditInfo in the provided context.
func IntoContext(ctx context.Context, audit AuditInfo) context.Context {
	return context.WithValue(ctx, ctxAuditInfo, audit)
}

// FromContext extracts the AuditInfo from context, returning false when not present.
func FromContext(ctx context.Context) (AuditInfo, bool) {
	if ctx == nil {
		return AuditInfo{}, false
	}
	audit, ok := ctx.Value(ctxAuditInfo).(AuditInfo)
	return audit, ok
}

// FromContextOrSystem returns the AuditInfo stored on the context, or a system record when absent.
// CLI commands and scheduled sweeps run without a request and are attributed to the system.
func FromContextOrSystem(ctx context.Context) AuditInfo {
	if audit, ok := FromContext(ctx); ok {
		return audit
	}
	return System("")
}

// ActorID returns the acting user id, or nil for system and anonymous actors.
func ActorID(ctx context.Context) *uuid.UUID {
	audit := FromContextOrSystem(ctx)
	if audit.ActorKind != ActorKindUser {
		return nil
	}
	return audit.UserID
}

// FromPrincipal builds an AuditInfo for a resolved platform user.
func FromPrincipal(p platformauth.Principal, requestID string) (AuditInfo, error) {
	if p.UserID == uuid.Nil {
		return AuditInfo{}, errors.New("user id is required to build audit info")
	}

	id := p.UserID
	return AuditInfo{
		ActorKind: ActorKindUser,
		UserID:    &id,
		RequestID: requestID,
	}, nil
}

// Anonymous builds an AuditInfo for unauthenticated requests.
func Anonymous(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindAnonymous, RequestID: requestID}
}

// System builds an AuditInfo for background/system operations.
func System(requestID string) AuditInfo {
	return AuditInfo{ActorKind: ActorKindSystem, RequestID: requestID}
}
