package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	platformlogging "github.com/zenGate-Global/edupay-saas/platform/go/logging"
	"github.com/zenGate-Global/edupay-saas/platform/go/requesttrace"
)

// RequestTrace populates the context with request-scoped AuditInfo so services and repositories can stamp audit entries.
// It runs after auth.ResolvePrincipal so the platform user is known when present.
func RequestTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger := platformlogging.FromRequest(r, nil)
		requestID := middleware.GetReqID(r.Context())

		audit := requesttrace.Anonymous(requestID)
		if principal, ok := platformauth.PrincipalFromContext(r.Context()); ok {
			var err error
			audit, err = requesttrace.FromPrincipal(principal, requestID)
			if err != nil {
				if logger != nil {
					logger.Error("build audit info from principal", zap.Error(err))
				}
				httpx.Unauthorized(w, "unresolved principal")
				return
			}
		}

		ctx := requesttrace.IntoContext(r.Context(), audit)
		if logger != nil {
			fields := []zap.Field{zap.String("actor_kind", string(audit.ActorKind))}
			if audit.UserID != nil {
				fields = append(fields, zap.Stringer("user_id", audit.UserID))
			}
			ctx = platformlogging.WithLogger(ctx, logger.With(fields...))
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
