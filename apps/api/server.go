package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	oapimiddleware "github.com/oapi-codegen/nethttp-middleware"
	"go.uber.org/zap"

	"github.com/zenGate-Global/edupay-saas/contracts"
	academicshandler "github.com/zenGate-Global/edupay-saas/domains/academics/be/handler"
	academicsrepo "github.com/zenGate-Global/edupay-saas/domains/academics/be/repo"
	academicsservice "github.com/zenGate-Global/edupay-saas/domains/academics/be/service"
	analyticshandler "github.com/zenGate-Global/edupay-saas/domains/analytics/be/handler"
	analyticsrepo "github.com/zenGate-Global/edupay-saas/domains/analytics/be/repo"
	analyticsservice "github.com/zenGate-Global/edupay-saas/domains/analytics/be/service"
	auditloghandler "github.com/zenGate-Global/edupay-saas/domains/auditlog/be/handler"
	demoshandler "github.com/zenGate-Global/edupay-saas/domains/demos/be/handler"
	demosrepo "github.com/zenGate-Global/edupay-saas/domains/demos/be/repo"
	demosservice "github.com/zenGate-Global/edupay-saas/domains/demos/be/service"
	feeshandler "github.com/zenGate-Global/edupay-saas/domains/fees/be/handler"
	feesrepo "github.com/zenGate-Global/edupay-saas/domains/fees/be/repo"
	feesservice "github.com/zenGate-Global/edupay-saas/domains/fees/be/service"
	institutionshandler "github.com/zenGate-Global/edupay-saas/domains/institutions/be/handler"
	institutionsrepo "github.com/zenGate-Global/edupay-saas/domains/institutions/be/repo"
	institutionsservice "github.com/zenGate-Global/edupay-saas/domains/institutions/be/service"
	messaginghandler "github.com/zenGate-Global/edupay-saas/domains/messaging/be/handler"
	messagingrepo "github.com/zenGate-Global/edupay-saas/domains/messaging/be/repo"
	messagingservice "github.com/zenGate-Global/edupay-saas/domains/messaging/be/service"
	oversighthandler "github.com/zenGate-Global/edupay-saas/domains/oversight/be/handler"
	oversightrepo "github.com/zenGate-Global/edupay-saas/domains/oversight/be/repo"
	oversightservice "github.com/zenGate-Global/edupay-saas/domains/oversight/be/service"
	staffhandler "github.com/zenGate-Global/edupay-saas/domains/staff/be/handler"
	staffrepo "github.com/zenGate-Global/edupay-saas/domains/staff/be/repo"
	staffservice "github.com/zenGate-Global/edupay-saas/domains/staff/be/service"
	studentshandler "github.com/zenGate-Global/edupay-saas/domains/students/be/handler"
	studentsrepo "github.com/zenGate-Global/edupay-saas/domains/students/be/repo"
	studentsservice "github.com/zenGate-Global/edupay-saas/domains/students/be/service"
	usershandler "github.com/zenGate-Global/edupay-saas/domains/users/be/handler"
	usersrepo "github.com/zenGate-Global/edupay-saas/domains/users/be/repo"
	usersservice "github.com/zenGate-Global/edupay-saas/domains/users/be/service"
	"github.com/zenGate-Global/edupay-saas/platform/go/audit"
	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/gcp"
	"github.com/zenGate-Global/edupay-saas/platform/go/httpx"
	platformlogging "github.com/zenGate-Global/edupay-saas/platform/go/logging"
	platformmiddleware "github.com/zenGate-Global/edupay-saas/platform/go/middleware"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
	"github.com/zenGate-Global/edupay-saas/platform/go/observability"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/rbac"
	"github.com/zenGate-Global/edupay-saas/platform/go/storage"
	tenantmw "github.com/zenGate-Global/edupay-saas/platform/go/tenant/middleware"
)

// serverDeps carries the process-level collaborators the router is built from.
// Metrics, Identities and Archiver are optional.
type serverDeps struct {
	DB             *persistence.DB
	Logger         *zap.Logger
	Verify         platformauth.VerifyFunc
	Mailer         notify.Mailer
	Metrics        *observability.Metrics
	Identities     *gcp.IdentityProvisioner
	Archiver       storage.Archiver
	EnvKey         string
	AppBaseURL     string
	RequestTimeout time.Duration
	AllowedOrigins []string
}

func newRouter(ctx context.Context, d serverDeps) (http.Handler, error) {
	if d.DB == nil || d.Logger == nil || d.Verify == nil {
		return nil, fmt.Errorf("db, logger and verifier are required")
	}
	if d.Mailer == nil {
		d.Mailer = notify.NewLogMailer(d.Logger)
	}
	logger := d.Logger

	institutions := institutionsservice.New(institutionsrepo.NewPostgresRepository(d.DB),
		institutionsservice.WithMailer(d.Mailer),
		institutionsservice.WithMetrics(d.Metrics),
		institutionsservice.WithLogger(logger))

	userOpts := []usersservice.Option{usersservice.WithLogger(logger)}
	staffOpts := []staffservice.Option{staffservice.WithLogger(logger), staffservice.WithMailer(d.Mailer, d.AppBaseURL)}
	if d.Identities != nil {
		userOpts = append(userOpts, usersservice.WithIdentityProvisioner(d.Identities))
		staffOpts = append(staffOpts, staffservice.WithIdentityProvisioner(d.Identities))
	}
	users := usersservice.New(usersrepo.NewPostgresRepository(d.DB), userOpts...)
	staff := staffservice.New(staffrepo.NewPostgresRepository(d.DB), institutions, staffOpts...)

	calendar := academicsservice.New(academicsrepo.NewPostgresRepository(d.DB))

	studentOpts := []studentsservice.Option{studentsservice.WithLogger(logger), studentsservice.WithMetrics(d.Metrics)}
	if d.Archiver != nil {
		studentOpts = append(studentOpts, studentsservice.WithArchiver(d.Archiver, d.EnvKey))
	}
	roster := studentsservice.New(studentsrepo.NewPostgresRepository(d.DB), calendar, studentOpts...)

	ledger := feesservice.New(feesrepo.NewPostgresRepository(d.DB), feesservice.NewDirectory(roster, calendar),
		feesservice.WithMetrics(d.Metrics),
		feesservice.WithLogger(logger))
	analytics := analyticsservice.New(analyticsrepo.NewPostgresRepository(d.DB), calendar,
		analyticsservice.WithMetrics(d.Metrics),
		analyticsservice.WithLogger(logger))
	demos := demosservice.New(demosrepo.NewPostgresRepository(d.DB),
		demosservice.WithMailer(d.Mailer),
		demosservice.WithMetrics(d.Metrics),
		demosservice.WithLogger(logger))
	messages := messagingservice.New(messagingrepo.NewPostgresRepository(d.DB),
		messagingservice.WithMailer(d.Mailer),
		messagingservice.WithMetrics(d.Metrics),
		messagingservice.WithLogger(logger))
	dashboard := oversightservice.New(oversightrepo.NewPostgresRepository(d.DB))

	guard := tenantmw.NewGuard(rbac.NewGate(staff), institutions, logger, d.Metrics)

	validator, err := newContractValidator(ctx, logger)
	if err != nil {
		return nil, err
	}

	root := chi.NewRouter()
	root.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	if d.RequestTimeout > 0 {
		root.Use(chimw.Timeout(d.RequestTimeout))
	}
	root.Use(
		platformmiddleware.CORS(d.AllowedOrigins),
		platformlogging.RequestLogger(logger),
		d.Metrics.Middleware,
	)

	root.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	root.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.Ping(r.Context()); err != nil {
			platformlogging.FromRequest(r, logger).Warn("readiness probe failed", zap.Error(err))
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})
	if d.Metrics != nil {
		root.Handle("/metrics", d.Metrics.Handler())
	}
	registerDocsRoutes(root, logger)

	demosHTTP := demoshandler.New(demos, logger)
	api := chi.NewRouter()
	api.Group(func(public chi.Router) {
		public.Use(validator)
		demosHTTP.MountPublic(public)
	})
	api.Group(func(api chi.Router) {
		api.Use(
			platformauth.JWT(d.Verify, platformauth.DefaultCredentialExtractor),
			platformauth.ResolvePrincipal(users, logger),
			platformmiddleware.RequestTrace,
			validator,
		)

		auditLogs := auditloghandler.New(audit.NewStore(d.DB.Reader()), logger)
		staffHTTP := staffhandler.New(staff, logger)
		institutionsHTTP := institutionshandler.New(institutions, logger)

		usershandler.New(users, logger).Mount(api)
		institutionsHTTP.Mount(api)
		staffHTTP.Mount(api)
		auditLogs.Mount(api)
		demosHTTP.Mount(api)
		oversighthandler.New(dashboard, logger).Mount(api)

		scoped := []interface {
			MountScoped(chi.Router, *tenantmw.Guard)
		}{
			institutionsHTTP,
			staffHTTP,
			academicshandler.New(calendar, logger),
			studentshandler.New(roster, logger),
			feeshandler.New(ledger, logger),
			analyticshandler.New(analytics, logger),
			messaginghandler.New(messages, logger),
			auditLogs,
		}
		api.Route("/institutions/{institutionId}", func(r chi.Router) {
			r.Use(guard.Scope)
			for _, h := range scoped {
				h.MountScoped(r, guard)
			}
		})
	})

	root.Mount("/api/v1", api)
	return root, nil
}

// newContractValidator checks /api/v1 requests against the embedded OpenAPI contract.
// Role checks stay with the rbac gate; the validator only confirms a principal is present.
func newContractValidator(ctx context.Context, logger *zap.Logger) (func(http.Handler) http.Handler, error) {
	doc, err := contracts.Load(ctx)
	if err != nil {
		return nil, err
	}
	return oapimiddleware.OapiRequestValidatorWithOptions(doc, &oapimiddleware.Options{
		Options: openapi3filter.Options{
			AuthenticationFunc: platformmiddleware.ValidateBearerSecurity,
		},
		ErrorHandler: func(w http.ResponseWriter, message string, status int) {
			switch status {
			case http.StatusUnauthorized:
				httpx.Unauthorized(w, message)
			case http.StatusNotFound:
				httpx.WriteProblem(w, httpx.Problem{Type: httpx.ProblemTypeNotFound, Title: "Not found", Status: status, Detail: message})
			default:
				logger.Debug("request rejected by contract", zap.Int("status", status), zap.String("reason", message))
				httpx.WriteProblem(w, httpx.Problem{Type: httpx.ProblemTypeValidation, Title: "Request does not match the API contract", Status: status, Detail: message})
			}
		},
		SilenceServersWarning: true,
	}), nil
}
