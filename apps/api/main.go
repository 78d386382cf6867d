package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	platformauth "github.com/zenGate-Global/edupay-saas/platform/go/auth"
	"github.com/zenGate-Global/edupay-saas/platform/go/gcp"
	platformlogging "github.com/zenGate-Global/edupay-saas/platform/go/logging"
	"github.com/zenGate-Global/edupay-saas/platform/go/notify"
	"github.com/zenGate-Global/edupay-saas/platform/go/observability"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
	"github.com/zenGate-Global/edupay-saas/platform/go/storage"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	DatabaseSchema  string        `env:"DATABASE_SCHEMA" envDefault:"edupay"`
	AuthProvider    string        `env:"AUTH_PROVIDER" envDefault:"firebase"` // firebase | dev
	FirebaseCreds   string        `env:"FIREBASE_CREDENTIALS_FILE"`
	EnvKey          string        `env:"ENV_KEY,required"`
	RollbarToken    string        `env:"ROLLBAR_TOKEN"`
	SendGridAPIKey  string        `env:"SENDGRID_API_KEY"`
	MailFromAddress string        `env:"MAIL_FROM_ADDRESS" envDefault:"no-reply@edupay.africa"`
	MailFromName    string        `env:"MAIL_FROM_NAME" envDefault:"EduPay"`
	AppBaseURL      string        `env:"APP_BASE_URL" envDefault:"http://localhost:5173"`
	ArchiveBackend  string        `env:"ARCHIVE_BACKEND" envDefault:"none"` // gcs | local | none
	ArchiveBucket   string        `env:"ARCHIVE_BUCKET"`                    // required when ARCHIVE_BACKEND=gcs
	ArchiveLocalDir string        `env:"ARCHIVE_LOCAL_DIR" envDefault:"./.data/archive"`
	MetricsEnabled  bool          `env:"METRICS_ENABLED" envDefault:"true"`
	AllowedOrigins  []string      `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
}

func main() {
	ctx := context.Background()

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	hostname, _ := os.Hostname()
	reporter := platformlogging.NewRollbarReporter(platformlogging.RollbarConfig{
		Token:       cfg.RollbarToken,
		Environment: cfg.EnvKey,
		ServerHost:  hostname,
	})
	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component:   "api-server",
		Level:       cfg.LogLevel,
		Environment: cfg.EnvKey,
		Reporter:    reporter,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
		if reporter != nil {
			reporter.Flush()
		}
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL, SearchPath: cfg.DatabaseSchema})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	deps := serverDeps{
		DB:             persistence.NewDB(pool),
		Logger:         logger,
		EnvKey:         cfg.EnvKey,
		AppBaseURL:     cfg.AppBaseURL,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	}
	if cfg.MetricsEnabled {
		deps.Metrics = observability.NewMetrics()
	}

	switch cfg.AuthProvider {
	case "firebase":
		var creds *string
		if cfg.FirebaseCreds != "" {
			creds = &cfg.FirebaseCreds
		}
		_, fbAuth, err := gcp.InitFirebaseAuth(ctx, creds)
		if err != nil {
			logger.Fatal("init firebase auth", zap.Error(err))
		}
		deps.Verify = platformauth.FirebaseTokenVerifier(fbAuth)
		deps.Identities = gcp.NewIdentityProvisioner(fbAuth)
	case "dev":
		logger.Warn("using unsigned dev tokens; do not use in production")
		deps.Verify = platformauth.UnsignedTokenVerifier()
	default:
		logger.Fatal("unsupported auth provider", zap.String("provider", cfg.AuthProvider))
	}

	if cfg.SendGridAPIKey != "" {
		mailer, err := notify.NewSendGridMailer(notify.SendGridConfig{
			APIKey:      cfg.SendGridAPIKey,
			FromName:    cfg.MailFromName,
			FromAddress: cfg.MailFromAddress,
		})
		if err != nil {
			logger.Fatal("init sendgrid mailer", zap.Error(err))
		}
		deps.Mailer = mailer
	} else {
		logger.Info("SENDGRID_API_KEY not set; emails are logged instead of sent")
	}

	switch cfg.ArchiveBackend {
	case "gcs":
		if cfg.ArchiveBucket == "" {
			logger.Fatal("archive bucket required when ARCHIVE_BACKEND=gcs")
		}
		gcsClient, err := gcsstorage.NewClient(ctx)
		if err != nil {
			logger.Fatal("init gcs client", zap.Error(err))
		}
		defer gcsClient.Close()
		deps.Archiver = storage.NewGCSArchiver(gcsClient, cfg.ArchiveBucket)
	case "local":
		if strings.TrimSpace(cfg.ArchiveLocalDir) == "" {
			logger.Fatal("archive local dir required when ARCHIVE_BACKEND=local")
		}
		deps.Archiver = storage.NewLocalArchiver(cfg.ArchiveLocalDir)
	case "none":
	default:
		logger.Fatal("invalid ARCHIVE_BACKEND (use gcs, local or none)", zap.String("backend", cfg.ArchiveBackend))
	}

	handler, err := newRouter(ctx, deps)
	if err != nil {
		logger.Fatal("build router", zap.Error(err))
	}

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
