// Package clienv opens the database and logger shared by CLI subcommands.
package clienv

import (
	"context"
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	platformlogging "github.com/zenGate-Global/edupay-saas/platform/go/logging"
	"github.com/zenGate-Global/edupay-saas/platform/go/persistence"
)

// Config mirrors the API server variables the CLI needs.
type Config struct {
	DatabaseURL    string `env:"DATABASE_URL"`
	DatabaseSchema string `env:"DATABASE_SCHEMA" envDefault:"edupay"`
	LogLevel       string `env:"LOG_LEVEL" envDefault:"info"`
	EnvKey         string `env:"ENV_KEY" envDefault:"dev"`
}

// Load reads .env when present, then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// BindFlags registers --database-url and --schema on cmd; flags win over the environment.
func BindFlags(cmd *cobra.Command, cfg *Config) {
	cmd.Flags().StringVar(&cfg.DatabaseURL, "database-url", "", "PostgreSQL connection string (defaults to DATABASE_URL)")
	cmd.Flags().StringVar(&cfg.DatabaseSchema, "schema", "", "schema holding the EduPay tables (defaults to DATABASE_SCHEMA)")
}

// Runtime is an open database plus a logger.
type Runtime struct {
	Config Config
	Pool   *pgxpool.Pool
	DB     *persistence.DB
	Logger *zap.Logger
}

// Open merges flag values over the environment and connects.
func Open(ctx context.Context, flags Config) (*Runtime, error) {
	cfg, err := Load()
	if err != nil {
		return nil, err
	}
	if flags.DatabaseURL != "" {
		cfg.DatabaseURL = flags.DatabaseURL
	}
	if flags.DatabaseSchema != "" {
		cfg.DatabaseSchema = flags.DatabaseSchema
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database url is required (--database-url or DATABASE_URL)")
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component:   "cli",
		Level:       cfg.LogLevel,
		Environment: cfg.EnvKey,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL, SearchPath: cfg.DatabaseSchema})
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("init pool: %w", err)
	}
	return &Runtime{Config: cfg, Pool: pool, DB: persistence.NewDB(pool), Logger: logger}, nil
}

func (r *Runtime) Close() {
	persistence.ClosePool(r.Pool)
	_ = r.Logger.Sync()
}
