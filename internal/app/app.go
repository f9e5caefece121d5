// Package app builds the service graph shared by the HTTP server and the MCP
// server from one config, one database handle and one logger.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/matiasleandrokruk/llmhub/internal/domain/audit"
	domainauth "github.com/matiasleandrokruk/llmhub/internal/domain/auth"
	"github.com/matiasleandrokruk/llmhub/internal/domain/catalog"
	"github.com/matiasleandrokruk/llmhub/internal/domain/chat"
	"github.com/matiasleandrokruk/llmhub/internal/domain/settings"
	"github.com/matiasleandrokruk/llmhub/internal/infra/config"
	"github.com/matiasleandrokruk/llmhub/internal/infra/eventbus"
	"github.com/matiasleandrokruk/llmhub/internal/infra/llm"
	pkgauth "github.com/matiasleandrokruk/llmhub/pkg/auth"
)

// App holds the wired services. Run must be started for chat turns to reach
// the audit log.
type App struct {
	DB           *sql.DB
	Logger       *slog.Logger
	Tokens       *pkgauth.TokenIssuer
	Audit        *audit.Service
	Auth         *domainauth.Service
	Catalog      *catalog.Service
	Settings     *settings.Service
	Chat         *chat.Store
	Providers    *llm.Registry
	Orchestrator *chat.Orchestrator
	Bus          *eventbus.Bus

	recorder *chat.AuditRecorder
}

// Options lets callers replace process-level dependencies, mainly in tests.
type Options struct {
	HTTPClient *http.Client
	LookupEnv  chat.LookupEnvFunc
	Registry   *llm.Registry
}

// New wires every service on top of an already migrated database.
func New(cfg config.Config, db *sql.DB, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tokens, err := pkgauth.NewTokenIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("app: token issuer: %w", err)
	}

	registry := opts.Registry
	if registry == nil {
		client := opts.HTTPClient
		if client == nil {
			client = &http.Client{Timeout: cfg.LLM.Timeout}
		}
		registry = llm.NewDefaultRegistry(cfg.LLM.Endpoints, client)
	}
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}

	auditSvc := audit.NewService(db)
	settingsSvc := settings.NewService(db)
	store := chat.NewStore(db)
	bus := eventbus.New()

	a := &App{
		DB:        db,
		Logger:    logger,
		Tokens:    tokens,
		Audit:     auditSvc,
		Auth:      domainauth.NewService(db, tokens, auditSvc),
		Catalog:   catalog.NewService(db),
		Settings:  settingsSvc,
		Chat:      store,
		Providers: registry,
		Bus:       bus,
	}
	a.Orchestrator = chat.NewOrchestrator(chat.OrchestratorDeps{
		Messages:    store,
		Providers:   registry,
		Credentials: chat.NewCredentialResolver(cfg.LLM.PlatformOpenAIKey, settingsSvc, lookupEnv),
		Params:      settingsSvc,
		Events:      bus,
		Logger:      logger,
	})
	a.recorder = chat.NewAuditRecorder(bus, auditSvc, logger)
	return a, nil
}

// Seed loads the bundled model catalog into an empty table.
func (a *App) Seed(ctx context.Context) error {
	n, err := a.Catalog.SeedDefaults(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		a.Logger.Info("model catalog seeded", "models", n)
	}
	return nil
}

// Run forwards completed chat turns to the audit log until ctx is done or
// Close is called.
func (a *App) Run(ctx context.Context) {
	a.recorder.Run(ctx)
}

// Close stops event delivery. The database is owned by the caller.
func (a *App) Close() {
	a.Bus.Close()
}
