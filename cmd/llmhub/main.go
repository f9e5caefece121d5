// Command llmhub serves the multi-provider chat API, applies migrations and
// exposes the chat tools to MCP clients.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/matiasleandrokruk/llmhub/internal/app"
	"github.com/matiasleandrokruk/llmhub/internal/infra/config"
	"github.com/matiasleandrokruk/llmhub/internal/infra/logging"
	"github.com/matiasleandrokruk/llmhub/internal/infra/sqlite"
	"github.com/matiasleandrokruk/llmhub/internal/mcpserver"
	"github.com/matiasleandrokruk/llmhub/internal/server"
	"github.com/matiasleandrokruk/llmhub/internal/version"
)

// CLI is the kong command tree.
type CLI struct {
	Config string `help:"YAML config file. Environment variables still override it." env:"LLMHUB_CONFIG" type:"path"`

	Serve   ServeCmd   `cmd:"" default:"withargs" help:"Start the HTTP API server (default)."`
	Migrate MigrateCmd `cmd:"" help:"Apply database migrations and seed the model catalog."`
	Version VersionCmd `cmd:"" help:"Print version information."`
	MCP     MCPCmd     `cmd:"" name:"mcp" help:"Serve chat tools over MCP stdio on behalf of one user."`
}

// runtime is bound into every command's Run method.
type runtime struct {
	ctx    context.Context
	stdout io.Writer
	stderr io.Writer
}

// exitCode carries kong's requested exit status out of Parse.
type exitCode int

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (code int) {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name(version.Name),
		kong.Description("Multi-provider LLM chat service."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
		kong.Exit(func(c int) { panic(exitCode(c)) }),
	)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck
		return 1
	}

	defer func() {
		if r := recover(); r != nil {
			ec, ok := r.(exitCode)
			if !ok {
				panic(r)
			}
			code = int(ec)
		}
	}()

	kctx, err := parser.Parse(args)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck
		return 2
	}
	if err := kctx.Run(&cli, &runtime{ctx: ctx, stdout: stdout, stderr: stderr}); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err) //nolint:errcheck
		return 1
	}
	return 0
}

// ServeCmd runs the HTTP server until interrupted.
type ServeCmd struct {
	Host string `help:"Overrides HTTP_HOST."`
	Port int    `help:"Overrides HTTP_PORT."`
}

func (c *ServeCmd) Run(cli *CLI, rt *runtime) error {
	cfg, logger, closeLog, err := setup(cli, rt)
	if err != nil {
		return err
	}
	defer closeLog()
	if c.Host != "" {
		cfg.HTTP.Host = c.Host
	}
	if c.Port != 0 {
		cfg.HTTP.Port = c.Port
	}

	db, err := openDatabase(rt.ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := app.New(cfg, db, logger, app.Options{})
	if err != nil {
		return err
	}
	if err := a.Seed(rt.ctx); err != nil {
		return err
	}

	srvCfg := server.DefaultConfig()
	srvCfg.Host = cfg.HTTP.Host
	srvCfg.Port = cfg.HTTP.Port
	if floor := cfg.LLM.Timeout + srvCfg.ReadTimeout; srvCfg.WriteTimeout < floor {
		srvCfg.WriteTimeout = floor
	}

	logger.Info("starting llmhub", "version", version.Version, "database", cfg.Database.Path)
	return server.NewServer(a, srvCfg).Start(rt.ctx)
}

// MigrateCmd applies pending migrations and seeds the catalog.
type MigrateCmd struct {
	Status bool `help:"Only print the applied schema version."`
}

func (c *MigrateCmd) Run(cli *CLI, rt *runtime) error {
	cfg, logger, closeLog, err := setup(cli, rt)
	if err != nil {
		return err
	}
	defer closeLog()

	if c.Status {
		db, err := sqlite.NewDB(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer db.Close()
		v, err := sqlite.MigrationVersion(rt.ctx, db)
		if err != nil {
			return err
		}
		fmt.Fprintf(rt.stdout, "schema version %d\n", v) //nolint:errcheck
		return nil
	}

	db, err := openDatabase(rt.ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := app.New(cfg, db, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.Seed(rt.ctx); err != nil {
		return err
	}

	v, err := sqlite.MigrationVersion(rt.ctx, db)
	if err != nil {
		return err
	}
	fmt.Fprintf(rt.stdout, "schema version %d\n", v) //nolint:errcheck
	return nil
}

// VersionCmd prints the build version.
type VersionCmd struct{}

func (VersionCmd) Run(rt *runtime) error {
	fmt.Fprintln(rt.stdout, version.String()) //nolint:errcheck
	return nil
}

// MCPCmd serves MCP over stdin/stdout. Logs always go to stderr or the log
// file so the protocol stream stays clean.
type MCPCmd struct {
	UserID string `name:"user-id" required:"" help:"Existing user the tools act as."`
}

func (c *MCPCmd) Run(cli *CLI, rt *runtime) error {
	cfg, logger, closeLog, err := setup(cli, rt)
	if err != nil {
		return err
	}
	defer closeLog()

	db, err := openDatabase(rt.ctx, cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	a, err := app.New(cfg, db, logger, app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	if _, err := a.Auth.GetUser(rt.ctx, c.UserID); err != nil {
		return fmt.Errorf("mcp: user %q: %w", c.UserID, err)
	}
	go a.Run(rt.ctx)

	logger.Info("mcp server starting", "user_id", c.UserID)
	err = mcpserver.Serve(rt.ctx, a, c.UserID)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func setup(cli *CLI, rt *runtime) (config.Config, *slog.Logger, func(), error) {
	cfg, err := config.LoadFile(cli.Config)
	if err != nil {
		return config.Config{}, nil, nil, err
	}
	logger, closer, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	}, rt.stderr)
	if err != nil {
		logger.Warn("log file unavailable, logging to stderr", "file", cfg.Log.File, "error", err)
	}
	slog.SetDefault(logger)
	return cfg, logger, func() { _ = closer.Close() }, nil
}

// openDatabase creates the parent directory, opens the database and applies
// migrations.
func openDatabase(ctx context.Context, path string) (*sql.DB, error) {
	if path != sqlite.MemoryPath {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}
	db, err := sqlite.NewDB(path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.MigrateUp(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
