package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.up.sql
var migrations embed.FS

// MigrateUp applies every embedded *.up.sql file that is not yet recorded in
// schema_migrations, in filename order, one transaction per file.
func MigrateUp(ctx context.Context, db *sql.DB) error {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return fmt.Errorf("migrate: ensure migrations table: %w", err)
	}

	files, err := loadMigrationFiles()
	if err != nil {
		return fmt.Errorf("migrate: load files: %w", err)
	}

	current, err := MigrationVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, f := range files {
		if f.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, f); err != nil {
			return fmt.Errorf("migrate: apply %s: %w", f.name, err)
		}
	}
	return nil
}

// MigrationVersion returns the highest applied version, or 0 on a fresh database.
func MigrationVersion(ctx context.Context, db *sql.DB) (int, error) {
	if err := ensureMigrationsTable(ctx, db); err != nil {
		return 0, fmt.Errorf("migrate: ensure migrations table: %w", err)
	}

	var version int
	row := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&version); err != nil {
		return 0, fmt.Errorf("migrate: query version: %w", err)
	}
	return version, nil
}

type migrationFile struct {
	version int
	name    string
	sql     string
}

func ensureMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER NOT NULL PRIMARY KEY,
			name        TEXT    NOT NULL,
			applied_at  TEXT    NOT NULL DEFAULT (datetime('now'))
		)
	`)
	return err
}

func loadMigrationFiles() ([]migrationFile, error) {
	entries, err := fs.Glob(migrations, "migrations/*.up.sql")
	if err != nil {
		return nil, err
	}

	files := make([]migrationFile, 0, len(entries))
	for _, p := range entries {
		content, err := migrations.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", p, err)
		}
		name := path.Base(p)
		version := versionFromFilename(name)
		if version == 0 {
			return nil, fmt.Errorf("migration %s: missing numeric prefix", name)
		}
		files = append(files, migrationFile{version: version, name: name, sql: string(content)})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].version < files[j].version })
	return files, nil
}

// versionFromFilename parses "003_settings.up.sql" as 3.
func versionFromFilename(name string) int {
	var version int
	if _, err := fmt.Sscanf(strings.TrimSpace(name), "%d_", &version); err != nil {
		return 0
	}
	return version
}

func applyMigration(ctx context.Context, db *sql.DB, f migrationFile) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, f.sql); err != nil {
		return fmt.Errorf("exec SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
		f.version, f.name,
	); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
