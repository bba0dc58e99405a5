package database

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

const upSuffix = ".up.sql"

// RunMigrations applies every pending *.up.sql file at the root of fsys in
// lexical order, each in its own transaction, and records it in
// schema_migrations. Dropped connections are retried; SQL errors are not.
func RunMigrations(ctx context.Context, db DBTX, fsys fs.FS, logger *slog.Logger) error {
	files, err := upMigrations(fsys)
	if err != nil {
		return err
	}
	err = retry(ctx, logger, "run migrations", isTransient, func() error {
		return migrate(ctx, db, fsys, files, logger)
	})
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

func upMigrations(fsys fs.FS) ([]string, error) {
	names, err := fs.Glob(fsys, "*"+upSuffix)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	slices.Sort(names)
	return names, nil
}

func migrate(ctx context.Context, db DBTX, fsys fs.FS, files []string, logger *slog.Logger) error {
	const ensureTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := db.Exec(ctx, ensureTable); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := 0
	for _, name := range files {
		var done bool
		if err := db.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, name,
		).Scan(&done); err != nil {
			return fmt.Errorf("check %s: %w", name, err)
		}
		if done {
			continue
		}
		if err := apply(ctx, db, fsys, name); err != nil {
			return err
		}
		applied++
		logger.Info("migration applied", slog.String("version", strings.TrimSuffix(path.Base(name), upSuffix)))
	}

	logger.Info("schema up to date", slog.Int("applied", applied), slog.Int("total", len(files)))
	return nil
}

func apply(ctx context.Context, db DBTX, fsys fs.FS, name string) (err error) {
	body, err := fs.ReadFile(fsys, name)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin %s: %w", name, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if _, err = tx.Exec(ctx, string(body)); err != nil {
		return fmt.Errorf("execute %s: %w", name, err)
	}
	if _, err = tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record %s: %w", name, err)
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit %s: %w", name, err)
	}
	return nil
}
