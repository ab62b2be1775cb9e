package postgres

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"stockledger/pkg/logger"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies every embedded migration that has not run yet.
// Applied versions are tracked in sys_schema_migrations.
func Migrate(ctx context.Context, txm *TxManager) error {
	if _, err := txm.Pool().Exec(ctx, `
		CREATE TABLE IF NOT EXISTS sys_schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(files)

	for _, file := range files {
		if err := applyMigration(ctx, txm, file); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(ctx context.Context, txm *TxManager, file string) error {
	return txm.RunInTransaction(ctx, func(ctx context.Context) error {
		q := txm.GetQuerier(ctx)

		tag, err := q.Exec(ctx,
			"INSERT INTO sys_schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", file)
		if err != nil {
			return fmt.Errorf("record migration %s: %w", file, err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		body, err := migrationsFS.ReadFile(file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}
		if _, err := q.Exec(ctx, string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", file, err)
		}

		logger.Info(ctx, "migration applied", "version", file)
		return nil
	})
}
