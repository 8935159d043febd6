package migration

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var migrations embed.FS

// RunMigrations applies every pending migration on startup.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("Starting database migrations")

	// The pool owns the connections; db is only a database/sql view of it.
	db := stdlib.OpenDBFromPool(pool)

	fsys, err := fs.Sub(migrations, "sql")
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}
	provider, err := goose.NewProvider(goose.DialectPostgres, db, fsys)
	if err != nil {
		return fmt.Errorf("create migration provider: %w", err)
	}

	results, err := provider.Up(ctx)
	for _, r := range results {
		if r.Error != nil {
			slog.Error("Migration failed", "version", r.Source.Version, "path", r.Source.Path, "error", r.Error)
			continue
		}
		slog.Info("Migration completed", "version", r.Source.Version, "path", r.Source.Path, "duration", r.Duration)
	}
	if err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	slog.Info("All migrations completed successfully", "applied", len(results))
	return nil
}
