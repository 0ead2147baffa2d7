package data

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/target/bulkmail/internal/migrate"
)

// RunMigrations applies the bulk job and credit schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	return migrate.Run(ctx, db, logger)
}
