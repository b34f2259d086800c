package storage

import (
	"context"
	"embed"

	"github.com/gobarber/appointments/libs/db"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate brings the appointment schema up to date and returns the files it applied.
func Migrate(ctx context.Context, pool *db.Pool) ([]string, error) {
	return db.Migrate(ctx, pool, migrations, "migrations")
}
