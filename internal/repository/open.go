package store

import (
	"context"
	"strings"
)

// Open picks a backend from the DSN: postgres:// and postgresql:// URLs use
// PostgresStore, anything else is handed to SQLite.
func Open(ctx context.Context, dsn string) (Store, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(dsn)
}
