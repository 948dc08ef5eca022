// Package dbtest opens migrated in-memory SQLite databases for tests.
package dbtest

import (
	"context"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/bezpauzy/eva-bot/internal/config"
	"github.com/bezpauzy/eva-bot/internal/database"
)

// New returns a fresh migrated database closed at test cleanup.
func New(t testing.TB) *sqlx.DB {
	t.Helper()

	db, err := database.Connect(context.Background(), config.DatabaseConfig{
		Driver: database.DriverSQLite,
		DSN:    ":memory:",
	})
	if err != nil {
		t.Fatalf("connect sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, zerolog.Nop()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return db
}
