package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"
)

// Schema versions:
// v1: sessions, messages, commands collections with secondary indexes
// v2: config collection
// v3: users collection
// v4: prefs collection (durable local keys: auth state)
//
//go:embed migrations/*.sql
var migrationsFS embed.FS

// runMigrations applies every schema step between the recorded version and
// the current one, in order, exactly once. Steps are written to be no-ops
// when a collection already exists.
func runMigrations(db *sql.DB, log *zap.Logger) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migration source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to prepare migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	log.Info("schema ready", zap.Uint("version", version), zap.Bool("dirty", dirty))
	return nil
}
