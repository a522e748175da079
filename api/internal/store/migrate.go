package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	mpgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	msqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrations embed.FS

// MigrateUp applies every pending migration. No change is not an error.
func MigrateUp(db *sql.DB, d Dialect) error {
	m, err := newMigrate(db, d)
	if err != nil {
		return err
	}
	// m is not closed: that would close db.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// MigrateVersion returns the applied version; 0 when nothing ran yet.
func MigrateVersion(db *sql.DB, d Dialect) (uint, bool, error) {
	m, err := newMigrate(db, d)
	if err != nil {
		return 0, false, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

func newMigrate(db *sql.DB, d Dialect) (*migrate.Migrate, error) {
	var (
		driver database.Driver
		dir    string
		err    error
	)
	switch d {
	case SQLite:
		dir = "migrations/sqlite"
		driver, err = msqlite.WithInstance(db, &msqlite.Config{})
	case Postgres:
		dir = "migrations/postgres"
		driver, err = mpgx.WithInstance(db, &mpgx.Config{})
	default:
		return nil, fmt.Errorf("unknown dialect %q", d)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s migrate driver: %w", d, err)
	}

	src, err := iofs.New(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open migrations: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, string(d), driver)
	if err != nil {
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	m.Log = &migrateLogger{}
	return m, nil
}

type migrateLogger struct{}

func (l *migrateLogger) Printf(format string, v ...interface{}) {
	log.Printf("[migrate] "+format, v...)
}

func (l *migrateLogger) Verbose() bool { return false }
