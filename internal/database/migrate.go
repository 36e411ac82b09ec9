package database

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/multierr"
)

// MigrationsTable records applied versions. It is separate from the default
// schema_migrations so the dispatcher can share a database with other apps.
const MigrationsTable = "clientpulse_migrations"

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrator owns the dispatcher schema: the webhook registry, the event
// queue, the delivery log and the client triggers that feed the queue.
type Migrator struct {
	m      *migrate.Migrate
	latest uint
}

// Status compares the applied schema with the embedded migrations.
type Status struct {
	Current uint
	Latest  uint
	Dirty   bool
}

// Pending reports whether embedded migrations have not been applied yet.
func (s Status) Pending() bool {
	return s.Current < s.Latest
}

func NewMigrator(db *sql.DB, dbName string) (*Migrator, error) {
	driver, err := postgres.WithInstance(db, &postgres.Config{
		DatabaseName:    dbName,
		MigrationsTable: MigrationsTable,
	})
	if err != nil {
		return nil, fmt.Errorf("create postgres driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("create migration source: %w", err)
	}

	latest, err := latestVersion(src)
	if err != nil {
		return nil, err
	}

	m, err := migrate.NewWithInstance("iofs", src, dbName, driver)
	if err != nil {
		return nil, fmt.Errorf("create migrator: %w", err)
	}

	return &Migrator{m: m, latest: latest}, nil
}

// latestVersion walks the source to its last version.
func latestVersion(src source.Driver) (uint, error) {
	v, err := src.First()
	if err != nil {
		return 0, fmt.Errorf("read first migration: %w", err)
	}
	for {
		next, err := src.Next(v)
		if errors.Is(err, fs.ErrNotExist) {
			return v, nil
		}
		if err != nil {
			return 0, fmt.Errorf("read migration after %d: %w", v, err)
		}
		v = next
	}
}

// Up applies every pending migration. An up-to-date schema is not an error.
func (m *Migrator) Up() error {
	err := m.m.Up()
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Down rolls back one migration. Development only: it drops queue data.
func (m *Migrator) Down() error {
	if err := m.m.Steps(-1); err != nil {
		return fmt.Errorf("rollback migration: %w", err)
	}
	return nil
}

func (m *Migrator) Version() (uint, bool, error) {
	version, dirty, err := m.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("get version: %w", err)
	}
	return version, dirty, nil
}

func (m *Migrator) Status() (Status, error) {
	version, dirty, err := m.Version()
	if err != nil {
		return Status{}, err
	}
	return Status{Current: version, Latest: m.latest, Dirty: dirty}, nil
}

// Force records version as applied without running anything. Used to clear
// a dirty state after a failed migration was fixed by hand.
func (m *Migrator) Force(version int) error {
	if err := m.m.Force(version); err != nil {
		return fmt.Errorf("force version: %w", err)
	}
	return nil
}

func (m *Migrator) Close() error {
	srcErr, dbErr := m.m.Close()
	return multierr.Combine(
		wrapErr("close source", srcErr),
		wrapErr("close database", dbErr),
	)
}

func wrapErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
