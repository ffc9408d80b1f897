// Package migrate applies versioned SQL migrations inside transactions.
package migrate

import (
	"database/sql"
	"fmt"
	"sort"
)

// Migration is one versioned schema change.
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// DB represents either a database connection or transaction
type DB interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// MigrationProvider loads migrations and tracks the applied version.
type MigrationProvider interface {
	GetMigrations() ([]Migration, error)
	GetCurrentVersion(db *sql.DB) (int, error)
	SetVersion(db DB, version int) error
	CreateMigrationTable(db *sql.DB) error
}

// Migrator applies migrations from a provider.
type Migrator struct {
	db       *sql.DB
	provider MigrationProvider
	logf     func(template string, args ...interface{})
}

// NewMigrator creates a new migrator instance
func NewMigrator(db *sql.DB, provider MigrationProvider) *Migrator {
	return &Migrator{
		db:       db,
		provider: provider,
		logf:     func(string, ...interface{}) {},
	}
}

// WithLogf reports each applied migration through logf, e.g. a zap
// SugaredLogger's Infof.
func (m *Migrator) WithLogf(logf func(template string, args ...interface{})) *Migrator {
	if logf != nil {
		m.logf = logf
	}
	return m
}

// MigrateUp runs all pending migrations up to the latest version
func (m *Migrator) MigrateUp() error {
	return m.MigrateTo(-1)
}

// MigrateDown reverts migrations until targetVersion is current.
func (m *Migrator) MigrateDown(targetVersion int) error {
	currentVersion, err := m.provider.GetCurrentVersion(m.db)
	if err != nil {
		return fmt.Errorf("failed to get current version: %w", err)
	}
	if targetVersion >= currentVersion {
		return fmt.Errorf("target version %d must be less than current version %d", targetVersion, currentVersion)
	}

	migrations, err := m.sorted()
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		mig := migrations[i]
		if mig.Version > targetVersion && mig.Version <= currentVersion {
			if err := m.execute(mig, false); err != nil {
				return fmt.Errorf("failed to roll back migration %d: %w", mig.Version, err)
			}
		}
	}
	return nil
}

// MigrateTo moves the schema up or down to targetVersion; -1 means latest.
func (m *Migrator) MigrateTo(targetVersion int) error {
	currentVersion, err := m.GetCurrentVersion()
	if err != nil {
		return err
	}

	migrations, err := m.sorted()
	if err != nil {
		return err
	}
	if targetVersion == -1 && len(migrations) > 0 {
		targetVersion = migrations[len(migrations)-1].Version
	}
	if targetVersion < currentVersion {
		return m.MigrateDown(targetVersion)
	}

	for _, mig := range migrations {
		if mig.Version > currentVersion && mig.Version <= targetVersion {
			if err := m.execute(mig, true); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", mig.Version, err)
			}
		}
	}
	return nil
}

// GetCurrentVersion returns the current migration version
func (m *Migrator) GetCurrentVersion() (int, error) {
	if err := m.provider.CreateMigrationTable(m.db); err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}
	return m.provider.GetCurrentVersion(m.db)
}

// GetPendingMigrations returns migrations that haven't been applied yet
func (m *Migrator) GetPendingMigrations() ([]Migration, error) {
	currentVersion, err := m.GetCurrentVersion()
	if err != nil {
		return nil, err
	}
	migrations, err := m.sorted()
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, mig := range migrations {
		if mig.Version > currentVersion {
			pending = append(pending, mig)
		}
	}
	return pending, nil
}

func (m *Migrator) sorted() ([]Migration, error) {
	migrations, err := m.provider.GetMigrations()
	if err != nil {
		return nil, fmt.Errorf("failed to get migrations: %w", err)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// execute runs one migration and records the resulting version in the same
// transaction.
func (m *Migrator) execute(mig Migration, up bool) error {
	stmt, direction, newVersion := mig.Up, "up", mig.Version
	if !up {
		stmt, direction, newVersion = mig.Down, "down", mig.Version-1
	}
	if stmt == "" {
		return fmt.Errorf("migration %d has no %s SQL", mig.Version, direction)
	}

	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(stmt); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}
	if err := m.provider.SetVersion(tx, newVersion); err != nil {
		return fmt.Errorf("failed to update migration version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration transaction: %w", err)
	}

	m.logf("applied migration %d (%s) %s", mig.Version, mig.Name, direction)
	return nil
}
