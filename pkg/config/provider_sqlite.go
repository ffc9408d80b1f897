package config

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/chrissnell/precipgen/internal/constants"
	"github.com/chrissnell/precipgen/pkg/migrate"
	"gopkg.in/yaml.v2"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationTable records the applied configuration schema version.
const MigrationTable = "schema_migrations"

// NewMigrator returns a migrator for the configuration schema on db.
func NewMigrator(db *sql.DB) *migrate.Migrator {
	return migrate.NewMigrator(db, migrate.NewFSProvider(migrations, "migrations", MigrationTable))
}

// SQLiteProvider implements ConfigProvider for SQLite database configuration.
// Each config section is stored as one YAML document row.
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider opens dbPath and brings its schema up to date.
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if err := NewMigrator(db).MigrateUp(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate config schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*AnalysisConfig, error) {
	cfg := Defaults()
	sections := cfg.sections()

	rows, err := s.db.Query(`SELECT name, body FROM config_sections ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query config sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name, body string
		if err := rows.Scan(&name, &body); err != nil {
			return nil, fmt.Errorf("failed to scan config section: %w", err)
		}
		target, ok := sections[name]
		if !ok {
			return nil, fmt.Errorf("unknown config section %q in %s", name, s.dbPath)
		}
		if err := yaml.UnmarshalStrict([]byte(body), target); err != nil {
			return nil, fmt.Errorf("failed to decode config section %s: %w", name, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read config sections: %w", err)
	}
	return cfg, nil
}

// IsReadOnly returns false since SQLite configuration can be modified
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the stored configuration in a single transaction.
// source describes where the configuration came from, e.g. a YAML path.
func (s *SQLiteProvider) SaveConfig(cfg *AnalysisConfig, source string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM config_sections`); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	for name, section := range cfg.sections() {
		body, err := yaml.Marshal(section)
		if err != nil {
			return fmt.Errorf("failed to encode config section %s: %w", name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO config_sections (name, body, updated_at) VALUES (?, ?, datetime('now'))`,
			name, string(body),
		); err != nil {
			return fmt.Errorf("failed to insert config section %s: %w", name, err)
		}
	}

	if _, err := tx.Exec(
		`INSERT OR REPLACE INTO config_meta (id, source, app_version, saved_at) VALUES (1, ?, ?, datetime('now'))`,
		source, constants.Version,
	); err != nil {
		return fmt.Errorf("failed to record config metadata: %w", err)
	}

	return tx.Commit()
}

// Source returns where the stored configuration was imported from.
func (s *SQLiteProvider) Source() (string, error) {
	var source sql.NullString
	err := s.db.QueryRow(`SELECT source FROM config_meta WHERE id = 1`).Scan(&source)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read config metadata: %w", err)
	}
	return source.String, nil
}
