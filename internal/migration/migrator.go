package migration

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations
var migrationsFS embed.FS

// DatabaseType represents the type of database
type DatabaseType string

const (
	DatabaseTypePostgres DatabaseType = "postgres"
	DatabaseTypeMySQL    DatabaseType = "mysql"
)

// ErrUseAutoMigrate is returned for sqlite, whose table is created by gorm.
var ErrUseAutoMigrate = errors.New("sqlite schema is managed by persistence.sql.auto_migrate")

// ParseDatabaseType parses a driver name as used in persistence.sql.driver.
func ParseDatabaseType(s string) (DatabaseType, error) {
	switch strings.ToLower(s) {
	case "postgres", "postgresql", "pg":
		return DatabaseTypePostgres, nil
	case "mysql", "mariadb":
		return DatabaseTypeMySQL, nil
	case "sqlite", "sqlite3":
		return "", ErrUseAutoMigrate
	default:
		return "", fmt.Errorf("unsupported database type: %s", s)
	}
}

// MigrationStatus describes one embedded migration.
type MigrationStatus struct {
	Version uint
	Name    string
	Applied bool
	Dirty   bool
}

// Config holds the configuration for the migrator
type Config struct {
	DatabaseType DatabaseType
	// DatabaseURL is passed to database/sql as the DSN.
	DatabaseURL string
	// TableName is the migrate bookkeeping table (default: schema_migrations)
	TableName string
}

// Migrator applies the embedded session-table migrations.
type Migrator struct {
	config  Config
	db      *sql.DB
	migrate *migrate.Migrate
}

// NewMigrator opens the database and prepares the migrate engine.
func NewMigrator(cfg Config) (*Migrator, error) {
	if cfg.DatabaseURL == "" {
		return nil, errors.New("database URL is required")
	}
	if cfg.TableName == "" {
		cfg.TableName = "schema_migrations"
	}

	m := &Migrator{config: cfg}

	db, err := sql.Open(sqlDriverName(cfg.DatabaseType), cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	m.db = db

	driver, err := m.databaseDriver()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create database driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, m.sourcePath())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create source driver: %w", err)
	}

	m.migrate, err = migrate.NewWithInstance("iofs", src, string(cfg.DatabaseType), driver)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create migrate instance: %w", err)
	}
	return m, nil
}

// sqlDriverName returns the database/sql driver registered by the
// corresponding golang-migrate database package.
func sqlDriverName(t DatabaseType) string {
	switch t {
	case DatabaseTypePostgres:
		return "postgres"
	case DatabaseTypeMySQL:
		return "mysql"
	default:
		return string(t)
	}
}

func (m *Migrator) databaseDriver() (database.Driver, error) {
	switch m.config.DatabaseType {
	case DatabaseTypePostgres:
		return postgres.WithInstance(m.db, &postgres.Config{MigrationsTable: m.config.TableName})
	case DatabaseTypeMySQL:
		return mysql.WithInstance(m.db, &mysql.Config{MigrationsTable: m.config.TableName})
	default:
		return nil, fmt.Errorf("unsupported database type: %s", m.config.DatabaseType)
	}
}

func (m *Migrator) sourcePath() string {
	return sourcePath(m.config.DatabaseType)
}

func sourcePath(t DatabaseType) string {
	return "migrations/" + string(t)
}

// Up applies all pending migrations
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.migrate.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// Down rolls back the last migration
func (m *Migrator) Down(ctx context.Context) error {
	if err := m.migrate.Steps(-1); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration down failed: %w", err)
	}
	return nil
}

// Version returns the current version; 0 means nothing applied.
func (m *Migrator) Version(ctx context.Context) (uint, bool, error) {
	version, dirty, err := m.migrate.Version()
	if err != nil {
		if errors.Is(err, migrate.ErrNilVersion) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to get version: %w", err)
	}
	return version, dirty, nil
}

// Status lists embedded migrations and whether each is applied.
func (m *Migrator) Status(ctx context.Context) ([]MigrationStatus, error) {
	current, dirty, err := m.Version(ctx)
	if err != nil {
		return nil, err
	}
	statuses, err := Available(m.config.DatabaseType)
	if err != nil {
		return nil, err
	}
	for i := range statuses {
		statuses[i].Applied = statuses[i].Version <= current
		statuses[i].Dirty = dirty && statuses[i].Version == current
	}
	return statuses, nil
}

// Available lists the migrations embedded for t, ordered by version.
func Available(t DatabaseType) ([]MigrationStatus, error) {
	entries, err := fs.ReadDir(migrationsFS, sourcePath(t))
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var statuses []MigrationStatus
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		v, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			continue
		}
		statuses = append(statuses, MigrationStatus{
			Version: uint(v),
			Name:    strings.TrimSuffix(parts[1], ".up.sql"),
		})
	}
	sort.Slice(statuses, func(i, j int) bool { return statuses[i].Version < statuses[j].Version })
	return statuses, nil
}

// Close closes the migrator and releases resources
func (m *Migrator) Close() error {
	if m.migrate == nil {
		return nil
	}
	sourceErr, dbErr := m.migrate.Close()
	return errors.Join(sourceErr, dbErr)
}
