package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/BaSui01/voiceflow/agent/persistence"
	"github.com/BaSui01/voiceflow/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

// runMigrate applies the embedded session-table migrations to the SQL store
// named by persistence.sql, or to --db-type/--db-url when given.
//
//	voiceflow migrate [--config path] [--db-type t --db-url u] up|down|version|status
func runMigrate(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	fs.SetOutput(out)
	dbType := fs.String("db-type", "", "Database type (postgres, mysql)")
	dbURL := fs.String("db-url", "", "Database connection URL")
	cfg, _, err := loadConfig(fs, args)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		printMigrateUsage(out)
		return errors.New("expected exactly one migrate subcommand")
	}

	driver, dsn := *dbType, *dbURL
	if driver == "" {
		if cfg.Persistence.Type != persistence.StoreTypeSQL {
			return fmt.Errorf("persistence.type is %q; migrations only apply to the sql store", cfg.Persistence.Type)
		}
		driver = cfg.Persistence.SQL.Driver
	}
	if dsn == "" {
		dsn = cfg.Persistence.SQL.DSN
	}

	t, err := migration.ParseDatabaseType(driver)
	if err != nil {
		return err
	}
	m, err := migration.NewMigrator(migration.Config{DatabaseType: t, DatabaseURL: dsn})
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	return migration.Run(context.Background(), m, fs.Arg(0), out)
}

func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Session Table Migrations

Usage:
  voiceflow migrate [options] <subcommand>

Subcommands:
  up        Apply all pending migrations
  down      Roll back the last migration
  version   Show the current migration version
  status    List embedded migrations and whether they are applied

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    postgres or mysql (default: persistence.sql.driver)
  --db-url <url>      Connection URL (default: persistence.sql.dsn)

sqlite stores create their table through persistence.sql.auto_migrate.`)
}
