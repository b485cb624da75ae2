package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/steveiliop56/jellyauth/internal/assets"
	"github.com/steveiliop56/jellyauth/internal/utils/tlog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

const memoryDatabase = ":memory:"

// Applied by modernc on every new connection
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
}

func sqliteDSN(databasePath string) string {
	params := url.Values{}
	for _, pragma := range sqlitePragmas {
		params.Add("_pragma", pragma)
	}
	return "file:" + databasePath + "?" + params.Encode()
}

// SetupDatabase opens the account directory and migrates it to the latest schema.
func (app *BootstrapApp) SetupDatabase(databasePath string) (*sql.DB, error) {
	if databasePath != memoryDatabase {
		dir := filepath.Dir(databasePath)

		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", sqliteDSN(databasePath))

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection keeps writes serialized and an in-memory database shared
	db.SetMaxOpenConns(1)

	if err := migrateDirectory(db); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func migrateDirectory(db *sql.DB) error {
	source, err := iofs.New(assets.Migrations, "migrations")

	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	target, err := sqlite3.WithInstance(db, &sqlite3.Config{})

	if err != nil {
		return fmt.Errorf("failed to create sqlite3 instance: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "sqlite3", target)

	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := migrator.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	version, dirty, err := migrator.Version()

	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	if dirty {
		return fmt.Errorf("database schema version %d is dirty", version)
	}

	tlog.App.Debug().Uint("version", version).Msg("Account directory schema is up to date")

	return nil
}
