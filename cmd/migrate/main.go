// Command migrate applies the SQL files under migrations/ in lexical order,
// recording each applied file in schema_migrations so reruns are no-ops.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"agromart/internal/config"
	"agromart/internal/db"
	"agromart/internal/logging"
)

const downMarker = "-- +migrate Down"

func main() {
	log := logging.New("migrate")
	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("migration failed")
	}
	log.Info().Msg("schema up to date")
}

func run(log zerolog.Logger) error {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer database.Close()

	if _, err := database.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (filename text primary key, applied_at timestamptz default now())`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	pending, err := pendingMigrations(database)
	if err != nil {
		return err
	}
	for _, path := range pending {
		if err := apply(database, path); err != nil {
			return fmt.Errorf("apply %s: %w", filepath.Base(path), err)
		}
		log.Info().Str("file", filepath.Base(path)).Msg("applied migration")
	}
	return nil
}

// pendingMigrations lists migrations/*.sql without a schema_migrations row,
// in lexical order.
func pendingMigrations(database *sqlx.DB) ([]string, error) {
	files, err := filepath.Glob("migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	var names []string
	if err := database.Select(&names, `SELECT filename FROM schema_migrations`); err != nil {
		return nil, fmt.Errorf("read migration state: %w", err)
	}
	applied := make(map[string]bool, len(names))
	for _, name := range names {
		applied[name] = true
	}

	var pending []string
	for _, file := range files {
		if !applied[filepath.Base(file)] {
			pending = append(pending, file)
		}
	}
	return pending, nil
}

// apply runs the up section of one migration and records it, both inside a
// single transaction so a failed migration leaves no partial schema behind.
func apply(database *sqlx.DB, path string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	up, _, _ := strings.Cut(string(content), downMarker)
	if strings.TrimSpace(up) == "" {
		return fmt.Errorf("no up section in %s", filepath.Base(path))
	}

	tx, err := database.Beginx()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(up); err != nil {
		_ = tx.Rollback()
		return err
	}
	if _, err := tx.Exec(`INSERT INTO schema_migrations (filename) VALUES ($1)`, filepath.Base(path)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
