// Command migrate applies pending SQL migration files to the SQLite
// database. Applied versions are recorded in schema_migrations so the
// tool can run repeatedly.
package main

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Migration is a single migration file read from the migrations directory.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row from the schema_migrations table.
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

// timeLayout matches the fixed-width UTC strings the store writes.
const timeLayout = "2006-01-02T15:04:05Z"

var (
	dbPath        = flag.String("db", defaultDBPath(), "Path to the SQLite database file")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "migrations/sqlite", "Path to migrations directory")
)

func defaultDBPath() string {
	if path := os.Getenv("SPENDSENSE_DB_PATH"); path != "" {
		return path
	}
	return "spendsense.db"
}

func main() {
	flag.Parse()

	ctx := context.Background()

	db, err := sql.Open("sqlite3", *dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		log.Fatalf("Failed to open database %s: %v", *dbPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	log.Printf("Connected to SQLite database: %s", *dbPath)

	if err := ensureSchemaMigrationsTable(ctx, db); err != nil {
		log.Fatalf("Failed to ensure schema_migrations table: %v", err)
	}

	migrations, err := readMigrations(*migrationsDir)
	if err != nil {
		log.Fatalf("Failed to read migrations: %v", err)
	}

	log.Printf("Found %d migration files", len(migrations))

	applied, err := getAppliedMigrations(ctx, db)
	if err != nil {
		log.Fatalf("Failed to get applied migrations: %v", err)
	}

	log.Printf("Found %d already applied migrations", len(applied))

	appliedByVersion := make(map[int]AppliedMigration, len(applied))
	for _, am := range applied {
		appliedByVersion[am.Version] = am
	}

	appliedCount := 0
	for _, migration := range migrations {
		if prev, ok := appliedByVersion[migration.Version]; ok {
			if prev.Checksum != "" && prev.Checksum != migration.Checksum {
				log.Printf("  [WARN] %04d_%s changed after it was applied (checksum mismatch)", migration.Version, migration.Name)
			}
			log.Printf("  [SKIP] %04d_%s (already applied)", migration.Version, migration.Name)
			continue
		}

		log.Printf("  [RUN]  %04d_%s", migration.Version, migration.Name)

		if err := applyMigration(ctx, db, migration, *appliedBy); err != nil {
			log.Fatalf("Failed to apply migration %04d_%s: %v", migration.Version, migration.Name, err)
		}

		log.Printf("  [OK]   %04d_%s", migration.Version, migration.Name)
		appliedCount++
	}

	if appliedCount == 0 {
		log.Println("No new migrations to apply. Database is up to date.")
	} else {
		log.Printf("Successfully applied %d migration(s)", appliedCount)
	}
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it
// doesn't exist.
func ensureSchemaMigrationsTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL,
			checksum   TEXT NOT NULL DEFAULT '',
			applied_by TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations: %w", err)
	}
	return nil
}

// readMigrations reads all migration files from dir, sorted by version.
// Files must be named like 0001_init.sql; anything else is skipped.
func readMigrations(dir string) ([]Migration, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		// Try from the repo root in case we're running inside cmd/migrate.
		fallback := filepath.Join("..", "..", dir)
		if _, err := os.Stat(fallback); os.IsNotExist(err) {
			return nil, fmt.Errorf("migrations directory not found: %s", dir)
		}
		dir = fallback
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading migrations directory: %w", err)
	}

	pattern := regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

	var migrations []Migration
	for _, file := range files {
		if file.IsDir() {
			continue
		}

		matches := pattern.FindStringSubmatch(file.Name())
		if matches == nil {
			log.Printf("Skipping file with invalid format: %s", file.Name())
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			log.Printf("Skipping file with invalid version: %s", file.Name())
			continue
		}

		content, err := os.ReadFile(filepath.Join(dir, file.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading file %s: %w", file.Name(), err)
		}

		migrations = append(migrations, Migration{
			Version:  version,
			Name:     matches[2],
			Filename: file.Name(),
			SQL:      string(content),
			Checksum: checksum(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

func checksum(content []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(content))
}

// getAppliedMigrations retrieves the list of already applied migrations.
func getAppliedMigrations(ctx context.Context, db *sql.DB) ([]AppliedMigration, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT version, name, applied_at, checksum, applied_by
		FROM schema_migrations
		ORDER BY version ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("reading applied migrations: %w", err)
	}
	defer rows.Close()

	var applied []AppliedMigration
	for rows.Next() {
		var (
			am        AppliedMigration
			appliedAt string
		)
		if err := rows.Scan(&am.Version, &am.Name, &appliedAt, &am.Checksum, &am.AppliedBy); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		if t, err := time.Parse(timeLayout, appliedAt); err == nil {
			am.AppliedAt = t
		}
		applied = append(applied, am)
	}
	return applied, rows.Err()
}

// applyMigration executes the migration SQL and records it in
// schema_migrations within a single transaction, so a failed migration
// leaves no record behind.
func applyMigration(ctx context.Context, db *sql.DB, migration Migration, appliedBy string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, migration.SQL); err != nil {
		return fmt.Errorf("executing migration: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO schema_migrations (version, name, applied_at, checksum, applied_by)
		VALUES (?, ?, ?, ?, ?)
	`, migration.Version, migration.Name, time.Now().UTC().Format(timeLayout), migration.Checksum, appliedBy)
	if err != nil {
		return fmt.Errorf("recording migration: %w", err)
	}

	return tx.Commit()
}
