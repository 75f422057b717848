// Package storage persists each Project's committed symbol, reference,
// and dependency tables (spec §4.11) in a per-project modernc.org/sqlite
// database, schema-versioned with pressly/goose migrations, grounded in
// dshills-gocontext-mcp's storage package and eargollo-ditto2's migration
// wiring.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a single project's sqlite database.
type Store struct {
	db   *sql.DB
	root string
}

// Open opens (creating if absent) the sqlite file for project root under
// dataDir, enables WAL journal mode and foreign keys, and applies any
// pending migrations.
func Open(ctx context.Context, dataDir, root string) (*Store, error) {
	path := dbPath(dataDir, root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("storage: mkdir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite is not safe for concurrent writers

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage: migrate: %w", err)
	}

	return &Store{db: db, root: root}, nil
}

func dbPath(dataDir, root string) string {
	encoded := strings.ReplaceAll(root, string(filepath.Separator), "_")
	return filepath.Join(dataDir, "projects", encoded+".sqlite")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// DropAll removes every row belonging to this project, used when a
// project is removed with delete (not unload) semantics (§4.1).
func (s *Store) DropAll(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage: begin: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM job_results", "DELETE FROM dependencies",
		"DELETE FROM refs", "DELETE FROM symbols_fts",
		"DELETE FROM symbols", "DELETE FROM files",
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("storage: drop all: %w", err)
		}
	}
	return tx.Commit()
}
