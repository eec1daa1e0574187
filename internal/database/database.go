package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "embed"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/deployments.sql
var createDeploymentsTable string

const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Open opens (creating it if needed) the sqlite database at path and applies the schema.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("error creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := New(db).CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func (q *Queries) CreateTables(ctx context.Context) error {
	if _, err := q.db.ExecContext(ctx, createDeploymentsTable); err != nil {
		return fmt.Errorf("error creating deployments table: %w", err)
	}
	return nil
}
