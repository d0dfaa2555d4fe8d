package shared

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

const memoryDB = ":memory:"

// OpenSQLite opens path without touching its schema. Pool sizes below one are raised to one,
// which ":memory:" databases need so every query sees the same connection.
func OpenSQLite(ctx context.Context, path string, maxOpen, maxIdle int) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(max(maxOpen, 1))
	db.SetMaxIdleConns(max(maxIdle, 1))

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// OpenDatabase opens the configured database, creating its directory, and applies pending migrations.
func OpenDatabase(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	if cfg.Path != memoryDB {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := OpenSQLite(ctx, cfg.Path, cfg.MaxOpenConns, cfg.MaxIdleConns)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
