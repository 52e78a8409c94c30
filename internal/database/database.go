package database

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/evidenceledger/oadrvtn/internal/errl"
)

// Database manages SQLite operations
type Database struct {
	path string
	db   *sql.DB
}

// New creates a new database instance backed by the sqlite file at path
func New(path string) *Database {
	return &Database{path: path}
}

// Initialize opens the database and creates the tables
func (d *Database) Initialize() error {
	if dir := filepath.Dir(d.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errl.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", d.path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return errl.Errorf("failed to open database: %w", err)
	}
	d.db = db

	// Create tables
	if err := d.createTables(); err != nil {
		return errl.Errorf("failed to create tables: %w", err)
	}

	slog.Info("Database initialized", "path", d.path)
	return nil
}

// createTables creates all necessary tables
func (d *Database) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS vens (
			ven_id TEXT PRIMARY KEY,
			ven_name TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			registration_id TEXT NOT NULL DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_vens_name ON vens(ven_name)`,
		`CREATE TABLE IF NOT EXISTS opt_schedules (
			opt_id TEXT PRIMARY KEY,
			ven_id TEXT NOT NULL,
			opt_type TEXT NOT NULL,
			opt_reason TEXT NOT NULL DEFAULT '',
			market_context TEXT NOT NULL DEFAULT '',
			event_id TEXT NOT NULL DEFAULT '',
			availability TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS events (
			event_id TEXT PRIMARY KEY,
			ven_id TEXT NOT NULL,
			modification_number INTEGER NOT NULL DEFAULT 0,
			priority INTEGER NOT NULL DEFAULT 0,
			market_context TEXT NOT NULL DEFAULT '',
			signal_name TEXT NOT NULL,
			signal_type TEXT NOT NULL,
			signal_id TEXT NOT NULL,
			intervals TEXT NOT NULL DEFAULT '[]',
			response_required TEXT NOT NULL DEFAULT 'always',
			cancelled INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_ven ON events(ven_id)`,
		`CREATE TABLE IF NOT EXISTS event_responses (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ven_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			modification_number INTEGER NOT NULL,
			opt_type TEXT NOT NULL,
			response_code INTEGER NOT NULL,
			received_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS report_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ven_id TEXT NOT NULL,
			report_specifier_id TEXT NOT NULL,
			report_name TEXT NOT NULL,
			r_id TEXT NOT NULL,
			measurement TEXT NOT NULL DEFAULT '',
			unit TEXT NOT NULL DEFAULT '',
			ts DATETIME NOT NULL,
			value REAL NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_samples_series ON report_samples(ven_id, r_id, ts)`,
	}

	for _, query := range queries {
		if _, err := d.db.Exec(query); err != nil {
			return errl.Errorf("failed to execute query: %w", err)
		}
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}
