package repository

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a lookup by ID matches no row.
var ErrNotFound = errors.New("not found")

// InitDB opens (or creates) a SQLite database at the given path and ensures
// all required tables exist. Pass ":memory:" for an in-memory database.
func InitDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Pragmas are per connection and every connection to ":memory:" is a
	// new database, so the pool holds a single connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set wal mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return db, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS debt_items (
			id TEXT PRIMARY KEY,
			company TEXT NOT NULL,
			description TEXT NOT NULL,
			fiscal_year INTEGER NOT NULL,
			nature TEXT NOT NULL,
			profile TEXT NOT NULL,
			principal TEXT NOT NULL,
			charges TEXT NOT NULL,
			correction TEXT NOT NULL,
			payment_option TEXT NOT NULL,
			installment_count INTEGER NOT NULL,
			down_payment_kind TEXT NOT NULL DEFAULT '',
			down_payment_value TEXT NOT NULL DEFAULT '0',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debt_items_company ON debt_items(company)`,
		`CREATE INDEX IF NOT EXISTS idx_debt_items_nature ON debt_items(nature)`,

		`CREATE TABLE IF NOT EXISTS debt_groups (
			id TEXT PRIMARY KEY,
			company TEXT NOT NULL,
			nature TEXT NOT NULL,
			profile TEXT NOT NULL,
			payment_option TEXT NOT NULL,
			installment_count INTEGER NOT NULL,
			down_payment_kind TEXT NOT NULL DEFAULT '',
			down_payment_value TEXT NOT NULL DEFAULT '0',
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_debt_groups_company ON debt_groups(company)`,

		`CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL,
			item_id TEXT NOT NULL,
			position INTEGER NOT NULL,
			PRIMARY KEY (group_id, item_id),
			FOREIGN KEY (group_id) REFERENCES debt_groups(id) ON DELETE CASCADE,
			FOREIGN KEY (item_id) REFERENCES debt_items(id) ON DELETE CASCADE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_group_members_item ON group_members(item_id)`,

		`CREATE TABLE IF NOT EXISTS imports (
			id TEXT PRIMARY KEY,
			format TEXT NOT NULL,
			file_hash TEXT UNIQUE NOT NULL,
			record_count INTEGER NOT NULL,
			ingested_at DATETIME NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}

	return nil
}
