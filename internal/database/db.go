// Package database holds the sqlite plumbing shared by the disk cache and
// the sample query source.
package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Open opens the sqlite file at path in WAL mode.
func Open(path string) (*sql.DB, error) {
	return open(fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", path))
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*sql.DB, error) {
	return open("file::memory:?cache=private")
}

// open pins the pool to one connection: sqlite has a single writer and an
// in-memory database lives and dies with its connection.
func open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	db.SetConnMaxIdleTime(0)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", dsn, err)
	}
	return db, nil
}

// WithTx runs fn in a transaction, rolling back when fn fails.
func WithTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
