// Package store persists events, ticket catalogs, registrations,
// orders, and invites behind a dbx/SQLite database.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"community-events/internal/status"
)

type Store struct {
	db   dbx.Builder
	root *dbx.DB
}

// Open connects to the SQLite database at path and prepares the schema.
func Open(path string) (*Store, error) {
	db, err := dbx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// SQLite allows one writer; a single pooled connection avoids lock
	// errors and keeps :memory: databases coherent.
	db.DB().SetMaxOpenConns(1)

	s := &Store{db: db, root: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.root == nil {
		return nil
	}
	return s.root.Close()
}

// Transactional runs fn against a transaction-bound Store. The
// transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) Transactional(fn func(tx *Store) error) error {
	if s.root == nil {
		// Already inside a transaction; reuse it.
		return fn(s)
	}
	return s.root.Transactional(func(tx *dbx.Tx) error {
		return fn(&Store{db: tx})
	})
}

// wrapNotFound maps sql.ErrNoRows onto the domain sentinel.
func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return status.ErrNotFound
	}
	return err
}
