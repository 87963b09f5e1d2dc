package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Store provides access to all storage repositories.
type Store struct {
	db          *sql.DB
	tasks       *TaskStore
	units       *UnitStore
	details     *DetailStore
	credentials *CredentialsStore
	platforms   *PlatformStore
}

func NewStore(db *sql.DB) *Store {
	return &Store{
		db:          db,
		tasks:       NewTaskStore(db),
		units:       NewUnitStore(db),
		details:     NewDetailStore(db),
		credentials: NewCredentialsStore(db),
		platforms:   NewPlatformStore(db),
	}
}

func (s *Store) Tasks() *TaskStore {
	return s.tasks
}

func (s *Store) Units() *UnitStore {
	return s.units
}

func (s *Store) Details() *DetailStore {
	return s.details
}

func (s *Store) Credentials() *CredentialsStore {
	return s.credentials
}

func (s *Store) Platforms() *PlatformStore {
	return s.platforms
}

func (s *Store) Close() error {
	return s.db.Close()
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

