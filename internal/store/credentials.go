package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// CredentialsStore handles unit credentials storage using DuckDB. The
// password is stored as given: callers seal it before Save and open it after
// Get.
type CredentialsStore struct {
	db *sql.DB
}

// NewCredentialsStore creates a new credentials store.
func NewCredentialsStore(db *sql.DB) *CredentialsStore {
	return &CredentialsStore{db: db}
}

// Get retrieves the credentials of a unit.
func (s *CredentialsStore) Get(ctx context.Context, unitID int64) (*models.Credentials, error) {
	row := s.db.QueryRowContext(ctx, queryGetCredentials, unitID)

	var c models.Credentials
	err := row.Scan(&c.UnitID, &c.Username, &c.Password, &c.Port, &c.KeyPath, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// Save stores or updates the credentials of a unit.
func (s *CredentialsStore) Save(ctx context.Context, creds *models.Credentials) error {
	port := creds.Port
	if port == 0 {
		port = models.DefaultSSHPort
	}
	_, err := s.db.ExecContext(ctx, queryUpsertCredentials,
		creds.UnitID, creds.Username, creds.Password, port, creds.KeyPath)
	return err
}

// Delete removes the credentials of a unit.
func (s *CredentialsStore) Delete(ctx context.Context, unitID int64) error {
	_, err := s.db.ExecContext(ctx, queryDeleteCredentials, unitID)
	return err
}
