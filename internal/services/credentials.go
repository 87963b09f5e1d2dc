package services

import (
	"context"
	"fmt"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/pkg/sealer"
)

// CredentialProvider resolves the credentials of a unit. It returns
// store.ErrNotFound when none are stored.
type CredentialProvider interface {
	Lookup(ctx context.Context, unitID int64) (*models.Credentials, error)
}

// CredentialService seals passwords before they reach the store.
type CredentialService struct {
	store  *store.CredentialsStore
	sealer *sealer.Sealer
}

func NewCredentialService(st *store.CredentialsStore, s *sealer.Sealer) *CredentialService {
	return &CredentialService{store: st, sealer: s}
}

func (c *CredentialService) Save(ctx context.Context, creds *models.Credentials) error {
	if creds.Username == "" {
		return fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	sealed, err := c.sealer.Seal(creds.Password)
	if err != nil {
		return fmt.Errorf("sealing password: %w", err)
	}
	stored := *creds
	stored.Password = sealed
	return c.store.Save(ctx, &stored)
}

func (c *CredentialService) Lookup(ctx context.Context, unitID int64) (*models.Credentials, error) {
	creds, err := c.store.Get(ctx, unitID)
	if err != nil {
		return nil, err
	}
	password, err := c.sealer.Open(creds.Password)
	if err != nil {
		return nil, fmt.Errorf("opening password of unit %d: %w", unitID, err)
	}
	creds.Password = password
	return creds, nil
}
