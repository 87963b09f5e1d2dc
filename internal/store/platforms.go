package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// PlatformStore persists virtualization platforms. Passwords are stored
// sealed, like unit credentials.
type PlatformStore struct {
	db *sql.DB
}

func NewPlatformStore(db *sql.DB) *PlatformStore {
	return &PlatformStore{db: db}
}

func (s *PlatformStore) Create(ctx context.Context, p *models.Platform) error {
	port := p.Port
	if port == 0 {
		port = 443
	}
	row := s.db.QueryRowContext(ctx, queryInsertPlatform,
		p.Name, string(p.Type), p.Host, port, p.Username, p.Password, p.Region, p.Insecure)
	if err := row.Scan(&p.ID); err != nil {
		return fmt.Errorf("inserting platform %s: %w", p.Name, err)
	}
	p.Port = port
	return nil
}

func (s *PlatformStore) Update(ctx context.Context, p *models.Platform) error {
	res, err := s.db.ExecContext(ctx, queryUpdatePlatform,
		string(p.Type), p.Host, p.Port, p.Username, p.Password, p.Region, p.Insecure, p.ID)
	if err != nil {
		return fmt.Errorf("updating platform %d: %w", p.ID, err)
	}
	return expectOne(res)
}

func (s *PlatformStore) Get(ctx context.Context, id int64) (*models.Platform, error) {
	return scanPlatform(s.db.QueryRowContext(ctx, queryGetPlatform, id))
}

func (s *PlatformStore) GetByName(ctx context.Context, name string) (*models.Platform, error) {
	return scanPlatform(s.db.QueryRowContext(ctx, queryGetPlatformByName, name))
}

func (s *PlatformStore) List(ctx context.Context) ([]models.Platform, error) {
	rows, err := s.db.QueryContext(ctx, queryListPlatforms)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	platforms := []models.Platform{}
	for rows.Next() {
		p, err := scanPlatform(rows)
		if err != nil {
			return nil, err
		}
		platforms = append(platforms, *p)
	}
	return platforms, rows.Err()
}

func scanPlatform(row rowScanner) (*models.Platform, error) {
	var (
		p   models.Platform
		typ string
	)
	err := row.Scan(&p.ID, &p.Name, &typ, &p.Host, &p.Port, &p.Username, &p.Password, &p.Region, &p.Insecure,
		&p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Type = models.PlatformType(typ)
	return &p, nil
}
