package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"github.com/kubev2v/inventory-collector/internal/models"
)

var (
	rawEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	rawDecoder, _ = zstd.NewReader(nil)
)

// DetailStore holds the append-only collection audit trail. Raw fact
// snapshots are stored zstd compressed.
type DetailStore struct {
	db *sql.DB
}

func NewDetailStore(db *sql.DB) *DetailStore {
	return &DetailStore{db: db}
}

// Append inserts a new detail row.
func (s *DetailStore) Append(ctx context.Context, detail *models.CollectionDetail) error {
	return s.append(ctx, s.db, detail)
}

func (s *DetailStore) append(ctx context.Context, q querier, detail *models.CollectionDetail) error {
	var raw any
	if len(detail.RawFacts) > 0 {
		raw = rawEncoder.EncodeAll(detail.RawFacts, nil)
	}
	if _, err := q.ExecContext(ctx, queryInsertDetail,
		detail.UnitID, detail.TaskID, string(detail.Status), detail.Method, detail.ErrorMessage, raw, detail.CollectedAt,
	); err != nil {
		return fmt.Errorf("appending detail for unit %d: %w", detail.UnitID, err)
	}
	return nil
}

func (s *DetailStore) ListByUnit(ctx context.Context, unitID int64) ([]models.CollectionDetail, error) {
	return s.list(ctx, queryListDetailsByUnit, unitID)
}

func (s *DetailStore) ListByTask(ctx context.Context, taskID string) ([]models.CollectionDetail, error) {
	return s.list(ctx, queryListDetailsByTask, taskID)
}

// Latest returns the most recent detail of the unit. When taskID is not empty
// only details written by that task are considered.
func (s *DetailStore) Latest(ctx context.Context, unitID int64, taskID string) (*models.CollectionDetail, error) {
	if taskID == "" {
		return scanDetail(s.db.QueryRowContext(ctx, queryLatestDetail, unitID))
	}
	return scanDetail(s.db.QueryRowContext(ctx, queryLatestDetailForTask, unitID, taskID))
}

func (s *DetailStore) list(ctx context.Context, query string, args ...any) ([]models.CollectionDetail, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	details := []models.CollectionDetail{}
	for rows.Next() {
		d, err := scanDetail(rows)
		if err != nil {
			return nil, err
		}
		details = append(details, *d)
	}
	return details, rows.Err()
}

func scanDetail(row rowScanner) (*models.CollectionDetail, error) {
	var (
		d      models.CollectionDetail
		status string
		raw    []byte
	)
	err := row.Scan(&d.ID, &d.UnitID, &d.TaskID, &status, &d.Method, &d.ErrorMessage, &raw, &d.CollectedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Status = models.DetailStatus(status)
	if len(raw) > 0 {
		decoded, err := rawDecoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, fmt.Errorf("decompressing raw facts of detail %d: %w", d.ID, err)
		}
		d.RawFacts = decoded
	}
	return &d, nil
}
