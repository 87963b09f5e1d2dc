package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/kubev2v/inventory-collector/internal/models"
)

// TaskStore persists collection tasks. Updates are optimistic: the version
// read with Get must still match when Update runs.
type TaskStore struct {
	db *sql.DB
}

func NewTaskStore(db *sql.DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts a new task. Version starts at 1.
func (s *TaskStore) Create(ctx context.Context, task *models.CollectionTask) error {
	return s.create(ctx, s.db, task)
}

func (s *TaskStore) create(ctx context.Context, q querier, task *models.CollectionTask) error {
	ids, err := json.Marshal(unitIDs(task.Kind.UnitIDs))
	if err != nil {
		return fmt.Errorf("encoding unit ids: %w", err)
	}

	var platformID any
	if task.Kind.IsPlatformSync() {
		platformID = task.Kind.PlatformID
	}

	if _, err := q.ExecContext(ctx, queryInsertTask,
		task.ID, string(task.Kind.Type), platformID, string(ids), string(task.Status), task.ConcurrentLimit, task.CreatedAt,
	); err != nil {
		return fmt.Errorf("inserting task %s: %w", task.ID, err)
	}
	task.Version = 1
	return nil
}

// Get re-reads the task from the database.
func (s *TaskStore) Get(ctx context.Context, id string) (*models.CollectionTask, error) {
	return scanTask(s.db.QueryRowContext(ctx, queryGetTask, id))
}

// Update writes the mutable fields of task if its version is still current.
// On success task.Version is advanced. ErrConflict means another writer won.
func (s *TaskStore) Update(ctx context.Context, task *models.CollectionTask) error {
	res, err := s.db.ExecContext(ctx, queryUpdateTask,
		string(task.Status),
		task.ConcurrentLimit,
		task.CompletedCount,
		task.FailedCount,
		task.CurrentRunning,
		task.Progress,
		task.ErrorMessage,
		timeArg(task.StartedAt),
		timeArg(task.CompletedAt),
		task.ID,
		task.Version,
	)
	if err != nil {
		return fmt.Errorf("updating task %s: %w", task.ID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var count int
		if err := s.db.QueryRowContext(ctx, queryTaskExists, task.ID).Scan(&count); err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrConflict
	}

	task.Version++
	return nil
}

func (s *TaskStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, queryDeleteTask, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns tasks matching the filter, newest first.
func (s *TaskStore) List(ctx context.Context, filter models.TaskFilter) ([]models.CollectionTask, error) {
	var (
		where []string
		args  []any
	)
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.PlatformID != nil {
		where = append(where, "platform_id = ?")
		args = append(args, *filter.PlatformID)
	}

	query := queryListTasks
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tasks := []models.CollectionTask{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

// GetOrCreatePlatformSync returns the active sync task of the platform if one
// exists, otherwise it inserts task. The bool is true when task was created.
func (s *TaskStore) GetOrCreatePlatformSync(ctx context.Context, task *models.CollectionTask) (*models.CollectionTask, bool, error) {
	if !task.Kind.IsPlatformSync() {
		return nil, false, errors.New("task is not a platform sync")
	}

	var (
		existing *models.CollectionTask
		created  bool
	)
	err := withTx(ctx, s.db, func(tx *sql.Tx) error {
		t, err := scanTask(tx.QueryRowContext(ctx, queryActivePlatformSync, task.Kind.PlatformID))
		switch {
		case err == nil:
			existing = t
			return nil
		case !errors.Is(err, ErrNotFound):
			return err
		}

		if err := s.create(ctx, tx, task); err != nil {
			return err
		}
		existing = task
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return existing, created, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.CollectionTask, error) {
	var (
		t           models.CollectionTask
		kind        string
		status      string
		platformID  sql.NullInt64
		ids         string
		startedAt   sql.NullTime
		completedAt sql.NullTime
	)
	err := row.Scan(&t.ID, &kind, &platformID, &ids, &status, &t.ConcurrentLimit, &t.CompletedCount, &t.FailedCount,
		&t.CurrentRunning, &t.Progress, &t.ErrorMessage, &t.Version, &t.CreatedAt, &startedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var list []int64
	if err := json.Unmarshal([]byte(ids), &list); err != nil {
		return nil, fmt.Errorf("decoding unit ids of task %s: %w", t.ID, err)
	}

	switch models.TaskKindType(kind) {
	case models.TaskKindPlatformSync:
		t.Kind = models.PlatformSync(platformID.Int64, list)
	default:
		t.Kind = models.UnitBatch(list)
	}
	t.Status = models.TaskStatus(status)
	t.StartedAt = timePtr(startedAt)
	t.CompletedAt = timePtr(completedAt)
	return &t, nil
}

func unitIDs(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
