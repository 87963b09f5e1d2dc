package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
	"github.com/kubev2v/inventory-collector/pkg/scheduler"
)

// CollectionService is the entry point for callers: it creates tasks, runs
// them synchronously or through the scheduler and manages their lifecycle.
type CollectionService struct {
	store        *store.Store
	orchestrator *Orchestrator
	scheduler    *scheduler.Scheduler

	mu      sync.Mutex
	running map[string]context.CancelFunc
	futures map[string]*models.Future[models.Result[any]]
}

// NewCollectionService builds the service. sched may be nil when tasks are
// only run synchronously.
func NewCollectionService(st *store.Store, o *Orchestrator, sched *scheduler.Scheduler) *CollectionService {
	return &CollectionService{
		store:        st,
		orchestrator: o,
		scheduler:    sched,
		running:      make(map[string]context.CancelFunc),
		futures:      make(map[string]*models.Future[models.Result[any]]),
	}
}

// EnqueueCollection creates a pending batch task over unitIDs.
func (s *CollectionService) EnqueueCollection(ctx context.Context, unitIDs []int64, limit *int) (string, error) {
	if len(unitIDs) == 0 {
		return "", fmt.Errorf("%w: no units to collect", ErrInvalidRequest)
	}
	if limit != nil && *limit <= 0 {
		return "", fmt.Errorf("%w: concurrency limit must be positive", ErrInvalidRequest)
	}

	ids, err := s.checkUnits(ctx, unitIDs)
	if err != nil {
		return "", err
	}

	task := &models.CollectionTask{
		ID:              uuid.NewString(),
		Kind:            models.UnitBatch(ids),
		Status:          models.TaskStatusPending,
		ConcurrentLimit: s.orchestrator.cfg.DefaultLimit,
		CreatedAt:       time.Now().UTC(),
	}
	if limit != nil {
		task.ConcurrentLimit = *limit
	}
	if err := s.store.Tasks().Create(ctx, task); err != nil {
		return "", err
	}

	zap.S().Named("orchestrator").Infow("collection task created", "task_id", task.ID, "units", len(ids), "limit", task.ConcurrentLimit)
	return task.ID, nil
}

// EnqueuePlatformSync creates a pending sync task for the platform. Only one
// sync per platform may be active.
func (s *CollectionService) EnqueuePlatformSync(ctx context.Context, platformID int64, unitIDs []int64, limit *int) (string, error) {
	if limit != nil && *limit <= 0 {
		return "", fmt.Errorf("%w: concurrency limit must be positive", ErrInvalidRequest)
	}
	if _, err := s.store.Platforms().Get(ctx, platformID); err != nil {
		return "", fmt.Errorf("platform %d: %w", platformID, err)
	}

	ids := []int64{}
	if len(unitIDs) > 0 {
		var err error
		if ids, err = s.checkUnits(ctx, unitIDs); err != nil {
			return "", err
		}
	}

	task := &models.CollectionTask{
		ID:              uuid.NewString(),
		Kind:            models.PlatformSync(platformID, ids),
		Status:          models.TaskStatusPending,
		ConcurrentLimit: 1,
		CreatedAt:       time.Now().UTC(),
	}
	if limit != nil {
		task.ConcurrentLimit = *limit
	}

	active, created, err := s.store.Tasks().GetOrCreatePlatformSync(ctx, task)
	if err != nil {
		return "", err
	}
	if !created {
		return active.ID, fmt.Errorf("%w: task %s", ErrSyncInProgress, active.ID)
	}

	zap.S().Named("platform").Infow("platform sync task created", "task_id", task.ID, "platform_id", platformID, "units", len(ids))
	return task.ID, nil
}

func (s *CollectionService) checkUnits(ctx context.Context, unitIDs []int64) ([]int64, error) {
	ids := sets.List(sets.New(unitIDs...))
	units, err := s.store.Units().List(ctx, ids)
	if err != nil {
		return nil, err
	}
	if len(units) != len(ids) {
		found := sets.New[int64]()
		for _, u := range units {
			found.Insert(u.ID)
		}
		return nil, fmt.Errorf("units %v: %w", sets.List(sets.New(ids...).Difference(found)), store.ErrNotFound)
	}
	return ids, nil
}

// RunTask runs the task to completion on the calling goroutine.
func (s *CollectionService) RunTask(ctx context.Context, taskID string, limit *int) error {
	if limit != nil && *limit <= 0 {
		return fmt.Errorf("%w: concurrency limit must be positive", ErrInvalidRequest)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if _, ok := s.running[taskID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: task %s is already running", ErrInvalidState, taskID)
	}
	s.running[taskID] = cancel
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, taskID)
		s.mu.Unlock()
	}()

	return s.orchestrator.RunTask(runCtx, taskID, limit)
}

// Schedule hands the task to the scheduler and returns immediately.
func (s *CollectionService) Schedule(taskID string, limit *int) (*models.Future[models.Result[any]], error) {
	if s.scheduler == nil {
		return nil, errors.New("no scheduler configured")
	}

	// The work cannot take s.mu before the future is registered.
	s.mu.Lock()
	defer s.mu.Unlock()

	var future *models.Future[models.Result[any]]
	future = s.scheduler.AddWork(func(ctx context.Context) (any, error) {
		err := s.RunTask(ctx, taskID, limit)
		if err != nil {
			zap.S().Named("orchestrator").Errorw("scheduled task failed", "task_id", taskID, "error", err)
		}
		s.mu.Lock()
		s.forget(taskID, future)
		s.mu.Unlock()
		return taskID, err
	})
	s.futures[taskID] = future
	return future, nil
}

// forget drops the future of taskID unless it was replaced by a newer one.
// s.mu must be held.
func (s *CollectionService) forget(taskID string, future *models.Future[models.Result[any]]) {
	if s.futures[taskID] == future {
		delete(s.futures, taskID)
	}
}


func (s *CollectionService) GetTaskStatus(ctx context.Context, taskID string) (*models.CollectionTask, error) {
	return s.store.Tasks().Get(ctx, taskID)
}

func (s *CollectionService) ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.CollectionTask, error) {
	return s.store.Tasks().List(ctx, filter)
}

// Results returns the latest outcome of every unit of the task.
func (s *CollectionService) Results(ctx context.Context, taskID string) ([]models.UnitResult, error) {
	task, err := s.store.Tasks().Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	units, err := s.store.Units().List(ctx, task.Kind.UnitIDs)
	if err != nil {
		return nil, err
	}

	results := make([]models.UnitResult, 0, len(units))
	for _, u := range units {
		r := models.UnitResult{
			UnitID:           u.ID,
			Name:             u.Name,
			Address:          u.Address,
			CollectionStatus: u.CollectionStatus,
		}
		detail, err := s.store.Details().Latest(ctx, u.ID, taskID)
		switch {
		case err == nil:
			r.Detail = detail
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
		results = append(results, r)
	}
	return results, nil
}

// Cancel stops a pending or running task.
func (s *CollectionService) Cancel(ctx context.Context, taskID string) (*models.CollectionTask, error) {
	task, err := s.orchestrator.Tracker().Cancel(ctx, taskID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if cancel, ok := s.running[taskID]; ok {
		cancel()
	}
	if future, ok := s.futures[taskID]; ok {
		future.Stop()
		delete(s.futures, taskID)
	}
	s.mu.Unlock()

	zap.S().Named("orchestrator").Infow("task cancelled", "task_id", taskID)
	return task, nil
}

// Retry resets a failed task and schedules it again.
func (s *CollectionService) Retry(ctx context.Context, taskID string) (*models.CollectionTask, error) {
	task, err := s.orchestrator.Tracker().Reset(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if s.scheduler != nil {
		if _, err := s.Schedule(taskID, nil); err != nil {
			return nil, err
		}
	}
	return task, nil
}

// Delete removes a terminated task. Its details are kept.
func (s *CollectionService) Delete(ctx context.Context, taskID string) error {
	task, err := s.store.Tasks().Get(ctx, taskID)
	if err != nil {
		return err
	}
	if !task.Status.IsTerminal() {
		return fmt.Errorf("%w: task %s is %s", ErrInvalidState, taskID, task.Status)
	}
	return s.store.Tasks().Delete(ctx, taskID)
}
