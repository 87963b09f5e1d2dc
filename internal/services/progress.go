package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/kubev2v/inventory-collector/internal/metrics"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
)

// RetryPolicy is an exponential backoff applied on storage contention.
type RetryPolicy struct {
	Base     time.Duration
	Factor   float64
	Attempts int
}

var (
	DefaultProgressRetry = RetryPolicy{Base: 100 * time.Millisecond, Factor: 2, Attempts: 5}
	DefaultWriteRetry    = RetryPolicy{Base: 100 * time.Millisecond, Factor: 2, Attempts: 3}
)

func (p RetryPolicy) backoff() wait.Backoff {
	return wait.Backoff{Duration: p.Base, Factor: p.Factor, Steps: max(p.Attempts, 1)}
}

// retryOnContention runs fn until it succeeds, fails with a non contention
// error, or the policy is exhausted. The last error of fn is returned.
func retryOnContention(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) error, onRetry func(err error)) error {
	var lastErr error
	err := wait.ExponentialBackoffWithContext(ctx, policy.backoff(), func(ctx context.Context) (bool, error) {
		lastErr = fn(ctx)
		switch {
		case lastErr == nil:
			return true, nil
		case store.IsContention(lastErr):
			if onRetry != nil {
				onRetry(lastErr)
			}
			return false, nil
		default:
			return false, lastErr
		}
	})
	if err != nil && lastErr != nil {
		return lastErr
	}
	return err
}

// TaskRepository is the part of the task store the tracker needs.
type TaskRepository interface {
	Get(ctx context.Context, id string) (*models.CollectionTask, error)
	Update(ctx context.Context, task *models.CollectionTask) error
}

// ProgressDelta is applied to the task counters. Running, when set,
// replaces current_running.
type ProgressDelta struct {
	Completed int
	Failed    int
	Running   *int
}

// ProgressTracker owns every write to a task: counters and lifecycle
// transitions. Each write re-reads the task and updates it against its
// version.
type ProgressTracker struct {
	tasks  TaskRepository
	policy RetryPolicy
	mu     sync.Mutex
}

func NewProgressTracker(tasks TaskRepository, policy RetryPolicy) *ProgressTracker {
	return &ProgressTracker{tasks: tasks, policy: policy}
}

// UpdateProgress applies delta. Contention that outlasts the retry policy is
// logged and swallowed.
func (p *ProgressTracker) UpdateProgress(ctx context.Context, taskID string, delta ProgressDelta) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.mutate(ctx, taskID, func(_ context.Context, t *models.CollectionTask) error {
		t.CompletedCount += delta.Completed
		t.FailedCount += delta.Failed
		if total := t.Total(); t.CompletedCount+t.FailedCount > total {
			zap.S().Named("orchestrator").Warnw("counter overflow clamped", "task_id", taskID,
				"completed", t.CompletedCount, "failed", t.FailedCount, "total", total)
			t.FailedCount = max(total-t.CompletedCount, 0)
			t.CompletedCount = min(t.CompletedCount, total)
		}
		if delta.Running != nil {
			t.CurrentRunning = max(*delta.Running, 0)
		}
		t.Progress = t.ComputeProgress()
		return nil
	})
	if err != nil && store.IsContention(err) {
		zap.S().Named("orchestrator").Warnw("progress update dropped after retries", "task_id", taskID, "error", err)
		return nil
	}
	return err
}

// Start moves a pending task to running.
func (p *ProgressTracker) Start(ctx context.Context, taskID string, limit int) (*models.CollectionTask, error) {
	return p.mutate(ctx, taskID, func(ctx context.Context, t *models.CollectionTask) error {
		if err := fire(ctx, t, models.TaskEventStart); err != nil {
			return err
		}
		now := time.Now().UTC()
		t.StartedAt = &now
		t.CompletedAt = nil
		t.ConcurrentLimit = limit
		t.CurrentRunning = 0
		return nil
	})
}

// Finish writes the final status of a run: failed when every unit failed,
// completed otherwise. A task cancelled meanwhile stays cancelled.
func (p *ProgressTracker) Finish(ctx context.Context, taskID string) (*models.CollectionTask, error) {
	var before models.TaskStatus
	task, err := p.mutate(ctx, taskID, func(ctx context.Context, t *models.CollectionTask) error {
		before = t.Status
		switch {
		case t.Status == models.TaskStatusCancelled:
		case t.Total() > 0 && t.FailedCount == t.Total():
			if err := fire(ctx, t, models.TaskEventFail); err != nil {
				return err
			}
			t.ErrorMessage = fmt.Sprintf("all %d units failed", t.Total())
		default:
			if err := fire(ctx, t, models.TaskEventComplete); err != nil {
				return err
			}
		}
		terminate(t)
		return nil
	})
	observeTerminal(task, before)
	return task, err
}

// Fail marks the task failed with msg. Terminal tasks keep their status.
func (p *ProgressTracker) Fail(ctx context.Context, taskID string, msg string) (*models.CollectionTask, error) {
	var before models.TaskStatus
	task, err := p.mutate(ctx, taskID, func(ctx context.Context, t *models.CollectionTask) error {
		before = t.Status
		if t.Status.IsTerminal() {
			if t.Status == models.TaskStatusCancelled && t.CompletedAt == nil {
				terminate(t)
			}
			return nil
		}
		if err := fire(ctx, t, models.TaskEventFail); err != nil {
			return err
		}
		t.ErrorMessage = truncate(msg, maxErrorLength)
		terminate(t)
		return nil
	})
	observeTerminal(task, before)
	return task, err
}

// Cancel moves a pending or running task to cancelled.
func (p *ProgressTracker) Cancel(ctx context.Context, taskID string) (*models.CollectionTask, error) {
	var before models.TaskStatus
	task, err := p.mutate(ctx, taskID, func(ctx context.Context, t *models.CollectionTask) error {
		before = t.Status
		wasPending := t.Status == models.TaskStatusPending
		if err := fire(ctx, t, models.TaskEventCancel); err != nil {
			return err
		}
		if wasPending {
			terminate(t)
		}
		return nil
	})
	observeTerminal(task, before)
	return task, err
}

// Reset moves a failed task back to pending with cleared counters.
func (p *ProgressTracker) Reset(ctx context.Context, taskID string) (*models.CollectionTask, error) {
	return p.mutate(ctx, taskID, func(ctx context.Context, t *models.CollectionTask) error {
		if err := fire(ctx, t, models.TaskEventRetry); err != nil {
			return err
		}
		t.CompletedCount = 0
		t.FailedCount = 0
		t.CurrentRunning = 0
		t.Progress = 0
		t.ErrorMessage = ""
		t.StartedAt = nil
		t.CompletedAt = nil
		return nil
	})
}

func (p *ProgressTracker) mutate(ctx context.Context, taskID string, fn func(context.Context, *models.CollectionTask) error) (*models.CollectionTask, error) {
	var task *models.CollectionTask
	err := retryOnContention(ctx, p.policy, func(ctx context.Context) error {
		t, err := p.tasks.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if err := fn(ctx, t); err != nil {
			return err
		}
		if err := p.tasks.Update(ctx, t); err != nil {
			return err
		}
		task = t
		return nil
	}, func(err error) {
		metrics.ProgressUpdateRetries.Inc()
		zap.S().Named("orchestrator").Debugw("task update contention, retrying", "task_id", taskID, "error", err)
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

func fire(ctx context.Context, t *models.CollectionTask, event string) error {
	next, err := t.Status.Next(ctx, event)
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			return fmt.Errorf("%w: %w", ErrInvalidState, err)
		}
		return err
	}
	t.Status = next
	return nil
}

func observeTerminal(t *models.CollectionTask, before models.TaskStatus) {
	if t != nil && t.Status.IsTerminal() && t.Status != before {
		metrics.TasksTotal.WithLabelValues(string(t.Kind.Type), string(t.Status)).Inc()
	}
}

func terminate(t *models.CollectionTask) {
	now := time.Now().UTC()
	t.CompletedAt = &now
	t.Progress = 100
	t.CurrentRunning = 0
}
