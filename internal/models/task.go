package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/looplab/fsm"
)

var ErrInvalidTransition = errors.New("invalid task transition")

// TaskStatus is the lifecycle state of a collection task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Task lifecycle events.
const (
	TaskEventStart    = "start"
	TaskEventComplete = "complete"
	TaskEventFail     = "fail"
	TaskEventCancel   = "cancel"
	TaskEventRetry    = "retry"
)

var taskEvents = fsm.Events{
	{Name: TaskEventStart, Src: []string{string(TaskStatusPending)}, Dst: string(TaskStatusRunning)},
	{Name: TaskEventComplete, Src: []string{string(TaskStatusRunning)}, Dst: string(TaskStatusCompleted)},
	{Name: TaskEventFail, Src: []string{string(TaskStatusPending), string(TaskStatusRunning)}, Dst: string(TaskStatusFailed)},
	{Name: TaskEventCancel, Src: []string{string(TaskStatusPending), string(TaskStatusRunning)}, Dst: string(TaskStatusCancelled)},
	{Name: TaskEventRetry, Src: []string{string(TaskStatusFailed)}, Dst: string(TaskStatusPending)},
}

// Next returns the status reached by firing event from s.
func (s TaskStatus) Next(ctx context.Context, event string) (TaskStatus, error) {
	machine := fsm.NewFSM(string(s), taskEvents, fsm.Callbacks{})
	if err := machine.Event(ctx, event); err != nil {
		return s, fmt.Errorf("%w: cannot %s a %s task: %v", ErrInvalidTransition, event, s, err)
	}
	return TaskStatus(machine.Current()), nil
}

func (s TaskStatus) IsTerminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskStatusPending, TaskStatusRunning, TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return TaskStatus(s), nil
	default:
		return "", fmt.Errorf("invalid task status: %s", s)
	}
}

// TaskKindType discriminates what a task collects.
type TaskKindType string

const (
	TaskKindUnitBatch    TaskKindType = "unit_batch"
	TaskKindPlatformSync TaskKindType = "platform_sync"
)

// TaskKind is either a plain batch of units or a sync against one
// virtualization platform. PlatformID is only set for platform syncs.
type TaskKind struct {
	Type       TaskKindType
	PlatformID int64
	UnitIDs    []int64
}

func UnitBatch(ids []int64) TaskKind {
	return TaskKind{Type: TaskKindUnitBatch, UnitIDs: ids}
}

func PlatformSync(platformID int64, collectedIDs []int64) TaskKind {
	return TaskKind{Type: TaskKindPlatformSync, PlatformID: platformID, UnitIDs: collectedIDs}
}

func (k TaskKind) IsPlatformSync() bool {
	return k.Type == TaskKindPlatformSync
}

// CollectionTask is one batch collection run over a set of units.
type CollectionTask struct {
	ID              string
	Kind            TaskKind
	Status          TaskStatus
	ConcurrentLimit int
	CompletedCount  int
	FailedCount     int
	CurrentRunning  int
	Progress        int
	ErrorMessage    string
	Version         int64
	CreatedAt       time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
}

func (t *CollectionTask) Total() int {
	return len(t.Kind.UnitIDs)
}

// ComputeProgress derives the percentage from the counters. It never goes
// below the current value.
func (t *CollectionTask) ComputeProgress() int {
	total := t.Total()
	if total == 0 {
		return t.Progress
	}
	p := int(math.Round(100 * float64(t.CompletedCount+t.FailedCount) / float64(total)))
	if p > 100 {
		p = 100
	}
	return max(p, t.Progress)
}

// TaskFilter narrows task listings.
type TaskFilter struct {
	Status     *TaskStatus
	PlatformID *int64
}
