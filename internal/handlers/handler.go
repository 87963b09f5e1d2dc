package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	v1 "github.com/kubev2v/inventory-collector/api/v1"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
	"github.com/kubev2v/inventory-collector/internal/store"
)

// CollectionService is what the API needs from the collection engine.
type CollectionService interface {
	EnqueueCollection(ctx context.Context, unitIDs []int64, limit *int) (string, error)
	EnqueuePlatformSync(ctx context.Context, platformID int64, unitIDs []int64, limit *int) (string, error)
	Schedule(taskID string, limit *int) (*models.Future[models.Result[any]], error)
	GetTaskStatus(ctx context.Context, taskID string) (*models.CollectionTask, error)
	ListTasks(ctx context.Context, filter models.TaskFilter) ([]models.CollectionTask, error)
	Results(ctx context.Context, taskID string) ([]models.UnitResult, error)
	Cancel(ctx context.Context, taskID string) (*models.CollectionTask, error)
	Retry(ctx context.Context, taskID string) (*models.CollectionTask, error)
	Delete(ctx context.Context, taskID string) error
}

type Handler struct {
	collections CollectionService
}

var _ v1.ServerInterface = (*Handler)(nil)

func New(collections CollectionService) *Handler {
	return &Handler{collections: collections}
}

// abort maps service errors to HTTP statuses.
func abort(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrInvalidRequest):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrSyncInProgress):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		zap.S().Named("http").Errorw("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, v1.Error{Error: err.Error()})
}

func toCollection(t *models.CollectionTask) v1.Collection {
	var out v1.Collection
	out.FromModel(*t)
	return out
}
