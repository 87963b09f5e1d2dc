package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	v1 "github.com/kubev2v/inventory-collector/api/v1"
	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/services"
)

// ListCollections lists collection tasks, newest first
// (GET /collections)
func (h *Handler) ListCollections(c *gin.Context) {
	var filter models.TaskFilter
	if s := c.Query("status"); s != "" {
		status, err := models.ParseTaskStatus(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, v1.Error{Error: err.Error()})
			return
		}
		filter.Status = &status
	}

	tasks, err := h.collections.ListTasks(c.Request.Context(), filter)
	if err != nil {
		abort(c, err)
		return
	}

	resp := v1.CollectionList{Collections: make([]v1.Collection, 0, len(tasks)), Total: len(tasks)}
	for i := range tasks {
		resp.Collections = append(resp.Collections, toCollection(&tasks[i]))
	}
	c.JSON(http.StatusOK, resp)
}

// CreateCollection creates a batch task and schedules it
// (POST /collections)
func (h *Handler) CreateCollection(c *gin.Context) {
	var req v1.CreateCollectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, v1.Error{Error: "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	taskID, err := h.collections.EnqueueCollection(ctx, req.UnitIDs, req.ConcurrentLimit)
	if err != nil {
		abort(c, err)
		return
	}
	h.scheduleAndRespond(c, taskID)
}

// GetCollection returns a task with its live counters
// (GET /collections/{id})
func (h *Handler) GetCollection(c *gin.Context, id string) {
	task, err := h.collections.GetTaskStatus(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toCollection(task))
}

// DeleteCollection removes a terminated task
// (DELETE /collections/{id})
func (h *Handler) DeleteCollection(c *gin.Context, id string) {
	if err := h.collections.Delete(c.Request.Context(), id); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetCollectionResults returns the latest outcome of every unit of a task
// (GET /collections/{id}/results)
func (h *Handler) GetCollectionResults(c *gin.Context, id string) {
	results, err := h.collections.Results(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}

	resp := v1.ResultList{CollectionID: id, Results: make([]v1.UnitResult, 0, len(results))}
	for _, r := range results {
		var out v1.UnitResult
		out.FromModel(r)
		resp.Results = append(resp.Results, out)
	}
	c.JSON(http.StatusOK, resp)
}

// CancelCollection cancels a pending or running task
// (POST /collections/{id}/cancel)
func (h *Handler) CancelCollection(c *gin.Context, id string) {
	task, err := h.collections.Cancel(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, toCollection(task))
}

// RetryCollection resets a failed task and schedules it again
// (POST /collections/{id}/retry)
func (h *Handler) RetryCollection(c *gin.Context, id string) {
	task, err := h.collections.Retry(c.Request.Context(), id)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toCollection(task))
}

// SyncPlatform creates a platform sync task and schedules it
// (POST /platforms/{id}/sync)
func (h *Handler) SyncPlatform(c *gin.Context, id string) {
	platformID, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, v1.Error{Error: "invalid platform id"})
		return
	}

	var req v1.PlatformSyncRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, v1.Error{Error: "invalid request body"})
			return
		}
	}

	taskID, err := h.collections.EnqueuePlatformSync(c.Request.Context(), platformID, req.UnitIDs, req.ConcurrentLimit)
	if errors.Is(err, services.ErrSyncInProgress) {
		c.JSON(http.StatusConflict, v1.Error{Error: err.Error(), CollectionID: &taskID})
		return
	}
	if err != nil {
		abort(c, err)
		return
	}
	h.scheduleAndRespond(c, taskID)
}

func (h *Handler) scheduleAndRespond(c *gin.Context, taskID string) {
	if _, err := h.collections.Schedule(taskID, nil); err != nil {
		abort(c, err)
		return
	}
	task, err := h.collections.GetTaskStatus(c.Request.Context(), taskID)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusAccepted, toCollection(task))
}
