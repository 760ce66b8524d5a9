package controller

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"taskd/internal/models"
	"taskd/internal/service"
	"taskd/pkg/logger"
)

// Pinger is anything the readiness probe should check besides the store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Tasks serves the task HTTP API.
type Tasks struct {
	svc    *service.Service
	probes map[string]Pinger
}

// NewTasks builds the handlers. probes are optional dependencies (cache,
// broker) reported by Ready.
func NewTasks(svc *service.Service, probes map[string]Pinger) *Tasks {
	return &Tasks{svc: svc, probes: probes}
}

// Health returns 200 if the process is alive. Used by load balancers.
func (h *Tasks) Health(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// Ready returns 200 if the bound store and every probe answer.
func (h *Tasks) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.svc.Ping(ctx); err != nil {
		logger.Warn(ctx, "Readiness: storage ping failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "storage unavailable"})
		return
	}
	for name, p := range h.probes {
		if err := p.Ping(ctx); err != nil {
			logger.Warn(ctx, "Readiness: dependency ping failed", "dependency", name, "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + " unavailable"})
			return
		}
	}
	c.String(http.StatusOK, "OK")
}

// ListTasks handles GET /tasks?status=&priority=.
func (h *Tasks) ListTasks(c *gin.Context) {
	f, err := service.ParseListFilter(c.Query("status"), c.Query("priority"))
	if err != nil {
		h.fail(c, err)
		return
	}
	tasks, err := h.svc.ListTasks(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tasks)
}

// GetTask handles GET /tasks/:id.
func (h *Tasks) GetTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	t, err := h.svc.GetTask(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// Stats handles GET /tasks/stats.
func (h *Tasks) Stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// CreateTask handles POST /tasks.
func (h *Tasks) CreateTask(c *gin.Context) {
	var body service.AddTaskInput
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	t, err := h.svc.AddTask(c.Request.Context(), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, t)
}

// CompleteTask handles POST /tasks/:id/complete.
func (h *Tasks) CompleteTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	t, err := h.svc.CompleteTask(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// UpdatePriority handles PATCH /tasks/:id/priority.
func (h *Tasks) UpdatePriority(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	var body struct {
		Priority string `json:"priority" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request", "details": err.Error()})
		return
	}
	t, err := h.svc.UpdateTaskPriority(c.Request.Context(), id, body.Priority)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

// DeleteTask handles DELETE /tasks/:id.
func (h *Tasks) DeleteTask(c *gin.Context) {
	id, ok := h.taskID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteTask(c.Request.Context(), id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Tasks) taskID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Task id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Tasks) fail(c *gin.Context, err error) {
	ctx := c.Request.Context()
	if ctx.Err() != nil && isContextErr(err) {
		c.Status(499)
		return
	}
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(ctx, "Task operation failed", "error", err, "path", c.FullPath())
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": err.Error()})
}

// StatusFor maps the shared error kinds onto HTTP status codes.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
