package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
)

const (
	defaultListLimit  = 50
	defaultListOffset = 0
)

// jobsHandler serves the queue endpoints.
type jobsHandler struct {
	queue  *queue.Queue
	logger logger.Logger
}

func newJobsHandler(q *queue.Queue, log logger.Logger) *jobsHandler {
	return &jobsHandler{queue: q, logger: log}
}

// enqueueRequest is the body for POST /api/v1/queue/jobs.
type enqueueRequest struct {
	Type        string     `json:"type" binding:"required"`
	Payload     any        `json:"payload"`
	Priority    string     `json:"priority"`
	MaxAttempts int        `json:"max_attempts"`
	ScheduledAt *time.Time `json:"scheduled_at"`
}

// List handles GET /api/v1/queue/jobs.
func (h *jobsHandler) List(c *gin.Context) {
	status := c.Query("status")
	jobType := c.Query("type")

	limit := intQuery(c, "limit", defaultListLimit)
	offset := intQuery(c, "offset", defaultListOffset)

	var jobs []*queue.Job
	if status != "" {
		parsed := queue.Status(status)
		switch parsed {
		case queue.StatusPending, queue.StatusRunning, queue.StatusCompleted,
			queue.StatusFailed, queue.StatusCancelled:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status filter: " + status})
			return
		}
		jobs = h.queue.ListByStatus(parsed)
	} else {
		jobs = h.queue.List()
	}

	if jobType != "" {
		filtered := jobs[:0]
		for _, j := range jobs {
			if j.Type == jobType {
				filtered = append(filtered, j)
			}
		}
		jobs = filtered
	}

	total := len(jobs)
	jobs = page(jobs, limit, offset)

	c.JSON(http.StatusOK, gin.H{
		"jobs":   jobs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// Get handles GET /api/v1/queue/jobs/:id.
func (h *jobsHandler) Get(c *gin.Context) {
	job := h.queue.Get(c.Param("id"))
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// Enqueue handles POST /api/v1/queue/jobs.
func (h *jobsHandler) Enqueue(c *gin.Context) {
	var req enqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	priority, err := queue.ParsePriority(req.Priority)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	opts := []queue.Option{queue.WithPriority(priority)}
	if req.MaxAttempts > 0 {
		opts = append(opts, queue.WithMaxAttempts(req.MaxAttempts))
	}
	if req.ScheduledAt != nil {
		opts = append(opts, queue.WithScheduledAt(*req.ScheduledAt))
	}

	id, err := h.queue.Enqueue(req.Type, req.Payload, opts...)
	if err != nil {
		if errors.Is(err, queue.ErrQueueClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, h.queue.Get(id))
}

// Cancel handles POST /api/v1/queue/jobs/:id/cancel. Only pending jobs can be
// cancelled.
func (h *jobsHandler) Cancel(c *gin.Context) {
	id := c.Param("id")

	if h.queue.Cancel(id) {
		c.JSON(http.StatusOK, h.queue.Get(id))
		return
	}

	if h.queue.Get(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "job not found"})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "job is not pending"})
}

// intQuery parses a non-negative integer query parameter, falling back to the
// default on absence or garbage.
func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.DefaultQuery(name, strconv.Itoa(fallback))
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return fallback
	}
	return v
}

// page applies limit/offset to a slice. A limit of 0 means no cap.
func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
