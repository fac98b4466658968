package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/scheduler"
)

// schedulerHandler serves the scheduled-definition endpoints.
type schedulerHandler struct {
	scheduler *scheduler.Scheduler
	logger    logger.Logger
}

func newSchedulerHandler(s *scheduler.Scheduler, log logger.Logger) *schedulerHandler {
	return &schedulerHandler{scheduler: s, logger: log}
}

// List handles GET /api/v1/scheduler/jobs.
func (h *schedulerHandler) List(c *gin.Context) {
	jobs := h.scheduler.GetAllJobsStatus()
	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"total": len(jobs),
	})
}

// Get handles GET /api/v1/scheduler/jobs/:id.
func (h *schedulerHandler) Get(c *gin.Context) {
	status := h.scheduler.GetJobStatus(c.Param("id"))
	if status == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduled job not found"})
		return
	}
	c.JSON(http.StatusOK, status)
}

// Enable handles POST /api/v1/scheduler/jobs/:id/enable.
func (h *schedulerHandler) Enable(c *gin.Context) {
	id := c.Param("id")

	if h.scheduler.GetJobStatus(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduled job not found"})
		return
	}

	if !h.scheduler.EnableJob(id) {
		status := h.scheduler.GetJobStatus(id)
		msg := "failed to enable job"
		if status != nil && status.LastError != "" {
			msg = status.LastError
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}

	c.JSON(http.StatusOK, h.scheduler.GetJobStatus(id))
}

// Disable handles POST /api/v1/scheduler/jobs/:id/disable.
func (h *schedulerHandler) Disable(c *gin.Context) {
	id := c.Param("id")

	if !h.scheduler.DisableJob(id) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduled job not found"})
		return
	}

	c.JSON(http.StatusOK, h.scheduler.GetJobStatus(id))
}

// Trigger handles POST /api/v1/scheduler/jobs/:id/trigger. The run happens in
// the background; the response only confirms the hand-off.
func (h *schedulerHandler) Trigger(c *gin.Context) {
	id := c.Param("id")

	if h.scheduler.GetJobStatus(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "scheduled job not found"})
		return
	}

	for _, exec := range h.scheduler.GetActiveExecutions() {
		if exec.JobID == id {
			c.JSON(http.StatusConflict, gin.H{"error": "job is already running"})
			return
		}
	}

	go func() {
		// Detached from the request so the run outlives the response.
		if err := h.scheduler.TriggerJob(context.Background(), id); err != nil {
			h.logger.Warn("manual trigger failed",
				logger.String("job_id", id),
				logger.Error(err))
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message": "job triggered",
		"job_id":  id,
	})
}

// ActiveExecutions handles GET /api/v1/scheduler/executions.
func (h *schedulerHandler) ActiveExecutions(c *gin.Context) {
	execs := h.scheduler.GetActiveExecutions()
	c.JSON(http.StatusOK, gin.H{
		"executions": execs,
		"total":      len(execs),
	})
}
