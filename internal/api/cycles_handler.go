package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/orchestrator"
)

// cyclesHandler serves the collection cycle and execution endpoints.
type cyclesHandler struct {
	orchestrator *orchestrator.Orchestrator
	logger       logger.Logger
}

func newCyclesHandler(o *orchestrator.Orchestrator, log logger.Logger) *cyclesHandler {
	return &cyclesHandler{orchestrator: o, logger: log}
}

// List handles GET /api/v1/cycles.
func (h *cyclesHandler) List(c *gin.Context) {
	cycles := h.orchestrator.Cycles()
	c.JSON(http.StatusOK, gin.H{
		"cycles": cycles,
		"total":  len(cycles),
	})
}

// Get handles GET /api/v1/cycles/:id.
func (h *cyclesHandler) Get(c *gin.Context) {
	cycle, ok := h.orchestrator.GetCycle(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "cycle not found"})
		return
	}
	c.JSON(http.StatusOK, cycle)
}

// Execute handles POST /api/v1/cycles/:id/execute. The execution proceeds in
// the background; poll GET /api/v1/executions/:id for progress.
func (h *cyclesHandler) Execute(c *gin.Context) {
	id := c.Param("id")

	execID, err := h.orchestrator.ExecuteCycle(id)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrUnknownCycle):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, orchestrator.ErrNotRunning):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"execution_id": execID,
		"cycle_id":     id,
	})
}

// ListExecutions handles GET /api/v1/executions. Supports cycle_id and
// active=true filters.
func (h *cyclesHandler) ListExecutions(c *gin.Context) {
	var execs []*orchestrator.Execution
	switch {
	case c.Query("cycle_id") != "":
		execs = h.orchestrator.GetCycleExecutions(c.Query("cycle_id"))
	case c.Query("active") == "true":
		execs = h.orchestrator.GetActiveExecutions()
	default:
		execs = h.orchestrator.GetExecutions()
	}

	c.JSON(http.StatusOK, gin.H{
		"executions": execs,
		"total":      len(execs),
	})
}

// GetExecution handles GET /api/v1/executions/:id.
func (h *cyclesHandler) GetExecution(c *gin.Context) {
	exec := h.orchestrator.GetExecutionStatus(c.Param("id"))
	if exec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusOK, exec)
}

// CancelExecution handles POST /api/v1/executions/:id/cancel.
func (h *cyclesHandler) CancelExecution(c *gin.Context) {
	id := c.Param("id")

	if h.orchestrator.CancelExecution(id) {
		c.JSON(http.StatusOK, h.orchestrator.GetExecutionStatus(id))
		return
	}

	if h.orchestrator.GetExecutionStatus(id) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "execution not found"})
		return
	}
	c.JSON(http.StatusConflict, gin.H{"error": "execution already finished"})
}

// RetryExecution handles POST /api/v1/executions/:id/retry. Re-enqueues the
// failed queries of a failed execution.
func (h *cyclesHandler) RetryExecution(c *gin.Context) {
	id := c.Param("id")

	if err := h.orchestrator.RetryFailedCollections(id); err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrExecutionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, orchestrator.ErrExecutionNotFailed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, orchestrator.ErrNotRunning):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	c.JSON(http.StatusAccepted, h.orchestrator.GetExecutionStatus(id))
}
