// Package api exposes the engine over HTTP: read endpoints for queue,
// scheduler, and orchestrator state, control endpoints for enqueueing,
// triggering, and cancelling work, and the Prometheus exposition.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cicconel11/TruthLayer-sub001/internal/logger"
	"github.com/cicconel11/TruthLayer-sub001/internal/orchestrator"
	"github.com/cicconel11/TruthLayer-sub001/internal/queue"
	"github.com/cicconel11/TruthLayer-sub001/internal/scheduler"
)

// Deps carries the engine components the API serves.
type Deps struct {
	Queue        *queue.Queue
	Scheduler    *scheduler.Scheduler
	Orchestrator *orchestrator.Orchestrator
	// Metrics serves the Prometheus exposition; nil disables /metrics.
	Metrics http.Handler
	Logger  logger.Logger
	// Debug switches gin to debug mode.
	Debug bool
}

// NewRouter builds the engine's HTTP router.
func NewRouter(deps Deps) *gin.Engine {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}

	if deps.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(deps.Logger))
	router.Use(corsMiddleware())

	jobs := newJobsHandler(deps.Queue, deps.Logger)
	sched := newSchedulerHandler(deps.Scheduler, deps.Logger)
	cycles := newCyclesHandler(deps.Orchestrator, deps.Logger)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "ok",
			"queue":     deps.Queue.IsRunning(),
			"scheduler": deps.Scheduler.IsRunning(),
		})
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/stats", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"queue":        deps.Queue.Stats(),
				"scheduler":    deps.Scheduler.GetStats(),
				"orchestrator": deps.Orchestrator.GetStats(),
			})
		})

		// Queue jobs
		q := v1.Group("/queue")
		{
			q.GET("/jobs", jobs.List)
			q.POST("/jobs", jobs.Enqueue)
			q.GET("/jobs/:id", jobs.Get)
			q.POST("/jobs/:id/cancel", jobs.Cancel)
		}

		// Scheduled definitions
		s := v1.Group("/scheduler")
		{
			s.GET("/jobs", sched.List)
			s.GET("/jobs/:id", sched.Get)
			s.POST("/jobs/:id/enable", sched.Enable)
			s.POST("/jobs/:id/disable", sched.Disable)
			s.POST("/jobs/:id/trigger", sched.Trigger)
			s.GET("/executions", sched.ActiveExecutions)
		}

		// Collection cycles and their executions
		v1.GET("/cycles", cycles.List)
		v1.GET("/cycles/:id", cycles.Get)
		v1.POST("/cycles/:id/execute", cycles.Execute)
		v1.GET("/executions", cycles.ListExecutions)
		v1.GET("/executions/:id", cycles.GetExecution)
		v1.POST("/executions/:id/cancel", cycles.CancelExecution)
		v1.POST("/executions/:id/retry", cycles.RetryExecution)
	}

	return router
}

// requestLogger logs one line per request with method, path, status, and
// latency.
func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		fields := []logger.Field{
			logger.String("method", c.Request.Method),
			logger.String("path", path),
			logger.Int("status", c.Writer.Status()),
			logger.Duration("latency", time.Since(start)),
			logger.String("client_ip", c.ClientIP()),
		}
		if query != "" {
			fields = append(fields, logger.String("query", query))
		}
		if len(c.Errors) > 0 {
			msgs := make([]string, len(c.Errors))
			for i, err := range c.Errors {
				msgs[i] = err.Err.Error()
			}
			fields = append(fields, logger.Strings("errors", msgs))
			log.Error("http request", fields...)
			return
		}

		// Health probes are too chatty for Info.
		if strings.HasPrefix(path, "/health") || strings.HasPrefix(path, "/metrics") {
			log.Debug("http request", fields...)
			return
		}
		log.Info("http request", fields...)
	}
}

// corsMiddleware allows dashboard frontends on other origins to call the API.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers",
			"Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
