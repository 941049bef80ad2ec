// Package api exposes the daemon's ops surface: health, queue
// statistics, a caller-triggered replay endpoint and Prometheus metrics.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/dukkanapp/syncengine/internal/middleware"
	syncengine "github.com/dukkanapp/syncengine/internal/sync"
	"github.com/dukkanapp/syncengine/pkg/response"
)

// Config toggles optional routes.
type Config struct {
	MetricsEnabled  bool
	MetricsEndpoint string
	HealthEnabled   bool
}

// NewRouter assembles the gin engine for the ops surface.
func NewRouter(db *gorm.DB, engine *syncengine.Engine, cfg Config) *gin.Engine {
	router := gin.New()
	router.Use(middleware.Logger(), middleware.Recovery())
	router.NoRoute(middleware.NotFoundHandler)

	if cfg.HealthEnabled {
		router.GET("/health", Health(db))
	}

	if cfg.MetricsEnabled {
		endpoint := cfg.MetricsEndpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		router.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	queue := router.Group("/api/queue")
	{
		queue.GET("/stats", QueueStats(engine))
		queue.POST("/process", ProcessQueue(engine))
	}

	router.GET("/api/data/:table", TableData(engine))

	return router
}

// TableData serves the rows for one table through the full read flow:
// cache, remote with retries, durable fallback. `?fresh=true` bypasses the
// cache.
func TableData(engine *syncengine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		opts := syncengine.FetchOptions{ForceFresh: c.Query("fresh") == "true"}
		data, err := engine.FetchTable(c.Request.Context(), c.Param("table"), opts)
		if err != nil {
			response.Error(c, err)
			return
		}
		c.Data(http.StatusOK, "application/json; charset=utf-8", data)
	}
}

// Health reports readiness, including a database ping.
func Health(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		response.Success(c, http.StatusOK, gin.H{"status": "ok"})
	}
}

// QueueStats returns the pending-operation count and recovery state.
func QueueStats(engine *syncengine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		count, err := engine.PendingCount(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{
			"pending": count,
			"faulted": engine.Recovery.Faulted(),
		})
	}
}

// ProcessQueue triggers one replay pass, the hook the host calls when it
// believes connectivity is back.
func ProcessQueue(engine *syncengine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats, err := engine.ProcessOfflineQueue(c.Request.Context())
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Success(c, http.StatusOK, gin.H{
			"applied": stats.Applied,
			"failed":  stats.Failed,
			"skipped": stats.Skipped,
		})
	}
}
