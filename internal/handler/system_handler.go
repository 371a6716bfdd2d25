package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/response"
)

const metricsInterval = 7 * time.Second

// SystemHandler reports Go runtime and worker queue metrics.
type SystemHandler struct {
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemMetrics struct {
	Timestamp int64  `json:"timestamp"`
	Uptime    string `json:"uptime"`

	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	HeapSys    uint64 `json:"heap_sys"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
	NumCPU     int    `json:"num_cpu"`

	// Worker queues; -1 when Redis could not be read.
	QueueResults     int64 `json:"queue_results"`
	QueueDeadLetters int64 `json:"queue_dead_letters"`
}

// GetMetrics godoc
// GET /api/v1/admin/system/metrics
func (h *SystemHandler) GetMetrics(c *gin.Context) {
	response.Success(c, http.StatusOK, h.collect(c.Request.Context()))
}

// MetricsSSE godoc
// GET /api/v1/admin/system/metrics/stream
func (h *SystemHandler) MetricsSSE(c *gin.Context) {
	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.log.Info().Msg("Admin connected to system metrics SSE")

	ticker := time.NewTicker(metricsInterval)
	defer ticker.Stop()

	c.SSEvent("metrics", h.collect(reqCtx))
	c.Writer.Flush()

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from system metrics SSE")
			return
		case <-ticker.C:
			c.SSEvent("metrics", h.collect(reqCtx))
			c.Writer.Flush()
		}
	}
}

func (h *SystemHandler) collect(ctx context.Context) systemMetrics {
	m := systemMetrics{
		Timestamp:        time.Now().Unix(),
		Uptime:           formatDuration(time.Since(h.startTime)),
		GoVersion:        runtime.Version(),
		NumCPU:           runtime.NumCPU(),
		Goroutines:       runtime.NumGoroutine(),
		QueueResults:     -1,
		QueueDeadLetters: -1,
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	m.HeapAlloc = ms.HeapAlloc
	m.HeapSys = ms.HeapSys
	m.NumGC = ms.NumGC

	pipe := h.rdb.Pipeline()
	resultsCmd := pipe.LLen(ctx, config.WorkerKey.PersistResultsQueue)
	deadCmd := pipe.LLen(ctx, config.WorkerKey.ResultsDeadLetter)
	if _, err := pipe.Exec(ctx); err != nil {
		h.log.Debug().Err(err).Msg("Queue depth lookup failed")
		return m
	}
	m.QueueResults = resultsCmd.Val()
	m.QueueDeadLetters = deadCmd.Val()
	return m
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	if days > 0 {
		return fmt.Sprintf("%dd %s", days, d)
	}
	return d.String()
}
