package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
)

const (
	refreshInterval   = 5 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 3 * time.Second // a slow query must not stall the SSE loop
)

type MonitorHandler struct {
	examService    *service.ExamService
	monitorService *service.MonitorService
	log            zerolog.Logger
}

func NewMonitorHandler(
	examService *service.ExamService,
	monitorService *service.MonitorService,
	log zerolog.Logger,
) *MonitorHandler {
	return &MonitorHandler{
		examService:    examService,
		monitorService: monitorService,
		log:            log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListLiveSessions godoc
// GET /api/v1/admin/exams/:id/sessions
// One-shot snapshot of in-progress sessions with progress and presence.
func (h *MonitorHandler) ListLiveSessions(c *gin.Context) {
	examID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.examService.GetByID(c.Request.Context(), examID); err != nil {
		fail(c, err)
		return
	}
	snap, err := h.monitorService.GetLiveSnapshot(c.Request.Context(), examID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, snap)
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:id/monitor
// Streams a snapshot event every refreshInterval until the client leaves.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, err := h.examService.GetByID(c.Request.Context(), examID); err != nil {
		fail(c, err)
		return
	}

	reqCtx := c.Request.Context()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	h.sendSnapshot(c, reqCtx, examID)

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()
	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	h.log.Info().Str("exam_id", examID.String()).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Str("exam_id", examID.String()).Msg("Admin disconnected from live monitor SSE")
			return

		case <-refreshTicker.C:
			h.sendSnapshot(c, reqCtx, examID)

		case <-keepAliveTicker.C:
			c.SSEvent("ping", gin.H{"server_time": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}

// sendSnapshot polls progress and presence and writes one SSE event.
func (h *MonitorHandler) sendSnapshot(c *gin.Context, parent context.Context, examID uuid.UUID) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitorService.GetLiveSnapshot(ctx, examID)
	if err != nil {
		h.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to fetch live snapshot")
		return
	}

	c.SSEvent("snapshot", snap)
	c.Writer.Flush()
}
