package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/repository"
)

// PresenceTTL is how long a stream heartbeat keeps a session marked online.
const PresenceTTL = 45 * time.Second

// MonitorService orchestrates live exam monitoring business logic.
type MonitorService struct {
	monitorRepo *repository.MonitorRepository
	log         zerolog.Logger
	now         func() time.Time
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(monitorRepo *repository.MonitorRepository, log zerolog.Logger) *MonitorService {
	return &MonitorService{
		monitorRepo: monitorRepo,
		log:         log.With().Str("component", "monitor_service").Logger(),
		now:         time.Now,
	}
}

// LiveSession is a SessionProgress with its remaining time.
type LiveSession struct {
	repository.SessionProgress
	RemainingSeconds int `json:"remaining_seconds"`
}

// LiveSnapshot is the proctor view of one exam.
type LiveSnapshot struct {
	ExamID   uuid.UUID     `json:"exam_id"`
	Online   int           `json:"online"`
	Sessions []LiveSession `json:"sessions"`
}

// GetLiveSnapshot returns progress of every in-progress session. Presence
// is best-effort: a Redis failure reports everyone offline.
func (s *MonitorService) GetLiveSnapshot(ctx context.Context, examID uuid.UUID) (*LiveSnapshot, error) {
	progress, err := s.monitorRepo.GetInProgress(ctx, examID)
	if err != nil {
		return nil, err
	}

	ids := make([]uuid.UUID, len(progress))
	for i, p := range progress {
		ids[i] = p.SessionID
	}

	presence, err := s.monitorRepo.GetPresence(ctx, ids)
	if err != nil {
		s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Presence lookup failed")
	}

	now := s.now()
	snap := &LiveSnapshot{ExamID: examID, Sessions: make([]LiveSession, len(progress))}
	for i, p := range progress {
		p.Online = presence[p.SessionID]
		if p.Online {
			snap.Online++
		}
		remaining := p.ExpiresAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		snap.Sessions[i] = LiveSession{
			SessionProgress:  p,
			RemainingSeconds: int(remaining / time.Second),
		}
	}
	return snap, nil
}

// Heartbeat marks a session's stream as connected.
func (s *MonitorService) Heartbeat(ctx context.Context, sessionID uuid.UUID) {
	if err := s.monitorRepo.MarkPresent(ctx, sessionID, PresenceTTL); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Heartbeat failed")
	}
}

// Disconnect clears a session's presence marker.
func (s *MonitorService) Disconnect(ctx context.Context, sessionID uuid.UUID) {
	if err := s.monitorRepo.ClearPresence(ctx, sessionID); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID.String()).Msg("Presence clear failed")
	}
}
