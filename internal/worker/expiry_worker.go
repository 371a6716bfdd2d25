package worker

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/session"
)

// ExpirySweepLimit caps how many sessions one sweep finalizes.
const ExpirySweepLimit = 200

// ExpiryRetryAfter is how long a session whose expiry failed is left out of
// later sweeps, so a batch of failing sessions cannot fill every sweep.
const ExpiryRetryAfter = 10 * time.Minute

// ExpiredLister finds in-progress sessions that expired before cutoff,
// leaving out the ids in skip.
type ExpiredLister interface {
	ListExpired(ctx context.Context, cutoff time.Time, skip []uuid.UUID, limit int) ([]model.ExamSession, error)
}

// Expirer finalizes one abandoned session.
type Expirer interface {
	ExpireSession(ctx context.Context, sess *model.ExamSession) error
}

// ExpiryWorker periodically finalizes sessions whose candidates never submitted.
type ExpiryWorker struct {
	lister   ExpiredLister
	expirer  Expirer
	interval time.Duration
	grace    time.Duration
	now      func() time.Time
	log      zerolog.Logger

	// failed maps a session id to the time its expiry last failed.
	failed map[uuid.UUID]time.Time
}

func NewExpiryWorker(lister ExpiredLister, expirer Expirer, interval, grace time.Duration, now func() time.Time, log zerolog.Logger) *ExpiryWorker {
	return &ExpiryWorker{
		lister:   lister,
		expirer:  expirer,
		interval: interval,
		grace:    grace,
		now:      now,
		log:      log.With().Str("component", "expiry_worker").Logger(),
		failed:   make(map[uuid.UUID]time.Time),
	}
}

func (w *ExpiryWorker) Start(ctx context.Context) {
	w.log.Info().Dur("interval", w.interval).Msg("ExpiryWorker started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ExpiryWorker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep finalizes one batch of expired sessions and returns how many it closed.
// Sweep is not safe for concurrent use.
func (w *ExpiryWorker) Sweep(ctx context.Context) int {
	now := w.now()
	sessions, err := w.lister.ListExpired(ctx, now.Add(-w.grace), w.skipped(now), ExpirySweepLimit)
	if err != nil {
		w.log.Error().Err(err).Msg("ListExpired failed")
		return 0
	}

	closed := 0
	for i := range sessions {
		id := sessions[i].ID
		err := w.expirer.ExpireSession(ctx, &sessions[i])
		switch {
		case err == nil:
			closed++
			delete(w.failed, id)
		case errors.Is(err, session.ErrSessionFinished), errors.Is(err, session.ErrSessionNotYetExpired):
			// submitted concurrently, or clock skew against the store
			delete(w.failed, id)
		default:
			w.failed[id] = now
			w.log.Error().Err(err).
				Str("session_id", id.String()).
				Dur("retry_after", ExpiryRetryAfter).
				Msg("Expire failed")
		}
	}

	if closed > 0 {
		w.log.Info().Int("closed", closed).Msg("Expired sessions finalized")
	}
	return closed
}

// skipped returns the sessions still inside their retry delay and forgets
// the rest.
func (w *ExpiryWorker) skipped(now time.Time) []uuid.UUID {
	skip := make([]uuid.UUID, 0, len(w.failed))
	for id, at := range w.failed {
		if now.Sub(at) >= ExpiryRetryAfter {
			delete(w.failed, id)
			continue
		}
		skip = append(skip, id)
	}
	return skip
}
