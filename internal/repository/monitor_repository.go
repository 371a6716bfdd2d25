package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/examcore/internal/config"
)

// MonitorRepository provides data access for the live exam monitoring feature.
// It combines PostgreSQL (session progress) and Redis (stream presence).
type MonitorRepository struct {
	pool *pgxpool.Pool
	rdb  *redis.Client
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool, rdb *redis.Client) *MonitorRepository {
	return &MonitorRepository{pool: pool, rdb: rdb}
}

// SessionProgress is one in-progress attempt as seen by a proctor.
type SessionProgress struct {
	SessionID     uuid.UUID `json:"session_id"`
	CandidateID   string    `json:"candidate_id"`
	StartedAt     time.Time `json:"started_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	CurrentIndex  int       `json:"current_question_index"`
	QuestionCount int       `json:"question_count"`
	AnsweredCount int       `json:"answered_count"`
	Online        bool      `json:"online"`
}

// GetInProgress returns the progress of every in-progress session of the exam.
func (r *MonitorRepository) GetInProgress(ctx context.Context, examID uuid.UUID) ([]SessionProgress, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, candidate_id, started_at, expires_at, current_question_index,
		        jsonb_array_length(question_ids),
		        (SELECT COUNT(*) FROM jsonb_array_elements(answers) a
		         WHERE jsonb_array_length(COALESCE(a->'selected_option_ids', '[]'::jsonb)) > 0)
		 FROM exam_sessions
		 WHERE exam_id = $1 AND status = 'in_progress'
		 ORDER BY started_at ASC`,
		examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	progress := []SessionProgress{}
	for rows.Next() {
		var p SessionProgress
		if err := rows.Scan(&p.SessionID, &p.CandidateID, &p.StartedAt, &p.ExpiresAt,
			&p.CurrentIndex, &p.QuestionCount, &p.AnsweredCount); err != nil {
			return nil, err
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

// GetPresence reports which of the sessions currently hold a live stream.
func (r *MonitorRepository) GetPresence(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	online := make(map[uuid.UUID]bool, len(sessionIDs))
	if len(sessionIDs) == 0 {
		return online, nil
	}

	keys := make([]string, len(sessionIDs))
	for i, id := range sessionIDs {
		keys[i] = config.CacheKey.SessionPresenceKey(id.String())
	}

	vals, err := r.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for i, v := range vals {
		online[sessionIDs[i]] = v != nil
	}
	return online, nil
}

// MarkPresent refreshes a session's presence marker.
func (r *MonitorRepository) MarkPresent(ctx context.Context, sessionID uuid.UUID, ttl time.Duration) error {
	return r.rdb.Set(ctx, config.CacheKey.SessionPresenceKey(sessionID.String()), 1, ttl).Err()
}

// ClearPresence removes a session's presence marker.
func (r *MonitorRepository) ClearPresence(ctx context.Context, sessionID uuid.UUID) error {
	return r.rdb.Del(ctx, config.CacheKey.SessionPresenceKey(sessionID.String())).Err()
}
