package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/session"
)

const sessionColumns = `id, exam_id, candidate_id, question_ids, seed, started_at, expires_at,
	current_question_index, answers, status, completed_at, score, passed, time_taken, updated_at`

// ExamSessionRepository stores exam sessions in Postgres. It satisfies session.Store.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

var _ session.Store = (*ExamSessionRepository)(nil)

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	var qids, answers []byte
	if err := row.Scan(&s.ID, &s.ExamID, &s.CandidateID, &qids, &s.Seed, &s.StartedAt, &s.ExpiresAt,
		&s.CurrentQuestionIndex, &answers, &s.Status, &s.CompletedAt, &s.Score, &s.Passed,
		&s.TimeTaken, &s.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, session.ErrSessionNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(qids, &s.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question_ids of session %s: %w", s.ID, err)
	}
	if err := json.Unmarshal(answers, &s.Answers); err != nil {
		return nil, fmt.Errorf("decode answers of session %s: %w", s.ID, err)
	}
	return s, nil
}

// Create inserts an in-progress session. The partial unique index on
// (exam_id, candidate_id) turns a second active attempt into
// session.ErrActiveSessionExists.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	qids, err := json.Marshal(s.QuestionIDs)
	if err != nil {
		return fmt.Errorf("encode question_ids: %w", err)
	}
	answers, err := json.Marshal(nonNilAnswers(s.Answers))
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}

	var id uuid.UUID
	err = r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (id, exam_id, candidate_id, question_ids, seed, started_at,
		                            expires_at, current_question_index, answers, status, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (exam_id, candidate_id) WHERE status = 'in_progress' DO NOTHING
		 RETURNING id`,
		s.ID, s.ExamID, s.CandidateID, qids, s.Seed, s.StartedAt,
		s.ExpiresAt, s.CurrentQuestionIndex, answers, s.Status, s.UpdatedAt,
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return session.ErrActiveSessionExists
	}
	return err
}

func (r *ExamSessionRepository) Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id))
}

func (r *ExamSessionRepository) FindActive(ctx context.Context, examID uuid.UUID, candidateID string) (*model.ExamSession, error) {
	return scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND candidate_id = $2 AND status = 'in_progress'`, examID, candidateID))
}

// Save writes every mutable column of the session in one statement. Only an
// in-progress row is writable, so a finished session stays finished even
// when another replica races the write.
func (r *ExamSessionRepository) Save(ctx context.Context, s *model.ExamSession) error {
	answers, err := json.Marshal(nonNilAnswers(s.Answers))
	if err != nil {
		return fmt.Errorf("encode answers: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET current_question_index = $1, answers = $2, status = $3, completed_at = $4,
		     score = $5, passed = $6, time_taken = $7, updated_at = $8
		 WHERE id = $9 AND status = 'in_progress'`,
		s.CurrentQuestionIndex, answers, s.Status, s.CompletedAt,
		s.Score, s.Passed, s.TimeTaken, s.UpdatedAt, s.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_sessions WHERE id = $1)`, s.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return session.ErrSessionNotFound
	}
	return session.ErrSessionFinished
}

// ListExpired returns in-progress sessions whose expiry is before cutoff,
// oldest first, except those in skip.
func (r *ExamSessionRepository) ListExpired(ctx context.Context, cutoff time.Time, skip []uuid.UUID, limit int) ([]model.ExamSession, error) {
	skipIDs := make([]string, len(skip))
	for i, id := range skip {
		skipIDs[i] = id.String()
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE status = 'in_progress' AND expires_at < $1
		   AND NOT (id = ANY($2::uuid[]))
		 ORDER BY expires_at ASC LIMIT $3`, cutoff, skipIDs, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListByCandidate returns a candidate's sessions, newest first.
func (r *ExamSessionRepository) ListByCandidate(ctx context.Context, candidateID string) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE candidate_id = $1 ORDER BY started_at DESC`, candidateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListActiveByExam returns the in-progress sessions of one exam.
func (r *ExamSessionRepository) ListActiveByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+sessionColumns+` FROM exam_sessions
		 WHERE exam_id = $1 AND status = 'in_progress' ORDER BY started_at ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectSessions(rows)
}

func collectSessions(rows pgx.Rows) ([]model.ExamSession, error) {
	var sessions []model.ExamSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}

func nonNilAnswers(a []model.Answer) []model.Answer {
	if a == nil {
		return []model.Answer{}
	}
	return a
}
