package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

const examColumns = `id, course_id, title, time_limit_minutes, passing_score, status,
	use_question_pool, question_ids, pool, scheduled_start, scheduled_end, shuffle,
	access_code_hash, created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	var qids, poolRaw []byte
	if err := row.Scan(&e.ID, &e.CourseID, &e.Title, &e.TimeLimitMinutes, &e.PassingScore, &e.Status,
		&e.UseQuestionPool, &qids, &poolRaw, &e.ScheduledStart, &e.ScheduledEnd, &e.Shuffle,
		&e.AccessCodeHash, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(qids, &e.QuestionIDs); err != nil {
		return nil, fmt.Errorf("decode question_ids of exam %s: %w", e.ID, err)
	}
	if err := json.Unmarshal(poolRaw, &e.Pool); err != nil {
		return nil, fmt.Errorf("decode pool of exam %s: %w", e.ID, err)
	}
	return e, nil
}

func encodeSource(e *model.Exam) (qids, poolRaw []byte, err error) {
	ids := e.QuestionIDs
	if ids == nil {
		ids = []uuid.UUID{}
	}
	if qids, err = json.Marshal(ids); err != nil {
		return nil, nil, fmt.Errorf("encode question_ids: %w", err)
	}
	p := e.Pool
	if p.Entries == nil {
		p.Entries = []model.PoolEntry{}
	}
	if poolRaw, err = json.Marshal(p); err != nil {
		return nil, nil, fmt.Errorf("encode pool: %w", err)
	}
	return qids, poolRaw, nil
}

// GetByID returns pgx.ErrNoRows when the exam does not exist.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// Create inserts a new draft exam.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam) error {
	qids, poolRaw, err := encodeSource(e)
	if err != nil {
		return err
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exams (course_id, title, time_limit_minutes, passing_score, status,
		                    use_question_pool, question_ids, pool, scheduled_start, scheduled_end,
		                    shuffle, access_code_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id, created_at, updated_at`,
		e.CourseID, e.Title, e.TimeLimitMinutes, e.PassingScore, e.Status,
		e.UseQuestionPool, qids, poolRaw, e.ScheduledStart, e.ScheduledEnd,
		e.Shuffle, e.AccessCodeHash,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

// Update rewrites a draft exam. It returns false if the exam is missing or
// no longer a draft.
func (r *ExamRepository) Update(ctx context.Context, e *model.Exam) (bool, error) {
	qids, poolRaw, err := encodeSource(e)
	if err != nil {
		return false, err
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE exams
		 SET course_id = $1, title = $2, time_limit_minutes = $3, passing_score = $4,
		     use_question_pool = $5, question_ids = $6, pool = $7, scheduled_start = $8,
		     scheduled_end = $9, shuffle = $10, access_code_hash = $11, updated_at = NOW()
		 WHERE id = $12 AND status = 'draft'
		 RETURNING updated_at`,
		e.CourseID, e.Title, e.TimeLimitMinutes, e.PassingScore,
		e.UseQuestionPool, qids, poolRaw, e.ScheduledStart,
		e.ScheduledEnd, e.Shuffle, e.AccessCodeHash, e.ID,
	).Scan(&e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SetAccessCodeHash replaces the access code hash regardless of status.
func (r *ExamRepository) SetAccessCodeHash(ctx context.Context, id uuid.UUID, hash string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET access_code_hash = $1, updated_at = NOW() WHERE id = $2`, hash, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// TransitionStatus moves an exam from one status to another atomically.
// It returns false if the exam is not currently in from.
func (r *ExamRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.ExamStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`,
		to, id, from)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// DeleteDraft deletes an exam only while it is a draft that no session
// references. An unpublished exam keeps its sessions and results.
func (r *ExamRepository) DeleteDraft(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM exams
		 WHERE id = $1 AND status = 'draft'
		   AND NOT EXISTS (SELECT 1 FROM exam_sessions WHERE exam_id = $1)`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ListPaginated lists exams newest first, optionally filtered by course and status.
func (r *ExamRepository) ListPaginated(ctx context.Context, courseID *uuid.UUID, status *model.ExamStatus, page, perPage int) ([]model.Exam, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	if courseID != nil {
		args = append(args, *courseID)
		where += ` AND course_id = $` + strconv.Itoa(len(args))
	}
	if status != nil {
		args = append(args, *status)
		where += ` AND status = $` + strconv.Itoa(len(args))
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exams`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + examColumns + ` FROM exams` + where +
		` ORDER BY created_at DESC LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, perPage, offset(page, perPage))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, err
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

// ListPublished returns every published exam, used for cache prewarming and
// the candidate catalog.
func (r *ExamRepository) ListPublished(ctx context.Context) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+examColumns+` FROM exams WHERE status = 'published'
		 ORDER BY scheduled_start ASC NULLS FIRST, title ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exams []model.Exam
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, *e)
	}
	return exams, rows.Err()
}
