package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

const resultColumns = `exam_session_id, exam_id, candidate_id, status, score, passed,
	total_questions, correct_answers, time_taken, detailed_results, completed_at`

// ExamResultRepository stores graded results. Results are immutable, so
// writes are idempotent upserts keyed by session id that never overwrite.
type ExamResultRepository struct {
	pool *pgxpool.Pool
}

func NewExamResultRepository(pool *pgxpool.Pool) *ExamResultRepository {
	return &ExamResultRepository{pool: pool}
}

func scanResult(row pgx.Row) (*model.ExamResult, error) {
	res := &model.ExamResult{}
	var details []byte
	if err := row.Scan(&res.ExamSessionID, &res.ExamID, &res.CandidateID, &res.Status, &res.Score,
		&res.Passed, &res.TotalQuestions, &res.CorrectAnswers, &res.TimeTaken, &details,
		&res.CompletedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(details, &res.DetailedResults); err != nil {
		return nil, fmt.Errorf("decode detailed_results of session %s: %w", res.ExamSessionID, err)
	}
	return res, nil
}

// InsertOne stores a single result. An existing row is left untouched.
func (r *ExamResultRepository) InsertOne(ctx context.Context, res *model.ExamResult) error {
	details, err := json.Marshal(res.DetailedResults)
	if err != nil {
		return fmt.Errorf("encode detailed_results: %w", err)
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO exam_results (`+resultColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (exam_session_id) DO NOTHING`,
		res.ExamSessionID, res.ExamID, res.CandidateID, res.Status, res.Score, res.Passed,
		res.TotalQuestions, res.CorrectAnswers, res.TimeTaken, details, res.CompletedAt)
	return err
}

// InsertBatch stores many results in one statement using UNNEST.
func (r *ExamResultRepository) InsertBatch(ctx context.Context, batch []*model.ExamResult) error {
	n := len(batch)
	if n == 0 {
		return nil
	}

	sessionIDs := make([]uuid.UUID, n)
	examIDs := make([]uuid.UUID, n)
	candidates := make([]string, n)
	statuses := make([]string, n)
	scores := make([]float64, n)
	passed := make([]bool, n)
	totals := make([]int32, n)
	corrects := make([]int32, n)
	taken := make([]int32, n)
	details := make([]string, n)
	completed := make([]*time.Time, n)

	for i, res := range batch {
		raw, err := json.Marshal(res.DetailedResults)
		if err != nil {
			return fmt.Errorf("encode detailed_results of session %s: %w", res.ExamSessionID, err)
		}
		sessionIDs[i] = res.ExamSessionID
		examIDs[i] = res.ExamID
		candidates[i] = res.CandidateID
		statuses[i] = string(res.Status)
		scores[i] = res.Score
		passed[i] = res.Passed
		totals[i] = int32(res.TotalQuestions)
		corrects[i] = int32(res.CorrectAnswers)
		taken[i] = int32(res.TimeTaken)
		details[i] = string(raw)
		completed[i] = res.CompletedAt
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO exam_results (`+resultColumns+`)
		SELECT u.session_id, u.exam_id, u.candidate_id, u.status, u.score, u.passed,
		       u.total, u.correct, u.taken, u.details::jsonb, u.completed_at
		FROM UNNEST(
			$1::uuid[], $2::uuid[], $3::text[], $4::text[], $5::float8[], $6::bool[],
			$7::int[], $8::int[], $9::int[], $10::text[], $11::timestamptz[]
		) AS u (session_id, exam_id, candidate_id, status, score, passed,
		        total, correct, taken, details, completed_at)
		ON CONFLICT (exam_session_id) DO NOTHING`,
		sessionIDs, examIDs, candidates, statuses, scores, passed,
		totals, corrects, taken, details, completed)
	return err
}

// GetBySession returns pgx.ErrNoRows when the result has not been persisted yet.
func (r *ExamResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	return scanResult(r.pool.QueryRow(ctx,
		`SELECT `+resultColumns+` FROM exam_results WHERE exam_session_id = $1`, sessionID))
}

// ListByExamPaginated lists results of one exam, best score first.
func (r *ExamResultRepository) ListByExamPaginated(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResult, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM exam_results WHERE exam_id = $1`, examID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM exam_results WHERE exam_id = $1
		 ORDER BY score DESC, time_taken ASC LIMIT $2 OFFSET $3`,
		examID, perPage, offset(page, perPage))
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, 0, err
		}
		results = append(results, *res)
	}
	return results, total, rows.Err()
}

// ListAllByExam returns every result of an exam for export.
func (r *ExamResultRepository) ListAllByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+resultColumns+` FROM exam_results WHERE exam_id = $1
		 ORDER BY completed_at ASC NULLS LAST`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.ExamResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *res)
	}
	return results, rows.Err()
}
