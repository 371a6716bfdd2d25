package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

const questionColumns = `id, subject_id, text, type, options, difficulty, explanation, created_at, updated_at`

// QuestionRepository handles question data access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestion(row pgx.Row) (*model.Question, error) {
	q := &model.Question{}
	var opts []byte
	if err := row.Scan(&q.ID, &q.SubjectID, &q.Text, &q.Type, &opts, &q.Difficulty,
		&q.Explanation, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(opts, &q.Options); err != nil {
		return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
	}
	return q, nil
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()
	var questions []model.Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, rows.Err()
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return fmt.Errorf("encode options: %w", err)
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO questions (subject_id, text, type, options, difficulty, explanation)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		q.SubjectID, q.Text, q.Type, opts, q.Difficulty, q.Explanation,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
}

// GetByID returns pgx.ErrNoRows when the question does not exist.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	return scanQuestion(r.pool.QueryRow(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id))
}

// ListBySubjectPaginated lists a subject's questions, oldest first.
func (r *QuestionRepository) ListBySubjectPaginated(ctx context.Context, subjectID uuid.UUID, page, perPage int) ([]model.Question, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM questions WHERE subject_id = $1`, subjectID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE subject_id = $1
		 ORDER BY created_at ASC, id ASC LIMIT $2 OFFSET $3`,
		subjectID, perPage, offset(page, perPage))
	if err != nil {
		return nil, 0, err
	}
	questions, err := collectQuestions(rows)
	return questions, total, err
}

// ListByIDs returns the questions with the given ids in unspecified order.
// Missing ids are silently absent.
func (r *QuestionRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// CountInCourse counts how many of ids belong to subjects of the course.
func (r *QuestionRepository) CountInCourse(ctx context.Context, courseID uuid.UUID, ids []uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(DISTINCT q.id)
		 FROM questions q JOIN subjects s ON s.id = q.subject_id
		 WHERE s.course_id = $1 AND q.id = ANY($2::uuid[])`, courseID, ids).Scan(&n)
	return n, err
}

// InventoryByCourse maps each subject of the course to its question ids.
func (r *QuestionRepository) InventoryByCourse(ctx context.Context, courseID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT q.subject_id, q.id
		 FROM questions q JOIN subjects s ON s.id = q.subject_id
		 WHERE s.course_id = $1`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	inv := make(map[uuid.UUID][]uuid.UUID)
	for rows.Next() {
		var subjectID, questionID uuid.UUID
		if err := rows.Scan(&subjectID, &questionID); err != nil {
			return nil, err
		}
		inv[subjectID] = append(inv[subjectID], questionID)
	}
	return inv, rows.Err()
}

// Update replaces a question's content. It returns false when the id is unknown.
func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) (bool, error) {
	opts, err := json.Marshal(q.Options)
	if err != nil {
		return false, fmt.Errorf("encode options: %w", err)
	}
	err = r.pool.QueryRow(ctx,
		`UPDATE questions
		 SET text = $1, type = $2, options = $3, difficulty = $4, explanation = $5, updated_at = NOW()
		 WHERE id = $6
		 RETURNING subject_id, created_at, updated_at`,
		q.Text, q.Type, opts, q.Difficulty, q.Explanation, q.ID,
	).Scan(&q.SubjectID, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (r *QuestionRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM questions WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ReferencedByExam reports whether any non-draft exam lists the question
// explicitly. Graded sessions depend on such questions staying unchanged.
func (r *QuestionRepository) ReferencedByExam(ctx context.Context, id uuid.UUID) (bool, error) {
	var found bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM exams
		   WHERE status <> 'draft' AND question_ids @> jsonb_build_array($1::text)
		 ) OR EXISTS (
		   SELECT 1 FROM exam_sessions WHERE question_ids @> jsonb_build_array($1::text)
		 )`, id.String()).Scan(&found)
	return found, err
}
