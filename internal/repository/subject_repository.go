package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/examcore/internal/model"
)

type SubjectRepository struct {
	pool *pgxpool.Pool
}

func NewSubjectRepository(pool *pgxpool.Pool) *SubjectRepository {
	return &SubjectRepository{pool: pool}
}

func (r *SubjectRepository) Create(ctx context.Context, s *model.Subject) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO subjects (course_id, name, description) VALUES ($1, $2, $3)
		 RETURNING id, created_at, updated_at`,
		s.CourseID, s.Name, s.Description).Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt)
}

func (r *SubjectRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	s := &model.Subject{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, course_id, name, description, created_at, updated_at FROM subjects WHERE id = $1`, id,
	).Scan(&s.ID, &s.CourseID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *SubjectRepository) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.Subject, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, course_id, name, description, created_at, updated_at
		 FROM subjects WHERE course_id = $1 ORDER BY name ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subjects []model.Subject
	for rows.Next() {
		var s model.Subject
		if err := rows.Scan(&s.ID, &s.CourseID, &s.Name, &s.Description, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		subjects = append(subjects, s)
	}
	return subjects, rows.Err()
}

// Inventory returns per-subject question counts for a course, subjects
// without questions included.
func (r *SubjectRepository) Inventory(ctx context.Context, courseID uuid.UUID) ([]model.SubjectInventory, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.name, COUNT(q.id)
		 FROM subjects s
		 LEFT JOIN questions q ON q.subject_id = s.id
		 WHERE s.course_id = $1
		 GROUP BY s.id, s.name
		 ORDER BY s.name ASC`, courseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var inv []model.SubjectInventory
	for rows.Next() {
		var i model.SubjectInventory
		if err := rows.Scan(&i.SubjectID, &i.Name, &i.QuestionCount); err != nil {
			return nil, err
		}
		inv = append(inv, i)
	}
	return inv, rows.Err()
}

func (r *SubjectRepository) Update(ctx context.Context, s *model.Subject) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE subjects SET name = $1, description = $2, updated_at = NOW() WHERE id = $3`,
		s.Name, s.Description, s.ID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *SubjectRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM subjects WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
