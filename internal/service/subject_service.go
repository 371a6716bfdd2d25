package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
)

var (
	ErrSubjectNotFound  = errors.New("subject not found")
	ErrDuplicateSubject = errors.New("subject name already used in this course")
)

type SubjectService struct {
	subjectRepo *repository.SubjectRepository
	log         zerolog.Logger
}

func NewSubjectService(subjectRepo *repository.SubjectRepository, log zerolog.Logger) *SubjectService {
	return &SubjectService{
		subjectRepo: subjectRepo,
		log:         log.With().Str("component", "subject_service").Logger(),
	}
}

func (s *SubjectService) ListByCourse(ctx context.Context, courseID uuid.UUID) ([]model.Subject, error) {
	subjects, err := s.subjectRepo.ListByCourse(ctx, courseID)
	if subjects == nil && err == nil {
		subjects = []model.Subject{}
	}
	return subjects, err
}

func (s *SubjectService) GetByID(ctx context.Context, id uuid.UUID) (*model.Subject, error) {
	sub, err := s.subjectRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSubjectNotFound
	}
	return sub, err
}

func (s *SubjectService) Create(ctx context.Context, courseID uuid.UUID, req *model.SaveSubjectRequest) (*model.Subject, error) {
	sub := &model.Subject{CourseID: courseID, Name: req.Name, Description: req.Description}
	if err := s.subjectRepo.Create(ctx, sub); err != nil {
		switch {
		case repository.IsForeignKeyViolation(err):
			return nil, ErrCourseNotFound
		case repository.IsUniqueViolation(err):
			return nil, ErrDuplicateSubject
		}
		return nil, fmt.Errorf("create subject: %w", err)
	}
	return sub, nil
}

func (s *SubjectService) Update(ctx context.Context, id uuid.UUID, req *model.SaveSubjectRequest) (*model.Subject, error) {
	ok, err := s.subjectRepo.Update(ctx, &model.Subject{ID: id, Name: req.Name, Description: req.Description})
	if repository.IsUniqueViolation(err) {
		return nil, ErrDuplicateSubject
	}
	if err != nil {
		return nil, fmt.Errorf("update subject: %w", err)
	}
	if !ok {
		return nil, ErrSubjectNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes a subject that holds no questions.
func (s *SubjectService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.subjectRepo.Delete(ctx, id)
	if repository.IsForeignKeyViolation(err) {
		return ErrHasDependents
	}
	if err != nil {
		return fmt.Errorf("delete subject: %w", err)
	}
	if !ok {
		return ErrSubjectNotFound
	}
	return nil
}
