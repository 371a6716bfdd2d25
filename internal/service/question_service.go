package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/response"
)

var (
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionInUse protects questions that published exams or sessions depend on.
	ErrQuestionInUse = errors.New("question is used by a published exam or a session")
)

// QuestionService handles question business logic.
type QuestionService struct {
	questionRepo *repository.QuestionRepository
}

// NewQuestionService creates a new QuestionService.
func NewQuestionService(questionRepo *repository.QuestionRepository) *QuestionService {
	return &QuestionService{questionRepo: questionRepo}
}

// ListBySubject retrieves a subject's questions with pagination.
func (s *QuestionService) ListBySubject(ctx context.Context, subjectID uuid.UUID, page, perPage int) ([]model.Question, *response.Pagination, error) {
	page, perPage = clampPage(page, perPage)

	questions, total, err := s.questionRepo.ListBySubjectPaginated(ctx, subjectID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if questions == nil {
		questions = []model.Question{}
	}
	return questions, response.NewPagination(page, perPage, total), nil
}

func (s *QuestionService) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	q, err := s.questionRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrQuestionNotFound
	}
	return q, err
}

// Create validates the option shape and adds a question to a subject.
func (s *QuestionService) Create(ctx context.Context, subjectID uuid.UUID, req *model.SaveQuestionRequest) (*model.Question, error) {
	q := req.ToQuestion(subjectID)
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.questionRepo.Create(ctx, q); err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, ErrSubjectNotFound
		}
		return nil, fmt.Errorf("create question: %w", err)
	}
	return q, nil
}

// Update replaces a question that no published exam or session references.
func (s *QuestionService) Update(ctx context.Context, id uuid.UUID, req *model.SaveQuestionRequest) (*model.Question, error) {
	q := req.ToQuestion(uuid.Nil)
	q.ID = id
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := s.ensureUnused(ctx, id); err != nil {
		return nil, err
	}
	ok, err := s.questionRepo.Update(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("update question: %w", err)
	}
	if !ok {
		return nil, ErrQuestionNotFound
	}
	return q, nil
}

// Delete removes a question that no published exam or session references.
func (s *QuestionService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.ensureUnused(ctx, id); err != nil {
		return err
	}
	ok, err := s.questionRepo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	if !ok {
		return ErrQuestionNotFound
	}
	return nil
}

func (s *QuestionService) ensureUnused(ctx context.Context, id uuid.UUID) error {
	used, err := s.questionRepo.ReferencedByExam(ctx, id)
	if err != nil {
		return fmt.Errorf("check references: %w", err)
	}
	if used {
		return ErrQuestionInUse
	}
	return nil
}
