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
	ErrCourseNotFound = errors.New("course not found")
	// ErrHasDependents is returned when deleting a row that others still reference.
	ErrHasDependents = errors.New("resource is still referenced")
)

// CourseService handles course business logic.
type CourseService struct {
	courseRepo  *repository.CourseRepository
	subjectRepo *repository.SubjectRepository
	log         zerolog.Logger
}

// NewCourseService creates a new CourseService.
func NewCourseService(courseRepo *repository.CourseRepository, subjectRepo *repository.SubjectRepository, log zerolog.Logger) *CourseService {
	return &CourseService{
		courseRepo:  courseRepo,
		subjectRepo: subjectRepo,
		log:         log.With().Str("component", "course_service").Logger(),
	}
}

func (s *CourseService) List(ctx context.Context) ([]model.Course, error) {
	courses, err := s.courseRepo.List(ctx)
	if courses == nil && err == nil {
		courses = []model.Course{}
	}
	return courses, err
}

func (s *CourseService) GetByID(ctx context.Context, id uuid.UUID) (*model.Course, error) {
	c, err := s.courseRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCourseNotFound
	}
	return c, err
}

func (s *CourseService) Create(ctx context.Context, req *model.SaveCourseRequest) (*model.Course, error) {
	c := &model.Course{Name: req.Name, Description: req.Description}
	if err := s.courseRepo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create course: %w", err)
	}
	s.log.Info().Str("course_id", c.ID.String()).Msg("Course created")
	return c, nil
}

func (s *CourseService) Update(ctx context.Context, id uuid.UUID, req *model.SaveCourseRequest) (*model.Course, error) {
	c := &model.Course{ID: id, Name: req.Name, Description: req.Description}
	ok, err := s.courseRepo.Update(ctx, c)
	if err != nil {
		return nil, fmt.Errorf("update course: %w", err)
	}
	if !ok {
		return nil, ErrCourseNotFound
	}
	return s.GetByID(ctx, id)
}

// Delete removes a course that has no subjects or exams left.
func (s *CourseService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.courseRepo.Delete(ctx, id)
	if repository.IsForeignKeyViolation(err) {
		return ErrHasDependents
	}
	if err != nil {
		return fmt.Errorf("delete course: %w", err)
	}
	if !ok {
		return ErrCourseNotFound
	}
	return nil
}

// Inventory returns per-subject question counts for the course.
func (s *CourseService) Inventory(ctx context.Context, id uuid.UUID) ([]model.SubjectInventory, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}
	inv, err := s.subjectRepo.Inventory(ctx, id)
	if inv == nil && err == nil {
		inv = []model.SubjectInventory{}
	}
	return inv, err
}
