package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/pool"
	"github.com/stemsi/examcore/internal/repository"
	"github.com/stemsi/examcore/internal/response"
)

// Domain Errors
var (
	ErrNoQuestions            = errors.New("exam has no questions")
	ErrExamNotDraft           = errors.New("exam is not a draft")
	ErrInvalidTransition      = errors.New("exam status transition not allowed")
	ErrQuestionSourceConflict = errors.New("exam uses either a question list or a pool, not both")
	ErrUnknownQuestion        = errors.New("question does not belong to the exam's course")
	ErrPoolUnknownSubject     = errors.New("pool subject does not belong to the exam's course")
)

// ExamService handles exam definitions and warms the paper cache.
type ExamService struct {
	examRepo     *repository.ExamRepository
	questionRepo *repository.QuestionRepository
	subjectRepo  *repository.SubjectRepository
	resultRepo   *repository.ExamResultRepository
	fast         FastLane
	auth         *AuthService
	log          zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	examRepo *repository.ExamRepository,
	questionRepo *repository.QuestionRepository,
	subjectRepo *repository.SubjectRepository,
	resultRepo *repository.ExamResultRepository,
	fast FastLane,
	auth *AuthService,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		examRepo:     examRepo,
		questionRepo: questionRepo,
		subjectRepo:  subjectRepo,
		resultRepo:   resultRepo,
		fast:         fast,
		auth:         auth,
		log:          log.With().Str("component", "exam_service").Logger(),
	}
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.examRepo.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	return exam, err
}

// List retrieves exams with optional course and status filters.
func (s *ExamService) List(ctx context.Context, courseID *uuid.UUID, status *model.ExamStatus, page, perPage int) ([]model.Exam, *response.Pagination, error) {
	page, perPage = clampPage(page, perPage)

	exams, total, err := s.examRepo.ListPaginated(ctx, courseID, status, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if exams == nil {
		exams = []model.Exam{}
	}
	return exams, response.NewPagination(page, perPage, total), nil
}

// Create validates the request and inserts a new draft exam.
func (s *ExamService) Create(ctx context.Context, req *model.SaveExamRequest) (*model.Exam, error) {
	exam, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	exam.Status = model.ExamStatusDraft
	if err := s.examRepo.Create(ctx, exam); err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("create exam: %w", err)
	}
	s.log.Info().Str("exam_id", exam.ID.String()).Msg("Exam created")
	return exam, nil
}

// Update rewrites a draft exam. An empty access code keeps the current one.
func (s *ExamService) Update(ctx context.Context, id uuid.UUID, req *model.SaveExamRequest) (*model.Exam, error) {
	existing, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing.Status != model.ExamStatusDraft {
		return nil, ErrExamNotDraft
	}

	exam, err := s.build(ctx, req)
	if err != nil {
		return nil, err
	}
	exam.ID = id
	exam.Status = existing.Status
	exam.CreatedAt = existing.CreatedAt
	if req.AccessCode == "" {
		exam.AccessCodeHash = existing.AccessCodeHash
	}

	ok, err := s.examRepo.Update(ctx, exam)
	if err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, ErrCourseNotFound
		}
		return nil, fmt.Errorf("update exam: %w", err)
	}
	if !ok {
		// Published between the read and the write.
		return nil, ErrExamNotDraft
	}
	return exam, nil
}

// build turns a save request into an exam, validating the question source
// against the course inventory.
func (s *ExamService) build(ctx context.Context, req *model.SaveExamRequest) (*model.Exam, error) {
	if err := checkSource(req); err != nil {
		return nil, err
	}

	exam := &model.Exam{
		CourseID:         req.CourseID,
		Title:            req.Title,
		TimeLimitMinutes: req.TimeLimitMinutes,
		PassingScore:     *req.PassingScore,
		UseQuestionPool:  req.UseQuestionPool,
		ScheduledStart:   req.ScheduledStart,
		ScheduledEnd:     req.ScheduledEnd,
		Shuffle:          req.Shuffle,
		QuestionIDs:      []uuid.UUID{},
	}

	if req.UseQuestionPool {
		p, err := s.validatePool(ctx, req.CourseID, *req.Pool)
		if err != nil {
			return nil, err
		}
		exam.Pool = p
	} else {
		ids := dedupeIDs(req.QuestionIDs)
		if len(ids) > 0 {
			n, err := s.questionRepo.CountInCourse(ctx, req.CourseID, ids)
			if err != nil {
				return nil, fmt.Errorf("check questions: %w", err)
			}
			if n != len(ids) {
				return nil, ErrUnknownQuestion
			}
		}
		exam.QuestionIDs = ids
	}

	if req.AccessCode != "" {
		hash, err := s.auth.HashAccessCode(req.AccessCode)
		if err != nil {
			return nil, err
		}
		exam.AccessCodeHash = hash
	}
	return exam, nil
}

func (s *ExamService) validatePool(ctx context.Context, courseID uuid.UUID, p model.QuestionPool) (model.QuestionPool, error) {
	inv, err := s.subjectRepo.Inventory(ctx, courseID)
	if err != nil {
		return model.QuestionPool{}, fmt.Errorf("load inventory: %w", err)
	}
	inCourse := make(map[uuid.UUID]bool, len(inv))
	available := 0
	for _, i := range inv {
		inCourse[i.SubjectID] = true
		available += i.QuestionCount
	}
	for _, e := range p.Entries {
		if !inCourse[e.SubjectID] {
			return model.QuestionPool{}, ErrPoolUnknownSubject
		}
	}
	if err := pool.Validate(p, available); err != nil {
		return model.QuestionPool{}, err
	}
	return pool.Normalize(p), nil
}

// checkSource enforces that exactly one question source is supplied and
// that a fixed list is not empty.
func checkSource(req *model.SaveExamRequest) error {
	if req.UseQuestionPool {
		if req.Pool == nil {
			return pool.ErrPoolEmpty
		}
		if len(req.QuestionIDs) > 0 {
			return ErrQuestionSourceConflict
		}
		return nil
	}
	if req.Pool != nil && len(req.Pool.Entries) > 0 {
		return ErrQuestionSourceConflict
	}
	if len(req.QuestionIDs) == 0 {
		return ErrNoQuestions
	}
	return nil
}

// dedupeIDs drops repeated ids, keeping the first occurrence.
func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// Publish moves a draft to published after checking that every candidate
// can be served a full paper, then warms the paper cache.
func (s *ExamService) Publish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exam.Status.CanTransition(model.ExamStatusPublished) {
		return nil, ErrInvalidTransition
	}
	if exam.QuestionCount() == 0 {
		return nil, ErrNoQuestions
	}
	if exam.UseQuestionPool {
		// Inventory may have shrunk since the draft was saved.
		inv, err := s.questionRepo.InventoryByCourse(ctx, exam.CourseID)
		if err != nil {
			return nil, fmt.Errorf("load inventory: %w", err)
		}
		if _, err := pool.Draw(exam.Pool, inv, 0); err != nil {
			return nil, err
		}
	} else {
		qs, err := s.questionRepo.ListByIDs(ctx, exam.QuestionIDs)
		if err != nil {
			return nil, fmt.Errorf("list questions: %w", err)
		}
		if len(qs) != len(exam.QuestionIDs) {
			return nil, ErrUnknownQuestion
		}
	}

	if err := s.transition(ctx, exam, model.ExamStatusPublished); err != nil {
		return nil, err
	}
	if err := s.WarmPaperCache(ctx, exam); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to warm paper cache")
	}
	s.log.Info().Str("exam_id", id.String()).Msg("Exam published")
	return exam, nil
}

// Unpublish returns a published exam to draft. Running sessions keep going.
func (s *ExamService) Unpublish(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.retire(ctx, id, model.ExamStatusDraft)
}

// Archive closes a published exam to new attempts.
func (s *ExamService) Archive(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return s.retire(ctx, id, model.ExamStatusArchived)
}

func (s *ExamService) retire(ctx context.Context, id uuid.UUID, to model.ExamStatus) (*model.Exam, error) {
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, exam, to); err != nil {
		return nil, err
	}
	if err := s.fast.DropPaper(ctx, id); err != nil {
		s.log.Warn().Err(err).Str("exam_id", id.String()).Msg("Failed to drop paper cache")
	}
	s.log.Info().Str("exam_id", id.String()).Str("status", string(to)).Msg("Exam status changed")
	return exam, nil
}

func (s *ExamService) transition(ctx context.Context, exam *model.Exam, to model.ExamStatus) error {
	if !exam.Status.CanTransition(to) {
		return ErrInvalidTransition
	}
	ok, err := s.examRepo.TransitionStatus(ctx, exam.ID, exam.Status, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		// Lost a race with another transition.
		return ErrInvalidTransition
	}
	exam.Status = to
	return nil
}

// Delete removes a draft exam.
func (s *ExamService) Delete(ctx context.Context, id uuid.UUID) error {
	ok, err := s.examRepo.DeleteDraft(ctx, id)
	if repository.IsForeignKeyViolation(err) {
		// a session was created between the guard and the delete
		return ErrHasDependents
	}
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	exam, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return deleteRefusal(exam)
}

// deleteRefusal explains why an existing exam was not deleted. A draft that
// survives the guarded delete has sessions, e.g. after unpublish.
func deleteRefusal(exam *model.Exam) error {
	if exam.Status != model.ExamStatusDraft {
		return ErrExamNotDraft
	}
	return ErrHasDependents
}

// SetAccessCode replaces the access code of an exam. An empty code removes it.
func (s *ExamService) SetAccessCode(ctx context.Context, id uuid.UUID, code string) error {
	hash := ""
	if code != "" {
		var err error
		if hash, err = s.auth.HashAccessCode(code); err != nil {
			return err
		}
	}
	ok, err := s.examRepo.SetAccessCodeHash(ctx, id, hash)
	if err != nil {
		return err
	}
	if !ok {
		return ErrExamNotFound
	}
	return nil
}

// Results lists persisted results of an exam.
func (s *ExamService) Results(ctx context.Context, examID uuid.UUID, page, perPage int) ([]model.ExamResult, *response.Pagination, error) {
	if _, err := s.GetByID(ctx, examID); err != nil {
		return nil, nil, err
	}
	page, perPage = clampPage(page, perPage)
	results, total, err := s.resultRepo.ListByExamPaginated(ctx, examID, page, perPage)
	if err != nil {
		return nil, nil, err
	}
	if results == nil {
		results = []model.ExamResult{}
	}
	return results, response.NewPagination(page, perPage, total), nil
}

// ExportResults returns every persisted result of an exam.
func (s *ExamService) ExportResults(ctx context.Context, examID uuid.UUID) ([]model.ExamResult, error) {
	if _, err := s.GetByID(ctx, examID); err != nil {
		return nil, err
	}
	return s.resultRepo.ListAllByExam(ctx, examID)
}

// WarmPaperCache loads the candidate-facing questions an exam can serve
// into Redis. Pool exams cache every question of the pooled subjects.
func (s *ExamService) WarmPaperCache(ctx context.Context, exam *model.Exam) error {
	ids := exam.QuestionIDs
	if exam.UseQuestionPool {
		inv, err := s.questionRepo.InventoryByCourse(ctx, exam.CourseID)
		if err != nil {
			return fmt.Errorf("load inventory: %w", err)
		}
		ids = nil
		for _, e := range exam.Pool.Entries {
			ids = append(ids, inv[e.SubjectID]...)
		}
	}

	questions, err := s.questionRepo.ListByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("list questions: %w", err)
	}
	if len(questions) == 0 {
		return ErrNoQuestions
	}

	if err := s.fast.DropPaper(ctx, exam.ID); err != nil {
		return fmt.Errorf("drop paper: %w", err)
	}
	if err := s.fast.PutPaper(ctx, exam.ID, questions); err != nil {
		return err
	}

	s.log.Debug().
		Str("exam_id", exam.ID.String()).
		Int("questions", len(questions)).
		Msg("Cache warmed")
	return nil
}

// PrewarmAllCaches loads all published exams into Redis on application startup.
func (s *ExamService) PrewarmAllCaches(ctx context.Context) error {
	exams, err := s.examRepo.ListPublished(ctx)
	if err != nil {
		return fmt.Errorf("list published exams: %w", err)
	}

	if len(exams) == 0 {
		s.log.Info().Msg("No published exams to prewarm")
		return nil
	}

	s.log.Info().Int("count", len(exams)).Msg("Prewarming published exams...")

	warmed := 0
	for i := range exams {
		if err := s.WarmPaperCache(ctx, &exams[i]); err != nil {
			s.log.Warn().
				Err(err).
				Str("exam_id", exams[i].ID.String()).
				Msg("Failed to warm exam, skipping")
			continue
		}
		warmed++
	}

	s.log.Info().
		Int("warmed", warmed).
		Int("total", len(exams)).
		Msg("Prewarming complete")
	return nil
}

func clampPage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 10
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}
