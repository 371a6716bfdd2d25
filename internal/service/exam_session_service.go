package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/pool"
	"github.com/stemsi/examcore/internal/scoring"
	"github.com/stemsi/examcore/internal/session"
)

// Session-level domain errors.
var (
	ErrExamNotFound         = errors.New("exam not found")
	ErrExamNotAvailable     = errors.New("exam is not open for candidates")
	ErrNotSessionOwner      = errors.New("session belongs to another candidate")
	ErrQuestionNotInSession = errors.New("question is not part of this session")
	ErrResultNotAvailable   = errors.New("session has not been graded yet")
)

// ExamReader loads exam definitions.
type ExamReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	ListPublished(ctx context.Context) ([]model.Exam, error)
}

// QuestionReader loads questions and per-course inventories.
type QuestionReader interface {
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
	InventoryByCourse(ctx context.Context, courseID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error)
}

// ResultStore reads persisted results and writes one directly when the
// queue is unavailable.
type ResultStore interface {
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
	InsertOne(ctx context.Context, res *model.ExamResult) error
}

// SessionLister lists a candidate's attempts.
type SessionLister interface {
	ListByCandidate(ctx context.Context, candidateID string) ([]model.ExamSession, error)
}

// ExamSessionService exposes the session engine to candidates.
type ExamSessionService struct {
	engine    *session.Engine
	exams     ExamReader
	questions QuestionReader
	results   ResultStore
	sessions  SessionLister
	fast      FastLane
	auth      *AuthService
	log       zerolog.Logger
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	engine *session.Engine,
	exams ExamReader,
	questions QuestionReader,
	results ResultStore,
	sessions SessionLister,
	fast FastLane,
	auth *AuthService,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		engine:    engine,
		exams:     exams,
		questions: questions,
		results:   results,
		sessions:  sessions,
		fast:      fast,
		auth:      auth,
		log:       log.With().Str("component", "exam_session_service").Logger(),
	}
}

// LobbyStatus is the state of an exam as shown to one candidate.
type LobbyStatus string

const (
	LobbyStatusUpcoming   LobbyStatus = "upcoming"
	LobbyStatusAvailable  LobbyStatus = "available"
	LobbyStatusInProgress LobbyStatus = "in_progress"
	LobbyStatusFinished   LobbyStatus = "finished"
)

// LobbyExam is one entry of the candidate's exam list.
type LobbyExam struct {
	model.ExamSummary
	LobbyStatus LobbyStatus          `json:"lobby_status"`
	SessionID   *uuid.UUID           `json:"session_id,omitempty"`
	Status      *model.SessionStatus `json:"session_status,omitempty"`
	Score       *float64             `json:"score,omitempty"`
	Passed      *bool                `json:"passed,omitempty"`
}

// ListAvailable returns published exams whose window has not closed, with the
// candidate's latest attempt overlaid.
func (s *ExamSessionService) ListAvailable(ctx context.Context, candidateID string) ([]LobbyExam, error) {
	exams, err := s.exams.ListPublished(ctx)
	if err != nil {
		return nil, fmt.Errorf("list published exams: %w", err)
	}
	sessions, err := s.sessions.ListByCandidate(ctx, candidateID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	// sessions are newest first; keep the latest per exam
	latest := make(map[uuid.UUID]*model.ExamSession, len(sessions))
	for i := range sessions {
		if _, ok := latest[sessions[i].ExamID]; !ok {
			latest[sessions[i].ExamID] = &sessions[i]
		}
	}

	now := s.engine.Now()
	lobby := []LobbyExam{}
	for i := range exams {
		exam := &exams[i]
		if exam.ScheduledEnd != nil && !now.Before(*exam.ScheduledEnd) {
			continue
		}

		entry := LobbyExam{ExamSummary: exam.Summary(), LobbyStatus: LobbyStatusAvailable}
		if !exam.WithinWindow(now) {
			entry.LobbyStatus = LobbyStatusUpcoming
		}
		if sess, ok := latest[exam.ID]; ok {
			id, status := sess.ID, sess.Status
			entry.SessionID = &id
			entry.Status = &status
			entry.Score = sess.Score
			entry.Passed = sess.Passed
			if status == model.SessionStatusInProgress {
				entry.LobbyStatus = LobbyStatusInProgress
			} else {
				entry.LobbyStatus = LobbyStatusFinished
			}
		}
		lobby = append(lobby, entry)
	}
	return lobby, nil
}

// Start begins an attempt, or resumes the candidate's in-progress one.
func (s *ExamSessionService) Start(ctx context.Context, examID uuid.UUID, candidateID, accessCode string) (*model.SessionState, error) {
	// Fast lane: a cached active session skips exam loading and the draw.
	if sid, err := s.fast.GetActiveSession(ctx, examID, candidateID); err == nil {
		if sess, err := s.engine.Get(ctx, sid); err == nil &&
			sess.Status == model.SessionStatusInProgress &&
			s.engine.Now().Before(s.engine.Deadline(sess)) {
			return s.state(sess), nil
		}
	}

	exam, err := s.getExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status != model.ExamStatusPublished || !exam.WithinWindow(s.engine.Now()) {
		return nil, ErrExamNotAvailable
	}
	if exam.HasAccessCode() {
		if err := s.auth.CheckAccessCode(exam.AccessCodeHash, accessCode); err != nil {
			return nil, err
		}
	}

	seed := pool.Seed(exam.ID, candidateID)
	ids, err := s.drawQuestions(ctx, exam, seed)
	if err != nil {
		return nil, err
	}

	params := session.StartParams{
		ExamID:           exam.ID,
		CandidateID:      candidateID,
		TimeLimitMinutes: exam.TimeLimitMinutes,
		QuestionIDs:      ids,
		Seed:             seed,
	}
	sess, err := s.engine.Start(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	// An abandoned attempt past its deadline is closed before a fresh one starts.
	if !s.engine.Now().Before(s.engine.Deadline(sess)) {
		if err := s.finalize(ctx, sess, true); err != nil && !errors.Is(err, session.ErrSessionFinished) {
			return nil, fmt.Errorf("expire stale session: %w", err)
		}
		if sess, err = s.engine.Start(ctx, params); err != nil {
			return nil, fmt.Errorf("start session: %w", err)
		}
	}

	ttl := s.engine.Deadline(sess).Sub(s.engine.Now())
	if err := s.fast.PutActiveSession(ctx, exam.ID, candidateID, sess.ID, ttl); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to cache active session")
	}
	return s.state(sess), nil
}

func (s *ExamSessionService) drawQuestions(ctx context.Context, exam *model.Exam, seed int64) ([]uuid.UUID, error) {
	if exam.UseQuestionPool {
		inv, err := s.questions.InventoryByCourse(ctx, exam.CourseID)
		if err != nil {
			return nil, fmt.Errorf("load inventory: %w", err)
		}
		return pool.Draw(exam.Pool, inv, seed)
	}
	if exam.Shuffle {
		return pool.Order(exam.QuestionIDs, seed), nil
	}
	return exam.QuestionIDs, nil
}

// State returns the session with its remaining time.
func (s *ExamSessionService) State(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.SessionState, error) {
	sess, err := s.owned(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}
	return s.state(sess), nil
}

// Paper returns the session's questions in session order without correctness data.
func (s *ExamSessionService) Paper(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.ExamPaper, error) {
	sess, err := s.owned(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}
	exam, err := s.getExam(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}

	paper := &model.ExamPaper{SessionID: sess.ID, ExamID: exam.ID, Title: exam.Title}

	cached, err := s.fast.GetPaper(ctx, exam.ID, sess.QuestionIDs)
	if err == nil {
		paper.Questions = cached
		return paper, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache read failed")
	}

	questions, err := s.loadQuestions(ctx, sess)
	if err != nil {
		return nil, err
	}
	paper.Questions = make([]model.QuestionForCandidate, len(questions))
	for i := range questions {
		paper.Questions[i] = questions[i].ForCandidate()
	}
	if err := s.fast.PutPaper(ctx, exam.ID, questions); err != nil {
		s.log.Warn().Err(err).Str("exam_id", exam.ID.String()).Msg("Paper cache write failed")
	}
	return paper, nil
}

// SaveAnswer records the candidate's selection for one question of the session.
func (s *ExamSessionService) SaveAnswer(ctx context.Context, sessionID uuid.UUID, candidateID string, questionID uuid.UUID, selected []string) (*model.SessionState, error) {
	sess, err := s.owned(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(sess.QuestionIDs, questionID) {
		return nil, ErrQuestionNotInSession
	}
	sess, err = s.engine.SaveAnswer(ctx, sessionID, questionID, selected)
	if err != nil {
		return nil, err
	}
	return s.state(sess), nil
}

// Navigate moves the candidate to another question.
func (s *ExamSessionService) Navigate(ctx context.Context, sessionID uuid.UUID, candidateID string, index int) (*model.SessionState, error) {
	if _, err := s.owned(ctx, sessionID, candidateID); err != nil {
		return nil, err
	}
	sess, err := s.engine.Navigate(ctx, sessionID, index)
	if err != nil {
		return nil, err
	}
	return s.state(sess), nil
}

// Submit grades the session and hands the result to the persistence queue.
func (s *ExamSessionService) Submit(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.ExamResult, error) {
	sess, err := s.owned(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}
	res, err := s.grade(ctx, sess, false)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ExpireSession finalizes an abandoned session whose deadline has passed.
func (s *ExamSessionService) ExpireSession(ctx context.Context, sess *model.ExamSession) error {
	return s.finalize(ctx, sess, true)
}

func (s *ExamSessionService) finalize(ctx context.Context, sess *model.ExamSession, sweep bool) error {
	_, err := s.grade(ctx, sess, sweep)
	return err
}

func (s *ExamSessionService) grade(ctx context.Context, sess *model.ExamSession, sweep bool) (model.ExamResult, error) {
	exam, err := s.getExam(ctx, sess.ExamID)
	if err != nil {
		return model.ExamResult{}, err
	}
	questions, err := s.loadQuestions(ctx, sess)
	if err != nil {
		return model.ExamResult{}, err
	}

	var res model.ExamResult
	if sweep {
		res, err = s.engine.Expire(ctx, sess.ID, exam, questions)
	} else {
		res, err = s.engine.Submit(ctx, sess.ID, exam, questions)
	}
	if err != nil {
		return model.ExamResult{}, err
	}

	if err := s.fast.EnqueueResult(ctx, res); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Result queue unavailable, writing directly")
		if err := s.results.InsertOne(ctx, &res); err != nil {
			s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to persist result")
		}
	}
	if err := s.fast.DropActiveSession(ctx, sess.ExamID, sess.CandidateID); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to clear active session cache")
	}
	return res, nil
}

// Result returns the graded result of a finished session. It reads the
// database first, then the Redis copy, and finally regrades from the session.
func (s *ExamSessionService) Result(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.ExamResult, error) {
	sess, err := s.owned(ctx, sessionID, candidateID)
	if err != nil {
		return nil, err
	}
	if !sess.Status.Terminal() {
		return nil, ErrResultNotAvailable
	}

	res, err := s.results.GetBySession(ctx, sessionID)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get result: %w", err)
	}

	if res, err := s.fast.GetResult(ctx, sessionID); err == nil {
		return res, nil
	}

	exam, err := s.getExam(ctx, sess.ExamID)
	if err != nil {
		return nil, err
	}
	questions, err := s.loadQuestions(ctx, sess)
	if err != nil {
		return nil, err
	}
	regraded := scoring.Score(scoring.Input{
		Questions:    questions,
		Answers:      sess.AnswerMap(),
		PassingScore: exam.PassingScore,
		StartedAt:    sess.StartedAt,
		CompletedAt:  sess.CompletedAt,
	})
	regraded.ExamSessionID = sess.ID
	regraded.ExamID = sess.ExamID
	regraded.CandidateID = sess.CandidateID
	regraded.Status = sess.Status
	regraded.CompletedAt = sess.CompletedAt
	return &regraded, nil
}

// Owner reports whether candidateID owns the session.
func (s *ExamSessionService) Owner(ctx context.Context, sessionID uuid.UUID, candidateID string) error {
	_, err := s.owned(ctx, sessionID, candidateID)
	return err
}

func (s *ExamSessionService) owned(ctx context.Context, sessionID uuid.UUID, candidateID string) (*model.ExamSession, error) {
	sess, err := s.engine.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CandidateID != candidateID {
		return nil, ErrNotSessionOwner
	}
	return sess, nil
}

func (s *ExamSessionService) getExam(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	exam, err := s.exams.GetByID(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrExamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// loadQuestions returns the session's questions in session order.
func (s *ExamSessionService) loadQuestions(ctx context.Context, sess *model.ExamSession) ([]model.Question, error) {
	questions, err := s.questions.ListByIDs(ctx, sess.QuestionIDs)
	if err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	byID := make(map[uuid.UUID]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(sess.QuestionIDs))
	for _, id := range sess.QuestionIDs {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: question %s", session.ErrQuestionSetMismatch, id)
		}
		ordered = append(ordered, q)
	}
	return ordered, nil
}

func (s *ExamSessionService) state(sess *model.ExamSession) *model.SessionState {
	return &model.SessionState{
		Session:          sess,
		RemainingSeconds: int(s.engine.Remaining(sess).Round(time.Second) / time.Second),
		ServerTime:       s.engine.Now(),
	}
}
