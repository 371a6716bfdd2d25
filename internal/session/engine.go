// Package session runs the exam-session state machine: starting attempts,
// recording answers, navigation, and final grading against a trusted clock.
package session

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/examcore/internal/model"
)

var (
	ErrSessionNotFound      = errors.New("exam session not found")
	ErrSessionFinished      = errors.New("exam session already finished")
	ErrSessionExpired       = errors.New("exam session time is up")
	ErrIndexOutOfRange      = errors.New("question index out of range")
	ErrNoQuestions          = errors.New("exam session has no questions")
	ErrInvalidTimeLimit     = errors.New("time limit must be positive")
	ErrActiveSessionExists  = errors.New("candidate already has an active session for this exam")
	ErrQuestionSetMismatch  = errors.New("question set does not cover the session")
	ErrSessionExamMismatch  = errors.New("exam does not match the session")
	ErrSessionNotYetExpired = errors.New("exam session has not expired")
)

// Store persists sessions. Implementations provide single-row atomicity only.
type Store interface {
	// Create inserts a new session. It returns ErrActiveSessionExists when the
	// candidate already holds an in-progress session for the same exam.
	Create(ctx context.Context, s *model.ExamSession) error
	// Get returns ErrSessionNotFound when no session has the id.
	Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	// FindActive returns ErrSessionNotFound when there is no in-progress session.
	FindActive(ctx context.Context, examID uuid.UUID, candidateID string) (*model.ExamSession, error)
	// Save overwrites an in-progress session. It returns ErrSessionFinished
	// when the stored session is already terminal.
	Save(ctx context.Context, s *model.ExamSession) error
}

const lockStripes = 64

// Engine drives sessions stored in a Store. The engine's clock is authoritative.
type Engine struct {
	store Store
	now   func() time.Time
	grace time.Duration
	log   zerolog.Logger
	locks [lockStripes]sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithGrace tolerates requests arriving up to d after expiry.
func WithGrace(d time.Duration) Option {
	return func(e *Engine) { e.grace = d }
}

// NewEngine creates a new Engine.
func NewEngine(store Store, log zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		now:   time.Now,
		log:   log.With().Str("component", "session_engine").Logger(),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Now returns the engine clock's current time.
func (e *Engine) Now() time.Time { return e.now() }

// Deadline is the last instant mutations are accepted for s.
func (e *Engine) Deadline(s *model.ExamSession) time.Time {
	return s.ExpiresAt.Add(e.grace)
}

// Remaining returns the time left before s expires, never negative.
func (e *Engine) Remaining(s *model.ExamSession) time.Duration {
	if s.Status.Terminal() {
		return 0
	}
	d := s.ExpiresAt.Sub(e.now())
	if d < 0 {
		return 0
	}
	return d
}

// StartParams describes a new attempt.
type StartParams struct {
	ExamID           uuid.UUID
	CandidateID      string
	TimeLimitMinutes int
	QuestionIDs      []uuid.UUID
	Seed             int64
}

// Start creates a session, or returns the candidate's existing in-progress
// session for the exam. Store errors are returned unchanged.
func (e *Engine) Start(ctx context.Context, p StartParams) (*model.ExamSession, error) {
	if p.TimeLimitMinutes <= 0 {
		return nil, ErrInvalidTimeLimit
	}
	if len(p.QuestionIDs) == 0 {
		return nil, ErrNoQuestions
	}

	existing, err := e.store.FindActive(ctx, p.ExamID, p.CandidateID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	now := e.now()
	s := &model.ExamSession{
		ID:                   uuid.New(),
		ExamID:               p.ExamID,
		CandidateID:          p.CandidateID,
		QuestionIDs:          append([]uuid.UUID(nil), p.QuestionIDs...),
		Seed:                 p.Seed,
		StartedAt:            now,
		ExpiresAt:            now.Add(time.Duration(p.TimeLimitMinutes) * time.Minute),
		CurrentQuestionIndex: 0,
		Answers:              []model.Answer{},
		Status:               model.SessionStatusInProgress,
		UpdatedAt:            now,
	}

	if err := e.store.Create(ctx, s); err != nil {
		if errors.Is(err, ErrActiveSessionExists) {
			// Lost a concurrent start. Return the winner.
			return e.store.FindActive(ctx, p.ExamID, p.CandidateID)
		}
		return nil, err
	}

	e.log.Info().
		Str("session_id", s.ID.String()).
		Str("exam_id", s.ExamID.String()).
		Str("candidate_id", s.CandidateID).
		Time("expires_at", s.ExpiresAt).
		Msg("Session started")
	return s, nil
}

// Get returns a session by id.
func (e *Engine) Get(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	return e.store.Get(ctx, id)
}

// SaveAnswer upserts the answer for questionID. Calling it twice with the same
// arguments leaves the same state.
func (e *Engine) SaveAnswer(ctx context.Context, sessionID, questionID uuid.UUID, selected []string) (*model.ExamSession, error) {
	return e.mutate(ctx, sessionID, func(a *Active, now time.Time) error {
		a.SaveAnswer(questionID, selected, now)
		return nil
	})
}

// Navigate sets the current question index.
func (e *Engine) Navigate(ctx context.Context, sessionID uuid.UUID, index int) (*model.ExamSession, error) {
	return e.mutate(ctx, sessionID, func(a *Active, now time.Time) error {
		return a.Navigate(index, now)
	})
}

// Submit finalizes and grades the session. Submitting after the expiry time
// clamps completion to expiresAt; past the grace period the session is
// marked expired. A second submit fails with ErrSessionFinished.
func (e *Engine) Submit(ctx context.Context, sessionID uuid.UUID, exam *model.Exam, questions []model.Question) (model.ExamResult, error) {
	return e.finish(ctx, sessionID, exam, questions, false)
}

// Expire finalizes a session whose deadline has passed. It fails with
// ErrSessionNotYetExpired while the candidate may still submit.
func (e *Engine) Expire(ctx context.Context, sessionID uuid.UUID, exam *model.Exam, questions []model.Question) (model.ExamResult, error) {
	return e.finish(ctx, sessionID, exam, questions, true)
}

func (e *Engine) finish(ctx context.Context, sessionID uuid.UUID, exam *model.Exam, questions []model.Question, sweep bool) (model.ExamResult, error) {
	mu := e.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	active, err := e.openActive(ctx, sessionID)
	if err != nil {
		return model.ExamResult{}, err
	}
	rec := active.Record()
	if exam.ID != rec.ExamID {
		return model.ExamResult{}, fmt.Errorf("%w: exam %s, session exam %s", ErrSessionExamMismatch, exam.ID, rec.ExamID)
	}

	ordered, err := orderQuestions(rec.QuestionIDs, questions)
	if err != nil {
		return model.ExamResult{}, err
	}
	if len(ordered) == 0 {
		return model.ExamResult{}, ErrNoQuestions
	}

	now := e.now()
	deadline := e.Deadline(rec)
	if sweep && now.Before(deadline) {
		return model.ExamResult{}, ErrSessionNotYetExpired
	}

	completedAt := now
	status := model.SessionStatusCompleted
	if now.After(rec.ExpiresAt) {
		completedAt = rec.ExpiresAt
	}
	if !now.Before(deadline) {
		status = model.SessionStatusExpired
	}

	fin, res := active.Finish(ordered, exam.PassingScore, completedAt, status)
	if err := e.store.Save(ctx, fin.rec); err != nil {
		return model.ExamResult{}, err
	}

	e.log.Info().
		Str("session_id", sessionID.String()).
		Str("status", string(status)).
		Float64("score", res.Score).
		Bool("passed", res.Passed).
		Msg("Session finished")
	return res, nil
}

func (e *Engine) mutate(ctx context.Context, sessionID uuid.UUID, fn func(*Active, time.Time) error) (*model.ExamSession, error) {
	mu := e.lockFor(sessionID)
	mu.Lock()
	defer mu.Unlock()

	active, err := e.openActive(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := e.now()
	if !now.Before(e.Deadline(active.Record())) {
		return nil, ErrSessionExpired
	}
	if err := fn(active, now); err != nil {
		return nil, err
	}
	if err := e.store.Save(ctx, active.Record()); err != nil {
		return nil, err
	}
	return active.Record().Clone(), nil
}

func (e *Engine) openActive(ctx context.Context, sessionID uuid.UUID) (*Active, error) {
	rec, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch st := Open(rec).(type) {
	case *Active:
		return st, nil
	default:
		return nil, ErrSessionFinished
	}
}

func (e *Engine) lockFor(id uuid.UUID) *sync.Mutex {
	h := fnv.New32a()
	h.Write(id[:])
	return &e.locks[h.Sum32()%lockStripes]
}

// orderQuestions arranges questions in session order. Extra questions are
// ignored; a missing one is an error.
func orderQuestions(ids []uuid.UUID, questions []model.Question) ([]model.Question, error) {
	if len(ids) == 0 {
		return questions, nil
	}
	byID := make(map[uuid.UUID]*model.Question, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}
	out := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: missing question %s", ErrQuestionSetMismatch, id)
		}
		out = append(out, *q)
	}
	return out, nil
}
