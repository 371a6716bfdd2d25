// Package testutil holds in-memory stand-ins for the Postgres repositories
// and the Redis fast lane, shared by service and handler tests.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/service"
)

// Exams is an in-memory service.ExamReader.
type Exams struct {
	mu    sync.Mutex
	byID  map[uuid.UUID]model.Exam
	order []uuid.UUID
}

func NewExams(exams ...*model.Exam) *Exams {
	e := &Exams{byID: make(map[uuid.UUID]model.Exam)}
	for _, x := range exams {
		e.Put(x)
	}
	return e
}

func (e *Exams) Put(x *model.Exam) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.byID[x.ID]; !ok {
		e.order = append(e.order, x.ID)
	}
	e.byID[x.ID] = *x
}

func (e *Exams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	x, ok := e.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &x, nil
}

func (e *Exams) ListPublished(_ context.Context) ([]model.Exam, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []model.Exam
	for _, id := range e.order {
		if x := e.byID[id]; x.Status == model.ExamStatusPublished {
			out = append(out, x)
		}
	}
	return out, nil
}

// Questions is an in-memory service.QuestionReader.
type Questions struct {
	byID     map[uuid.UUID]model.Question
	courseOf map[uuid.UUID]uuid.UUID // subject -> course
}

func NewQuestions() *Questions {
	return &Questions{
		byID:     make(map[uuid.UUID]model.Question),
		courseOf: make(map[uuid.UUID]uuid.UUID),
	}
}

// Add registers questions under a subject of a course. The subject is set
// on the caller's slice as well, so tests can read it back.
func (q *Questions) Add(courseID, subjectID uuid.UUID, questions ...model.Question) {
	q.courseOf[subjectID] = courseID
	for i := range questions {
		questions[i].SubjectID = subjectID
		q.byID[questions[i].ID] = questions[i]
	}
}

func (q *Questions) ListByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		if x, ok := q.byID[id]; ok {
			out = append(out, x)
		}
	}
	return out, nil
}

func (q *Questions) InventoryByCourse(_ context.Context, courseID uuid.UUID) (map[uuid.UUID][]uuid.UUID, error) {
	inv := make(map[uuid.UUID][]uuid.UUID)
	for id, x := range q.byID {
		if q.courseOf[x.SubjectID] == courseID {
			inv[x.SubjectID] = append(inv[x.SubjectID], id)
		}
	}
	return inv, nil
}

// Results is an in-memory service.ResultStore.
type Results struct {
	mu   sync.Mutex
	byID map[uuid.UUID]model.ExamResult
}

func NewResults() *Results {
	return &Results{byID: make(map[uuid.UUID]model.ExamResult)}
}

func (r *Results) GetBySession(_ context.Context, id uuid.UUID) (*model.ExamResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byID[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &res, nil
}

func (r *Results) InsertOne(_ context.Context, res *model.ExamResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[res.ExamSessionID]; !ok {
		r.byID[res.ExamSessionID] = *res
	}
	return nil
}

// FastLane is an in-memory service.FastLane. Queued results are kept in order.
type FastLane struct {
	mu      sync.Mutex
	papers  map[uuid.UUID]map[uuid.UUID]model.QuestionForCandidate
	active  map[string]uuid.UUID
	results map[uuid.UUID]model.ExamResult
	Queue   []model.ExamResult
	// FailEnqueue makes EnqueueResult return this error.
	FailEnqueue error
}

var _ service.FastLane = (*FastLane)(nil)

func NewFastLane() *FastLane {
	return &FastLane{
		papers:  make(map[uuid.UUID]map[uuid.UUID]model.QuestionForCandidate),
		active:  make(map[string]uuid.UUID),
		results: make(map[uuid.UUID]model.ExamResult),
	}
}

func (f *FastLane) PutPaper(_ context.Context, examID uuid.UUID, questions []model.Question) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.papers[examID]
	if !ok {
		p = make(map[uuid.UUID]model.QuestionForCandidate)
		f.papers[examID] = p
	}
	for i := range questions {
		p[questions[i].ID] = questions[i].ForCandidate()
	}
	return nil
}

func (f *FastLane) GetPaper(_ context.Context, examID uuid.UUID, ids []uuid.UUID) ([]model.QuestionForCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.QuestionForCandidate, len(ids))
	for i, id := range ids {
		q, ok := f.papers[examID][id]
		if !ok {
			return nil, service.ErrCacheMiss
		}
		out[i] = q
	}
	return out, nil
}

func (f *FastLane) DropPaper(_ context.Context, examID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.papers, examID)
	return nil
}

func activeKey(examID uuid.UUID, candidateID string) string {
	return examID.String() + "/" + candidateID
}

func (f *FastLane) PutActiveSession(_ context.Context, examID uuid.UUID, candidateID string, sessionID uuid.UUID, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active[activeKey(examID, candidateID)] = sessionID
	return nil
}

func (f *FastLane) GetActiveSession(_ context.Context, examID uuid.UUID, candidateID string) (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.active[activeKey(examID, candidateID)]
	if !ok {
		return uuid.Nil, service.ErrCacheMiss
	}
	return id, nil
}

func (f *FastLane) DropActiveSession(_ context.Context, examID uuid.UUID, candidateID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.active, activeKey(examID, candidateID))
	return nil
}

func (f *FastLane) EnqueueResult(_ context.Context, res model.ExamResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailEnqueue != nil {
		return f.FailEnqueue
	}
	f.results[res.ExamSessionID] = res
	f.Queue = append(f.Queue, res)
	return nil
}

func (f *FastLane) GetResult(_ context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.results[sessionID]
	if !ok {
		return nil, service.ErrCacheMiss
	}
	return &res, nil
}

// ForgetResult drops the cached copy of a result, simulating TTL expiry.
func (f *FastLane) ForgetResult(sessionID uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.results, sessionID)
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// SingleChoice builds a single-choice question whose correct option is "A".
func SingleChoice(text string) model.Question {
	return model.Question{
		ID:         uuid.New(),
		Text:       text,
		Type:       model.QuestionTypeSingleChoice,
		Difficulty: model.DifficultyEasy,
		Options: []model.Option{
			{ID: "A", Text: "right", IsCorrect: true},
			{ID: "B", Text: "wrong"},
		},
	}
}
