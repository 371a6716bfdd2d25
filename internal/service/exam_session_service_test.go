package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/pool"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/session"
	"github.com/stemsi/examcore/internal/testutil"
)

type harness struct {
	svc       *service.ExamSessionService
	engine    *session.Engine
	store     *session.MemoryStore
	clock     *testutil.Clock
	exams     *testutil.Exams
	questions *testutil.Questions
	results   *testutil.Results
	fast      *testutil.FastLane
	auth      *service.AuthService
	exam      *model.Exam
	qs        []model.Question
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store:     session.NewMemoryStore(),
		clock:     testutil.NewClock(time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)),
		questions: testutil.NewQuestions(),
		results:   testutil.NewResults(),
		fast:      testutil.NewFastLane(),
		auth:      service.NewAuthService(&config.Config{JWTSecret: "test", BcryptCost: bcrypt.MinCost}),
	}
	h.engine = session.NewEngine(h.store, zerolog.Nop(), session.WithClock(h.clock.Now), session.WithGrace(10*time.Second))

	courseID, subjectID := uuid.New(), uuid.New()
	h.qs = []model.Question{
		testutil.SingleChoice("q1"),
		testutil.SingleChoice("q2"),
		testutil.SingleChoice("q3"),
		testutil.SingleChoice("q4"),
	}
	h.questions.Add(courseID, subjectID, h.qs...)

	h.exam = &model.Exam{
		ID:               uuid.New(),
		CourseID:         courseID,
		Title:            "Routing fundamentals",
		TimeLimitMinutes: 30,
		PassingScore:     50,
		Status:           model.ExamStatusPublished,
		QuestionIDs:      []uuid.UUID{h.qs[0].ID, h.qs[1].ID, h.qs[2].ID, h.qs[3].ID},
	}
	h.exams = testutil.NewExams(h.exam)

	h.svc = service.NewExamSessionService(h.engine, h.exams, h.questions, h.results, h.store, h.fast, h.auth, zerolog.Nop())
	return h
}

func (h *harness) start(t *testing.T, candidate string) *model.SessionState {
	t.Helper()
	st, err := h.svc.Start(context.Background(), h.exam.ID, candidate, "")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	return st
}

func TestStart_FixedListKeepsOrder(t *testing.T) {
	h := newHarness(t)
	st := h.start(t, "cand-1")

	if st.RemainingSeconds != 30*60 {
		t.Fatalf("remaining = %d, want 1800", st.RemainingSeconds)
	}
	for i, id := range st.Session.QuestionIDs {
		if id != h.exam.QuestionIDs[i] {
			t.Fatalf("question %d = %s, want %s", i, id, h.exam.QuestionIDs[i])
		}
	}
}

func TestStart_ResumesActiveSession(t *testing.T) {
	h := newHarness(t)
	first := h.start(t, "cand-1")
	h.clock.Advance(5 * time.Minute)
	second := h.start(t, "cand-1")

	if first.Session.ID != second.Session.ID {
		t.Fatalf("second start created %s, want %s", second.Session.ID, first.Session.ID)
	}
	if second.RemainingSeconds != 25*60 {
		t.Fatalf("remaining = %d, want 1500", second.RemainingSeconds)
	}
}

func TestStart_ShuffleIsSeededPerCandidate(t *testing.T) {
	h := newHarness(t)
	h.exam.Shuffle = true
	h.exams.Put(h.exam)

	st := h.start(t, "cand-1")
	want := pool.Order(h.exam.QuestionIDs, pool.Seed(h.exam.ID, "cand-1"))
	for i := range want {
		if st.Session.QuestionIDs[i] != want[i] {
			t.Fatalf("order differs at %d", i)
		}
	}
	if st.Session.Seed != pool.Seed(h.exam.ID, "cand-1") {
		t.Fatalf("seed not persisted on session")
	}
}

func TestStart_PoolDraw(t *testing.T) {
	h := newHarness(t)
	subjectID := h.qs[0].SubjectID
	if subjectID == uuid.Nil {
		t.Fatal("harness questions carry no subject")
	}
	h.exam.UseQuestionPool = true
	h.exam.QuestionIDs = nil
	h.exam.Pool = model.QuestionPool{Total: 3, Entries: []model.PoolEntry{{SubjectID: subjectID, Count: 3}}}
	h.exams.Put(h.exam)

	st := h.start(t, "cand-1")
	if len(st.Session.QuestionIDs) != 3 {
		t.Fatalf("drew %d questions, want 3", len(st.Session.QuestionIDs))
	}
	inSubject := make(map[uuid.UUID]bool, len(h.qs))
	for _, q := range h.qs {
		inSubject[q.ID] = true
	}
	for _, id := range st.Session.QuestionIDs {
		if !inSubject[id] {
			t.Fatalf("drew %s from outside the subject", id)
		}
	}

	// A second candidate gets a reproducible draw of their own.
	other := h.start(t, "cand-2")
	inv, _ := h.questions.InventoryByCourse(context.Background(), h.exam.CourseID)
	want, err := pool.Draw(h.exam.Pool, inv, pool.Seed(h.exam.ID, "cand-2"))
	if err != nil {
		t.Fatal(err)
	}
	for i := range want {
		if other.Session.QuestionIDs[i] != want[i] {
			t.Fatalf("draw for cand-2 not reproducible at %d", i)
		}
	}
}

func TestStart_Rejections(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	draft := *h.exam
	draft.ID = uuid.New()
	draft.Status = model.ExamStatusDraft
	h.exams.Put(&draft)
	if _, err := h.svc.Start(ctx, draft.ID, "c", ""); !errors.Is(err, service.ErrExamNotAvailable) {
		t.Fatalf("draft: err = %v, want ErrExamNotAvailable", err)
	}

	later := *h.exam
	later.ID = uuid.New()
	opens := h.clock.Now().Add(time.Hour)
	later.ScheduledStart = &opens
	h.exams.Put(&later)
	if _, err := h.svc.Start(ctx, later.ID, "c", ""); !errors.Is(err, service.ErrExamNotAvailable) {
		t.Fatalf("before window: err = %v, want ErrExamNotAvailable", err)
	}

	if _, err := h.svc.Start(ctx, uuid.New(), "c", ""); !errors.Is(err, service.ErrExamNotFound) {
		t.Fatalf("unknown exam: err = %v, want ErrExamNotFound", err)
	}
}

func TestStart_AccessCode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	hash, err := h.auth.HashAccessCode("open-sesame")
	if err != nil {
		t.Fatal(err)
	}
	h.exam.AccessCodeHash = hash
	h.exams.Put(h.exam)

	if _, err := h.svc.Start(ctx, h.exam.ID, "c", "wrong"); !errors.Is(err, service.ErrInvalidAccessCode) {
		t.Fatalf("err = %v, want ErrInvalidAccessCode", err)
	}
	if _, err := h.svc.Start(ctx, h.exam.ID, "c", "open-sesame"); err != nil {
		t.Fatalf("correct code rejected: %v", err)
	}
}

func TestStart_ClosesStaleAttempt(t *testing.T) {
	h := newHarness(t)
	first := h.start(t, "cand-1")
	h.fast.DropActiveSession(context.Background(), h.exam.ID, "cand-1")

	h.clock.Advance(31 * time.Minute)
	second := h.start(t, "cand-1")

	if second.Session.ID == first.Session.ID {
		t.Fatal("stale session was resumed")
	}
	old, err := h.engine.Get(context.Background(), first.Session.ID)
	if err != nil {
		t.Fatal(err)
	}
	if old.Status != model.SessionStatusExpired {
		t.Fatalf("stale status = %s, want expired", old.Status)
	}
	if len(h.fast.Queue) != 1 || h.fast.Queue[0].ExamSessionID != first.Session.ID {
		t.Fatalf("stale result not queued: %+v", h.fast.Queue)
	}
}

func TestSaveAnswer_Ownership(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	st := h.start(t, "cand-1")

	if _, err := h.svc.SaveAnswer(ctx, st.Session.ID, "intruder", h.qs[0].ID, []string{"A"}); !errors.Is(err, service.ErrNotSessionOwner) {
		t.Fatalf("err = %v, want ErrNotSessionOwner", err)
	}
	if _, err := h.svc.SaveAnswer(ctx, st.Session.ID, "cand-1", uuid.New(), []string{"A"}); !errors.Is(err, service.ErrQuestionNotInSession) {
		t.Fatalf("err = %v, want ErrQuestionNotInSession", err)
	}
	got, err := h.svc.SaveAnswer(ctx, st.Session.ID, "cand-1", h.qs[0].ID, []string{"A"})
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Session.Answers) != 1 {
		t.Fatalf("answers = %d, want 1", len(got.Session.Answers))
	}
}

func TestSubmit_QueuesResult(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	st := h.start(t, "cand-1")
	sid := st.Session.ID

	for _, q := range h.qs[:2] {
		if _, err := h.svc.SaveAnswer(ctx, sid, "cand-1", q.ID, []string{"A"}); err != nil {
			t.Fatal(err)
		}
	}
	h.clock.Advance(12 * time.Minute)

	res, err := h.svc.Submit(ctx, sid, "cand-1")
	if err != nil {
		t.Fatal(err)
	}
	if res.Score != 50 || !res.Passed || res.TimeTaken != 720 || res.Status != model.SessionStatusCompleted {
		t.Fatalf("result = %+v, want score 50, passed, 720s, completed", res)
	}
	if len(h.fast.Queue) != 1 {
		t.Fatalf("queue length = %d, want 1", len(h.fast.Queue))
	}
	if _, err := h.fast.GetActiveSession(ctx, h.exam.ID, "cand-1"); !errors.Is(err, service.ErrCacheMiss) {
		t.Fatal("active session cache not cleared")
	}
	if _, err := h.svc.Submit(ctx, sid, "cand-1"); !errors.Is(err, session.ErrSessionFinished) {
		t.Fatalf("second submit err = %v, want ErrSessionFinished", err)
	}
}

func TestSubmit_QueueDownWritesDirectly(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.fast.FailEnqueue = errors.New("redis down")
	st := h.start(t, "cand-1")

	if _, err := h.svc.Submit(ctx, st.Session.ID, "cand-1"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.results.GetBySession(ctx, st.Session.ID); err != nil {
		t.Fatalf("result not written directly: %v", err)
	}
}

func TestResult_Fallbacks(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	st := h.start(t, "cand-1")
	sid := st.Session.ID

	if _, err := h.svc.Result(ctx, sid, "cand-1"); !errors.Is(err, service.ErrResultNotAvailable) {
		t.Fatalf("in progress: err = %v, want ErrResultNotAvailable", err)
	}

	if _, err := h.svc.SaveAnswer(ctx, sid, "cand-1", h.qs[0].ID, []string{"A"}); err != nil {
		t.Fatal(err)
	}
	submitted, err := h.svc.Submit(ctx, sid, "cand-1")
	if err != nil {
		t.Fatal(err)
	}

	// Served from the Redis copy.
	got, err := h.svc.Result(ctx, sid, "cand-1")
	if err != nil || got.Score != submitted.Score {
		t.Fatalf("cached result = %+v, %v", got, err)
	}

	// Regraded from the session once the copy is gone.
	h.fast.ForgetResult(sid)
	got, err = h.svc.Result(ctx, sid, "cand-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.Score != 25 || got.CorrectAnswers != 1 || got.ExamSessionID != sid {
		t.Fatalf("regraded result = %+v, want score 25 with 1 correct", got)
	}
}

func TestPaper_HidesCorrectness(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	st := h.start(t, "cand-1")

	paper, err := h.svc.Paper(ctx, st.Session.ID, "cand-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(paper.Questions) != 4 {
		t.Fatalf("paper has %d questions, want 4", len(paper.Questions))
	}
	for i, q := range paper.Questions {
		if q.ID != st.Session.QuestionIDs[i] {
			t.Fatalf("paper order differs at %d", i)
		}
	}

	// The second read is served from the cache.
	if _, err := h.fast.GetPaper(ctx, h.exam.ID, st.Session.QuestionIDs); err != nil {
		t.Fatalf("paper not cached: %v", err)
	}
}

func TestListAvailable(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	upcoming := *h.exam
	upcoming.ID = uuid.New()
	opens := h.clock.Now().Add(time.Hour)
	upcoming.ScheduledStart = &opens
	h.exams.Put(&upcoming)

	closed := *h.exam
	closed.ID = uuid.New()
	ended := h.clock.Now().Add(-time.Minute)
	closed.ScheduledEnd = &ended
	h.exams.Put(&closed)

	h.start(t, "cand-1")

	lobby, err := h.svc.ListAvailable(ctx, "cand-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(lobby) != 2 {
		t.Fatalf("lobby has %d exams, want 2", len(lobby))
	}
	byID := map[uuid.UUID]service.LobbyExam{}
	for _, e := range lobby {
		byID[e.ID] = e
	}
	if byID[h.exam.ID].LobbyStatus != service.LobbyStatusInProgress {
		t.Fatalf("started exam status = %s", byID[h.exam.ID].LobbyStatus)
	}
	if byID[upcoming.ID].LobbyStatus != service.LobbyStatusUpcoming {
		t.Fatalf("upcoming exam status = %s", byID[upcoming.ID].LobbyStatus)
	}
}
