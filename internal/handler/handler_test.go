package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/middleware"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/pool"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/session"
	"github.com/stemsi/examcore/internal/testutil"
	"github.com/stemsi/examcore/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

type candidateEnv struct {
	router   *gin.Engine
	auth     *service.AuthService
	sessions *service.ExamSessionService
	clock    *testutil.Clock
	exam     *model.Exam
	qs       []model.Question
	presence *fakePresence
}

type fakePresence struct {
	beats       atomic.Int32
	disconnects atomic.Int32
}

func (p *fakePresence) Heartbeat(context.Context, uuid.UUID)  { p.beats.Add(1) }
func (p *fakePresence) Disconnect(context.Context, uuid.UUID) { p.disconnects.Add(1) }

func newCandidateEnv(t *testing.T) *candidateEnv {
	t.Helper()
	env := &candidateEnv{
		clock:    testutil.NewClock(time.Now().UTC().Truncate(time.Second)),
		auth:     service.NewAuthService(&config.Config{JWTSecret: "handler-secret", JWTExpiry: time.Hour, BcryptCost: bcrypt.MinCost}),
		presence: &fakePresence{},
	}

	store := session.NewMemoryStore()
	engine := session.NewEngine(store, zerolog.Nop(), session.WithClock(env.clock.Now))

	courseID, subjectID := uuid.New(), uuid.New()
	env.qs = []model.Question{
		testutil.SingleChoice("q1"),
		testutil.SingleChoice("q2"),
		testutil.SingleChoice("q3"),
		testutil.SingleChoice("q4"),
	}
	questions := testutil.NewQuestions()
	questions.Add(courseID, subjectID, env.qs...)

	env.exam = &model.Exam{
		ID:               uuid.New(),
		CourseID:         courseID,
		Title:            "Networking basics",
		TimeLimitMinutes: 20,
		PassingScore:     75,
		Status:           model.ExamStatusPublished,
		QuestionIDs:      []uuid.UUID{env.qs[0].ID, env.qs[1].ID, env.qs[2].ID, env.qs[3].ID},
	}

	env.sessions = service.NewExamSessionService(
		engine, testutil.NewExams(env.exam), questions, testutil.NewResults(),
		store, testutil.NewFastLane(), env.auth, zerolog.Nop(),
	)

	h := NewCandidateHandler(env.sessions)
	ws := NewWSHandler(env.sessions, env.presence, zerolog.Nop(), nil)
	ws.tick = 20 * time.Millisecond

	r := gin.New()
	r.Use(response.RequestIDMiddleware())
	c := r.Group("/api/v1/candidate", middleware.RequireCandidate(env.auth))
	c.GET("/exams", h.ListExams)
	c.POST("/exams/:id/start", h.StartExam)
	c.GET("/sessions/:id", h.GetSession)
	c.GET("/sessions/:id/paper", h.GetPaper)
	c.PUT("/sessions/:id/answers", h.SaveAnswer)
	c.PUT("/sessions/:id/position", h.Navigate)
	c.POST("/sessions/:id/submit", h.Submit)
	c.GET("/sessions/:id/result", h.GetResult)
	r.GET("/ws/v1/candidate/sessions/:id/stream", middleware.RequireCandidateWS(env.auth), ws.SessionStream)
	env.router = r
	return env
}

func (e *candidateEnv) token(t *testing.T, candidate string) string {
	t.Helper()
	tok, err := e.auth.GenerateToken(candidate, service.RoleCandidate, "")
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

type apiResponse struct {
	Data  json.RawMessage     `json:"data"`
	Error *response.ErrorBody `json:"error"`
}

func (e *candidateEnv) call(t *testing.T, method, path, token string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out apiResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("%s %s: decode %q: %v", method, path, w.Body.String(), err)
	}
	return w.Code, out
}

func (e *candidateEnv) start(t *testing.T, token string) model.SessionState {
	t.Helper()
	code, res := e.call(t, http.MethodPost, fmt.Sprintf("/api/v1/candidate/exams/%s/start", e.exam.ID), token, nil)
	if code != http.StatusOK {
		t.Fatalf("start status = %d, error = %+v", code, res.Error)
	}
	var st model.SessionState
	if err := json.Unmarshal(res.Data, &st); err != nil {
		t.Fatal(err)
	}
	return st
}

func TestCandidateFlow(t *testing.T) {
	env := newCandidateEnv(t)
	tok := env.token(t, "cand-1")
	st := env.start(t, tok)
	base := "/api/v1/candidate/sessions/" + st.Session.ID.String()

	code, res := env.call(t, http.MethodGet, base+"/paper", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("paper status = %d", code)
	}
	if bytes.Contains(res.Data, []byte("is_correct")) {
		t.Fatalf("paper leaks correctness: %s", res.Data)
	}

	for _, q := range env.qs[:3] {
		code, res = env.call(t, http.MethodPut, base+"/answers", tok, map[string]any{
			"question_id":         q.ID,
			"selected_option_ids": []string{"A"},
		})
		if code != http.StatusOK {
			t.Fatalf("answer status = %d, error = %+v", code, res.Error)
		}
	}

	code, _ = env.call(t, http.MethodPut, base+"/position", tok, map[string]any{"index": 3})
	if code != http.StatusOK {
		t.Fatalf("navigate status = %d", code)
	}

	env.clock.Advance(4 * time.Minute)
	code, res = env.call(t, http.MethodPost, base+"/submit", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("submit status = %d, error = %+v", code, res.Error)
	}
	var result model.ExamResult
	if err := json.Unmarshal(res.Data, &result); err != nil {
		t.Fatal(err)
	}
	if result.Score != 75 || !result.Passed || result.TimeTaken != 240 {
		t.Fatalf("result = %+v, want score 75, passed, 240s", result)
	}

	code, res = env.call(t, http.MethodGet, base+"/result", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("result status = %d, error = %+v", code, res.Error)
	}

	code, res = env.call(t, http.MethodPost, base+"/submit", tok, nil)
	if code != http.StatusConflict || res.Error.Code != response.ErrSessionFinished {
		t.Fatalf("second submit = %d %+v, want 409 SESSION_FINISHED", code, res.Error)
	}
}

func TestCandidateErrors(t *testing.T) {
	env := newCandidateEnv(t)
	tok := env.token(t, "cand-1")
	st := env.start(t, tok)
	base := "/api/v1/candidate/sessions/" + st.Session.ID.String()

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		body     any
		wantCode int
		wantErr  response.ErrCode
	}{
		{"bad id", http.MethodGet, "/api/v1/candidate/sessions/nope", tok, nil, http.StatusBadRequest, response.ErrInvalidID},
		{"unknown session", http.MethodGet, "/api/v1/candidate/sessions/" + uuid.NewString(), tok, nil, http.StatusNotFound, response.ErrNotFound},
		{"other candidate", http.MethodGet, base, env.token(t, "cand-2"), nil, http.StatusForbidden, response.ErrNotSessionOwner},
		{"index out of range", http.MethodPut, base + "/position", tok, map[string]any{"index": 4}, http.StatusUnprocessableEntity, response.ErrIndexOutOfRange},
		{"missing index", http.MethodPut, base + "/position", tok, map[string]any{}, http.StatusBadRequest, response.ErrValidation},
		{"foreign question", http.MethodPut, base + "/answers", tok, map[string]any{"question_id": uuid.New(), "selected_option_ids": []string{"A"}}, http.StatusUnprocessableEntity, response.ErrUnknownQuestion},
		{"result before submit", http.MethodGet, base + "/result", tok, nil, http.StatusConflict, response.ErrResultNotAvailable},
		{"unknown exam", http.MethodPost, "/api/v1/candidate/exams/" + uuid.NewString() + "/start", tok, nil, http.StatusNotFound, response.ErrNotFound},
		{"no token", http.MethodGet, base, "", nil, http.StatusUnauthorized, response.ErrTokenRequired},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, res := env.call(t, tc.method, tc.path, tc.token, tc.body)
			if code != tc.wantCode {
				t.Fatalf("status = %d, want %d (error %+v)", code, tc.wantCode, res.Error)
			}
			if res.Error == nil || res.Error.Code != tc.wantErr {
				t.Fatalf("error = %+v, want %s", res.Error, tc.wantErr)
			}
		})
	}
}

func TestCandidate_SaveAfterExpiryRejected(t *testing.T) {
	env := newCandidateEnv(t)
	tok := env.token(t, "cand-1")
	st := env.start(t, tok)

	env.clock.Advance(21 * time.Minute)
	code, res := env.call(t, http.MethodPut, "/api/v1/candidate/sessions/"+st.Session.ID.String()+"/answers", tok, map[string]any{
		"question_id":         env.qs[0].ID,
		"selected_option_ids": []string{"A"},
	})
	if code != http.StatusConflict || res.Error.Code != response.ErrSessionExpired {
		t.Fatalf("save after expiry = %d %+v, want 409 SESSION_EXPIRED", code, res.Error)
	}
}

func TestCandidate_ListExams(t *testing.T) {
	env := newCandidateEnv(t)
	tok := env.token(t, "cand-1")
	env.start(t, tok)

	code, res := env.call(t, http.MethodGet, "/api/v1/candidate/exams", tok, nil)
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	var body struct {
		Exams []service.LobbyExam `json:"exams"`
	}
	if err := json.Unmarshal(res.Data, &body); err != nil {
		t.Fatal(err)
	}
	if len(body.Exams) != 1 || body.Exams[0].LobbyStatus != service.LobbyStatusInProgress {
		t.Fatalf("lobby = %+v, want one in-progress exam", body.Exams)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   response.ErrCode
	}{
		{session.ErrSessionNotFound, http.StatusNotFound, response.ErrNotFound},
		{fmt.Errorf("start: %w", service.ErrExamNotAvailable), http.StatusConflict, response.ErrExamNotAvailable},
		{service.ErrInvalidAccessCode, http.StatusForbidden, response.ErrInvalidAccessCode},
		{fmt.Errorf("%w: subject x", pool.ErrPoolExhausted), http.StatusConflict, response.ErrPoolExhausted},
		{pool.ErrPoolExceedsInventory, http.StatusUnprocessableEntity, response.ErrPoolExceedsInventory},
		{model.ErrTrueFalseOptions, http.StatusUnprocessableEntity, response.ErrInvalidOptions},
		{service.ErrHasDependents, http.StatusConflict, response.ErrDependencyExists},
		{fmt.Errorf("boom"), http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tc := range tests {
		status, code := classify(tc.err)
		if status != tc.wantStatus || code != tc.wantCode {
			t.Errorf("classify(%v) = %d %s, want %d %s", tc.err, status, code, tc.wantStatus, tc.wantCode)
		}
	}
}
