//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stemsi/examcore/internal/config"
	"github.com/stemsi/examcore/internal/service"
)

const (
	defaultBaseURL = "http://localhost:8080/api/v1"
	candidateID    = "e2e-candidate"
)

var (
	baseURL        string
	adminToken     string
	candidateToken string
)

// envelope mirrors the API response shape with a typed data field.
type envelope[T any] struct {
	Data  T `json:"data"`
	Error *struct {
		Code string `json:"code"`
	} `json:"error"`
}

func TestMain(m *testing.M) {
	// Load .env if present (ignore error)
	_ = godotenv.Load("../../.env")

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	cfg := config.Load()
	if err := cleanDatabase(cfg.DatabaseURL); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	// Tokens are signed with the server's JWT_SECRET, read from the same env.
	auth := service.NewAuthService(cfg)
	var err error
	if adminToken, err = auth.GenerateToken("e2e-admin", service.RoleAdmin, "E2E Admin"); err != nil {
		fmt.Printf("Admin token: %v\n", err)
		os.Exit(1)
	}
	if candidateToken, err = auth.GenerateToken(candidateID, service.RoleCandidate, "E2E Candidate"); err != nil {
		fmt.Printf("Candidate token: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

func cleanDatabase(dbURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	// Order matters due to FK.
	tables := []string{"exam_results", "exam_sessions", "exams", "questions", "subjects", "courses"}
	for _, table := range tables {
		if _, err := conn.Exec(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
			return fmt.Errorf("cleanup %s: %w", table, err)
		}
	}
	return nil
}

type idOnly struct {
	ID string `json:"id"`
}

func TestE2EFlow(t *testing.T) {
	var course, subject, exam idOnly
	var questionIDs []string

	mustDo(t, http.MethodPost, "/admin/courses", adminToken,
		map[string]any{"name": "E2E Course"}, http.StatusCreated, &course)
	mustDo(t, http.MethodPost, "/admin/courses/"+course.ID+"/subjects", adminToken,
		map[string]any{"name": "Basics"}, http.StatusCreated, &subject)

	for i := 1; i <= 4; i++ {
		var q idOnly
		mustDo(t, http.MethodPost, "/admin/subjects/"+subject.ID+"/questions", adminToken, map[string]any{
			"text":       fmt.Sprintf("Question %d", i),
			"type":       "single_choice",
			"difficulty": "easy",
			"options": []map[string]any{
				{"id": "A", "text": "right", "is_correct": true},
				{"id": "B", "text": "wrong"},
			},
		}, http.StatusCreated, &q)
		questionIDs = append(questionIDs, q.ID)
	}

	mustDo(t, http.MethodPost, "/admin/exams", adminToken, map[string]any{
		"course_id":          course.ID,
		"title":              "E2E Exam",
		"time_limit_minutes": 30,
		"passing_score":      50,
		"question_ids":       questionIDs,
	}, http.StatusCreated, &exam)

	t.Run("StartBeforePublishFails", func(t *testing.T) {
		resp := do(t, http.MethodPost, "/candidate/exams/"+exam.ID+"/start", candidateToken, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("status %d: %s", resp.StatusCode, readBody(resp))
		}
	})

	mustDo(t, http.MethodPost, "/admin/exams/"+exam.ID+"/publish", adminToken, nil, http.StatusOK, nil)

	var sessionID string
	t.Run("StartAndResume", func(t *testing.T) {
		var first, second struct {
			Session struct {
				ID          string   `json:"id"`
				QuestionIDs []string `json:"question_ids"`
			} `json:"session"`
			RemainingSeconds int `json:"remaining_seconds"`
		}
		mustDo(t, http.MethodPost, "/candidate/exams/"+exam.ID+"/start", candidateToken, nil, http.StatusOK, &first)
		mustDo(t, http.MethodPost, "/candidate/exams/"+exam.ID+"/start", candidateToken, nil, http.StatusOK, &second)
		if first.Session.ID != second.Session.ID {
			t.Fatalf("second start created a new session: %s vs %s", first.Session.ID, second.Session.ID)
		}
		if first.RemainingSeconds <= 0 || first.RemainingSeconds > 30*60 {
			t.Fatalf("remaining seconds = %d", first.RemainingSeconds)
		}
		if len(first.Session.QuestionIDs) != 4 {
			t.Fatalf("question count = %d", len(first.Session.QuestionIDs))
		}
		sessionID = first.Session.ID
	})

	t.Run("PaperHidesCorrectness", func(t *testing.T) {
		resp := do(t, http.MethodGet, "/candidate/sessions/"+sessionID+"/paper", candidateToken, nil)
		defer resp.Body.Close()
		body := readBody(resp)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("status %d: %s", resp.StatusCode, body)
		}
		if bytes.Contains([]byte(body), []byte("is_correct")) {
			t.Fatalf("paper leaks correctness: %s", body)
		}
	})

	t.Run("AnswerAndSubmit", func(t *testing.T) {
		for i, qid := range questionIDs[:2] {
			mustDo(t, http.MethodPut, "/candidate/sessions/"+sessionID+"/answers", candidateToken, map[string]any{
				"question_id":         qid,
				"selected_option_ids": []string{"A"},
			}, http.StatusOK, nil)
			mustDo(t, http.MethodPut, "/candidate/sessions/"+sessionID+"/position", candidateToken,
				map[string]any{"index": i + 1}, http.StatusOK, nil)
		}

		var result struct {
			Score  float64 `json:"score"`
			Passed bool    `json:"passed"`
			Status string  `json:"status"`
		}
		mustDo(t, http.MethodPost, "/candidate/sessions/"+sessionID+"/submit", candidateToken, nil, http.StatusOK, &result)
		if result.Score != 50 || !result.Passed || result.Status != "completed" {
			t.Fatalf("unexpected result %+v", result)
		}

		resp := do(t, http.MethodPost, "/candidate/sessions/"+sessionID+"/submit", candidateToken, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("second submit status %d", resp.StatusCode)
		}
	})

	t.Run("ResultPersisted", func(t *testing.T) {
		// The result worker persists asynchronously.
		deadline := time.Now().Add(10 * time.Second)
		for {
			var page struct {
				Results []struct {
					ExamSessionID string  `json:"exam_session_id"`
					Score         float64 `json:"score"`
				} `json:"results"`
			}
			mustDo(t, http.MethodGet, "/admin/exams/"+exam.ID+"/results", adminToken, nil, http.StatusOK, &page)
			if len(page.Results) == 1 && page.Results[0].ExamSessionID == sessionID {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("result not persisted, got %+v", page.Results)
			}
			time.Sleep(500 * time.Millisecond)
		}
	})

	t.Run("UnpublishedExamWithResultsIsKept", func(t *testing.T) {
		mustDo(t, http.MethodPost, "/admin/exams/"+exam.ID+"/unpublish", adminToken, nil, http.StatusOK, nil)

		resp := do(t, http.MethodDelete, "/admin/exams/"+exam.ID, adminToken, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusConflict {
			t.Fatalf("delete status %d: %s", resp.StatusCode, readBody(resp))
		}

		var page struct {
			Results []struct {
				ExamSessionID string `json:"exam_session_id"`
			} `json:"results"`
		}
		mustDo(t, http.MethodGet, "/admin/exams/"+exam.ID+"/results", adminToken, nil, http.StatusOK, &page)
		if len(page.Results) != 1 {
			t.Fatalf("results after refused delete = %d, want 1", len(page.Results))
		}
	})

	t.Run("OtherCandidateIsForbidden", func(t *testing.T) {
		auth := service.NewAuthService(config.Load())
		other, err := auth.GenerateToken("someone-else", service.RoleCandidate, "")
		if err != nil {
			t.Fatal(err)
		}
		resp := do(t, http.MethodGet, "/candidate/sessions/"+sessionID+"/result", other, nil)
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusForbidden {
			t.Fatalf("status %d", resp.StatusCode)
		}
	})
}

// Helpers

func do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBytes)
	}

	req, err := http.NewRequest(method, baseURL+path, bodyReader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// mustDo performs a request, checks the status and decodes data into out when non-nil.
func mustDo(t *testing.T, method, path, token string, body any, want int, out any) {
	t.Helper()
	resp := do(t, method, path, token, body)
	defer resp.Body.Close()

	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d: %s", method, path, resp.StatusCode, readBody(resp))
	}
	if out == nil {
		return
	}
	env := envelope[json.RawMessage]{}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("json decode: %v", err)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
}

func readBody(resp *http.Response) string {
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
