package response

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestFail_EnvelopeCarriesRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/boom", func(c *gin.Context) {
		Fail(c, http.StatusConflict, ErrSessionFinished)
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d", w.Code)
	}
	var body Response
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Error == nil || body.Error.Code != ErrSessionFinished {
		t.Fatalf("error = %+v", body.Error)
	}
	if body.Error.Message != GetMessage(ErrSessionFinished) {
		t.Fatalf("message = %q", body.Error.Message)
	}
	if body.Metadata.RequestID != "req-123" || w.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id = %q", body.Metadata.RequestID)
	}
}

func TestNewPagination(t *testing.T) {
	tests := []struct {
		page, perPage, total, wantPages int
	}{
		{1, 20, 0, 0},
		{1, 20, 20, 1},
		{2, 20, 21, 2},
		{1, 0, 5, 0},
	}
	for _, tc := range tests {
		if got := NewPagination(tc.page, tc.perPage, tc.total); got.TotalPages != tc.wantPages {
			t.Fatalf("NewPagination(%d,%d,%d).TotalPages = %d, want %d", tc.page, tc.perPage, tc.total, got.TotalPages, tc.wantPages)
		}
	}
}

func TestGetMessage_Unknown(t *testing.T) {
	if GetMessage(ErrCode("NOPE")) != "An unexpected error occurred." {
		t.Fatal("unknown code should map to the generic message")
	}
}
