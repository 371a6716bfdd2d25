package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

// CandidateHandler serves the candidate's exam lobby and session endpoints.
type CandidateHandler struct {
	sessionService *service.ExamSessionService
}

// NewCandidateHandler creates a new CandidateHandler.
func NewCandidateHandler(sessionService *service.ExamSessionService) *CandidateHandler {
	return &CandidateHandler{sessionService: sessionService}
}

// ListExams godoc
// GET /api/v1/candidate/exams
// Returns published exams that have not closed, with the caller's latest attempt.
func (h *CandidateHandler) ListExams(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	exams, err := h.sessionService.ListAvailable(c.Request.Context(), cand)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"exams": exams})
}

// StartExam godoc
// POST /api/v1/candidate/exams/:id/start
// Starts an attempt, or returns the in-progress one. The body is optional.
func (h *CandidateHandler) StartExam(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	examID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req model.StartExamRequest
	if c.Request.ContentLength != 0 {
		if fields := validator.Bind(c, &req); fields != nil {
			response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
			return
		}
	}

	state, err := h.sessionService.Start(c.Request.Context(), examID, cand, req.AccessCode)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// GetSession godoc
// GET /api/v1/candidate/sessions/:id
func (h *CandidateHandler) GetSession(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}
	state, err := h.sessionService.State(c.Request.Context(), sid, cand)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// GetPaper godoc
// GET /api/v1/candidate/sessions/:id/paper
// Questions in session order, without correctness flags.
func (h *CandidateHandler) GetPaper(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}
	paper, err := h.sessionService.Paper(c.Request.Context(), sid, cand)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, paper)
}

// SaveAnswer godoc
// PUT /api/v1/candidate/sessions/:id/answers
// An empty selection clears the answer.
func (h *CandidateHandler) SaveAnswer(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	state, err := h.sessionService.SaveAnswer(c.Request.Context(), sid, cand, req.QuestionID, req.SelectedOptionIDs)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Navigate godoc
// PUT /api/v1/candidate/sessions/:id/position
func (h *CandidateHandler) Navigate(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.NavigateRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	state, err := h.sessionService.Navigate(c.Request.Context(), sid, cand, *req.Index)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, state)
}

// Submit godoc
// POST /api/v1/candidate/sessions/:id/submit
// Grades the session. A late submit is recorded at the deadline.
func (h *CandidateHandler) Submit(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.sessionService.Submit(c.Request.Context(), sid, cand)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}

// GetResult godoc
// GET /api/v1/candidate/sessions/:id/result
func (h *CandidateHandler) GetResult(c *gin.Context) {
	cand, ok := candidateID(c)
	if !ok {
		return
	}
	sid, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.sessionService.Result(c.Request.Context(), sid, cand)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
