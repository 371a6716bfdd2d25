package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

// ExamHandler handles exam management endpoints.
type ExamHandler struct {
	examService *service.ExamService
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(examService *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: examService}
}

// ListExams godoc
// GET /api/v1/admin/exams?course_id=&status=&page=&per_page=
func (h *ExamHandler) ListExams(c *gin.Context) {
	var q model.ListExamsQuery
	if fields := validator.BindQuery(c, &q); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	var courseID *uuid.UUID
	if q.CourseID != "" {
		id := uuid.MustParse(q.CourseID)
		courseID = &id
	}
	var status *model.ExamStatus
	if q.Status != "" {
		status = &q.Status
	}

	exams, pagination, err := h.examService.List(c.Request.Context(), courseID, status, q.Page, q.PerPage)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"exams": exams}, pagination)
}

// CreateExam godoc
// POST /api/v1/admin/exams
// Creates a new draft exam with either a question list or a question pool.
func (h *ExamHandler) CreateExam(c *gin.Context) {
	var req model.SaveExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	exam, err := h.examService.Create(c.Request.Context(), &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, exam)
}

// GetExam godoc
// GET /api/v1/admin/exams/:id
func (h *ExamHandler) GetExam(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	exam, err := h.examService.GetByID(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// UpdateExam godoc
// PUT /api/v1/admin/exams/:id
// Only drafts can be edited. An empty access_code keeps the current one.
func (h *ExamHandler) UpdateExam(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.SaveExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	exam, err := h.examService.Update(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// DeleteExam godoc
// DELETE /api/v1/admin/exams/:id
func (h *ExamHandler) DeleteExam(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.examService.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// PublishExam godoc
// POST /api/v1/admin/exams/:id/publish
func (h *ExamHandler) PublishExam(c *gin.Context) {
	h.changeStatus(c, h.examService.Publish)
}

// UnpublishExam godoc
// POST /api/v1/admin/exams/:id/unpublish
func (h *ExamHandler) UnpublishExam(c *gin.Context) {
	h.changeStatus(c, h.examService.Unpublish)
}

// ArchiveExam godoc
// POST /api/v1/admin/exams/:id/archive
func (h *ExamHandler) ArchiveExam(c *gin.Context) {
	h.changeStatus(c, h.examService.Archive)
}

func (h *ExamHandler) changeStatus(c *gin.Context, fn func(ctx context.Context, id uuid.UUID) (*model.Exam, error)) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	exam, err := fn(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, exam)
}

// SetAccessCode godoc
// PUT /api/v1/admin/exams/:id/access-code
func (h *ExamHandler) SetAccessCode(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.SetAccessCodeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if err := h.examService.SetAccessCode(c.Request.Context(), id, req.AccessCode); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"requires_access_code": req.AccessCode != ""})
}

// ListResults godoc
// GET /api/v1/admin/exams/:id/results
// Results are ranked by score, then by time taken.
func (h *ExamHandler) ListResults(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	page, perPage := pageParams(c)
	results, pagination, err := h.examService.Results(c.Request.Context(), id, page, perPage)
	if err != nil {
		fail(c, err)
		return
	}
	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, pagination)
}
