package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/validator"
)

// SubjectHandler handles subject endpoints nested under courses.
type SubjectHandler struct {
	subjectService *service.SubjectService
}

// NewSubjectHandler creates a new SubjectHandler.
func NewSubjectHandler(subjectService *service.SubjectService) *SubjectHandler {
	return &SubjectHandler{subjectService: subjectService}
}

// ListSubjects godoc
// GET /api/v1/admin/courses/:id/subjects
func (h *SubjectHandler) ListSubjects(c *gin.Context) {
	courseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	subjects, err := h.subjectService.ListByCourse(c.Request.Context(), courseID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"subjects": subjects})
}

// CreateSubject godoc
// POST /api/v1/admin/courses/:id/subjects
func (h *SubjectHandler) CreateSubject(c *gin.Context) {
	courseID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.SaveSubjectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	subject, err := h.subjectService.Create(c.Request.Context(), courseID, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, subject)
}

// UpdateSubject godoc
// PUT /api/v1/admin/subjects/:id
func (h *SubjectHandler) UpdateSubject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req model.SaveSubjectRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	subject, err := h.subjectService.Update(c.Request.Context(), id, &req)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, subject)
}

// DeleteSubject godoc
// DELETE /api/v1/admin/subjects/:id
func (h *SubjectHandler) DeleteSubject(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.subjectService.Delete(c.Request.Context(), id); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}
