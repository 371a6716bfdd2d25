package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/pool"
	"github.com/stemsi/examcore/internal/response"
	"github.com/stemsi/examcore/internal/service"
	"github.com/stemsi/examcore/internal/session"
)

type errMapping struct {
	err    error
	status int
	code   response.ErrCode
}

// errTable is checked in order with errors.Is; the first hit wins.
var errTable = []errMapping{
	// not found
	{session.ErrSessionNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrCourseNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrSubjectNotFound, http.StatusNotFound, response.ErrNotFound},
	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrNotFound},

	// ownership and access
	{service.ErrNotSessionOwner, http.StatusForbidden, response.ErrNotSessionOwner},
	{service.ErrInvalidAccessCode, http.StatusForbidden, response.ErrInvalidAccessCode},

	// session state
	{session.ErrSessionFinished, http.StatusConflict, response.ErrSessionFinished},
	{session.ErrSessionExpired, http.StatusConflict, response.ErrSessionExpired},
	{session.ErrIndexOutOfRange, http.StatusUnprocessableEntity, response.ErrIndexOutOfRange},
	{service.ErrQuestionNotInSession, http.StatusUnprocessableEntity, response.ErrUnknownQuestion},
	{service.ErrExamNotAvailable, http.StatusConflict, response.ErrExamNotAvailable},
	{service.ErrResultNotAvailable, http.StatusConflict, response.ErrResultNotAvailable},

	// exam definition
	{service.ErrExamNotDraft, http.StatusConflict, response.ErrExamNotDraft},
	{service.ErrInvalidTransition, http.StatusConflict, response.ErrInvalidTransition},
	{service.ErrNoQuestions, http.StatusUnprocessableEntity, response.ErrNoQuestions},
	{session.ErrNoQuestions, http.StatusUnprocessableEntity, response.ErrNoQuestions},
	{service.ErrUnknownQuestion, http.StatusUnprocessableEntity, response.ErrUnknownQuestion},
	{service.ErrQuestionSourceConflict, http.StatusUnprocessableEntity, response.ErrQuestionSourceMixed},
	{service.ErrPoolUnknownSubject, http.StatusUnprocessableEntity, response.ErrPoolUnknownSubject},
	{pool.ErrPoolEmpty, http.StatusUnprocessableEntity, response.ErrPoolEmpty},
	{pool.ErrPoolExceedsInventory, http.StatusUnprocessableEntity, response.ErrPoolExceedsInventory},
	{pool.ErrInvalidPoolCount, http.StatusUnprocessableEntity, response.ErrPoolInvalidCount},
	{pool.ErrPoolExhausted, http.StatusConflict, response.ErrPoolExhausted},

	// question shape
	{model.ErrUnknownQuestionType, http.StatusUnprocessableEntity, response.ErrInvalidOptions},
	{model.ErrTooFewOptions, http.StatusUnprocessableEntity, response.ErrInvalidOptions},
	{model.ErrTrueFalseOptions, http.StatusUnprocessableEntity, response.ErrInvalidOptions},
	{model.ErrCorrectOptionCount, http.StatusUnprocessableEntity, response.ErrInvalidOptions},
	{model.ErrDuplicateOptionID, http.StatusUnprocessableEntity, response.ErrInvalidOptions},
	{model.ErrEmptyOptionID, http.StatusUnprocessableEntity, response.ErrInvalidOptions},

	// catalog
	{service.ErrHasDependents, http.StatusConflict, response.ErrDependencyExists},
	{service.ErrQuestionInUse, http.StatusConflict, response.ErrDependencyExists},
	{service.ErrDuplicateSubject, http.StatusConflict, response.ErrConflict},
}

// classify maps a service, engine or pool error to an HTTP status and code.
// Anything unrecognized is an internal error.
func classify(err error) (int, response.ErrCode) {
	for _, m := range errTable {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, response.ErrInternal
}

// fail writes the error envelope for err. Internal errors are attached to
// the gin context so the request logger records the cause.
func fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	response.Fail(c, status, code)
}
