package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "draft"
	ExamStatusPublished ExamStatus = "published"
	ExamStatusArchived  ExamStatus = "archived"
)

// CanTransition reports whether an exam may move from s to next.
// Allowed: draft→published, published→archived, published→draft.
func (s ExamStatus) CanTransition(next ExamStatus) bool {
	switch s {
	case ExamStatusDraft:
		return next == ExamStatusPublished
	case ExamStatusPublished:
		return next == ExamStatusArchived || next == ExamStatusDraft
	}
	return false
}

// PoolEntry requests Count questions drawn from one subject.
type PoolEntry struct {
	SubjectID uuid.UUID `json:"subject_id" binding:"required"`
	Count     int       `json:"count" binding:"min=0"`
}

// QuestionPool declares how many questions to draw per subject.
type QuestionPool struct {
	Total   int         `json:"total"`
	Entries []PoolEntry `json:"entries" binding:"dive"`
}

// Sum returns the total of all per-subject counts.
func (p QuestionPool) Sum() int {
	n := 0
	for _, e := range p.Entries {
		n += e.Count
	}
	return n
}

// Exam represents an exam entity.
type Exam struct {
	ID               uuid.UUID    `json:"id"`
	CourseID         uuid.UUID    `json:"course_id"`
	Title            string       `json:"title"`
	TimeLimitMinutes int          `json:"time_limit_minutes"`
	PassingScore     float64      `json:"passing_score"`
	Status           ExamStatus   `json:"status"`
	UseQuestionPool  bool         `json:"use_question_pool"`
	QuestionIDs      []uuid.UUID  `json:"question_ids"`
	Pool             QuestionPool `json:"pool"`
	ScheduledStart   *time.Time   `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time   `json:"scheduled_end,omitempty"`
	Shuffle          bool         `json:"shuffle"`
	AccessCodeHash   string       `json:"-"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// HasAccessCode reports whether candidates must present a code to start.
func (e *Exam) HasAccessCode() bool {
	return e.AccessCodeHash != ""
}

// QuestionCount is the number of questions every session of this exam holds.
func (e *Exam) QuestionCount() int {
	if e.UseQuestionPool {
		return e.Pool.Sum()
	}
	return len(e.QuestionIDs)
}

// WithinWindow reports whether t falls inside the optional scheduling window.
func (e *Exam) WithinWindow(t time.Time) bool {
	if e.ScheduledStart != nil && t.Before(*e.ScheduledStart) {
		return false
	}
	if e.ScheduledEnd != nil && !t.Before(*e.ScheduledEnd) {
		return false
	}
	return true
}

// ExamSummary is the candidate-facing view of an available exam.
type ExamSummary struct {
	ID               uuid.UUID  `json:"id"`
	Title            string     `json:"title"`
	TimeLimitMinutes int        `json:"time_limit_minutes"`
	QuestionCount    int        `json:"question_count"`
	PassingScore     float64    `json:"passing_score"`
	RequiresCode     bool       `json:"requires_access_code"`
	ScheduledStart   *time.Time `json:"scheduled_start,omitempty"`
	ScheduledEnd     *time.Time `json:"scheduled_end,omitempty"`
}

// Summary returns the candidate-facing view of e.
func (e *Exam) Summary() ExamSummary {
	return ExamSummary{
		ID:               e.ID,
		Title:            e.Title,
		TimeLimitMinutes: e.TimeLimitMinutes,
		QuestionCount:    e.QuestionCount(),
		PassingScore:     e.PassingScore,
		RequiresCode:     e.HasAccessCode(),
		ScheduledStart:   e.ScheduledStart,
		ScheduledEnd:     e.ScheduledEnd,
	}
}

// SaveExamRequest is the payload for creating or updating a draft exam.
type SaveExamRequest struct {
	CourseID         uuid.UUID     `json:"course_id" binding:"required"`
	Title            string        `json:"title" binding:"required,min=3,max=255"`
	TimeLimitMinutes int           `json:"time_limit_minutes" binding:"required,min=5,max=480"`
	PassingScore     *float64      `json:"passing_score" binding:"required,min=0,max=100"`
	UseQuestionPool  bool          `json:"use_question_pool"`
	QuestionIDs      []uuid.UUID   `json:"question_ids" binding:"omitempty,max=500"`
	Pool             *QuestionPool `json:"pool" binding:"omitempty"`
	ScheduledStart   *time.Time    `json:"scheduled_start" binding:"omitempty"`
	ScheduledEnd     *time.Time    `json:"scheduled_end" binding:"omitempty,gtfield=ScheduledStart"`
	Shuffle          bool          `json:"shuffle"`
	AccessCode       string        `json:"access_code" binding:"omitempty,min=4,max=32"`
}

// SetAccessCodeRequest replaces an exam's access code. Empty clears it.
type SetAccessCodeRequest struct {
	AccessCode string `json:"access_code" binding:"omitempty,min=4,max=32"`
}

// ListExamsQuery filters the admin exam list.
type ListExamsQuery struct {
	CourseID string     `form:"course_id" binding:"omitempty,uuid"`
	Status   ExamStatus `form:"status" binding:"omitempty,oneof=draft published archived"`
	Page     int        `form:"page" binding:"omitempty,min=1"`
	PerPage  int        `form:"per_page" binding:"omitempty,min=1,max=100"`
}

// ExamPaper is the candidate-facing question set of one session.
type ExamPaper struct {
	SessionID uuid.UUID              `json:"session_id"`
	ExamID    uuid.UUID              `json:"exam_id"`
	Title     string                 `json:"title"`
	Questions []QuestionForCandidate `json:"questions"`
}
