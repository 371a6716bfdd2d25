package model

import (
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusExpired    SessionStatus = "expired"
)

// Terminal reports whether no further mutation is allowed.
func (s SessionStatus) Terminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusExpired
}

// Answer is a candidate's selection for one question.
type Answer struct {
	QuestionID        uuid.UUID `json:"question_id"`
	SelectedOptionIDs []string  `json:"selected_option_ids"`
}

// ExamSession represents a candidate's exam attempt.
type ExamSession struct {
	ID                   uuid.UUID     `json:"id"`
	ExamID               uuid.UUID     `json:"exam_id"`
	CandidateID          string        `json:"candidate_id"`
	QuestionIDs          []uuid.UUID   `json:"question_ids"`
	Seed                 int64         `json:"seed"`
	StartedAt            time.Time     `json:"started_at"`
	ExpiresAt            time.Time     `json:"expires_at"`
	CurrentQuestionIndex int           `json:"current_question_index"`
	Answers              []Answer      `json:"answers"`
	Status               SessionStatus `json:"status"`
	CompletedAt          *time.Time    `json:"completed_at,omitempty"`
	Score                *float64      `json:"score,omitempty"`
	Passed               *bool         `json:"passed,omitempty"`
	TimeTaken            *int          `json:"time_taken,omitempty"`
	UpdatedAt            time.Time     `json:"updated_at"`
}

// Clone returns a deep copy of s.
func (s *ExamSession) Clone() *ExamSession {
	c := *s
	c.QuestionIDs = append([]uuid.UUID(nil), s.QuestionIDs...)
	c.Answers = make([]Answer, len(s.Answers))
	for i, a := range s.Answers {
		c.Answers[i] = Answer{
			QuestionID:        a.QuestionID,
			SelectedOptionIDs: append([]string(nil), a.SelectedOptionIDs...),
		}
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	if s.Score != nil {
		v := *s.Score
		c.Score = &v
	}
	if s.Passed != nil {
		v := *s.Passed
		c.Passed = &v
	}
	if s.TimeTaken != nil {
		v := *s.TimeTaken
		c.TimeTaken = &v
	}
	return &c
}

// AnswerMap indexes the session's answers by question id.
func (s *ExamSession) AnswerMap() map[uuid.UUID][]string {
	m := make(map[uuid.UUID][]string, len(s.Answers))
	for _, a := range s.Answers {
		m[a.QuestionID] = a.SelectedOptionIDs
	}
	return m
}

// SessionState is the candidate-facing snapshot returned by the state endpoint.
type SessionState struct {
	Session          *ExamSession `json:"session"`
	RemainingSeconds int          `json:"remaining_seconds"`
	ServerTime       time.Time    `json:"server_time"`
}

// StartExamRequest is the payload for a candidate starting an exam.
type StartExamRequest struct {
	AccessCode string `json:"access_code" binding:"omitempty,max=32"`
}

// SaveAnswerRequest is the payload for saving one answer.
type SaveAnswerRequest struct {
	QuestionID        uuid.UUID `json:"question_id" binding:"required"`
	SelectedOptionIDs []string  `json:"selected_option_ids" binding:"max=10,dive,required,max=64"`
}

// NavigateRequest is the payload for moving to another question.
type NavigateRequest struct {
	Index *int `json:"index" binding:"required"`
}
