package model

import (
	"time"

	"github.com/google/uuid"
)

// QuestionResult is the per-question correctness record produced by scoring.
type QuestionResult struct {
	QuestionID      uuid.UUID `json:"question_id"`
	Correct         bool      `json:"correct"`
	SelectedOptions []string  `json:"selected_options"`
	CorrectOptions  []string  `json:"correct_options"`
}

// ExamResult is the graded outcome of one session. Immutable once produced.
type ExamResult struct {
	ExamSessionID   uuid.UUID        `json:"exam_session_id"`
	ExamID          uuid.UUID        `json:"exam_id"`
	CandidateID     string           `json:"candidate_id"`
	Status          SessionStatus    `json:"status"`
	Score           float64          `json:"score"`
	Passed          bool             `json:"passed"`
	TotalQuestions  int              `json:"total_questions"`
	CorrectAnswers  int              `json:"correct_answers"`
	TimeTaken       int              `json:"time_taken"`
	DetailedResults []QuestionResult `json:"detailed_results"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}
