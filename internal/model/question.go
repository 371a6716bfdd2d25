package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// QuestionType determines which correctness rule applies when scoring.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeTrueFalse    QuestionType = "true_false"
	QuestionTypeMultiAnswer  QuestionType = "multi_answer"
)

// Difficulty enumerates question difficulty levels.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option validation errors.
var (
	ErrUnknownQuestionType = errors.New("unknown question type")
	ErrTooFewOptions       = errors.New("question has too few options")
	ErrTrueFalseOptions    = errors.New("true/false question must have exactly two options")
	ErrCorrectOptionCount  = errors.New("question has an invalid number of correct options")
	ErrDuplicateOptionID   = errors.New("question has duplicate option ids")
	ErrEmptyOptionID       = errors.New("option id must not be empty")
)

// Option is one selectable answer of a question.
type Option struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

// Question represents a single question in a subject's question bank.
type Question struct {
	ID          uuid.UUID    `json:"id"`
	SubjectID   uuid.UUID    `json:"subject_id"`
	Text        string       `json:"text"`
	Type        QuestionType `json:"type"`
	Options     []Option     `json:"options"`
	Difficulty  Difficulty   `json:"difficulty"`
	Explanation string       `json:"explanation,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// CorrectOptionIDs returns the ids of options flagged correct, in option order.
func (q *Question) CorrectOptionIDs() []string {
	ids := make([]string, 0, 1)
	for _, o := range q.Options {
		if o.IsCorrect {
			ids = append(ids, o.ID)
		}
	}
	return ids
}

// Validate checks the option shape required by the question type.
func (q *Question) Validate() error {
	seen := make(map[string]struct{}, len(q.Options))
	correct := 0
	for _, o := range q.Options {
		if o.ID == "" {
			return ErrEmptyOptionID
		}
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateOptionID, o.ID)
		}
		seen[o.ID] = struct{}{}
		if o.IsCorrect {
			correct++
		}
	}

	switch q.Type {
	case QuestionTypeSingleChoice:
		if len(q.Options) < 2 {
			return ErrTooFewOptions
		}
		if correct != 1 {
			return fmt.Errorf("%w: single choice needs exactly one, got %d", ErrCorrectOptionCount, correct)
		}
	case QuestionTypeTrueFalse:
		if len(q.Options) != 2 {
			return ErrTrueFalseOptions
		}
		if correct != 1 {
			return fmt.Errorf("%w: true/false needs exactly one, got %d", ErrCorrectOptionCount, correct)
		}
	case QuestionTypeMultiAnswer:
		if len(q.Options) < 2 {
			return ErrTooFewOptions
		}
		if correct < 1 {
			return fmt.Errorf("%w: multi answer needs at least one", ErrCorrectOptionCount)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownQuestionType, q.Type)
	}
	return nil
}

// ForCandidate strips correctness flags and the explanation.
func (q *Question) ForCandidate() QuestionForCandidate {
	opts := make([]OptionForCandidate, len(q.Options))
	for i, o := range q.Options {
		opts[i] = OptionForCandidate{ID: o.ID, Text: o.Text}
	}
	return QuestionForCandidate{
		ID:      q.ID,
		Text:    q.Text,
		Type:    q.Type,
		Options: opts,
	}
}

// QuestionForCandidate is a question without correct answers, sent to candidates.
type QuestionForCandidate struct {
	ID      uuid.UUID            `json:"id"`
	Text    string               `json:"text"`
	Type    QuestionType         `json:"type"`
	Options []OptionForCandidate `json:"options"`
}

// OptionForCandidate is an option without its correctness flag.
type OptionForCandidate struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// OptionInput is one option in a question payload.
type OptionInput struct {
	ID        string `json:"id" binding:"required,max=64"`
	Text      string `json:"text" binding:"required,max=2000"`
	IsCorrect bool   `json:"is_correct"`
}

// SaveQuestionRequest is the payload for creating or replacing a question.
type SaveQuestionRequest struct {
	Text        string        `json:"text" binding:"required,min=1,max=4000"`
	Type        string        `json:"type" binding:"required,oneof=single_choice true_false multi_answer"`
	Options     []OptionInput `json:"options" binding:"required,min=2,max=10,dive"`
	Difficulty  string        `json:"difficulty" binding:"required,oneof=easy medium hard"`
	Explanation string        `json:"explanation" binding:"omitempty,max=4000"`
}

// ToQuestion converts the payload into a Question owned by subjectID.
func (r *SaveQuestionRequest) ToQuestion(subjectID uuid.UUID) *Question {
	opts := make([]Option, len(r.Options))
	for i, o := range r.Options {
		opts[i] = Option{ID: o.ID, Text: o.Text, IsCorrect: o.IsCorrect}
	}
	return &Question{
		SubjectID:   subjectID,
		Text:        r.Text,
		Type:        QuestionType(r.Type),
		Options:     opts,
		Difficulty:  Difficulty(r.Difficulty),
		Explanation: r.Explanation,
	}
}
