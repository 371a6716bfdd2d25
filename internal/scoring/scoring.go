// Package scoring grades a finished exam session against its question set.
//
// Scoring is a pure computation: it never touches storage and never reads
// the clock. Callers supply both timestamps.
package scoring

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/examcore/internal/model"
)

// Input carries everything needed to grade one session.
type Input struct {
	// Questions in session order. Unanswered questions count as wrong.
	Questions    []model.Question
	Answers      map[uuid.UUID][]string
	PassingScore float64
	StartedAt    time.Time
	CompletedAt  *time.Time
}

// Score grades every question in order and aggregates the result.
// Session identifiers and status on the returned result are left for the caller.
func Score(in Input) model.ExamResult {
	details := make([]model.QuestionResult, 0, len(in.Questions))
	correctCount := 0

	for i := range in.Questions {
		q := &in.Questions[i]
		selected := Normalize(in.Answers[q.ID])
		correctIDs := q.CorrectOptionIDs()

		ok := IsCorrect(q.Type, selected, correctIDs)
		if ok {
			correctCount++
		}
		details = append(details, model.QuestionResult{
			QuestionID:      q.ID,
			Correct:         ok,
			SelectedOptions: selected,
			CorrectOptions:  correctIDs,
		})
	}

	total := len(in.Questions)
	var score float64
	if total > 0 {
		score = 100 * float64(correctCount) / float64(total)
	}

	return model.ExamResult{
		Score:           score,
		Passed:          score >= in.PassingScore,
		TotalQuestions:  total,
		CorrectAnswers:  correctCount,
		TimeTaken:       TimeTaken(in.StartedAt, in.CompletedAt),
		DetailedResults: details,
		CompletedAt:     in.CompletedAt,
	}
}

// IsCorrect applies the matching rule for the question type.
// Unknown types are never correct.
func IsCorrect(t model.QuestionType, selected, correct []string) bool {
	switch t {
	case model.QuestionTypeSingleChoice, model.QuestionTypeTrueFalse:
		if len(selected) != 1 {
			return false
		}
		for _, id := range correct {
			if id == selected[0] {
				return true
			}
		}
		return false
	case model.QuestionTypeMultiAnswer:
		return sameSet(selected, correct)
	default:
		return false
	}
}

// TimeTaken returns whole seconds between start and completion, rounded.
// A nil completion yields 0.
func TimeTaken(startedAt time.Time, completedAt *time.Time) int {
	if completedAt == nil {
		return 0
	}
	return int(math.Round(completedAt.Sub(startedAt).Seconds()))
}

// Normalize collapses duplicate ids, keeping first-seen order.
// It never returns nil.
func Normalize(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sameSet(a, b []string) bool {
	as := make(map[string]struct{}, len(a))
	for _, id := range a {
		as[id] = struct{}{}
	}
	bs := make(map[string]struct{}, len(b))
	for _, id := range b {
		bs[id] = struct{}{}
	}
	if len(as) != len(bs) {
		return false
	}
	for id := range as {
		if _, ok := bs[id]; !ok {
			return false
		}
	}
	return true
}
