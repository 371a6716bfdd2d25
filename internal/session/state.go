package session

import (
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/scoring"
)

// State is a persisted session opened either as *Active or *Finished.
// Only *Active exposes mutating methods.
type State interface {
	Record() *model.ExamSession
	finished() bool
}

// Open wraps rec in the state matching its status. rec is copied.
func Open(rec *model.ExamSession) State {
	c := rec.Clone()
	if c.Status.Terminal() {
		return &Finished{rec: c}
	}
	return &Active{rec: c}
}

// Active is an in-progress session.
type Active struct {
	rec *model.ExamSession
}

func (a *Active) Record() *model.ExamSession { return a.rec }
func (a *Active) finished() bool             { return false }

// QuestionCount is the number of questions materialized for the session.
func (a *Active) QuestionCount() int { return len(a.rec.QuestionIDs) }

// SaveAnswer replaces or appends the answer for questionID.
// Duplicate option ids collapse; option order is irrelevant.
func (a *Active) SaveAnswer(questionID uuid.UUID, selected []string, at time.Time) {
	ids := scoring.Normalize(selected)
	slices.Sort(ids)
	a.rec.UpdatedAt = at
	for i := range a.rec.Answers {
		if a.rec.Answers[i].QuestionID == questionID {
			a.rec.Answers[i].SelectedOptionIDs = ids
			return
		}
	}
	a.rec.Answers = append(a.rec.Answers, model.Answer{QuestionID: questionID, SelectedOptionIDs: ids})
}

// Navigate moves to index. Out-of-range indexes leave the session unchanged.
func (a *Active) Navigate(index int, at time.Time) error {
	if index < 0 || index >= a.QuestionCount() {
		return fmt.Errorf("%w: %d not in [0,%d)", ErrIndexOutOfRange, index, a.QuestionCount())
	}
	a.rec.CurrentQuestionIndex = index
	a.rec.UpdatedAt = at
	return nil
}

// Finish grades the session and returns its terminal state.
// The Active value must not be used afterwards.
func (a *Active) Finish(questions []model.Question, passingScore float64, completedAt time.Time, status model.SessionStatus) (*Finished, model.ExamResult) {
	rec := a.rec
	a.rec = nil

	res := scoring.Score(scoring.Input{
		Questions:    questions,
		Answers:      rec.AnswerMap(),
		PassingScore: passingScore,
		StartedAt:    rec.StartedAt,
		CompletedAt:  &completedAt,
	})
	res.ExamSessionID = rec.ID
	res.ExamID = rec.ExamID
	res.CandidateID = rec.CandidateID
	res.Status = status

	rec.Status = status
	rec.CompletedAt = &completedAt
	rec.Score = &res.Score
	rec.Passed = &res.Passed
	rec.TimeTaken = &res.TimeTaken
	rec.UpdatedAt = completedAt

	return &Finished{rec: rec}, res
}

// Finished is a completed or expired session. It is read-only.
type Finished struct {
	rec *model.ExamSession
}

func (f *Finished) Record() *model.ExamSession { return f.rec.Clone() }
func (f *Finished) finished() bool             { return true }
