package scoring

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/examcore/internal/model"
)

func singleChoice(correct string, ids ...string) model.Question {
	opts := make([]model.Option, len(ids))
	for i, id := range ids {
		opts[i] = model.Option{ID: id, Text: "option " + id, IsCorrect: id == correct}
	}
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeSingleChoice, Options: opts}
}

func multiAnswer(correct []string, ids ...string) model.Question {
	want := make(map[string]bool, len(correct))
	for _, c := range correct {
		want[c] = true
	}
	opts := make([]model.Option, len(ids))
	for i, id := range ids {
		opts[i] = model.Option{ID: id, Text: "option " + id, IsCorrect: want[id]}
	}
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeMultiAnswer, Options: opts}
}

func TestIsCorrect_SingleChoice(t *testing.T) {
	tests := []struct {
		name     string
		selected []string
		want     bool
	}{
		{name: "correct option", selected: []string{"A"}, want: true},
		{name: "nothing selected", selected: []string{}, want: false},
		{name: "wrong option", selected: []string{"B"}, want: false},
		{name: "correct plus wrong", selected: []string{"A", "B"}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsCorrect(model.QuestionTypeSingleChoice, tc.selected, []string{"A"})
			if got != tc.want {
				t.Fatalf("IsCorrect(%v) = %v, want %v", tc.selected, got, tc.want)
			}
		})
	}
}

func TestIsCorrect_TrueFalse(t *testing.T) {
	if !IsCorrect(model.QuestionTypeTrueFalse, []string{"true"}, []string{"true"}) {
		t.Fatal("expected true selection to be correct")
	}
	if IsCorrect(model.QuestionTypeTrueFalse, []string{"false"}, []string{"true"}) {
		t.Fatal("expected false selection to be wrong")
	}
	if IsCorrect(model.QuestionTypeTrueFalse, []string{"true", "false"}, []string{"true"}) {
		t.Fatal("expected both selections to be wrong")
	}
}

func TestIsCorrect_MultiAnswerExact(t *testing.T) {
	correct := []string{"A", "C"}
	tests := []struct {
		name     string
		selected []string
		want     bool
	}{
		{name: "exact match", selected: []string{"A", "C"}, want: true},
		{name: "exact match reordered", selected: []string{"C", "A"}, want: true},
		{name: "missing one", selected: []string{"A"}, want: false},
		{name: "extra one", selected: []string{"A", "C", "B"}, want: false},
		{name: "empty", selected: []string{}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := IsCorrect(model.QuestionTypeMultiAnswer, tc.selected, correct)
			if got != tc.want {
				t.Fatalf("IsCorrect(%v) = %v, want %v", tc.selected, got, tc.want)
			}
		})
	}
}

func TestIsCorrect_UnknownType(t *testing.T) {
	if IsCorrect(model.QuestionType("essay"), []string{"A"}, []string{"A"}) {
		t.Fatal("unknown question type must never score correct")
	}
}

func TestScore_Aggregation(t *testing.T) {
	qs := []model.Question{
		singleChoice("A", "A", "B"),
		singleChoice("B", "A", "B"),
		multiAnswer([]string{"A", "C"}, "A", "B", "C"),
		singleChoice("A", "A", "B"),
	}
	answers := map[uuid.UUID][]string{
		qs[0].ID: {"A"},
		qs[1].ID: {"B"},
		qs[2].ID: {"C", "A"},
		qs[3].ID: {"B"},
	}

	tests := []struct {
		name    string
		passing float64
		passed  bool
	}{
		{name: "passes below threshold", passing: 70, passed: true},
		{name: "passes at threshold", passing: 75, passed: true},
		{name: "fails above threshold", passing: 80, passed: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := Score(Input{Questions: qs, Answers: answers, PassingScore: tc.passing})
			if res.Score != 75.0 {
				t.Fatalf("score = %v, want 75", res.Score)
			}
			if res.CorrectAnswers != 3 || res.TotalQuestions != 4 {
				t.Fatalf("correct/total = %d/%d, want 3/4", res.CorrectAnswers, res.TotalQuestions)
			}
			if res.Passed != tc.passed {
				t.Fatalf("passed = %v, want %v", res.Passed, tc.passed)
			}
		})
	}
}

func TestScore_UnansweredCountsAsWrong(t *testing.T) {
	qs := []model.Question{singleChoice("A", "A", "B"), singleChoice("A", "A", "B")}
	res := Score(Input{
		Questions: qs,
		Answers:   map[uuid.UUID][]string{qs[0].ID: {"A"}},
	})

	if res.DetailedResults[1].Correct {
		t.Fatal("unanswered question scored correct")
	}
	if res.DetailedResults[1].SelectedOptions == nil {
		t.Fatal("unanswered question should report an empty selection, not nil")
	}
	if res.Score != 50 {
		t.Fatalf("score = %v, want 50", res.Score)
	}
}

func TestScore_DetailedResultsFollowQuestionOrder(t *testing.T) {
	qs := []model.Question{
		multiAnswer([]string{"A", "B"}, "A", "B", "C"),
		singleChoice("C", "A", "B", "C"),
	}
	res := Score(Input{Questions: qs, Answers: map[uuid.UUID][]string{qs[1].ID: {"C", "C"}}})

	for i, d := range res.DetailedResults {
		if d.QuestionID != qs[i].ID {
			t.Fatalf("detail %d is for %s, want %s", i, d.QuestionID, qs[i].ID)
		}
	}
	if got := res.DetailedResults[0].CorrectOptions; len(got) != 2 || got[0] != "A" || got[1] != "B" {
		t.Fatalf("correct options = %v, want [A B]", got)
	}
	if !res.DetailedResults[1].Correct {
		t.Fatal("duplicate selection of the correct option should collapse and score correct")
	}
}

func TestScore_AllCorrectAndNoneCorrect(t *testing.T) {
	qs := []model.Question{singleChoice("A", "A", "B")}

	all := Score(Input{Questions: qs, Answers: map[uuid.UUID][]string{qs[0].ID: {"A"}}, PassingScore: 100})
	if all.Score != 100 || !all.Passed {
		t.Fatalf("all correct: score=%v passed=%v", all.Score, all.Passed)
	}

	none := Score(Input{Questions: qs, PassingScore: 0})
	if none.Score != 0 || !none.Passed {
		t.Fatalf("zero threshold: score=%v passed=%v", none.Score, none.Passed)
	}
}

func TestScore_UnroundedScore(t *testing.T) {
	qs := []model.Question{singleChoice("A", "A", "B"), singleChoice("A", "A", "B"), singleChoice("A", "A", "B")}
	res := Score(Input{Questions: qs, Answers: map[uuid.UUID][]string{qs[0].ID: {"A"}}})

	want := 100.0 / 3.0
	if math.Abs(res.Score-want) > 1e-9 {
		t.Fatalf("score = %v, want %v", res.Score, want)
	}
}

func TestTimeTaken(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		end  *time.Time
		want int
	}{
		{name: "nil completion", end: nil, want: 0},
		{name: "whole seconds", end: ptr(start.Add(90 * time.Second)), want: 90},
		{name: "rounds down", end: ptr(start.Add(10*time.Second + 400*time.Millisecond)), want: 10},
		{name: "rounds up", end: ptr(start.Add(10*time.Second + 500*time.Millisecond)), want: 11},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := TimeTaken(start, tc.end); got != tc.want {
				t.Fatalf("TimeTaken = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]string{"B", "A", "B"})
	if len(got) != 2 || got[0] != "B" || got[1] != "A" {
		t.Fatalf("Normalize = %v, want [B A]", got)
	}
	if Normalize(nil) == nil {
		t.Fatal("Normalize(nil) returned nil")
	}
}

func ptr[T any](v T) *T { return &v }
