package pool

import (
	"errors"
	"slices"
	"testing"

	"github.com/google/uuid"

	"github.com/stemsi/examcore/internal/model"
)

func newInventory(t *testing.T, sizes ...int) ([]uuid.UUID, map[uuid.UUID][]uuid.UUID) {
	t.Helper()
	subjects := make([]uuid.UUID, len(sizes))
	inv := make(map[uuid.UUID][]uuid.UUID, len(sizes))
	for i, n := range sizes {
		subjects[i] = uuid.New()
		for j := 0; j < n; j++ {
			inv[subjects[i]] = append(inv[subjects[i]], uuid.New())
		}
	}
	return subjects, inv
}

func TestValidate(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	tests := []struct {
		name      string
		entries   []model.PoolEntry
		available int
		wantErr   error
	}{
		{name: "zero sum rejected", entries: []model.PoolEntry{{SubjectID: s1, Count: 0}}, available: 10, wantErr: ErrPoolEmpty},
		{name: "no entries rejected", entries: nil, available: 10, wantErr: ErrPoolEmpty},
		{name: "exactly available accepted", entries: []model.PoolEntry{{SubjectID: s1, Count: 6}, {SubjectID: s2, Count: 4}}, available: 10},
		{name: "one over available rejected", entries: []model.PoolEntry{{SubjectID: s1, Count: 7}, {SubjectID: s2, Count: 4}}, available: 10, wantErr: ErrPoolExceedsInventory},
		{name: "negative count rejected", entries: []model.PoolEntry{{SubjectID: s1, Count: 5}, {SubjectID: s2, Count: -1}}, available: 10, wantErr: ErrInvalidPoolCount},
		{name: "single question accepted", entries: []model.PoolEntry{{SubjectID: s1, Count: 1}}, available: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(model.QuestionPool{Entries: tc.entries}, tc.available)
			if tc.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	s1, s2 := uuid.New(), uuid.New()
	got := Normalize(model.QuestionPool{
		Total: 99,
		Entries: []model.PoolEntry{
			{SubjectID: s1, Count: 2},
			{SubjectID: s2, Count: 0},
			{SubjectID: s1, Count: 3},
		},
	})

	if got.Total != 5 {
		t.Fatalf("total = %d, want 5", got.Total)
	}
	if len(got.Entries) != 1 || got.Entries[0].SubjectID != s1 || got.Entries[0].Count != 5 {
		t.Fatalf("entries = %+v", got.Entries)
	}
}

func TestSeed_Stable(t *testing.T) {
	exam := uuid.New()
	if Seed(exam, "cand-1") != Seed(exam, "cand-1") {
		t.Fatal("seed is not stable for equal inputs")
	}
	if Seed(exam, "cand-1") == Seed(exam, "cand-2") {
		t.Fatal("different candidates produced the same seed")
	}
}

func TestDraw_RespectsCountsAndIsDeterministic(t *testing.T) {
	subjects, inv := newInventory(t, 10, 6)
	p := model.QuestionPool{Entries: []model.PoolEntry{
		{SubjectID: subjects[0], Count: 4},
		{SubjectID: subjects[1], Count: 2},
	}}

	first, err := Draw(p, inv, 42)
	if err != nil {
		t.Fatalf("draw: %v", err)
	}
	if len(first) != 6 {
		t.Fatalf("drew %d questions, want 6", len(first))
	}

	perSubject := map[uuid.UUID]int{}
	seen := map[uuid.UUID]bool{}
	for _, id := range first {
		if seen[id] {
			t.Fatalf("question %s drawn twice", id)
		}
		seen[id] = true
		for s, ids := range inv {
			if slices.Contains(ids, id) {
				perSubject[s]++
			}
		}
	}
	if perSubject[subjects[0]] != 4 || perSubject[subjects[1]] != 2 {
		t.Fatalf("per-subject counts = %v", perSubject)
	}

	// Reversed storage order must not change the draw.
	shuffled := map[uuid.UUID][]uuid.UUID{}
	for s, ids := range inv {
		rev := append([]uuid.UUID(nil), ids...)
		slices.Reverse(rev)
		shuffled[s] = rev
	}
	second, err := Draw(p, shuffled, 42)
	if err != nil {
		t.Fatalf("second draw: %v", err)
	}
	if !slices.Equal(first, second) {
		t.Fatal("draw is not deterministic for equal seed and inventory")
	}
}

func TestDraw_Exhausted(t *testing.T) {
	subjects, inv := newInventory(t, 2)
	_, err := Draw(model.QuestionPool{Entries: []model.PoolEntry{{SubjectID: subjects[0], Count: 3}}}, inv, 1)
	if !errors.Is(err, ErrPoolExhausted) {
		t.Fatalf("error = %v, want ErrPoolExhausted", err)
	}
}

func TestOrder(t *testing.T) {
	_, inv := newInventory(t, 20)
	var ids []uuid.UUID
	for _, v := range inv {
		ids = v
	}
	orig := append([]uuid.UUID(nil), ids...)

	a := Order(ids, 7)
	b := Order(ids, 7)
	if !slices.Equal(a, b) {
		t.Fatal("order is not deterministic")
	}
	if !slices.Equal(ids, orig) {
		t.Fatal("Order modified its input")
	}

	sortedA := append([]uuid.UUID(nil), a...)
	slices.SortFunc(sortedA, func(x, y uuid.UUID) int { return compareUUID(x, y) })
	sortedOrig := append([]uuid.UUID(nil), orig...)
	slices.SortFunc(sortedOrig, func(x, y uuid.UUID) int { return compareUUID(x, y) })
	if !slices.Equal(sortedA, sortedOrig) {
		t.Fatal("Order is not a permutation of its input")
	}
}

func compareUUID(a, b uuid.UUID) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
