package worker

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/examcore/internal/model"
	"github.com/stemsi/examcore/internal/session"
)

type fakeWriter struct {
	batchErr error
	batches  int
	singles  []uuid.UUID
}

func (f *fakeWriter) InsertBatch(_ context.Context, batch []*model.ExamResult) error {
	f.batches++
	return f.batchErr
}

func (f *fakeWriter) InsertOne(_ context.Context, res *model.ExamResult) error {
	f.singles = append(f.singles, res.ExamSessionID)
	return nil
}

func TestResultWorker_FlushBatch(t *testing.T) {
	w := &fakeWriter{}
	rw := NewResultWorker(w, nil, zerolog.Nop())

	rw.flushSafe(context.Background(), []*model.ExamResult{{ExamSessionID: uuid.New()}, {ExamSessionID: uuid.New()}})
	if w.batches != 1 || len(w.singles) != 0 {
		t.Fatalf("batches=%d singles=%d, want 1 and 0", w.batches, len(w.singles))
	}
}

func TestResultWorker_FallbackToSingles(t *testing.T) {
	w := &fakeWriter{batchErr: errors.New("deadlock detected")}
	rw := NewResultWorker(w, nil, zerolog.Nop())

	a, b := uuid.New(), uuid.New()
	rw.flushSafe(context.Background(), []*model.ExamResult{{ExamSessionID: a}, {ExamSessionID: b}})
	if len(w.singles) != 2 || w.singles[0] != a || w.singles[1] != b {
		t.Fatalf("singles = %v, want [%s %s]", w.singles, a, b)
	}
}

func TestResultWorker_EmptyBatchIsNoop(t *testing.T) {
	w := &fakeWriter{}
	NewResultWorker(w, nil, zerolog.Nop()).flushSafe(context.Background(), nil)
	if w.batches != 0 {
		t.Fatalf("batches = %d, want 0", w.batches)
	}
}

type fakeLister struct {
	cutoff   time.Time
	skip     []uuid.UUID
	sessions []model.ExamSession
}

func (f *fakeLister) ListExpired(_ context.Context, cutoff time.Time, skip []uuid.UUID, _ int) ([]model.ExamSession, error) {
	f.cutoff = cutoff
	f.skip = skip
	var out []model.ExamSession
	for _, s := range f.sessions {
		if !slices.Contains(skip, s.ID) {
			out = append(out, s)
		}
	}
	return out, nil
}

type fakeExpirer struct {
	errs map[uuid.UUID]error
	seen []uuid.UUID
}

func (f *fakeExpirer) ExpireSession(_ context.Context, s *model.ExamSession) error {
	f.seen = append(f.seen, s.ID)
	return f.errs[s.ID]
}

func TestExpiryWorker_Sweep(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	ok1, finished, broken := uuid.New(), uuid.New(), uuid.New()

	lister := &fakeLister{sessions: []model.ExamSession{{ID: ok1}, {ID: finished}, {ID: broken}}}
	expirer := &fakeExpirer{errs: map[uuid.UUID]error{
		finished: session.ErrSessionFinished,
		broken:   errors.New("connection reset"),
	}}
	w := NewExpiryWorker(lister, expirer, time.Minute, 15*time.Second, func() time.Time { return now }, zerolog.Nop())

	if got := w.Sweep(context.Background()); got != 1 {
		t.Fatalf("closed = %d, want 1", got)
	}
	if len(expirer.seen) != 3 {
		t.Fatalf("expirer saw %d sessions, want 3", len(expirer.seen))
	}
	if want := now.Add(-15 * time.Second); !lister.cutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", lister.cutoff, want)
	}
}

func TestExpiryWorker_FailingSessionIsSkippedUntilRetry(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	ok1, broken := uuid.New(), uuid.New()

	lister := &fakeLister{sessions: []model.ExamSession{{ID: broken}, {ID: ok1}}}
	expirer := &fakeExpirer{errs: map[uuid.UUID]error{broken: session.ErrQuestionSetMismatch}}
	w := NewExpiryWorker(lister, expirer, time.Minute, 0, func() time.Time { return now }, zerolog.Nop())

	w.Sweep(context.Background())
	if len(lister.skip) != 0 {
		t.Fatalf("first sweep skipped %v, want none", lister.skip)
	}

	expirer.seen = nil
	now = now.Add(time.Minute)
	w.Sweep(context.Background())
	if len(lister.skip) != 1 || lister.skip[0] != broken {
		t.Fatalf("second sweep skipped %v, want [%s]", lister.skip, broken)
	}
	if slices.Contains(expirer.seen, broken) {
		t.Fatal("failing session retried inside its delay")
	}

	expirer.seen = nil
	now = now.Add(ExpiryRetryAfter)
	w.Sweep(context.Background())
	if len(lister.skip) != 0 || !slices.Contains(expirer.seen, broken) {
		t.Fatalf("after the delay: skip = %v, seen = %v; want the session retried", lister.skip, expirer.seen)
	}
}
