// Package pool validates question-pool specifications and materializes
// seeded, reproducible draws from a course's question inventory.
package pool

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"math/rand"
	"slices"

	"github.com/google/uuid"

	"github.com/stemsi/examcore/internal/model"
)

var (
	ErrPoolEmpty            = errors.New("question pool must request at least one question")
	ErrPoolExceedsInventory = errors.New("question pool requests more questions than the course holds")
	ErrInvalidPoolCount     = errors.New("question pool count must not be negative")
	ErrPoolExhausted        = errors.New("subject holds fewer questions than the pool requests")
)

// Validate checks p against the number of questions available in the course.
// Nothing is persisted on failure.
func Validate(p model.QuestionPool, available int) error {
	for _, e := range p.Entries {
		if e.Count < 0 {
			return fmt.Errorf("%w: subject %s requests %d", ErrInvalidPoolCount, e.SubjectID, e.Count)
		}
	}
	sum := p.Sum()
	if sum < 1 {
		return ErrPoolEmpty
	}
	if sum > available {
		return fmt.Errorf("%w: requested %d, available %d", ErrPoolExceedsInventory, sum, available)
	}
	return nil
}

// Normalize merges duplicate subject entries, drops zero counts and sets
// Total to the sum of counts. Entry order follows first appearance.
func Normalize(p model.QuestionPool) model.QuestionPool {
	idx := make(map[uuid.UUID]int, len(p.Entries))
	out := make([]model.PoolEntry, 0, len(p.Entries))
	for _, e := range p.Entries {
		if e.Count == 0 {
			continue
		}
		if i, ok := idx[e.SubjectID]; ok {
			out[i].Count += e.Count
			continue
		}
		idx[e.SubjectID] = len(out)
		out = append(out, e)
	}
	n := model.QuestionPool{Entries: out}
	n.Total = n.Sum()
	return n
}

// Seed derives a stable draw seed for one candidate's attempt at an exam.
func Seed(examID uuid.UUID, candidateID string) int64 {
	sum := sha256.Sum256([]byte(examID.String() + ":" + candidateID))
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// Draw selects questions per subject in entry order, then shuffles the
// combined selection. Equal inputs always yield the same result.
func Draw(p model.QuestionPool, inventory map[uuid.UUID][]uuid.UUID, seed int64) ([]uuid.UUID, error) {
	r := rand.New(rand.NewSource(seed))
	selected := make([]uuid.UUID, 0, p.Sum())

	for _, e := range p.Entries {
		if e.Count <= 0 {
			continue
		}
		ids := sortedCopy(inventory[e.SubjectID])
		if len(ids) < e.Count {
			return nil, fmt.Errorf("%w: subject %s has %d, requested %d", ErrPoolExhausted, e.SubjectID, len(ids), e.Count)
		}
		// Partial Fisher-Yates: the first Count slots end up uniformly chosen.
		for i := 0; i < e.Count; i++ {
			j := i + r.Intn(len(ids)-i)
			ids[i], ids[j] = ids[j], ids[i]
		}
		selected = append(selected, ids[:e.Count]...)
	}

	r.Shuffle(len(selected), func(i, j int) {
		selected[i], selected[j] = selected[j], selected[i]
	})
	return selected, nil
}

// Order returns a seeded permutation of ids. The input is not modified.
func Order(ids []uuid.UUID, seed int64) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}

func sortedCopy(ids []uuid.UUID) []uuid.UUID {
	out := append([]uuid.UUID(nil), ids...)
	// Storage returns rows in no stable order.
	slices.SortFunc(out, func(a, b uuid.UUID) int {
		return bytes.Compare(a[:], b[:])
	})
	return out
}
