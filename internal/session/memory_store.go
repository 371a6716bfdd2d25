package session

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/examcore/internal/model"
)

type activeKey struct {
	examID      uuid.UUID
	candidateID string
}

// MemoryStore is a Store kept in process memory. Values are copied on the
// way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*model.ExamSession
	active   map[activeKey]uuid.UUID
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*model.ExamSession),
		active:   make(map[activeKey]uuid.UUID),
	}
}

func (m *MemoryStore) Create(_ context.Context, s *model.ExamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := activeKey{s.ExamID, s.CandidateID}
	if s.Status == model.SessionStatusInProgress {
		if _, ok := m.active[key]; ok {
			return ErrActiveSessionExists
		}
		m.active[key] = s.ID
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id uuid.UUID) (*model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return s.Clone(), nil
}

func (m *MemoryStore) FindActive(_ context.Context, examID uuid.UUID, candidateID string) (*model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.active[activeKey{examID, candidateID}]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return m.sessions[id].Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *model.ExamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cur, ok := m.sessions[s.ID]
	if !ok {
		return ErrSessionNotFound
	}
	if cur.Status.Terminal() {
		return ErrSessionFinished
	}
	if s.Status.Terminal() {
		key := activeKey{s.ExamID, s.CandidateID}
		if m.active[key] == s.ID {
			delete(m.active, key)
		}
	}
	m.sessions[s.ID] = s.Clone()
	return nil
}

// ListExpired returns in-progress sessions whose expiry is before cutoff,
// except those in skip.
func (m *MemoryStore) ListExpired(_ context.Context, cutoff time.Time, skip []uuid.UUID, limit int) ([]model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ExamSession
	for _, id := range m.active {
		s := m.sessions[id]
		if s.ExpiresAt.Before(cutoff) && !slices.Contains(skip, id) {
			out = append(out, *s.Clone())
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

// ListByCandidate returns a candidate's sessions, newest first.
func (m *MemoryStore) ListByCandidate(_ context.Context, candidateID string) ([]model.ExamSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.ExamSession
	for _, s := range m.sessions {
		if s.CandidateID == candidateID {
			out = append(out, *s.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out, nil
}
