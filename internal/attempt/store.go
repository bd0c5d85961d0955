package attempt

import (
	"context"
	"sort"
	"sync"
)

// Store is the durable record of attempts and their recommendation tasks.
// UpdateAttempt serializes mutations per attempt id: the callback observes
// the latest state and its result is persisted atomically, or discarded when
// the callback errors.
type Store interface {
	CreateAttempt(ctx context.Context, a *Attempt) error
	GetAttempt(ctx context.Context, id string) (*Attempt, error)
	UpdateAttempt(ctx context.Context, id string, fn func(*Attempt) error) (*Attempt, error)
	ListAttemptsBySubject(ctx context.Context, subjectID string) ([]*Attempt, error)
	ListAttemptsByStatus(ctx context.Context, status Status) ([]*Attempt, error)

	SaveTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, attemptID string) (*Task, error)
}

// MemoryStore is an in-process store used by tests and single-node dev runs.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[string]*Attempt
	tasks    map[string]*Task
	locks    map[string]*sync.Mutex
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[string]*Attempt),
		tasks:    make(map[string]*Task),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func (s *MemoryStore) CreateAttempt(_ context.Context, a *Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts[a.ID] = a.clone()
	return nil
}

func (s *MemoryStore) GetAttempt(_ context.Context, id string) (*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return a.clone(), nil
}

func (s *MemoryStore) UpdateAttempt(ctx context.Context, id string, fn func(*Attempt) error) (*Attempt, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	current, err := s.GetAttempt(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(current); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.attempts[id] = current.clone()
	s.mu.Unlock()
	return current, nil
}

func (s *MemoryStore) ListAttemptsBySubject(_ context.Context, subjectID string) ([]*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Attempt
	for _, a := range s.attempts {
		if a.SubjectID == subjectID {
			out = append(out, a.clone())
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *MemoryStore) ListAttemptsByStatus(_ context.Context, status Status) ([]*Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Attempt
	for _, a := range s.attempts {
		if a.Status == status {
			out = append(out, a.clone())
		}
	}
	sortAttempts(out)
	return out, nil
}

func (s *MemoryStore) SaveTask(_ context.Context, t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dup := *t
	s.tasks[t.AttemptID] = &dup
	return nil
}

func (s *MemoryStore) GetTask(_ context.Context, attemptID string) (*Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[attemptID]
	if !ok {
		return nil, ErrTaskNotFound
	}
	dup := *t
	return &dup, nil
}

// newest first, id as tiebreaker for stable listings
func sortAttempts(attempts []*Attempt) {
	sort.Slice(attempts, func(i, j int) bool {
		if attempts[i].StartedAt.Equal(attempts[j].StartedAt) {
			return attempts[i].ID < attempts[j].ID
		}
		return attempts[i].StartedAt.After(attempts[j].StartedAt)
	})
}
