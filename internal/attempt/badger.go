package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	badger "github.com/dgraph-io/badger/v4"
)

// Key layout:
//
//	attempt/<id>           -> Attempt json
//	subject/<sid>/<id>     -> attempt id (listing index)
//	task/<attempt id>      -> Task json
const (
	attemptPrefix = "attempt/"
	subjectPrefix = "subject/"
	taskPrefix    = "task/"
)

// BadgerStore persists attempts in an embedded BadgerDB. Per-attempt
// serialization is enforced with a lock table on top of badger transactions,
// so an UpdateAttempt callback always observes the latest committed state.
type BadgerStore struct {
	db *badger.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// OpenBadger opens (creating if needed) the store at dir. An empty dir opens
// an in-memory database, useful for tests and dev runs.
func OpenBadger(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", dir, err)
	}
	return &BadgerStore{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close releases the underlying database.
func (s *BadgerStore) Close() error { return s.db.Close() }

func (s *BadgerStore) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

func attemptKey(id string) []byte { return []byte(attemptPrefix + id) }

func subjectKey(subjectID, id string) []byte {
	return []byte(subjectPrefix + subjectID + "/" + id)
}

func taskKey(attemptID string) []byte { return []byte(taskPrefix + attemptID) }

func (s *BadgerStore) CreateAttempt(_ context.Context, a *Attempt) error {
	value, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal attempt %s: %w", a.ID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(attemptKey(a.ID), value); err != nil {
			return err
		}
		return txn.Set(subjectKey(a.SubjectID, a.ID), []byte(a.ID))
	})
}

func (s *BadgerStore) GetAttempt(_ context.Context, id string) (*Attempt, error) {
	var a *Attempt
	err := s.db.View(func(txn *badger.Txn) error {
		got, err := readAttempt(txn, id)
		if err != nil {
			return err
		}
		a = got
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func readAttempt(txn *badger.Txn, id string) (*Attempt, error) {
	item, err := txn.Get(attemptKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrAttemptNotFound
	}
	if err != nil {
		return nil, err
	}
	var a Attempt
	if err := item.Value(func(value []byte) error {
		return json.Unmarshal(value, &a)
	}); err != nil {
		return nil, fmt.Errorf("decode attempt %s: %w", id, err)
	}
	return &a, nil
}

func (s *BadgerStore) UpdateAttempt(_ context.Context, id string, fn func(*Attempt) error) (*Attempt, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	var updated *Attempt
	err := s.db.Update(func(txn *badger.Txn) error {
		a, err := readAttempt(txn, id)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		value, err := json.Marshal(a)
		if err != nil {
			return fmt.Errorf("marshal attempt %s: %w", id, err)
		}
		if err := txn.Set(attemptKey(id), value); err != nil {
			return err
		}
		updated = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *BadgerStore) ListAttemptsBySubject(_ context.Context, subjectID string) ([]*Attempt, error) {
	var out []*Attempt
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(subjectPrefix + subjectID + "/")
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var id string
			if err := it.Item().Value(func(value []byte) error {
				id = string(value)
				return nil
			}); err != nil {
				return err
			}
			a, err := readAttempt(txn, id)
			if err != nil {
				return err
			}
			out = append(out, a)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortAttempts(out)
	return out, nil
}

func (s *BadgerStore) ListAttemptsByStatus(_ context.Context, status Status) ([]*Attempt, error) {
	var out []*Attempt
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(attemptPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			var a Attempt
			if err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &a)
			}); err != nil {
				return err
			}
			if a.Status == status {
				dup := a
				out = append(out, &dup)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortAttempts(out)
	return out, nil
}

func (s *BadgerStore) SaveTask(_ context.Context, t *Task) error {
	value, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal task for attempt %s: %w", t.AttemptID, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(taskKey(t.AttemptID), value)
	})
}

func (s *BadgerStore) GetTask(_ context.Context, attemptID string) (*Task, error) {
	var t Task
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(taskKey(attemptID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrTaskNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(value []byte) error {
			return json.Unmarshal(value, &t)
		})
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}
