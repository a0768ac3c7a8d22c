package task

import (
	"context"
	"sync"
	"time"
)

// Store abstracts persistence for task records.
// The default implementation is in-memory; a sqlite-backed implementation
// lives in gorm_store.go and is selected via configuration. Implementations
// must be safe for concurrent use, must hand out snapshots rather than
// aliases, and must reject Update on a terminal record with
// ErrInvalidTransition.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (Task, error)
	Update(ctx context.Context, id string, mutate func(*Task)) (Task, error)
	List(ctx context.Context) ([]Task, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

type memoryEntry struct {
	mu   sync.Mutex
	task Task
}

// memoryStore keeps records in a map guarded by a read-write mutex; each
// record carries its own mutex so operations on different tasks never
// contend with one another.
type memoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemoryStore() Store { //nolint:ireturn
	return &memoryStore{entries: make(map[string]*memoryEntry)}
}

func (s *memoryStore) Create(_ context.Context, t *Task) error {
	now := time.Now()
	t.CreatedAt = now
	t.UpdatedAt = now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[t.ID]; exists {
		return ErrDuplicateTask
	}
	s.entries[t.ID] = &memoryEntry{task: *t}
	return nil
}

func (s *memoryStore) lookup(id string) (*memoryEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[id]
	return entry, ok
}

func (s *memoryStore) Get(_ context.Context, id string) (Task, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.task, nil
}

// Update applies the mutator under the record's own lock, so readers never
// observe a partially applied mutation.
func (s *memoryStore) Update(_ context.Context, id string, mutate func(*Task)) (Task, error) {
	entry, ok := s.lookup(id)
	if !ok {
		return Task{}, ErrTaskNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.task.Terminal() {
		return Task{}, ErrInvalidTransition
	}
	mutate(&entry.task)
	entry.task.UpdatedAt = time.Now()
	return entry.task, nil
}

func (s *memoryStore) List(_ context.Context) ([]Task, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	tasks := make([]Task, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		tasks = append(tasks, entry.task)
		entry.mu.Unlock()
	}
	return tasks, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[id]; !ok {
		return ErrTaskNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *memoryStore) Close() error { return nil }
