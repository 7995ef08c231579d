package store

import (
	"context"
	"sync"
)

// MemoryStore keeps changes in process memory. It is safe for concurrent use.
type MemoryStore struct {
	mu      sync.RWMutex
	changes map[int]*Change
	next    int
}

// NewMemoryStore constructs an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{changes: make(map[int]*Change), next: 1}
}

// Create stores a new change
func (s *MemoryStore) Create(_ context.Context, change *Change) (*Change, error) {
	if err := validateNew(change); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.changes {
		if c.Branch == change.Branch && c.Key == change.Key {
			return nil, ErrChangeExists
		}
	}

	created := change.Clone()
	if created.Number == 0 {
		created.Number = s.next
	}
	if _, ok := s.changes[created.Number]; ok {
		return nil, ErrChangeExists
	}
	if created.Number >= s.next {
		s.next = created.Number + 1
	}
	s.changes[created.Number] = created
	return created.Clone(), nil
}

// Get returns a copy of a change
func (s *MemoryStore) Get(_ context.Context, number int) (*Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.changes[number]
	if !ok {
		return nil, &NotFoundError{Number: number}
	}
	return c.Clone(), nil
}

// GetByKey returns the change with a Change-Id on a branch
func (s *MemoryStore) GetByKey(_ context.Context, branch, key string) (*Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.changes {
		if c.Branch == branch && c.Key == key {
			return c.Clone(), nil
		}
	}
	return nil, &NotFoundError{Key: key}
}

// List returns matching changes ordered by number
func (s *MemoryStore) List(_ context.Context, branch string, statuses ...Status) ([]*Change, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*Change
	for _, c := range s.changes {
		if matches(c, branch, statuses) {
			out = append(out, c.Clone())
		}
	}
	sortByNumber(out)
	return out, nil
}

// Update applies fn to the given changes under the store lock
func (s *MemoryStore) Update(_ context.Context, numbers []int, fn UpdateFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make(map[int]*Change, len(numbers))
	for _, n := range uniqueNumbers(numbers) {
		c, ok := s.changes[n]
		if !ok {
			return &NotFoundError{Number: n}
		}
		loaded[n] = c
	}

	updated, err := applyUpdate(loaded, fn)
	if err != nil {
		return err
	}
	for n, c := range updated {
		s.changes[n] = c
	}
	return nil
}

// Ping always succeeds
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op
func (s *MemoryStore) Close() error {
	return nil
}
