// Package store holds change metadata: status, patch sets, messages and approvals.
//
// The staging engine treats the store as an external collaborator. It only needs
// point reads, per-branch status listings and an all-or-nothing multi-change update;
// memory, badger and redis implementations are provided.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

var (
	// ErrChangeNotFound indicates that no change has the requested number or key
	ErrChangeNotFound = errors.New("change not found")
	// ErrChangeExists indicates that a change with the same number or key already exists
	ErrChangeExists = errors.New("change already exists")
	// ErrIdentityChanged indicates that an update tried to change a change's number, key or branch
	ErrIdentityChanged = errors.New("change identity cannot be updated")
)

// UpdateFunc mutates the loaded changes in place. Returning an error discards every mutation.
type UpdateFunc func(changes map[int]*Change) error

// Store defines the metadata operations the staging engine depends on
type Store interface {
	// Create stores a new change. A zero Number is assigned by the store.
	Create(ctx context.Context, change *Change) (*Change, error)
	// Get returns a copy of the change with the given number
	Get(ctx context.Context, number int) (*Change, error)
	// GetByKey returns the change carrying a Change-Id on a branch
	GetByKey(ctx context.Context, branch, key string) (*Change, error)
	// List returns the changes on a branch in any of the given statuses, ordered by number.
	// No statuses means every status.
	List(ctx context.Context, branch string, statuses ...Status) ([]*Change, error)
	// Update loads the given changes, applies fn and persists all of them or none
	Update(ctx context.Context, numbers []int, fn UpdateFunc) error
	// Ping checks the backend is reachable
	Ping(ctx context.Context) error
	Close() error
}

// NotFoundError names the missing change
type NotFoundError struct {
	Number int
	Key    string
}

func (e *NotFoundError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("change %s not found", e.Key)
	}
	return fmt.Sprintf("change %d not found", e.Number)
}

// Is returns true if the target error is ErrChangeNotFound
func (e *NotFoundError) Is(target error) bool {
	return target == ErrChangeNotFound
}

func matches(c *Change, branch string, statuses []Status) bool {
	if branch != "" && c.Branch != branch {
		return false
	}
	if len(statuses) == 0 {
		return true
	}
	for _, s := range statuses {
		if c.Status == s {
			return true
		}
	}
	return false
}

func sortByNumber(changes []*Change) {
	sort.Slice(changes, func(i, j int) bool { return changes[i].Number < changes[j].Number })
}

func uniqueNumbers(numbers []int) []int {
	seen := make(map[int]bool, len(numbers))
	out := make([]int, 0, len(numbers))
	for _, n := range numbers {
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	sort.Ints(out)
	return out
}

// applyUpdate runs fn over copies of loaded and checks identities are unchanged
func applyUpdate(loaded map[int]*Change, fn UpdateFunc) (map[int]*Change, error) {
	working := make(map[int]*Change, len(loaded))
	for n, c := range loaded {
		working[n] = c.Clone()
	}
	if err := fn(working); err != nil {
		return nil, err
	}
	for n, c := range working {
		orig, ok := loaded[n]
		if !ok || c == nil || c.Number != orig.Number || c.Key != orig.Key || c.Branch != orig.Branch {
			return nil, fmt.Errorf("%w: change %d", ErrIdentityChanged, n)
		}
	}
	return working, nil
}

func validateNew(change *Change) error {
	if change == nil || change.Key == "" || change.Branch == "" {
		return fmt.Errorf("change needs a key and a branch")
	}
	return nil
}
