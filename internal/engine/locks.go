package engine

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"
)

// LockDomain separates the locks of one branch
type LockDomain string

// Lock domains. Operations that need both take build before stage.
const (
	StageLock LockDomain = "stage"
	BuildLock LockDomain = "build"
)

// LockSet hands out per-branch locks. Each lock is an in-process mutex plus, when a
// directory is configured, a file lock so separate processes on the same repository
// serialize too. Acquisition blocks without a timeout.
type LockSet struct {
	dir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockSet creates a lock set keeping lock files in dir. An empty dir means
// in-process locking only.
func NewLockSet(dir string) *LockSet {
	return &LockSet{dir: dir, locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the domain lock of branch and returns its release function
func (l *LockSet) Lock(domain LockDomain, branch string) (func(), error) {
	name := fmt.Sprintf("%s-%s", domain, url.PathEscape(branch))

	l.mu.Lock()
	mu, ok := l.locks[name]
	if !ok {
		mu = &sync.Mutex{}
		l.locks[name] = mu
	}
	l.mu.Unlock()

	mu.Lock()
	if l.dir == "" {
		return mu.Unlock, nil
	}

	if err := os.MkdirAll(l.dir, 0o755); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	fl := flock.New(filepath.Join(l.dir, name+".lock"))
	if err := fl.Lock(); err != nil {
		mu.Unlock()
		return nil, fmt.Errorf("failed to lock %s: %w", name, err)
	}
	return func() {
		_ = fl.Unlock()
		mu.Unlock()
	}, nil
}

// LockAll acquires the given domains of branch in order and releases them in reverse
func (l *LockSet) LockAll(branch string, domains ...LockDomain) (func(), error) {
	var releases []func()
	release := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, d := range domains {
		unlock, err := l.Lock(d, branch)
		if err != nil {
			release()
			return nil, err
		}
		releases = append(releases, unlock)
	}
	return release, nil
}
