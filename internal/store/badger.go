package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the badger-backed store
type BadgerConfig struct {
	// Path is the database directory. Required unless InMemory is set.
	Path string
	// InMemory keeps everything in memory, for tests
	InMemory bool
	// SyncWrites fsyncs every commit
	SyncWrites bool
	// Logger receives badger's internal logging; nil disables it
	Logger *slog.Logger
}

// DefaultBadgerConfig returns a durable configuration rooted at path
func DefaultBadgerConfig(path string) BadgerConfig {
	return BadgerConfig{Path: path, SyncWrites: true}
}

// InMemoryBadgerConfig returns a configuration for an in-memory database
func InMemoryBadgerConfig() BadgerConfig {
	return BadgerConfig{InMemory: true}
}

// badgerLogger adapts slog.Logger to badger's Logger interface
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// maxTxnRetries bounds retries of a batch that lost an optimistic conflict
const maxTxnRetries = 5

var (
	badgerChangePrefix = []byte("change/")
	badgerNextKey      = []byte("meta/next")
)

// BadgerStore persists changes in a badger database
type BadgerStore struct {
	db *badger.DB
}

// OpenBadgerStore opens (creating if needed) a badger database
func OpenBadgerStore(cfg BadgerConfig) (*BadgerStore, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return nil, errors.New("badger: path is required for persistent mode")
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func badgerChangeKey(number int) []byte {
	return []byte(fmt.Sprintf("change/%010d", number))
}

func badgerIndexKey(branch, key string) []byte {
	return []byte("key/" + branch + "/" + key)
}

func badgerGet(txn *badger.Txn, key []byte, v any) (bool, error) {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func badgerSet(txn *badger.Txn, key []byte, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, raw)
}

func (s *BadgerStore) loadChange(txn *badger.Txn, number int) (*Change, error) {
	var c Change
	ok, err := badgerGet(txn, badgerChangeKey(number), &c)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &NotFoundError{Number: number}
	}
	return &c, nil
}

// withRetry runs a read-write transaction, retrying optimistic conflicts
func (s *BadgerStore) withRetry(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("badger: context cancelled: %w", ctxErr)
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// Create stores a new change
func (s *BadgerStore) Create(ctx context.Context, change *Change) (*Change, error) {
	if err := validateNew(change); err != nil {
		return nil, err
	}

	var created *Change
	err := s.withRetry(ctx, func(txn *badger.Txn) error {
		var existing int
		ok, err := badgerGet(txn, badgerIndexKey(change.Branch, change.Key), &existing)
		if err != nil {
			return err
		}
		if ok {
			return ErrChangeExists
		}

		next := 1
		if _, err := badgerGet(txn, badgerNextKey, &next); err != nil {
			return err
		}

		created = change.Clone()
		if created.Number == 0 {
			created.Number = next
		}
		if _, err := txn.Get(badgerChangeKey(created.Number)); err == nil {
			return ErrChangeExists
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if created.Number >= next {
			if err := badgerSet(txn, badgerNextKey, created.Number+1); err != nil {
				return err
			}
		}
		if err := badgerSet(txn, badgerIndexKey(created.Branch, created.Key), created.Number); err != nil {
			return err
		}
		return badgerSet(txn, badgerChangeKey(created.Number), created)
	})
	if err != nil {
		return nil, err
	}
	return created.Clone(), nil
}

// Get returns a change by number
func (s *BadgerStore) Get(_ context.Context, number int) (*Change, error) {
	var c *Change
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		c, err = s.loadChange(txn, number)
		return err
	})
	return c, err
}

// GetByKey returns the change with a Change-Id on a branch
func (s *BadgerStore) GetByKey(_ context.Context, branch, key string) (*Change, error) {
	var c *Change
	err := s.db.View(func(txn *badger.Txn) error {
		var number int
		ok, err := badgerGet(txn, badgerIndexKey(branch, key), &number)
		if err != nil {
			return err
		}
		if !ok {
			return &NotFoundError{Key: key}
		}
		c, err = s.loadChange(txn, number)
		return err
	})
	return c, err
}

// List scans every change and filters by branch and status
func (s *BadgerStore) List(_ context.Context, branch string, statuses ...Status) ([]*Change, error) {
	var out []*Change
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = badgerChangePrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var c Change
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			}); err != nil {
				return fmt.Errorf("badger: decode %s: %w", it.Item().Key(), err)
			}
			if matches(&c, branch, statuses) {
				out = append(out, &c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortByNumber(out)
	return out, nil
}

// Update applies fn inside one badger transaction
func (s *BadgerStore) Update(ctx context.Context, numbers []int, fn UpdateFunc) error {
	return s.withRetry(ctx, func(txn *badger.Txn) error {
		loaded := make(map[int]*Change, len(numbers))
		for _, n := range uniqueNumbers(numbers) {
			c, err := s.loadChange(txn, n)
			if err != nil {
				return err
			}
			loaded[n] = c
		}

		updated, err := applyUpdate(loaded, fn)
		if err != nil {
			return err
		}
		for n, c := range updated {
			if err := badgerSet(txn, badgerChangeKey(n), c); err != nil {
				return err
			}
		}
		return nil
	})
}

// Ping checks the database is open
func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: database closed")
	}
	return nil
}

// Close closes the database
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

