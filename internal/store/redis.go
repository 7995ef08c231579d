package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps changes in redis so several stageline servers can share them.
// Batches use WATCH/MULTI optimistic transactions.
type RedisStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

// NewRedisStore wraps a redis client; keys are namespaced by keyPrefix
func NewRedisStore(rdb redis.UniversalClient, keyPrefix string) *RedisStore {
	return &RedisStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *RedisStore) key(parts ...string) string {
	prefix := s.keyPrefix
	if prefix == "" {
		prefix = "stageline"
	}
	k := prefix
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (s *RedisStore) changeKey(number int) string {
	return s.key("change", strconv.Itoa(number))
}

func (s *RedisStore) indexKey(branch, key string) string {
	return s.key("key", branch, key)
}

func (s *RedisStore) branchKey(branch string) string {
	return s.key("branch", branch)
}

func decodeChange(raw string) (*Change, error) {
	var c Change
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Create stores a new change
func (s *RedisStore) Create(ctx context.Context, change *Change) (*Change, error) {
	if err := validateNew(change); err != nil {
		return nil, err
	}

	created := change.Clone()
	if created.Number == 0 {
		n, err := s.rdb.Incr(ctx, s.key("seq")).Result()
		if err != nil {
			return nil, err
		}
		created.Number = int(n)
	}

	raw, err := json.Marshal(created)
	if err != nil {
		return nil, err
	}

	idx := s.indexKey(created.Branch, created.Key)
	ck := s.changeKey(created.Number)
	err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, idx, ck).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return ErrChangeExists
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, ck, raw, 0)
			pipe.Set(ctx, idx, created.Number, 0)
			pipe.SAdd(ctx, s.branchKey(created.Branch), created.Number)
			return nil
		})
		return err
	}, idx, ck)
	if err != nil {
		return nil, err
	}
	return created, nil
}

// Get returns a change by number
func (s *RedisStore) Get(ctx context.Context, number int) (*Change, error) {
	raw, err := s.rdb.Get(ctx, s.changeKey(number)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Number: number}
	}
	if err != nil {
		return nil, err
	}
	return decodeChange(raw)
}

// GetByKey returns the change with a Change-Id on a branch
func (s *RedisStore) GetByKey(ctx context.Context, branch, key string) (*Change, error) {
	number, err := s.rdb.Get(ctx, s.indexKey(branch, key)).Int()
	if errors.Is(err, redis.Nil) {
		return nil, &NotFoundError{Key: key}
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, number)
}

// List reads every change of a branch and filters by status
func (s *RedisStore) List(ctx context.Context, branch string, statuses ...Status) ([]*Change, error) {
	var members []string
	var err error
	if branch != "" {
		members, err = s.rdb.SMembers(ctx, s.branchKey(branch)).Result()
	} else {
		members, err = s.allMembers(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(members) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(members))
	for _, m := range members {
		keys = append(keys, s.key("change", m))
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []*Change
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		c, err := decodeChange(raw)
		if err != nil {
			return nil, fmt.Errorf("redis: decode %s: %w", keys[i], err)
		}
		if matches(c, branch, statuses) {
			out = append(out, c)
		}
	}
	sortByNumber(out)
	return out, nil
}

func (s *RedisStore) allMembers(ctx context.Context) ([]string, error) {
	var members []string
	iter := s.rdb.Scan(ctx, 0, s.key("branch", "*"), 100).Iterator()
	for iter.Next(ctx) {
		m, err := s.rdb.SMembers(ctx, iter.Val()).Result()
		if err != nil {
			return nil, err
		}
		members = append(members, m...)
	}
	return members, iter.Err()
}

// Update applies fn under WATCH on every touched change and commits with MULTI.
// A lost race is retried a bounded number of times.
func (s *RedisStore) Update(ctx context.Context, numbers []int, fn UpdateFunc) error {
	numbers = uniqueNumbers(numbers)
	keys := make([]string, 0, len(numbers))
	for _, n := range numbers {
		keys = append(keys, s.changeKey(n))
	}
	if len(keys) == 0 {
		_, err := applyUpdate(map[int]*Change{}, fn)
		return err
	}

	var err error
	for attempt := 0; attempt < maxTxnRetries; attempt++ {
		err = s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			loaded := make(map[int]*Change, len(numbers))
			for i, n := range numbers {
				raw, err := tx.Get(ctx, keys[i]).Result()
				if errors.Is(err, redis.Nil) {
					return &NotFoundError{Number: n}
				}
				if err != nil {
					return err
				}
				c, err := decodeChange(raw)
				if err != nil {
					return err
				}
				loaded[n] = c
			}

			updated, err := applyUpdate(loaded, fn)
			if err != nil {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for n, c := range updated {
					raw, err := json.Marshal(c)
					if err != nil {
						return err
					}
					pipe.Set(ctx, s.changeKey(n), raw, 0)
				}
				return nil
			})
			return err
		}, keys...)

		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return err
}

// Ping checks the redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the redis client
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
