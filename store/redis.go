package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// RedisStore keeps each run in a hash at <prefix>:<run>, one field per
// event index holding the CBOR-encoded entry.
type RedisStore struct {
	client *redis.Client
	prefix string
	runID  string
	key    string
}

// OpenRedis connects to url (redis://...) and verifies the connection.
func OpenRedis(ctx context.Context, url string, opts ...Option) (*RedisStore, error) {
	if url == "" {
		return nil, errors.New("redis store: no url configured")
	}
	redisOpts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(ctx, client, opts...)
}

// NewRedisStore wraps an existing client.
func NewRedisStore(ctx context.Context, client *redis.Client, opts ...Option) (*RedisStore, error) {
	o := buildOptions(opts)
	s := &RedisStore{
		client: client,
		prefix: o.keyPrefix,
		runID:  o.runID,
		key:    o.keyPrefix + ":" + o.runID,
	}
	if o.clearOnOpen {
		n, err := s.clear(ctx)
		if err != nil {
			return nil, err
		}
		log.Infof("cleared %d redis run keys under %s:*", n, s.prefix)
	}
	return s, nil
}

// clear deletes every run stored under the prefix.
func (s *RedisStore) clear(ctx context.Context) (int, error) {
	var cursor uint64
	deleted := 0
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+":*", 100).Result()
		if err != nil {
			return deleted, fmt.Errorf("redis scan: %w", err)
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return deleted, fmt.Errorf("redis del: %w", err)
			}
			deleted += len(keys)
		}
		cursor = next
		if cursor == 0 {
			return deleted, nil
		}
	}
}

func (s *RedisStore) Put(ctx context.Context, index uint64, e Entry) error {
	payload, err := MarshalEntry(e)
	if err != nil {
		return err
	}
	field := strconv.FormatUint(index, 10)
	if err := s.client.HSet(ctx, s.key, field, payload).Err(); err != nil {
		return fmt.Errorf("redis hset %s: %w", s.key, err)
	}
	return nil
}

// Records reads back this run's events in index order.
func (s *RedisStore) Records(ctx context.Context) ([]Record, error) {
	fields, err := s.client.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall %s: %w", s.key, err)
	}
	out := make([]Record, 0, len(fields))
	for field, payload := range fields {
		idx, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("redis field %q: %w", field, err)
		}
		e, err := UnmarshalEntry([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, Record{Index: idx, Entry: e})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *RedisStore) RunID() string {
	return s.runID
}

// Key returns the hash key holding this run.
func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
