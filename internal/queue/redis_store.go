package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/tcsync/internal/interfaces"
)

// ErrQueueUnavailable is returned when the store could not be reached even after reconnecting
var ErrQueueUnavailable = errors.New("queue store unavailable")

var _ interfaces.QueueStore = (*RedisStore)(nil)

// RedisStore keeps pending batches in one Redis list: producers RPUSH, the worker LPOPs.
type RedisStore struct {
	mu     sync.Mutex
	opts   *redis.Options
	client *redis.Client
	name   string
	logger arbor.ILogger
}

// NewRedisStore connects to redisURL and verifies the connection
func NewRedisStore(ctx context.Context, redisURL, name string, logger arbor.ILogger) (*RedisStore, error) {
	if name == "" {
		return nil, errors.New("queue name is required")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	logger.Debug().
		Str("addr", opts.Addr).
		Int("db", opts.DB).
		Str("list", name).
		Msg("Redis queue store connected")

	return &RedisStore{
		opts:   opts,
		client: client,
		name:   name,
		logger: logger,
	}, nil
}

// Push appends a batch payload to the tail of the list
func (s *RedisStore) Push(ctx context.Context, payload string) (bool, error) {
	var length int64
	err := s.do(ctx, "rpush", func(c *redis.Client) error {
		var err error
		length, err = c.RPush(ctx, s.name, payload).Result()
		return err
	})
	if err != nil {
		return false, err
	}
	return length > 0, nil
}

// Pop removes the head of the list. An empty list is the idle signal, not an error.
func (s *RedisStore) Pop(ctx context.Context) (string, bool, error) {
	var payload string
	err := s.do(ctx, "lpop", func(c *redis.Client) error {
		var err error
		payload, err = c.LPop(ctx, s.name).Result()
		return err
	})
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return payload, true, nil
}

// Len returns the number of pending batches
func (s *RedisStore) Len(ctx context.Context) (int64, error) {
	var length int64
	err := s.do(ctx, "llen", func(c *redis.Client) error {
		var err error
		length, err = c.LLen(ctx, s.name).Result()
		return err
	})
	return length, err
}

// Close closes the underlying client
func (s *RedisStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Close()
}

// do runs fn once, and on failure reconnects and runs it exactly once more
func (s *RedisStore) do(ctx context.Context, op string, fn func(*redis.Client) error) error {
	err := fn(s.current())
	if err == nil || errors.Is(err, redis.Nil) {
		return err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	s.logger.Warn().
		Err(err).
		Str("op", op).
		Str("list", s.name).
		Msg("Redis command failed, reconnecting")

	if rerr := s.reconnect(ctx); rerr != nil {
		return fmt.Errorf("%w: %s: %v", ErrQueueUnavailable, op, rerr)
	}

	err = fn(s.current())
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %s: %v", ErrQueueUnavailable, op, err)
	}
	return err
}

func (s *RedisStore) current() *redis.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

func (s *RedisStore) reconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_ = s.client.Close()
	s.client = redis.NewClient(s.opts)
	return s.client.Ping(ctx).Err()
}
