// Package redis stores reader checkpoints in Redis.
package redis

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const localhost = "127.0.0.1:6379"

// Option is used to override defaults when creating a new Redis store
type Option func(*Store)

// WithClient overrides the default client
func WithClient(client *redis.Client) Option {
	return func(s *Store) {
		s.client = client
	}
}

// WithTTL expires checkpoints that have not been written for d
func WithTTL(d time.Duration) Option {
	return func(s *Store) {
		s.ttl = d
	}
}

// New returns a store that uses Redis for underlying storage. Without
// WithClient it connects to REDIS_URL, or localhost when unset.
func New(appName string, opts ...Option) (*Store, error) {
	if appName == "" {
		return nil, errors.New("must provide app name")
	}

	s := &Store{
		appName: appName,
	}

	// override defaults
	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		addr := os.Getenv("REDIS_URL")
		if addr == "" {
			addr = localhost
		}
		s.client = redis.NewClient(&redis.Options{Addr: addr})
	}

	// verify we can ping server
	if err := s.client.Ping(context.Background()).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}

	return s, nil
}

// Store keeps one checkpoint key per stream and shard
type Store struct {
	appName string
	client  *redis.Client
	ttl     time.Duration
}

// GetCheckpoint fetches the checkpoint for a shard. A missing key yields an
// empty sequence number.
func (s *Store) GetCheckpoint(streamName, shardID string) (string, error) {
	val, err := s.client.Get(context.Background(), s.key(streamName, shardID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "redis get %s", s.key(streamName, shardID))
	}
	return val, nil
}

// SetCheckpoint stores the sequence number of the last record handed to the
// application. A reader started later resumes after it.
func (s *Store) SetCheckpoint(streamName, shardID, sequenceNumber string) error {
	if sequenceNumber == "" {
		return errors.New("sequence number should not be empty")
	}
	err := s.client.Set(context.Background(), s.key(streamName, shardID), sequenceNumber, s.ttl).Err()
	return errors.Wrapf(err, "redis set %s", s.key(streamName, shardID))
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// key generates a unique Redis key for storage of a checkpoint.
func (s *Store) key(streamName, shardID string) string {
	return fmt.Sprintf("%v:checkpoint:%v:%v", s.appName, streamName, shardID)
}
