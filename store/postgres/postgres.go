// Package postgres stores reader checkpoints in a PostgreSQL table:
//
//	CREATE TABLE checkpoints (
//		namespace       TEXT NOT NULL,
//		shard_id        TEXT NOT NULL,
//		sequence_number TEXT NOT NULL,
//		PRIMARY KEY (namespace, shard_id)
//	);
//
// Writes are buffered and flushed periodically.
package postgres

import (
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

const getCheckpointQuery = `SELECT sequence_number FROM %s WHERE namespace = $1 AND shard_id = $2`

const upsertCheckpointQuery = `INSERT INTO %s (namespace, shard_id, sequence_number) VALUES ($1, $2, $3)
ON CONFLICT (namespace, shard_id) DO UPDATE SET sequence_number = EXCLUDED.sequence_number`

type key struct {
	streamName string
	shardID    string
}

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithMaxInterval sets the flush interval
func WithMaxInterval(maxInterval time.Duration) Option {
	return func(s *Store) {
		s.maxInterval = maxInterval
	}
}

// WithDB uses an existing connection pool instead of opening one
func WithDB(db *sql.DB) Option {
	return func(s *Store) {
		s.conn = db
	}
}

// WithLogger sets the logger used for background flush errors
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store buffers the latest checkpoint per shard and upserts them on every
// tick and on Shutdown.
type Store struct {
	appName     string
	tableName   string
	conn        *sql.DB
	maxInterval time.Duration
	logger      *slog.Logger

	mu          sync.Mutex // protects the checkpoints
	checkpoints map[key]string

	done     chan struct{}
	stopped  chan struct{}
	shutdown sync.Once
}

// New returns a store backed by the given table. The connection string is
// only used when no pool is supplied with WithDB.
func New(appName, tableName, connectionStr string, opts ...Option) (*Store, error) {
	if appName == "" || tableName == "" {
		return nil, errors.New("must provide app name and table name")
	}

	s := &Store{
		appName:     appName,
		tableName:   tableName,
		maxInterval: time.Minute,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		checkpoints: map[key]string{},
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.conn == nil {
		conn, err := sql.Open("postgres", connectionStr)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres")
		}
		s.conn = conn
	}

	go s.loop()

	return s, nil
}

// GetCheckpoint returns the stored checkpoint for a shard, or an empty
// string when the shard has none.
func (s *Store) GetCheckpoint(streamName, shardID string) (string, error) {
	var sequenceNumber string
	err := s.conn.QueryRow(s.query(getCheckpointQuery), s.namespace(streamName), shardID).Scan(&sequenceNumber)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "select checkpoint %s/%s", s.namespace(streamName), shardID)
	}
	return sequenceNumber, nil
}

// SetCheckpoint buffers the sequence number as the shard's checkpoint.
func (s *Store) SetCheckpoint(streamName, shardID, sequenceNumber string) error {
	if sequenceNumber == "" {
		return errors.New("sequence number should not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[key{streamName: streamName, shardID: shardID}] = sequenceNumber
	return nil
}

// Shutdown stops the flush loop, saves any buffered checkpoints and closes
// the connection pool.
func (s *Store) Shutdown() error {
	s.shutdown.Do(func() {
		close(s.done)
	})
	<-s.stopped
	defer s.conn.Close()

	return s.save()
}

func (s *Store) loop() {
	tick := time.NewTicker(s.maxInterval)
	defer tick.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-tick.C:
			if err := s.save(); err != nil {
				s.logger.Error("checkpoint flush error",
					slog.String("table", s.tableName),
					slog.String("error", err.Error()),
				)
			}
		case <-s.done:
			return
		}
	}
}

func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, sequenceNumber := range s.checkpoints {
		_, err := s.conn.Exec(s.query(upsertCheckpointQuery), s.namespace(k.streamName), k.shardID, sequenceNumber)
		if err != nil {
			return errors.Wrapf(err, "upsert checkpoint %s/%s", s.namespace(k.streamName), k.shardID)
		}
		delete(s.checkpoints, k)
	}

	return nil
}

func (s *Store) query(q string) string {
	return fmt.Sprintf(q, pq.QuoteIdentifier(s.tableName))
}

func (s *Store) namespace(streamName string) string {
	return fmt.Sprintf("%s-%s", s.appName, streamName)
}
