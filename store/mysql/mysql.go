// Package mysql stores reader checkpoints in a MySQL table:
//
//	CREATE TABLE checkpoints (
//		checkpoint_key  VARCHAR(255) NOT NULL PRIMARY KEY,
//		sequence_number VARCHAR(128) NOT NULL
//	);
package mysql

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
)

// tableNameRE accepts a table name optionally qualified by its database.
var tableNameRE = regexp.MustCompile(`^[A-Za-z0-9_$]+(\.[A-Za-z0-9_$]+)?$`)

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithDB uses an existing connection pool instead of opening one
func WithDB(db *sql.DB) Option {
	return func(s *Store) {
		s.db = db
	}
}

// Store writes every checkpoint through to the table.
type Store struct {
	appName   string
	tableName string
	db        *sql.DB
}

// New returns a store backed by the given table. The DSN is only used when
// no pool is supplied with WithDB.
func New(appName, tableName, dsn string, opts ...Option) (*Store, error) {
	if appName == "" || tableName == "" {
		return nil, errors.New("must provide app name and table name")
	}
	if !tableNameRE.MatchString(tableName) {
		return nil, errors.Errorf("invalid table name %q", tableName)
	}

	s := &Store{
		appName:   appName,
		tableName: tableName,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.db == nil {
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return nil, errors.Wrap(err, "parse mysql dsn")
		}
		if cfg.Timeout == 0 {
			cfg.Timeout = 5 * time.Second
		}
		connector, err := mysql.NewConnector(cfg)
		if err != nil {
			return nil, errors.Wrap(err, "mysql connector")
		}
		s.db = sql.OpenDB(connector)
	}

	return s, nil
}

// GetCheckpoint returns the stored checkpoint for a shard, or an empty
// string when the shard has none.
func (s *Store) GetCheckpoint(streamName, shardID string) (string, error) {
	row := s.db.QueryRow(s.query("SELECT sequence_number FROM %s WHERE checkpoint_key = ?"), s.key(streamName, shardID))

	var val string
	err := row.Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrapf(err, "select checkpoint %s", s.key(streamName, shardID))
	}
	return val, nil
}

// SetCheckpoint stores the sequence number as the shard's checkpoint.
func (s *Store) SetCheckpoint(streamName, shardID, sequenceNumber string) error {
	if sequenceNumber == "" {
		return errors.New("sequence number should not be empty")
	}

	_, err := s.db.Exec(s.query("INSERT INTO %s (sequence_number, checkpoint_key) VALUES (?, ?) ON DUPLICATE KEY UPDATE sequence_number = ?"),
		sequenceNumber, s.key(streamName, shardID), sequenceNumber)
	return errors.Wrapf(err, "upsert checkpoint %s", s.key(streamName, shardID))
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// key generates a unique key for storage of a checkpoint.
func (s *Store) key(streamName, shardID string) string {
	return fmt.Sprintf("%s:checkpoint:%s:%s", s.appName, streamName, shardID)
}

// query fills the backtick quoted table name into q.
func (s *Store) query(q string) string {
	parts := strings.Split(s.tableName, ".")
	for i, p := range parts {
		parts[i] = "`" + p + "`"
	}
	return fmt.Sprintf(q, strings.Join(parts, "."))
}
