// Package memory provides a checkpoint store that can be used for testing and
// single process readers. Checkpoints do not survive the process.
package memory

import (
	"sync"

	"github.com/pkg/errors"
)

// ErrEmptySequenceNumber is returned when a blank checkpoint is written.
var ErrEmptySequenceNumber = errors.New("sequence number should not be empty")

type key struct {
	streamName string
	shardID    string
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

// Store keeps the last checkpoint per stream and shard in memory.
type Store struct {
	m sync.Map
}

// SetCheckpoint records the sequence number as the shard's checkpoint.
func (s *Store) SetCheckpoint(streamName, shardID, sequenceNumber string) error {
	if sequenceNumber == "" {
		return ErrEmptySequenceNumber
	}
	s.m.Store(key{streamName, shardID}, sequenceNumber)
	return nil
}

// GetCheckpoint returns the shard's checkpoint, or an empty string when
// none was recorded.
func (s *Store) GetCheckpoint(streamName, shardID string) (string, error) {
	val, ok := s.m.Load(key{streamName, shardID})
	if !ok {
		return "", nil
	}
	return val.(string), nil
}

// Len returns the number of shards holding a checkpoint.
func (s *Store) Len() int {
	n := 0
	s.m.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}
