package reader

import (
	"errors"
	"fmt"
)

var (
	// ErrNoShards is returned when the stream describes no shards and no
	// explicit shard id was configured.
	ErrNoShards = errors.New("no shards available")

	// ErrCursorConsumed is returned when a cursor is handed to a fetch a
	// second time.
	ErrCursorConsumed = errors.New("cursor already consumed")

	// ErrConflictingStart is returned by New when a latest start and an
	// explicit sequence number are both configured.
	ErrConflictingStart = errors.New("start from latest conflicts with an explicit sequence number")
)

// ShardNotFoundError is returned when the configured shard id is not part
// of the stream's shard list.
type ShardNotFoundError struct {
	StreamName string
	ShardID    string
}

func (e *ShardNotFoundError) Error() string {
	return fmt.Sprintf("shard %s does not exist in stream %s", e.ShardID, e.StreamName)
}

// ResolutionError wraps a transport failure while describing the stream or
// requesting the initial shard iterator.
type ResolutionError struct {
	Op         string
	StreamName string
	ShardID    string
	Err        error
}

func (e *ResolutionError) Error() string {
	if e.ShardID == "" {
		return fmt.Sprintf("%s error for stream %s: %v", e.Op, e.StreamName, e.Err)
	}
	return fmt.Sprintf("%s error for stream %s shard %s: %v", e.Op, e.StreamName, e.ShardID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// FetchError wraps a transport failure of a GetRecords call.
type FetchError struct {
	ShardID string
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("get records error for shard %s: %v", e.ShardID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
