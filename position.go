package reader

import (
	"context"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// StartMode selects where a new session starts reading its shard.
type StartMode int

const (
	// StartEarliest reads from the start of the shard's sequence number range.
	StartEarliest StartMode = iota
	// StartAtSequenceNumber reads from the record with the given sequence number.
	StartAtSequenceNumber
	// StartAfterSequenceNumber reads from the record following the given
	// sequence number; used to resume from a checkpoint.
	StartAfterSequenceNumber
	// StartLatest reads only records added after the session starts.
	StartLatest
)

// StartPosition is a start mode plus, for the sequence number modes, the
// sequence number it refers to. The zero value is StartEarliest.
type StartPosition struct {
	Mode           StartMode
	SequenceNumber string
}

func (p StartPosition) explicit() bool {
	return p.SequenceNumber != "" &&
		(p.Mode == StartAtSequenceNumber || p.Mode == StartAfterSequenceNumber)
}

// resolver turns a shard selector and a start position into an initial
// cursor. It only issues read-only calls.
type resolver struct {
	client     Client
	streamName string
	store      Store
	logger     *slog.Logger
}

// resolve selects the shard (shardID, or the first shard when empty) and
// requests an iterator for pos. It returns the cursor and the resolved
// shard id.
func (r *resolver) resolve(ctx context.Context, shardID string, pos StartPosition) (Cursor, string, error) {
	shard, err := r.selectShard(ctx, shardID)
	if err != nil {
		return Cursor{}, shardID, err
	}
	shardID = aws.ToString(shard.ShardId)

	if r.store != nil && !pos.explicit() {
		seq, err := r.store.GetCheckpoint(r.streamName, shardID)
		if err != nil {
			return Cursor{}, shardID, &ResolutionError{Op: "get checkpoint", StreamName: r.streamName, ShardID: shardID, Err: err}
		}
		if seq != "" {
			pos = StartPosition{Mode: StartAfterSequenceNumber, SequenceNumber: seq}
		}
	}

	input := &kinesis.GetShardIteratorInput{
		StreamName: aws.String(r.streamName),
		ShardId:    aws.String(shardID),
	}

	switch pos.Mode {
	case StartLatest:
		input.ShardIteratorType = types.ShardIteratorTypeLatest
	case StartAfterSequenceNumber:
		input.ShardIteratorType = types.ShardIteratorTypeAfterSequenceNumber
		input.StartingSequenceNumber = aws.String(pos.SequenceNumber)
	case StartAtSequenceNumber:
		input.ShardIteratorType = types.ShardIteratorTypeAtSequenceNumber
		input.StartingSequenceNumber = aws.String(pos.SequenceNumber)
	default:
		input.ShardIteratorType = types.ShardIteratorTypeAtSequenceNumber
		if shard.SequenceNumberRange != nil {
			input.StartingSequenceNumber = shard.SequenceNumberRange.StartingSequenceNumber
		}
	}

	r.logger.Debug("resolving shard iterator",
		slog.String("stream", r.streamName),
		slog.String("shard", shardID),
		slog.String("type", string(input.ShardIteratorType)),
		slog.String("sequence_number", aws.ToString(input.StartingSequenceNumber)),
	)

	resp, err := r.client.GetShardIterator(ctx, input)
	if err != nil {
		return Cursor{}, shardID, &ResolutionError{Op: "get shard iterator", StreamName: r.streamName, ShardID: shardID, Err: err}
	}
	return newCursor(resp.ShardIterator), shardID, nil
}

func (r *resolver) selectShard(ctx context.Context, shardID string) (types.Shard, error) {
	match := func(types.Shard) bool { return true }
	if shardID != "" {
		match = func(s types.Shard) bool { return aws.ToString(s.ShardId) == shardID }
	}

	shard, ok, err := findShard(ctx, r.client, r.streamName, match)
	if err != nil {
		return types.Shard{}, &ResolutionError{Op: "describe stream", StreamName: r.streamName, ShardID: shardID, Err: err}
	}
	if !ok {
		if shardID == "" {
			return types.Shard{}, ErrNoShards
		}
		return types.Shard{}, &ShardNotFoundError{StreamName: r.streamName, ShardID: shardID}
	}
	return shard, nil
}
