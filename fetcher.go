package reader

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/awslabs/kinesis-aggregation/go/v2/deaggregator"
)

// maxRecordsCeiling is the largest Limit GetRecords accepts.
const maxRecordsCeiling int32 = 10000

// clampLimit returns limit bounded to [1, ceiling]. A non-positive ceiling
// means the service maximum.
func clampLimit(limit, ceiling int32) int32 {
	if ceiling <= 0 || ceiling > maxRecordsCeiling {
		ceiling = maxRecordsCeiling
	}
	switch {
	case limit <= 0:
		return 1
	case limit > ceiling:
		return ceiling
	}
	return limit
}

// fetcher advances a cursor by one GetRecords call.
type fetcher struct {
	client     Client
	ceiling    int32
	aggregated bool
}

// fetch consumes cur and returns up to limit records plus the cursor for
// the next call. The returned cursor is zero when the shard has been closed.
// An empty batch is not the end of the shard.
func (f *fetcher) fetch(ctx context.Context, shardID string, cur Cursor, limit int32) (*Batch, Cursor, error) {
	iterator, err := cur.take()
	if err != nil {
		return nil, Cursor{}, err
	}

	resp, err := f.client.GetRecords(ctx, &kinesis.GetRecordsInput{
		ShardIterator: aws.String(iterator),
		Limit:         aws.Int32(clampLimit(limit, f.ceiling)),
	})
	if err != nil {
		return nil, Cursor{}, &FetchError{ShardID: shardID, Err: err}
	}

	records := resp.Records
	if f.aggregated {
		records, err = deaggregateRecords(records)
		if err != nil {
			return nil, Cursor{}, &FetchError{ShardID: shardID, Err: err}
		}
	}

	batch := &Batch{
		ShardID:            shardID,
		Records:            make([]*Record, 0, len(records)),
		MillisBehindLatest: resp.MillisBehindLatest,
	}
	for _, r := range records {
		batch.Records = append(batch.Records, &Record{
			Record:             r,
			ShardID:            shardID,
			MillisBehindLatest: resp.MillisBehindLatest,
		})
	}
	return batch, newCursor(resp.NextShardIterator), nil
}

// deaggregateRecords expands KPL aggregated records; plain records pass
// through unchanged. User records of one aggregate share its sequence number.
func deaggregateRecords(in []types.Record) ([]types.Record, error) {
	return deaggregator.DeaggregateRecords(in)
}
