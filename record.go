package reader

import "github.com/aws/aws-sdk-go-v2/service/kinesis/types"

// Record wraps a Kinesis record with the shard it was read from.
type Record struct {
	types.Record
	ShardID            string
	MillisBehindLatest *int64
}

// Batch is the ordered set of records returned by one fetch.
type Batch struct {
	ShardID            string
	Records            []*Record
	MillisBehindLatest *int64
}

// Len returns the number of records in the batch.
func (b *Batch) Len() int { return len(b.Records) }
