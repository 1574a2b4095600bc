package reader

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

var errExpiredIterator = errors.New("ExpiredIteratorException: iterator already used")

// fakeKinesis is an in-memory shard log serving the Client interface with
// Kinesis iterator semantics. Iterators are single-use.
type fakeKinesis struct {
	mu sync.Mutex

	streamName string
	shards     []*fakeShard
	pageSize   int
	used       map[string]bool
	gen        int

	describeErr error
	iteratorErr error
	recordsErr  error

	// onGetRecords runs before a GetRecords call is served and may block.
	onGetRecords func()

	iteratorInputs []kinesis.GetShardIteratorInput
	recordsInputs  []kinesis.GetRecordsInput
	describeCalls  int
}

type fakeShard struct {
	id      string
	start   int
	next    int
	closed  bool
	records []types.Record
}

func newFakeKinesis(streamName string, shardIDs ...string) *fakeKinesis {
	f := &fakeKinesis{
		streamName: streamName,
		used:       map[string]bool{},
	}
	for _, id := range shardIDs {
		f.shards = append(f.shards, &fakeShard{id: id, next: 1})
	}
	return f
}

func seqNum(n int) string {
	return fmt.Sprintf("%020d", n)
}

func (f *fakeKinesis) shard(id string) *fakeShard {
	for _, s := range f.shards {
		if s.id == id {
			return s
		}
	}
	return nil
}

// setRangeStart moves the first sequence number of a shard.
func (f *fakeKinesis) setRangeStart(shardID string, start int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.shard(shardID)
	s.start = start
	if s.next <= start {
		s.next = start + 1
	}
}

// put appends one record per payload to the shard and returns their
// sequence numbers.
func (f *fakeKinesis) put(shardID string, payloads ...string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	s := f.shard(shardID)
	var seqs []string
	for _, p := range payloads {
		seq := seqNum(s.next)
		s.next++
		s.records = append(s.records, types.Record{
			Data:           []byte(p),
			PartitionKey:   aws.String("key"),
			SequenceNumber: aws.String(seq),
		})
		seqs = append(seqs, seq)
	}
	return seqs
}

func (f *fakeKinesis) closeShard(shardID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shard(shardID).closed = true
}

func (f *fakeKinesis) setRecordsErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recordsErr = err
}

func (f *fakeKinesis) getRecordsCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.recordsInputs)
}

func (f *fakeKinesis) getIteratorInputs() []kinesis.GetShardIteratorInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]kinesis.GetShardIteratorInput(nil), f.iteratorInputs...)
}

func (f *fakeKinesis) getDescribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.describeCalls
}

func (f *fakeKinesis) DescribeStream(ctx context.Context, in *kinesis.DescribeStreamInput, _ ...func(*kinesis.Options)) (*kinesis.DescribeStreamOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.describeCalls++
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	if aws.ToString(in.StreamName) != f.streamName {
		return nil, &types.ResourceNotFoundException{Message: aws.String("stream not found")}
	}

	from := 0
	if in.ExclusiveStartShardId != nil {
		for i, s := range f.shards {
			if s.id == *in.ExclusiveStartShardId {
				from = i + 1
			}
		}
	}
	to := len(f.shards)
	if f.pageSize > 0 && from+f.pageSize < to {
		to = from + f.pageSize
	}

	desc := &types.StreamDescription{
		StreamName:    aws.String(f.streamName),
		HasMoreShards: aws.Bool(to < len(f.shards)),
	}
	for _, s := range f.shards[from:to] {
		desc.Shards = append(desc.Shards, types.Shard{
			ShardId: aws.String(s.id),
			SequenceNumberRange: &types.SequenceNumberRange{
				StartingSequenceNumber: aws.String(seqNum(s.start)),
			},
		})
	}
	return &kinesis.DescribeStreamOutput{StreamDescription: desc}, nil
}

func (f *fakeKinesis) GetShardIterator(ctx context.Context, in *kinesis.GetShardIteratorInput, _ ...func(*kinesis.Options)) (*kinesis.GetShardIteratorOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.iteratorInputs = append(f.iteratorInputs, *in)
	if f.iteratorErr != nil {
		return nil, f.iteratorErr
	}

	s := f.shard(aws.ToString(in.ShardId))
	if s == nil {
		return nil, &types.ResourceNotFoundException{Message: aws.String("shard not found")}
	}

	seq := aws.ToString(in.StartingSequenceNumber)
	pos := 0
	switch in.ShardIteratorType {
	case types.ShardIteratorTypeLatest:
		pos = len(s.records)
	case types.ShardIteratorTypeTrimHorizon:
		pos = 0
	case types.ShardIteratorTypeAtSequenceNumber:
		for pos < len(s.records) && *s.records[pos].SequenceNumber < seq {
			pos++
		}
	case types.ShardIteratorTypeAfterSequenceNumber:
		for pos < len(s.records) && *s.records[pos].SequenceNumber <= seq {
			pos++
		}
	default:
		return nil, &types.InvalidArgumentException{Message: aws.String("unsupported iterator type")}
	}

	return &kinesis.GetShardIteratorOutput{ShardIterator: f.iterator(s.id, pos)}, nil
}

func (f *fakeKinesis) GetRecords(ctx context.Context, in *kinesis.GetRecordsInput, _ ...func(*kinesis.Options)) (*kinesis.GetRecordsOutput, error) {
	f.mu.Lock()
	hook := f.onGetRecords
	f.recordsInputs = append(f.recordsInputs, *in)
	f.mu.Unlock()

	if hook != nil {
		hook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.recordsErr != nil {
		return nil, f.recordsErr
	}

	it := aws.ToString(in.ShardIterator)
	if f.used[it] {
		return nil, errExpiredIterator
	}
	f.used[it] = true

	shardID, pos, err := parseIterator(it)
	if err != nil {
		return nil, err
	}
	s := f.shard(shardID)

	limit := int(aws.ToInt32(in.Limit))
	if limit <= 0 || limit > 10000 {
		return nil, &types.InvalidArgumentException{Message: aws.String("invalid limit")}
	}

	end := pos + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	out := &kinesis.GetRecordsOutput{
		Records:            append([]types.Record(nil), s.records[pos:end]...),
		MillisBehindLatest: aws.Int64(0),
	}
	if !(s.closed && end == len(s.records)) {
		out.NextShardIterator = f.iterator(s.id, end)
	}
	return out, nil
}

// iterator must be called with f.mu held.
func (f *fakeKinesis) iterator(shardID string, pos int) *string {
	f.gen++
	return aws.String(fmt.Sprintf("%s/%d/%d", shardID, pos, f.gen))
}

func parseIterator(it string) (string, int, error) {
	parts := strings.Split(it, "/")
	if len(parts) != 3 {
		return "", 0, fmt.Errorf("malformed iterator %q", it)
	}
	pos, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, err
	}
	return parts[0], pos, nil
}
