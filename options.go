package reader

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option is used to override defaults when creating a new Reader
type Option func(*Reader)

// WithClient overrides the default client
func WithClient(client Client) Option {
	return func(r *Reader) {
		r.client = client
	}
}

// WithShardID selects the shard to read. By default the first shard
// described by the stream is read.
func WithShardID(shardID string) Option {
	return func(r *Reader) {
		r.shardID = shardID
	}
}

// WithMaxRecords overrides the maximum number of records to be
// returned in a single GetRecords call (defaults to 1, clamped to the
// records ceiling)
func WithMaxRecords(n int32) Option {
	return func(r *Reader) {
		r.maxRecords = n
	}
}

// WithRecordsCeiling overrides the service maximum that WithMaxRecords is
// clamped to (at most 10,000)
func WithRecordsCeiling(n int32) Option {
	return func(r *Reader) {
		r.ceiling = n
	}
}

// WithStartFromLatest starts the reader at the tip of the shard, skipping
// the records already stored. It applies to the first resolution only.
func WithStartFromLatest() Option {
	return func(r *Reader) {
		r.latest = true
	}
}

// WithStartAfterSequenceNumber resumes after a previously emitted checkpoint
func WithStartAfterSequenceNumber(seq string) Option {
	return func(r *Reader) {
		r.start = StartPosition{Mode: StartAfterSequenceNumber, SequenceNumber: seq}
	}
}

// WithStartAtSequenceNumber starts at the record with the given sequence number
func WithStartAtSequenceNumber(seq string) Option {
	return func(r *Reader) {
		r.start = StartPosition{Mode: StartAtSequenceNumber, SequenceNumber: seq}
	}
}

// WithStore sets a store that supplies the resume position when none is
// configured explicitly and receives every emitted checkpoint
func WithStore(store Store) Option {
	return func(r *Reader) {
		r.store = store
	}
}

// WithCheckpointFunc registers a func receiving one checkpoint per
// delivered record
func WithCheckpointFunc(fn CheckpointFunc) Option {
	return func(r *Reader) {
		r.checkpointFn = fn
	}
}

// WithLogger overrides the default logger
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithMetricRegistry registers the reader metrics on the given registry
func WithMetricRegistry(registry prometheus.Registerer) Option {
	return func(r *Reader) {
		r.metricRegistry = registry
	}
}

// WithAggregation enables deaggregation of KPL aggregated records
func WithAggregation(a bool) Option {
	return func(r *Reader) {
		r.isAggregated = a
	}
}

// WithEmptyPollBackoff overrides the wait between consecutive polls that
// return no records. It doubles from base up to max; a zero base polls
// again immediately.
func WithEmptyPollBackoff(base, max time.Duration) Option {
	return func(r *Reader) {
		r.emptyPoll = newEmptyPollBackoff(base, max)
	}
}
