package reader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
)

// New creates a reader for one shard of the stream with default settings.
// Use Option to override any of the optional attributes. Nothing is read
// from the stream until the first call to Next or Scan.
func New(streamName string, opts ...Option) (*Reader, error) {
	if streamName == "" {
		return nil, errors.New("must provide stream name")
	}

	r := &Reader{
		streamName: streamName,
		logger:     discardLogger(),
		ceiling:    maxRecordsCeiling,
		emptyPoll:  newEmptyPollBackoff(defaultEmptyPollBase, defaultEmptyPollMax),
		demand:     make(chan struct{}, 1),
		out:        make(chan *Batch),
		drainc:     make(chan struct{}),
		abandonc:   make(chan struct{}),
		done:       make(chan struct{}),
	}

	// override defaults
	for _, opt := range opts {
		opt(r)
	}

	if r.latest && r.start.explicit() {
		return nil, ErrConflictingStart
	}

	if r.client == nil {
		client, err := newDefaultClient(context.TODO())
		if err != nil {
			return nil, fmt.Errorf("new kinesis client error: %w", err)
		}
		r.client = client
	}

	if r.metricRegistry != nil {
		if err := registerCollectors(r.metricRegistry); err != nil {
			return nil, fmt.Errorf("register metrics error: %w", err)
		}
	}

	r.resolver = &resolver{
		client:     r.client,
		streamName: r.streamName,
		store:      r.store,
		logger:     r.logger,
	}
	r.fetcher = &fetcher{
		client:     r.client,
		ceiling:    r.ceiling,
		aggregated: r.isAggregated,
	}
	r.emitter = &emitter{
		streamName: r.streamName,
		fn:         r.checkpointFn,
		store:      r.store,
		logger:     r.logger,
	}
	r.sess = session{
		state:   StateUninitialized,
		limit:   clampLimit(r.maxRecords, r.ceiling),
		shardID: r.shardID,
		latest:  r.latest,
		start:   r.start,
	}

	go r.run(context.Background())

	return r, nil
}

// Reader exposes one shard of a Kinesis stream as a demand-driven sequence
// of record batches. A fetch is only issued while the consumer is waiting
// in Next, and at most one fetch is in flight at any time.
type Reader struct {
	streamName     string
	shardID        string
	client         Client
	logger         *slog.Logger
	store          Store
	checkpointFn   CheckpointFunc
	metricRegistry prometheus.Registerer
	maxRecords     int32
	ceiling        int32
	latest         bool
	start          StartPosition
	isAggregated   bool
	emptyPoll      *backoff.ExponentialBackOff

	resolver *resolver
	fetcher  *fetcher
	emitter  *emitter

	// owned by the run goroutine
	sess session

	state       atomic.Int32
	demand      chan struct{}
	out         chan *Batch
	drainc      chan struct{}
	drainOnce   sync.Once
	abandonc    chan struct{}
	abandonOnce sync.Once
	done        chan struct{}
	err         error
}

// Next signals demand and waits for the next batch. Batches arrive in shard
// order and are never empty. After the reader has been drained Next returns
// the batches still in flight and then io.EOF; if the session failed it
// returns the session error instead.
func (r *Reader) Next(ctx context.Context) (*Batch, error) {
	select {
	case r.demand <- struct{}{}:
	default:
		// demand already pending
	}

	select {
	case b, ok := <-r.out:
		if !ok {
			if r.err != nil {
				return nil, r.err
			}
			return nil, io.EOF
		}
		return b, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Scan calls fn for every batch until the reader is drained. Cancelling ctx
// drains the reader; batches already in flight are still passed to fn
// before Scan returns nil. An error from fn drains the reader and is
// returned.
func (r *Reader) Scan(ctx context.Context, fn ScanFunc) error {
	stop := context.AfterFunc(ctx, r.Drain)
	defer stop()

	for {
		b, err := r.Next(context.Background())
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := fn(b); err != nil {
			r.Drain()
			return err
		}
	}
}

// Drain stops the reader from issuing new fetches. A fetch already in
// flight completes and its records are still delivered before Next returns
// io.EOF. Calling Drain more than once has no additional effect.
func (r *Reader) Drain() {
	r.drainOnce.Do(func() {
		close(r.drainc)
	})
}

// Close drains the reader and waits until the session is finished. A batch
// fetched for a Next call that has since returned is handed to a consumer
// still waiting in Next, or dropped when there is none; its records are not
// checkpointed. Close returns the session error, if the session failed
// before it was drained.
func (r *Reader) Close(ctx context.Context) error {
	r.Drain()
	r.abandonOnce.Do(func() {
		close(r.abandonc)
	})

	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed once the session is closed or has failed.
func (r *Reader) Done() <-chan struct{} {
	return r.done
}

// Err returns the error that ended the session, or nil while the session
// is running or when it ended cleanly.
func (r *Reader) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// State returns the current session state.
func (r *Reader) State() State {
	return State(r.state.Load())
}

func (r *Reader) run(ctx context.Context) {
	defer close(r.done)
	defer close(r.out)
	defer func() {
		r.logger.Info("reader finished",
			slog.String("stream", r.streamName),
			slog.String("shard", r.sess.shardID),
			slog.String("state", r.sess.state.String()),
		)
	}()

	for {
		select {
		case <-r.demand:
		case <-r.drainc:
			r.apply(eventDrain)
			return
		}

		if !r.fill(ctx) {
			return
		}
	}
}

// fill fetches until one non-empty batch has been handed to the consumer.
// Empty batches re-arm the fetch without waiting for new demand. It reports
// false once the session has reached a terminal state.
func (r *Reader) fill(ctx context.Context) bool {
	for {
		if r.drainRequested() {
			r.apply(eventDrain)
			return false
		}

		if r.sess.state == StateUninitialized {
			if !r.resolve(ctx) {
				return false
			}
			continue
		}

		shardID := r.sess.shardID
		r.apply(eventFetch)
		counterFetches.With(labels(r.streamName, shardID)).Inc()

		batch, next, err := r.fetcher.fetch(ctx, shardID, r.sess.cursor, r.sess.limit)
		r.sess.cursor = next

		if r.drainRequested() {
			r.apply(eventDrain)
		}

		if err != nil {
			counterFetchErrors.With(labels(r.streamName, shardID)).Inc()
			r.fail(err)
			return false
		}

		if batch.MillisBehindLatest != nil {
			collectorMillisBehindLatest.With(labels(r.streamName, shardID)).Observe(float64(*batch.MillisBehindLatest))
		}

		switch {
		case next.IsZero():
			r.deliver(batch)
			r.apply(eventShardClosed)
			r.logger.Info("shard closed", slog.String("stream", r.streamName), slog.String("shard", shardID))
			return false

		case batch.Len() == 0:
			counterEmptyPolls.With(labels(r.streamName, shardID)).Inc()
			r.apply(eventEmpty)
			if r.sess.state.terminal() {
				return false
			}
			if !r.sleep(r.emptyPoll.NextBackOff()) {
				r.apply(eventDrain)
				return false
			}

		default:
			r.emptyPoll.Reset()
			r.deliver(batch)
			r.apply(eventBatch)
			return !r.sess.state.terminal()
		}
	}
}

func (r *Reader) resolve(ctx context.Context) bool {
	pos := r.sess.start
	if r.sess.latest {
		pos = StartPosition{Mode: StartLatest}
		r.sess.latest = false
	}

	cur, shardID, err := r.resolver.resolve(ctx, r.sess.shardID, pos)
	if r.drainRequested() {
		r.apply(eventDrain)
		return false
	}
	if err == nil && cur.IsZero() {
		err = &ResolutionError{Op: "get shard iterator", StreamName: r.streamName, ShardID: shardID, Err: errors.New("no shard iterator returned")}
	}
	if err != nil {
		r.fail(err)
		return false
	}

	r.sess.cursor = cur
	r.sess.shardID = shardID
	r.apply(eventResolved)

	r.logger.Info("reading shard",
		slog.String("stream", r.streamName),
		slog.String("shard", shardID),
		slog.Int("limit", int(r.sess.limit)),
	)
	return true
}

// deliver blocks until the consumer has received the batch, then emits the
// batch's checkpoints. Empty batches are not delivered. Once Close has been
// called a batch nobody is waiting for is dropped.
func (r *Reader) deliver(b *Batch) {
	if b.Len() == 0 {
		return
	}

	select {
	case r.out <- b:
	case <-r.abandonc:
		select {
		case r.out <- b:
		default:
			r.logger.Warn("dropping undelivered batch on close",
				slog.String("stream", r.streamName),
				slog.String("shard", b.ShardID),
				slog.Int("records", b.Len()),
			)
			return
		}
	}

	counterRecordsDelivered.With(labels(r.streamName, b.ShardID)).Add(float64(b.Len()))
	r.emitter.emit(b)
}

func (r *Reader) fail(err error) {
	r.apply(eventFailed)

	if r.sess.state == StateErrored {
		r.err = err
		r.logger.Error("reader error",
			slog.String("stream", r.streamName),
			slog.String("shard", r.sess.shardID),
			slog.String("error", err.Error()),
		)
		return
	}

	r.logger.Warn("discarding error after drain",
		slog.String("stream", r.streamName),
		slog.String("shard", r.sess.shardID),
		slog.String("error", err.Error()),
	)
}

func (r *Reader) apply(ev event) {
	if err := r.sess.transition(ev); err != nil {
		r.logger.Error("session transition error", slog.String("error", err.Error()))
	}
	r.state.Store(int32(r.sess.state))
}

func (r *Reader) drainRequested() bool {
	select {
	case <-r.drainc:
		return true
	default:
		return false
	}
}

// sleep waits for d, returning false if the reader is drained meanwhile.
func (r *Reader) sleep(d time.Duration) bool {
	if d <= 0 {
		return !r.drainRequested()
	}

	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-r.drainc:
		return false
	}
}
