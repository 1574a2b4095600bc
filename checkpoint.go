package reader

import (
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// Checkpoint marks a record that has been handed to the consumer. Supplying
// its sequence number to WithStartAfterSequenceNumber on a new reader
// resumes right after it.
type Checkpoint struct {
	StreamName     string
	ShardID        string
	SequenceNumber string
}

// CheckpointFunc observes checkpoint markers in emission order.
type CheckpointFunc func(Checkpoint)

// emitter fans checkpoint markers out to the configured sinks. Sink errors
// are logged and counted; they never end the session.
type emitter struct {
	streamName string
	fn         CheckpointFunc
	store      Store
	logger     *slog.Logger
}

func (e *emitter) emit(b *Batch) {
	if e.fn == nil && e.store == nil {
		return
	}

	for _, r := range b.Records {
		if r.SequenceNumber == nil {
			continue
		}
		cp := Checkpoint{
			StreamName:     e.streamName,
			ShardID:        b.ShardID,
			SequenceNumber: *r.SequenceNumber,
		}
		if e.fn != nil {
			e.fn(cp)
		}
		if e.store != nil {
			if err := e.store.SetCheckpoint(cp.StreamName, cp.ShardID, cp.SequenceNumber); err != nil {
				e.logger.Error("set checkpoint error",
					slog.String("stream", cp.StreamName),
					slog.String("shard", cp.ShardID),
					slog.String("error", err.Error()),
				)
				counterCheckpointErrors.With(labels(cp.StreamName, cp.ShardID)).Inc()
				continue
			}
		}
		counterCheckpointsEmitted.With(labels(cp.StreamName, cp.ShardID)).Inc()
	}
}

func labels(streamName, shardID string) prometheus.Labels {
	return prometheus.Labels{labelStreamName: streamName, labelShardID: shardID}
}
