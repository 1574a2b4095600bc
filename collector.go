package reader

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelStreamName = "stream_name"
	labelShardID    = "shard_id"
)

var (
	collectorMillisBehindLatest = prometheus.NewSummaryVec(prometheus.SummaryOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "milliseconds_behind_latest",
		Help:      "The number of milliseconds the GetRecords response is from the tip of the stream. A value of zero indicates that the reader is caught up.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterRecordsDelivered = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "records_delivered_count_total",
		Help:      "Number of records handed to the consumer from the shard belonging to the stream.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterFetches = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "fetches_count_total",
		Help:      "Number of GetRecords calls issued for the shard belonging to the stream.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterEmptyPolls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "empty_polls_count_total",
		Help:      "Number of GetRecords calls that returned no records.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterFetchErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "fetch_errors_count_total",
		Help:      "Number of GetRecords calls that failed.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterCheckpointsEmitted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "checkpoints_emitted_count_total",
		Help:      "Number of checkpoint markers emitted for the shard belonging to the stream. A configured store may buffer them before flushing.",
	}, []string{
		labelStreamName,
		labelShardID,
	})

	counterCheckpointErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "net",
		Subsystem: "kinesis",
		Name:      "checkpoint_errors_count_total",
		Help:      "Number of checkpoint markers a store failed to accept.",
	}, []string{
		labelStreamName,
		labelShardID,
	})
)

// registerCollectors registers the reader collectors. Collectors already
// registered by another reader sharing the registry are accepted.
func registerCollectors(registry prometheus.Registerer) error {
	var errs error
	for _, c := range []prometheus.Collector{
		collectorMillisBehindLatest,
		counterRecordsDelivered,
		counterFetches,
		counterEmptyPolls,
		counterFetchErrors,
		counterCheckpointsEmitted,
		counterCheckpointErrors,
	} {
		if err := registry.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			errs = errors.Join(errs, err)
		}
	}
	return errs
}
