// Command reader prints the records of one Kinesis shard to stdout.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	reader "github.com/alexgridx/kinesis-reader"
	"github.com/alexgridx/kinesis-reader/internal/config"
	"github.com/alexgridx/kinesis-reader/internal/logging"
	"github.com/alexgridx/kinesis-reader/store/ddb"
	"github.com/alexgridx/kinesis-reader/store/memory"
	"github.com/alexgridx/kinesis-reader/store/mysql"
	"github.com/alexgridx/kinesis-reader/store/postgres"
	redisstore "github.com/alexgridx/kinesis-reader/store/redis"
)

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		stream     = flag.String("stream", "", "Stream name")
		shard      = flag.String("shard", "", "Shard id (default first shard)")
		start      = flag.String("start", "", "Start position: earliest|latest|at|after")
		seq        = flag.String("seq", "", "Sequence number for -start at|after")
		limit      = flag.Int("limit", 0, "Max records per fetch")
		endpoint   = flag.String("endpoint", "", "Kinesis endpoint")
		region     = flag.String("region", "", "AWS region")
		storeType  = flag.String("store", "", "Checkpoint store: none|memory|redis|ddb|postgres|mysql")
		metrics    = flag.String("metrics", "", "Metrics listen address, e.g. :9090")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "stream":
			cfg.Stream = *stream
		case "shard":
			cfg.Shard = *shard
		case "start":
			cfg.Start = *start
		case "seq":
			cfg.SequenceNumber = *seq
		case "limit":
			cfg.MaxRecords = int32(*limit)
		case "endpoint":
			cfg.AWS.Endpoint = *endpoint
		case "region":
			cfg.AWS.Region = *region
		case "store":
			cfg.Store.Type = *storeType
		case "metrics":
			cfg.Metrics.Addr = *metrics
		}
	})
	config.ApplyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("reader exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	awsCfg, err := loadAWSConfig(ctx, cfg.AWS)
	if err != nil {
		return fmt.Errorf("aws config error: %w", err)
	}

	store, closeStore, err := newStore(awsCfg, cfg, logger)
	if err != nil {
		return fmt.Errorf("store error: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Error("store close error", slog.String("error", err.Error()))
		}
	}()

	client := kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})

	registry := prometheus.NewRegistry()
	opts := []reader.Option{
		reader.WithClient(client),
		reader.WithLogger(logger),
		reader.WithMetricRegistry(registry),
		reader.WithShardID(cfg.Shard),
		reader.WithMaxRecords(cfg.MaxRecords),
		reader.WithAggregation(cfg.Aggregation),
		reader.WithEmptyPollBackoff(cfg.PollBase, cfg.PollMax),
	}
	switch cfg.Start {
	case config.StartLatest:
		opts = append(opts, reader.WithStartFromLatest())
	case config.StartAt:
		opts = append(opts, reader.WithStartAtSequenceNumber(cfg.SequenceNumber))
	case config.StartAfter:
		opts = append(opts, reader.WithStartAfterSequenceNumber(cfg.SequenceNumber))
	}
	if store != nil {
		opts = append(opts, reader.WithStore(store))
	}

	r, err := reader.New(cfg.Stream, opts...)
	if err != nil {
		return fmt.Errorf("reader error: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return r.Scan(ctx, func(b *reader.Batch) error {
			for _, rec := range b.Records {
				fmt.Printf("%s %s %s\n", rec.ShardID, aws.ToString(rec.SequenceNumber), rec.Data)
			}
			return nil
		})
	})

	if cfg.Metrics.Addr != "" {
		srv := &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		g.Go(func() error {
			logger.Info("serving metrics", slog.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

func loadAWSConfig(ctx context.Context, c config.AWSCfg) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
	}
	if c.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, c.SessionToken),
		))
	}
	return awsconfig.LoadDefaultConfig(ctx, opts...)
}

// newStore builds the configured checkpoint store and the func releasing it.
func newStore(awsCfg aws.Config, cfg config.Config, logger *slog.Logger) (reader.Store, func() error, error) {
	nop := func() error { return nil }
	sc := cfg.Store

	switch sc.Type {
	case config.StoreMemory:
		return memory.New(), nop, nil

	case config.StoreRedis:
		var opts []redisstore.Option
		if sc.RedisAddr != "" {
			opts = append(opts, redisstore.WithClient(redis.NewClient(&redis.Options{Addr: sc.RedisAddr})))
		}
		s, err := redisstore.New(sc.AppName, opts...)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.StoreDynamoDB:
		client := dynamodb.NewFromConfig(awsCfg)
		s, err := ddb.New(sc.AppName, sc.Table,
			ddb.WithDynamoClient(client),
			ddb.WithMaxInterval(sc.FlushInterval),
			ddb.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Shutdown, nil

	case config.StorePostgres:
		s, err := postgres.New(sc.AppName, sc.Table, sc.DSN,
			postgres.WithMaxInterval(sc.FlushInterval),
			postgres.WithLogger(logger),
		)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Shutdown, nil

	case config.StoreMySQL:
		s, err := mysql.New(sc.AppName, sc.Table, sc.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	}

	return nil, nop, nil
}
