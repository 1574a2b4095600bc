// Command seed writes one record per input line to a stream, creating the
// stream when it does not exist. It is meant for local development against
// a Kinesis emulator.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
	"github.com/pkg/errors"

	"github.com/alexgridx/kinesis-reader/internal/config"
	"github.com/alexgridx/kinesis-reader/internal/logging"
)

const maxBatch = 250

// putRecordsAPI is the subset of the Kinesis API used by seed.
type putRecordsAPI interface {
	ListStreams(ctx context.Context, params *kinesis.ListStreamsInput, optFns ...func(*kinesis.Options)) (*kinesis.ListStreamsOutput, error)
	CreateStream(ctx context.Context, params *kinesis.CreateStreamInput, optFns ...func(*kinesis.Options)) (*kinesis.CreateStreamOutput, error)
	PutRecords(ctx context.Context, params *kinesis.PutRecordsInput, optFns ...func(*kinesis.Options)) (*kinesis.PutRecordsOutput, error)
}

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file")
		streamName = flag.String("stream", "", "Stream name")
		input      = flag.String("file", "", "Input file (default stdin)")
		shards     = flag.Int("shards", 2, "Shard count when creating the stream")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *streamName != "" {
		cfg.Stream = *streamName
	}
	if cfg.Stream == "" {
		log.Fatal("stream is required")
	}
	logger := logging.New(os.Stderr, logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	var r io.Reader = os.Stdin
	if *input != "" {
		f, err := os.Open(*input)
		if err != nil {
			log.Fatalf("open input error: %v", err)
		}
		defer f.Close()
		r = f
	}

	ctx := context.Background()
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.AWS.Region)}
	if cfg.AWS.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWS.AccessKeyID, cfg.AWS.SecretAccessKey, cfg.AWS.SessionToken),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		log.Fatalf("aws config error: %v", err)
	}
	client := kinesis.NewFromConfig(awsCfg, func(o *kinesis.Options) {
		if cfg.AWS.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
		}
	})

	created, err := createStream(ctx, client, cfg.Stream, int32(*shards))
	if err != nil {
		log.Fatalf("create stream error: %v", err)
	}
	if created {
		waiter := kinesis.NewStreamExistsWaiter(client)
		if err := waiter.Wait(ctx, &kinesis.DescribeStreamInput{StreamName: aws.String(cfg.Stream)}, time.Minute); err != nil {
			log.Fatalf("wait for stream error: %v", err)
		}
	}

	n, err := seed(ctx, client, cfg.Stream, r)
	if err != nil {
		log.Fatalf("seed error: %v", err)
	}
	logger.Info("seeded stream", "stream", cfg.Stream, "records", n)
}

// createStream creates the stream unless it exists and reports whether it
// did.
func createStream(ctx context.Context, client putRecordsAPI, streamName string, shards int32) (bool, error) {
	p := kinesis.NewListStreamsPaginator(client, &kinesis.ListStreamsInput{})
	for p.HasMorePages() {
		resp, err := p.NextPage(ctx)
		if err != nil {
			return false, errors.Wrap(err, "list streams")
		}
		for _, name := range resp.StreamNames {
			if name == streamName {
				return false, nil
			}
		}
	}

	_, err := client.CreateStream(ctx, &kinesis.CreateStreamInput{
		StreamName: aws.String(streamName),
		ShardCount: aws.Int32(shards),
	})
	return err == nil, errors.Wrap(err, "create stream")
}

// seed puts one record per line of r and returns the number written.
func seed(ctx context.Context, client putRecordsAPI, streamName string, r io.Reader) (int, error) {
	var (
		records []types.PutRecordsRequestEntry
		total   int
	)

	flush := func() error {
		if len(records) == 0 {
			return nil
		}
		resp, err := client.PutRecords(ctx, &kinesis.PutRecordsInput{
			StreamName: aws.String(streamName),
			Records:    records,
		})
		if err != nil {
			return errors.Wrap(err, "put records")
		}
		if failed := aws.ToInt32(resp.FailedRecordCount); failed > 0 {
			return errors.Errorf("put records: %d of %d failed", failed, len(records))
		}
		total += len(records)
		records = nil
		return nil
	}

	b := bufio.NewScanner(r)
	for b.Scan() {
		line := append([]byte(nil), b.Bytes()...)
		records = append(records, types.PutRecordsRequestEntry{
			Data:         line,
			PartitionKey: aws.String(strconv.Itoa(total + len(records))),
		})
		if len(records) >= maxBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := b.Err(); err != nil {
		return total, fmt.Errorf("read input: %w", err)
	}
	return total, flush()
}
