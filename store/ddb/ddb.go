// Package ddb stores reader checkpoints in a DynamoDB table keyed by
// namespace and shard_id. Writes are buffered and flushed periodically.
package ddb

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

const maxAttempts = 3

// Client is the subset of the DynamoDB API used by the store.
type Client interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Option is used to override defaults when creating a new Store
type Option func(*Store)

// WithMaxInterval sets the flush interval
func WithMaxInterval(maxInterval time.Duration) Option {
	return func(s *Store) {
		s.maxInterval = maxInterval
	}
}

// WithDynamoClient sets the DynamoDB client
func WithDynamoClient(svc Client) Option {
	return func(s *Store) {
		s.client = svc
	}
}

// WithRetryer sets the retryer
func WithRetryer(r Retryer) Option {
	return func(s *Store) {
		s.retryer = r
	}
}

// WithLogger sets the logger used for background flush errors
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New returns a store that uses DynamoDB for underlying storage
func New(appName, tableName string, opts ...Option) (*Store, error) {
	if appName == "" || tableName == "" {
		return nil, errors.New("must provide app name and table name")
	}

	s := &Store{
		tableName:   tableName,
		appName:     appName,
		maxInterval: time.Minute,
		done:        make(chan struct{}),
		stopped:     make(chan struct{}),
		checkpoints: map[key]string{},
		retryer:     &DefaultRetryer{},
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(s)
	}

	// default client
	if s.client == nil {
		cfg, err := config.LoadDefaultConfig(context.TODO())
		if err != nil {
			return nil, errors.Wrap(err, "load aws config")
		}
		s.client = dynamodb.NewFromConfig(cfg)
	}

	go s.loop()

	return s, nil
}

// Store buffers the latest checkpoint per shard and writes them to the
// table on every tick and on Shutdown.
type Store struct {
	tableName   string
	appName     string
	client      Client
	maxInterval time.Duration
	retryer     Retryer
	logger      *slog.Logger

	mu          sync.Mutex // protects the checkpoints
	checkpoints map[key]string

	done     chan struct{}
	stopped  chan struct{}
	shutdown sync.Once
}

type key struct {
	streamName string
	shardID    string
}

type item struct {
	Namespace      string `dynamodbav:"namespace"`
	ShardID        string `dynamodbav:"shard_id"`
	SequenceNumber string `dynamodbav:"sequence_number"`
}

// GetCheckpoint returns the stored checkpoint for a shard, or an empty
// string when the shard has none. Checkpoints still buffered are not
// visible until flushed.
func (s *Store) GetCheckpoint(streamName, shardID string) (string, error) {
	params := &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"namespace": &types.AttributeValueMemberS{
				Value: s.namespace(streamName),
			},
			"shard_id": &types.AttributeValueMemberS{
				Value: shardID,
			},
		},
	}

	var (
		resp *dynamodb.GetItemOutput
		err  error
	)
	for attempt := 1; ; attempt++ {
		resp, err = s.client.GetItem(context.Background(), params)
		if err == nil || attempt >= maxAttempts || !s.retryer.ShouldRetry(err) {
			break
		}
	}
	if err != nil {
		return "", errors.Wrapf(err, "get item %s/%s", s.namespace(streamName), shardID)
	}

	var i item
	if err := attributevalue.UnmarshalMap(resp.Item, &i); err != nil {
		return "", errors.Wrap(err, "unmarshal checkpoint")
	}
	return i.SequenceNumber, nil
}

// SetCheckpoint buffers the sequence number as the shard's checkpoint.
func (s *Store) SetCheckpoint(streamName, shardID, sequenceNumber string) error {
	if sequenceNumber == "" {
		return errors.New("sequence number should not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.checkpoints[key{streamName: streamName, shardID: shardID}] = sequenceNumber
	return nil
}

// Shutdown stops the flush loop and saves any buffered checkpoints.
func (s *Store) Shutdown() error {
	s.shutdown.Do(func() {
		close(s.done)
	})
	<-s.stopped
	return s.save()
}

func (s *Store) loop() {
	tick := time.NewTicker(s.maxInterval)
	defer tick.Stop()
	defer close(s.stopped)

	for {
		select {
		case <-tick.C:
			if err := s.save(); err != nil {
				s.logger.Error("checkpoint flush error",
					slog.String("table", s.tableName),
					slog.String("error", err.Error()),
				)
			}
		case <-s.done:
			return
		}
	}
}

// save writes every buffered checkpoint. Written entries leave the buffer;
// failed ones stay for the next flush.
func (s *Store) save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, sequenceNumber := range s.checkpoints {
		av, err := attributevalue.MarshalMap(item{
			Namespace:      s.namespace(k.streamName),
			ShardID:        k.shardID,
			SequenceNumber: sequenceNumber,
		})
		if err != nil {
			return errors.Wrap(err, "marshal checkpoint")
		}

		input := &dynamodb.PutItemInput{
			TableName: aws.String(s.tableName),
			Item:      av,
		}
		for attempt := 1; ; attempt++ {
			_, err = s.client.PutItem(context.TODO(), input)
			if err == nil || attempt >= maxAttempts || !s.retryer.ShouldRetry(err) {
				break
			}
		}
		if err != nil {
			return errors.Wrapf(err, "put item %s/%s", s.namespace(k.streamName), k.shardID)
		}
		delete(s.checkpoints, k)
	}

	return nil
}

func (s *Store) namespace(streamName string) string {
	return fmt.Sprintf("%s-%s", s.appName, streamName)
}
