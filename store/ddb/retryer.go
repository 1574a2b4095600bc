package ddb

import (
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/pkg/errors"
)

// Retryer decides whether a failed DynamoDB call is attempted again
type Retryer interface {
	ShouldRetry(error) bool
}

// DefaultRetryer retries throughput and throttling errors.
type DefaultRetryer struct{}

// ShouldRetry reports whether err is worth another attempt
func (r *DefaultRetryer) ShouldRetry(err error) bool {
	if r == nil || err == nil {
		return false
	}

	var throughput *types.ProvisionedThroughputExceededException
	var limit *types.RequestLimitExceeded
	return errors.As(err, &throughput) || errors.As(err, &limit)
}
