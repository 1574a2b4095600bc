package reader

import (
	"context"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kinesis"
	"github.com/aws/aws-sdk-go-v2/service/kinesis/types"
)

// findShard pages through DescribeStream until match returns true for a
// shard, or the shard list is exhausted. The boolean result reports whether
// a shard matched.
func findShard(ctx context.Context, client Client, streamName string, match func(types.Shard) bool) (types.Shard, bool, error) {
	input := &kinesis.DescribeStreamInput{
		StreamName: aws.String(streamName),
	}

	for {
		resp, err := client.DescribeStream(ctx, input)
		if err != nil {
			return types.Shard{}, false, err
		}
		desc := resp.StreamDescription
		if desc == nil {
			return types.Shard{}, false, nil
		}

		for _, shard := range desc.Shards {
			if match(shard) {
				return shard, true, nil
			}
		}

		if !aws.ToBool(desc.HasMoreShards) || len(desc.Shards) == 0 {
			return types.Shard{}, false, nil
		}

		input = &kinesis.DescribeStreamInput{
			StreamName:            aws.String(streamName),
			ExclusiveStartShardId: desc.Shards[len(desc.Shards)-1].ShardId,
		}
	}
}
