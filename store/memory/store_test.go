package memory_test

import (
	"testing"

	reader "github.com/alexgridx/kinesis-reader"
	"github.com/alexgridx/kinesis-reader/store/memory"
	"github.com/pkg/errors"
)

var _ reader.Store = (*memory.Store)(nil)

func Test_CheckpointLifecycle(t *testing.T) {
	c := memory.New()

	if val, err := c.GetCheckpoint("streamName", "shardID"); err != nil || val != "" {
		t.Fatalf("get checkpoint expected empty, got %q, %v", val, err)
	}

	if err := c.SetCheckpoint("streamName", "shardID", "firstSeqNum"); err != nil {
		t.Fatalf("set checkpoint error: %v", err)
	}
	if err := c.SetCheckpoint("streamName", "shardID", "testSeqNum"); err != nil {
		t.Fatalf("set checkpoint error: %v", err)
	}

	val, err := c.GetCheckpoint("streamName", "shardID")
	if err != nil {
		t.Fatalf("get checkpoint error: %v", err)
	}
	if val != "testSeqNum" {
		t.Fatalf("checkpoint exists expected %s, got %s", "testSeqNum", val)
	}
	if c.Len() != 1 {
		t.Fatalf("checkpoints expected %d, got %d", 1, c.Len())
	}
}

func Test_CheckpointsAreScopedByShard(t *testing.T) {
	c := memory.New()
	c.SetCheckpoint("streamName", "shard-0", "a")
	c.SetCheckpoint("streamName", "shard-1", "b")
	c.SetCheckpoint("otherStream", "shard-0", "c")

	tests := []struct{ stream, shard, want string }{
		{"streamName", "shard-0", "a"},
		{"streamName", "shard-1", "b"},
		{"otherStream", "shard-0", "c"},
		{"otherStream", "shard-1", ""},
	}
	for _, tt := range tests {
		if got, _ := c.GetCheckpoint(tt.stream, tt.shard); got != tt.want {
			t.Errorf("checkpoint %s/%s expected %q, got %q", tt.stream, tt.shard, tt.want, got)
		}
	}
}

func Test_SetEmptySeqNum(t *testing.T) {
	c := memory.New()

	err := c.SetCheckpoint("streamName", "shardID", "")
	if !errors.Is(err, memory.ErrEmptySequenceNumber) {
		t.Fatalf("should not allow empty sequence number")
	}
}
