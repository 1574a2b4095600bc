package redis

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/redis/go-redis/v9"
)

func newTestStore(t *testing.T, opts ...Option) (*Store, *miniredis.Miniredis) {
	t.Helper()

	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis error: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})

	store, err := New("app", append([]Option{WithClient(client)}, opts...)...)
	if err != nil {
		t.Fatalf("new store error: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, s
}

func Test_New(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatalf("should require app name")
	}

	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	if _, err := New("app", WithClient(client)); err == nil {
		t.Fatalf("should fail when server is unreachable")
	}
}

func Test_CheckpointLifecycle(t *testing.T) {
	c, s := newTestStore(t)

	val, err := c.GetCheckpoint("streamName", "shardID")
	if err != nil {
		t.Fatalf("get checkpoint error: %v", err)
	}
	if val != "" {
		t.Fatalf("missing checkpoint expected empty, got %s", val)
	}

	if err := c.SetCheckpoint("streamName", "shardID", "testSeqNum"); err != nil {
		t.Fatalf("set checkpoint error: %v", err)
	}

	val, err = c.GetCheckpoint("streamName", "shardID")
	if err != nil {
		t.Fatalf("get checkpoint error: %v", err)
	}
	if val != "testSeqNum" {
		t.Fatalf("checkpoint exists expected %s, got %s", "testSeqNum", val)
	}

	got, err := s.Get("app:checkpoint:streamName:shardID")
	if err != nil {
		t.Fatalf("miniredis get error: %v", err)
	}
	if got != "testSeqNum" {
		t.Fatalf("stored value expected %s, got %s", "testSeqNum", got)
	}
}

func Test_CheckpointTTL(t *testing.T) {
	c, s := newTestStore(t, WithTTL(time.Minute))

	if err := c.SetCheckpoint("streamName", "shardID", "testSeqNum"); err != nil {
		t.Fatalf("set checkpoint error: %v", err)
	}
	if ttl := s.TTL("app:checkpoint:streamName:shardID"); ttl != time.Minute {
		t.Fatalf("ttl expected %v, got %v", time.Minute, ttl)
	}

	s.FastForward(2 * time.Minute)

	val, err := c.GetCheckpoint("streamName", "shardID")
	if err != nil {
		t.Fatalf("get checkpoint error: %v", err)
	}
	if val != "" {
		t.Fatalf("expired checkpoint expected empty, got %s", val)
	}
}

func Test_SetEmptySeqNum(t *testing.T) {
	c, _ := newTestStore(t)

	if err := c.SetCheckpoint("streamName", "shardID", ""); err == nil {
		t.Fatalf("should not allow empty sequence number")
	}
}

func Test_GetCheckpointError(t *testing.T) {
	c, s := newTestStore(t)
	s.Lpush("app:checkpoint:streamName:shardID", "notASequenceNumber")

	if _, err := c.GetCheckpoint("streamName", "shardID"); err == nil {
		t.Fatalf("get checkpoint expected error for a wrong key type")
	}
}

func Test_key(t *testing.T) {
	c, _ := newTestStore(t)

	want := "app:checkpoint:stream:shard"

	if got := c.key("stream", "shard"); got != want {
		t.Fatalf("checkpoint key, want %s, got %s", want, got)
	}
}
