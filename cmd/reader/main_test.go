package main

import (
	"io"
	"log/slog"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/alexgridx/kinesis-reader/internal/config"
	"github.com/alexgridx/kinesis-reader/store/memory"
)

func TestNewStore(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := config.Config{Stream: "orders"}
	config.ApplyDefaults(&cfg)

	s, closeStore, err := newStore(aws.Config{}, cfg, logger)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if s != nil {
		t.Errorf("store %q expected no store, got %T", cfg.Store.Type, s)
	}
	if err := closeStore(); err != nil {
		t.Errorf("close: %v", err)
	}

	cfg.Store.Type = config.StoreMemory
	s, _, err = newStore(aws.Config{}, cfg, logger)
	if err != nil {
		t.Fatalf("newStore: %v", err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("store %q expected *memory.Store, got %T", cfg.Store.Type, s)
	}
}
