package redis

import (
	"testing"
	"time"

	"github.com/chainsight-ai/chainsight-backend/pkg/config"
)

func TestIdempotencyKeyNamespacing(t *testing.T) {
	client := &Client{}
	key := client.IdempotencyKey("run:processed:analytics-worker", "abc-123")
	expected := "cs:idempotency:run:processed:analytics-worker:abc-123"
	if key != expected {
		t.Fatalf("expected %q, got %q", expected, key)
	}
}

func TestBuildKeySkipsEmptyParts(t *testing.T) {
	client := &Client{}
	key := client.buildKey("idempotency", "", "id")
	if key != "cs:idempotency:id" {
		t.Fatalf("unexpected key %q", key)
	}
}

func TestOptionsFromConfigRequiresTarget(t *testing.T) {
	if _, err := optionsFromConfig(config.RedisConfig{}); err == nil {
		t.Fatalf("expected error when neither url nor address set")
	}
}

func TestOptionsFromConfigAddress(t *testing.T) {
	cfg := config.RedisConfig{
		Address:      "localhost:6379",
		PoolSize:     4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	}
	opts, err := optionsFromConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.Addr != cfg.Address {
		t.Fatalf("expected addr %q, got %q", cfg.Address, opts.Addr)
	}
	if opts.PoolSize != 4 {
		t.Fatalf("expected pool size carried over, got %d", opts.PoolSize)
	}
}
