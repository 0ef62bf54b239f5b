package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.HTTPAddr != ":8000" {
		t.Errorf("expected HTTPAddr :8000, got %s", cfg.HTTPAddr)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected MetricsAddr :9090, got %s", cfg.MetricsAddr)
	}
	if cfg.GRPCAddr != "" {
		t.Errorf("expected gRPC to be disabled by default, got %s", cfg.GRPCAddr)
	}
	if cfg.StorageDriver != StorageDriverMemory {
		t.Errorf("expected StorageDriver %s, got %s", StorageDriverMemory, cfg.StorageDriver)
	}
	if !cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be true")
	}
	if cfg.KafkaBrokers != "" {
		t.Error("expected kafka to be disabled by default")
	}
	if cfg.OutboxPollInterval <= 0 {
		t.Error("expected OutboxPollInterval to be > 0")
	}
	if cfg.OutboxBatchSize <= 0 {
		t.Error("expected OutboxBatchSize to be > 0")
	}
	if cfg.OutboxMaxAttempts <= 0 {
		t.Error("expected OutboxMaxAttempts to be > 0")
	}
	if cfg.OutboxRetryDelay < 0 {
		t.Error("expected OutboxRetryDelay to be >= 0")
	}
	if cfg.OutboxMaxPending <= 0 {
		t.Error("expected OutboxMaxPending to be > 0")
	}
	if cfg.IdempotencyTTL != 24*time.Hour {
		t.Errorf("expected IdempotencyTTL 24h, got %s", cfg.IdempotencyTTL)
	}
	if cfg.IdempotencyCleanupInterval <= 0 {
		t.Error("expected IdempotencyCleanupInterval to be > 0")
	}
	if cfg.IdempotencyCleanupBatchSize <= 0 {
		t.Error("expected IdempotencyCleanupBatchSize to be > 0")
	}
	if cfg.ProductCacheTTL != 5*time.Minute {
		t.Errorf("expected ProductCacheTTL 5m, got %s", cfg.ProductCacheTTL)
	}
}

func TestConfig_Comparison(t *testing.T) {
	cfg1 := DefaultConfig()
	cfg2 := DefaultConfig()

	if cfg1 != cfg2 {
		t.Error("two DefaultConfig instances should be equal")
	}

	cfg2.HTTPAddr = ":8080"
	if cfg1 == cfg2 {
		t.Error("modified config should not be equal to original")
	}
}

func TestConfig_ZeroValue(t *testing.T) {
	var cfg Config

	if cfg.HTTPAddr != "" || cfg.MetricsAddr != "" || cfg.StorageDriver != "" {
		t.Errorf("zero value config should have empty addresses and driver, got %+v", cfg)
	}
	if cfg.PostgresAutoMigrate {
		t.Error("expected PostgresAutoMigrate to be false for zero value")
	}
}

func TestConfig_Brokers(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{raw: "", want: nil},
		{raw: " , ,", want: nil},
		{raw: "kafka:9092", want: []string{"kafka:9092"}},
		{raw: "broker1:9092, broker2:9092,,broker3:9092 ", want: []string{"broker1:9092", "broker2:9092", "broker3:9092"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Config{KafkaBrokers: tt.raw}.Brokers(), "raw %q", tt.raw)
	}
}
