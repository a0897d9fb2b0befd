package config

import (
	"context"
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Netuid != 22 {
		t.Fatalf("unexpected default netuid %d", cfg.Netuid)
	}
	if cfg.MovingAverageAlpha != 0.05 {
		t.Fatalf("unexpected default alpha %v", cfg.MovingAverageAlpha)
	}
	if cfg.HistoryRetention != 2*time.Hour {
		t.Fatalf("unexpected default retention %v", cfg.HistoryRetention)
	}
	if cfg.CommitBlockThreshold != 20 {
		t.Fatalf("unexpected default commit threshold %d", cfg.CommitBlockThreshold)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("NETUID", "41")
	t.Setenv("MOVING_AVERAGE_ALPHA", "0.2")
	t.Setenv("ORGANIC_HISTORY_RETENTION", "45m")

	cfg, err := LoadConfig(context.Background())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.Netuid != 41 || cfg.MovingAverageAlpha != 0.2 || cfg.HistoryRetention != 45*time.Minute {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestNewIntervalConfig(t *testing.T) {
	if NewIntervalConfig("prod") != ProdIntervalConfig {
		t.Fatal("prod should map to the prod intervals")
	}
	if NewIntervalConfig("TEST") != TestIntervalConfig {
		t.Fatal("environment lookup should be case insensitive")
	}
	if NewIntervalConfig("unknown") != DevIntervalConfig {
		t.Fatal("unknown environments should fall back to dev intervals")
	}
}
