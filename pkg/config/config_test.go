package config

import (
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CHAINSIGHT_APP_ENV", "dev")
	t.Setenv("CHAINSIGHT_DB_DSN", "postgres://cs:cs@localhost:5432/chainsight")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if !cfg.App.IsDev() {
		t.Fatalf("expected dev environment")
	}
	if cfg.Analytics.MinHistoryDays != 90 {
		t.Fatalf("expected 90-day history minimum, got %d", cfg.Analytics.MinHistoryDays)
	}
	if cfg.Analytics.ADIThreshold != 1.32 {
		t.Fatalf("expected 1.32 adi cutoff, got %f", cfg.Analytics.ADIThreshold)
	}
	if cfg.Segment.Clusters != 8 {
		t.Fatalf("expected 8 clusters by default, got %d", cfg.Segment.Clusters)
	}
	if cfg.Segment.Seed != 42 {
		t.Fatalf("expected seed 42, got %d", cfg.Segment.Seed)
	}
	if cfg.KPI.ServiceExcellent != 0.98 {
		t.Fatalf("expected 0.98 service band, got %f", cfg.KPI.ServiceExcellent)
	}
	if cfg.Eventing.RunIdempotencyTTL != 720*time.Hour {
		t.Fatalf("unexpected idempotency ttl %v", cfg.Eventing.RunIdempotencyTTL)
	}
}

func TestLoadThresholdOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHAINSIGHT_ANALYTICS_SEASONALITY_THRESHOLD", "0.45")
	t.Setenv("CHAINSIGHT_SEGMENT_CLUSTERS", "12")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Analytics.SeasonalityThreshold != 0.45 {
		t.Fatalf("expected overridden seasonality threshold, got %f", cfg.Analytics.SeasonalityThreshold)
	}
	if cfg.Segment.Clusters != 12 {
		t.Fatalf("expected overridden cluster count, got %d", cfg.Segment.Clusters)
	}
}

func TestLoadRejectsClusterCountOutsideRange(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CHAINSIGHT_SEGMENT_CLUSTERS", "3")

	if _, err := Load(); err == nil {
		t.Fatalf("expected cluster range validation error")
	}
}

func TestEnsureDSNFromLegacyParts(t *testing.T) {
	t.Setenv("CHAINSIGHT_APP_ENV", "dev")
	t.Setenv("CHAINSIGHT_DB_DSN", "")
	t.Setenv("CHAINSIGHT_DB_HOST", "db.internal")
	t.Setenv("CHAINSIGHT_DB_USER", "cs")
	t.Setenv("CHAINSIGHT_DB_PASSWORD", "secret")
	t.Setenv("CHAINSIGHT_DB_NAME", "chainsight")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DB.DSN == "" {
		t.Fatalf("expected DSN assembled from legacy parts")
	}
}
