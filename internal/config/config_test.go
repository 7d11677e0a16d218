package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Image.MaxImageSize != 512 {
		t.Errorf("expected default MaxImageSize 512, got %d", cfg.Image.MaxImageSize)
	}
	if cfg.Image.BatchSize != 32 {
		t.Errorf("expected default BatchSize 32, got %d", cfg.Image.BatchSize)
	}
	if cfg.Image.DownloadTimeoutS != 10 {
		t.Errorf("expected default DownloadTimeoutS 10, got %d", cfg.Image.DownloadTimeoutS)
	}
	if cfg.Image.DownloadWorkers != 10 {
		t.Errorf("expected default DownloadWorkers 10, got %d", cfg.Image.DownloadWorkers)
	}
	if cfg.Cache.Dir != "./cache/embeddings" {
		t.Errorf("expected default cache dir './cache/embeddings', got %q", cfg.Cache.Dir)
	}
	if cfg.Aggregator.Strategy != "max" {
		t.Errorf("expected default strategy 'max', got %q", cfg.Aggregator.Strategy)
	}
	if cfg.Aggregator.TopKIllustrations != 3 {
		t.Errorf("expected default TopKIllustrations 3, got %d", cfg.Aggregator.TopKIllustrations)
	}
	if cfg.Encoder.ModelName != ModelCLIPViTB32 {
		t.Errorf("expected default model %q, got %q", ModelCLIPViTB32, cfg.Encoder.ModelName)
	}
}

func TestValidateConfig(t *testing.T) {
	cfg := DefaultConfig()
	if warnings := Validate(cfg); len(warnings) != 0 {
		t.Errorf("expected no warnings for default config, got %v", warnings)
	}

	cfg.Image.DownloadWorkers = 0
	warnings := Validate(cfg)
	if !containsSubstring(warnings, "IMAGE_DOWNLOAD_WORKERS") {
		t.Error("expected warning for invalid download workers")
	}

	cfg.Image.DownloadWorkers = 10
	cfg.Aggregator.Strategy = "bogus"
	warnings = Validate(cfg)
	if !containsSubstring(warnings, "AGGREGATION_STRATEGY") {
		t.Error("expected warning for invalid aggregation strategy")
	}
}

func TestClampOutOfRangeValues(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Image.MaxImageSize = 100000
	cfg.Image.DownloadWorkers = -1
	cfg.Aggregator.TopKIllustrations = 999
	cfg.Aggregator.Strategy = "nonsense"
	cfg.Encoder.ModelName = "unknown-model"

	clamp(cfg)

	if cfg.Image.MaxImageSize != 512 {
		t.Errorf("expected MaxImageSize to clamp back to default, got %d", cfg.Image.MaxImageSize)
	}
	if cfg.Image.DownloadWorkers != 10 {
		t.Errorf("expected DownloadWorkers to clamp back to default, got %d", cfg.Image.DownloadWorkers)
	}
	if cfg.Aggregator.TopKIllustrations != 3 {
		t.Errorf("expected TopKIllustrations to clamp back to default, got %d", cfg.Aggregator.TopKIllustrations)
	}
	if cfg.Aggregator.Strategy != "max" {
		t.Errorf("expected Strategy to clamp back to default, got %q", cfg.Aggregator.Strategy)
	}
	if cfg.Encoder.ModelName != DefaultModelName {
		t.Errorf("expected unknown model name to fall back to default, got %q", cfg.Encoder.ModelName)
	}
}

func TestEnvOverrideCacheDir(t *testing.T) {
	origVal, had := os.LookupEnv("EMBEDDING_CACHE_DIR")
	defer func() {
		if had {
			os.Setenv("EMBEDDING_CACHE_DIR", origVal)
		} else {
			os.Unsetenv("EMBEDDING_CACHE_DIR")
		}
	}()

	os.Setenv("EMBEDDING_CACHE_DIR", "/tmp/custom-cache")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Cache.Dir != "/tmp/custom-cache" {
		t.Errorf("expected cache dir from env, got %q", cfg.Cache.Dir)
	}
}

func TestEnvOverrideAggregationStrategy(t *testing.T) {
	origVal, had := os.LookupEnv("AGGREGATION_STRATEGY")
	defer func() {
		if had {
			os.Setenv("AGGREGATION_STRATEGY", origVal)
		} else {
			os.Unsetenv("AGGREGATION_STRATEGY")
		}
	}()

	os.Setenv("AGGREGATION_STRATEGY", "TOP_K_MEAN")

	cfg := DefaultConfig()
	applyEnvOverrides(cfg)

	if cfg.Aggregator.Strategy != "top_k_mean" {
		t.Errorf("expected lowercased strategy from env, got %q", cfg.Aggregator.Strategy)
	}
}

func containsSubstring(list []string, substr string) bool {
	for _, s := range list {
		if len(s) >= len(substr) {
			for i := 0; i+len(substr) <= len(s); i++ {
				if s[i:i+len(substr)] == substr {
					return true
				}
			}
		}
	}
	return false
}
