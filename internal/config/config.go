// Package config loads PortfolioMatch configuration from a TOML file,
// applies environment variable overrides, and clamps values to the
// ranges the core requires.
package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration object.
type Config struct {
	Image      ImageConfig      `toml:"image"`
	Encoder    EncoderConfig    `toml:"encoder"`
	Cache      CacheConfig      `toml:"cache"`
	Aggregator AggregatorConfig `toml:"aggregator"`
	Database   DatabaseConfig   `toml:"database"`
}

// ImageConfig controls Component A (fetch) and the memory/latency guard
// resize Component C performs before handing images to the encoder.
type ImageConfig struct {
	MaxImageSize     int   `toml:"max_image_size"`
	BatchSize        int   `toml:"batch_size"`
	DownloadTimeoutS int   `toml:"download_timeout_s"`
	DownloadWorkers  int   `toml:"download_workers"`
	MaxResponseBytes int64 `toml:"max_response_bytes"`
}

// EncoderConfig selects and configures Component C, the embedding
// generator.
type EncoderConfig struct {
	ModelName string `toml:"model_name"`
	BaseURL   string `toml:"base_url"`
	APIKey    string `toml:"api_key"`
	Dimension int    `toml:"dimension"`
}

// CacheConfig controls Component B, the durable embedding cache.
type CacheConfig struct {
	Dir            string `toml:"dir"`
	WatchForTamper bool   `toml:"watch_for_tamper"`
}

// AggregatorConfig controls Component D.
type AggregatorConfig struct {
	Strategy          string `toml:"strategy"`
	TopKIllustrations int    `toml:"top_k_illustrations"`
}

// DatabaseConfig controls the optional query-history sink
// (internal/analytics). Disabled by default: the core must function
// with nothing but a local cache directory.
type DatabaseConfig struct {
	Enabled   bool   `toml:"enabled"`
	URL       string `toml:"url"`
	Namespace string `toml:"namespace"`
	Database  string `toml:"database"`
	Username  string `toml:"username"`
	Password  string `toml:"password"`
}

// Known encoder models; any other value falls back to DefaultModelName.
const (
	ModelCLIPViTB32        = "clip-ViT-B-32"
	ModelOpenAITextEmbed3S = "text-embedding-3-small"
	ModelGeminiEmbedding   = "gemini-embedding-001"

	DefaultModelName = ModelCLIPViTB32
)

func knownModelNames() map[string]bool {
	return map[string]bool{
		ModelCLIPViTB32:        true,
		ModelOpenAITextEmbed3S: true,
		ModelGeminiEmbedding:   true,
	}
}

// Load reads configuration from path (or, if empty, from a set of
// default locations), then applies environment overrides. A missing or
// unparsable file among the default locations is skipped and defaults
// are kept; an explicitly named path that cannot be read or parsed is
// returned as an error. Out-of-range values are logged as warnings and
// replaced by their defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		locations := []string{
			".portfoliomatch/config.toml",
			filepath.Join(os.Getenv("HOME"), ".portfoliomatch/config.toml"),
			"/etc/portfoliomatch/config.toml",
		}
		for _, loc := range locations {
			if _, err := os.Stat(loc); err == nil {
				if _, err := toml.DecodeFile(loc, cfg); err == nil {
					break
				}
			}
		}
	}

	applyEnvOverrides(cfg)
	for _, w := range Validate(cfg) {
		log.Printf("Warning: %s", w)
	}
	clamp(cfg)

	return cfg, nil
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() *Config {
	return &Config{
		Image: ImageConfig{
			MaxImageSize:     512,
			BatchSize:        32,
			DownloadTimeoutS: 10,
			DownloadWorkers:  10,
			MaxResponseBytes: 20 * 1024 * 1024,
		},
		Encoder: EncoderConfig{
			ModelName: DefaultModelName,
			Dimension: 512,
		},
		Cache: CacheConfig{
			Dir:            "./cache/embeddings",
			WatchForTamper: true,
		},
		Aggregator: AggregatorConfig{
			Strategy:          "max",
			TopKIllustrations: 3,
		},
		Database: DatabaseConfig{
			Enabled:   false,
			URL:       "ws://localhost:8000",
			Namespace: "portfoliomatch",
			Database:  "main",
		},
	}
}

// Validate returns human-readable warnings for any value that falls
// outside its documented range. It never returns an error: callers are
// expected to clamp (see clamp) and keep running.
func Validate(cfg *Config) []string {
	var warnings []string

	if cfg.Image.MaxImageSize < 1 || cfg.Image.MaxImageSize > 2048 {
		warnings = append(warnings, "MAX_IMAGE_SIZE must be between 1 and 2048")
	}
	if cfg.Image.BatchSize < 1 || cfg.Image.BatchSize > 128 {
		warnings = append(warnings, "IMAGE_BATCH_SIZE must be between 1 and 128")
	}
	if cfg.Image.DownloadTimeoutS < 1 || cfg.Image.DownloadTimeoutS > 60 {
		warnings = append(warnings, "IMAGE_DOWNLOAD_TIMEOUT must be between 1 and 60 seconds")
	}
	if cfg.Image.DownloadWorkers < 1 || cfg.Image.DownloadWorkers > 50 {
		warnings = append(warnings, "IMAGE_DOWNLOAD_WORKERS must be between 1 and 50")
	}
	if cfg.Cache.Dir == "" {
		warnings = append(warnings, "EMBEDDING_CACHE_DIR cannot be empty")
	}
	switch cfg.Aggregator.Strategy {
	case "max", "mean", "weighted_mean", "top_k_mean":
	default:
		warnings = append(warnings, "AGGREGATION_STRATEGY must be one of max, mean, weighted_mean, top_k_mean")
	}
	if cfg.Aggregator.TopKIllustrations < 1 || cfg.Aggregator.TopKIllustrations > 20 {
		warnings = append(warnings, "TOP_K_ILLUSTRATIONS must be between 1 and 20")
	}
	if !knownModelNames()[cfg.Encoder.ModelName] {
		warnings = append(warnings, "CLIP_MODEL_NAME not recognized, falling back to default")
	}
	if cfg.Database.Enabled && cfg.Database.URL == "" {
		warnings = append(warnings, "database.url cannot be empty when database.enabled is true")
	}

	return warnings
}

// clamp forces every field into its documented range, falling back to
// defaults for anything Validate flagged. Invalid values are logged at
// warning level by Load, before it calls clamp, not here.
func clamp(cfg *Config) {
	d := DefaultConfig()

	cfg.Image.MaxImageSize = clampInt(cfg.Image.MaxImageSize, 1, 2048, d.Image.MaxImageSize)
	cfg.Image.BatchSize = clampInt(cfg.Image.BatchSize, 1, 128, d.Image.BatchSize)
	cfg.Image.DownloadTimeoutS = clampInt(cfg.Image.DownloadTimeoutS, 1, 60, d.Image.DownloadTimeoutS)
	cfg.Image.DownloadWorkers = clampInt(cfg.Image.DownloadWorkers, 1, 50, d.Image.DownloadWorkers)
	if cfg.Image.MaxResponseBytes <= 0 {
		cfg.Image.MaxResponseBytes = d.Image.MaxResponseBytes
	}

	cfg.Aggregator.TopKIllustrations = clampInt(cfg.Aggregator.TopKIllustrations, 1, 20, d.Aggregator.TopKIllustrations)
	switch cfg.Aggregator.Strategy {
	case "max", "mean", "weighted_mean", "top_k_mean":
	default:
		cfg.Aggregator.Strategy = d.Aggregator.Strategy
	}

	if cfg.Cache.Dir == "" {
		cfg.Cache.Dir = d.Cache.Dir
	}

	if !knownModelNames()[cfg.Encoder.ModelName] {
		cfg.Encoder.ModelName = DefaultModelName
	}
	if cfg.Encoder.Dimension <= 0 {
		cfg.Encoder.Dimension = d.Encoder.Dimension
	}
}

func clampInt(v, lo, hi, fallback int) int {
	if v < lo || v > hi {
		return fallback
	}
	return v
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MAX_IMAGE_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Image.MaxImageSize = i
		}
	}
	if v := os.Getenv("IMAGE_BATCH_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Image.BatchSize = i
		}
	}
	if v := os.Getenv("IMAGE_DOWNLOAD_TIMEOUT"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Image.DownloadTimeoutS = i
		}
	}
	if v := os.Getenv("IMAGE_DOWNLOAD_WORKERS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Image.DownloadWorkers = i
		}
	}
	if v := os.Getenv("EMBEDDING_CACHE_DIR"); v != "" {
		cfg.Cache.Dir = v
	}
	if v := os.Getenv("AGGREGATION_STRATEGY"); v != "" {
		cfg.Aggregator.Strategy = strings.ToLower(v)
	}
	if v := os.Getenv("TOP_K_ILLUSTRATIONS"); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			cfg.Aggregator.TopKIllustrations = i
		}
	}
	if v := os.Getenv("CLIP_MODEL_NAME"); v != "" {
		cfg.Encoder.ModelName = v
	}
	if v := os.Getenv("CLIP_ENCODER_BASE_URL"); v != "" {
		cfg.Encoder.BaseURL = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		cfg.Encoder.APIKey = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" && cfg.Encoder.ModelName == ModelGeminiEmbedding {
		cfg.Encoder.APIKey = v
	}

	if v := os.Getenv("PORTFOLIOMATCH_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
		cfg.Database.Enabled = true
	}
	if v := os.Getenv("PORTFOLIOMATCH_DATABASE_NAMESPACE"); v != "" {
		cfg.Database.Namespace = v
	}
	if v := os.Getenv("PORTFOLIOMATCH_DATABASE_DATABASE"); v != "" {
		cfg.Database.Database = v
	}
}
