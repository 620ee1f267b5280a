package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"sokoni"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"sokoni"`

	// Empty WEAVIATE_HOST switches the similarity index to the in-process
	// implementation. Useful for single-node deployments and local dev.
	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:""`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`
	NSQDHTTP   string `envconfig:"NSQD_HTTP" default:"nsqd:4151"`

	// Hydration
	HydrateConcurrency  int `envconfig:"HYDRATE_CONCURRENCY" default:"20"`
	FetchTimeoutSeconds int `envconfig:"FETCH_TIMEOUT_SECONDS" default:"10"`
	HydrateMaxRetries   int `envconfig:"HYDRATE_MAX_RETRIES" default:"3"`
	HydrateBackoffMS    int `envconfig:"HYDRATE_BACKOFF_BASE_MS" default:"500"`

	// Embedding
	EmbedBatchSize int     `envconfig:"EMBED_BATCH_SIZE" default:"10"`
	VisualWeight   float64 `envconfig:"VISUAL_WEIGHT" default:"0.6"`
	TextWeight     float64 `envconfig:"TEXT_WEIGHT" default:"0.4"`

	// External capabilities
	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	VisionURL    string `envconfig:"VISION_URL"`
	QCURL        string `envconfig:"QC_URL"`
	StorageURL   string `envconfig:"STORAGE_URL"`

	// Server
	ServerPort         int    `envconfig:"SERVER_PORT" default:"8081"`
	QueryLogPath       string `envconfig:"QUERY_LOG_PATH" default:"data/logs/query.log"`
	CatalogParallelism int    `envconfig:"CATALOG_PARALLELISM" default:"4"`
	MigrationPath      string `envconfig:"MIGRATION_PATH" default:"file://migrations"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Try loading .env from current dir and repo root.
	// Ignore errors, as env vars might be set in the shell.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.HydrateConcurrency < 1 {
		return fmt.Errorf("HYDRATE_CONCURRENCY must be at least 1, got %d", c.HydrateConcurrency)
	}
	if c.EmbedBatchSize < 1 {
		return fmt.Errorf("EMBED_BATCH_SIZE must be at least 1, got %d", c.EmbedBatchSize)
	}
	if math.Abs(c.VisualWeight+c.TextWeight-1.0) > 1e-9 {
		return fmt.Errorf("VISUAL_WEIGHT and TEXT_WEIGHT must sum to 1, got %f and %f", c.VisualWeight, c.TextWeight)
	}
	return nil
}
