// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Indexer, Histogram, Segmentation, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Default field names used for the persisted index when none are configured.
const (
	DefaultTextField   = "text"
	DefaultLengthField = "length"
)

// Config is the top-level application configuration.
type Config struct {
	Indexer      IndexerConfig      `yaml:"indexer"`
	Histogram    HistogramConfig    `yaml:"histogram"`
	Segmentation SegmentationConfig `yaml:"segmentation"`
	Postgres     PostgresConfig     `yaml:"postgres"`
	Kafka        KafkaConfig        `yaml:"kafka"`
	Redis        RedisConfig        `yaml:"redis"`
	Logging      LoggingConfig      `yaml:"logging"`
	Tracing      TracingConfig      `yaml:"tracing"`
	Metrics      MetricsConfig      `yaml:"metrics"`
}

// IndexerConfig controls field names, token normalisation and the empty
// document policy of the index builder.
type IndexerConfig struct {
	TextField      string        `yaml:"textField"`
	LengthField    string        `yaml:"lengthField"`
	Normalizers    []string      `yaml:"normalizers"`
	EmptyDocuments string        `yaml:"emptyDocuments"`
	BuildTimeout   time.Duration `yaml:"buildTimeout"`
	ProgressDots   bool          `yaml:"progressDots"`
}

// HistogramConfig controls the document-length histogram build.
type HistogramConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SegmentationConfig bounds the materialised pair lists and sets the worker
// count used to fill them.
type SegmentationConfig struct {
	MaxPairs          uint64 `yaml:"maxPairs"`
	Workers           int    `yaml:"workers"`
	ParallelThreshold uint64 `yaml:"parallelThreshold"`
}

// PostgresConfig holds PostgreSQL connection parameters for the histogram
// export.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled bool        `yaml:"enabled"`
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	IndexComplete string `yaml:"indexComplete"`
}

// RedisConfig holds Redis connection parameters for the histogram cache.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	TTL      time.Duration `yaml:"ttl"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles the slog span tree emitted after a pipeline run.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with defaults for any missing
// values.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Config with defaults suitable for a local batch run.
func Default() *Config {
	return &Config{
		Indexer: IndexerConfig{
			TextField:      DefaultTextField,
			LengthField:    DefaultLengthField,
			Normalizers:    []string{"stem"},
			EmptyDocuments: "record",
			ProgressDots:   true,
		},
		Segmentation: SegmentationConfig{
			MaxPairs:          1 << 24,
			Workers:           1,
			ParallelThreshold: 1 << 16,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "coherence",
			User:            "coherence",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				IndexComplete: "index.complete",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 4,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Port: 9090,
		},
	}
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Indexer.TextField) == "" {
		return fmt.Errorf("indexer.textField must not be empty")
	}
	if strings.TrimSpace(c.Indexer.LengthField) == "" {
		return fmt.Errorf("indexer.lengthField must not be empty")
	}
	if c.Indexer.TextField == c.Indexer.LengthField {
		return fmt.Errorf("indexer.textField and indexer.lengthField must differ (both %q)", c.Indexer.TextField)
	}
	switch c.Indexer.EmptyDocuments {
	case "record", "reject":
	default:
		return fmt.Errorf("indexer.emptyDocuments must be record or reject, got %q", c.Indexer.EmptyDocuments)
	}
	if c.Segmentation.Workers < 1 {
		return fmt.Errorf("segmentation.workers must be >= 1, got %d", c.Segmentation.Workers)
	}
	return nil
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_INDEXER_TEXT_FIELD"); v != "" {
		cfg.Indexer.TextField = v
	}
	if v := os.Getenv("SP_INDEXER_LENGTH_FIELD"); v != "" {
		cfg.Indexer.LengthField = v
	}
	if v := os.Getenv("SP_INDEXER_NORMALIZERS"); v != "" {
		cfg.Indexer.Normalizers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_INDEXER_EMPTY_DOCUMENTS"); v != "" {
		cfg.Indexer.EmptyDocuments = v
	}
	if v := os.Getenv("SP_INDEXER_BUILD_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.BuildTimeout = d
		}
	}
	if v := os.Getenv("SP_SEGMENTATION_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Segmentation.Workers = n
		}
	}
	if v := os.Getenv("SP_SEGMENTATION_MAX_PAIRS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			cfg.Segmentation.MaxPairs = n
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
