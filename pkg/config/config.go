// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Dedup, Worker, Report, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Dedup    DedupConfig    `yaml:"dedup"`
	Worker   WorkerConfig   `yaml:"worker"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Report   ReportConfig   `yaml:"report"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentsStaged string `yaml:"documentsStaged"`
	RunsCompleted   string `yaml:"runsCompleted"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// DedupConfig holds the deduplication pipeline parameters. The signature
// width is Bands*RowsPerBand hashes; Threshold is recorded with each run and
// tuned by choosing the band layout.
type DedupConfig struct {
	NgramSize   int     `yaml:"ngramSize"`
	Bands       int     `yaml:"bands"`
	RowsPerBand int     `yaml:"rowsPerBand"`
	Threshold   float64 `yaml:"threshold"`
	Workers     int     `yaml:"workers"`
}

// WorkerConfig controls the dedup run daemon: the TCP control port its RPC
// surface listens on and the upper bound on documents loaded per run.
type WorkerConfig struct {
	ControlPort   int `yaml:"controlPort"`
	SnapshotLimit int `yaml:"snapshotLimit"`
}

// IngestConfig controls intake validation and per-key rate limiting.
type IngestConfig struct {
	MaxTextBytes  int `yaml:"maxTextBytes"`
	RatePerMinute int `yaml:"ratePerMinute"`
	RateBurst     int `yaml:"rateBurst"`
}

// ReportConfig controls read-side query limits and timeouts.
type ReportConfig struct {
	DefaultLimit int           `yaml:"defaultLimit"`
	MaxLimit     int           `yaml:"maxLimit"`
	QueryTimeout time.Duration `yaml:"queryTimeout"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig controls run tracing (sample rate, endpoint).
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled"`
	Endpoint   string  `yaml:"endpoint"`
	SampleRate float64 `yaml:"sampleRate"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "popcorndata",
			User:            "popcorndata",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "popcorndata-group",
			Topics: KafkaTopics{
				DocumentsStaged: "documents.staged",
				RunsCompleted:   "dedup.runs.completed",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Dedup: DedupConfig{
			NgramSize:   5,
			Bands:       16,
			RowsPerBand: 128,
			Threshold:   0.7,
			Workers:     0,
		},
		Worker: WorkerConfig{
			ControlPort:   7600,
			SnapshotLimit: 500000,
		},
		Ingest: IngestConfig{
			MaxTextBytes:  1 << 20,
			RatePerMinute: 600,
			RateBurst:     60,
		},
		Report: ReportConfig{
			DefaultLimit: 50,
			MaxLimit:     500,
			QueryTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads PDU_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PDU_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PDU_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PDU_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PDU_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PDU_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PDU_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PDU_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PDU_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PDU_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PDU_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PDU_DEDUP_NGRAM_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.NgramSize = n
		}
	}
	if v := os.Getenv("PDU_DEDUP_BANDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.Bands = n
		}
	}
	if v := os.Getenv("PDU_DEDUP_ROWS_PER_BAND"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.RowsPerBand = n
		}
	}
	if v := os.Getenv("PDU_DEDUP_THRESHOLD"); v != "" {
		if t, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dedup.Threshold = t
		}
	}
	if v := os.Getenv("PDU_DEDUP_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.Workers = n
		}
	}
	if v := os.Getenv("PDU_WORKER_CONTROL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Worker.ControlPort = port
		}
	}
	if v := os.Getenv("PDU_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PDU_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
