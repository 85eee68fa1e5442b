// Package config reads the pipeline settings from the environment.
//
// An optional .env file in the working directory is loaded first. Every
// setting has a PIPELINE_ variable and a default; command line flags
// override both.
package config

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"cosmossdk.io/log"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Source kinds
const (
	SourceMemory   = "memory"
	SourcePostgres = "postgres"
	SourceSocket   = "socket"
)

// Sink kinds
const (
	SinkStdout   = "stdout"
	SinkPostgres = "postgres"
)

// Config holds the settings of a pipeline run
type Config struct {
	Source string
	Sink   string
	// DSN of the postgres database, for a postgres source or sink
	DSN     string
	Table   string
	Address string
	Key     string
	// Timeout bounds each read from the data source
	Timeout      time.Duration
	StartTimeout time.Duration
	StopTimeout  time.Duration
	Stream       bool
	MailboxSize  int
	BufferSize   int
	MaxRetries   int
	LogLevel     string
	LogJSON      bool
}

// Load reads the configuration from the environment
func Load() (*Config, error) {
	// a missing .env file is fine
	_ = godotenv.Load()

	cfg := &Config{
		Source:       getEnv("PIPELINE_SOURCE", SourceMemory),
		Sink:         getEnv("PIPELINE_SINK", SinkStdout),
		DSN:          getEnv("PIPELINE_DSN", ""),
		Table:        getEnv("PIPELINE_TABLE", "records"),
		Address:      getEnv("PIPELINE_ADDRESS", "127.0.0.1:9999"),
		Key:          getEnv("PIPELINE_KEY", "pipeline"),
		Timeout:      getEnvAsDuration("PIPELINE_TIMEOUT", time.Second),
		StartTimeout: getEnvAsDuration("PIPELINE_START_TIMEOUT", 10*time.Second),
		StopTimeout:  getEnvAsDuration("PIPELINE_STOP_TIMEOUT", 5*time.Second),
		Stream:       getEnvAsBool("PIPELINE_STREAM", true),
		MailboxSize:  getEnvAsInt("PIPELINE_MAILBOX_SIZE", 100),
		BufferSize:   getEnvAsInt("PIPELINE_BUFFER_SIZE", 4096),
		MaxRetries:   getEnvAsInt("PIPELINE_MAX_RETRIES", 10),
		LogLevel:     getEnv("PIPELINE_LOG_LEVEL", "info"),
		LogJSON:      getEnvAsBool("PIPELINE_LOG_JSON", false),
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// Validate checks the configuration is usable
func (c *Config) Validate() error {
	switch c.Source {
	case SourceMemory, SourceSocket:
	case SourcePostgres:
		if c.DSN == "" {
			return errors.New("a postgres source needs a DSN")
		}
	default:
		return errors.Errorf("unknown source %q", c.Source)
	}
	switch c.Sink {
	case SinkStdout:
	case SinkPostgres:
		if c.DSN == "" {
			return errors.New("a postgres sink needs a DSN")
		}
	default:
		return errors.Errorf("unknown sink %q", c.Sink)
	}
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.BufferSize <= 0 {
		return errors.New("buffer size must be positive")
	}
	if c.MailboxSize <= 0 {
		return errors.New("mailbox size must be positive")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "log level")
	}
	return nil
}

// Logger builds the logger described by the configuration
func (c *Config) Logger(out io.Writer) (log.Logger, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.LogLevel))
	if err != nil {
		return nil, errors.Wrap(err, "log level")
	}
	opts := []log.Option{log.LevelOption(level)}
	if c.LogJSON {
		opts = append(opts, log.OutputJSONOption())
	}
	return log.NewLogger(out, opts...), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
