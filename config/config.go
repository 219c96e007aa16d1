// Package config loads lokilog settings from defaults, an optional YAML file
// and LOKILOG_* environment variables, and wires the resulting sinks onto a
// named logger.
package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/trickstertwo/lokilog"
	"github.com/trickstertwo/lokilog/sink/console"
	"github.com/trickstertwo/lokilog/sink/loki"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "LOKILOG_"

var (
	// ErrInvalidConfig wraps every validation failure.
	ErrInvalidConfig = errors.New("lokilog configuration not valid")
	// ErrParsing wraps YAML and environment decoding failures.
	ErrParsing = errors.New("error parsing lokilog configuration")
)

// Config is the flat, file- and env-friendly form of a Loki logger setup.
type Config struct {
	URL             string            `yaml:"endpoint_url" env:"URL"`
	JobName         string            `yaml:"job_name" env:"JOB_NAME"`
	Env             string            `yaml:"env" env:"ENV"`
	Tags            map[string]string `yaml:"tags" env:"TAGS" envKeyValSeparator:"="`
	ProtocolVersion string            `yaml:"protocol_version" env:"PROTOCOL_VERSION"`
	Level           string            `yaml:"level" env:"LEVEL"`
	Console         bool              `yaml:"console" env:"CONSOLE"`
	ConsoleFormat   string            `yaml:"console_format" env:"CONSOLE_FORMAT"`

	BatchSize       int           `yaml:"batch_size" env:"BATCH_SIZE"`
	BatchWait       time.Duration `yaml:"batch_wait" env:"BATCH_WAIT"`
	QueueSize       int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	EnqueueTimeout  time.Duration `yaml:"enqueue_timeout" env:"ENQUEUE_TIMEOUT"`
	Timeout         time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Retries         int           `yaml:"retries" env:"RETRIES"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	Compression     string        `yaml:"compression" env:"COMPRESSION"`

	Tenant   string `yaml:"tenant" env:"TENANT"`
	Username string `yaml:"username" env:"USERNAME"`
	Password string `yaml:"password" env:"PASSWORD"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		JobName:         "qa_automation",
		Env:             "production",
		ProtocolVersion: loki.VersionJSON,
		Level:           "info",
		Console:         true,
		ConsoleFormat:   "auto",
		BatchSize:       100,
		BatchWait:       time.Second,
		QueueSize:       10000,
		EnqueueTimeout:  100 * time.Millisecond,
		Timeout:         5 * time.Second,
		ShutdownTimeout: 3 * time.Second,
		Compression:     loki.CompressionNone,
	}
}

// Load applies the YAML file at path (skipped when empty) and then the
// environment over Default, and validates the result.
func Load(path string) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without validation, for callers that apply further
// overrides (command line flags) before validating.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %s", ErrParsing, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: %s: %s", ErrParsing, path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrParsing, err)
	}
	return cfg, nil
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	errorsList := make([]string, 0)

	if c.URL == "" {
		errorsList = append(errorsList, "endpoint_url is required")
	}
	if strings.TrimSpace(c.JobName) == "" {
		errorsList = append(errorsList, "job_name must not be empty")
	}
	if c.Env == "" {
		errorsList = append(errorsList, "env must not be empty")
	}
	if _, err := lokilog.ParseLevel(c.Level); err != nil {
		errorsList = append(errorsList, err.Error())
	}
	if _, err := console.ParseFormat(c.ConsoleFormat); err != nil {
		errorsList = append(errorsList, err.Error())
	}
	switch c.ProtocolVersion {
	case loki.VersionLegacy, loki.VersionJSON, loki.VersionProto:
	default:
		errorsList = append(errorsList, fmt.Sprintf("protocol_version %q is not one of 0, 1, proto", c.ProtocolVersion))
	}
	switch c.Compression {
	case "", loki.CompressionNone, loki.CompressionGzip:
	default:
		errorsList = append(errorsList, fmt.Sprintf("compression %q is not one of none, gzip", c.Compression))
	}
	if c.BatchSize < 0 || c.QueueSize < 0 || c.Retries < 0 {
		errorsList = append(errorsList, "batch_size, queue_size and retries must not be negative")
	}

	if len(errorsList) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(errorsList, ", "))
	}
	return nil
}

// MinLevel is the parsed Level, LevelInfo when it does not parse.
func (c Config) MinLevel() lokilog.Level {
	l, err := lokilog.ParseLevel(c.Level)
	if err != nil {
		return lokilog.LevelInfo
	}
	return l
}

// StreamTags returns Tags with job and env set from JobName and Env.
func (c Config) StreamTags() loki.Tags {
	tags := make(loki.Tags, len(c.Tags)+2)
	maps.Copy(tags, c.Tags)
	tags["job"] = c.JobName
	tags["env"] = c.Env
	return tags
}

// LokiConfig translates c into the handler configuration.
func (c Config) LokiConfig() loki.Config {
	return loki.Config{
		URL:             c.URL,
		Tags:            c.StreamTags(),
		RequiredTags:    []string{"job", "env"},
		Version:         c.ProtocolVersion,
		MinLevel:        c.MinLevel(),
		BatchSize:       c.BatchSize,
		BatchWait:       c.BatchWait,
		QueueSize:       c.QueueSize,
		EnqueueTimeout:  c.EnqueueTimeout,
		Timeout:         c.Timeout,
		Retries:         c.Retries,
		ShutdownTimeout: c.ShutdownTimeout,
		Compression:     c.Compression,
		Tenant:          c.Tenant,
		Username:        c.Username,
		Password:        c.Password,
	}
}
