package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Download DownloadConfig `yaml:"download"`
	Session  SessionConfig  `yaml:"session"`
	FFmpeg   FFmpegConfig   `yaml:"ffmpeg"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host         string        `yaml:"host" envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `yaml:"port" envconfig:"SERVER_PORT" default:"5000"`
	ReadTimeout  time.Duration `yaml:"read_timeout" envconfig:"SERVER_READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `yaml:"write_timeout" envconfig:"SERVER_WRITE_TIMEOUT" default:"30m"`
}

// StorageConfig holds filesystem storage configuration.
type StorageConfig struct {
	BasePath string `yaml:"base_path" envconfig:"STORAGE_PATH" default:"downloads"`
	TempPath string `yaml:"temp_path" envconfig:"STORAGE_TEMP_PATH" default:"downloads/temp"`
}

// DownloadConfig holds stream download configuration.
type DownloadConfig struct {
	Timeout       time.Duration `yaml:"timeout" envconfig:"DOWNLOAD_TIMEOUT" default:"30m"`
	InfoTimeout   time.Duration `yaml:"info_timeout" envconfig:"DOWNLOAD_INFO_TIMEOUT" default:"60s"`
	RetryDelay    time.Duration `yaml:"retry_delay" envconfig:"DOWNLOAD_RETRY_DELAY" default:"1s"`
	MaxRetryDelay time.Duration `yaml:"max_retry_delay" envconfig:"DOWNLOAD_MAX_RETRY_DELAY" default:"30s"`
	MaxRetries    int           `yaml:"max_retries" envconfig:"DOWNLOAD_MAX_RETRIES" default:"3"`
}

// SessionConfig holds session retention configuration.
type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl" envconfig:"SESSION_TTL" default:"1h"`
	SweepInterval time.Duration `yaml:"sweep_interval" envconfig:"SESSION_SWEEP_INTERVAL" default:"5m"`
}

// FFmpegConfig holds external ffmpeg/ffprobe configuration.
type FFmpegConfig struct {
	BinaryPath string        `yaml:"binary_path" envconfig:"FFMPEG_PATH" default:"ffmpeg"`
	ProbePath  string        `yaml:"probe_path" envconfig:"FFPROBE_PATH" default:"ffprobe"`
	MuxTimeout time.Duration `yaml:"mux_timeout" envconfig:"FFMPEG_MUX_TIMEOUT" default:"20m"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	// Load from YAML file if provided
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	// Override with environment variables
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}

	// Validate
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set.
func (c *Config) Validate() error {
	if c.Storage.BasePath == "" {
		return fmt.Errorf("STORAGE_PATH is required")
	}
	if c.Storage.TempPath == "" {
		return fmt.Errorf("STORAGE_TEMP_PATH is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535")
	}
	if c.Download.MaxRetries < 0 {
		return fmt.Errorf("DOWNLOAD_MAX_RETRIES must not be negative")
	}
	return nil
}

// Address returns the server address in host:port format.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
