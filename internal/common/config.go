package common

import (
	"fmt"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string           `toml:"environment"` // "development" or "production"
	Server      ServerConfig     `toml:"server"`
	Storage     StorageConfig    `toml:"storage"`
	Logging     LoggingConfig    `toml:"logging"`
	Jobs        JobsConfig       `toml:"jobs"`
	WebSocket   WebSocketConfig  `toml:"websocket"`
	Screening   ScreeningConfig  `toml:"screening"`
	MarketData  MarketDataConfig `toml:"market_data"`
	Claude      ClaudeConfig     `toml:"claude"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gte=0,lte=65535"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"`
	Output []string `toml:"output"` // "stdout", "file"
}

// JobsConfig controls the execution engine
type JobsConfig struct {
	Workers         int    `toml:"workers" validate:"gte=1,lte=32"` // Concurrent executor slots
	QueueSize       int    `toml:"queue_size" validate:"gte=1"`     // Pending-task buffer before Submit rejects
	RetainJobs      int    `toml:"retain_jobs" validate:"gte=1"`    // Most-recent jobs kept by retention cleanup
	CleanupSchedule string `toml:"cleanup_schedule"`                // Cron expression for periodic retention runs
}

// WebSocketConfig controls push-channel behavior
type WebSocketConfig struct {
	ProgressThrottle string `toml:"progress_throttle"` // Min interval between progress broadcasts per job, e.g. "250ms" (empty = no throttle)
}

// ScreeningConfig points at the strategy definition files
type ScreeningConfig struct {
	StrategiesDir string `toml:"strategies_dir"` // Directory containing strategy YAML files
}

// MarketDataConfig points at the upstream market data API
type MarketDataConfig struct {
	BaseURL string `toml:"base_url" validate:"required"`
	Timeout string `toml:"timeout"`
}

// ClaudeConfig configures the Anthropic client used by the research worker
type ClaudeConfig struct {
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	MaxTokens int    `toml:"max_tokens"`
}

// DefaultConfig returns the baseline configuration before file/env/flag overrides
func DefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/indago",
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
		Jobs: JobsConfig{
			Workers:         3,
			QueueSize:       64,
			RetainJobs:      100,
			CleanupSchedule: "@every 6h",
		},
		WebSocket: WebSocketConfig{
			ProgressThrottle: "",
		},
		Screening: ScreeningConfig{
			StrategiesDir: "./strategies",
		},
		MarketData: MarketDataConfig{
			BaseURL: "http://localhost:8089",
			Timeout: "10s",
		},
		Claude: ClaudeConfig{
			Model:     "claude-sonnet-4-20250514",
			MaxTokens: 4096,
		},
	}
}

// LoadFromFiles loads configuration in priority order:
// defaults -> file1 -> file2 -> ... -> environment variables.
// Later files override earlier ones. Missing paths are an error; an empty
// path list yields defaults plus env overrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := DefaultConfig()

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(config)

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// applyEnvOverrides applies INDAGO_* environment variables over file values
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("INDAGO_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			config.Server.Port = port
		}
	}
	if v := os.Getenv("INDAGO_HOST"); v != "" {
		config.Server.Host = v
	}
	if v := os.Getenv("INDAGO_LOG_LEVEL"); v != "" {
		config.Logging.Level = v
	}
	if v := os.Getenv("INDAGO_BADGER_PATH"); v != "" {
		config.Storage.Badger.Path = v
	}
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" && config.Claude.APIKey == "" {
		config.Claude.APIKey = v
	}
}

// ApplyFlagOverrides applies command-line flag values (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
