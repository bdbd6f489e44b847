package qcore

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds the runtime settings of an Application.
type Config struct {
	// LogLevel is a zerolog level name ("debug", "info", "warn", ...).
	LogLevel string `yaml:"log_level"`
	// LogFormat is "json" or "console". Empty selects by terminal detection.
	LogFormat string `yaml:"log_format"`
	// MaxThreads bounds the number of worker threads that may run at once.
	MaxThreads int `yaml:"max_threads"`
	// QueueWarnLength logs a warning whenever a thread's posted event queue
	// reaches this length. Zero disables the check.
	QueueWarnLength int `yaml:"queue_warn_length"`
	// WarnRate is the number of misuse warnings per category allowed each
	// second. Zero disables rate limiting.
	WarnRate int `yaml:"warn_rate"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel:        "warn",
		MaxThreads:      64,
		QueueWarnLength: 10000,
		WarnRate:        10,
	}
}

// ParseConfig decodes YAML over the defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("qcore: parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("qcore: read config: %w", err)
	}
	return ParseConfig(data)
}

func (c *Config) level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.WarnLevel
	}
	return lvl
}

func (c *Config) validate() error {
	if c.LogLevel != "" {
		if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("qcore: invalid log_level %q: %w", c.LogLevel, err)
		}
	}
	switch c.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("qcore: invalid log_format %q", c.LogFormat)
	}
	if c.MaxThreads < 1 {
		return fmt.Errorf("qcore: max_threads must be positive, got %d", c.MaxThreads)
	}
	if c.QueueWarnLength < 0 || c.WarnRate < 0 {
		return fmt.Errorf("qcore: queue_warn_length and warn_rate must not be negative")
	}
	return nil
}
