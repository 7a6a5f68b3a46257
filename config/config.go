package config

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/INLOpen/loged/core"
)

// StoreConfig holds the settings of the log store file.
type StoreConfig struct {
	Path          string   `yaml:"path" toml:"path"`
	MaxSizeBytes  uint64   `yaml:"max_size_bytes" toml:"max_size_bytes"`
	StartPosBytes uint64   `yaml:"start_pos_bytes" toml:"start_pos_bytes"`
	Levels        []string `yaml:"levels" toml:"levels"` // e.g. ["fatal", "error"] or ["all"]
	AuditOnly     bool     `yaml:"audit_only" toml:"audit_only"`
	SyncMode      string   `yaml:"sync_mode" toml:"sync_mode"` // "manual" or "always"
	SyncInterval  string   `yaml:"sync_interval" toml:"sync_interval"`
	Preallocate   bool     `yaml:"preallocate" toml:"preallocate"`
	LockTimeout   string   `yaml:"lock_timeout" toml:"lock_timeout"`
}

// LevelMask parses Levels. An empty list means the store default.
func (s StoreConfig) LevelMask() (core.LevelMask, error) {
	if len(s.Levels) == 0 {
		return core.DefaultLevelMask, nil
	}
	m, err := core.ParseLevelMask(s.Levels)
	if err != nil {
		return 0, fmt.Errorf("store.levels: %w", err)
	}
	if m == 0 {
		return 0, fmt.Errorf("store.levels: no severity selected")
	}
	return m, nil
}

// LoggingConfig holds logging-specific configurations.
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`   // e.g., "debug", "info", "warn", "error"
	Output string `yaml:"output" toml:"output"` // e.g., "stdout", "stderr", "file", "none"
	File   string `yaml:"file" toml:"file"`     // Path to the log file, used if output is "file"
}

// ExportConfig controls the export stream.
type ExportConfig struct {
	Compression    string `yaml:"compression" toml:"compression"` // none, snappy, lz4, zstd
	BlockSizeBytes int    `yaml:"block_size_bytes" toml:"block_size_bytes"`
}

// FieldBoundConfig bounds one numeric key of an entry's extra payload.
type FieldBoundConfig struct {
	Field  string  `yaml:"field" toml:"field"`
	Min    float64 `yaml:"min" toml:"min"`
	Max    float64 `yaml:"max" toml:"max"`
	Reject bool    `yaml:"reject" toml:"reject"`
}

// HooksConfig selects the built-in listeners.
type HooksConfig struct {
	WrapAlert        bool               `yaml:"wrap_alert" toml:"wrap_alert"`
	SeverityCounters bool               `yaml:"severity_counters" toml:"severity_counters"`
	FieldBounds      []FieldBoundConfig `yaml:"field_bounds" toml:"field_bounds"`
}

// MetricsConfig controls the expvar counters of the store.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Prefix  string `yaml:"prefix" toml:"prefix"`
}

// Config is the top-level configuration struct.
type Config struct {
	Store   StoreConfig   `yaml:"store" toml:"store"`
	Logging LoggingConfig `yaml:"logging" toml:"logging"`
	Export  ExportConfig  `yaml:"export" toml:"export"`
	Hooks   HooksConfig   `yaml:"hooks" toml:"hooks"`
	Metrics MetricsConfig `yaml:"metrics" toml:"metrics"`
}

// Format is the syntax of a config file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatForPath picks the format from the file extension. Anything other
// than .toml is read as YAML.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Path:          "./loged.log",
			MaxSizeBytes:  0, // adopt the existing file's capacity, core.DefaultMaxSize for new files
			StartPosBytes: 0, // core.DefaultStartPos
			Levels:        []string{"fatal", "error", "warning", "notice"},
			AuditOnly:     false,
			SyncMode:      "manual",
			SyncInterval:  "1s",
			Preallocate:   false,
			LockTimeout:   "0s",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: "stderr",
			File:   "loged.log.txt",
		},
		Export: ExportConfig{
			Compression:    "zstd",
			BlockSizeBytes: 64 * 1024,
		},
		Hooks: HooksConfig{
			WrapAlert:        true,
			SeverityCounters: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Prefix:  "loged_",
		},
	}
}

// ParseDuration parses a duration string. Returns the default duration if the string is empty or invalid.
// Logs a warning if the string is invalid but not empty.
func ParseDuration(durationStr string, defaultDuration time.Duration, logger *slog.Logger) time.Duration {
	if durationStr == "" || durationStr == "0" {
		return defaultDuration
	}
	d, err := time.ParseDuration(durationStr)
	if err != nil {
		if logger != nil {
			logger.Warn("Invalid duration format, using default", "input", durationStr, "default", defaultDuration.String(), "error", err)
		}
		return defaultDuration
	}
	return d
}

// Load reads YAML configuration from an io.Reader over the defaults.
func Load(r io.Reader) (*Config, error) {
	return LoadFormat(r, FormatYAML)
}

// LoadFormat reads configuration in the given format over the defaults.
// A nil or empty reader yields the defaults.
func LoadFormat(r io.Reader, format Format) (*Config, error) {
	cfg := Default()
	if r == nil {
		return cfg, nil
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config data: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}

	switch format {
	case FormatTOML:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("failed to decode config toml: %w", err)
		}
	case FormatYAML, "":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	return cfg, nil
}

// LoadConfig reads configuration from a YAML or TOML file by path. A
// missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Load(nil)
		}
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	return LoadFormat(file, FormatForPath(path))
}
