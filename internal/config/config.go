// Package config loads taskboard settings from a TOML/YAML file, TASKBOARD_
// environment variables and flags, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"
)

// EnvPrefix is the prefix of environment overrides (TASKBOARD_DATABASE_DSN).
const EnvPrefix = "TASKBOARD"

// FileName is the config file name without extension.
const FileName = "taskboard"

// Config is the full configuration.
type Config struct {
	Database       DatabaseConfig  `mapstructure:"database"`
	Server         ServerConfig    `mapstructure:"server"`
	Realtime       RealtimeConfig  `mapstructure:"realtime"`
	Session        SessionConfig   `mapstructure:"session"`
	Log            LogConfig       `mapstructure:"log"`
	Assistant      AssistantConfig `mapstructure:"assistant"`
	RequestTimeout time.Duration   `mapstructure:"request_timeout"`
}

// DatabaseConfig selects the backend.
type DatabaseConfig struct {
	// DSN is a SQLite path, libsql:// URL or postgres:// URL
	DSN string `mapstructure:"dsn"`

	// WASMMemoryPages caps the embedded SQLite's memory (64 KiB pages)
	WASMMemoryPages uint32 `mapstructure:"wasm_memory_pages"`
}

// ServerConfig configures `tb serve` and remote clients.
type ServerConfig struct {
	Port int `mapstructure:"port"`

	// URL of a running server for `tb watch --remote`
	URL string `mapstructure:"url"`
}

// RealtimeConfig configures the reconciler.
type RealtimeConfig struct {
	Debounce  time.Duration `mapstructure:"debounce"`
	QueueSize int           `mapstructure:"queue_size"`
	Tables    []string      `mapstructure:"tables"`
}

// SessionConfig holds the default acting user.
type SessionConfig struct {
	User string `mapstructure:"user"`
}

// LogConfig configures log output.
type LogConfig struct {
	// File enables rotating file logs when set
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AssistantConfig configures `tb ask`. The API key is read from
// ANTHROPIC_API_KEY by the SDK.
type AssistantConfig struct {
	Model     string `mapstructure:"model"`
	MaxTokens int64  `mapstructure:"max_tokens"`
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.dsn", filepath.Join(".taskboard", "tasks.db"))
	v.SetDefault("database.wasm_memory_pages", 4096)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.url", "ws://localhost:8080/realtime")
	v.SetDefault("realtime.debounce", "100ms")
	v.SetDefault("realtime.queue_size", 64)
	v.SetDefault("realtime.tables", []string{})
	v.SetDefault("session.user", "")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("assistant.model", "claude-sonnet-4-5")
	v.SetDefault("assistant.max_tokens", 1024)
	v.SetDefault("request_timeout", "30s")
}

// Load reads configuration into v and decodes it. If path is empty the
// file is searched in ./, ./.taskboard and $XDG_CONFIG_HOME/taskboard; a
// missing file is not an error.
func Load(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		v.AddConfigPath(".taskboard")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "taskboard"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	return Decode(v)
}

// Decode unmarshals the current values of v.
func Decode(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks values that would fail later in confusing ways.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got %d)", c.Server.Port)
	}
	if c.Realtime.Debounce < 0 {
		return fmt.Errorf("realtime.debounce cannot be negative")
	}
	if c.Realtime.QueueSize < 0 {
		return fmt.Errorf("realtime.queue_size cannot be negative")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout cannot be negative")
	}
	return nil
}

// Watch calls onChange with the re-decoded config whenever the loaded file
// changes. Decode errors are logged and the change is skipped.
func Watch(v *viper.Viper, logger *log.Logger, onChange func(*Config)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		c, err := Decode(v)
		if err != nil {
			logger.Printf("Warning: ignoring config change in %s: %v", e.Name, err)
			return
		}
		logger.Printf("Config reloaded from %s", e.Name)
		onChange(c)
	})
	v.WatchConfig()
}

// LogWriter returns where component loggers write: the rotating log file if
// configured, plus stderr when verbose. With neither, logs are discarded.
func (c *LogConfig) LogWriter(verbose bool) io.Writer {
	var writers []io.Writer
	if c.File != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   c.File,
			MaxSize:    c.MaxSizeMB,
			MaxBackups: c.MaxBackups,
			MaxAge:     c.MaxAgeDays,
		})
	}
	if verbose {
		writers = append(writers, os.Stderr)
	}

	switch len(writers) {
	case 0:
		return io.Discard
	case 1:
		return writers[0]
	}
	return io.MultiWriter(writers...)
}

// NewLogger returns a logger with a bracketed component prefix,
// e.g. NewLogger(w, "store") prefixes lines with "[store] ".
func NewLogger(w io.Writer, component string) *log.Logger {
	return log.New(w, "["+component+"] ", log.LstdFlags)
}

// fileLayout mirrors Config with durations as strings for writing.
type fileLayout struct {
	Database struct {
		DSN             string `toml:"dsn"`
		WASMMemoryPages uint32 `toml:"wasm_memory_pages"`
	} `toml:"database"`
	Server struct {
		Port int    `toml:"port"`
		URL  string `toml:"url"`
	} `toml:"server"`
	Realtime struct {
		Debounce  string   `toml:"debounce"`
		QueueSize int      `toml:"queue_size"`
		Tables    []string `toml:"tables"`
	} `toml:"realtime"`
	Session struct {
		User string `toml:"user"`
	} `toml:"session"`
	Log struct {
		File       string `toml:"file"`
		MaxSizeMB  int    `toml:"max_size_mb"`
		MaxBackups int    `toml:"max_backups"`
		MaxAgeDays int    `toml:"max_age_days"`
	} `toml:"log"`
	Assistant struct {
		Model     string `toml:"model"`
		MaxTokens int64  `toml:"max_tokens"`
	} `toml:"assistant"`
	RequestTimeout string `toml:"request_timeout"`
}

// Write encodes c as TOML to path. An existing file is only replaced when
// force is set.
func Write(c *Config, path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var out fileLayout
	out.Database.DSN = c.Database.DSN
	out.Database.WASMMemoryPages = c.Database.WASMMemoryPages
	out.Server.Port = c.Server.Port
	out.Server.URL = c.Server.URL
	out.Realtime.Debounce = c.Realtime.Debounce.String()
	out.Realtime.QueueSize = c.Realtime.QueueSize
	out.Realtime.Tables = c.Realtime.Tables
	out.Session.User = c.Session.User
	out.Log.File = c.Log.File
	out.Log.MaxSizeMB = c.Log.MaxSizeMB
	out.Log.MaxBackups = c.Log.MaxBackups
	out.Log.MaxAgeDays = c.Log.MaxAgeDays
	out.Assistant.Model = c.Assistant.Model
	out.Assistant.MaxTokens = c.Assistant.MaxTokens
	out.RequestTimeout = c.RequestTimeout.String()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := toml.NewEncoder(f).Encode(out); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
