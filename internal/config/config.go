package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dl-alexandre/gdmirror/internal/types"
	"github.com/dl-alexandre/gdmirror/internal/utils"
)

const (
	// ConfigFileName is the name of the config file
	ConfigFileName = "config.json"
	// CacheFileName is the default name of the sqlite metadata cache
	CacheFileName = "cache.db"
	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "GDMIRROR_"
)

// Config holds application configuration
type Config struct {
	// DefaultProfile is the default authentication profile to use
	DefaultProfile string `json:"defaultProfile"`

	// DefaultOutputFormat is the default output format (json, table)
	DefaultOutputFormat types.OutputFormat `json:"defaultOutputFormat"`

	// MaxAttempts is the number of calls the rate-limit retrier makes before giving up
	MaxAttempts int `json:"maxAttempts"`

	// UploadChunkSize is the resumable upload chunk size in bytes
	UploadChunkSize int `json:"uploadChunkSize"`

	// ResumableThreshold is the file size above which uploads are chunked
	ResumableThreshold int64 `json:"resumableThreshold"`

	// LogLevel sets the logging verbosity (quiet, normal, verbose, debug)
	LogLevel string `json:"logLevel"`

	// ColorOutput enables color output for table format
	ColorOutput bool `json:"colorOutput"`

	// CachePath is the sqlite cache location; empty means <config dir>/cache.db
	CachePath string `json:"cachePath,omitempty"`

	// ExcludePatterns are extra glob patterns skipped by upload-tree
	ExcludePatterns []string `json:"excludePatterns,omitempty"`
}

var validLogLevels = []string{"quiet", "normal", "verbose", "debug"}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		DefaultProfile:      "default",
		DefaultOutputFormat: types.OutputFormatJSON,
		MaxAttempts:         utils.DefaultMaxAttempts,
		UploadChunkSize:     utils.UploadChunkSize,
		ResumableThreshold:  utils.UploadSimpleMaxBytes,
		LogLevel:            "normal",
		ColorOutput:         true,
	}
}

// Load loads configuration with precedence: CLI flags > env vars > config file > defaults.
// An empty path means the default config file location.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return nil, err
		}
	}

	if err := cfg.loadFromFile(path); err != nil {
		// Config file not existing is not an error
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFile reads defaults overlaid with the file at path, without env
// overrides or validation. A missing file yields the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := cfg.loadFromFile(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv(EnvPrefix + "DEFAULT_PROFILE"); v != "" {
		c.DefaultProfile = v
	}
	if v := os.Getenv(EnvPrefix + "OUTPUT_FORMAT"); v != "" {
		c.DefaultOutputFormat = types.OutputFormat(v)
	}
	if v := os.Getenv(EnvPrefix + "MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.MaxAttempts = n
		}
	}
	if v := os.Getenv(EnvPrefix + "UPLOAD_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.UploadChunkSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "RESUMABLE_THRESHOLD"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.ResumableThreshold = n
		}
	}
	if v := os.Getenv(EnvPrefix + "LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvPrefix + "COLOR_OUTPUT"); v != "" {
		c.ColorOutput = parseBool(v)
	}
	if v := os.Getenv(EnvPrefix + "CACHE_PATH"); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv(EnvPrefix + "EXCLUDE"); v != "" {
		c.ExcludePatterns = splitList(v)
	}
}

// Save writes the configuration to path, or the default location when path is empty.
func (c *Config) Save(path string) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if path == "" {
		var err error
		path, err = GetConfigPath()
		if err != nil {
			return err
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.DefaultOutputFormat != types.OutputFormatJSON &&
		c.DefaultOutputFormat != types.OutputFormatTable {
		return fmt.Errorf("invalid output format: %s (must be 'json' or 'table')", c.DefaultOutputFormat)
	}

	if c.MaxAttempts < 1 || c.MaxAttempts > utils.MaxAttemptsLimit {
		return fmt.Errorf("max attempts must be between 1 and %d, got: %d", utils.MaxAttemptsLimit, c.MaxAttempts)
	}

	if c.UploadChunkSize <= 0 || c.UploadChunkSize%utils.UploadChunkAlignment != 0 {
		return fmt.Errorf("upload chunk size must be a positive multiple of %d bytes, got: %d", utils.UploadChunkAlignment, c.UploadChunkSize)
	}

	if c.ResumableThreshold < 0 {
		return fmt.Errorf("resumable threshold must be non-negative, got: %d", c.ResumableThreshold)
	}

	if c.ResumableThreshold > 0 && int64(c.UploadChunkSize) > c.ResumableThreshold {
		return fmt.Errorf("upload chunk size (%d) must not exceed the resumable threshold (%d)", c.UploadChunkSize, c.ResumableThreshold)
	}

	isValid := false
	for _, level := range validLogLevels {
		if c.LogLevel == level {
			isValid = true
			break
		}
	}
	if !isValid {
		return fmt.Errorf("invalid log level: %s (must be one of: %s)", c.LogLevel, strings.Join(validLogLevels, ", "))
	}

	return nil
}

// Keys lists the names accepted by Set, sorted.
func Keys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

var setters = map[string]func(c *Config, v string) error{
	"defaultProfile": func(c *Config, v string) error {
		c.DefaultProfile = v
		return nil
	},
	"defaultOutputFormat": func(c *Config, v string) error {
		c.DefaultOutputFormat = types.OutputFormat(v)
		return nil
	},
	"maxAttempts": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("maxAttempts must be an integer: %w", err)
		}
		c.MaxAttempts = n
		return nil
	},
	"uploadChunkSize": func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("uploadChunkSize must be an integer: %w", err)
		}
		c.UploadChunkSize = n
		return nil
	},
	"resumableThreshold": func(c *Config, v string) error {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("resumableThreshold must be an integer: %w", err)
		}
		c.ResumableThreshold = n
		return nil
	},
	"logLevel": func(c *Config, v string) error {
		c.LogLevel = v
		return nil
	},
	"colorOutput": func(c *Config, v string) error {
		c.ColorOutput = parseBool(v)
		return nil
	},
	"cachePath": func(c *Config, v string) error {
		c.CachePath = v
		return nil
	},
	"excludePatterns": func(c *Config, v string) error {
		c.ExcludePatterns = splitList(v)
		return nil
	},
}

// Set assigns a single key from its string form and re-validates.
func (c *Config) Set(key, value string) error {
	set, ok := setters[key]
	if !ok {
		return fmt.Errorf("unknown config key %q (valid keys: %s)", key, strings.Join(Keys(), ", "))
	}
	if err := set(c, value); err != nil {
		return err
	}
	return c.Validate()
}

// ResolveCachePath returns CachePath or the default location under the config dir.
func (c *Config) ResolveCachePath() (string, error) {
	if c.CachePath != "" {
		return c.CachePath, nil
	}
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, CacheFileName), nil
}

// GetConfigPath returns the path to the config file
func GetConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, ConfigFileName), nil
}

// GetConfigDir returns the path to the config directory
func GetConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "gdmirror"), nil
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
