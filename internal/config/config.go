package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	DriverFile   = "file"
	DriverBadger = "badger"
	DriverRedis  = "redis"
	DriverValkey = "valkey"
)

// Config holds the tokgov service configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Storage  StorageConfig  `yaml:"storage"`
	Governor GovernorConfig `yaml:"governor"`
	Provider ProviderConfig `yaml:"provider"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// StorageConfig selects and configures the governor state store.
type StorageConfig struct {
	Driver           string   `yaml:"driver"`     // file (default), badger, redis, valkey
	Path             string   `yaml:"path"`       // file: state JSON path; badger: directory
	Addrs            []string `yaml:"addrs"`      // redis/valkey
	Password         string   `yaml:"password"`   // redis/valkey
	KeyPrefix        string   `yaml:"key_prefix"` // redis/valkey hash key prefix
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	WriteTimeoutMs   int      `yaml:"write_timeout_ms"`
}

// GovernorConfig holds the daily budget policy.
type GovernorConfig struct {
	DailyBudget           int64   `yaml:"daily_budget"`
	CostPerThousandTokens float64 `yaml:"cost_per_thousand_tokens"`
	LowPriorityFraction   float64 `yaml:"low_priority_fraction"`
	SaverModeThreshold    float64 `yaml:"saver_mode_threshold"`
	Timezone              string  `yaml:"timezone"`
	WatchIntervalSec      int     `yaml:"watch_interval_sec"`
	ReservationTTLSec     int     `yaml:"reservation_ttl_sec"`
}

// ProviderConfig holds the OpenAI-compatible completion provider settings.
type ProviderConfig struct {
	Name             string `yaml:"name"`
	APIKey           string `yaml:"api_key"`
	BaseURL          string `yaml:"base_url"`
	Model            string `yaml:"model"`
	DefaultMaxTokens int    `yaml:"default_max_tokens"`
	SaverModel       string `yaml:"saver_model"`
	SaverMaxTokens   int    `yaml:"saver_max_tokens"`
}

// Enabled reports whether a completion provider is configured.
func (p ProviderConfig) Enabled() bool { return p.APIKey != "" && p.Model != "" }

// Location resolves the reference timezone.
func (g GovernorConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return nil, fmt.Errorf("governor.timezone %q: %w", g.Timezone, err)
	}
	return loc, nil
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML after env substitution, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120 // completions are slow
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DriverFile
	}
	if c.Storage.Path == "" {
		switch c.Storage.Driver {
		case DriverFile:
			c.Storage.Path = "data/governor_state.json"
		case DriverBadger:
			c.Storage.Path = "data/badger"
		}
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "tokgov:"
	}
	if c.Storage.ReadinessTimeout <= 0 {
		c.Storage.ReadinessTimeout = 10
	}
	if c.Storage.WriteTimeoutMs <= 0 {
		c.Storage.WriteTimeoutMs = 2000
	}
	if c.Governor.LowPriorityFraction == 0 {
		c.Governor.LowPriorityFraction = 0.5
	}
	if c.Governor.SaverModeThreshold == 0 {
		c.Governor.SaverModeThreshold = 0.8
	}
	if c.Governor.Timezone == "" {
		c.Governor.Timezone = "UTC"
	}
	if c.Governor.WatchIntervalSec <= 0 {
		c.Governor.WatchIntervalSec = 60
	}
	if c.Governor.ReservationTTLSec <= 0 {
		c.Governor.ReservationTTLSec = 900
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "openai"
	}
	if c.Provider.DefaultMaxTokens <= 0 {
		c.Provider.DefaultMaxTokens = 512
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Storage.Driver {
	case DriverFile, DriverBadger:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for driver %q", c.Storage.Driver)
		}
	case DriverRedis, DriverValkey:
		if len(c.Storage.Addrs) == 0 {
			return fmt.Errorf("storage.addrs is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("storage.driver must be one of file, badger, redis, valkey, got %q", c.Storage.Driver)
	}
	if c.Governor.DailyBudget <= 0 {
		return fmt.Errorf("governor.daily_budget must be positive, got %d", c.Governor.DailyBudget)
	}
	if f := c.Governor.LowPriorityFraction; f <= 0 || f > 1 {
		return fmt.Errorf("governor.low_priority_fraction must be in (0, 1], got %g", f)
	}
	if th := c.Governor.SaverModeThreshold; th <= 0 || th > 1 {
		return fmt.Errorf("governor.saver_mode_threshold must be in (0, 1], got %g", th)
	}
	if c.Governor.CostPerThousandTokens < 0 {
		return fmt.Errorf("governor.cost_per_thousand_tokens must not be negative, got %g", c.Governor.CostPerThousandTokens)
	}
	if _, err := c.Governor.Location(); err != nil {
		return err
	}
	if c.Provider.SaverMaxTokens < 0 {
		return fmt.Errorf("provider.saver_max_tokens must not be negative, got %d", c.Provider.SaverMaxTokens)
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
