// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Snapshot() SnapshotConfig
	Resolver() ResolverConfig
	Executor() ExecutorConfig
	Vision() VisionConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserUserAgent(string)

	// Vision Setters
	SetVisionEnabled(bool)

	// Database Setter
	SetDatabaseURL(string)
}

// Config holds the entire application configuration. Fields are exported for
// viper unmarshaling; access goes through the Interface's getter methods.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	SnapshotCfg SnapshotConfig `mapstructure:"snapshot" yaml:"snapshot"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	ExecutorCfg ExecutorConfig `mapstructure:"executor" yaml:"executor"`
	VisionCfg   VisionConfig   `mapstructure:"vision" yaml:"vision"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Snapshot() SnapshotConfig { return c.SnapshotCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Executor() ExecutorConfig { return c.ExecutorCfg }
func (c *Config) Vision() VisionConfig     { return c.VisionCfg }

// --- Interface Method Implementations (Setters) ---

// Browser Setters
func (c *Config) SetBrowserHeadless(b bool)    { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserUserAgent(s string) { c.BrowserCfg.UserAgent = s }

// Vision Setters
func (c *Config) SetVisionEnabled(b bool) { c.VisionCfg.Enabled = b }

// Database Setter
func (c *Config) SetDatabaseURL(u string) { c.DatabaseCfg.URL = u }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the persistence connection details. An empty URL
// selects the in-process store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BrowserConfig holds settings for the headless browser host driver.
type BrowserConfig struct {
	Headless  bool     `mapstructure:"headless" yaml:"headless"`
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	Args      []string `mapstructure:"args" yaml:"args"`
}

// SnapshotConfig tunes the snapshot cache.
type SnapshotConfig struct {
	Freshness   time.Duration `mapstructure:"freshness" yaml:"freshness"`
	EventBuffer int           `mapstructure:"event_buffer" yaml:"event_buffer"`
}

// ResolverConfig tunes candidate matching.
type ResolverConfig struct {
	FuzzyFloor     float64 `mapstructure:"fuzzy_floor" yaml:"fuzzy_floor"`
	MaxSuggestions int     `mapstructure:"max_suggestions" yaml:"max_suggestions"`
}

// ExecutorConfig tunes action dispatch and verification.
type ExecutorConfig struct {
	SettleDelay     time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	DispatchTimeout time.Duration `mapstructure:"dispatch_timeout" yaml:"dispatch_timeout"`
}

// VisionConfig configures the optional screenshot fallback detector.
type VisionConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Model   string `mapstructure:"model" yaml:"model"`
	APIKey  string `mapstructure:"api_key" yaml:"-"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "pilot-cli")
	v.SetDefault("logger.log_file", "pilot.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)

	// -- Snapshot --
	v.SetDefault("snapshot.freshness", "400ms")
	v.SetDefault("snapshot.event_buffer", 64)

	// -- Resolver --
	v.SetDefault("resolver.fuzzy_floor", 0.62)
	v.SetDefault("resolver.max_suggestions", 3)

	// -- Executor --
	v.SetDefault("executor.settle_delay", "250ms")
	v.SetDefault("executor.dispatch_timeout", "5s")

	// -- Vision --
	v.SetDefault("vision.enabled", false)
	v.SetDefault("vision.model", "gemini-2.0-flash")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("database.url", "PILOT_DATABASE_URL")
	v.BindEnv("vision.api_key", "PILOT_VISION_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.VisionCfg.Enabled && cfg.VisionCfg.APIKey == "" {
		cfg.VisionCfg.APIKey = os.Getenv("PILOT_VISION_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.SnapshotCfg.Freshness <= 0 {
		return fmt.Errorf("snapshot.freshness must be a positive duration")
	}
	if c.SnapshotCfg.EventBuffer <= 0 {
		return fmt.Errorf("snapshot.event_buffer must be a positive integer")
	}
	if c.ResolverCfg.FuzzyFloor < 0.0 || c.ResolverCfg.FuzzyFloor > 1.0 {
		return fmt.Errorf("resolver.fuzzy_floor must be between 0.0 and 1.0")
	}
	if c.ExecutorCfg.SettleDelay <= 0 {
		return fmt.Errorf("executor.settle_delay must be a positive duration")
	}
	if c.ExecutorCfg.DispatchTimeout <= 0 {
		return fmt.Errorf("executor.dispatch_timeout must be a positive duration")
	}
	if err := c.VisionCfg.Validate(); err != nil {
		return fmt.Errorf("vision configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the vision fallback settings.
func (vc *VisionConfig) Validate() error {
	if !vc.Enabled {
		return nil
	}
	if vc.Model == "" {
		return fmt.Errorf("model is required when vision is enabled")
	}
	if vc.APIKey == "" {
		return fmt.Errorf("API key is required but not found. Ensure PILOT_VISION_API_KEY is set")
	}
	return nil
}
