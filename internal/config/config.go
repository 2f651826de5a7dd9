package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	ThingSpeak ThingSpeakConfig `yaml:"thingspeak"`
	Polling    PollingConfig    `yaml:"polling"`
	Channels   ChannelsConfig   `yaml:"channels"`
	Fields     []FieldConfig    `yaml:"fields"`
	RateLimits RateLimitsConfig `yaml:"rate_limits"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig represents the HTTP server configuration
type ServerConfig struct {
	Addr string     `yaml:"addr"`
	CORS CORSConfig `yaml:"cors"`
}

// CORSConfig represents the CORS configuration
type CORSConfig struct {
	AllowOrigins []string `yaml:"allow_origins"`
	AllowMethods []string `yaml:"allow_methods"`
}

// ThingSpeakConfig represents the upstream ThingSpeak API configuration
type ThingSpeakConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
	// Capacity bounds both the results parameter and the stored series
	// length. ThingSpeak serves at most 100 entries per request.
	Capacity int `yaml:"capacity"`
	// Results is the number of entries requested per refresh, clamped
	// to [1, Capacity].
	Results int `yaml:"results"`
}

// PollingConfig represents the refresh scheduler configuration
type PollingConfig struct {
	Interval string `yaml:"interval"`
}

// ChannelsConfig points at the channel registry file
type ChannelsConfig struct {
	FilePath    string `yaml:"file_path"`
	MaxChannels int    `yaml:"max_channels"`
}

// FieldConfig maps a ThingSpeak field number to a display label.
// Which fields a deployment reads varies per install, so the set is
// configured rather than compiled in.
type FieldConfig struct {
	Number int    `yaml:"number"`
	Label  string `yaml:"label"`
}

// RateLimitsConfig represents the rate limits configuration
type RateLimitsConfig struct {
	RefreshPerMinute int `yaml:"refresh_per_minute"`
}

// LoggingConfig represents the logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load loads the configuration from environment variables and defaults
func Load() (*Config, error) {
	return loadWithDefaults("")
}

// LoadFromFile loads configuration from a YAML file, with environment variable overrides
func LoadFromFile(configPath string) (*Config, error) {
	return loadWithDefaults(configPath)
}

func loadWithDefaults(configPath string) (*Config, error) {
	cfg := defaults()

	if configPath != "" {
		fileConfig, err := loadFromYAMLFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config from file %s: %w", configPath, err)
		}
		cfg = mergeConfigs(fileConfig)
	}

	if port := getEnv("PORT", ""); port != "" {
		cfg.Server.Addr = "0.0.0.0:" + port
	}

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Addr: getEnv("HM_SERVER_ADDR", "0.0.0.0:8080"),
			CORS: CORSConfig{
				AllowOrigins: []string{"*"},
				AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
		},
		ThingSpeak: ThingSpeakConfig{
			BaseURL:  getEnv("HM_THINGSPEAK_BASE_URL", "https://api.thingspeak.com"),
			Timeout:  getEnv("HM_THINGSPEAK_TIMEOUT", "10s"),
			Capacity: getEnvInt("HM_THINGSPEAK_CAPACITY", 100),
			Results:  getEnvInt("HM_THINGSPEAK_RESULTS", 100),
		},
		Polling: PollingConfig{
			Interval: getEnv("HM_POLL_INTERVAL", "5m"),
		},
		Channels: ChannelsConfig{
			FilePath:    getEnv("HM_CHANNELS_FILE", "./ThingSpeakObjects.json"),
			MaxChannels: getEnvInt("HM_MAX_CHANNELS", 10),
		},
		Fields: []FieldConfig{
			{Number: 1, Label: "Temperature"},
			{Number: 2, Label: "Humidity"},
		},
		RateLimits: RateLimitsConfig{
			RefreshPerMinute: getEnvInt("HM_REFRESH_PER_MINUTE", 10),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// loadFromYAMLFile loads configuration from a YAML file
func loadFromYAMLFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

// mergeConfigs fills unset file values from defaults and applies
// environment overrides on top. Environment variables win.
func mergeConfigs(fileConfig *Config) *Config {
	result := *fileConfig
	def := defaults()

	if result.Server.Addr == "" {
		result.Server.Addr = def.Server.Addr
	}
	if len(result.Server.CORS.AllowOrigins) == 0 {
		result.Server.CORS.AllowOrigins = def.Server.CORS.AllowOrigins
	}
	if len(result.Server.CORS.AllowMethods) == 0 {
		result.Server.CORS.AllowMethods = def.Server.CORS.AllowMethods
	}
	if result.ThingSpeak.BaseURL == "" {
		result.ThingSpeak.BaseURL = def.ThingSpeak.BaseURL
	}
	if result.ThingSpeak.Timeout == "" {
		result.ThingSpeak.Timeout = def.ThingSpeak.Timeout
	}
	if result.ThingSpeak.Capacity == 0 {
		result.ThingSpeak.Capacity = def.ThingSpeak.Capacity
	}
	if result.ThingSpeak.Results == 0 {
		result.ThingSpeak.Results = def.ThingSpeak.Results
	}
	if result.Polling.Interval == "" {
		result.Polling.Interval = def.Polling.Interval
	}
	if result.Channels.FilePath == "" {
		result.Channels.FilePath = def.Channels.FilePath
	}
	if result.Channels.MaxChannels == 0 {
		result.Channels.MaxChannels = def.Channels.MaxChannels
	}
	if len(result.Fields) == 0 {
		result.Fields = def.Fields
	}
	if result.RateLimits.RefreshPerMinute == 0 {
		result.RateLimits.RefreshPerMinute = def.RateLimits.RefreshPerMinute
	}
	if result.Logging.Level == "" {
		result.Logging.Level = def.Logging.Level
	}
	if result.Logging.Format == "" {
		result.Logging.Format = def.Logging.Format
	}

	if envValue := os.Getenv("HM_SERVER_ADDR"); envValue != "" {
		result.Server.Addr = envValue
	}
	if envValue := os.Getenv("HM_THINGSPEAK_BASE_URL"); envValue != "" {
		result.ThingSpeak.BaseURL = envValue
	}
	if envValue := os.Getenv("HM_THINGSPEAK_TIMEOUT"); envValue != "" {
		result.ThingSpeak.Timeout = envValue
	}
	if envValue := os.Getenv("HM_THINGSPEAK_CAPACITY"); envValue != "" {
		if parsed, err := strconv.Atoi(envValue); err == nil {
			result.ThingSpeak.Capacity = parsed
		}
	}
	if envValue := os.Getenv("HM_THINGSPEAK_RESULTS"); envValue != "" {
		if parsed, err := strconv.Atoi(envValue); err == nil {
			result.ThingSpeak.Results = parsed
		}
	}
	if envValue := os.Getenv("HM_POLL_INTERVAL"); envValue != "" {
		result.Polling.Interval = envValue
	}
	if envValue := os.Getenv("HM_CHANNELS_FILE"); envValue != "" {
		result.Channels.FilePath = envValue
	}
	if envValue := os.Getenv("HM_MAX_CHANNELS"); envValue != "" {
		if parsed, err := strconv.Atoi(envValue); err == nil {
			result.Channels.MaxChannels = parsed
		}
	}
	if envValue := os.Getenv("HM_REFRESH_PER_MINUTE"); envValue != "" {
		if parsed, err := strconv.Atoi(envValue); err == nil {
			result.RateLimits.RefreshPerMinute = parsed
		}
	}
	if envValue := os.Getenv("LOG_LEVEL"); envValue != "" {
		result.Logging.Level = envValue
	}
	if envValue := os.Getenv("LOG_FORMAT"); envValue != "" {
		result.Logging.Format = envValue
	}
	if envValue := os.Getenv("PORT"); envValue != "" {
		result.Server.Addr = "0.0.0.0:" + envValue
	}

	return &result
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server address cannot be empty")
	}
	if c.ThingSpeak.BaseURL == "" {
		return fmt.Errorf("thingspeak base URL cannot be empty")
	}
	if _, err := time.ParseDuration(c.ThingSpeak.Timeout); err != nil {
		return fmt.Errorf("invalid thingspeak timeout %q: %w", c.ThingSpeak.Timeout, err)
	}
	if c.ThingSpeak.Capacity < 1 {
		return fmt.Errorf("thingspeak capacity must be at least 1")
	}
	if d, err := time.ParseDuration(c.Polling.Interval); err != nil {
		return fmt.Errorf("invalid poll interval %q: %w", c.Polling.Interval, err)
	} else if d <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.Channels.FilePath == "" {
		return fmt.Errorf("channels file path cannot be empty")
	}
	if c.Channels.MaxChannels < 1 {
		return fmt.Errorf("max channels must be at least 1")
	}
	if len(c.Fields) == 0 {
		return fmt.Errorf("at least one field must be configured")
	}
	seen := make(map[int]bool, len(c.Fields))
	for _, f := range c.Fields {
		if f.Number < 1 || f.Number > 8 {
			return fmt.Errorf("field number %d out of range 1..8", f.Number)
		}
		if f.Label == "" {
			return fmt.Errorf("field %d has no label", f.Number)
		}
		if seen[f.Number] {
			return fmt.Errorf("duplicate field number %d", f.Number)
		}
		seen[f.Number] = true
	}
	if c.RateLimits.RefreshPerMinute < 1 {
		return fmt.Errorf("refresh rate limit must be at least 1 per minute")
	}
	return nil
}

// PollInterval returns the parsed scheduler interval.
// Validate must have been called first.
func (c *Config) PollInterval() time.Duration {
	d, err := time.ParseDuration(c.Polling.Interval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}

// UpstreamTimeout returns the parsed ThingSpeak request timeout.
func (c *Config) UpstreamTimeout() time.Duration {
	d, err := time.ParseDuration(c.ThingSpeak.Timeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}
