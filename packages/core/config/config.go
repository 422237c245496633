package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/abdul-hamid-achik/hitclient/packages/charset"
)

// Transport names accepted in Config.Transport.
const (
	TransportStandard  = "standard"
	TransportRetryable = "retryable"
	TransportResty     = "resty"
)

// Config represents the hitclient configuration
type Config struct {
	BaseURL        string            `json:"baseURL,omitempty" yaml:"baseURL,omitempty" envconfig:"BASE_URL"`
	StringEncoding string            `json:"stringEncoding,omitempty" yaml:"stringEncoding,omitempty" envconfig:"STRING_ENCODING"`
	Headers        map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" envconfig:"HEADERS"` // Default headers for all requests

	Timeout         int     `json:"timeout,omitempty" yaml:"timeout,omitempty" envconfig:"TIMEOUT"`                   // milliseconds
	Retries         int     `json:"retries,omitempty" yaml:"retries,omitempty" envconfig:"RETRIES"`                   // retryable transport only
	RetryDelay      int     `json:"retryDelay,omitempty" yaml:"retryDelay,omitempty" envconfig:"RETRY_DELAY"`         // milliseconds
	MaxRetryDelay   int     `json:"maxRetryDelay,omitempty" yaml:"maxRetryDelay,omitempty" envconfig:"MAX_RETRY_DELAY"` // milliseconds
	FollowRedirects *bool   `json:"followRedirects,omitempty" yaml:"followRedirects,omitempty" envconfig:"FOLLOW_REDIRECTS"`
	MaxRedirects    int     `json:"maxRedirects,omitempty" yaml:"maxRedirects,omitempty" envconfig:"MAX_REDIRECTS"`
	ValidateSSL     *bool   `json:"validateSSL,omitempty" yaml:"validateSSL,omitempty" envconfig:"VALIDATE_SSL"`
	Proxy           string  `json:"proxy,omitempty" yaml:"proxy,omitempty" envconfig:"PROXY"`
	Transport       string  `json:"transport,omitempty" yaml:"transport,omitempty" envconfig:"TRANSPORT"`
	MaxConcurrent   int     `json:"maxConcurrent,omitempty" yaml:"maxConcurrent,omitempty" envconfig:"MAX_CONCURRENT"` // 0 = unbounded
	RateLimit       float64 `json:"rateLimit,omitempty" yaml:"rateLimit,omitempty" envconfig:"RATE_LIMIT"`             // requests per second, 0 = off
	RateBurst       int     `json:"rateBurst,omitempty" yaml:"rateBurst,omitempty" envconfig:"RATE_BURST"`

	LogLevel       string `json:"logLevel,omitempty" yaml:"logLevel,omitempty" envconfig:"LOG_LEVEL"`
	LogDevelopment *bool  `json:"logDevelopment,omitempty" yaml:"logDevelopment,omitempty" envconfig:"LOG_DEV"`
}

// BoolPtr returns a pointer to b, for the optional boolean fields
func BoolPtr(b bool) *bool {
	return &b
}

// getBool returns the value of a bool pointer, or the default if nil
func getBool(b *bool, defaultVal bool) bool {
	if b == nil {
		return defaultVal
	}
	return *b
}

// GetFollowRedirects returns the follow redirects setting, defaulting to true
func (c *Config) GetFollowRedirects() bool {
	return getBool(c.FollowRedirects, true)
}

// GetValidateSSL returns the validate SSL setting, defaulting to true
func (c *Config) GetValidateSSL() bool {
	return getBool(c.ValidateSSL, true)
}

// GetLogDevelopment returns whether console logging is enabled, defaulting to false
func (c *Config) GetLogDevelopment() bool {
	return getBool(c.LogDevelopment, false)
}

func (c *Config) TimeoutDuration() time.Duration {
	return time.Duration(c.Timeout) * time.Millisecond
}

func (c *Config) RetryDelayDuration() time.Duration {
	return time.Duration(c.RetryDelay) * time.Millisecond
}

func (c *Config) MaxRetryDelayDuration() time.Duration {
	return time.Duration(c.MaxRetryDelay) * time.Millisecond
}

// Validate checks that the config can build a client
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("baseURL is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid baseURL: %v", err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("baseURL must be absolute: %s", c.BaseURL)
	}

	switch c.Transport {
	case "", TransportStandard, TransportRetryable, TransportResty:
	default:
		return fmt.Errorf("unknown transport %q (expected %s, %s or %s)",
			c.Transport, TransportStandard, TransportRetryable, TransportResty)
	}

	if _, err := charset.Lookup(c.StringEncoding); err != nil {
		return err
	}

	if c.Timeout < 0 || c.Retries < 0 || c.RetryDelay < 0 || c.MaxRetryDelay < 0 ||
		c.MaxRedirects < 0 || c.MaxConcurrent < 0 || c.RateLimit < 0 || c.RateBurst < 0 {
		return fmt.Errorf("numeric settings must not be negative")
	}

	return nil
}

// ConfigFilenames contains the possible config file names
var ConfigFilenames = []string{
	".hitclient.json",
	"hitclient.json",
	".hitclientrc",
	"hitclient.yaml",
	"hitclient.yml",
}

// LoadConfig loads configuration from the specified path or searches for config files
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	// Search for config file in current directory
	return FindAndLoadConfig(".")
}

// FindAndLoadConfig searches for a config file in the given directory
func FindAndLoadConfig(dir string) (*Config, error) {
	for _, filename := range ConfigFilenames {
		configPath := filepath.Join(dir, filename)
		if _, err := os.Stat(configPath); err == nil {
			return loadConfigFromFile(configPath)
		}
	}

	// Return defaults if no config file found
	return DefaultConfig(), nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// loadConfigFromFile loads configuration from a specific file
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := DefaultConfig()
	if isYAML(path) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	return config, nil
}

// Merge merges another config into this one, with other taking precedence
func (c *Config) Merge(other *Config) *Config {
	if other == nil {
		return c
	}

	result := *c // Copy
	result.Headers = nil

	if other.BaseURL != "" {
		result.BaseURL = other.BaseURL
	}
	if other.StringEncoding != "" {
		result.StringEncoding = other.StringEncoding
	}
	if other.Timeout > 0 {
		result.Timeout = other.Timeout
	}
	if other.Retries > 0 {
		result.Retries = other.Retries
	}
	if other.RetryDelay > 0 {
		result.RetryDelay = other.RetryDelay
	}
	if other.MaxRetryDelay > 0 {
		result.MaxRetryDelay = other.MaxRetryDelay
	}
	if other.MaxRedirects > 0 {
		result.MaxRedirects = other.MaxRedirects
	}
	if other.Proxy != "" {
		result.Proxy = other.Proxy
	}
	if other.Transport != "" {
		result.Transport = other.Transport
	}
	if other.MaxConcurrent > 0 {
		result.MaxConcurrent = other.MaxConcurrent
	}
	if other.RateLimit > 0 {
		result.RateLimit = other.RateLimit
	}
	if other.RateBurst > 0 {
		result.RateBurst = other.RateBurst
	}
	if other.LogLevel != "" {
		result.LogLevel = other.LogLevel
	}

	// Boolean flags - only override if explicitly set in other config
	if other.FollowRedirects != nil {
		result.FollowRedirects = other.FollowRedirects
	}
	if other.ValidateSSL != nil {
		result.ValidateSSL = other.ValidateSSL
	}
	if other.LogDevelopment != nil {
		result.LogDevelopment = other.LogDevelopment
	}

	// Merge headers into a fresh map so neither input is mutated
	if len(c.Headers) > 0 || len(other.Headers) > 0 {
		result.Headers = make(map[string]string, len(c.Headers)+len(other.Headers))
		for k, v := range c.Headers {
			result.Headers[k] = v
		}
		for k, v := range other.Headers {
			result.Headers[k] = v
		}
	}

	return &result
}

// SaveConfig saves the configuration to a file, as YAML for .yaml/.yml paths
// and JSON otherwise
func (c *Config) SaveConfig(path string) error {
	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
