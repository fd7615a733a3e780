package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete relay configuration
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Upload   UploadConfig   `yaml:"upload"`
	Analyzer AnalyzerConfig `yaml:"analyzer"`
	CORS     CORSConfig     `yaml:"cors"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// HTTPConfig contains inbound HTTP server configuration
type HTTPConfig struct {
	Address           string `yaml:"address"`
	Port              int    `yaml:"port"`
	ReadHeaderTimeout int    `yaml:"read_header_timeout"` // seconds
	WriteTimeout      int    `yaml:"write_timeout"`       // seconds
	IdleTimeout       int    `yaml:"idle_timeout"`        // seconds
	ShutdownTimeout   int    `yaml:"shutdown_timeout"`    // seconds
}

// UploadConfig contains transient upload storage configuration
type UploadConfig struct {
	Dir           string `yaml:"dir"`
	MaxBytes      int64  `yaml:"max_bytes"`       // 0 means unlimited
	MaxFieldBytes int64  `yaml:"max_field_bytes"` // per text field
	SweepAge      int    `yaml:"sweep_age"`       // seconds, 0 disables the startup sweep
}

// AnalyzerConfig contains the downstream analysis service configuration
type AnalyzerConfig struct {
	Endpoint string `yaml:"endpoint"`
	Timeout  int    `yaml:"timeout"` // seconds
}

// CORSConfig contains cross-origin configuration for the inbound API
type CORSConfig struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:           "0.0.0.0",
			Port:              3000,
			ReadHeaderTimeout: 10,
			WriteTimeout:      330,
			IdleTimeout:       60,
			ShutdownTimeout:   10,
		},
		Upload: UploadConfig{
			Dir:           "uploads",
			MaxBytes:      0,
			MaxFieldBytes: 1 << 20,
			SweepAge:      3600,
		},
		Analyzer: AnalyzerConfig{
			Endpoint: "http://127.0.0.1:8000/analyze",
			Timeout:  300,
		},
		CORS: CORSConfig{
			Enabled:        true,
			AllowedOrigins: []string{"*"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads the configuration file at path on top of the defaults, applies
// environment overrides and validates the result. A missing file at the
// default location is not an error when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
			}
		case allowMissing && errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("environment override: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides configuration values from RELAY_* environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("RELAY_HTTP_ADDRESS"); ok {
		c.HTTP.Address = v
	}
	if v, ok := lookup("RELAY_HTTP_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_HTTP_PORT: %w", err)
		}
		c.HTTP.Port = port
	}
	if v, ok := lookup("RELAY_UPLOAD_DIR"); ok {
		c.Upload.Dir = v
	}
	if v, ok := lookup("RELAY_ANALYZER_ENDPOINT"); ok {
		c.Analyzer.Endpoint = v
	}
	if v, ok := lookup("RELAY_ANALYZER_TIMEOUT"); ok {
		timeout, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("RELAY_ANALYZER_TIMEOUT: %w", err)
		}
		c.Analyzer.Timeout = timeout
	}
	if v, ok := lookup("RELAY_LOG_LEVEL"); ok {
		c.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup("RELAY_LOG_FORMAT"); ok {
		c.Logging.Format = strings.ToLower(v)
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Upload.Validate(); err != nil {
		return fmt.Errorf("upload config: %w", err)
	}

	if err := c.Analyzer.Validate(); err != nil {
		return fmt.Errorf("analyzer config: %w", err)
	}

	if err := c.CORS.Validate(); err != nil {
		return fmt.Errorf("cors config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	// Upload and analysis both count against the write timeout.
	if c.HTTP.WriteTimeout != 0 && c.HTTP.WriteTimeout <= c.Analyzer.Timeout {
		return fmt.Errorf("http config: write_timeout (%d) must be 0 or exceed analyzer timeout (%d)",
			c.HTTP.WriteTimeout, c.Analyzer.Timeout)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Port < 1 || h.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", h.Port)
	}

	if h.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if h.ReadHeaderTimeout < 1 {
		return fmt.Errorf("read_header_timeout must be at least 1 second, got %d", h.ReadHeaderTimeout)
	}

	if h.WriteTimeout < 0 {
		return fmt.Errorf("write_timeout cannot be negative, got %d", h.WriteTimeout)
	}

	if h.IdleTimeout < 0 {
		return fmt.Errorf("idle_timeout cannot be negative, got %d", h.IdleTimeout)
	}

	if h.ShutdownTimeout < 1 {
		return fmt.Errorf("shutdown_timeout must be at least 1 second, got %d", h.ShutdownTimeout)
	}

	return nil
}

// Validate validates upload configuration
func (u *UploadConfig) Validate() error {
	if strings.TrimSpace(u.Dir) == "" {
		return fmt.Errorf("dir cannot be empty")
	}

	if u.MaxBytes < 0 {
		return fmt.Errorf("max_bytes cannot be negative, got %d", u.MaxBytes)
	}

	if u.MaxFieldBytes < 1 {
		return fmt.Errorf("max_field_bytes must be positive, got %d", u.MaxFieldBytes)
	}

	if u.SweepAge < 0 {
		return fmt.Errorf("sweep_age cannot be negative, got %d", u.SweepAge)
	}

	return nil
}

// Validate validates analyzer configuration
func (a *AnalyzerConfig) Validate() error {
	if a.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	u, err := url.Parse(a.Endpoint)
	if err != nil {
		return fmt.Errorf("endpoint is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("endpoint scheme must be http or https, got '%s'", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint must include a host")
	}

	if a.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", a.Timeout)
	}

	return nil
}

// Validate validates CORS configuration
func (c *CORSConfig) Validate() error {
	if c.Enabled && len(c.AllowedOrigins) == 0 {
		return fmt.Errorf("allowed_origins cannot be empty when CORS is enabled")
	}
	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Anything other than stdout/stderr is treated as a file path.
	return nil
}

// ListenAddr returns the host:port the HTTP server binds to
func (h *HTTPConfig) ListenAddr() string {
	return net.JoinHostPort(h.Address, strconv.Itoa(h.Port))
}

// GetReadHeaderTimeout returns the read header timeout as a time.Duration
func (h *HTTPConfig) GetReadHeaderTimeout() time.Duration {
	return time.Duration(h.ReadHeaderTimeout) * time.Second
}

// GetWriteTimeout returns the write timeout as a time.Duration
func (h *HTTPConfig) GetWriteTimeout() time.Duration {
	return time.Duration(h.WriteTimeout) * time.Second
}

// GetIdleTimeout returns the idle timeout as a time.Duration
func (h *HTTPConfig) GetIdleTimeout() time.Duration {
	return time.Duration(h.IdleTimeout) * time.Second
}

// GetShutdownTimeout returns the graceful shutdown timeout as a time.Duration
func (h *HTTPConfig) GetShutdownTimeout() time.Duration {
	return time.Duration(h.ShutdownTimeout) * time.Second
}

// GetSweepAge returns the staged file sweep age as a time.Duration
func (u *UploadConfig) GetSweepAge() time.Duration {
	return time.Duration(u.SweepAge) * time.Second
}

// GetTimeoutDuration returns the analyzer timeout as a time.Duration
func (a *AnalyzerConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(a.Timeout) * time.Second
}
