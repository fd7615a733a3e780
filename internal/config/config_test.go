package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(c *Config)
		errorMsg string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:     "invalid http port",
			mutate:   func(c *Config) { c.HTTP.Port = 70000 },
			errorMsg: "port must be between 1 and 65535",
		},
		{
			name:     "empty upload dir",
			mutate:   func(c *Config) { c.Upload.Dir = "  " },
			errorMsg: "dir cannot be empty",
		},
		{
			name:     "negative max bytes",
			mutate:   func(c *Config) { c.Upload.MaxBytes = -1 },
			errorMsg: "max_bytes cannot be negative",
		},
		{
			name:     "analyzer endpoint without scheme",
			mutate:   func(c *Config) { c.Analyzer.Endpoint = "127.0.0.1:8000/analyze" },
			errorMsg: "endpoint",
		},
		{
			name:     "analyzer endpoint with ftp scheme",
			mutate:   func(c *Config) { c.Analyzer.Endpoint = "ftp://127.0.0.1/analyze" },
			errorMsg: "scheme must be http or https",
		},
		{
			name:     "analyzer timeout zero",
			mutate:   func(c *Config) { c.Analyzer.Timeout = 0 },
			errorMsg: "timeout must be at least 1 second",
		},
		{
			name: "cors enabled without origins",
			mutate: func(c *Config) {
				c.CORS.Enabled = true
				c.CORS.AllowedOrigins = nil
			},
			errorMsg: "allowed_origins cannot be empty",
		},
		{
			name:     "write timeout shorter than analyzer timeout",
			mutate:   func(c *Config) { c.HTTP.WriteTimeout = 1 },
			errorMsg: "write_timeout (1) must be 0 or exceed analyzer timeout (300)",
		},
		{
			name: "write timeout equal to analyzer timeout",
			mutate: func(c *Config) {
				c.HTTP.WriteTimeout = 120
				c.Analyzer.Timeout = 120
			},
			errorMsg: "must be 0 or exceed analyzer timeout",
		},
		{
			name:   "write timeout disabled",
			mutate: func(c *Config) { c.HTTP.WriteTimeout = 0 },
		},
		{
			name: "write timeout above analyzer timeout",
			mutate: func(c *Config) {
				c.HTTP.WriteTimeout = 61
				c.Analyzer.Timeout = 60
			},
		},
		{
			name:     "invalid log level",
			mutate:   func(c *Config) { c.Logging.Level = "trace" },
			errorMsg: "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.errorMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)
		})
	}
}

func TestConfigLoad(t *testing.T) {
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "full config file",
			configYAML: `
http:
  address: "127.0.0.1"
  port: 3100
  read_header_timeout: 5
  write_timeout: 400
  idle_timeout: 30
  shutdown_timeout: 5
upload:
  dir: "/tmp/relay-uploads"
  max_bytes: 52428800
  max_field_bytes: 65536
  sweep_age: 600
analyzer:
  endpoint: "http://analyzer.internal:8000/analyze"
  timeout: 120
cors:
  enabled: false
logging:
  level: "debug"
  format: "json"
  output: "stderr"
`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "127.0.0.1:3100", c.HTTP.ListenAddr())
				assert.Equal(t, int64(52428800), c.Upload.MaxBytes)
				assert.Equal(t, "http://analyzer.internal:8000/analyze", c.Analyzer.Endpoint)
				assert.Equal(t, 120*time.Second, c.Analyzer.GetTimeoutDuration())
				assert.False(t, c.CORS.Enabled)
				assert.Equal(t, "json", c.Logging.Format)
			},
		},
		{
			name: "partial file keeps defaults",
			configYAML: `
http:
  port: 8080
`,
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "0.0.0.0:8080", c.HTTP.ListenAddr())
				assert.Equal(t, "http://127.0.0.1:8000/analyze", c.Analyzer.Endpoint)
				assert.Equal(t, 300*time.Second, c.Analyzer.GetTimeoutDuration())
				assert.Equal(t, "uploads", c.Upload.Dir)
			},
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
http:
  port: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "invalid values",
			configYAML: `
analyzer:
  endpoint: ""
`,
			expectError: true,
			errorMsg:    "endpoint cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			configPath := filepath.Join(tempDir, "config.yaml")
			require.NoError(t, os.WriteFile(configPath, []byte(tt.configYAML), 0644))

			cfg, err := Load(configPath, false)
			if tt.expectError {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorMsg)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, cfg)
			if tt.check != nil {
				tt.check(t, cfg)
			}
		})
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	cfg, err := Load("nonexistent.yaml", true)
	require.NoError(t, err)
	assert.Equal(t, Default().Analyzer, cfg.Analyzer)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"RELAY_HTTP_PORT":         "4000",
		"RELAY_UPLOAD_DIR":        "/var/tmp/relay",
		"RELAY_ANALYZER_ENDPOINT": "http://10.0.0.5:8000/analyze",
		"RELAY_ANALYZER_TIMEOUT":  "60",
		"RELAY_LOG_LEVEL":         "WARN",
	}
	lookup := func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(lookup))
	assert.Equal(t, 4000, cfg.HTTP.Port)
	assert.Equal(t, "/var/tmp/relay", cfg.Upload.Dir)
	assert.Equal(t, "http://10.0.0.5:8000/analyze", cfg.Analyzer.Endpoint)
	assert.Equal(t, 60, cfg.Analyzer.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "0.0.0.0", cfg.HTTP.Address)

	env["RELAY_HTTP_PORT"] = "not-a-port"
	err := Default().ApplyEnv(lookup)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RELAY_HTTP_PORT")
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 10*time.Second, cfg.HTTP.GetReadHeaderTimeout())
	assert.Equal(t, 330*time.Second, cfg.HTTP.GetWriteTimeout())
	assert.Equal(t, 60*time.Second, cfg.HTTP.GetIdleTimeout())
	assert.Equal(t, 10*time.Second, cfg.HTTP.GetShutdownTimeout())
	assert.Equal(t, time.Hour, cfg.Upload.GetSweepAge())
	assert.Equal(t, 300*time.Second, cfg.Analyzer.GetTimeoutDuration())
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{name: "valid json to stdout", config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"}, valid: true},
		{name: "valid text to file", config: LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/relay.log"}, valid: true},
		{name: "invalid log level", config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"}, valid: false},
		{name: "invalid format", config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
