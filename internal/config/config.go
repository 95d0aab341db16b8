// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads obfuscate settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tombee/obfuscate/internal/imageio"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

var (
	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("config: invalid configuration")
)

// Config represents the complete obfuscate configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Redact    RedactConfig    `yaml:"redact"`
	Output    OutputConfig    `yaml:"output"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LogConfig configures logging behavior.
type LogConfig struct {
	// Level sets the minimum log level (trace, debug, info, warn, error).
	// Environment: OBFUSCATE_LOG_LEVEL
	Level string `yaml:"level"`

	// Format sets the output format (json, text).
	// Environment: OBFUSCATE_LOG_FORMAT
	Format string `yaml:"format"`

	// AddSource adds source file and line information to logs.
	AddSource bool `yaml:"add_source"`
}

// RedactConfig tunes the activity itself.
type RedactConfig struct {
	// DefaultTimeout applies when an invocation does not set TimeoutMS.
	// Default: 60s
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// BlurSigma is the Gaussian standard deviation. Default: 25
	BlurSigma float64 `yaml:"blur_sigma"`

	// MaxPixels rejects larger inputs. Zero disables the limit.
	MaxPixels int64 `yaml:"max_pixels"`

	// MaxBlurRadius is the largest accepted BlurAmount. Default: 1000
	MaxBlurRadius int `yaml:"max_blur_radius"`
}

// OutputConfig controls how result images are written.
type OutputConfig struct {
	// JPEGQuality is used for .jpg/.jpeg outputs (1-100). Default: 95
	JPEGQuality int `yaml:"jpeg_quality"`

	// DefaultFormat is used when the output reference has no extension
	// (stdout, extensionless S3 keys). Default: png
	DefaultFormat string `yaml:"default_format"`
}

// StorageConfig configures s3:// image references.
type StorageConfig struct {
	S3Region    string `yaml:"s3_region,omitempty"`
	S3Endpoint  string `yaml:"s3_endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// ServerConfig configures the HTTP surface started by `obfuscate serve`.
type ServerConfig struct {
	// Addr is the listen address. Default: 127.0.0.1:8080
	Addr string `yaml:"addr"`

	// MaxConcurrent bounds in-flight redactions. Default: 4
	MaxConcurrent int64 `yaml:"max_concurrent"`

	// RateLimit is "<count>/<unit>" (e.g. 10/second). Empty disables it.
	RateLimit string `yaml:"rate_limit,omitempty"`

	// RateBurst is the token bucket size. Defaults to the per-second rate.
	RateBurst int `yaml:"rate_burst,omitempty"`

	// ShutdownTimeout is the graceful shutdown window. Default: 10s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig selects the trace exporter.
type TelemetryConfig struct {
	// Exporter is one of none, stdout, otlp (gRPC) or otlp-http.
	Exporter string `yaml:"exporter"`

	// Endpoint is the OTLP receiver (host:port).
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS to the OTLP receiver.
	Insecure bool `yaml:"insecure"`

	ServiceName string `yaml:"service_name"`

	// SampleRate is the fraction of traces kept (0.0-1.0). Default: 1
	SampleRate float64 `yaml:"sample_rate"`
}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Redact: RedactConfig{
			DefaultTimeout: 60 * time.Second,
			BlurSigma:      25,
			MaxPixels:      100_000_000,
			MaxBlurRadius:  1000,
		},
		Output: OutputConfig{
			JPEGQuality:   95,
			DefaultFormat: "png",
		},
		Server: ServerConfig{
			Addr:            "127.0.0.1:8080",
			MaxConcurrent:   4,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Exporter:    "none",
			ServiceName: "obfuscate",
			SampleRate:  1,
		},
	}
}

// Load loads configuration from an optional YAML file, then applies
// environment overrides. Environment variables take precedence.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		if err := cfg.loadFromFile(configPath); err != nil {
			return nil, &obferrors.ConfigError{
				Key:    "config_file",
				Reason: fmt.Sprintf("failed to load from %s", configPath),
				Cause:  err,
			}
		}
	}

	cfg.applyDefaults()
	cfg.loadFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, &obferrors.ConfigError{
			Key:    "validation",
			Reason: "configuration validation failed",
			Cause:  err,
		}
	}

	return cfg, nil
}

// applyDefaults fills in zero values left by a partial file.
func (c *Config) applyDefaults() {
	defaults := Default()

	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}

	if c.Redact.DefaultTimeout == 0 {
		c.Redact.DefaultTimeout = defaults.Redact.DefaultTimeout
	}
	if c.Redact.BlurSigma == 0 {
		c.Redact.BlurSigma = defaults.Redact.BlurSigma
	}
	if c.Redact.MaxBlurRadius == 0 {
		c.Redact.MaxBlurRadius = defaults.Redact.MaxBlurRadius
	}

	if c.Output.JPEGQuality == 0 {
		c.Output.JPEGQuality = defaults.Output.JPEGQuality
	}
	if c.Output.DefaultFormat == "" {
		c.Output.DefaultFormat = defaults.Output.DefaultFormat
	}

	if c.Server.Addr == "" {
		c.Server.Addr = defaults.Server.Addr
	}
	if c.Server.MaxConcurrent == 0 {
		c.Server.MaxConcurrent = defaults.Server.MaxConcurrent
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = defaults.Server.ShutdownTimeout
	}

	if c.Telemetry.Exporter == "" {
		c.Telemetry.Exporter = defaults.Telemetry.Exporter
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = defaults.Telemetry.ServiceName
	}
}

// loadFromFile loads configuration from a YAML file.
func (c *Config) loadFromFile(path string) error {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	return nil
}

// loadFromEnv loads configuration from environment variables.
// Unparseable values are ignored.
func (c *Config) loadFromEnv() {
	if val := os.Getenv("OBFUSCATE_LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("OBFUSCATE_LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}

	if val := os.Getenv("OBFUSCATE_DEFAULT_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Redact.DefaultTimeout = duration
		}
	}
	if val := os.Getenv("OBFUSCATE_BLUR_SIGMA"); val != "" {
		if sigma, err := strconv.ParseFloat(val, 64); err == nil {
			c.Redact.BlurSigma = sigma
		}
	}
	if val := os.Getenv("OBFUSCATE_MAX_PIXELS"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.Redact.MaxPixels = n
		}
	}
	if val := os.Getenv("OBFUSCATE_MAX_BLUR_RADIUS"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Redact.MaxBlurRadius = n
		}
	}

	if val := os.Getenv("OBFUSCATE_JPEG_QUALITY"); val != "" {
		if q, err := strconv.Atoi(val); err == nil {
			c.Output.JPEGQuality = q
		}
	}

	if val := os.Getenv("OBFUSCATE_S3_REGION"); val != "" {
		c.Storage.S3Region = val
	}
	if val := os.Getenv("OBFUSCATE_S3_ENDPOINT"); val != "" {
		c.Storage.S3Endpoint = val
	}
	if val := os.Getenv("OBFUSCATE_S3_PATH_STYLE"); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Storage.S3PathStyle = b
		}
	}

	if val := os.Getenv("OBFUSCATE_SERVER_ADDR"); val != "" {
		c.Server.Addr = val
	}
	if val := os.Getenv("OBFUSCATE_SERVER_SHUTDOWN_TIMEOUT"); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			c.Server.ShutdownTimeout = duration
		}
	}

	if val := os.Getenv("OBFUSCATE_TELEMETRY_EXPORTER"); val != "" {
		c.Telemetry.Exporter = val
	}
	if val := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); val != "" {
		c.Telemetry.Endpoint = val
	}
	if val := os.Getenv("OTEL_SERVICE_NAME"); val != "" {
		c.Telemetry.ServiceName = val
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "warning": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, fmt.Sprintf("log.level must be one of [trace, debug, info, warn, error], got %q", c.Log.Level))
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("log.format must be one of [json, text], got %q", c.Log.Format))
	}

	if c.Redact.DefaultTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("redact.default_timeout must be positive, got %v", c.Redact.DefaultTimeout))
	}
	if c.Redact.BlurSigma <= 0 {
		errs = append(errs, fmt.Sprintf("redact.blur_sigma must be positive, got %v", c.Redact.BlurSigma))
	}
	if c.Redact.MaxPixels < 0 {
		errs = append(errs, fmt.Sprintf("redact.max_pixels must not be negative, got %d", c.Redact.MaxPixels))
	}
	if c.Redact.MaxBlurRadius < 0 {
		errs = append(errs, fmt.Sprintf("redact.max_blur_radius must not be negative, got %d", c.Redact.MaxBlurRadius))
	}

	if c.Output.JPEGQuality < 1 || c.Output.JPEGQuality > 100 {
		errs = append(errs, fmt.Sprintf("output.jpeg_quality must be between 1 and 100, got %d", c.Output.JPEGQuality))
	}
	if _, err := imageio.ParseFormat(c.Output.DefaultFormat); err != nil {
		errs = append(errs, fmt.Sprintf("output.default_format: %v", err))
	}

	if c.Server.MaxConcurrent < 1 {
		errs = append(errs, fmt.Sprintf("server.max_concurrent must be at least 1, got %d", c.Server.MaxConcurrent))
	}
	if c.Server.RateLimit != "" {
		if _, err := ParseRateLimit(c.Server.RateLimit); err != nil {
			errs = append(errs, fmt.Sprintf("server.rate_limit: %v", err))
		}
	}
	if c.Server.RateBurst < 0 {
		errs = append(errs, fmt.Sprintf("server.rate_burst must not be negative, got %d", c.Server.RateBurst))
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be positive, got %v", c.Server.ShutdownTimeout))
	}

	validExporters := map[string]bool{"none": true, "stdout": true, "otlp": true, "otlp-http": true}
	if !validExporters[c.Telemetry.Exporter] {
		errs = append(errs, fmt.Sprintf("telemetry.exporter must be one of [none, stdout, otlp, otlp-http], got %q", c.Telemetry.Exporter))
	}
	if (c.Telemetry.Exporter == "otlp" || c.Telemetry.Exporter == "otlp-http") && c.Telemetry.Endpoint == "" {
		errs = append(errs, "telemetry.endpoint is required for otlp exporters")
	}
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("telemetry.sample_rate must be between 0.0 and 1.0, got %v", c.Telemetry.SampleRate))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w:\n  - %s", ErrInvalidConfig, strings.Join(errs, "\n  - "))
	}

	return nil
}

// RateLimit is a parsed "<count>/<unit>" limit.
type RateLimit struct {
	Count int
	Per   time.Duration
}

// PerSecond returns the limit as events per second.
func (r RateLimit) PerSecond() float64 {
	return float64(r.Count) / r.Per.Seconds()
}

// ParseRateLimit parses a rate limit string (e.g., "10/second", "600/minute").
func ParseRateLimit(rateLimit string) (RateLimit, error) {
	parts := strings.Split(rateLimit, "/")
	if len(parts) != 2 {
		return RateLimit{}, fmt.Errorf("invalid rate_limit format %q, expected format: <count>/<unit> (e.g., 10/second, 600/minute)", rateLimit)
	}

	count, err := strconv.Atoi(parts[0])
	if err != nil || count <= 0 {
		return RateLimit{}, fmt.Errorf("invalid rate_limit count %q, must be a positive integer", parts[0])
	}

	units := map[string]time.Duration{
		"second": time.Second,
		"minute": time.Minute,
		"hour":   time.Hour,
	}
	per, ok := units[parts[1]]
	if !ok {
		return RateLimit{}, fmt.Errorf("invalid rate_limit unit %q, must be one of: second, minute, hour", parts[1])
	}

	return RateLimit{Count: count, Per: per}, nil
}
