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

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/adrg/xdg"

	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Redact.DefaultTimeout != 60*time.Second {
		t.Errorf("expected default timeout 60s, got %v", cfg.Redact.DefaultTimeout)
	}
	if cfg.Redact.BlurSigma != 25 {
		t.Errorf("expected blur sigma 25, got %v", cfg.Redact.BlurSigma)
	}
	if cfg.Redact.MaxBlurRadius != 1000 {
		t.Errorf("expected max blur radius 1000, got %d", cfg.Redact.MaxBlurRadius)
	}
	if cfg.Output.JPEGQuality != 95 {
		t.Errorf("expected jpeg quality 95, got %d", cfg.Output.JPEGQuality)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level 'info', got %q", cfg.Log.Level)
	}
	if cfg.Telemetry.Exporter != "none" {
		t.Errorf("expected exporter 'none', got %q", cfg.Telemetry.Exporter)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate: %v", err)
	}
}

func TestLoad_NoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Addr != "127.0.0.1:8080" {
		t.Errorf("expected default addr, got %q", cfg.Server.Addr)
	}
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  level: debug
redact:
  default_timeout: 5s
  blur_sigma: 3.5
output:
  default_format: jpg
server:
  rate_limit: 10/second
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Log.Level != "debug" {
		t.Errorf("expected level debug, got %q", cfg.Log.Level)
	}
	if cfg.Redact.DefaultTimeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Redact.DefaultTimeout)
	}
	if cfg.Redact.BlurSigma != 3.5 {
		t.Errorf("expected sigma 3.5, got %v", cfg.Redact.BlurSigma)
	}
	if cfg.Output.DefaultFormat != "jpg" {
		t.Errorf("expected format jpg, got %q", cfg.Output.DefaultFormat)
	}
	// Values absent from the file keep their defaults.
	if cfg.Output.JPEGQuality != 95 {
		t.Errorf("expected jpeg quality 95, got %d", cfg.Output.JPEGQuality)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}

	var cfgErr *obferrors.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %T", err)
	}
	if cfgErr.Key != "config_file" {
		t.Errorf("expected key config_file, got %q", cfgErr.Key)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("redact:\n  default_timeout: 5s\n"), 0600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("OBFUSCATE_DEFAULT_TIMEOUT", "2s")
	t.Setenv("OBFUSCATE_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("OBFUSCATE_S3_PATH_STYLE", "true")
	t.Setenv("OBFUSCATE_JPEG_QUALITY", "not-a-number")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Redact.DefaultTimeout != 2*time.Second {
		t.Errorf("expected env timeout 2s, got %v", cfg.Redact.DefaultTimeout)
	}
	if cfg.Storage.S3Endpoint != "http://localhost:9000" || !cfg.Storage.S3PathStyle {
		t.Errorf("unexpected storage config %+v", cfg.Storage)
	}
	if cfg.Output.JPEGQuality != 95 {
		t.Errorf("unparseable env value should be ignored, got %d", cfg.Output.JPEGQuality)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, "log.level"},
		{"bad format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
		{"zero timeout", func(c *Config) { c.Redact.DefaultTimeout = 0 }, "redact.default_timeout"},
		{"negative sigma", func(c *Config) { c.Redact.BlurSigma = -1 }, "redact.blur_sigma"},
		{"negative blur radius", func(c *Config) { c.Redact.MaxBlurRadius = -1 }, "redact.max_blur_radius"},
		{"quality too high", func(c *Config) { c.Output.JPEGQuality = 101 }, "output.jpeg_quality"},
		{"unknown output format", func(c *Config) { c.Output.DefaultFormat = "heic" }, "output.default_format"},
		{"bad rate limit", func(c *Config) { c.Server.RateLimit = "ten per second" }, "server.rate_limit"},
		{"no concurrency", func(c *Config) { c.Server.MaxConcurrent = 0 }, "server.max_concurrent"},
		{"unknown exporter", func(c *Config) { c.Telemetry.Exporter = "zipkin" }, "telemetry.exporter"},
		{"otlp without endpoint", func(c *Config) { c.Telemetry.Exporter = "otlp" }, "telemetry.endpoint"},
		{"sample rate", func(c *Config) { c.Telemetry.SampleRate = 2 }, "telemetry.sample_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.wantErr)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	cfg := Default()
	cfg.Log.Format = "xml"
	cfg.Output.JPEGQuality = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"log.format", "output.jpeg_quality"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestParseRateLimit(t *testing.T) {
	rl, err := ParseRateLimit("600/minute")
	if err != nil {
		t.Fatalf("ParseRateLimit() error = %v", err)
	}
	if rl.PerSecond() != 10 {
		t.Errorf("expected 10/s, got %v", rl.PerSecond())
	}

	for _, bad := range []string{"", "10", "0/second", "-1/second", "10/day", "x/second"} {
		if _, err := ParseRateLimit(bad); err == nil {
			t.Errorf("ParseRateLimit(%q) should fail", bad)
		}
	}
}

func TestResolvePath(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	xdg.Reload()
	t.Cleanup(xdg.Reload)

	t.Setenv(ConfigEnvVar, "")
	if got := ResolvePath(""); got != "" {
		t.Errorf("expected no config path, got %q", got)
	}

	if got := ResolvePath("/etc/obfuscate.yaml"); got != "/etc/obfuscate.yaml" {
		t.Errorf("explicit path should win, got %q", got)
	}

	if err := os.MkdirAll(ConfigDir(), 0700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(ConfigPath(), []byte("log:\n  level: warn\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := ResolvePath(""); got != ConfigPath() {
		t.Errorf("expected XDG path %q, got %q", ConfigPath(), got)
	}

	t.Setenv(ConfigEnvVar, "/tmp/other.yaml")
	if got := ResolvePath(""); got != "/tmp/other.yaml" {
		t.Errorf("env path should beat XDG default, got %q", got)
	}
}
