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
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
)

// AppName names the XDG subdirectory.
const AppName = "obfuscate"

// ConfigEnvVar overrides the config file location.
const ConfigEnvVar = "OBFUSCATE_CONFIG"

// ConfigDir returns the XDG config directory for obfuscate.
// On Linux: ~/.config/obfuscate
// On macOS: ~/Library/Application Support/obfuscate
// Respects XDG_CONFIG_HOME.
func ConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// ConfigPath returns the full path to the default config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// ResolvePath picks the config file to load: the explicit path, then
// $OBFUSCATE_CONFIG, then the XDG default if it exists. An empty result
// means run on defaults and environment only.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(ConfigEnvVar); env != "" {
		return env
	}
	path := ConfigPath()
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
