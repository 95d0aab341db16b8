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

package shared

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/config"
)

func TestNewRuntime_FromConfigFile(t *testing.T) {
	ResetFlagsForTest()
	t.Cleanup(ResetFlagsForTest)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
  format: json
redact:
  default_timeout: 2s
output:
  default_format: jpg
`), 0600))
	SetConfigPathForTest(path)

	var logs bytes.Buffer
	rt, err := NewRuntime(context.Background(), &logs)
	require.NoError(t, err)
	defer rt.Close(context.Background())

	assert.Equal(t, 2*time.Second, rt.Config.Redact.DefaultTimeout)
	assert.Equal(t, "jpg", rt.Config.Output.DefaultFormat)
	assert.NotNil(t, rt.Action)
	assert.NotNil(t, rt.Store)
	assert.NotNil(t, rt.Evaluator)

	rt.Logger.Debug("hello")
	assert.Contains(t, logs.String(), `"msg":"hello"`)
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	ResetFlagsForTest()
	t.Cleanup(ResetFlagsForTest)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("output:\n  jpeg_quality: 500\n"), 0600))
	SetConfigPathForTest(path)

	_, err := NewRuntime(context.Background(), &bytes.Buffer{})
	require.Error(t, err)
	assert.Equal(t, ExitValidation, ExitCodeFor(err))
	assert.Contains(t, err.Error(), "output.jpeg_quality")
}

func TestLoggerConfig_FlagsOverrideConfig(t *testing.T) {
	ResetFlagsForTest()
	t.Cleanup(ResetFlagsForTest)

	rtCfg := config.Default()

	verbose, quiet, _, _ := RegisterFlagPointers()
	*verbose = true
	assert.Equal(t, "debug", loggerConfig(rtCfg, &bytes.Buffer{}).Level)

	*verbose = false
	*quiet = true
	assert.Equal(t, "error", loggerConfig(rtCfg, &bytes.Buffer{}).Level)
}
