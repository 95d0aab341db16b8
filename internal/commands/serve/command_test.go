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

package serve

import (
	"bytes"
	"context"
	"image/color"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/commands/shared"
)

func newRuntime(t *testing.T) *shared.Runtime {
	t.Helper()
	shared.ResetFlagsForTest()
	t.Cleanup(shared.ResetFlagsForTest)

	cfg := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte("log:\n  level: error\n"), 0600))
	shared.SetConfigPathForTest(cfg)

	rt, err := shared.NewRuntime(context.Background(), io.Discard)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close(context.Background()) })
	return rt
}

func TestNewHandler_ServesAndCountsInvocations(t *testing.T) {
	rt := newRuntime(t)
	handler, err := NewHandler(rt, rt.Config.Server, true)
	require.NoError(t, err)

	ts := httptest.NewServer(handler)
	defer ts.Close()

	var body bytes.Buffer
	require.NoError(t, imaging.Encode(&body, imaging.New(8, 8, color.White), imaging.PNG))

	resp, err := http.Post(ts.URL+"/v1/obfuscate?x=1&y=1&width=2&height=2", "image/png", &body)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	metrics, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Contains(t, string(metrics), "obfuscate_invocations_total")
	assert.Contains(t, string(metrics), `mode="fill"`)
}

func TestNewHandler_MetricsDisabled(t *testing.T) {
	rt := newRuntime(t)
	handler, err := NewHandler(rt, rt.Config.Server, false)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewHandler_BadRateLimit(t *testing.T) {
	rt := newRuntime(t)
	srvCfg := rt.Config.Server
	srvCfg.RateLimit = "fast"

	_, err := NewHandler(rt, srvCfg, true)
	require.Error(t, err)
	assert.Equal(t, shared.ExitValidation, shared.ExitCodeFor(err))
}
