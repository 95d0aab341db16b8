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

package server

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/imageio"
	"github.com/tombee/obfuscate/internal/log"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	action, err := obfuscate.New(&obfuscate.Config{Logger: log.Discard()})
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Name:    "test-server",
		Version: "1.0.0",
		Action:  action,
		Store:   imageio.NewStore(imageio.Options{Logger: log.Discard()}),
	})
	require.NoError(t, err)
	return srv
}

func TestNewServer_ValidConfig(t *testing.T) {
	srv := newTestServer(t)

	assert.Equal(t, "test-server", srv.name)
	assert.Equal(t, "1.0.0", srv.version)
	assert.NotNil(t, srv.logger)
	assert.NotNil(t, srv.evaluator, "evaluator defaults when not supplied")
}

func TestNewServer_RequiresAction(t *testing.T) {
	srv, err := NewServer(ServerConfig{})
	assert.Error(t, err)
	assert.Nil(t, srv)
}

func TestNewServer_Defaults(t *testing.T) {
	action, err := obfuscate.New(nil)
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{Action: action, Store: imageio.NewStore(imageio.Options{})})
	require.NoError(t, err)

	assert.Equal(t, "obfuscate", srv.name)
	assert.Equal(t, "dev", srv.version)
}

func TestHandleMessage_ListsTools(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	init := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	require.NotNil(t, srv.HandleMessage(ctx, json.RawMessage(init)))

	resp := srv.HandleMessage(ctx, json.RawMessage(`{"jsonrpc":"2.0","id":2,"method":"tools/list"}`))
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	for _, name := range []string{ToolObfuscate, ToolValidate, ToolDescribe} {
		assert.Contains(t, string(data), name)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 3)

	assert.True(t, rl.AllowRun())
	assert.True(t, rl.AllowRun())
	assert.False(t, rl.AllowRun(), "run bucket holds two tokens")

	assert.True(t, rl.AllowCall())
	assert.True(t, rl.AllowCall())
	assert.True(t, rl.AllowCall())
	assert.False(t, rl.AllowCall())
}
