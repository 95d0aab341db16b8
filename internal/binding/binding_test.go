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

package binding

import (
	"context"
	"errors"
	"fmt"
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/redact"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

func fullRaw() Raw {
	return Raw{
		obfuscate.ArgInputImage: "in.png",
		obfuscate.ArgPositionX:  10,
		obfuscate.ArgPositionY:  "=image.height - 20",
		obfuscate.ArgWidth:      "=int(image.width / 3)",
		obfuscate.ArgHeight:     "=min(image.height, 64)",
		obfuscate.ArgBlur:       true,
		obfuscate.ArgBlurAmount: "=vars.strength",
	}
}

func TestParseFile(t *testing.T) {
	data := []byte(`
arguments:
  InputImage: photos/team.jpg
  OutputImage: out/team.png
  PositionX: 12
  PositionY: 40
  Width: "=image.width - 24"
  Height: 80
  Blur: true
  BlurAmount: 6
vars:
  margin: 12
`)
	f, err := ParseFile(data)
	require.NoError(t, err)

	ref, ok := f.Arguments.Ref(obfuscate.ArgInputImage)
	assert.True(t, ok)
	assert.Equal(t, "photos/team.jpg", ref)
	assert.Equal(t, 12, f.Arguments[obfuscate.ArgPositionX])
	assert.Equal(t, 12, f.Vars["margin"])
	assert.True(t, IsExpression(f.Arguments[obfuscate.ArgWidth]))
}

func TestParseFile_Invalid(t *testing.T) {
	_, err := ParseFile([]byte("arguments: [1, 2"))
	var verr *obferrors.ValidationError
	assert.True(t, errors.As(err, &verr))
}

func TestPreflight(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name       string
		raw        Raw
		wantFields []string
	}{
		{
			name: "complete",
			raw:  fullRaw(),
		},
		{
			name:       "empty",
			raw:        Raw{},
			wantFields: []string{"InputImage", "PositionX", "PositionY", "Width", "Height"},
		},
		{
			name: "blank strings count as missing",
			raw: Raw{
				obfuscate.ArgInputImage: "  ",
				obfuscate.ArgPositionX:  1, obfuscate.ArgPositionY: 1, obfuscate.ArgWidth: 1, obfuscate.ArgHeight: 1,
			},
			wantFields: []string{"InputImage"},
		},
		{
			name: "bad literal and bad expression",
			raw: fullRaw().Merge(Raw{
				obfuscate.ArgTimeoutMS: "soon",
				obfuscate.ArgWidth:     "=image.width +",
			}),
			wantFields: []string{"TimeoutMS", "Width"},
		},
		{
			name:       "input image must be a reference",
			raw:        fullRaw().Merge(Raw{obfuscate.ArgInputImage: 42}),
			wantFields: []string{"InputImage"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := e.Preflight(tt.raw)
			if tt.wantFields == nil {
				require.NoError(t, err)
				return
			}
			var verrs obferrors.ValidationErrors
			require.True(t, errors.As(err, &verrs), "expected ValidationErrors, got %v", err)
			assert.Equal(t, tt.wantFields, verrs.Fields())
		})
	}
}

func TestResolve(t *testing.T) {
	e := NewEvaluator()
	img := image.NewNRGBA(image.Rect(0, 0, 90, 120))

	args, err := e.Resolve(context.Background(), fullRaw(), img, map[string]interface{}{"strength": 5})
	require.NoError(t, err)

	req := args.Request()
	assert.Equal(t, redact.Region{X: 10, Y: 100, Width: 30, Height: 64}, req.Region)
	assert.Equal(t, redact.ModeBlur, req.Mode)
	assert.Equal(t, 5, req.BlurStrength)
	assert.NoError(t, args.Validate())
	assert.Equal(t, 4, e.CacheSize())
}

func TestResolve_ExpressionErrors(t *testing.T) {
	e := NewEvaluator()
	img := image.NewNRGBA(image.Rect(0, 0, 10, 10))

	raw := fullRaw().Merge(Raw{obfuscate.ArgWidth: "=image.width / 3"})
	_, err := e.Resolve(context.Background(), raw, img, map[string]interface{}{"strength": 1})

	var verr *obferrors.ValidationError
	require.True(t, errors.As(err, &verr), "expected ValidationError, got %v", err)
	assert.Equal(t, obfuscate.ArgWidth, verr.Field)
}

func TestResolve_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewEvaluator().Resolve(ctx, fullRaw(), nil, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRaw_Merge(t *testing.T) {
	base := Raw{"Width": 5, "Height": 6}
	merged := base.Merge(Raw{"Width": 7, "Height": nil, "Blur": true})

	assert.Equal(t, 7, merged["Width"])
	assert.Equal(t, 6, merged["Height"], "nil must not override")
	assert.Equal(t, true, merged["Blur"])
	assert.Equal(t, 5, base["Width"], "Merge must not modify the receiver")
}

func TestEvaluator_CacheIsBounded(t *testing.T) {
	e := NewEvaluatorWithLimit(8)
	env := NewEnv(image.NewNRGBA(image.Rect(0, 0, 10, 10)), nil)

	for i := 0; i < 100; i++ {
		out, err := e.Eval(fmt.Sprintf("image.width + %d", i), env)
		require.NoError(t, err)
		assert.Equal(t, 10+i, out)
		assert.LessOrEqual(t, e.CacheSize(), 8)
	}
	assert.Equal(t, 8, e.CacheSize())

	// evicted expressions still evaluate
	out, err := e.Eval("image.width + 0", env)
	require.NoError(t, err)
	assert.Equal(t, 10, out)
	assert.Equal(t, 8, e.CacheSize())

	assert.Equal(t, DefaultMaxPrograms, NewEvaluatorWithLimit(0).maxPrograms)
}
