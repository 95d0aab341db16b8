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

package httpapi

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/imageio"
	"github.com/tombee/obfuscate/internal/log"
)

func newTestRouter(t *testing.T, mutate func(*Options)) http.Handler {
	t.Helper()
	action, err := obfuscate.New(&obfuscate.Config{Logger: log.Discard()})
	require.NoError(t, err)

	opts := Options{
		Action: action,
		Store:  imageio.NewStore(imageio.Options{Logger: log.Discard()}),
		Logger: log.Discard(),
	}
	if mutate != nil {
		mutate(&opts)
	}
	router, err := NewRouter(opts)
	require.NoError(t, err)
	return router
}

func pngBody(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, color.White), imaging.PNG))
	return buf.Bytes()
}

func post(router http.Handler, query string, body []byte, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/obfuscate?"+query, bytes.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeErrors(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

func TestObfuscate_FillReturnsImage(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=2&y=2&width=4&height=4", pngBody(t, 10, 10), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "fill", rec.Header().Get(HeaderMode))
	assert.NotEmpty(t, rec.Header().Get(log.RequestIDHeader))

	out, err := imaging.Decode(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, image.Pt(10, 10), out.Bounds().Size())
	r, _, _, _ := out.At(3, 3).RGBA()
	assert.Zero(t, r)
	r, _, _, _ = out.At(8, 8).RGBA()
	assert.Equal(t, uint32(0xffff), r)
}

func TestObfuscate_MissingArgumentsAllReported(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=1", nil, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	resp := decodeErrors(t, rec)
	var fields []string
	for _, e := range resp.Errors {
		fields = append(fields, e.Field)
	}
	assert.Equal(t, []string{"InputImage", "PositionY", "Width", "Height"}, fields)
}

func TestObfuscate_ExpressionsAndVars(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=0&y=0&width=%3Dimage.width+-+vars.keep&height=%3Dimage.height&var.keep=2&blur=true&blur_amount=1",
		pngBody(t, 8, 4), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "blur", rec.Header().Get(HeaderMode))
	assert.Contains(t, rec.Header().Get(HeaderRegion), "6x4")
}

func TestObfuscate_AcceptSelectsFormat(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=0&y=0&width=1&height=1", pngBody(t, 4, 4), map[string]string{
		"Accept": "text/html, image/jpeg;q=0.9",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/jpeg", rec.Header().Get("Content-Type"))

	rec = post(router, "x=0&y=0&width=1&height=1&format=gif", pngBody(t, 4, 4), map[string]string{
		"Accept": "image/jpeg",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/gif", rec.Header().Get("Content-Type"))
}

func TestObfuscate_BadFormat(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=0&y=0&width=1&height=1&format=webp", pngBody(t, 4, 4), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "format", decodeErrors(t, rec).Errors[0].Field)
}

func TestObfuscate_NotAnImage(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=0&y=0&width=1&height=1", []byte("definitely not a png"), nil)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestObfuscate_Timeout(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=0&y=0&width=2&height=2&timeout_ms=0", pngBody(t, 4, 4), nil)
	assert.Equal(t, http.StatusGatewayTimeout, rec.Code)
	assert.Equal(t, "timeout", decodeErrors(t, rec).Errors[0].Type)
}

func TestObfuscate_ContinueOnError(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "x=0&y=0&width=2&height=2&timeout_ms=0&continue_on_error=true", pngBody(t, 4, 4), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp ContinuedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Continued)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "timeout", resp.Errors[0].Type)
}

func TestObfuscate_ImageArgumentsRejectedInQuery(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := post(router, "InputImage=/etc/passwd&x=0&y=0&width=1&height=1", pngBody(t, 4, 4), nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InputImage", decodeErrors(t, rec).Errors[0].Field)
}

func TestObfuscate_BodyTooLarge(t *testing.T) {
	router := newTestRouter(t, func(o *Options) { o.MaxBodyBytes = 16 })

	rec := post(router, "x=0&y=0&width=1&height=1", pngBody(t, 4, 4), nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestObfuscate_RateLimited(t *testing.T) {
	router := newTestRouter(t, func(o *Options) {
		o.RateLimit = 0.001
		o.RateBurst = 1
	})

	body := pngBody(t, 4, 4)
	assert.Equal(t, http.StatusOK, post(router, "x=0&y=0&width=1&height=1", body, nil).Code)

	rec := post(router, "x=0&y=0&width=1&height=1", body, nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestObfuscate_MethodNotAllowed(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/obfuscate", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetadata_Language(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/v1/metadata", nil)
	req.Header.Set("Accept-Language", "fr-FR,fr;q=0.9,en;q=0.5")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fr", rec.Header().Get("Content-Language"))

	var md obfuscate.Metadata
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &md))
	assert.Equal(t, "Obscurcir", md.DisplayName)
}

func TestHealthzAndMetrics(t *testing.T) {
	router := newTestRouter(t, func(o *Options) {
		o.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("obfuscate_invocations_total 1\n"))
		})
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "obfuscate_invocations_total")
}

func TestMetricsRouteAbsentWithoutHandler(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewRouter_RequiresAction(t *testing.T) {
	_, err := NewRouter(Options{})
	assert.Error(t, err)
}
