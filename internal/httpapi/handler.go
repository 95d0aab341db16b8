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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	"github.com/tombee/obfuscate/internal/binding"
	"github.com/tombee/obfuscate/internal/imageio"
	"github.com/tombee/obfuscate/internal/log"
	"github.com/tombee/obfuscate/internal/tracing"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// bodyRef names the uploaded image in errors and logs.
const bodyRef = "request body"

// Response headers set on a successful redaction.
const (
	HeaderRegion    = "X-Obfuscate-Region"
	HeaderMode      = "X-Obfuscate-Mode"
	HeaderDuration  = "X-Obfuscate-Duration-Ms"
	HeaderExifWiped = "X-Obfuscate-Exif-Removed"
)

// Options configures the handler.
type Options struct {
	Action    *obfuscate.ObfuscateAction
	Store     *imageio.Store
	Evaluator *binding.Evaluator
	Logger    *slog.Logger
	Tracer    trace.Tracer

	// Metrics tracks in-flight requests. Optional.
	Metrics *tracing.MetricsCollector

	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler

	// MaxConcurrent bounds redactions running at once (default 4).
	MaxConcurrent int64

	// RateLimit is requests per second on /v1/obfuscate. Zero disables it.
	RateLimit float64
	RateBurst int

	// MaxBodyBytes bounds the uploaded image (default imageio.DefaultMaxBytes).
	MaxBodyBytes int64
}

type handler struct {
	opts    Options
	logger  *slog.Logger
	sem     *semaphore.Weighted
	limiter *rate.Limiter
}

// query parameter -> activity argument
var queryArguments = map[string]string{
	"x":                 obfuscate.ArgPositionX,
	"y":                 obfuscate.ArgPositionY,
	"width":             obfuscate.ArgWidth,
	"height":            obfuscate.ArgHeight,
	"blur":              obfuscate.ArgBlur,
	"blur_amount":       obfuscate.ArgBlurAmount,
	"timeout_ms":        obfuscate.ArgTimeoutMS,
	"continue_on_error": obfuscate.ArgContinueOnError,
}

// NewRouter builds the HTTP routes.
func NewRouter(opts Options) (http.Handler, error) {
	if opts.Action == nil || opts.Store == nil {
		return nil, fmt.Errorf("httpapi: action and store are required")
	}
	if opts.Evaluator == nil {
		opts.Evaluator = binding.NewEvaluator()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("httpapi")
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = imageio.DefaultMaxBytes
	}

	h := &handler{
		opts:   opts,
		logger: log.WithComponent(opts.Logger, "http"),
		sem:    semaphore.NewWeighted(opts.MaxConcurrent),
	}
	if opts.RateLimit > 0 {
		burst := opts.RateBurst
		if burst <= 0 {
			burst = max(1, int(opts.RateLimit))
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), burst)
	}

	router := mux.NewRouter()
	router.Use(log.NewHTTPMiddleware(opts.Logger).Wrap)
	router.Use(h.traceRoute)

	router.HandleFunc("/v1/obfuscate", h.obfuscate).Methods(http.MethodPost)
	router.HandleFunc("/v1/metadata", h.metadata).Methods(http.MethodGet)
	router.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	if opts.MetricsHandler != nil {
		router.Handle("/metrics", opts.MetricsHandler).Methods(http.MethodGet)
	}
	return router, nil
}

// traceRoute names server spans after the route template.
func (h *handler) traceRoute(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := ""
		if cr := mux.CurrentRoute(r); cr != nil {
			route, _ = cr.GetPathTemplate()
		}
		tracing.HTTPMiddleware(h.opts.Tracer, route, next).ServeHTTP(w, r)
	})
}

func (h *handler) healthz(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handler) metadata(w http.ResponseWriter, r *http.Request) {
	lang := r.URL.Query().Get("lang")
	if lang == "" {
		lang = r.Header.Get("Accept-Language")
	}
	md := obfuscate.Describe(obfuscate.MatchLanguage(lang))
	w.Header().Set("Content-Language", md.Language)
	WriteJSON(w, http.StatusOK, md)
}

// ContinuedResponse is returned when continue_on_error suppressed a failure.
type ContinuedResponse struct {
	Continued bool                   `json:"continued"`
	Errors    []FieldError           `json:"errors"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

func (h *handler) obfuscate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.limiter != nil && !h.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		WriteJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded"})
		return
	}

	raw, vars, err := argumentsFromQuery(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			WriteJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("image larger than %d bytes", tooLarge.Limit),
			})
			return
		}
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "failed to read request body"})
		return
	}
	if len(data) > 0 {
		raw[obfuscate.ArgInputImage] = bodyRef
	}

	if err := h.opts.Evaluator.Preflight(raw); err != nil {
		WriteError(w, err)
		return
	}

	format, err := h.outputFormat(r)
	if err != nil {
		WriteError(w, err)
		return
	}

	if err := h.sem.Acquire(ctx, 1); err != nil {
		WriteJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "request cancelled while waiting for a worker"})
		return
	}
	defer h.sem.Release(1)
	if h.opts.Metrics != nil {
		defer h.opts.Metrics.TrackInFlight()()
	}

	img, info, err := h.opts.Store.Decode(ctx, bodyRef, data)
	if err != nil {
		WriteError(w, err)
		return
	}
	if format == nil {
		f, err := imageio.ParseFormat(info.Format)
		if err != nil {
			f = imaging.PNG
		}
		format = &f
	}

	args, err := h.opts.Evaluator.Resolve(ctx, raw, img, vars)
	if err != nil {
		WriteError(w, err)
		return
	}

	res, err := h.opts.Action.Invoke(ctx, args)
	if err != nil {
		WriteError(w, err)
		return
	}
	if res.Err != nil {
		WriteJSON(w, http.StatusOK, ContinuedResponse{
			Continued: true,
			Errors:    fieldErrors(res.Err),
			Metadata:  res.Metadata,
		})
		return
	}

	w.Header().Set("Content-Type", imageio.ContentType(*format))
	w.Header().Set(HeaderMode, fmt.Sprint(res.Metadata["mode"]))
	w.Header().Set(HeaderRegion, fmt.Sprint(res.Metadata["region"]))
	w.Header().Set(HeaderDuration, fmt.Sprint(res.Metadata["duration_ms"]))
	if info.Exif.Tags > 0 {
		w.Header().Set(HeaderExifWiped, strconv.Itoa(info.Exif.Tags))
	}
	if err := h.opts.Store.Encode(w, res.OutputImage, *format); err != nil {
		h.logger.ErrorContext(ctx, "failed to encode response image", slog.String(log.ErrorKey, err.Error()))
	}
}

// outputFormat returns nil when the input format should be reused.
func (h *handler) outputFormat(r *http.Request) (*imaging.Format, error) {
	if name := r.URL.Query().Get("format"); name != "" {
		f, err := imageio.ParseFormat(name)
		if err != nil {
			return nil, &obferrors.ValidationError{
				Field:      "format",
				Message:    err.Error(),
				Suggestion: "use png, jpg, gif, bmp or tif",
			}
		}
		return &f, nil
	}
	for _, part := range strings.Split(r.Header.Get("Accept"), ",") {
		mediaType, _, err := mime.ParseMediaType(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		if f, ok := imageio.FormatForMediaType(mediaType); ok {
			return &f, nil
		}
	}
	return nil, nil
}

// argumentsFromQuery reads activity arguments and var.<name> variables.
func argumentsFromQuery(r *http.Request) (binding.Raw, map[string]interface{}, error) {
	raw := binding.Raw{}
	vars := map[string]interface{}{}
	var errs obferrors.ValidationErrors

	for key, values := range r.URL.Query() {
		if len(values) == 0 {
			continue
		}
		value := values[len(values)-1]

		if name, ok := strings.CutPrefix(key, "var."); ok {
			var v interface{}
			if err := yaml.Unmarshal([]byte(value), &v); err != nil || v == nil {
				v = value
			}
			vars[name] = v
			continue
		}

		name, ok := queryArguments[key]
		if !ok {
			name = key
		}
		switch name {
		case obfuscate.ArgInputImage, obfuscate.ArgOutputImage:
			errs = append(errs, &obferrors.ValidationError{
				Field:      name,
				Message:    "images travel in the request and response bodies",
				Suggestion: "send the image as the request body",
			})
			continue
		}
		if isArgument(name) {
			raw[name] = value
		}
	}
	if err := errs.OrNil(); err != nil {
		return nil, nil, err
	}
	return raw, vars, nil
}

func isArgument(name string) bool {
	for _, d := range obfuscate.Descriptors() {
		if d.Name == name {
			return true
		}
	}
	return false
}
