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
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// FieldError is one rejected argument or a general failure.
type FieldError struct {
	Type       string `json:"type"`
	Field      string `json:"field,omitempty"`
	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Error  string       `json:"error"`
	Errors []FieldError `json:"errors,omitempty"`
}

// WriteJSON writes a JSON response with the given status code and data.
// If encoding fails, it logs the error.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to write JSON response", slog.Any("error", err))
	}
}

// WriteError writes err with the status matching its type.
func WriteError(w http.ResponseWriter, err error) {
	WriteJSON(w, StatusFor(err), ErrorResponse{
		Error:  err.Error(),
		Errors: fieldErrors(err),
	})
}

// StatusFor maps an error to an HTTP status code.
func StatusFor(err error) int {
	switch obferrors.TypeOf(err) {
	case obferrors.TypeValidation:
		return http.StatusBadRequest
	case obferrors.TypeTimeout:
		return http.StatusGatewayTimeout
	case obferrors.TypeNotFound:
		return http.StatusNotFound
	case obferrors.TypeOperation:
		var op *obferrors.OperationError
		if errors.As(err, &op) && op.Operation == "decode" {
			return http.StatusUnsupportedMediaType
		}
	}
	return http.StatusInternalServerError
}

func fieldErrors(err error) []FieldError {
	var verrs obferrors.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]FieldError, 0, len(verrs))
		for _, v := range verrs {
			out = append(out, fieldError(v))
		}
		return out
	}
	var verr *obferrors.ValidationError
	if errors.As(err, &verr) {
		return []FieldError{fieldError(verr)}
	}
	return []FieldError{{Type: obferrors.TypeOf(err), Message: err.Error()}}
}

func fieldError(v *obferrors.ValidationError) FieldError {
	return FieldError{
		Type:       obferrors.TypeValidation,
		Field:      v.Field,
		Message:    v.Message,
		Suggestion: v.Suggestion,
	}
}
