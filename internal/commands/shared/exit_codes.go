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
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// Exit codes for obfuscate commands
const (
	ExitSuccess         = 0
	ExitExecutionFailed = 1
	ExitValidation      = 2
	ExitTimeout         = 3
	ExitIO              = 4
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewExecutionError creates an error for failed redactions.
func NewExecutionError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitExecutionFailed, Message: msg, Cause: cause}
}

// NewValidationError creates an error for missing or malformed arguments.
func NewValidationError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitValidation, Message: msg, Cause: cause}
}

// NewTimeoutError creates an error for an exhausted time budget.
func NewTimeoutError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitTimeout, Message: msg, Cause: cause}
}

// NewIOError creates an error for images that could not be read or written.
func NewIOError(msg string, cause error) *ExitError {
	return &ExitError{Code: ExitIO, Message: msg, Cause: cause}
}

// ExitCodeFor maps an error to the process exit code.
func ExitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	switch obferrors.TypeOf(err) {
	case obferrors.TypeValidation, obferrors.TypeConfig:
		return ExitValidation
	case obferrors.TypeTimeout:
		return ExitTimeout
	case obferrors.TypeNotFound:
		return ExitIO
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ExitTimeout
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return ExitIO
	}
	return ExitExecutionFailed
}

// Classify wraps err in an ExitError carrying the matching code. ExitErrors
// pass through unchanged.
func Classify(msg string, err error) *ExitError {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: ExitCodeFor(err), Message: msg, Cause: err}
}

// HandleExitError prints err with any suggestions and exits with the
// matching code.
func HandleExitError(err error) {
	if err == nil {
		return
	}
	PrintError(os.Stderr, err)
	os.Exit(ExitCodeFor(err))
}

// PrintError writes err and the suggestions attached to it.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, RenderError(err.Error()))
	for _, s := range Suggestions(err) {
		fmt.Fprintf(w, "\nSuggestion: %s\n", s)
	}
}

// Suggestions collects the suggestions of every validation error in err.
func Suggestions(err error) []string {
	var out []string
	var verrs obferrors.ValidationErrors
	if errors.As(err, &verrs) {
		for _, v := range verrs {
			if v.Suggestion != "" {
				out = append(out, v.Suggestion)
			}
		}
		return out
	}
	var verr *obferrors.ValidationError
	if errors.As(err, &verr) && verr.Suggestion != "" {
		out = append(out, verr.Suggestion)
	}
	return out
}
