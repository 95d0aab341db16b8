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
	"errors"

	"github.com/tombee/obfuscate/internal/action/obfuscate"
	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// Error codes for structured JSON output
const (
	// Validation errors (E001-E099)
	ErrorCodeMissingField  = "E001" // Missing required argument
	ErrorCodeInvalidArgs   = "E002" // Malformed argument file or value
	ErrorCodeInvalidConfig = "E003" // Configuration rejected

	// Execution errors (E100-E199)
	ErrorCodeTimeout         = "E101" // Time budget exhausted
	ErrorCodeOperationFailed = "E102" // Fill or blur failed

	// Image errors (E300-E399)
	ErrorCodeImageNotFound = "E301" // Input image not found
	ErrorCodeImageIO       = "E302" // Image could not be read or written

	// Internal errors (E400-E499)
	ErrorCodeInternal = "E402"
)

// JSONErrorsFor converts err into one JSONError per reported problem.
func JSONErrorsFor(err error) []JSONError {
	if err == nil {
		return nil
	}

	var verrs obferrors.ValidationErrors
	if errors.As(err, &verrs) {
		out := make([]JSONError, 0, len(verrs))
		for _, v := range verrs {
			out = append(out, validationJSONError(v))
		}
		return out
	}
	var verr *obferrors.ValidationError
	if errors.As(err, &verr) {
		return []JSONError{validationJSONError(verr)}
	}

	code := ErrorCodeInternal
	switch obferrors.TypeOf(err) {
	case obferrors.TypeTimeout:
		code = ErrorCodeTimeout
	case obferrors.TypeOperation:
		code = ErrorCodeOperationFailed
	case obferrors.TypeNotFound:
		code = ErrorCodeImageNotFound
	case obferrors.TypeConfig:
		code = ErrorCodeInvalidConfig
	default:
		if ExitCodeFor(err) == ExitIO {
			code = ErrorCodeImageIO
		}
	}
	return []JSONError{{Code: code, Message: err.Error()}}
}

func validationJSONError(v *obferrors.ValidationError) JSONError {
	code := ErrorCodeInvalidArgs
	if v.Message == obfuscate.MissingArgumentMessage {
		code = ErrorCodeMissingField
	}
	return JSONError{
		Code:       code,
		Message:    v.Error(),
		Field:      v.Field,
		Suggestion: v.Suggestion,
	}
}
