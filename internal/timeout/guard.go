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

// Package timeout races an operation against a time budget.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	obferrors "github.com/tombee/obfuscate/pkg/errors"
)

// Outcome is the terminal state of a guarded run.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeFailed    Outcome = "failed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeCancelled Outcome = "cancelled"
)

// Classify maps the error returned by Run to an Outcome.
func Classify(err error) Outcome {
	if err == nil {
		return OutcomeCompleted
	}
	var te *obferrors.TimeoutError
	if errors.As(err, &te) {
		return OutcomeTimedOut
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return OutcomeCancelled
	}
	return OutcomeFailed
}

type result[T any] struct {
	value T
	err   error
}

// Run executes fn and returns whichever happens first: fn finishing, the
// budget elapsing, or ctx being cancelled.
//
// fn receives a context that is cancelled as soon as Run returns. Run does
// not wait for fn to observe that cancellation, so an fn that ignores its
// context keeps running in the background until it returns on its own.
//
// A budget of zero or less times out immediately without starting fn.
// A panic in fn is returned as an OperationError.
func Run[T any](ctx context.Context, budget time.Duration, operation string, fn func(context.Context) (T, error)) (T, error) {
	var zero T

	if budget <= 0 {
		return zero, &obferrors.TimeoutError{Operation: operation, Duration: budget}
	}
	if err := ctx.Err(); err != nil {
		return zero, obferrors.Wrapf(err, "%s", operation)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so the goroutine can always deliver and exit after Run returns.
	done := make(chan result[T], 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- result[T]{err: &obferrors.OperationError{
					Operation: operation,
					Message:   fmt.Sprintf("panic: %v", p),
				}}
			}
		}()
		v, err := fn(runCtx)
		done <- result[T]{value: v, err: err}
	}()

	timer := time.NewTimer(budget)
	defer timer.Stop()

	select {
	case r := <-done:
		return r.value, r.err
	case <-timer.C:
		return zero, &obferrors.TimeoutError{Operation: operation, Duration: budget}
	case <-ctx.Done():
		return zero, obferrors.Wrapf(ctx.Err(), "%s", operation)
	}
}
