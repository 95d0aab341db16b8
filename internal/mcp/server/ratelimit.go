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
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter throttles tool calls. Redactions that write an image have
// their own, tighter bucket on top of the bucket for all calls.
type RateLimiter struct {
	runs  *rate.Limiter
	calls *rate.Limiter
}

// NewRateLimiter creates a rate limiter with specified limits.
// runsPerMinute bounds obfuscate_image calls, callsPerMinute all calls.
// Both buckets start full.
func NewRateLimiter(runsPerMinute, callsPerMinute int) *RateLimiter {
	return &RateLimiter{
		runs:  rate.NewLimiter(perMinute(runsPerMinute), runsPerMinute),
		calls: rate.NewLimiter(perMinute(callsPerMinute), callsPerMinute),
	}
}

func perMinute(n int) rate.Limit {
	return rate.Every(time.Minute / time.Duration(n))
}

// AllowRun checks if an image-writing call is allowed.
func (rl *RateLimiter) AllowRun() bool {
	return rl.runs.Allow()
}

// AllowCall checks if any tool call is allowed.
func (rl *RateLimiter) AllowCall() bool {
	return rl.calls.Allow()
}
