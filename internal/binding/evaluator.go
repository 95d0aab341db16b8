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
	"fmt"
	"image"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ImageInfo is the part of the input image visible to expressions.
type ImageInfo struct {
	Width  int `expr:"width"`
	Height int `expr:"height"`
}

// Env is the evaluation environment of an argument expression.
type Env struct {
	Image ImageInfo              `expr:"image"`
	Vars  map[string]interface{} `expr:"vars"`
}

// NewEnv builds an environment for img. A nil img yields zero dimensions.
func NewEnv(img image.Image, vars map[string]interface{}) Env {
	env := Env{Vars: vars}
	if env.Vars == nil {
		env.Vars = map[string]interface{}{}
	}
	if img != nil {
		size := img.Bounds().Size()
		env.Image = ImageInfo{Width: size.X, Height: size.Y}
	}
	return env
}

// DefaultMaxPrograms bounds the compiled-program cache.
const DefaultMaxPrograms = 256

// Evaluator compiles and runs argument expressions.
// Compiled programs are cached, so repeated invocations with the same
// argument file only pay for compilation once. The cache holds at most
// maxPrograms entries; the oldest is evicted first.
type Evaluator struct {
	cache       map[string]*vm.Program
	order       []string
	maxPrograms int
	mu          sync.RWMutex
}

// NewEvaluator creates a new expression evaluator.
func NewEvaluator() *Evaluator {
	return NewEvaluatorWithLimit(DefaultMaxPrograms)
}

// NewEvaluatorWithLimit creates an evaluator caching at most maxPrograms
// compiled expressions. Non-positive values use DefaultMaxPrograms.
func NewEvaluatorWithLimit(maxPrograms int) *Evaluator {
	if maxPrograms <= 0 {
		maxPrograms = DefaultMaxPrograms
	}
	return &Evaluator{
		cache:       make(map[string]*vm.Program),
		order:       make([]string, 0, maxPrograms),
		maxPrograms: maxPrograms,
	}
}

// Eval runs expression against env and returns its value.
func (e *Evaluator) Eval(expression string, env Env) (interface{}, error) {
	program, err := e.compile(expression)
	if err != nil {
		return nil, fmt.Errorf("failed to compile expression %q: %w", expression, err)
	}
	out, err := expr.Run(program, env)
	if err != nil {
		return nil, fmt.Errorf("expression %q failed: %w", expression, err)
	}
	return out, nil
}

// compile compiles an expression and caches the result.
func (e *Evaluator) compile(expression string) (*vm.Program, error) {
	e.mu.RLock()
	if prog, ok := e.cache[expression]; ok {
		e.mu.RUnlock()
		return prog, nil
	}
	e.mu.RUnlock()

	prog, err := expr.Compile(expression, expr.Env(Env{}))
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, exists := e.cache[expression]; !exists {
		e.order = append(e.order, expression)
		if len(e.order) > e.maxPrograms {
			delete(e.cache, e.order[0])
			e.order = e.order[1:]
		}
	}
	e.cache[expression] = prog

	return prog, nil
}

// CacheSize returns the number of cached expressions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}
