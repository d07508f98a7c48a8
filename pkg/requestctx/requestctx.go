// Copyright 2025 Kadir Pekel
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

// Package requestctx implements the per-user-request bundle shared by
// reference across an agent tree: a token budget, a cooperative
// cancellation signal, the current nesting depth, and a cycle detector
// that rejects re-spawned duplicate tasks.
package requestctx

import (
	"sync"

	"github.com/google/uuid"
)

// Registry is a process-wide map from request id to the root
// cancellation signal for that request, so a transport layer can cancel
// a request by id without holding a reference to the RequestContext
// itself. Entries are inserted at orchestration entry and evicted on
// every exit path.
type Registry struct {
	mu      sync.Mutex
	signals map[string]*Cancellation
}

// NewRegistry creates an empty cancellation registry.
func NewRegistry() *Registry {
	return &Registry{signals: make(map[string]*Cancellation)}
}

// Register associates requestID with its cancellation signal.
func (r *Registry) Register(requestID string, c *Cancellation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals[requestID] = c
}

// Evict removes requestID from the registry.
func (r *Registry) Evict(requestID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.signals, requestID)
}

// Cancel trips the cancellation signal registered for requestID, if any.
// Returns false if no request with that id is currently registered.
func (r *Registry) Cancel(requestID string) bool {
	r.mu.Lock()
	c, ok := r.signals[requestID]
	r.mu.Unlock()
	if !ok {
		return false
	}
	c.Cancel()
	return true
}

// RequestContext is the per-user-request bundle threaded through an
// agent tree. It is created once at the root and cloned (via Child) for
// every sub-agent; the Budget and CycleDetector are shared by reference
// across the whole tree, while Cancellation is derived so a child can be
// cancelled without tripping its siblings or parent.
type RequestContext struct {
	RequestID     string
	Budget        *Budget
	Cancellation  *Cancellation
	Depth         int
	CycleDetector *CycleDetector
}

// New creates a root RequestContext at depth 0 with a fresh budget,
// cancellation signal, and cycle detector.
func New(totalBudget int) *RequestContext {
	return &RequestContext{
		RequestID:     uuid.NewString(),
		Budget:        NewBudget(totalBudget),
		Cancellation:  NewCancellation(),
		Depth:         0,
		CycleDetector: NewCycleDetector(),
	}
}

// NewWithWarningFraction is like New but lets the caller override the
// budget warning fraction (spec default 0.80).
func NewWithWarningFraction(totalBudget int, warningFraction float64) *RequestContext {
	rc := New(totalBudget)
	rc.Budget = NewBudgetWithFraction(totalBudget, warningFraction)
	return rc
}

// Child returns a new RequestContext one level deeper than rc. The
// budget and cycle detector are shared by reference; the cancellation
// signal is derived so the child trips when rc trips, without the
// reverse holding.
func (rc *RequestContext) Child() *RequestContext {
	return &RequestContext{
		RequestID:     rc.RequestID,
		Budget:        rc.Budget,
		Cancellation:  rc.Cancellation.NewChild(),
		Depth:         rc.Depth + 1,
		CycleDetector: rc.CycleDetector,
	}
}

// IsCancelled is a cheap, non-blocking check of the cancellation signal.
func (rc *RequestContext) IsCancelled() bool {
	return rc.Cancellation.IsCancelled()
}

// Cancel trips the cancellation signal for this context and every
// descendant derived from it.
func (rc *RequestContext) Cancel() {
	rc.Cancellation.Cancel()
}
