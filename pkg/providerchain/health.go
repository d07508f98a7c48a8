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

package providerchain

import (
	"sync"
	"time"
)

// CircuitState is the three-state circuit breaker state for one provider.
// Names match the "closed" | "open" | "half_open" vocabulary already used
// by this codebase's provider-status reporting.
type CircuitState string

const (
	CircuitClosed   CircuitState = "closed"
	CircuitOpen     CircuitState = "open"
	CircuitHalfOpen CircuitState = "half_open"
)

// Health tracks one provider's circuit-breaker state across the process
// lifetime of the chain it belongs to. A single mutex guards all
// mutations; reads of the summarizing Snapshot are taken under the same
// lock for consistency rather than relaxed atomics, since breaker
// transitions are rare relative to call volume.
type Health struct {
	mu sync.Mutex

	state               CircuitState
	openedAt            time.Time
	consecutiveFailures int
	lastError           string
	lastSuccessAt       time.Time
	totalCalls          int64
	totalFailures       int64

	failThreshold int
	coolDown      time.Duration
}

// NewHealth creates a Health tracker starting Closed.
func NewHealth(failThreshold int, coolDown time.Duration) *Health {
	if failThreshold <= 0 {
		failThreshold = 3
	}
	if coolDown <= 0 {
		coolDown = 30 * time.Second
	}
	return &Health{
		state:         CircuitClosed,
		failThreshold: failThreshold,
		coolDown:      coolDown,
	}
}

// HealthSnapshot is a read-only view of a provider's breaker state, named
// and shaped after original_source's ProviderStatusInfo so a transport
// can render the same provider-status table.
type HealthSnapshot struct {
	Name                string
	CircuitState        CircuitState
	LastError           string
	LastSuccessAgo      time.Duration
	HasLastSuccess      bool
	TotalCalls          int64
	TotalFailures       int64
	ConsecutiveFailures int
}

// Snapshot returns the current state of h under name.
func (h *Health) Snapshot(name string) HealthSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()

	snap := HealthSnapshot{
		Name:                name,
		CircuitState:        h.resolveState(time.Now()),
		LastError:           h.lastError,
		TotalCalls:          h.totalCalls,
		TotalFailures:       h.totalFailures,
		ConsecutiveFailures: h.consecutiveFailures,
	}
	if !h.lastSuccessAt.IsZero() {
		snap.HasLastSuccess = true
		snap.LastSuccessAgo = time.Since(h.lastSuccessAt)
	}
	return snap
}

// AvailableAt reports whether the provider may be attempted at now,
// transitioning Open to HalfOpen in place when the cool-down has
// elapsed.
func (h *Health) AvailableAt(now time.Time) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.state = h.resolveState(now)
	return h.state != CircuitOpen
}

// resolveState must be called with h.mu held. It performs the
// Open -> HalfOpen transition once the cool-down has elapsed, without
// mutating state otherwise.
func (h *Health) resolveState(now time.Time) CircuitState {
	if h.state == CircuitOpen && now.Sub(h.openedAt) >= h.coolDown {
		return CircuitHalfOpen
	}
	return h.state
}

// RecordSuccess moves the breaker toward Closed and resets the
// consecutive-failure streak. A single success from HalfOpen closes the
// breaker.
func (h *Health) RecordSuccess() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalCalls++
	h.consecutiveFailures = 0
	h.state = CircuitClosed
	h.lastSuccessAt = time.Now()
}

// RecordFailure applies a failover-class failure: increments counters
// and, once consecutiveFailures reaches failThreshold (or the call was
// attempted from HalfOpen), opens the breaker.
func (h *Health) RecordFailure(errMsg string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.totalCalls++
	h.totalFailures++
	h.consecutiveFailures++
	h.lastError = errMsg

	if h.state == CircuitHalfOpen || h.consecutiveFailures >= h.failThreshold {
		h.state = CircuitOpen
		h.openedAt = time.Now()
	}
}
