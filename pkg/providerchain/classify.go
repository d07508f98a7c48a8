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
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
)

// failoverSubstrings are error-message substrings that indicate a
// transient, failover-class error rather than a terminal one.
var failoverSubstrings = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"rate limit",
	"too many requests",
	"temporarily unavailable",
	"econnrefused",
	"etimedout",
	"econnreset",
	"eof",
}

// statusCodeRe extracts an HTTP status code from provider error strings
// shaped like "API error (status 503): ...", matching the format emitted
// by pkg/model's provider adapters.
var statusCodeRe = regexp.MustCompile(`status (\d{3})`)

// rateLimitSubstrings are the subset of failoverSubstrings specific to
// rate limiting, used to decide whether a failure is eligible for
// queueing rather than immediate advancement to the next provider.
var rateLimitSubstrings = []string{
	"rate limit",
	"too many requests",
}

// IsRateLimitError reports whether err specifically indicates the
// provider rejected the call for exceeding a rate limit (HTTP 429 or a
// matching message), as opposed to any other failover-class error.
func IsRateLimitError(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())

	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil && code == 429 {
			return true
		}
	}

	for _, sub := range rateLimitSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}

	return false
}

// IsFailoverError classifies err as triggering the circuit breaker and
// chain advancement (rate limit, 5xx, connection reset, timeout) versus
// terminal (invalid key, invalid request, anything else).
func IsFailoverError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	msg := strings.ToLower(err.Error())

	if m := statusCodeRe.FindStringSubmatch(msg); m != nil {
		if code, convErr := strconv.Atoi(m[1]); convErr == nil {
			if code == 429 || code >= 500 {
				return true
			}
			// 4xx other than 429 (invalid key, bad request) is terminal.
			if code >= 400 && code < 500 {
				return false
			}
		}
	}

	for _, sub := range failoverSubstrings {
		if strings.Contains(msg, sub) {
			return true
		}
	}

	return false
}
