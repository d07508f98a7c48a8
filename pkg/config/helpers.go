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

package config

// BoolPtr returns a pointer to b, for populating optional *bool config fields
// from a literal.
func BoolPtr(b bool) *bool { return &b }

// IntPtr returns a pointer to i, for populating optional *int config fields
// from a literal.
func IntPtr(i int) *int { return &i }

// Float64Ptr returns a pointer to f, for populating optional *float64 config
// fields from a literal.
func Float64Ptr(f float64) *float64 { return &f }

// StringPtr returns a pointer to s, for populating optional *string config
// fields from a literal.
func StringPtr(s string) *string { return &s }
