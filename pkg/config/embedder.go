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

import "fmt"

// EmbedderConfig configures a top-level embedding provider, referenced by
// name from document stores, agent memory, and the orchestrator's memory
// pipeline.
type EmbedderConfig struct {
	// Provider type (openai, ollama, cohere).
	Provider string `yaml:"provider,omitempty" json:"provider,omitempty"`

	// Model name (e.g., "text-embedding-3-small", "nomic-embed-text").
	Model string `yaml:"model,omitempty" json:"model,omitempty"`

	// APIKey for authentication. Supports ${VAR} expansion.
	APIKey string `yaml:"api_key,omitempty" json:"api_key,omitempty"`

	// BaseURL overrides the default API endpoint.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
}

// SetDefaults applies default values for an EmbedderConfig.
func (c *EmbedderConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = "ollama"
	}
	if c.Model == "" && c.Provider == "ollama" {
		c.Model = "nomic-embed-text"
	}
}

// Validate validates the EmbedderConfig.
func (c *EmbedderConfig) Validate() error {
	switch c.Provider {
	case "", "openai", "ollama", "cohere":
	default:
		return fmt.Errorf("invalid embedder provider %q, must be 'openai', 'ollama', or 'cohere'", c.Provider)
	}
	return nil
}
