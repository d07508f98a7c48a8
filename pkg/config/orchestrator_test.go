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

import "testing"

func TestOrchestratorConfig_SetDefaultsFillsZeroFieldsOnly(t *testing.T) {
	c := &OrchestratorConfig{MaxDepth: 5}
	c.SetDefaults()

	if c.MaxDepth != 5 {
		t.Errorf("MaxDepth = %v, want 5 (explicit value should not be overwritten)", c.MaxDepth)
	}
	if c.RequestBudgetTotal != DefaultOrchestratorConfig().RequestBudgetTotal {
		t.Errorf("RequestBudgetTotal = %v, want default", c.RequestBudgetTotal)
	}
	if c.RecallTopK != DefaultOrchestratorConfig().RecallTopK {
		t.Errorf("RecallTopK = %v, want default", c.RecallTopK)
	}
}

func TestOrchestratorConfig_ValidateRejectsOutOfRangeValues(t *testing.T) {
	cases := []struct {
		name string
		cfg  OrchestratorConfig
	}{
		{"zero max depth", OrchestratorConfig{MaxDepth: 0, RequestBudgetTotal: 1, BudgetWarningFraction: 0.5, EventBusCapacity: 1, BreakerFailThreshold: 1, RecallMinSimilarity: 0.5}},
		{"zero budget", OrchestratorConfig{MaxDepth: 1, RequestBudgetTotal: 0, BudgetWarningFraction: 0.5, EventBusCapacity: 1, BreakerFailThreshold: 1}},
		{"warning fraction over 1", OrchestratorConfig{MaxDepth: 1, RequestBudgetTotal: 1, BudgetWarningFraction: 1.5, EventBusCapacity: 1, BreakerFailThreshold: 1}},
		{"negative cool down", OrchestratorConfig{MaxDepth: 1, RequestBudgetTotal: 1, BudgetWarningFraction: 0.5, EventBusCapacity: 1, BreakerFailThreshold: 1, BreakerCoolDownMS: -1}},
		{"similarity above 1", OrchestratorConfig{MaxDepth: 1, RequestBudgetTotal: 1, BudgetWarningFraction: 0.5, EventBusCapacity: 1, BreakerFailThreshold: 1, RecallMinSimilarity: 1.5}},
	}

	for _, tc := range cases {
		if err := tc.cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error, got nil", tc.name)
		}
	}
}

func TestOrchestratorConfig_ValidateAcceptsDefaults(t *testing.T) {
	c := DefaultOrchestratorConfig()
	if err := c.Validate(); err != nil {
		t.Errorf("default config should validate, got error: %v", err)
	}
}

func TestConfig_SetDefaultsPopulatesOrchestratorWhenOmitted(t *testing.T) {
	c := &Config{}
	c.SetDefaults()

	if c.Orchestrator == nil {
		t.Fatal("expected Orchestrator to be populated with defaults")
	}
	if c.Orchestrator.MaxDepth != DefaultOrchestratorConfig().MaxDepth {
		t.Errorf("Orchestrator.MaxDepth = %v, want default", c.Orchestrator.MaxDepth)
	}
}
