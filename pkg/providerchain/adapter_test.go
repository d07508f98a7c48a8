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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/hector/pkg/model"
)

func TestLLM_GenerateContentNonStreamingDelegatesToComplete(t *testing.T) {
	primary := &fakeLLM{name: "primary", err: fmt.Errorf("rate limited")}
	backup := &fakeLLM{name: "backup", resp: okResponse("fallback answer")}
	chain := New([]Entry{{Name: "primary", Provider: primary, Priority: 0}, {Name: "backup", Provider: backup, Priority: 1}}, DefaultConfig())
	llm := NewLLM(chain, "bot1")

	var got *model.Response
	for resp, err := range llm.GenerateContent(context.Background(), &model.Request{}, false) {
		require.NoError(t, err)
		got = resp
	}
	require.NotNil(t, got)
	assert.Equal(t, 1, backup.calls)
}

func TestLLM_GenerateContentStreamingRecordsFailureOnError(t *testing.T) {
	primary := &fakeLLM{name: "primary", err: fmt.Errorf("connection reset")}
	chain := New([]Entry{{Name: "primary", Provider: primary, Priority: 0}}, DefaultConfig())
	llm := NewLLM(chain, "bot1")

	var sawErr bool
	for _, err := range llm.GenerateContent(context.Background(), &model.Request{}, true) {
		if err != nil {
			sawErr = true
		}
	}
	assert.True(t, sawErr)

	snap := chain.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, 1, snap[0].ConsecutiveFailures)
}
