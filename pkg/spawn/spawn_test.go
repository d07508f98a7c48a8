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

package spawn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NoFenceReturnsWholeResponseAsPreSpawnText(t *testing.T) {
	pre, d, err := Parse("Hello there.")
	require.NoError(t, err)
	assert.Nil(t, d)
	assert.Equal(t, "Hello there.", pre)
}

func TestParse_ParallelDirectiveWithPreSpawnProse(t *testing.T) {
	resp := "I'll split this.\n\n```spawn\nmode: parallel\ntasks:\n  - \"Research A\"\n  - \"Research B\"\n```\n"
	pre, d, err := Parse(resp)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "I'll split this.", pre)
	assert.Equal(t, ModeParallel, d.Mode)
	assert.Equal(t, []string{"Research A", "Research B"}, d.Tasks)
}

func TestParse_SequentialDirectiveInlineArray(t *testing.T) {
	resp := "```spawn\nmode: sequential\ntasks: [\"Step1\", \"Step2\"]\n```"
	_, d, err := Parse(resp)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, ModeSequential, d.Mode)
	assert.Equal(t, []string{"Step1", "Step2"}, d.Tasks)
}

func TestParse_NormalizesTaskWhitespace(t *testing.T) {
	resp := "```spawn\nmode: parallel\ntasks:\n  - \"  padded task  \"\n```"
	_, d, err := Parse(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"padded task"}, d.Tasks)
}

func TestParse_MissingModeIsStructuredError(t *testing.T) {
	resp := "```spawn\ntasks:\n  - \"a\"\n```"
	_, d, err := Parse(resp)
	require.Error(t, err)
	assert.Nil(t, d)
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
}

func TestParse_EmptyTasksIsStructuredError(t *testing.T) {
	resp := "```spawn\nmode: parallel\ntasks: []\n```"
	_, d, err := Parse(resp)
	require.Error(t, err)
	assert.Nil(t, d)
}

func TestParse_BlankTasksAreDroppedAndCanEmptyTheList(t *testing.T) {
	resp := "```spawn\nmode: parallel\ntasks:\n  - \"   \"\n  - \"\"\n```"
	_, d, err := Parse(resp)
	require.Error(t, err)
	assert.Nil(t, d)
}

func TestParse_UnknownModeIsStructuredError(t *testing.T) {
	resp := "```spawn\nmode: whenever\ntasks:\n  - \"a\"\n```"
	_, _, err := Parse(resp)
	require.Error(t, err)
}

func TestSchema_DescribesModeAndTasks(t *testing.T) {
	s, err := Schema()
	require.NoError(t, err)
	props, ok := s["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "mode")
	assert.Contains(t, props, "tasks")
}
