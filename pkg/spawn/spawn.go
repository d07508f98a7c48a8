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

// Package spawn parses the spawn directive an agent may embed in its
// text response to decompose a request into parallel or sequential
// sub-agent tasks.
package spawn

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// Mode selects how the orchestrator fans out a directive's tasks.
type Mode string

const (
	ModeParallel   Mode = "parallel"
	ModeSequential Mode = "sequential"
)

// Directive is the parsed contents of a spawn block.
type Directive struct {
	Mode  Mode     `yaml:"mode" json:"mode" jsonschema:"required,enum=parallel,enum=sequential,description=Whether tasks run concurrently or in order"`
	Tasks []string `yaml:"tasks" json:"tasks" jsonschema:"required,description=Ordered list of sub-agent task descriptions"`
}

// fencePattern matches a ```spawn ... ``` fenced block, case-insensitive
// on the fence label, tolerant of surrounding prose and whitespace.
var fencePattern = regexp.MustCompile(`(?is)` + "```" + `\s*spawn\s*\n(.*?)\n` + "```")

// ParseError is returned when a spawn fence is present but malformed.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("spawn directive: %s", e.Reason)
}

// Parse scans response for a spawn fence. If none is found, it returns
// the entire response as pre-spawn text and a nil Directive — not an
// error. If a fence is found but malformed (missing mode, empty tasks,
// unrecognized mode, invalid YAML), it returns a *ParseError.
func Parse(response string) (preSpawnText string, directive *Directive, err error) {
	loc := fencePattern.FindStringSubmatchIndex(response)
	if loc == nil {
		return strings.TrimSpace(response), nil, nil
	}

	preSpawnText = strings.TrimSpace(response[:loc[0]])
	body := response[loc[2]:loc[3]]

	var raw Directive
	if err := yaml.Unmarshal([]byte(body), &raw); err != nil {
		return preSpawnText, nil, &ParseError{Reason: fmt.Sprintf("invalid yaml: %v", err)}
	}

	if raw.Mode != ModeParallel && raw.Mode != ModeSequential {
		return preSpawnText, nil, &ParseError{Reason: fmt.Sprintf("mode must be %q or %q, got %q", ModeParallel, ModeSequential, raw.Mode)}
	}

	tasks := make([]string, 0, len(raw.Tasks))
	for _, t := range raw.Tasks {
		t = strings.TrimSpace(t)
		if t != "" {
			tasks = append(tasks, t)
		}
	}
	if len(tasks) == 0 {
		return preSpawnText, nil, &ParseError{Reason: "tasks list is empty"}
	}
	raw.Tasks = tasks

	return preSpawnText, &raw, nil
}

// Schema reflects Directive into a JSON schema description, used to tell
// the LLM the exact shape it must emit inside a spawn fence.
func Schema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(Directive))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("spawn: marshal schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("spawn: unmarshal schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}
