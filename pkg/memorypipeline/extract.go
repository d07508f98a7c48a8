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

package memorypipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/invopop/jsonschema"

	"github.com/kadirpekel/hector/pkg/model"
)

// ExtractedFact is one candidate long-term memory the extraction prompt
// produced from a conversation.
type ExtractedFact struct {
	Fact       string  `json:"fact" jsonschema:"required,description=A single self-contained fact worth remembering long-term"`
	Category   string  `json:"category" jsonschema:"required,description=A short category label such as preference, biography, or goal"`
	Importance float64 `json:"importance" jsonschema:"required,description=0.0 to 1.0, how important this fact is to remember"`
}

type extractionPayload struct {
	Facts []ExtractedFact `json:"facts" jsonschema:"required,description=Facts worth remembering long-term; empty if none"`
}

func extractionSchema() (map[string]any, error) {
	reflector := &jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		DoNotReference:             true,
	}
	schema := reflector.Reflect(new(extractionPayload))

	data, err := json.Marshal(schema)
	if err != nil {
		return nil, fmt.Errorf("memorypipeline: marshal extraction schema: %w", err)
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("memorypipeline: unmarshal extraction schema: %w", err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m, nil
}

const extractionInstruction = "Review the conversation below and extract any facts worth " +
	"remembering about the user long-term: preferences, biographical details, goals, " +
	"or recurring context. Skip small talk and anything already obvious from a single " +
	"turn. Return an empty facts list if nothing is worth keeping."

// extractFacts runs one non-streaming extraction call against provider and
// parses its structured JSON response. The caller decides how to treat a
// non-nil error; extraction failures are documented as non-fatal at the
// Pipeline.Extract call sites.
func extractFacts(ctx context.Context, provider model.LLM, conversation []Message) ([]ExtractedFact, error) {
	schema, err := extractionSchema()
	if err != nil {
		return nil, err
	}

	var transcript strings.Builder
	for _, m := range conversation {
		fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
	}

	temperature := 0.2
	req := &model.Request{
		SystemInstruction: extractionInstruction,
		Messages: []*a2a.Message{
			a2a.NewMessage(a2a.MessageRoleUser, a2a.TextPart{Text: transcript.String()}),
		},
		Config: &model.GenerateConfig{
			Temperature:      &temperature,
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		},
	}

	var text string
	for resp, err := range provider.GenerateContent(ctx, req, false) {
		if err != nil {
			return nil, fmt.Errorf("memorypipeline: extraction call: %w", err)
		}
		if resp != nil {
			text = resp.TextContent()
		}
	}
	if text == "" {
		return nil, fmt.Errorf("memorypipeline: extraction call returned no content")
	}

	var payload extractionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("memorypipeline: parse extraction response: %w", err)
	}
	return payload.Facts, nil
}
