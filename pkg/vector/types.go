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

package vector

import (
	"context"
	"fmt"
)

// Result is one match returned by a provider's Search or SearchWithFilter.
// Vector is only populated by providers whose client API returns it
// alongside the match (Qdrant, Pinecone); it is left nil elsewhere.
type Result struct {
	ID       string
	Content  string
	Score    float32
	Metadata map[string]any
	Vector   []float32
}

// Provider is the shared surface every backend in this package implements.
// Kept here rather than on each provider file since it names no concrete
// type and every provider satisfies it structurally.
type Provider interface {
	Upsert(ctx context.Context, collection string, id string, vector []float32, metadata map[string]any) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Result, error)
	SearchWithFilter(ctx context.Context, collection string, vector []float32, topK int, filter map[string]any) ([]Result, error)
	Delete(ctx context.Context, collection string, id string) error
	DeleteByFilter(ctx context.Context, collection string, filter map[string]any) error
	CreateCollection(ctx context.Context, collection string, vectorDimension int) error
	DeleteCollection(ctx context.Context, collection string) error
	Name() string
	Close() error
}

// NilProvider is a zero-value Provider returned when no vector store is
// configured. Every operation fails fast instead of silently no-opping,
// since recall/extraction depending on a missing store is a configuration
// error the caller needs to see.
type NilProvider struct{}

func (NilProvider) Upsert(context.Context, string, string, []float32, map[string]any) error {
	return fmt.Errorf("vector: no provider configured")
}

func (NilProvider) Search(context.Context, string, []float32, int) ([]Result, error) {
	return nil, fmt.Errorf("vector: no provider configured")
}

func (NilProvider) SearchWithFilter(context.Context, string, []float32, int, map[string]any) ([]Result, error) {
	return nil, fmt.Errorf("vector: no provider configured")
}

func (NilProvider) Delete(context.Context, string, string) error {
	return fmt.Errorf("vector: no provider configured")
}

func (NilProvider) DeleteByFilter(context.Context, string, map[string]any) error {
	return fmt.Errorf("vector: no provider configured")
}

func (NilProvider) CreateCollection(context.Context, string, int) error {
	return fmt.Errorf("vector: no provider configured")
}

func (NilProvider) DeleteCollection(context.Context, string) error {
	return fmt.Errorf("vector: no provider configured")
}

func (NilProvider) Name() string { return "nil" }

func (NilProvider) Close() error { return nil }
