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

package repo

import (
	"context"
	"sync"
)

// InMemoryRepo is a MemoryRepo backed by a process-local map. It is used
// when a bot has no session store configured, so memory recall and
// extraction still work without a database.
type InMemoryRepo struct {
	mu      sync.RWMutex
	entries map[string][]MemoryEntry
}

// NewInMemoryRepo creates an empty InMemoryRepo.
func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{entries: make(map[string][]MemoryEntry)}
}

func (r *InMemoryRepo) SaveMemory(ctx context.Context, m MemoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[m.BotID] = append(r.entries[m.BotID], m)
	return nil
}

func (r *InMemoryRepo) LoadAllForBot(ctx context.Context, botID string) ([]MemoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]MemoryEntry, len(r.entries[botID]))
	copy(out, r.entries[botID])
	return out, nil
}
