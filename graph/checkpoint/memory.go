// Package checkpoint provides graph.Checkpointer implementations:
// in-memory, file-JSON, human-readable (markdown+frontmatter), and
// session-sequential, plus an optional SQLite-backed variant.
package checkpoint

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dshills/graphkit/graph"
)

// MemoryCheckpointer deep-copies state on save and load via a JSON
// round-trip, so external mutation cannot corrupt a snapshot once
// saved. Labels are returned in insertion order; the latest saved label
// is always last.
type MemoryCheckpointer struct {
	mu      sync.RWMutex
	byLabel map[string]map[string]graph.State // executionID -> label -> state
	order   map[string][]string               // executionID -> labels in insertion order
}

func NewMemoryCheckpointer() *MemoryCheckpointer {
	return &MemoryCheckpointer{
		byLabel: make(map[string]map[string]graph.State),
		order:   make(map[string][]string),
	}
}

func (m *MemoryCheckpointer) Save(_ context.Context, executionID string, state graph.State, label string) error {
	cp, err := deepCopy(state)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byLabel[executionID] == nil {
		m.byLabel[executionID] = make(map[string]graph.State)
	}
	if _, exists := m.byLabel[executionID][label]; !exists {
		m.order[executionID] = append(m.order[executionID], label)
	}
	m.byLabel[executionID][label] = cp
	return nil
}

func (m *MemoryCheckpointer) Load(_ context.Context, executionID string) (graph.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	labels := m.order[executionID]
	if len(labels) == 0 {
		return nil, false, nil
	}
	latest := labels[len(labels)-1]
	cp, err := deepCopy(m.byLabel[executionID][latest])
	return cp, true, err
}

func (m *MemoryCheckpointer) LoadByLabel(_ context.Context, executionID, label string) (graph.State, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byLabel, ok := m.byLabel[executionID]
	if !ok {
		return nil, false, nil
	}
	s, ok := byLabel[label]
	if !ok {
		return nil, false, nil
	}
	cp, err := deepCopy(s)
	return cp, true, err
}

func (m *MemoryCheckpointer) List(_ context.Context, executionID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order[executionID]))
	copy(out, m.order[executionID])
	return out, nil
}

func (m *MemoryCheckpointer) Delete(_ context.Context, executionID string, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byLabel[executionID], label)
	labels := m.order[executionID]
	for i, l := range labels {
		if l == label {
			m.order[executionID] = append(labels[:i], labels[i+1:]...)
			break
		}
	}
	return nil
}

// deepCopy round-trips state through JSON, the same isolation contract
// the teacher's store implementations rely on for checkpoint safety.
func deepCopy(state graph.State) (graph.State, error) {
	raw, err := json.Marshal(state)
	if err != nil {
		return nil, err
	}
	var out graph.State
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
