package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/automata-dev/automata/pkg/schema"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu         sync.RWMutex
	workflows  map[string]*schema.WorkflowDefinition
	executions []*ExecutionRecord
	flags      map[string]flagEntry
	events     map[string][]schema.ActivityEvent
}

type flagEntry struct {
	value     bool
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		workflows: make(map[string]*schema.WorkflowDefinition),
		flags:     make(map[string]flagEntry),
		events:    make(map[string][]schema.ActivityEvent),
	}
}

func (m *MemoryStore) PutWorkflow(_ context.Context, wf *schema.WorkflowDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *wf
	m.workflows[wf.ID] = &clone
	return nil
}

func (m *MemoryStore) GetWorkflow(_ context.Context, id string) (*schema.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wf, ok := m.workflows[id]
	if !ok {
		return nil, storeNotFound("workflow", id)
	}
	clone := *wf
	return &clone, nil
}

func (m *MemoryStore) ListWorkflows(_ context.Context, filter WorkflowFilter) ([]*schema.WorkflowDefinition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*schema.WorkflowDefinition
	for _, wf := range m.workflows {
		if filter.OwnerID != "" && wf.OwnerID != filter.OwnerID {
			continue
		}
		if filter.EnabledOnly && !wf.Enabled {
			continue
		}
		clone := *wf
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (m *MemoryStore) SetWorkflowEnabled(_ context.Context, id string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	wf, ok := m.workflows[id]
	if !ok {
		return storeNotFound("workflow", id)
	}
	wf.Enabled = enabled
	return nil
}

func (m *MemoryStore) DeleteWorkflow(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.workflows[id]; !ok {
		return storeNotFound("workflow", id)
	}
	delete(m.workflows, id)
	return nil
}

func (m *MemoryStore) RecordExecution(_ context.Context, rec *ExecutionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *rec
	m.executions = append(m.executions, &clone)
	return nil
}

func (m *MemoryStore) ListExecutions(_ context.Context, workflowID string, limit int) ([]*ExecutionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*ExecutionRecord
	for i := len(m.executions) - 1; i >= 0; i-- {
		if m.executions[i].WorkflowID != workflowID {
			continue
		}
		clone := *m.executions[i]
		out = append(out, &clone)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryStore) GetFlag(_ context.Context, userID, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.flags[userID+"\x00"+key]
	if !ok {
		return false, nil
	}
	if !entry.expiresAt.IsZero() && entry.expiresAt.Before(time.Now()) {
		return false, nil
	}
	return entry.value, nil
}

func (m *MemoryStore) SetFlag(_ context.Context, userID, key string, value bool, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry := flagEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}
	m.flags[userID+"\x00"+key] = entry
	return nil
}

func (m *MemoryStore) RecordEvent(_ context.Context, userID string, event schema.ActivityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	m.events[userID] = append(m.events[userID], event)
	sort.Slice(m.events[userID], func(i, j int) bool {
		return m.events[userID][i].Timestamp.Before(m.events[userID][j].Timestamp)
	})
	return nil
}

func (m *MemoryStore) GetRecentEvents(_ context.Context, userID string, since time.Time) ([]schema.ActivityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []schema.ActivityEvent
	for _, ev := range m.events[userID] {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
