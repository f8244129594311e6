package connectors

import (
	"sync"

	"github.com/automata-dev/automata/pkg/schema"
)

// MemoryRegistry is the concrete thread-safe Registry implementation.
type MemoryRegistry struct {
	mu         sync.RWMutex
	connectors map[string]Capability
}

// NewRegistry creates an empty MemoryRegistry.
func NewRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		connectors: make(map[string]Capability),
	}
}

// Register adds a connector to the registry. Returns error on duplicate
// service ID.
func (r *MemoryRegistry) Register(c Capability) error {
	if c == nil {
		return schema.NewError(schema.ErrCodeValidation, "connector is nil")
	}
	id := c.ServiceID()
	if id == "" {
		return schema.NewError(schema.ErrCodeValidation, "connector service ID is empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connectors[id]; exists {
		return schema.NewErrorf(schema.ErrCodeConflict, "connector %q already registered", id)
	}

	r.connectors[id] = c
	return nil
}

// GetConnector retrieves a connector by service ID.
func (r *MemoryRegistry) GetConnector(serviceID string) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.connectors[serviceID]
	return c, ok
}

// ServiceIDs returns the IDs of all registered connectors.
func (r *MemoryRegistry) ServiceIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.connectors))
	for id := range r.connectors {
		ids = append(ids, id)
	}
	return ids
}

var _ Registry = (*MemoryRegistry)(nil)
