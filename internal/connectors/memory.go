package connectors

import (
	"context"
	"sync"
	"time"

	"github.com/automata-dev/automata/pkg/schema"
)

// MemoryCredentials is an in-memory CredentialProvider keyed by
// (userID, serviceID). Used by the daemon until a real token store is wired
// and by tests as a stand-in for the platform credential service.
type MemoryCredentials struct {
	mu     sync.RWMutex
	tokens map[string]Token
}

// NewMemoryCredentials creates an empty MemoryCredentials.
func NewMemoryCredentials() *MemoryCredentials {
	return &MemoryCredentials{tokens: make(map[string]Token)}
}

// Put stores a token for (userID, serviceID).
func (m *MemoryCredentials) Put(userID, serviceID string, tok Token) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[userID+"/"+serviceID] = tok
}

// GetAccessToken returns the stored token, or a NO_CREDENTIAL error when the
// user never connected the service or the token has expired.
func (m *MemoryCredentials) GetAccessToken(ctx context.Context, userID, serviceID string) (Token, error) {
	m.mu.RLock()
	tok, ok := m.tokens[userID+"/"+serviceID]
	m.mu.RUnlock()

	if !ok {
		return Token{}, schema.NewErrorf(schema.ErrCodeNoCredential,
			"no credential for user %s on service %s", userID, serviceID)
	}
	if !tok.ExpiresAt.IsZero() && time.Now().After(tok.ExpiresAt) {
		return Token{}, schema.NewErrorf(schema.ErrCodeNoCredential,
			"credential for user %s on service %s expired", userID, serviceID)
	}
	return tok, nil
}

var _ CredentialProvider = (*MemoryCredentials)(nil)

// StaticLocations is an in-memory LocationLookup over a fixed place table.
type StaticLocations struct {
	mu     sync.RWMutex
	places map[string]Coordinates
}

// NewStaticLocations creates an empty StaticLocations.
func NewStaticLocations() *StaticLocations {
	return &StaticLocations{places: make(map[string]Coordinates)}
}

// Put registers a named place.
func (s *StaticLocations) Put(name string, c Coordinates) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.places[name] = c
}

// ResolveCoordinates returns the coordinates for a place name, or nil when
// the place is unknown.
func (s *StaticLocations) ResolveCoordinates(ctx context.Context, placeName, userID string) (*Coordinates, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.places[placeName]; ok {
		cp := c
		return &cp, nil
	}
	return nil, nil
}

var _ LocationLookup = (*StaticLocations)(nil)
