// Package connectors defines the abstract capabilities the engine consumes.
// Concrete integrations (OAuth flows, provider SDKs, real third-party APIs)
// live outside this repository; the engine depends only on these interfaces.
package connectors

import (
	"context"
	"time"
)

// Capability exposes the named actions of one third-party service.
type Capability interface {
	// ServiceID identifies the service this capability serves.
	ServiceID() string

	// Invoke executes the named action with resolved params on behalf of the
	// credential holder. Implementations must honor ctx cancellation.
	Invoke(ctx context.Context, credential Token, actionType string, params map[string]any) (any, error)
}

// Token is an opaque access credential for one (user, service) pair.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Registry resolves a serviceId to its connector capability.
type Registry interface {
	GetConnector(serviceID string) (Capability, bool)
}

// CredentialProvider returns a valid access credential for a user and
// service, or ErrNoCredential if the user never connected the service.
type CredentialProvider interface {
	GetAccessToken(ctx context.Context, userID, serviceID string) (Token, error)
}

// QueryRouter sends a prompt to whichever language-model provider the
// platform selects and returns the textual reply.
type QueryRouter interface {
	Query(ctx context.Context, prompt string, providerHint string) (QueryResult, error)
}

// QueryResult is a model reply.
type QueryResult struct {
	Content string
}

// LocationLookup resolves a named place to coordinates. A nil result means
// the place is unknown.
type LocationLookup interface {
	ResolveCoordinates(ctx context.Context, placeName, userID string) (*Coordinates, error)
}

// Coordinates is a WGS84 position.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}
