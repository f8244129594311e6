package engine

import (
	"context"
	"errors"
	"time"

	"github.com/automata-dev/automata/internal/connectors"
	"github.com/automata-dev/automata/internal/expressions"
	"github.com/automata-dev/automata/pkg/schema"
)

// Dispatcher resolves an action's parameters against the current scope and
// invokes the target connector with a fresh credential. Every failure mode
// maps to a stable error code so callers can route on it.
type Dispatcher struct {
	registry connectors.Registry
	creds    connectors.CredentialProvider
	resolver *expressions.Resolver
	timeout  time.Duration
	observer Observer
}

// NewDispatcher wires the dispatcher. A zero timeout disables the per-action
// deadline.
func NewDispatcher(registry connectors.Registry, creds connectors.CredentialProvider, resolver *expressions.Resolver, timeout time.Duration, observer Observer) *Dispatcher {
	if observer == nil {
		observer = NopObserver{}
	}
	return &Dispatcher{
		registry: registry,
		creds:    creds,
		resolver: resolver,
		timeout:  timeout,
		observer: observer,
	}
}

// Dispatch executes one action against its connector. Parameter resolution
// happens before the connector lookup so resolution failures surface with
// their own codes instead of being blamed on the service.
func (d *Dispatcher) Dispatch(ctx context.Context, action schema.ActionSpec, scope *expressions.Scope) (any, error) {
	params, err := d.resolver.ResolveParams(ctx, action.Params, scope)
	if err != nil {
		return nil, err
	}

	capability, ok := d.registry.GetConnector(action.ServiceID)
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeUnknownService,
			"no connector registered for service %q", action.ServiceID)
	}

	token, err := d.creds.GetAccessToken(ctx, scope.UserID, action.ServiceID)
	if err != nil {
		var engineErr *schema.EngineError
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return nil, schema.NewErrorf(schema.ErrCodeNoCredential,
			"credential lookup failed for service %q", action.ServiceID).WithCause(err)
	}

	invokeCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		invokeCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	started := time.Now()
	result, err := capability.Invoke(invokeCtx, token, action.ActionType, params)
	d.observer.ActionDispatched(ctx, action.ServiceID, action.ActionType, time.Since(started), err)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, schema.NewErrorf(schema.ErrCodeTimeout,
				"action %q on service %q timed out after %s", action.ActionType, action.ServiceID, d.timeout).WithCause(err)
		}
		if errors.Is(err, context.Canceled) {
			return nil, schema.NewError(schema.ErrCodeCancelled, "action cancelled").WithCause(err)
		}
		return nil, schema.NewErrorf(schema.ErrCodeConnector,
			"action %q on service %q failed", action.ActionType, action.ServiceID).WithCause(err)
	}
	return result, nil
}
