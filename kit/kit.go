// Package kit is the transport-agnostic endpoint layer: business operations
// are Endpoints, cross-cutting concerns are Middleware, and thin adapters
// expose endpoints over HTTP and MCP.
package kit

import "context"

// Endpoint is one business operation, independent of transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with a cross-cutting concern.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares; the first argument is the outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
