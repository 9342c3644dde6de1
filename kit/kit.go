// Package kit holds the small transport-agnostic plumbing shared by the
// HTTP and MCP surfaces: the Endpoint abstraction, middleware chaining,
// and context enrichment keys.
package kit

import "context"

// Endpoint is one logical operation, independent of transport. The
// request and response are plain values; decoding and encoding belong
// to the transport adapters.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
