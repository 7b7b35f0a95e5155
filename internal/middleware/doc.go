// Package middleware provides HTTP middleware for the reverse proxy.
//
// # Middleware Components
//
//   - Recovery: panic recovery with stack trace logging
//   - Request ID: unique request identifier injection
//   - Circuit Breaker: upstream failure protection
//
// Responses the middleware generates itself carry no body, matching
// the forwarder's behavior for its own error responses.
//
// # Usage
//
// Middleware functions follow the standard Go pattern:
//
//	handler := middleware.Recovery(logger)(
//	    middleware.RequestID()(
//	        forwarder,
//	    ),
//	)
package middleware
