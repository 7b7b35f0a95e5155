// Package proxy implements the request forwarding pipeline of the
// reverse proxy.
//
// For every inbound request the Forwarder composes the request URL
// from the Host header and the request-target, routes it through the
// rule set, rewrites the target, applies the matched rule's header
// policy, dispatches the upstream request honoring the rule's
// redirect policy, and streams the response back with a bounded
// buffer.
//
// Every request ends in exactly one terminal outcome, and the
// Forwarder emits exactly one log record for it:
//
//   - 404 when no rule matches
//   - 400 when a replace header policy rejects a header value
//     (the upstream is never contacted)
//   - 500 when the upstream exchange fails
//   - the upstream's status on success
//
// The error responses carry empty bodies so nothing invented by the
// proxy is ever presented as upstream content.
package proxy
