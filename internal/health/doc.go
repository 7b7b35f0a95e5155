// Package health provides health check and readiness probe endpoints
// for the admin server.
//
// The liveness endpoint answers as long as the process is running.
// The readiness endpoint aggregates registered checks: the active
// rule set, and optionally the reachability of upstream dependencies.
package health
