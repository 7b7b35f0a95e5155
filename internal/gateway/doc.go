// Package gateway ties the proxy together: it owns the listener
// lifecycle, the rule compilation on startup and reload, and the
// catch-all route into the forwarding handler.
//
// Reloading swaps the compiled rule snapshot atomically; in-flight
// requests finish against the snapshot they started with. A reload
// never restarts the listener, so listen address changes require a
// process restart.
package gateway
