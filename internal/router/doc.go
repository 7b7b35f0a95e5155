// Package router provides regex-based request routing for the
// reverse proxy.
//
// This package compiles rule definitions into an immutable RuleSet
// and matches composed request URLs (Host header joined with the
// request-target) against it in declaration order, first match wins.
// The matched rule's target template is expanded with the capture
// groups of the match to produce the upstream URL.
//
// # Features
//
//   - Ordered first-match routing over unanchored patterns
//   - Target rewriting via capture group substitution
//   - Per-rule header policies (passthrough, ignore, replace)
//   - All-or-nothing compilation: one bad pattern rejects the set
//   - Lock-free atomic rule set replacement for hot reload
//
// # Usage
//
// Compile rules and route a request:
//
//	rs, err := router.CompileRules(cfg.Rules)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r := router.New()
//	r.Swap(rs)
//
//	result, ok := r.Match("api.example.com/v1/users")
//	if ok {
//	    // Route matched, use result.Rule and result.Target
//	}
package router
