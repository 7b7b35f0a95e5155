package router

import (
	"sync/atomic"
)

// MatchResult pairs a matched rule with the upstream target URL
// produced by expanding the rule's target template against the match.
type MatchResult struct {
	Rule   *Rule
	Target string
}

// RuleSet is an immutable compiled snapshot of the routing rules.
type RuleSet struct {
	rules []*Rule
}

// Match scans the rules in declaration order and returns the result
// for the first rule whose pattern matches the composed URL. The
// target is rewritten from the same match, so matching and rewriting
// cannot disagree.
func (rs *RuleSet) Match(composed string) (*MatchResult, bool) {
	for _, rule := range rs.rules {
		loc := rule.Match.FindStringSubmatchIndex(composed)
		if loc == nil {
			continue
		}
		return &MatchResult{
			Rule:   rule,
			Target: replaceFirst(rule.Match, composed, rule.Target, loc),
		}, true
	}
	return nil, false
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns the compiled rules in declaration order.
func (rs *RuleSet) Rules() []*Rule {
	rules := make([]*Rule, len(rs.rules))
	copy(rules, rs.rules)
	return rules
}

// Router holds the active rule set and supports atomic replacement on
// configuration reload. Requests racing a reload see either the old
// set or the new one, never a mix.
type Router struct {
	current atomic.Pointer[RuleSet]
}

// New creates a router with an empty rule set.
func New() *Router {
	r := &Router{}
	r.current.Store(&RuleSet{})
	return r
}

// Match routes a composed URL against the active rule set.
func (r *Router) Match(composed string) (*MatchResult, bool) {
	return r.current.Load().Match(composed)
}

// Swap atomically replaces the active rule set and returns the
// previous one. A nil rule set is replaced by an empty one.
func (r *Router) Swap(rs *RuleSet) *RuleSet {
	if rs == nil {
		rs = &RuleSet{}
	}
	return r.current.Swap(rs)
}

// Snapshot returns the active rule set.
func (r *Router) Snapshot() *RuleSet {
	return r.current.Load()
}
