package util

import (
	"context"
	"time"
)

// Context keys.
type ctxKey string

const (
	ctxKeyRule      ctxKey = "rule"
	ctxKeyStartTime ctxKey = "start_time"
)

// ruleRecorder carries the matched rule name from the forwarder back
// to outer middleware. Context values only flow downward, so the
// recorder is installed as a pointer before routing happens and
// written through once the rule is known.
type ruleRecorder struct {
	name string
}

// ContextWithRuleRecorder installs an empty rule recorder in the
// context. Outer middleware installs it; the forwarder fills it in.
func ContextWithRuleRecorder(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyRule, &ruleRecorder{})
}

// RecordMatchedRule records the matched rule name in the context
// recorder, if one is installed.
func RecordMatchedRule(ctx context.Context, rule string) {
	if rec, ok := ctx.Value(ctxKeyRule).(*ruleRecorder); ok {
		rec.name = rule
	}
}

// RuleFromContext extracts the matched rule name from context.
// Returns the empty string when no recorder is installed or no rule
// has been recorded.
func RuleFromContext(ctx context.Context) string {
	if rec, ok := ctx.Value(ctxKeyRule).(*ruleRecorder); ok {
		return rec.name
	}
	return ""
}

// ContextWithStartTime adds a start time to the context.
func ContextWithStartTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ctxKeyStartTime, t)
}

// StartTimeFromContext extracts the start time from context.
func StartTimeFromContext(ctx context.Context) time.Time {
	if v, ok := ctx.Value(ctxKeyStartTime).(time.Time); ok {
		return v
	}
	return time.Time{}
}

// ElapsedTime returns the elapsed time since the start time in context.
func ElapsedTime(ctx context.Context) time.Duration {
	startTime := StartTimeFromContext(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
