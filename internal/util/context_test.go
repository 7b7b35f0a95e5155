package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRuleRecorder(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRuleRecorder(context.Background())

	assert.Empty(t, RuleFromContext(ctx))

	RecordMatchedRule(ctx, "api")
	assert.Equal(t, "api", RuleFromContext(ctx))
}

func TestRuleRecorder_VisibleAcrossDerivedContexts(t *testing.T) {
	t.Parallel()

	ctx := ContextWithRuleRecorder(context.Background())
	derived := context.WithValue(ctx, ctxKey("other"), "value")

	RecordMatchedRule(derived, "static")

	assert.Equal(t, "static", RuleFromContext(ctx))
}

func TestRecordMatchedRule_NoRecorder(t *testing.T) {
	t.Parallel()

	// Must not panic without an installed recorder.
	RecordMatchedRule(context.Background(), "api")
	assert.Empty(t, RuleFromContext(context.Background()))
}

func TestContextWithStartTime(t *testing.T) {
	t.Parallel()

	now := time.Now()
	ctx := ContextWithStartTime(context.Background(), now)
	assert.Equal(t, now, StartTimeFromContext(ctx))
}

func TestStartTimeFromContext_NotSet(t *testing.T) {
	t.Parallel()
	assert.True(t, StartTimeFromContext(context.Background()).IsZero())
}

func TestElapsedTime(t *testing.T) {
	t.Parallel()

	ctx := ContextWithStartTime(context.Background(), time.Now().Add(-time.Second))
	assert.GreaterOrEqual(t, ElapsedTime(ctx), time.Second)
}

func TestElapsedTime_NoStartTime(t *testing.T) {
	t.Parallel()
	assert.Equal(t, time.Duration(0), ElapsedTime(context.Background()))
}
