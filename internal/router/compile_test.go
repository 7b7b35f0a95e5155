package router

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/util"
)

func TestCompileRules(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{
			Name:           "api",
			Match:          `api\.example\.com/(.*)`,
			Target:         "http://backend.internal/$1",
			FollowRedirect: true,
			Headers: map[string]config.HeaderActionDefinition{
				"user-agent":            {Type: config.HeaderActionPassthrough},
				"authorization":         {Type: config.HeaderActionReplace, Match: "Bearer (.+)", Replace: "Token $1"},
				config.DefaultHeaderKey: {Type: config.HeaderActionPassthrough},
			},
		},
		{
			Name:   "web",
			Match:  `www\.example\.com/(.*)`,
			Target: "http://frontend.internal/$1",
		},
	}

	rs, err := CompileRules(defs)
	require.NoError(t, err)
	require.Equal(t, 2, rs.Len())

	rules := rs.Rules()
	api := rules[0]
	assert.Equal(t, "api", api.Name)
	assert.True(t, api.FollowRedirect)
	assert.Equal(t, "http://backend.internal/$1", api.Target)
	assert.Equal(t, ActionPassthrough, api.ActionFor("user-agent").Kind)
	assert.Equal(t, ActionReplace, api.ActionFor("authorization").Kind)
	// $default is lifted out of the per-header map into the fallback.
	assert.Equal(t, ActionPassthrough, api.ActionFor("anything-else").Kind)
	assert.Equal(t, ActionPassthrough, api.DefaultAction().Kind)

	web := rules[1]
	assert.Equal(t, "web", web.Name)
	assert.False(t, web.FollowRedirect)
	// Without a $default entry unnamed headers are dropped.
	assert.Equal(t, ActionIgnore, web.ActionFor("user-agent").Kind)
}

func TestCompileRules_Empty(t *testing.T) {
	t.Parallel()

	rs, err := CompileRules(nil)
	require.NoError(t, err)
	assert.Equal(t, 0, rs.Len())

	_, ok := rs.Match("example.com/anything")
	assert.False(t, ok)
}

func TestCompileRules_PreservesOrder(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{Name: "zebra", Match: "z", Target: "http://z"},
		{Name: "alpha", Match: "a", Target: "http://a"},
		{Name: "mike", Match: "m", Target: "http://m"},
	}

	rs, err := CompileRules(defs)
	require.NoError(t, err)

	names := make([]string, 0, rs.Len())
	for _, rule := range rs.Rules() {
		names = append(names, rule.Name)
	}
	assert.Equal(t, []string{"zebra", "alpha", "mike"}, names)
}

func TestCompileRules_InvalidMatch(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{Name: "good", Match: "ok", Target: "http://ok"},
		{Name: "bad", Match: "[unclosed", Target: "http://bad"},
	}

	rs, err := CompileRules(defs)
	require.Error(t, err)
	assert.Nil(t, rs)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "bad", cerr.Rule)
	assert.Equal(t, "match", cerr.Field)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestCompileRules_EmptyMatch(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{Name: "empty", Match: "", Target: "http://x"},
	}

	_, err := CompileRules(defs)
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "empty", cerr.Rule)
	assert.Equal(t, "match", cerr.Field)
}

func TestCompileRules_InvalidHeaderPattern(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{
			Name:   "api",
			Match:  "ok",
			Target: "http://ok",
			Headers: map[string]config.HeaderActionDefinition{
				"authorization": {Type: config.HeaderActionReplace, Match: "[unclosed"},
			},
		},
	}

	_, err := CompileRules(defs)
	require.Error(t, err)

	var cerr *CompileError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "api", cerr.Rule)
	assert.Equal(t, "headers.authorization", cerr.Field)
}

func TestCompileRules_EmptyHeaderPattern(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{
			Name:   "api",
			Match:  "ok",
			Target: "http://ok",
			Headers: map[string]config.HeaderActionDefinition{
				"authorization": {Type: config.HeaderActionReplace},
			},
		},
	}

	_, err := CompileRules(defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pattern cannot be empty")
}

func TestCompileRules_UnknownActionType(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{
			Name:   "api",
			Match:  "ok",
			Target: "http://ok",
			Headers: map[string]config.HeaderActionDefinition{
				"x-custom": {Type: "drop"},
			},
		},
	}

	_, err := CompileRules(defs)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `unknown header action "drop"`)
}

func TestCompileRules_ReplaceDefaultAction(t *testing.T) {
	t.Parallel()

	defs := config.RuleList{
		{
			Name:   "api",
			Match:  "ok",
			Target: "http://ok",
			Headers: map[string]config.HeaderActionDefinition{
				config.DefaultHeaderKey: {Type: config.HeaderActionReplace, Match: "(.*)", Replace: "$1"},
			},
		},
	}

	rs, err := CompileRules(defs)
	require.NoError(t, err)

	rule := rs.Rules()[0]
	assert.Equal(t, ActionReplace, rule.DefaultAction().Kind)
	rewritten, ok := rule.DefaultAction().Rewrite("anything")
	require.True(t, ok)
	assert.Equal(t, "anything", rewritten)
}

func TestCompileError_Error(t *testing.T) {
	t.Parallel()

	err := &CompileError{Rule: "api", Field: "match", Cause: errors.New("boom")}
	assert.Equal(t, `rule "api": invalid match: boom`, err.Error())
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
	assert.Equal(t, "boom", errors.Unwrap(err).Error())
}
