package router

import (
	"regexp"
	"strings"
)

// HeaderActionKind enumerates the compiled header policies.
type HeaderActionKind int

const (
	// ActionIgnore drops the header from the upstream request.
	ActionIgnore HeaderActionKind = iota

	// ActionPassthrough copies the header to the upstream request
	// unchanged.
	ActionPassthrough

	// ActionReplace rewrites the header value by pattern substitution.
	ActionReplace
)

// String returns the action name.
func (k HeaderActionKind) String() string {
	switch k {
	case ActionIgnore:
		return "ignore"
	case ActionPassthrough:
		return "passthrough"
	case ActionReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// HeaderAction is a compiled header policy. Pattern and Template are
// set only for ActionReplace.
type HeaderAction struct {
	Kind     HeaderActionKind
	Pattern  *regexp.Regexp
	Template string
}

// Rewrite applies a replace action to a header value: the first match
// of the pattern is substituted with the expanded template, text
// before and after the match is kept. ok is false when the value does
// not match the pattern at all.
func (a HeaderAction) Rewrite(value string) (rewritten string, ok bool) {
	loc := a.Pattern.FindStringSubmatchIndex(value)
	if loc == nil {
		return "", false
	}
	return replaceFirst(a.Pattern, value, a.Template, loc), true
}

// Rule is one compiled routing rule.
type Rule struct {
	Name           string
	Match          *regexp.Regexp
	Target         string
	FollowRedirect bool

	headerActions map[string]HeaderAction
	defaultAction HeaderAction
}

// ActionFor returns the header action for a header name, folding the
// name to lowercase, or the rule's fallback action when the name is
// not listed.
func (r *Rule) ActionFor(name string) HeaderAction {
	if action, ok := r.headerActions[strings.ToLower(name)]; ok {
		return action
	}
	return r.defaultAction
}

// DefaultAction returns the rule's fallback header action.
func (r *Rule) DefaultAction() HeaderAction {
	return r.defaultAction
}

// replaceFirst rewrites the first match of re in s, identified by the
// submatch index vector loc, with the expanded template. Text outside
// the match is preserved, mirroring a replace-first substitution.
func replaceFirst(re *regexp.Regexp, s, template string, loc []int) string {
	out := make([]byte, 0, len(s)+len(template))
	out = append(out, s[:loc[0]]...)
	out = re.ExpandString(out, template, s, loc)
	out = append(out, s[loc[1]:]...)
	return string(out)
}
