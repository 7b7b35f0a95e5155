package router

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/heymind/reproxy/internal/config"
	"github.com/heymind/reproxy/internal/util"
)

// CompileError describes a rule definition that failed to compile.
type CompileError struct {
	Rule  string
	Field string
	Cause error
}

// Error implements the error interface.
func (e *CompileError) Error() string {
	return fmt.Sprintf("rule %q: invalid %s: %v", e.Rule, e.Field, e.Cause)
}

// Unwrap returns the underlying error.
func (e *CompileError) Unwrap() error {
	return e.Cause
}

// Is checks if the error matches the target.
func (e *CompileError) Is(target error) bool {
	if target == util.ErrConfigInvalid {
		return true
	}
	_, ok := target.(*CompileError)
	return ok
}

// CompileRules compiles rule definitions into a RuleSet, preserving
// their order. Compilation is all or nothing: the first failure
// aborts with a CompileError and no partial rule set is produced.
func CompileRules(defs config.RuleList) (*RuleSet, error) {
	rules := make([]*Rule, 0, len(defs))
	for _, def := range defs {
		rule, err := compileRule(def)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return &RuleSet{rules: rules}, nil
}

func compileRule(def config.RuleDefinition) (*Rule, error) {
	if def.Match == "" {
		return nil, &CompileError{Rule: def.Name, Field: "match", Cause: fmt.Errorf("pattern cannot be empty")}
	}
	match, err := regexp.Compile(def.Match)
	if err != nil {
		return nil, &CompileError{Rule: def.Name, Field: "match", Cause: err}
	}

	rule := &Rule{
		Name:           def.Name,
		Match:          match,
		Target:         def.Target,
		FollowRedirect: def.FollowRedirect,
		headerActions:  make(map[string]HeaderAction, len(def.Headers)),
		defaultAction:  HeaderAction{Kind: ActionIgnore},
	}

	for name, actionDef := range def.Headers {
		action, err := compileHeaderAction(actionDef)
		if err != nil {
			return nil, &CompileError{Rule: def.Name, Field: "headers." + name, Cause: err}
		}
		if name == config.DefaultHeaderKey {
			rule.defaultAction = action
			continue
		}
		rule.headerActions[strings.ToLower(name)] = action
	}

	return rule, nil
}

func compileHeaderAction(def config.HeaderActionDefinition) (HeaderAction, error) {
	switch def.Type {
	case config.HeaderActionPassthrough:
		return HeaderAction{Kind: ActionPassthrough}, nil
	case config.HeaderActionIgnore:
		return HeaderAction{Kind: ActionIgnore}, nil
	case config.HeaderActionReplace:
		if def.Match == "" {
			return HeaderAction{}, fmt.Errorf("pattern cannot be empty")
		}
		pattern, err := regexp.Compile(def.Match)
		if err != nil {
			return HeaderAction{}, err
		}
		return HeaderAction{Kind: ActionReplace, Pattern: pattern, Template: def.Replace}, nil
	default:
		return HeaderAction{}, fmt.Errorf("unknown header action %q", string(def.Type))
	}
}
