package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultHeaderKey is the pseudo-header key that sets the fallback
// action for request headers a rule does not name explicitly. Rules
// without it fall back to dropping unnamed headers.
const DefaultHeaderKey = "$default"

// HeaderActionType enumerates the declarative header policies a rule
// can attach to a header name.
type HeaderActionType string

const (
	// HeaderActionPassthrough copies the header to the upstream
	// request unchanged.
	HeaderActionPassthrough HeaderActionType = "passthrough"

	// HeaderActionIgnore drops the header from the upstream request.
	HeaderActionIgnore HeaderActionType = "ignore"

	// HeaderActionReplace matches the header value against a pattern
	// and forwards the substituted replacement. A value that does not
	// match rejects the whole request.
	HeaderActionReplace HeaderActionType = "replace"
)

// HeaderActionDefinition is one header policy entry. In YAML it is
// either the scalar "passthrough" or "ignore", or a mapping with
// match and replace keys:
//
//	headers:
//	  user-agent: passthrough
//	  cookie: ignore
//	  authorization:
//	    match: "Bearer (.+)"
//	    replace: "Token $1"
type HeaderActionDefinition struct {
	Type    HeaderActionType
	Match   string
	Replace string
}

// UnmarshalYAML implements yaml.Unmarshaler for the scalar-or-mapping
// action forms.
func (d *HeaderActionDefinition) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		switch HeaderActionType(strings.ToLower(s)) {
		case HeaderActionPassthrough:
			d.Type = HeaderActionPassthrough
		case HeaderActionIgnore:
			d.Type = HeaderActionIgnore
		default:
			return fmt.Errorf("line %d: unknown header action %q (want passthrough, ignore, or a match/replace mapping)", node.Line, s)
		}
		return nil
	case yaml.MappingNode:
		if err := checkMappingKeys(node, knownHeaderActionKeys); err != nil {
			return err
		}
		var body struct {
			Match   string `yaml:"match"`
			Replace string `yaml:"replace"`
		}
		if err := node.Decode(&body); err != nil {
			return err
		}
		if body.Match == "" {
			return fmt.Errorf("line %d: header replace action requires a match pattern", node.Line)
		}
		d.Type = HeaderActionReplace
		d.Match = body.Match
		d.Replace = body.Replace
		return nil
	default:
		return fmt.Errorf("line %d: header action must be a scalar or a mapping", node.Line)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (d HeaderActionDefinition) MarshalYAML() (interface{}, error) {
	if d.Type == HeaderActionReplace {
		return map[string]string{"match": d.Match, "replace": d.Replace}, nil
	}
	return string(d.Type), nil
}

// RuleDefinition declares one proxy rule: a pattern matched against
// the composed request URL, a target template, the redirect policy,
// and the per-header actions. Header keys are folded to lowercase on
// decode.
type RuleDefinition struct {
	Name           string
	Match          string
	Target         string
	FollowRedirect bool
	Headers        map[string]HeaderActionDefinition
}

// RuleList is an ordered collection of rule definitions. Requests are
// routed to the first rule whose pattern matches, so declaration order
// is significant; decoding walks the YAML mapping nodes directly to
// preserve it (a Go map would not).
type RuleList []RuleDefinition

var (
	knownRuleKeys         = []string{"match", "target", "followRedirect", "headers"}
	knownHeaderActionKeys = []string{"match", "replace"}
)

// UnmarshalYAML implements yaml.Unmarshaler, preserving document order
// and rejecting duplicate rule names and unknown rule fields.
func (rl *RuleList) UnmarshalYAML(node *yaml.Node) error {
	// A bare "rules:" key decodes as null and means no rules.
	if node.Tag == "!!null" {
		*rl = nil
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: rules must be a mapping of rule name to rule body", node.Line)
	}
	seen := make(map[string]bool, len(node.Content)/2)
	rules := make(RuleList, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var name string
		if err := keyNode.Decode(&name); err != nil {
			return fmt.Errorf("line %d: rule name must be a string", keyNode.Line)
		}
		if name == "" {
			return fmt.Errorf("line %d: rule name must not be empty", keyNode.Line)
		}
		if seen[name] {
			return fmt.Errorf("line %d: duplicate rule %q", keyNode.Line, name)
		}
		seen[name] = true

		if valueNode.Kind != yaml.MappingNode {
			return fmt.Errorf("line %d: rule %q must be a mapping", valueNode.Line, name)
		}
		if err := checkMappingKeys(valueNode, knownRuleKeys); err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
		var body struct {
			Match          string    `yaml:"match"`
			Target         string    `yaml:"target"`
			FollowRedirect bool      `yaml:"followRedirect"`
			Headers        yaml.Node `yaml:"headers"`
		}
		if err := valueNode.Decode(&body); err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
		headers, err := decodeHeaderActions(&body.Headers)
		if err != nil {
			return fmt.Errorf("rule %q: %w", name, err)
		}
		rules = append(rules, RuleDefinition{
			Name:           name,
			Match:          body.Match,
			Target:         body.Target,
			FollowRedirect: body.FollowRedirect,
			Headers:        headers,
		})
	}
	*rl = rules
	return nil
}

// Names returns the rule names in declaration order.
func (rl RuleList) Names() []string {
	names := make([]string, len(rl))
	for i, r := range rl {
		names[i] = r.Name
	}
	return names
}

// decodeHeaderActions walks a headers mapping in document order,
// folding keys to lowercase so lookups against canonical header names
// are case-insensitive. When two keys collide after folding, the
// later entry wins.
func decodeHeaderActions(node *yaml.Node) (map[string]HeaderActionDefinition, error) {
	if node.IsZero() || node.Tag == "!!null" {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: headers must be a mapping of header name to action", node.Line)
	}
	out := make(map[string]HeaderActionDefinition, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		keyNode, valueNode := node.Content[i], node.Content[i+1]
		var name string
		if err := keyNode.Decode(&name); err != nil {
			return nil, fmt.Errorf("line %d: header name must be a string", keyNode.Line)
		}
		var def HeaderActionDefinition
		if err := valueNode.Decode(&def); err != nil {
			return nil, err
		}
		out[strings.ToLower(name)] = def
	}
	return out, nil
}

// checkMappingKeys rejects keys outside the known set. Custom
// unmarshalers bypass the decoder's KnownFields check, so mapping
// nodes decoded by hand re-apply it here.
func checkMappingKeys(node *yaml.Node, known []string) error {
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		ok := false
		for _, k := range known {
			if key == k {
				ok = true
				break
			}
		}
		if !ok {
			return fmt.Errorf("line %d: unknown field %q", node.Content[i].Line, key)
		}
	}
	return nil
}
