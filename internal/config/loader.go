package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heymind/reproxy/internal/util"
)

// envVarPattern matches ${VAR} and ${VAR:-default} references. Names
// follow the POSIX form, so bare $1 and braced ${1} capture references
// in rule targets and header replace templates pass through
// substitution untouched. A braced reference to a named capture group
// does collide with this syntax; escape it as $${name}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// escapedDollarPlaceholder temporarily holds escaped dollar signs
// during substitution. The NUL bytes cannot appear in valid YAML text.
const escapedDollarPlaceholder = "\x00ESCAPED_DOLLAR\x00"

// Load reads, substitutes, decodes, and validates the configuration
// file at path. Decoding is strict: unknown fields are an error.
// Validation failures satisfy errors.Is(err, util.ErrConfigInvalid).
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader reads, substitutes, decodes, and validates a
// configuration document from r.
func LoadFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse substitutes environment variables and decodes YAML on top of
// the defaults, so absent keys keep their default values. An empty
// document yields the defaults.
func parse(data []byte) (*Config, error) {
	content := substituteEnvVars(string(data))

	cfg := DefaultConfig()
	dec := yaml.NewDecoder(strings.NewReader(content))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return cfg, nil
		}
		return nil, util.NewConfigErrorWithCause("", "failed to parse YAML", err)
	}
	return cfg, nil
}

// substituteEnvVars expands ${VAR} and ${VAR:-default} references from
// the environment. An unset variable without a default expands to the
// empty string. $$ escapes a literal dollar sign.
func substituteEnvVars(content string) string {
	content = strings.ReplaceAll(content, "$$", escapedDollarPlaceholder)

	content = envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return groups[2]
	})

	return strings.ReplaceAll(content, escapedDollarPlaceholder, "$")
}
