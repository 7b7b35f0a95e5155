package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heymind/reproxy/internal/util"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yml")
	err := os.WriteFile(path, []byte(content), 0644)
	require.NoError(t, err)
	return path
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
listen:
  host: 0.0.0.0
  port: 8080
log:
  level: debug
rules:
  api:
    match: "api\\.example\\.com/(.*)"
    target: "http://backend.internal/$1"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Listen.Host)
	assert.Equal(t, 8080, cfg.Listen.Port)
	assert.Equal(t, "debug", cfg.Log.Level)
	require.Len(t, cfg.Rules, 1)
	assert.Equal(t, "api", cfg.Rules[0].Name)
}

func TestLoad_AbsentKeysKeepDefaults(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
listen:
  port: 8080
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	// Host untouched by the file, port overridden.
	assert.Equal(t, "127.0.0.1", cfg.Listen.Host)
	assert.Equal(t, 8080, cfg.Listen.Port)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.Admin.Enabled)
	assert.Equal(t, 100, cfg.Upstream.MaxIdleConns)
	assert.Equal(t, 90*time.Second, cfg.Upstream.IdleConnTimeout.Duration())
	assert.Equal(t, time.Duration(0), cfg.Upstream.Timeout.Duration())
	assert.Empty(t, cfg.Rules)
}

func TestLoad_EmptyFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_FileNotFound(t *testing.T) {
	t.Parallel()

	_, err := Load("/nonexistent/path/config.yml")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
	assert.False(t, errors.Is(err, util.ErrConfigInvalid))
}

func TestLoad_InvalidYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "listen: [unclosed")

	_, err := Load(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestLoad_UnknownTopLevelField(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
listne:
  port: 8080
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
}

func TestLoad_ValidationFailure(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, `
rules:
  broken:
    match: "[unclosed"
    target: "http://backend"
`)

	_, err := Load(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, util.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "rules.broken.match")
}

func TestLoadFromReader(t *testing.T) {
	t.Parallel()

	content := `
listen:
  port: 9000
`
	cfg, err := LoadFromReader(strings.NewReader(content))

	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Listen.Port)
}

func TestLoad_EnvSubstitution(t *testing.T) {
	t.Setenv("REPROXY_TEST_HOST", "10.1.2.3")
	t.Setenv("REPROXY_TEST_BACKEND", "backend.internal")

	path := writeConfigFile(t, `
listen:
  host: ${REPROXY_TEST_HOST}
  port: ${REPROXY_TEST_PORT:-8080}
rules:
  api:
    match: "api\\.example\\.com/(.*)"
    target: "http://${REPROXY_TEST_BACKEND}/$1"
`)

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "10.1.2.3", cfg.Listen.Host)
	assert.Equal(t, 8080, cfg.Listen.Port)
	assert.Equal(t, "http://backend.internal/$1", cfg.Rules[0].Target)
}

func TestLoad_EnvSubstitutionUnsetWithoutDefault(t *testing.T) {
	t.Parallel()

	cfg, err := LoadFromReader(strings.NewReader(`
log:
  output: "${REPROXY_TEST_UNSET_VAR}stdout"
`))

	require.NoError(t, err)
	assert.Equal(t, "stdout", cfg.Log.Output)
}

func TestSubstituteEnvVars_CaptureReferencesUntouched(t *testing.T) {
	t.Parallel()

	// Capture references in rule templates must survive substitution:
	// bare $1 and $name always, and braced ${1} because substitution
	// variable names cannot start with a digit.
	in := `target: "http://backend/$1/${2}/$rest"`
	assert.Equal(t, in, substituteEnvVars(in))
}

func TestSubstituteEnvVars_EscapedDollar(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "price: $5", substituteEnvVars("price: $$5"))
	assert.Equal(t, "literal ${NOT_EXPANDED}", substituteEnvVars("literal $${NOT_EXPANDED}"))
}

func TestSubstituteEnvVars_Default(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "value: fallback", substituteEnvVars("value: ${REPROXY_TEST_UNSET_VAR:-fallback}"))
	assert.Equal(t, "value: ", substituteEnvVars("value: ${REPROXY_TEST_UNSET_VAR:-}"))
}

func TestSubstituteEnvVars_SetVariable(t *testing.T) {
	t.Setenv("REPROXY_TEST_VALUE", "from-env")

	assert.Equal(t, "value: from-env", substituteEnvVars("value: ${REPROXY_TEST_VALUE}"))
	assert.Equal(t, "value: from-env", substituteEnvVars("value: ${REPROXY_TEST_VALUE:-ignored}"))
}
