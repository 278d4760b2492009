package environment

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	URL      string        `env:"TEST_URL" default:"postgres://localhost/todokeeper" validate:"required"`
	MaxConns int           `env:"TEST_MAX_CONNS" default:"25" validate:"gte=1"`
	Timeout  time.Duration `env:"TEST_TIMEOUT" default:"5s"`
	Verbose  bool          `env:"TEST_VERBOSE" default:"false"`
	Hosts    []string      `env:"TEST_HOSTS" default:"a,b"`
	Paths    []string      `env:"TEST_PATHS" separator:";"`
}

func TestParseEnvTags(t *testing.T) {
	t.Run("Should apply defaults", func(t *testing.T) {
		var cfg testConfig
		require.NoError(t, ParseEnvTags("TKTEST", &cfg))

		assert.Equal(t, "postgres://localhost/todokeeper", cfg.URL)
		assert.Equal(t, 25, cfg.MaxConns)
		assert.Equal(t, 5*time.Second, cfg.Timeout)
		assert.False(t, cfg.Verbose)
		assert.Equal(t, []string{"a", "b"}, cfg.Hosts)
		assert.Empty(t, cfg.Paths)
	})

	t.Run("Should read namespaced variables", func(t *testing.T) {
		t.Setenv("TKTEST_TEST_MAX_CONNS", "3")
		t.Setenv("TKTEST_TEST_TIMEOUT", "250ms")
		t.Setenv("TKTEST_TEST_VERBOSE", "true")
		t.Setenv("TKTEST_TEST_PATHS", "/a; /b")
		t.Setenv("TEST_MAX_CONNS", "99")

		var cfg testConfig
		require.NoError(t, ParseEnvTags("TKTEST", &cfg))

		assert.Equal(t, 3, cfg.MaxConns)
		assert.Equal(t, 250*time.Millisecond, cfg.Timeout)
		assert.True(t, cfg.Verbose)
		assert.Equal(t, []string{"/a", "/b"}, cfg.Paths)
	})

	t.Run("Should report invalid values by variable name", func(t *testing.T) {
		t.Setenv("TKTEST_TEST_MAX_CONNS", "0")

		var cfg testConfig
		err := ParseEnvTags("TKTEST", &cfg)
		assert.ErrorContains(t, err, "TKTEST_TEST_MAX_CONNS (gte)")
	})

	t.Run("Should reject non pointers", func(t *testing.T) {
		assert.Error(t, ParseEnvTags("", testConfig{}))
	})
}

func TestNamespace(t *testing.T) {
	assert.Equal(t, "PG_DATABASE_URL", GetNamespaceEnvKey("", "PG_DATABASE_URL"))
	assert.Equal(t, "TODOKEEPER_PG_DATABASE_URL", GetNamespaceEnvKey("TODOKEEPER", "PG_DATABASE_URL"))

	t.Setenv("TKTEST_PORT", "9000")
	assert.Equal(t, "9000", GetNamespaceEnvOrDefault("TKTEST", "PORT", "8080"))
	assert.Equal(t, "8080", GetNamespaceEnvOrDefault("TKTEST", "MISSING", "8080"))
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("TKTEST_FROM_FILE=file\nTKTEST_KEEP=file\n"), 0o600))

	t.Setenv("TKTEST_KEEP", "process")
	t.Setenv("TKTEST_FROM_FILE", "")
	require.NoError(t, os.Unsetenv("TKTEST_FROM_FILE"))

	require.NoError(t, LoadEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "file", os.Getenv("TKTEST_FROM_FILE"))
	assert.Equal(t, "process", os.Getenv("TKTEST_KEEP"))
}
