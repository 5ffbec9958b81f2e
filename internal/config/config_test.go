package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeEnv(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadParsesDeclaredPairs(t *testing.T) {
	path := writeEnv(t, `
# Immich deployment settings
UPLOAD_LOCATION=/data/lib
DB_USERNAME=immich

DB_PASSWORD=secret=with=equals
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"UPLOAD_LOCATION": "/data/lib",
		"DB_USERNAME":     "immich",
		"DB_PASSWORD":     "secret=with=equals",
	}, cfg.Vars())
}

func TestLoadLastOccurrenceWins(t *testing.T) {
	path := writeEnv(t, "DB_USERNAME=first\nDB_USERNAME=second\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "second", cfg.Get("DB_USERNAME", ""))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestGetFallback(t *testing.T) {
	cfg, err := Load(writeEnv(t, "A=1\n"))
	require.NoError(t, err)

	assert.Equal(t, "1", cfg.Get("A", "x"))
	assert.Equal(t, "x", cfg.Get("B", "x"))
}

func TestExpand(t *testing.T) {
	cfg, err := Load(writeEnv(t, "FOO=baz\nROOT=/srv\n"))
	require.NoError(t, err)

	tests := []struct {
		in   string
		want string
	}{
		{"${FOO}", "baz"},
		{"${MISSING}", ""},
		{"${MISSING:-bar}", "bar"},
		{"${FOO:-bar}", "baz"},
		{"${ROOT}/library", "/srv/library"},
		{"$FOO", "$FOO"},
		{"plain/path", "plain/path"},
		{"${A}${B:-x}${FOO}", "xbaz"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Expand(tt.in), "input %q", tt.in)
	}
}

func TestVarsReturnsCopy(t *testing.T) {
	cfg, err := Load(writeEnv(t, "A=1\n"))
	require.NoError(t, err)

	vars := cfg.Vars()
	vars["A"] = "mutated"
	assert.Equal(t, "1", cfg.Get("A", ""))
}
