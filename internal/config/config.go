// Package config loads the deployment's environment file and resolves
// compose-style variable references against it.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
)

// ErrNotFound is returned when the environment file does not exist.
var ErrNotFound = errors.New("environment file not found")

var varPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Config holds the key-value pairs loaded from an environment file.
// It is immutable after Load.
type Config struct {
	path string
	vars map[string]string
}

// Load reads KEY=value pairs from the given file. Blank lines and lines
// starting with '#' are ignored; the last occurrence of a key wins.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to open environment file: %w", err)
	}
	defer f.Close()

	vars := make(map[string]string)
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		vars[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read environment file: %w", err)
	}

	return &Config{path: path, vars: vars}, nil
}

// Path returns the file the configuration was loaded from.
func (c *Config) Path() string {
	return c.path
}

// Get returns the value for key, or fallback when the key is absent.
func (c *Config) Get(key, fallback string) string {
	if v, ok := c.vars[key]; ok {
		return v
	}
	return fallback
}

// Vars returns a copy of all loaded key-value pairs.
func (c *Config) Vars() map[string]string {
	out := make(map[string]string, len(c.vars))
	for k, v := range c.vars {
		out[k] = v
	}
	return out
}

// Expand resolves ${NAME} and ${NAME:-default} references in s against the
// loaded variables. An undefined ${NAME} expands to the empty string; text
// outside those two forms is left verbatim.
func (c *Config) Expand(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		expr := match[2 : len(match)-1]
		if name, def, ok := strings.Cut(expr, ":-"); ok {
			return c.Get(name, def)
		}
		return c.Get(expr, "")
	})
}
