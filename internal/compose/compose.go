// Package compose parses the docker-compose topology file down to the two
// facts this tool needs: which container backs each service, and which host
// paths are bound into which container paths.
package compose

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrNotFound is returned when the compose file does not exist.
	ErrNotFound = errors.New("compose file not found")
	// ErrParse is returned when the compose file is not valid YAML.
	ErrParse = errors.New("invalid compose file")
)

// File is a parsed docker-compose.yml, reduced to the fields we read.
type File struct {
	path     string
	Services map[string]Service `yaml:"services"`
}

// Service is a single service definition.
type Service struct {
	ContainerName string   `yaml:"container_name"`
	Volumes       []string `yaml:"volumes"`
}

// Load reads and parses the compose file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("failed to read compose file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	f.path = path
	return &f, nil
}

// Path returns the file the topology was loaded from.
func (f *File) Path() string {
	return f.path
}

// ContainerNames maps each service name to its container name, defaulting to
// the service name when no container_name is declared.
func (f *File) ContainerNames() map[string]string {
	names := make(map[string]string, len(f.Services))
	for service, cfg := range f.Services {
		name := cfg.ContainerName
		if name == "" {
			name = service
		}
		names[service] = name
	}
	return names
}

// VolumeBindings collects hostPath:containerPath volume strings across all
// services, keyed by container path. The host side is passed through expand
// to resolve ${VAR} references; access-mode suffixes (":ro", ":rw") are
// stripped from the container side.
func (f *File) VolumeBindings(expand func(string) string) map[string]string {
	bindings := make(map[string]string)
	for _, cfg := range f.Services {
		for _, volume := range cfg.Volumes {
			hostPath, rest, ok := strings.Cut(volume, ":")
			if !ok {
				continue
			}
			containerPath, _, _ := strings.Cut(rest, ":")
			if expand != nil {
				hostPath = expand(hostPath)
			}
			bindings[containerPath] = hostPath
		}
	}
	return bindings
}
