package vault

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/immivault/immivault/internal/config"
)

// Manifest describes one backup: when it was taken, what it contains, and
// the configuration it was taken under. It is written once at backup time
// and read once at restore time.
type Manifest struct {
	Timestamp        string            `json:"timestamp"`
	ImmichVersion    string            `json:"immich_version"`
	DatabaseBackup   string            `json:"database_backup"`
	FilesystemBackup string            `json:"filesystem_backup"`
	OriginalPaths    *Paths            `json:"original_paths"`
	EnvVars          map[string]string `json:"env_vars"`
}

func newManifest(cfg *config.Config, dbBackupFile string, paths *Paths) *Manifest {
	return &Manifest{
		Timestamp:        time.Now().Format(time.RFC3339),
		ImmichVersion:    cfg.Get(appVersionKey, "unknown"),
		DatabaseBackup:   filepath.Base(dbBackupFile),
		FilesystemBackup: filesystemDir,
		OriginalPaths:    paths,
		EnvVars:          cfg.Vars(),
	}
}

// writeManifest writes the manifest at its fixed filename inside dir.
func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	path := filepath.Join(dir, manifestFilename)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// readManifest reads the manifest from a backup directory.
func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFilename)) // #nosec G304 - validated backup dir
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}
	return &m, nil
}

// hasManifest reports whether dir contains a manifest file.
func hasManifest(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, manifestFilename))
	return err == nil
}
