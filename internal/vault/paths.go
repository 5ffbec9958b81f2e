package vault

import (
	"fmt"
	"os"
	"path/filepath"
)

// criticalFolders are the upload subtrees that must-have content lives in.
var criticalFolders = []string{"library", "upload", "profile"}

// Paths holds the resolved on-host locations of the deployment's data.
type Paths struct {
	UploadLocation  string   `json:"upload_location"`
	DBDataLocation  string   `json:"db_data_location"`
	CriticalFolders []string `json:"critical_folders"`
}

// ResolvePaths derives the upload and database data locations. A volume
// binding in the topology for the well-known container paths wins; the
// environment-file defaults apply only when the topology declares nothing.
func (c *Client) ResolvePaths() (*Paths, error) {
	bindings := c.stack.VolumeBindings(c.cfg.Expand)

	uploadLocation := bindings[uploadMountPath]
	if uploadLocation == "" {
		uploadLocation = c.cfg.Get(uploadLocationKey, uploadLocationDefault)
	}
	dbDataLocation := bindings[dbDataMountPath]
	if dbDataLocation == "" {
		dbDataLocation = c.cfg.Get(dbDataLocationKey, dbDataLocationDefault)
	}

	uploadLocation, err := filepath.Abs(uploadLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload location: %w", err)
	}
	dbDataLocation, err = filepath.Abs(dbDataLocation)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database data location: %w", err)
	}

	paths := &Paths{
		UploadLocation: uploadLocation,
		DBDataLocation: dbDataLocation,
	}
	for _, folder := range criticalFolders {
		folderPath := filepath.Join(uploadLocation, folder)
		if _, err := os.Stat(folderPath); err == nil {
			paths.CriticalFolders = append(paths.CriticalFolders, folderPath)
		}
	}

	c.log.Info().
		Str("upload_location", paths.UploadLocation).
		Str("db_data_location", paths.DBDataLocation).
		Int("critical_folders", len(paths.CriticalFolders)).
		Msg("resolved deployment paths")

	return paths, nil
}

// currentUploadLocation resolves where restored media must land, from the
// current environment file only.
func (c *Client) currentUploadLocation() (string, error) {
	location, err := filepath.Abs(c.cfg.Get(uploadLocationKey, uploadLocationDefault))
	if err != nil {
		return "", fmt.Errorf("failed to resolve upload location: %w", err)
	}
	return location, nil
}
