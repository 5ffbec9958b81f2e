package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage keeps archives in a directory on the host.
type LocalStorage struct {
	basePath string
}

// NewLocalStorage creates directory-backed storage, creating the base
// directory if needed.
func NewLocalStorage(config *LocalConfig) (*LocalStorage, error) {
	if config.BasePath == "" {
		return nil, fmt.Errorf("base path is required for local storage")
	}

	if err := os.MkdirAll(config.BasePath, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &LocalStorage{basePath: config.BasePath}, nil
}

// Store writes the archive under a temporary name and renames it into place,
// so a partially written archive is never visible at its final path.
func (l *LocalStorage) Store(ctx context.Context, archive *Archive) error {
	finalPath := filepath.Join(l.basePath, archive.Name)
	tempPath := finalPath + ".partial"

	dataFile, err := os.Create(tempPath) // #nosec G304 - controlled storage path
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}

	if _, err := io.Copy(dataFile, archive.DataReader); err != nil {
		dataFile.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write archive data: %w", err)
	}
	if err := dataFile.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize archive: %w", err)
	}

	metadataPath := filepath.Join(l.basePath, metadataKey(archive.Name))
	metadataFile, err := os.Create(metadataPath) // #nosec G304 - controlled storage path
	if err != nil {
		return fmt.Errorf("failed to create metadata file: %w", err)
	}
	defer metadataFile.Close()

	if err := json.NewEncoder(metadataFile).Encode(archive.Metadata); err != nil {
		os.Remove(metadataPath)
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	return nil
}

// Retrieve opens the named archive. The caller owns the returned DataReader.
func (l *LocalStorage) Retrieve(ctx context.Context, name string) (*Archive, error) {
	dataPath := filepath.Join(l.basePath, name)

	dataFile, err := os.Open(dataPath) // #nosec G304 - controlled storage path
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
		}
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}

	var metadata Metadata
	metadataFile, err := os.Open(filepath.Join(l.basePath, metadataKey(name))) // #nosec G304
	if err == nil {
		if err := json.NewDecoder(metadataFile).Decode(&metadata); err != nil {
			metadata = Metadata{Name: name}
		}
		metadataFile.Close()
	} else {
		metadata = Metadata{Name: name}
	}

	return &Archive{Name: name, Metadata: metadata, DataReader: dataFile}, nil
}

// List returns metadata for every archive in the base directory.
func (l *LocalStorage) List(ctx context.Context) ([]Metadata, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	var archives []Metadata
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		metadataFile, err := os.Open(filepath.Join(l.basePath, entry.Name())) // #nosec G304
		if err != nil {
			continue
		}
		var metadata Metadata
		if err := json.NewDecoder(metadataFile).Decode(&metadata); err != nil {
			metadataFile.Close()
			continue
		}
		metadataFile.Close()
		archives = append(archives, metadata)
	}

	return archives, nil
}

// Exists reports whether the named archive is present.
func (l *LocalStorage) Exists(ctx context.Context, name string) (bool, error) {
	if _, err := os.Stat(filepath.Join(l.basePath, name)); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check archive existence: %w", err)
	}
	return true, nil
}

// Delete removes the named archive and its metadata sidecar.
func (l *LocalStorage) Delete(ctx context.Context, name string) error {
	if err := os.Remove(filepath.Join(l.basePath, name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove archive: %w", err)
	}
	if err := os.Remove(filepath.Join(l.basePath, metadataKey(name))); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove metadata: %w", err)
	}
	return nil
}
