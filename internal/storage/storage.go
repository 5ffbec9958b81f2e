// Package storage abstracts where finished backup archives live: a local
// directory, an S3 bucket, or a GCS bucket. Each stored archive has a JSON
// metadata sidecar next to it.
package storage

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// ErrArchiveNotFound is returned when a named archive does not exist in the
// backend.
var ErrArchiveNotFound = errors.New("archive not found")

// Archive is one backup archive moving in or out of a backend.
type Archive struct {
	// Name is the archive filename, e.g. "immich_backup_20240101_120000.tar.gz".
	Name       string
	Metadata   Metadata
	DataReader io.Reader
}

// Metadata describes a stored archive.
type Metadata struct {
	Name           string    `json:"name"`
	Size           int64     `json:"size"`
	CreatedAt      time.Time `json:"created_at"`
	AppVersion     string    `json:"app_version,omitempty"`
	UploadLocation string    `json:"upload_location,omitempty"`
}

// Backend stores and retrieves backup archives.
type Backend interface {
	Store(ctx context.Context, archive *Archive) error
	Retrieve(ctx context.Context, name string) (*Archive, error)
	List(ctx context.Context) ([]Metadata, error)
	Exists(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) error
}

// Config selects and configures a backend.
type Config struct {
	Type  string
	Local *LocalConfig
	GCS   *GCSConfig
	S3    *S3Config
}

// LocalConfig configures directory-backed storage.
type LocalConfig struct {
	BasePath string
}

// GCSConfig configures Google Cloud Storage.
type GCSConfig struct {
	Bucket      string
	ProjectID   string
	Credentials string
}

// S3Config configures S3 or an S3-compatible service.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
}

// metadataKey derives the sidecar object name for an archive name.
func metadataKey(name string) string {
	return strings.TrimSuffix(name, ".tar.gz") + ".json"
}
