package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
)

// GCSStorage keeps archives in a Google Cloud Storage bucket.
type GCSStorage struct {
	client *storage.Client
	bucket string
}

// NewGCSStorage creates GCS-backed storage.
func NewGCSStorage(ctx context.Context, config *GCSConfig) (*GCSStorage, error) {
	if config.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required for GCS storage")
	}

	var opts []option.ClientOption
	if config.Credentials != "" {
		opts = append(opts, option.WithCredentialsFile(config.Credentials))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStorage{client: client, bucket: config.Bucket}, nil
}

// Store uploads the archive and its metadata sidecar.
func (g *GCSStorage) Store(ctx context.Context, archive *Archive) error {
	bucket := g.client.Bucket(g.bucket)

	w := bucket.Object(archive.Name).NewWriter(ctx)
	if _, err := io.Copy(w, archive.DataReader); err != nil {
		w.Close()
		return fmt.Errorf("failed to write archive data: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close archive writer: %w", err)
	}

	metaWriter := bucket.Object(metadataKey(archive.Name)).NewWriter(ctx)
	if err := json.NewEncoder(metaWriter).Encode(archive.Metadata); err != nil {
		metaWriter.Close()
		return fmt.Errorf("failed to write metadata: %w", err)
	}
	if err := metaWriter.Close(); err != nil {
		return fmt.Errorf("failed to close metadata writer: %w", err)
	}
	return nil
}

// Retrieve streams the named archive from the bucket.
func (g *GCSStorage) Retrieve(ctx context.Context, name string) (*Archive, error) {
	bucket := g.client.Bucket(g.bucket)

	dataReader, err := bucket.Object(name).NewReader(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return nil, fmt.Errorf("%w: %s", ErrArchiveNotFound, name)
		}
		return nil, fmt.Errorf("failed to read archive: %w", err)
	}

	metadata := Metadata{Name: name}
	if metaReader, err := bucket.Object(metadataKey(name)).NewReader(ctx); err == nil {
		if decodeErr := json.NewDecoder(metaReader).Decode(&metadata); decodeErr != nil {
			metadata = Metadata{Name: name}
		}
		metaReader.Close()
	}

	return &Archive{Name: name, Metadata: metadata, DataReader: dataReader}, nil
}

// List returns metadata for every archive in the bucket.
func (g *GCSStorage) List(ctx context.Context) ([]Metadata, error) {
	bucket := g.client.Bucket(g.bucket)

	var archives []Metadata
	it := bucket.Objects(ctx, &storage.Query{Delimiter: "/"})

	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		if !strings.HasSuffix(attrs.Name, ".json") {
			continue
		}
		reader, err := bucket.Object(attrs.Name).NewReader(ctx)
		if err != nil {
			continue
		}

		var metadata Metadata
		if err := json.NewDecoder(reader).Decode(&metadata); err != nil {
			reader.Close()
			continue
		}
		reader.Close()
		archives = append(archives, metadata)
	}

	return archives, nil
}

// Exists reports whether the named archive is present in the bucket.
func (g *GCSStorage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(name).Attrs(ctx)
	if err != nil {
		if err == storage.ErrObjectNotExist {
			return false, nil
		}
		return false, fmt.Errorf("failed to check archive existence: %w", err)
	}
	return true, nil
}

// Delete removes the named archive and its metadata sidecar.
func (g *GCSStorage) Delete(ctx context.Context, name string) error {
	bucket := g.client.Bucket(g.bucket)

	if err := bucket.Object(name).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("failed to delete archive: %w", err)
	}
	if err := bucket.Object(metadataKey(name)).Delete(ctx); err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}

// Close releases the underlying client.
func (g *GCSStorage) Close() error {
	return g.client.Close()
}
