package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Storage keeps archives in an S3 (or S3-compatible) bucket.
type S3Storage struct {
	client *s3.Client
	bucket string
}

// NewS3Storage creates S3-backed storage.
func NewS3Storage(ctx context.Context, cfg *S3Config) (*S3Storage, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required for S3 storage")
	}

	var awsConfig aws.Config
	var err error

	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
			),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(ctx,
			config.WithRegion(cfg.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var clientOptions []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Storage{
		client: s3.NewFromConfig(awsConfig, clientOptions...),
		bucket: cfg.Bucket,
	}, nil
}

// Store uploads the archive and its metadata sidecar.
func (s *S3Storage) Store(ctx context.Context, archive *Archive) error {
	body, ok := archive.DataReader.(io.ReadSeeker)
	if !ok {
		// PutObject needs a seekable body for signing.
		data, err := io.ReadAll(archive.DataReader)
		if err != nil {
			return fmt.Errorf("failed to read archive data: %w", err)
		}
		body = bytes.NewReader(data)
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(archive.Name),
		Body:   body,
	})
	if err != nil {
		return fmt.Errorf("failed to upload archive: %w", err)
	}

	metadataBytes, err := json.Marshal(archive.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(metadataKey(archive.Name)),
		Body:        bytes.NewReader(metadataBytes),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload metadata: %w", err)
	}
	return nil
}

// Retrieve streams the named archive from the bucket.
func (s *S3Storage) Retrieve(ctx context.Context, name string) (*Archive, error) {
	dataResult, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrArchiveNotFound, name, err)
	}

	metadata := Metadata{Name: name}
	metadataResult, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(metadataKey(name)),
	})
	if err == nil {
		if decodeErr := json.NewDecoder(metadataResult.Body).Decode(&metadata); decodeErr != nil {
			metadata = Metadata{Name: name}
		}
		metadataResult.Body.Close()
	}

	return &Archive{Name: name, Metadata: metadata, DataReader: dataResult.Body}, nil
}

// List returns metadata for every archive in the bucket.
func (s *S3Storage) List(ctx context.Context) ([]Metadata, error) {
	var archives []Metadata

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	})

	for paginator.HasMorePages() {
		output, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", err)
		}

		for _, obj := range output.Contents {
			if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".json") {
				continue
			}
			metadataResult, err := s.client.GetObject(ctx, &s3.GetObjectInput{
				Bucket: aws.String(s.bucket),
				Key:    obj.Key,
			})
			if err != nil {
				continue
			}

			var metadata Metadata
			if err := json.NewDecoder(metadataResult.Body).Decode(&metadata); err != nil {
				metadataResult.Body.Close()
				continue
			}
			metadataResult.Body.Close()
			archives = append(archives, metadata)
		}
	}

	return archives, nil
}

// Exists reports whether the named archive is present in the bucket.
func (s *S3Storage) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

// Delete removes the named archive and its metadata sidecar.
func (s *S3Storage) Delete(ctx context.Context, name string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(name),
	})
	if err != nil {
		return fmt.Errorf("failed to delete archive: %w", err)
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(metadataKey(name)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete metadata: %w", err)
	}
	return nil
}
