/*
Package storage wraps S3-compatible object storage for user avatars.

Clients either upload directly with a presigned PUT URL, or send the image inline as a data
URL which the server uploads on their behalf. Either way the stored reference is the object's
public URL.
*/
package storage

import (
	"context"
	"io"
	"strings"
	"time"
)

// ServiceConfig holds the configuration required to connect to the storage service.
type ServiceConfig struct {
	BucketName      string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string

	// PublicBaseURL prefixes object keys to form the URLs stored on user records.
	PublicBaseURL string
}

// StorageService defines the public interface for the file storage service.
type StorageService interface {
	// PresignUpload generates a pre-signed URL for uploading a file.
	PresignUpload(
		ctx context.Context,
		key string,
		mimeType string,
		fileSize int64,
		duration time.Duration,
	) (string, error)

	// Upload stores body under key.
	Upload(ctx context.Context, key, mimeType string, body io.Reader) error

	// Delete removes the file specified by the given key.
	Delete(ctx context.Context, key string) error

	// PublicURL returns the URL clients use to fetch key.
	PublicURL(key string) string
}

// NewStorageService is the factory function for StorageService.
// Currently, only S3 compatible implementations are supported.
func NewStorageService(ctx context.Context, cfg ServiceConfig) (StorageService, error) {
	return newS3Client(ctx, cfg)
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
