// Package archive provides S3-compatible archival of uploaded source
// files. When S3 is not configured (empty bucket), the NoopUploader is
// used and uploaded files are simply deleted after the bronze stage.
package archive

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hyperengineering/ridelake/internal/config"
)

// Uploader archives a batch's source file before it is deleted.
type Uploader interface {
	// Upload copies the source file at filePath to the archive under the
	// given batch identifier.
	Upload(ctx context.Context, batchID string, filePath string) error
}

// s3Client defines the minimal minio.Client operations used by S3Uploader.
// This interface enables testing with mock implementations.
type s3Client interface {
	FPutObject(ctx context.Context, bucket, objectName, filePath string) error
}

// minioClientWrapper wraps *minio.Client to satisfy the s3Client
// interface with the concrete option types pinned here.
type minioClientWrapper struct {
	client *minio.Client
}

func (w *minioClientWrapper) FPutObject(ctx context.Context, bucket, objectName, filePath string) error {
	putOpts := minio.PutObjectOptions{
		ContentType: "text/csv",
	}
	_, err := w.client.FPutObject(ctx, bucket, objectName, filePath, putOpts)
	return err
}

// S3Uploader archives source files to S3-compatible storage.
type S3Uploader struct {
	client s3Client
	bucket string
}

// Upload copies the source file for batchID into the archive bucket.
func (u *S3Uploader) Upload(ctx context.Context, batchID string, filePath string) error {
	if err := u.client.FPutObject(ctx, u.bucket, objectKey(batchID), filePath); err != nil {
		return fmt.Errorf("archive source to S3: %w", err)
	}
	return nil
}

// NoopUploader is used when S3 archival is not configured.
type NoopUploader struct{}

// Upload is a no-op when S3 is not configured.
func (u *NoopUploader) Upload(ctx context.Context, batchID string, filePath string) error {
	return nil
}

// NewUploader creates the appropriate Uploader based on configuration.
// Returns NoopUploader when bucket is empty, S3Uploader otherwise.
func NewUploader(cfg config.ArchiveConfig) (Uploader, error) {
	if cfg.Bucket == "" {
		return &NoopUploader{}, nil
	}

	useSSL := true
	if cfg.UseSSL != nil {
		useSSL = *cfg.UseSSL
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: useSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}

	return &S3Uploader{
		client: &minioClientWrapper{client: client},
		bucket: cfg.Bucket,
	}, nil
}

// objectKey returns the S3 object key for a batch's source file.
// Convention: uploads/{batch_id}.csv
func objectKey(batchID string) string {
	return "uploads/" + batchID + ".csv"
}
