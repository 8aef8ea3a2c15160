package blob

import (
	"context"

	infraS3 "micdash/internal/infra/blob/s3"
)

// S3Config configures the s3 driver.
type S3Config = infraS3.Config

// NewS3 returns a store backed by cfg.Bucket.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests returns an s3 store talking to an in-process fake
// bucket, for tests outside the driver package.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }
