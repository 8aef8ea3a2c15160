package blob

import (
	"context"
	"fmt"
	"strings"
)

// Config selects and configures a driver. It mirrors the blob.* keys of the
// application config.
type Config struct {
	Driver string
	FSRoot string
	S3     S3Config
}

// Open builds the configured store. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := Driver(strings.ToLower(strings.TrimSpace(cfg.Driver)))
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}
