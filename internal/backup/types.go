// Package backup takes periodic snapshots of the evidence store and
// optionally copies them to S3.
package backup

import (
	"context"
	"time"
)

// Config controls store snapshots. A zero Interval disables the periodic
// loop; one-off snapshots still work.
type Config struct {
	Interval time.Duration `mapstructure:"interval"`
	Dir      string        `mapstructure:"dir"`
	Keep     int           `mapstructure:"keep"`

	S3URL      string `mapstructure:"s3-url"`
	S3Endpoint string `mapstructure:"s3-endpoint"`
	S3Region   string `mapstructure:"s3-region"`
}

// Snapshotter exports a consistent copy of the store into a new directory.
type Snapshotter interface {
	ExportTo(ctx context.Context, dst string) error
}

// Uploader copies one snapshot directory somewhere durable.
type Uploader interface {
	UploadDir(ctx context.Context, localDir string) error
}
