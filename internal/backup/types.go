// Package backup takes periodic snapshots of the admin database, keeps the
// newest few on disk and optionally ships each one to an S3 bucket.
package backup

import (
	"context"
	"time"

	"github.com/tinytelemetry/mailnav/internal/model"
)

// Config controls periodic snapshots of the admin database.
type Config struct {
	Enabled   bool          `mapstructure:"enabled"`
	Interval  time.Duration `mapstructure:"interval"`
	LocalDir  string        `mapstructure:"local-dir"`
	KeepLast  int           `mapstructure:"keep-last"`
	BucketURL string        `mapstructure:"bucket-url"`

	S3Endpoint     string `mapstructure:"s3-endpoint"`
	S3Region       string `mapstructure:"s3-region"`
	S3AccessKey    string `mapstructure:"s3-access-key"`
	S3SecretKey    string `mapstructure:"s3-secret-key"`
	S3SessionToken string `mapstructure:"s3-session-token"`
	S3UseSSL       bool   `mapstructure:"s3-use-ssl"`

	// Manual skips the startup snapshot and the periodic loop; the caller
	// drives RunOnce.
	Manual bool `mapstructure:"-"`
}

// Snapshotter writes a consistent copy of the database to a file.
type Snapshotter interface {
	SnapshotTo(ctx context.Context, dstPath string) (model.Snapshot, error)
}

// Uploader ships a snapshot off the machine and returns where it went.
type Uploader interface {
	Upload(ctx context.Context, snap model.Snapshot) (string, error)
}
