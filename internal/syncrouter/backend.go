package syncrouter

import (
	"context"
	"fmt"

	"github.com/svidal-nlive/instrumental-dbo/internal/config"
)

// NewBackend selects and constructs the Backend named by sync.Method,
// per §4.8 ("pluggable backend dispatch").
func NewBackend(ctx context.Context, sync config.SyncConfig, secrets config.Secrets) (Backend, error) {
	switch sync.Method {
	case "local":
		return NewLocalBackend(), nil
	case "rsync":
		return NewRsyncBackend(sync.BandwidthLimitKbps, sync.Compress), nil
	case "scp":
		return NewSCPBackend(sync.SCPHost, sync.SCPUser, sync.SCPKeyPath), nil
	case "s3":
		return NewS3Backend(ctx, S3Config{
			Bucket:          sync.S3Bucket,
			Prefix:          sync.S3Prefix,
			Region:          sync.S3Region,
			Endpoint:        sync.S3Endpoint,
			AccessKeyID:     secrets.AWSAccessKeyID,
			SecretAccessKey: secrets.AWSSecretAccessKey,
		})
	default:
		return nil, fmt.Errorf("syncrouter: unknown sync method %q", sync.Method)
	}
}
