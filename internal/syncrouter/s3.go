package syncrouter

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config configures S3Backend, mirroring the fields the teacher's
// storage.S3Config exposes.
type S3Config struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // optional, for S3-compatible object stores
	AccessKeyID     string // optional, static credentials
	SecretAccessKey string
}

// S3Backend uploads artifacts to an S3 (or S3-compatible) bucket,
// grounded directly on the teacher's internal/storage S3Storage.
type S3Backend struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewS3Backend builds an S3Backend from cfg, loading AWS credentials
// the same way the teacher's NewS3Storage does: static credentials
// when supplied, default chain otherwise, with an optional custom
// path-style endpoint for non-AWS S3 implementations.
func NewS3Backend(ctx context.Context, cfg S3Config) (*S3Backend, error) {
	var opts []func(*config.LoadOptions) error
	opts = append(opts, config.WithRegion(cfg.Region))

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("syncrouter: s3: load aws config: %w", err)
	}

	var clientOpts []func(*s3.Options)
	if cfg.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return &S3Backend{
		client: s3.NewFromConfig(awsCfg, clientOpts...),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
	}, nil
}

// Send uploads localPath under the configured bucket/prefix. The
// bucket itself is fixed by config; the whole destPath is used as the
// object key, after the prefix when one is set.
func (b *S3Backend) Send(ctx context.Context, localPath, destPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("syncrouter: s3: open source: %w", err)
	}
	defer f.Close()

	key := destPath
	if b.prefix != "" {
		key = b.prefix + "/" + destPath
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("syncrouter: s3: put object: %w", err)
	}
	return nil
}
