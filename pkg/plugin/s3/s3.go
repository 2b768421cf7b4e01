// Package s3 provides an S3-backed NBD plugin, adapting the bucket-head
// client construction and object key conventions of
// pkg/store/content/s3.S3ContentStore onto the chunked common.Store
// surface: each 4MB block becomes one S3 object, object presence
// doubling as the block's hole/data flag for BLOCK_STATUS.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/nbdgo/internal/protocol/nbd/backend"
	"github.com/marmos91/nbdgo/pkg/metrics"
	"github.com/marmos91/nbdgo/pkg/plugin/common"
)

const defaultBlockSize = 4 * 1024 * 1024

// Config configures the S3 plugin.
type Config struct {
	Endpoint        string `mapstructure:"endpoint"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	ForcePathStyle  bool   `mapstructure:"force_path_style"`

	Bucket    string `mapstructure:"bucket"`
	KeyPrefix string `mapstructure:"key_prefix"`

	Size      uint64 `mapstructure:"size"`
	BlockSize uint32 `mapstructure:"block_size"`
	ReadOnly  bool   `mapstructure:"read_only"`
}

// NewClient builds an S3 client from plain configuration values, mirroring
// pkg/store/content/s3.NewS3ClientFromConfig.
func NewClient(ctx context.Context, cfg Config) (*s3.Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("nbd: loading aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	}), nil
}

// store adapts an s3.Client to common.Store, one object per block.
type store struct {
	client    *s3.Client
	bucket    string
	keyPrefix string
	metrics   metrics.S3Metrics
}

func (s *store) objectKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + key
}

func (s *store) WriteBlock(ctx context.Context, key string, data []byte) error {
	start := time.Now()
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
		Body:   bytes.NewReader(data),
	})
	metrics.ObserveOperation(s.metrics, "PutObject", time.Since(start), err)
	if err != nil {
		return fmt.Errorf("nbd: s3 put %q: %w", key, err)
	}
	metrics.RecordBytes(s.metrics, "write", int64(len(data)))
	return nil
}

func (s *store) ReadBlock(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nf *s3types.NoSuchKey
		if errors.As(err, &nf) {
			return nil, common.ErrBlockNotFound
		}
		metrics.ObserveOperation(s.metrics, "GetObject", time.Since(start), err)
		return nil, fmt.Errorf("nbd: s3 get %q: %w", key, err)
	}
	defer out.Body.Close()
	data, err := io.ReadAll(out.Body)
	metrics.ObserveOperation(s.metrics, "GetObject", time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("nbd: s3 read body %q: %w", key, err)
	}
	metrics.RecordBytes(s.metrics, "read", int64(len(data)))
	return data, nil
}

func (s *store) DeleteBlock(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return fmt.Errorf("nbd: s3 delete %q: %w", key, err)
	}
	return nil
}

func (s *store) BlockExists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		var nf *s3types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("nbd: s3 head %q: %w", key, err)
	}
	return true, nil
}

func (s *store) HealthCheck(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return fmt.Errorf("nbd: s3 bucket %q unreachable: %w", s.bucket, err)
	}
	return nil
}

func (s *store) Close() error { return nil }

var _ common.Store = (*store)(nil)
var _ common.HoleProber = (*store)(nil)

// New builds an S3-backed plugin from an already-constructed client (see
// NewClient), wiring it through common.ChunkedBackend so requests map
// onto whole-object blocks.
func New(name string, client *s3.Client, cfg Config) backend.Plugin {
	blockSize := cfg.BlockSize
	if blockSize == 0 {
		blockSize = defaultBlockSize
	}
	st := &store{client: client, bucket: cfg.Bucket, keyPrefix: cfg.KeyPrefix, metrics: metrics.NewS3Metrics()}
	return common.NewChunkedBackend(name, st, cfg.Size, blockSize, backend.Parallel, cfg.ReadOnly)
}
