package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// S3Config locates the archive in a bucket. Credentials always come from
// the AWS default chain. Endpoint and UsePathStyle serve S3-compatible
// stores such as MinIO or R2.
type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	UsePathStyle bool
}

// Validate rejects a config without a usable bucket name.
func (c *S3Config) Validate() error {
	switch {
	case c.Bucket == "":
		return errors.New("archive bucket is required")
	case strings.ContainsAny(c.Bucket, "/ "):
		return fmt.Errorf("invalid archive bucket %q", c.Bucket)
	}
	return nil
}

// ParseS3Path splits an --archive-path value of the form
// [s3://]bucket[/prefix] into bucket and prefix.
func ParseS3Path(path string) (bucket, prefix string) {
	path = strings.Trim(strings.TrimPrefix(path, "s3://"), "/")
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// NewS3 opens an archive whose dataset lives in S3.
func NewS3(ctx context.Context, cfg Config, s3cfg S3Config) (*Archive, error) {
	factory, err := S3Factory(ctx, s3cfg)
	if err != nil {
		return nil, err
	}
	return New(cfg, factory)
}

// S3Factory builds a lode store factory over one S3 client. It is used for
// both export and the archived listing.
func S3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(s3cfg.Region))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("archive: load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s3cfg.Endpoint != "" {
			o.BaseEndpoint = &s3cfg.Endpoint
		}
		o.UsePathStyle = s3cfg.UsePathStyle
	})
	storeCfg := lodes3.Config{Bucket: s3cfg.Bucket, Prefix: s3cfg.Prefix}

	return func() (lode.Store, error) {
		return lodes3.New(client, storeCfg)
	}, nil
}
