// Package objectstore probes S3-compatible buckets before a backup run.
package objectstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/fgeck/gorestic-retention/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for bucket operations.
type Service interface {
	Probe(ctx context.Context, target models.BucketTarget) (*models.BucketResult, error)
}

// HeadBucketAPI is the subset of the S3 client used by the probe.
type HeadBucketAPI interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// ClientFactory builds an S3 client for a target.
type ClientFactory func(ctx context.Context, target models.BucketTarget) (HeadBucketAPI, error)

// Impl implements the Service interface.
type Impl struct {
	newClient ClientFactory
	logger    zerolog.Logger
}

// New creates a new object store service backed by the AWS SDK.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		newClient: NewS3Client,
		logger:    logger,
	}
}

// NewWithClientFactory creates a new object store service with a custom client factory (for testing).
func NewWithClientFactory(logger zerolog.Logger, factory ClientFactory) *Impl {
	return &Impl{
		newClient: factory,
		logger:    logger,
	}
}

// NewS3Client builds an S3 client for the target's endpoint and credentials.
func NewS3Client(ctx context.Context, target models.BucketTarget) (HeadBucketAPI, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if target.Region != "" {
		opts = append(opts, awsconfig.WithRegion(target.Region))
	}
	if target.AccessKeyID != "" && target.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(target.AccessKeyID, target.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS SDK config: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	endpoint := EndpointURL(target.Endpoint)
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = target.PathStyle
	}), nil
}

// EndpointURL adds an https scheme to bare hosts. An empty endpoint stays empty.
func EndpointURL(endpoint string) string {
	if endpoint == "" || strings.Contains(endpoint, "://") {
		return endpoint
	}
	return "https://" + endpoint
}

// Probe checks that the bucket exists and the credentials can reach it.
// Failures are reported in the result, not as an error.
func (s *Impl) Probe(ctx context.Context, target models.BucketTarget) (*models.BucketResult, error) {
	result := &models.BucketResult{}
	start := time.Now()
	defer func() {
		result.Duration = time.Since(start)
	}()

	s.logger.Debug().
		Str("endpoint", target.Endpoint).
		Str("bucket", target.Bucket).
		Bool("path_style", target.PathStyle).
		Msg("probing bucket")

	if target.Bucket == "" {
		result.Error = fmt.Errorf("no bucket given")
		return result, nil
	}

	client, err := s.newClient(ctx, target)
	if err != nil {
		result.Error = err
		return result, nil
	}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(target.Bucket)}); err != nil {
		result.Error = fmt.Errorf("bucket %s not reachable: %w", target.Bucket, err)
		return result, nil
	}

	result.Reachable = true
	s.logger.Info().
		Str("bucket", target.Bucket).
		Dur("duration", time.Since(start)).
		Msg("bucket reachable")

	return result, nil
}
