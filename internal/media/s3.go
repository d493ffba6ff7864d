package media

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/mmynk/splitledger/internal/models"
)

// S3Config configures an S3 (or S3-compatible) bucket.
type S3Config struct {
	Bucket string
	Region string
	// Endpoint overrides the AWS endpoint, e.g. for MinIO. Enables path-style addressing.
	Endpoint string
	// AccessKeyID and SecretAccessKey are optional static credentials;
	// the default provider chain is used when empty.
	AccessKeyID     string
	SecretAccessKey string
	// PublicURL is the base URL images are served from. Defaults to the
	// virtual-hosted bucket URL.
	PublicURL string
}

// S3Store keeps images in an S3 bucket.
type S3Store struct {
	client    *s3.Client
	bucket    string
	publicURL string
}

// Ensure S3Store implements Store
var _ Store = (*S3Store)(nil)

// NewS3Store loads the AWS configuration and creates the client.
func NewS3Store(ctx context.Context, cfg S3Config) (*S3Store, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	publicURL := strings.TrimSuffix(cfg.PublicURL, "/")
	if publicURL == "" {
		publicURL = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", cfg.Bucket, cfg.Region)
	}

	return &S3Store{client: client, bucket: cfg.Bucket, publicURL: publicURL}, nil
}

// Put uploads the file to the bucket.
func (s *S3Store) Put(ctx context.Context, folder string, f File) (models.Image, error) {
	key := newKey(folder, f.Filename)
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f.Body,
		ContentType: aws.String(contentType(f)),
	}
	if f.Size > 0 {
		input.ContentLength = aws.Int64(f.Size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return models.Image{}, fmt.Errorf("failed to upload to s3://%s/%s: %w", s.bucket, key, err)
	}
	return models.Image{PublicID: key, URL: s.publicURL + "/" + key}, nil
}

// Delete removes the object. S3 reports success for missing keys.
func (s *S3Store) Delete(ctx context.Context, publicID string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(publicID),
	})
	if err != nil {
		return fmt.Errorf("failed to delete s3://%s/%s: %w", s.bucket, publicID, err)
	}
	return nil
}
