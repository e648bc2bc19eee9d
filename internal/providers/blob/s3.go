package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

// S3Config carries the credentials for an S3-compatible blob endpoint
// (distilled spec §6: "region auto, endpoint https://<account>.r2.cloudflarestorage.com").
type S3Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
}

func (c S3Config) endpoint() string {
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", c.AccountID)
}

// S3Store is the production blob store, speaking the S3 API against a
// Cloudflare R2 (or any S3-compatible) endpoint.
type S3Store struct {
	client *s3.Client
	logger *zap.Logger
}

// NewS3Store builds an S3-compatible client pinned to the given account's
// R2 endpoint with region "auto", per the blob provider contract.
func NewS3Store(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion("auto"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load blob store config: %w", err)
	}

	endpoint := cfg.endpoint()
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	return &S3Store{client: client, logger: logger}, nil
}

// Put uploads the object body with the given content type, cache-control,
// and metadata (distilled spec §4.4 step 3).
func (s *S3Store) Put(ctx context.Context, bucket string, obj Object) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(obj.Key),
		Body:         bytes.NewReader(obj.Body),
		ContentType:  aws.String(obj.ContentType),
		CacheControl: aws.String(obj.CacheControl),
		Metadata:     obj.Metadata,
	})
	if err != nil {
		return fmt.Errorf("blob put %s: %w", obj.Key, err)
	}
	return nil
}

// Delete removes an object, translating a not-found response into
// ErrNotFound so the synchronizer never sees an AWS-specific error type.
func (s *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return nil
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("blob delete %s: %w", key, err)
}
