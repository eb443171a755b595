package cache

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Fetcher fetches assets directly from the content bucket. The url passed
// to Fetch is interpreted as the object key.
type S3Fetcher struct {
	client *s3.Client
	bucket string
}

// S3Config describes the content bucket. AccessKeyID/SecretAccessKey are
// optional; when empty the default credential chain is used.
type S3Config struct {
	Region          string
	Bucket          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
}

func NewS3Fetcher(ctx context.Context, cfg S3Config) (*S3Fetcher, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Fetcher{client: client, bucket: cfg.Bucket}, nil
}

func (f *S3Fetcher) Fetch(ctx context.Context, key, destPath string, onProgress ProgressFunc) error {
	out, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(f.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s: %w", f.bucket, key, err)
	}
	defer out.Body.Close()

	total := int64(-1)
	if out.ContentLength != nil {
		total = *out.ContentLength
	}

	return streamTo(destPath, out.Body, total, onProgress)
}
