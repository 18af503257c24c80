package objectclient

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	cfg "github.com/markdave123-py/parley/internal/config"
	"github.com/markdave123-py/parley/internal/core"
)

// S3Client stores branding logos and agent thumbnails.
type S3Client struct {
	client   *s3.Client
	uploader *manager.Uploader
	region   string
	endpoint string
	pathURLs bool
}

var _ core.ObjectClient = (*S3Client)(nil)

func NewS3Client(ctx context.Context, c *cfg.Config) (*S3Client, error) {
	if c.AwsAccessKey == "" || c.AwsSecretKey == "" {
		return nil, fmt.Errorf("AWS credentials not set")
	}
	if c.AwsRegion == "" {
		return nil, fmt.Errorf("AWS_REGION not set")
	}
	if c.BucketName == "" {
		return nil, fmt.Errorf("S3 bucket name not set")
	}

	awsCfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(c.AwsRegion),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AwsAccessKey, c.AwsSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := strings.TrimRight(c.S3Endpoint, "/")
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = c.S3PathStyle
	})
	slog.Info("object storage configured", "bucket", c.BucketName, "region", c.AwsRegion, "endpoint", endpoint)

	return &S3Client{
		client:   client,
		uploader: manager.NewUploader(client),
		region:   c.AwsRegion,
		endpoint: endpoint,
		pathURLs: c.S3PathStyle,
	}, nil
}

// UploadFile streams data to bucket/key and returns the object's public URL.
func (c *S3Client) UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (string, error) {
	ctxUpload, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	_, err := c.uploader.Upload(ctxUpload, &s3.PutObjectInput{
		Bucket:       aws.String(bucket),
		Key:          aws.String(key),
		Body:         data,
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=3600"),
	})
	if err != nil {
		return "", fmt.Errorf("s3 upload failed: %w", err)
	}

	return PublicURL(c.endpoint, c.region, bucket, key, c.pathURLs), nil
}

func (c *S3Client) DeleteFile(ctx context.Context, bucket, key string) error {
	ctxDel, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := c.client.DeleteObject(ctxDel, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("s3 delete failed: %w", err)
	}
	return nil
}

// PublicURL builds the URL clients use to fetch an uploaded object.
func PublicURL(endpoint, region, bucket, key string, pathStyle bool) string {
	key = strings.TrimLeft(key, "/")
	switch {
	case endpoint != "" && pathStyle:
		return fmt.Sprintf("%s/%s/%s", endpoint, bucket, key)
	case endpoint != "":
		scheme, host, ok := strings.Cut(endpoint, "://")
		if !ok {
			return fmt.Sprintf("%s/%s/%s", endpoint, bucket, key)
		}
		return fmt.Sprintf("%s://%s.%s/%s", scheme, bucket, host, key)
	default:
		return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
	}
}
