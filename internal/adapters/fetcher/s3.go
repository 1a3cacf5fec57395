package fetcher

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type s3Handler struct {
	client S3API
}

func NewS3Handler(client S3API) Handler {
	return s3Handler{client: client}
}

// NewS3HandlerFromEnvironment uses the default AWS credential chain.
//
// A non-empty endpoint selects an S3 compatible service with path style addressing.
func NewS3HandlerFromEnvironment(ctx context.Context, endpoint string) (Handler, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Handler(client), nil
}

// s3://bucket/path/to/key.png
func (h s3Handler) Open(ctx context.Context, u *url.URL) (io.ReadCloser, error) {
	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, fmt.Errorf("s3 url must contain a bucket and a key: %s", u.Redacted())
	}

	out, err := h.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}
