package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	region string
}

func NewS3Sink(ctx context.Context, bucket, region, prefix string) (*S3Sink, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, &StorageError{Op: "aws config", Err: err}
	}
	return &S3Sink{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		region: region,
	}, nil
}

func (s *S3Sink) Store(ctx context.Context, data []byte, contentType string) (string, error) {
	key := uuid.NewString() + extensionFor(contentType)
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(data),
		ContentType: &contentType,
	})
	if err != nil {
		return "", &StorageError{Op: "put object", Err: err}
	}

	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key), nil
}
