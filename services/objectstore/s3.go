package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/rudderlabs/rudder-go-kit/config"
)

// S3Store implements ObjectStore on top of S3.
type S3Store struct {
	svc s3iface.S3API
}

func NewS3Store(conf *config.Config) (*S3Store, error) {
	region := conf.GetString("AWS_REGION", "us-east-1")
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("creating aws session: %w", err)
	}
	return &S3Store{svc: s3.New(sess)}, nil
}

func NewS3StoreWithClient(svc s3iface.S3API) *S3Store {
	return &S3Store{svc: svc}
}

func (m *S3Store) Get(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	out, err := m.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", bucket, key, err)
	}
	return out.Body, nil
}

func (m *S3Store) Put(ctx context.Context, bucket, key string, body []byte) error {
	_, err := m.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("putting s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *S3Store) Size(ctx context.Context, bucket, key string) (int64, error) {
	out, err := m.svc.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return 0, fmt.Errorf("heading s3://%s/%s: %w", bucket, key, err)
	}
	return aws.Int64Value(out.ContentLength), nil
}

func (m *S3Store) Delete(ctx context.Context, bucket, key string) error {
	_, err := m.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("deleting s3://%s/%s: %w", bucket, key, err)
	}
	return nil
}

func (m *S3Store) ListWithPrefix(ctx context.Context, bucket, prefix string) ([]Object, error) {
	objects := make([]Object, 0)
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	}
	err := m.svc.ListObjectsV2PagesWithContext(ctx, input, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, item := range page.Contents {
			objects = append(objects, Object{
				Key:              aws.StringValue(item.Key),
				Size:             aws.Int64Value(item.Size),
				LastModifiedTime: aws.TimeValue(item.LastModified),
			})
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %w", bucket, prefix, err)
	}
	return objects, nil
}
