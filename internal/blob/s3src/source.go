// Package s3src lists and presigns objects in an S3 bucket.
package s3src

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Source implements blob.Source for one bucket.
type Source struct {
	s3     s3iface.S3API
	bucket string
}

// New returns a Source over bucket.
func New(api s3iface.S3API, bucket string) *Source {
	return &Source{s3: api, bucket: bucket}
}

// List returns every key in the bucket, following continuation tokens.
func (s *Source) List(ctx context.Context) ([]string, error) {
	var keys []string
	err := s.s3.ListObjectsV2PagesWithContext(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, obj := range page.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("s3src: list %s: %w", s.bucket, err)
	}
	return keys, nil
}

// SignedURL presigns a GET for key valid for ttl.
func (s *Source) SignedURL(key string, ttl time.Duration) (string, error) {
	req, _ := s.s3.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	u, err := req.Presign(ttl)
	if err != nil {
		return "", fmt.Errorf("s3src: presign %s: %w", key, err)
	}
	return u, nil
}
