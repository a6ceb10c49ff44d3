package stager

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

// S3 stages assets in an S3 bucket instead of the local disk, so multiple
// instances of the service can share staged uploads.
type S3 struct {
	svc    *s3.S3
	bucket string
}

func NewS3(sess *session.Session, bucket string) *S3 {
	return &S3{svc: s3.New(sess), bucket: bucket}
}

func (s *S3) Stage(ctx context.Context, r io.Reader, filename string) (string, int64, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", 0, fmt.Errorf("read upload: %w", err)
	}

	key := "staging/" + stagedName(filename)
	_, err = s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(content),
	})
	if err != nil {
		return "", 0, fmt.Errorf("put staged object: %w", err)
	}

	return key, int64(len(content)), nil
}

func (s *S3) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	output, err := s.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(handle),
	})
	if err != nil {
		return nil, fmt.Errorf("get staged object: %w", err)
	}
	return output.Body, nil
}

func (s *S3) Remove(ctx context.Context, handle string) error {
	_, err := s.svc.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(handle),
	})
	return err
}
