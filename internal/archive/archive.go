// Package archive stores plan CSV exports in S3-compatible object storage.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

type Archive struct {
	bucket string
	client s3Client
	now    func() time.Time
}

func New(cfg Config) *Archive {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return &Archive{bucket: cfg.Bucket, client: s3.New(opts), now: time.Now}
}

// Key is the object key for an export taken at t.
func Key(filename string, t time.Time) string {
	return "exports/" + t.UTC().Format("20060102T150405Z") + "-" + filename
}

// PutExport uploads a CSV export and returns its object key.
func (a *Archive) PutExport(ctx context.Context, filename string, data []byte) (string, error) {
	key := Key(filename, a.now())
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(a.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(data),
		ContentLength:      aws.Int64(int64(len(data))),
		ContentType:        aws.String("text/csv; charset=utf-8"),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filename)),
	})
	if err != nil {
		return "", fmt.Errorf("upload export %s: %w", key, err)
	}
	return key, nil
}
