// Package storage keeps oversized data exports in a private S3 bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/bezpauzy/eva-bot/internal/config"
)

const reportContentType = "text/plain; charset=utf-8"

// ExportArchive writes export reports as private objects. Objects are never
// made public: operators fetch them to fulfil the request.
type ExportArchive struct {
	bucket     string
	prefix     string
	client     *s3.Client
	httpClient *http.Client
	now        func() time.Time
}

type Option func(*ExportArchive)

func WithHTTPClient(c *http.Client) Option {
	return func(a *ExportArchive) { a.httpClient = c }
}

func WithClock(now func() time.Time) Option {
	return func(a *ExportArchive) { a.now = now }
}

func NewExportArchive(cfg config.S3Config, opts ...Option) (*ExportArchive, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3 region is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("s3 credentials are required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix == "" {
		prefix = "exports"
	}

	options := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: cfg.UsePathStyle,
	}
	if cfg.Endpoint != "" {
		options.BaseEndpoint = aws.String(cfg.Endpoint)
	}

	a := &ExportArchive{
		bucket: cfg.Bucket,
		prefix: prefix,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.httpClient != nil {
		options.HTTPClient = a.httpClient
	}
	a.client = s3.New(options)
	return a, nil
}

// Archive stores report for telegramID and returns the object key.
func (a *ExportArchive) Archive(ctx context.Context, telegramID int64, report []byte) (string, error) {
	if len(report) == 0 {
		return "", fmt.Errorf("no export data to archive")
	}
	key := a.key(telegramID)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               aws.String(a.bucket),
		Key:                  aws.String(key),
		Body:                 bytes.NewReader(report),
		ContentType:          aws.String(reportContentType),
		ACL:                  types.ObjectCannedACLPrivate,
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", fmt.Errorf("upload export to s3: %w", err)
	}
	return key, nil
}

func (a *ExportArchive) key(telegramID int64) string {
	now := a.now()
	day := fmt.Sprintf("%04d/%02d/%02d", now.Year(), now.Month(), now.Day())
	return path.Join(a.prefix, day, fmt.Sprintf("%d-%s.txt", telegramID, uuid.NewString()))
}
