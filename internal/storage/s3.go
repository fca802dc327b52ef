// Package storage publishes CSV exports to S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cloo-solutions/coverstats/internal/domain"
)

const (
	exportPrefix   = "exports"
	csvContentType = "text/csv"

	// DownloadURLExpiry is how long a published export link stays valid.
	DownloadURLExpiry = 24 * time.Hour
)

type S3ClientConfig struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

// S3Client stores export files in one bucket.
type S3Client struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

func NewS3Client(ctx context.Context, cfg S3ClientConfig) (*S3Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return &S3Client{client: client, presign: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

// Export describes a CSV file produced by the export command.
type Export struct {
	Path string
	From time.Time
	To   time.Time
	Rows int
}

// Published is an uploaded export and a temporary link to it.
type Published struct {
	Key         string
	Size        int64
	DownloadURL string
	ExpiresAt   time.Time
}

// ExportKey files an export under the year of its first day, keeping the
// local file name: exports/2019/07-12-2019_extracted-at-....csv.
func ExportKey(e Export) string {
	return path.Join(exportPrefix, strconv.Itoa(e.From.Year()), filepath.Base(e.Path))
}

// Publish creates the bucket when missing, uploads the export with its day
// range as object metadata and returns a presigned download link.
func (c *S3Client) Publish(ctx context.Context, e Export) (*Published, error) {
	if err := c.ensureBucket(ctx); err != nil {
		return nil, err
	}

	f, err := os.Open(e.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat export: %w", err)
	}

	key := ExportKey(e)
	_, err = c.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(c.bucket),
		Key:                aws.String(key),
		Body:               f,
		ContentLength:      aws.Int64(info.Size()),
		ContentType:        aws.String(csvContentType),
		ContentDisposition: aws.String(fmt.Sprintf("attachment; filename=%q", filepath.Base(e.Path))),
		Metadata:           exportMetadata(e),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload export %s: %w", key, err)
	}

	signed, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(DownloadURLExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate download URL: %w", err)
	}

	return &Published{
		Key:         key,
		Size:        info.Size(),
		DownloadURL: signed.URL,
		ExpiresAt:   time.Now().Add(DownloadURLExpiry),
	}, nil
}

func exportMetadata(e Export) map[string]string {
	to := e.To
	if to.IsZero() {
		to = e.From
	}
	return map[string]string{
		"from": e.From.Format(domain.DayFormat),
		"to":   to.Format(domain.DayFormat),
		"rows": strconv.Itoa(e.Rows),
	}
}

// ObjectInfo is what Stat reports about a stored export.
type ObjectInfo struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
}

func (c *S3Client) Stat(ctx context.Context, key string) (*ObjectInfo, error) {
	out, err := c.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", key, err)
	}
	return &ObjectInfo{
		Size:        aws.ToInt64(out.ContentLength),
		ContentType: aws.ToString(out.ContentType),
		Metadata:    out.Metadata,
	}, nil
}

func (c *S3Client) ensureBucket(ctx context.Context) error {
	if _, err := c.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.bucket)}); err == nil {
		return nil
	}
	if _, err := c.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(c.bucket)}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", c.bucket, err)
	}
	return nil
}
