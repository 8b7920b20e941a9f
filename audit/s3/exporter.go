// Package s3archive archives audit entries to S3-compatible object storage.
package s3archive

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/michaelpento.lv/flasharb/audit"
	"github.com/michaelpento.lv/flasharb/config"
	"github.com/michaelpento.lv/flasharb/types"
	"go.uber.org/zap"
)

// ObjectPutter is the subset of *s3.Client the exporter uses.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type Exporter struct {
	client ObjectPutter
	bucket string
	prefix string
	logger *zap.Logger
}

// NewExporter builds an S3 client from cfg. Static credentials are used when
// both keys are set, the default AWS chain otherwise. A custom endpoint
// switches to path-style addressing for MinIO and similar stores.
func NewExporter(ctx context.Context, cfg config.S3Config, logger *zap.Logger) (*Exporter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3: bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewExporterWithClient(client, cfg.Bucket, cfg.Prefix, logger), nil
}

func NewExporterWithClient(client ObjectPutter, bucket, prefix string, logger *zap.Logger) *Exporter {
	return &Exporter{client: client, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectKey names an export taken at t.
func (e *Exporter) ObjectKey(t time.Time) string {
	return path.Join(e.prefix, t.UTC().Format("2006/01/02"), "audit-"+t.UTC().Format("20060102T150405Z")+".jsonl")
}

// Export uploads results as one JSONL object and returns its key.
func (e *Exporter) Export(ctx context.Context, results []*types.ExecutionResult) (string, error) {
	if len(results) == 0 {
		return "", fmt.Errorf("s3: nothing to export")
	}
	body, err := audit.EncodeJSONL(results)
	if err != nil {
		return "", err
	}

	key := e.ObjectKey(time.Now())
	_, err = e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return "", fmt.Errorf("s3: put %s/%s: %w", e.bucket, key, err)
	}

	e.logger.Info("Exported audit log",
		zap.String("bucket", e.bucket),
		zap.String("key", key),
		zap.Int("entries", len(results)),
		zap.Int("bytes", len(body)))
	return key, nil
}
