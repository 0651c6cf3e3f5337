// Package mirror keeps a copy of downloaded files in S3-compatible storage.
package mirror

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/teraleech/internal/utils"
)

type Options struct {
	Bucket   string
	Region   string
	Endpoint string // for MinIO and other S3-compatible stores
	Prefix   string
}

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type S3Archiver struct {
	uploader uploadAPI
	opts     Options
}

func NewS3Archiver(ctx context.Context, opts Options) (*S3Archiver, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRetryMode(aws.RetryModeAdaptive)}
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("error loading AWS config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
			o.UsePathStyle = true
		}
	})
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 16 * 1024 * 1024
		u.Concurrency = 4
	})
	return newS3Archiver(uploader, opts), nil
}

func newS3Archiver(uploader uploadAPI, opts Options) *S3Archiver {
	return &S3Archiver{uploader: uploader, opts: opts}
}

// Key returns the object key for a file of a job.
func (a *S3Archiver) Key(jobID, name string) string {
	return path.Join(strings.Trim(a.opts.Prefix, "/"), jobID, utils.SanitizeFileName(name))
}

func (a *S3Archiver) Archive(ctx context.Context, jobID, localPath, name string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("error opening %s: %w", localPath, err)
	}
	defer f.Close()
	key := a.Key(jobID, name)
	input := &s3.PutObjectInput{
		Bucket: aws.String(a.opts.Bucket),
		Key:    aws.String(key),
		Body:   f,
	}
	if ct := mime.TypeByExtension(filepath.Ext(name)); ct != "" {
		input.ContentType = aws.String(ct)
	}
	out, err := a.uploader.Upload(ctx, input)
	if err != nil {
		return fmt.Errorf("error uploading s3://%s/%s: %w", a.opts.Bucket, key, err)
	}
	log.Info().Str("op", "mirror/s3").Str("job", jobID).Msgf("archived %s to %s", name, out.Location)
	return nil
}
