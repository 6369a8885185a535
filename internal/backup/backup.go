// Package backup uploads the generated proxy configuration to an
// S3-compatible bucket so a host can be rebuilt with the same certificates
// and routes.
package backup

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// DefaultPrefix is the key prefix when none is configured.
const DefaultPrefix = "homeproxy"

// skipped are config-dir entries never uploaded: the API token and the
// placeholder build context.
var skipped = map[string]bool{
	"cloudflare_token": true,
	"welcome":          true,
}

// PutObjectAPI is the subset of the S3 client used for uploads.
type PutObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configure NewS3Client.
type S3Options struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// NewS3Client returns a client with static credentials. A custom endpoint
// switches to path-style addressing for S3-compatible stores.
func NewS3Client(opts S3Options) *s3.Client {
	o := s3.Options{
		Region:      opts.Region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
		o.UsePathStyle = true
	}
	return s3.New(o)
}

// Uploader copies the config directory into a bucket.
type Uploader struct {
	client PutObjectAPI
	bucket string
	prefix string
	logger zerolog.Logger
}

func NewUploader(logger zerolog.Logger, client PutObjectAPI, bucket, prefix string) *Uploader {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Uploader{
		client: client,
		bucket: bucket,
		prefix: prefix,
		logger: logger.With().Str("component", "backup").Str("bucket", bucket).Logger(),
	}
}

// Key returns the object key for rel within the snapshot taken at ts:
// <prefix>/<UTC timestamp>/<rel>.
func (u *Uploader) Key(ts time.Time, rel string) string {
	return path.Join(u.prefix, ts.UTC().Format("20060102T150405Z"), filepath.ToSlash(rel))
}

// Upload copies every regular file below dir and returns the written keys.
func (u *Uploader) Upload(ctx context.Context, dir string, ts time.Time) ([]string, error) {
	if u.bucket == "" {
		return nil, errors.New("no backup bucket configured")
	}

	var keys []string
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		if rel != "." && skipped[rel] {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		key := u.Key(ts, rel)
		if err := u.put(ctx, p, key); err != nil {
			return err
		}
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return keys, err
	}
	u.logger.Info().Int("objects", len(keys)).Msg("backup uploaded")
	return keys, nil
}

func (u *Uploader) put(ctx context.Context, file, key string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", file, err)
	}

	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", u.bucket, key, err)
	}
	u.logger.Debug().Str("key", key).Int64("bytes", info.Size()).Msg("uploaded")
	return nil
}
