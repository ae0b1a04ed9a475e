package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"

	appconfig "github.com/dulceflor/image-pipeline/config"
	"github.com/dulceflor/image-pipeline/core"
	apperrors "github.com/dulceflor/image-pipeline/errors"
	"github.com/dulceflor/image-pipeline/utils"
)

// S3 is the ObjectStore backed by AWS S3 or any S3-compatible service
// (MinIO, Supabase storage over the S3 protocol, etc.).
type S3 struct {
	client    *s3.Client
	region    string
	publicURL string // optional CDN/base URL override
}

// NewS3 builds an S3 store from runtime settings. Credentials fall back to
// the default AWS provider chain when not set explicitly.
func NewS3(ctx context.Context, settings appconfig.Settings) (*S3, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(settings.S3Region),
	}
	if settings.S3AccessKey != "" && settings.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(settings.S3AccessKey, settings.S3SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if settings.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(settings.S3Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3{client: client, region: settings.S3Region, publicURL: settings.S3PublicURL}, nil
}

func (s *S3) Upload(ctx context.Context, key core.StorageKey, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.upload", err)
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(key.Bucket),
		Key:         aws.String(key.Path),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return apperrors.Transient("s3.upload", err)
	}
	return nil
}

func (s *S3) Download(ctx context.Context, key core.StorageKey) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.download", err)
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(key.Bucket),
		Key:    aws.String(key.Path),
	})
	if err != nil {
		var noKey *s3types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, apperrors.New(apperrors.CategoryStorage, "s3.download",
				fmt.Errorf("%w: %s/%s", apperrors.ErrNotFound, key.Bucket, key.Path))
		}
		return nil, apperrors.Transient("s3.download", err)
	}
	defer out.Body.Close()

	buf, err := utils.DrainReader(ctx, out.Body, 0)
	if err != nil {
		return nil, apperrors.Transient("s3.download.read", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	return data, nil
}

func (s *S3) List(ctx context.Context, bucket, prefix string) ([]core.ObjectEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryStorage, "s3.list", err)
	}

	var entries []core.ObjectEntry
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, apperrors.Transient("s3.list", err)
		}
		for _, obj := range page.Contents {
			entry := core.ObjectEntry{Path: aws.ToString(obj.Key), Size: aws.ToInt64(obj.Size)}
			if obj.LastModified != nil {
				entry.UpdatedAt = obj.LastModified.UnixMilli()
			}
			entries = append(entries, entry)
		}
	}
	return entries, nil
}

func (s *S3) Remove(ctx context.Context, bucket string, paths []string) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryStorage, "s3.remove", err)
	}
	if len(paths) == 0 {
		return nil
	}

	objects := make([]s3types.ObjectIdentifier, 0, len(paths))
	for _, p := range paths {
		objects = append(objects, s3types.ObjectIdentifier{Key: aws.String(p)})
	}
	_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
		Bucket: aws.String(bucket),
		Delete: &s3types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	if err != nil {
		return apperrors.Transient("s3.remove", err)
	}
	return nil
}

func (s *S3) PublicURL(key core.StorageKey) string {
	if s.publicURL != "" {
		return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(s.publicURL, "/"), key.Bucket, key.Path)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", key.Bucket, s.region, key.Path)
}
