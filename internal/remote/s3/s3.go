// Package s3 implements the remote store on an S3 bucket. The
// payload is already end-to-end encrypted, so the bucket needs no
// special trust beyond availability.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/skimapp/skimsync/internal/events"
	"github.com/skimapp/skimsync/internal/models"
	"github.com/skimapp/skimsync/internal/remote"
)

// Store is an S3-backed remote.
type Store struct {
	client    *s3.Client
	bucket    string
	prefix    string
	logger    *events.Logger
	connected bool
}

// New creates an S3 store using the default AWS credential chain.
func New(ctx context.Context, bucket, prefix, region string, logger *events.Logger) (*Store, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &Store{
		client:    s3.NewFromConfig(cfg),
		bucket:    bucket,
		prefix:    strings.Trim(prefix, "/"),
		logger:    logger.WithField("component", "s3_store"),
		connected: true,
	}, nil
}

func (s *Store) Upload(ctx context.Context, data []byte) (*remote.UploadInfo, error) {
	if !s.connected {
		return nil, models.ErrNotConnected
	}
	key := s.buildKey(remote.StateFileName)
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 put %s: %w", key, err)
	}

	info := &remote.UploadInfo{}
	if out.ETag != nil {
		info.ETag = strings.Trim(*out.ETag, `"`)
	}
	if head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err == nil && head.LastModified != nil {
		info.UpdatedAt = head.LastModified.UnixMilli()
	}

	s.logger.WithField("size", len(data)).Debug("Uploaded state file")
	return info, nil
}

func (s *Store) Download(ctx context.Context) ([]byte, error) {
	if !s.connected {
		return nil, models.ErrNotConnected
	}
	key := s.buildKey(remote.StateFileName)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, models.ErrNoRemoteData
		}
		return nil, fmt.Errorf("s3 get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3 body: %w", err)
	}
	return data, nil
}

func (s *Store) GetMetadata(ctx context.Context) (*remote.Metadata, error) {
	if !s.connected {
		return nil, models.ErrNotConnected
	}
	key := s.buildKey(remote.StateFileName)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return &remote.Metadata{Exists: false}, nil
		}
		return nil, fmt.Errorf("s3 head %s: %w", key, err)
	}

	meta := &remote.Metadata{Exists: true}
	if head.LastModified != nil {
		meta.UpdatedAt = head.LastModified.UnixMilli()
	}
	if head.ContentLength != nil {
		meta.Size = *head.ContentLength
	}
	if head.ETag != nil {
		meta.ETag = strings.Trim(*head.ETag, `"`)
	}
	return meta, nil
}

func (s *Store) ListContentFiles(ctx context.Context) ([]string, error) {
	if !s.connected {
		return nil, models.ErrNotConnected
	}
	prefix := s.buildKey(remote.ContentFolder) + "/"

	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3 list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}
			name := path.Base(*obj.Key)
			keys = append(keys, strings.TrimSuffix(name, ".bin"))
		}
	}
	return keys, nil
}

func (s *Store) UploadContentFile(ctx context.Context, key string, data []byte) error {
	if !s.connected {
		return models.ErrNotConnected
	}
	objKey := s.contentKey(key)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3 put %s: %w", objKey, err)
	}
	return nil
}

func (s *Store) DownloadContentFile(ctx context.Context, key string) ([]byte, error) {
	if !s.connected {
		return nil, models.ErrNotConnected
	}
	objKey := s.contentKey(key)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 get %s: %w", objKey, err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}

func (s *Store) DeleteContentFile(ctx context.Context, key string) error {
	if !s.connected {
		return models.ErrNotConnected
	}
	objKey := s.contentKey(key)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objKey),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", objKey, err)
	}
	return nil
}

// EnsureContentFolder is a no-op: S3 has no directories.
func (s *Store) EnsureContentFolder(ctx context.Context) error {
	return nil
}

func (s *Store) Name() string { return "s3" }

func (s *Store) IsConnected() bool { return s.connected }

func (s *Store) Disconnect(ctx context.Context) error {
	s.connected = false
	return nil
}

func (s *Store) buildKey(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "/" + name
}

func (s *Store) contentKey(key string) string {
	return s.buildKey(remote.ContentFolder + "/" + key + ".bin")
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
