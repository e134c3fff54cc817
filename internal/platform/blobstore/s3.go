package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client used by S3BlobStore.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Object metadata keys. S3 returns user metadata keys lower-cased.
const (
	metaFileName  = "file-name"
	metaKind      = "kind"
	metaOwner     = "owner"
	metaHash      = "hash"
	metaCreatedAt = "created-at"
	metaTagPrefix = "tag-"
)

// NewS3Client builds an S3 client from the default AWS configuration chain
// (environment, shared config, instance role). Path-style addressing keeps
// S3-compatible stores such as MinIO and LocalStack working.
func NewS3Client(ctx context.Context) (*s3.Client, error) {
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	}), nil
}

// S3BlobStore stores exports as objects under a key prefix in one bucket.
type S3BlobStore struct {
	client S3API
	bucket string
	prefix string
}

// NewS3BlobStore returns a BlobStore backed by bucket. Objects are written
// under prefix, which defaults to "exports/".
func NewS3BlobStore(client S3API, bucket, prefix string) *S3BlobStore {
	if prefix == "" {
		prefix = "exports/"
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3BlobStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3BlobStore) key(id string) string {
	return s.prefix + id
}

// Upload validates the export and writes it with its metadata.
func (s *S3BlobStore) Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	userMeta := map[string]string{
		metaFileName:  meta.FileName,
		metaKind:      meta.Kind,
		metaOwner:     meta.Owner,
		metaHash:      meta.Hash,
		metaCreatedAt: meta.CreatedAt.Format(time.RFC3339Nano),
	}
	for k, v := range meta.Tags {
		userMeta[metaTagPrefix+strings.ToLower(k)] = v
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(meta.ID)),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
		Metadata:      userMeta,
		ACL:           types.ObjectCannedACLPrivate,
	})
	if err != nil {
		return nil, fmt.Errorf("put object: %w", err)
	}

	out := meta // copy
	return &out, nil
}

// Download streams the object body. The caller closes the reader.
func (s *S3BlobStore) Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("get object: %w", err)
	}
	meta := metadataFrom(id, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), out.Metadata, out.LastModified)
	return out.Body, meta, nil
}

// Delete removes the object. Deleting a missing export reports ErrBlobNotFound.
func (s *S3BlobStore) Delete(ctx context.Context, id string) error {
	if _, err := s.GetMetadata(ctx, id); err != nil {
		return err
	}
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}

// GetMetadata reads the object's headers.
func (s *S3BlobStore) GetMetadata(ctx context.Context, id string) (*BlobMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(id)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrBlobNotFound
		}
		return nil, fmt.Errorf("head object: %w", err)
	}
	return metadataFrom(id, aws.ToString(out.ContentType), aws.ToInt64(out.ContentLength), out.Metadata, out.LastModified), nil
}

// List walks the prefix and filters on the stored metadata.
func (s *S3BlobStore) List(ctx context.Context, params ListParams) ([]*BlobMetadata, int, error) {
	var matched []*BlobMetadata
	var token *string
	for {
		out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(s.prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, 0, fmt.Errorf("list objects: %w", err)
		}
		for _, obj := range out.Contents {
			id := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if id == "" {
				continue
			}
			meta, err := s.GetMetadata(ctx, id)
			if err != nil {
				if errors.Is(err, ErrBlobNotFound) {
					continue
				}
				return nil, 0, err
			}
			if !params.matches(meta) {
				continue
			}
			matched = append(matched, meta)
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			break
		}
		token = out.NextContinuationToken
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, params.Limit, params.Offset), len(matched), nil
}

func metadataFrom(id, contentType string, size int64, userMeta map[string]string, lastModified *time.Time) *BlobMetadata {
	meta := &BlobMetadata{
		ID:          id,
		FileName:    userMeta[metaFileName],
		ContentType: contentType,
		Size:        size,
		Kind:        userMeta[metaKind],
		Owner:       userMeta[metaOwner],
		Hash:        userMeta[metaHash],
		Tags:        make(map[string]string),
	}
	if t, err := time.Parse(time.RFC3339Nano, userMeta[metaCreatedAt]); err == nil {
		meta.CreatedAt = t
	} else if lastModified != nil {
		meta.CreatedAt = lastModified.UTC()
	}
	for k, v := range userMeta {
		if strings.HasPrefix(k, metaTagPrefix) {
			meta.Tags[strings.TrimPrefix(k, metaTagPrefix)] = v
		}
	}
	return meta
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}
