package blobstore

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// fakeS3 is an in-memory stand-in for the S3 API.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject), pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	meta := make(map[string]string, len(in.Metadata))
	for k, v := range in.Metadata {
		meta[strings.ToLower(k)] = v
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Key)] = fakeObject{body: body, contentType: aws.ToString(in.ContentType), metadata: meta, modified: time.Now()}
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.body)),
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	f.mu.Unlock()
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		Metadata:      obj.metadata,
		LastModified:  aws.Time(obj.modified),
	}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

// ListObjectsV2 returns pageSize keys at a time in key order. The next key is
// the continuation token.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		for i, k := range keys {
			if k == *in.ContinuationToken {
				start = i
				break
			}
		}
	}
	end := start + f.pageSize
	if end > len(keys) {
		end = len(keys)
	}
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func TestS3BlobStore_RoundTrip(t *testing.T) {
	fake := newFakeS3()
	store := NewS3BlobStore(fake, "cds-exports", "")

	meta, err := store.Upload(context.Background(), BlobMetadata{
		FileName:    "cohort.csv",
		ContentType: "text/csv",
		Kind:        KindSyntheticCohort,
		Owner:       "sess-1",
		Tags:        map[string]string{"Rows": "3"},
	}, strings.NewReader("a,b\n1,2\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := fake.objects["exports/"+meta.ID]; !ok {
		t.Fatalf("expected object under exports/ prefix, got %v", fake.objects)
	}

	rc, got, err := store.Download(context.Background(), meta.ID)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != "a,b\n1,2\n" {
		t.Errorf("unexpected body %q", body)
	}
	if got.FileName != "cohort.csv" || got.Owner != "sess-1" || got.Kind != KindSyntheticCohort {
		t.Errorf("metadata not preserved: %+v", got)
	}
	if got.Hash != meta.Hash || got.Size != meta.Size {
		t.Errorf("expected hash/size %s/%d, got %s/%d", meta.Hash, meta.Size, got.Hash, got.Size)
	}
	if !got.CreatedAt.Equal(meta.CreatedAt) {
		t.Errorf("expected created at %s, got %s", meta.CreatedAt, got.CreatedAt)
	}
	if got.Tags["rows"] != "3" {
		t.Errorf("expected tag rows=3, got %v", got.Tags)
	}
}

func TestS3BlobStore_NotFound(t *testing.T) {
	store := NewS3BlobStore(newFakeS3(), "cds-exports", "exports")

	if _, _, err := store.Download(context.Background(), "missing"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound from Download, got %v", err)
	}
	if _, err := store.GetMetadata(context.Background(), "missing"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound from GetMetadata, got %v", err)
	}
	if err := store.Delete(context.Background(), "missing"); err != ErrBlobNotFound {
		t.Errorf("expected ErrBlobNotFound from Delete, got %v", err)
	}
}

func TestS3BlobStore_ListPagesAndFilters(t *testing.T) {
	fake := newFakeS3()
	store := NewS3BlobStore(fake, "cds-exports", "")
	for i, owner := range []string{"sess-1", "sess-2", "sess-1", "sess-1", "sess-2"} {
		_, err := store.Upload(context.Background(), BlobMetadata{
			FileName:    "f.csv",
			ContentType: "text/csv",
			Kind:        KindMRIReports,
			Owner:       owner,
		}, strings.NewReader(strings.Repeat("x", i+1)))
		if err != nil {
			t.Fatalf("upload: %v", err)
		}
	}

	items, total, err := store.List(context.Background(), ListParams{Owner: "sess-1", Limit: 10})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Errorf("expected 3 exports for sess-1 across pages, got %d (%d)", total, len(items))
	}

	store.Delete(context.Background(), items[0].ID)
	_, total, _ = store.List(context.Background(), ListParams{Owner: "sess-1"})
	if total != 2 {
		t.Errorf("expected 2 exports after delete, got %d", total)
	}
}
