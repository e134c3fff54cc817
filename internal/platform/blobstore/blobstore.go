// Package blobstore stores exported artifacts (synthetic cohorts, MRI report
// listings) so a visitor can download them later. It defines the BlobStore
// interface, an in-memory implementation for development and tests, an S3
// implementation, and the Echo download handlers.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ecds/dashboard/pkg/pagination"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/samber/lo"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// MaxFileSize is the maximum allowed export size in bytes (50 MB).
const MaxFileSize = 50 * 1024 * 1024

// Export kinds.
const (
	KindSyntheticCohort = "synthetic-cohort"
	KindMRIReports      = "mri-reports"

	// KindCohortData holds the raw records behind a generated cohort. It is
	// working storage, not a download.
	KindCohortData = "synthetic-cohort-data"
)

// InternalKinds are never listed by the exports endpoint.
var InternalKinds = []string{KindCohortData}

// AllowedContentTypes lists the export formats the dashboard produces.
var AllowedContentTypes = map[string]bool{
	"text/csv":         true,
	"application/json": true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// BlobMetadata describes a stored export.
type BlobMetadata struct {
	ID          string            `json:"id"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Kind        string            `json:"kind"`
	Owner       string            `json:"-"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Tags        map[string]string `json:"tags,omitempty"`
}

// ListParams filters List.
type ListParams struct {
	Owner        string
	Kind         string
	ExcludeKinds []string
	Limit        int
	Offset       int
}

func (p ListParams) matches(m *BlobMetadata) bool {
	if p.Owner != "" && m.Owner != p.Owner {
		return false
	}
	if p.Kind != "" && m.Kind != p.Kind {
		return false
	}
	return !lo.Contains(p.ExcludeKinds, m.Kind)
}

// ---------------------------------------------------------------------------
// BlobStore interface
// ---------------------------------------------------------------------------

// BlobStore defines the contract for export storage backends.
type BlobStore interface {
	Upload(ctx context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error)
	Download(ctx context.Context, id string) (io.ReadCloser, *BlobMetadata, error)
	Delete(ctx context.Context, id string) error
	GetMetadata(ctx context.Context, id string) (*BlobMetadata, error)
	List(ctx context.Context, params ListParams) ([]*BlobMetadata, int, error)
}

// prepare validates meta, reads content and fills the derived fields.
func prepare(meta BlobMetadata, content io.Reader) (BlobMetadata, []byte, error) {
	if meta.FileName == "" {
		return meta, nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return meta, nil, ErrInvalidContentType
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return meta, nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return meta, nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	if meta.Tags == nil {
		meta.Tags = make(map[string]string)
	}
	return meta, data, nil
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata BlobMetadata
	content  []byte
}

// InMemoryBlobStore is a thread-safe, in-memory BlobStore for tests and dev.
type InMemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
}

// NewInMemoryBlobStore returns a ready-to-use InMemoryBlobStore.
func NewInMemoryBlobStore() *InMemoryBlobStore {
	return &InMemoryBlobStore{
		blobs: make(map[string]*storedBlob),
	}
}

// Upload validates inputs, reads the content, computes a SHA-256 hash, and
// stores the blob in memory.
func (s *InMemoryBlobStore) Upload(_ context.Context, meta BlobMetadata, content io.Reader) (*BlobMetadata, error) {
	meta, data, err := prepare(meta, content)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

// Download returns an io.ReadCloser over the blob content and its metadata.
func (s *InMemoryBlobStore) Download(_ context.Context, id string) (io.ReadCloser, *BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// Delete removes a blob by ID.
func (s *InMemoryBlobStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// GetMetadata returns blob metadata without content.
func (s *InMemoryBlobStore) GetMetadata(_ context.Context, id string) (*BlobMetadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return &meta, nil
}

// List returns the matching page, newest first, and the total count.
func (s *InMemoryBlobStore) List(_ context.Context, params ListParams) ([]*BlobMetadata, int, error) {
	s.mu.RLock()
	var matched []*BlobMetadata
	for _, b := range s.blobs {
		if !params.matches(&b.metadata) {
			continue
		}
		m := b.metadata // copy
		matched = append(matched, &m)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return page(matched, params.Limit, params.Offset), len(matched), nil
}

func page(items []*BlobMetadata, limit, offset int) []*BlobMetadata {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	if offset > len(items) {
		offset = len(items)
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// OwnerFunc identifies the visitor making a request. Exports are only served
// to the visitor that created them.
type OwnerFunc func(c echo.Context) string

// BlobHandler provides Echo HTTP handlers for export downloads.
type BlobHandler struct {
	store BlobStore
	owner OwnerFunc
}

// NewBlobHandler creates a new BlobHandler. A nil owner disables the
// ownership check.
func NewBlobHandler(store BlobStore, owner OwnerFunc) *BlobHandler {
	return &BlobHandler{store: store, owner: owner}
}

// RegisterRoutes mounts export routes on the supplied Echo group.
func (h *BlobHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/exports", h.handleList)
	g.GET("/exports/:id/metadata", h.handleGetMetadata)
	g.GET("/exports/:id", h.handleDownload)
	g.DELETE("/exports/:id", h.handleDelete)
}

func (h *BlobHandler) ownerOf(c echo.Context) string {
	if h.owner == nil {
		return ""
	}
	return h.owner(c)
}

// authorize hides blobs that belong to another visitor behind a 404.
func (h *BlobHandler) authorize(c echo.Context, meta *BlobMetadata) error {
	if owner := h.ownerOf(c); owner != "" && meta.Owner != owner {
		return ErrBlobNotFound
	}
	return nil
}

func (h *BlobHandler) handleDownload(c echo.Context) error {
	id := c.Param("id")

	rc, meta, err := h.store.Download(c.Request().Context(), id)
	if err == nil {
		if authErr := h.authorize(c, meta); authErr != nil {
			rc.Close()
			err = authErr
		}
	}
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	defer rc.Close()

	name := strings.ReplaceAll(meta.FileName, `"`, "")
	c.Response().Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *BlobHandler) handleGetMetadata(c echo.Context) error {
	id := c.Param("id")

	meta, err := h.store.GetMetadata(c.Request().Context(), id)
	if err == nil {
		err = h.authorize(c, meta)
	}
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, meta)
}

func (h *BlobHandler) handleDelete(c echo.Context) error {
	id := c.Param("id")
	ctx := c.Request().Context()

	meta, err := h.store.GetMetadata(ctx, id)
	if err == nil {
		err = h.authorize(c, meta)
	}
	if err == nil {
		err = h.store.Delete(ctx, id)
	}
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.NoContent(http.StatusNoContent)
}

func (h *BlobHandler) handleList(c echo.Context) error {
	p := pagination.FromContext(c)
	params := ListParams{
		Owner:        h.ownerOf(c),
		Kind:         c.QueryParam("kind"),
		ExcludeKinds: InternalKinds,
		Limit:        p.Limit,
		Offset:       p.Offset,
	}

	items, total, err := h.store.List(c.Request().Context(), params)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	if items == nil {
		items = []*BlobMetadata{}
	}

	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p.Limit, p.Offset))
}
