package synthetic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/blobstore"
	"github.com/ecds/dashboard/internal/platform/events"
)

type Service struct {
	backend Backend
	store   blobstore.BlobStore
	events  events.Publisher
}

func NewService(backend Backend, store blobstore.BlobStore, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{backend: backend, store: store, events: pub}
}

// Generate asks the backend for a cohort and keeps the full set in the blob
// store for a later export.
func (s *Service) Generate(ctx context.Context, owner string, f GenerateForm) (*Cohort, error) {
	req, err := f.Request()
	if err != nil {
		return nil, err
	}
	res, err := s.backend.GenerateSynthetic(ctx, req)
	if err != nil {
		return nil, err
	}

	raw, err := json.Marshal(res.Patients)
	if err != nil {
		return nil, fmt.Errorf("encode cohort: %w", err)
	}
	meta, err := s.store.Upload(ctx, blobstore.BlobMetadata{
		FileName:    fmt.Sprintf("synthetic-cohort-%s.json", time.Now().UTC().Format("20060102-150405")),
		ContentType: "application/json",
		Kind:        blobstore.KindCohortData,
		Owner:       owner,
	}, bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("store cohort: %w", err)
	}

	c := newCohort(f, res)
	c.BlobID = meta.ID

	events.Emit(ctx, s.events, events.New(events.SyntheticGenerated, owner, map[string]any{
		"count":           c.Total,
		"include_staging": f.IncludeStaging,
		"cancer_ratio":    f.CancerRatio,
	}))
	return c, nil
}

// Discard removes the stored records of a cohort the visitor no longer
// holds. A cohort that is already gone is not an error.
func (s *Service) Discard(ctx context.Context, owner string, c *Cohort) error {
	meta, err := s.store.GetMetadata(ctx, c.BlobID)
	if errors.Is(err, blobstore.ErrBlobNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("discard cohort: %w", err)
	}
	if meta.Owner != owner {
		return blobstore.ErrBlobNotFound
	}
	if err := s.store.Delete(ctx, c.BlobID); err != nil && !errors.Is(err, blobstore.ErrBlobNotFound) {
		return fmt.Errorf("discard cohort: %w", err)
	}
	return nil
}

// Export writes the full cohort as CSV and returns the stored export.
func (s *Service) Export(ctx context.Context, owner string, c *Cohort) (*blobstore.BlobMetadata, error) {
	rc, meta, err := s.store.Download(ctx, c.BlobID)
	if err != nil {
		return nil, fmt.Errorf("load cohort: %w", err)
	}
	defer rc.Close()
	if meta.Owner != owner {
		return nil, blobstore.ErrBlobNotFound
	}

	var records []apiclient.Record
	if err := json.NewDecoder(rc).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode cohort: %w", err)
	}
	cols := columns(records)
	out, err := blobstore.UploadCSV(ctx, s.store, owner, blobstore.KindSyntheticCohort,
		fmt.Sprintf("synthetic-cohort-%d.csv", len(records)), cols, rows(records, cols))
	if err != nil {
		return nil, err
	}

	events.Emit(ctx, s.events, events.New(events.ExportCreated, owner, map[string]any{
		"kind": blobstore.KindSyntheticCohort,
		"rows": len(records),
		"size": out.Size,
	}))
	return out, nil
}
