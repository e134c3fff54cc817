package imaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/blobstore"
	"github.com/ecds/dashboard/internal/platform/events"
	"github.com/ecds/dashboard/pkg/pagination"
)

// ErrUnknownReport is returned by Get when the listing has no such report.
var ErrUnknownReport = errors.New("report not found")

// ErrNothingToExport is returned by Export for an empty listing.
var ErrNothingToExport = errors.New("no reports match the filter")

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

func (s *Service) matching(ctx context.Context, q Query) ([]apiclient.MRIReport, error) {
	all, err := s.backend.ListMRIReports(ctx, q.Backend())
	if err != nil {
		return nil, err
	}
	return q.Apply(all), nil
}

// List returns one page of the reports matching q and the number of matches.
func (s *Service) List(ctx context.Context, q Query, pg pagination.Params) ([]apiclient.MRIReport, int, error) {
	matched, err := s.matching(ctx, q)
	if err != nil {
		return nil, 0, err
	}
	return pagination.Slice(matched, pg), len(matched), nil
}

// Get returns the report with the given id from the full listing.
func (s *Service) Get(ctx context.Context, id string) (apiclient.MRIReport, error) {
	all, err := s.backend.ListMRIReports(ctx, apiclient.MRIQuery{})
	if err != nil {
		return apiclient.MRIReport{}, err
	}
	r, ok := lo.Find(all, func(r apiclient.MRIReport) bool { return r.ID.String() == id })
	if !ok {
		return apiclient.MRIReport{}, ErrUnknownReport
	}
	return r, nil
}

// Export stores every report matching q as CSV for owner.
func (s *Service) Export(ctx context.Context, owner string, q Query) (*blobstore.BlobMetadata, error) {
	matched, err := s.matching(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		return nil, ErrNothingToExport
	}
	name := fmt.Sprintf("mri-reports-%s.csv", time.Now().UTC().Format("20060102-150405"))
	meta, err := blobstore.UploadCSV(ctx, s.store, owner, blobstore.KindMRIReports, name, csvHeader, lo.Map(matched, func(r apiclient.MRIReport, _ int) []string {
		return csvRow(r)
	}))
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.events, events.New(events.ExportCreated, owner, map[string]any{
		"kind": blobstore.KindMRIReports,
		"rows": len(matched),
		"size": meta.Size,
	}))
	return meta, nil
}
