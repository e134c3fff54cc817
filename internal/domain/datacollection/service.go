// Package datacollection lists the backend's external data sources and
// collected datasets and imports a dataset into the backend database.
package datacollection

import (
	"context"
	"errors"
	"strings"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/events"
)

// ErrNoDataset is returned when the import form names no dataset.
var ErrNoDataset = errors.New("choose a dataset to import")

// Overview is everything the page shows. A failed source leaves its
// error set and its value zero.
type Overview struct {
	Sources  []apiclient.DataSource
	Datasets []apiclient.Dataset
	Stats    apiclient.CollectionStats

	SourcesErr  error
	DatasetsErr error
	StatsErr    error
}

type Service struct {
	backend Backend
	events  events.Publisher
}

func NewService(backend Backend, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{backend: backend, events: pub}
}

// Overview fetches sources, datasets and statistics concurrently.
func (s *Service) Overview(ctx context.Context) *Overview {
	o := &Overview{}
	errs := apiclient.Gather(ctx,
		func(ctx context.Context) (err error) {
			o.Sources, err = s.backend.ListDataSources(ctx)
			return err
		},
		func(ctx context.Context) (err error) {
			o.Datasets, err = s.backend.ListDatasets(ctx)
			return err
		},
		func(ctx context.Context) error {
			stats, err := s.backend.CollectionStatistics(ctx)
			if err == nil && stats != nil {
				o.Stats = *stats
			}
			return err
		},
	)
	o.SourcesErr, o.DatasetsErr, o.StatsErr = errs[0], errs[1], errs[2]
	return o
}

// Import asks the backend to import datasetID.
func (s *Service) Import(ctx context.Context, sessionID, datasetID string) (*apiclient.ImportResult, error) {
	datasetID = strings.TrimSpace(datasetID)
	if datasetID == "" {
		return nil, ErrNoDataset
	}
	res, err := s.backend.ImportToDatabase(ctx, apiclient.ImportRequest{DatasetID: datasetID})
	if err != nil {
		return nil, err
	}
	events.Emit(ctx, s.events, events.New(events.DatasetImported, sessionID, map[string]any{
		"dataset_id": datasetID,
		"status":     res.Status,
		"records":    res.ImportedRecords.Int(),
	}))
	return res, nil
}
