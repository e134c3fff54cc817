package datacollection

import (
	"context"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Backend is the data collection part of the CDS backend.
type Backend interface {
	ListDataSources(ctx context.Context) ([]apiclient.DataSource, error)
	ListDatasets(ctx context.Context) ([]apiclient.Dataset, error)
	CollectionStatistics(ctx context.Context) (*apiclient.CollectionStats, error)
	ImportToDatabase(ctx context.Context, req apiclient.ImportRequest) (*apiclient.ImportResult, error)
}
