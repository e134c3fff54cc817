package imaging

import (
	"context"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Backend lists MRI reports.
type Backend interface {
	ListMRIReports(ctx context.Context, q apiclient.MRIQuery) ([]apiclient.MRIReport, error)
}
