package synthetic

import (
	"context"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Backend generates synthetic cohorts.
type Backend interface {
	GenerateSynthetic(ctx context.Context, req apiclient.SyntheticRequest) (*apiclient.SyntheticResult, error)
}
