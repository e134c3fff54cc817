package patient

import (
	"context"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Backend lists the patients known to the CDS API.
type Backend interface {
	ListPatients(ctx context.Context) ([]apiclient.Patient, error)
}
