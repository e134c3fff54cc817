package assessment

import (
	"context"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Backend is the part of the CDS API the assessment pages call.
// *apiclient.Client satisfies it.
type Backend interface {
	PredictRisk(ctx context.Context, req apiclient.RiskRequest) (*apiclient.RiskResult, error)
	RecommendTreatment(ctx context.Context, req apiclient.TreatmentRequest) (*apiclient.TreatmentResult, error)
	ListServices(ctx context.Context) ([]apiclient.Service, error)
}
