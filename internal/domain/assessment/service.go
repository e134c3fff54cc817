package assessment

import (
	"context"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/events"
)

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

// Assess requests a risk prediction for the current intake. On failure the
// cached result is cleared and the error returned.
func (s *Service) Assess(ctx context.Context, sessionID string, st *State) error {
	req := st.RiskRequest()
	res, err := s.backend.PredictRisk(ctx, req)
	if err != nil {
		st.SetRisk(req, nil)
		return err
	}
	st.SetRisk(req, res)

	events.Emit(ctx, s.events, events.New(events.RiskPredicted, sessionID, map[string]any{
		"risk_level":    res.RiskLevel,
		"model_version": res.ModelVersion,
		"patient_id":    st.PatientID,
	}))
	return nil
}

// Recommend requests a treatment recommendation for the current drafts.
func (s *Service) Recommend(ctx context.Context, sessionID string, st *State) error {
	req := st.TreatmentRequest()
	res, err := s.backend.RecommendTreatment(ctx, req)
	if err != nil {
		st.SetTreatment(req, nil)
		return err
	}
	st.SetTreatment(req, res)

	events.Emit(ctx, s.events, events.New(events.TreatmentRecommended, sessionID, map[string]any{
		"stage":      res.Stage,
		"treatments": len(res.Treatments),
		"risk_level": req.RiskLevel,
		"patient_id": st.PatientID,
	}))
	return nil
}

// EnsureRisk calls Assess unless the cached result matches the current
// intake. It reports whether the backend was called.
func (s *Service) EnsureRisk(ctx context.Context, sessionID string, st *State) (bool, error) {
	if st.RiskCurrent() {
		return false, nil
	}
	return true, s.Assess(ctx, sessionID, st)
}

// EnsureTreatment calls Recommend unless the cached result matches the
// current drafts.
func (s *Service) EnsureTreatment(ctx context.Context, sessionID string, st *State) (bool, error) {
	if st.TreatmentCurrent() {
		return false, nil
	}
	return true, s.Recommend(ctx, sessionID, st)
}

// Services lists the CDS services. When the listing fails or is empty the
// canned list is returned together with the error, if any.
func (s *Service) Services(ctx context.Context) ([]apiclient.Service, error) {
	list, err := s.backend.ListServices(ctx)
	if err != nil || len(list) == 0 {
		return apiclient.CannedServices(), err
	}
	return list, nil
}
