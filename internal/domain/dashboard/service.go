// Package dashboard is the landing page: an overview of patients, CDS
// services, and ML models fetched side by side.
package dashboard

import (
	"context"

	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Backend is the part of the CDS API the overview reads.
type Backend interface {
	ListPatients(ctx context.Context) ([]apiclient.Patient, error)
	ListServices(ctx context.Context) ([]apiclient.Service, error)
	ListModels(ctx context.Context, q apiclient.ModelQuery) ([]apiclient.Model, error)
}

// Overview holds each source's listing and the error that replaced it, if
// any. A failed source leaves its listing empty, except services, which fall
// back to the canned list.
type Overview struct {
	Patients []apiclient.Patient
	Services []apiclient.Service
	Models   []apiclient.Model

	PatientsErr error
	ServicesErr error
	ModelsErr   error
}

// PatientRecords turns the patients into records for the distribution chart.
func (o *Overview) PatientRecords() []apiclient.Record {
	return lo.Map(o.Patients, func(p apiclient.Patient, _ int) apiclient.Record {
		rec := apiclient.Record{}
		if p.RiskLevel != "" {
			rec["risk_level"] = p.RiskLevel
		}
		return rec
	})
}

// DeployedModels counts the models whose status is active or deployed.
func (o *Overview) DeployedModels() int {
	return lo.CountBy(o.Models, func(m apiclient.Model) bool {
		return m.Status == "active" || m.Status == "deployed" || m.Status == "production"
	})
}

type Service struct {
	backend Backend
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

// Overview fetches the three listings concurrently and tolerates individual
// failures.
func (s *Service) Overview(ctx context.Context) *Overview {
	o := &Overview{}
	errs := apiclient.Gather(ctx,
		func(ctx context.Context) (err error) {
			o.Patients, err = s.backend.ListPatients(ctx)
			return err
		},
		func(ctx context.Context) (err error) {
			o.Services, err = s.backend.ListServices(ctx)
			return err
		},
		func(ctx context.Context) (err error) {
			o.Models, err = s.backend.ListModels(ctx, apiclient.ModelQuery{})
			return err
		},
	)
	o.PatientsErr, o.ServicesErr, o.ModelsErr = errs[0], errs[1], errs[2]

	if o.PatientsErr != nil {
		o.Patients = nil
	}
	if o.ModelsErr != nil {
		o.Models = nil
	}
	if o.ServicesErr != nil || len(o.Services) == 0 {
		o.Services = apiclient.CannedServices()
	}
	return o
}
