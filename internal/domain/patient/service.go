package patient

import (
	"context"
	"errors"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/pkg/pagination"
)

type Service struct {
	backend Backend
}

func NewService(backend Backend) *Service {
	return &Service{backend: backend}
}

// List fetches the patients, applies q, and returns one page with the total
// number of matches.
func (s *Service) List(ctx context.Context, q Query, pg pagination.Params) ([]apiclient.Patient, int, error) {
	all, err := s.backend.ListPatients(ctx)
	if err != nil {
		return nil, 0, err
	}
	matched := q.Apply(all)
	return pagination.Slice(matched, pg), len(matched), nil
}

// ErrUnknownPatient is returned by Get when the listing has no such patient.
var ErrUnknownPatient = errors.New("patient not found")

// Get fetches the listing and returns the patient with key id.
func (s *Service) Get(ctx context.Context, id string) (apiclient.Patient, error) {
	all, err := s.backend.ListPatients(ctx)
	if err != nil {
		return apiclient.Patient{}, err
	}
	p, ok := Find(all, id)
	if !ok {
		return apiclient.Patient{}, ErrUnknownPatient
	}
	return p, nil
}
