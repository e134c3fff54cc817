// Package synthetic generates synthetic patient cohorts through the backend
// and exports them as CSV.
package synthetic

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/render"
)

// MaxCount is the largest cohort the form accepts.
const MaxCount = 10000

// PreviewRows is how many generated patients the page shows.
const PreviewRows = 20

// DistributionFields are charted when the cohort carries them.
var DistributionFields = []string{"gender", "risk_level", "t_stage"}

// GenerateForm is the generation form.
type GenerateForm struct {
	Count          int     `schema:"count" json:"count"`
	Seed           string  `schema:"seed" json:"seed"`
	IncludeStaging bool    `schema:"include_staging" json:"include_staging"`
	CancerRatio    float64 `schema:"cancer_ratio" json:"cancer_ratio"`
}

// DefaultForm is the form a new visitor sees.
func DefaultForm() GenerateForm {
	return GenerateForm{Count: 100, IncludeStaging: true, CancerRatio: 0.3}
}

// Request validates the form and builds the generation body.
func (f GenerateForm) Request() (apiclient.SyntheticRequest, error) {
	req := apiclient.SyntheticRequest{
		Count:          f.Count,
		IncludeStaging: f.IncludeStaging,
		CancerRatio:    f.CancerRatio,
	}
	if f.Count < 1 || f.Count > MaxCount {
		return req, errors.New("number of patients must be between 1 and 10000")
	}
	if f.CancerRatio < 0 || f.CancerRatio > 1 {
		return req, errors.New("cancer ratio must be between 0 and 1")
	}
	if s := strings.TrimSpace(f.Seed); s != "" {
		seed, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return req, errors.New("seed must be a whole number")
		}
		req.Seed = &seed
	}
	return req, nil
}

// Cohort is what the session keeps of the last generated set. The full set
// lives in the blob store under BlobID.
type Cohort struct {
	BlobID   string                    `json:"blob_id"`
	Form     GenerateForm              `json:"form"`
	Total    int                       `json:"total"`
	Columns  []string                  `json:"columns"`
	Preview  []apiclient.Record        `json:"preview"`
	Summary  apiclient.Record          `json:"summary,omitempty"`
	Counts   map[string]map[string]int `json:"counts,omitempty"`
	ExportID string                    `json:"export_id,omitempty"`
}

// newCohort summarizes a generated set.
func newCohort(f GenerateForm, res *apiclient.SyntheticResult) *Cohort {
	c := &Cohort{
		Form:    f,
		Total:   len(res.Patients),
		Columns: columns(res.Patients),
		Preview: res.Patients[:min(PreviewRows, len(res.Patients))],
		Summary: res.Summary,
		Counts:  map[string]map[string]int{},
	}
	for _, field := range DistributionFields {
		present := lo.ContainsBy(res.Patients, func(r apiclient.Record) bool { return r.String(field) != "" })
		if present {
			c.Counts[field] = render.Counts(res.Patients, field)
		}
	}
	return c
}

// columns is the sorted union of the records' keys.
func columns(records []apiclient.Record) []string {
	keys := lo.Uniq(lo.FlatMap(records, func(r apiclient.Record, _ int) []string { return r.Keys() }))
	sort.Strings(keys)
	return keys
}

// rows lays records out under cols.
func rows(records []apiclient.Record, cols []string) [][]string {
	return lo.Map(records, func(r apiclient.Record, _ int) []string {
		return lo.Map(cols, func(col string, _ int) string { return r.String(col) })
	})
}
