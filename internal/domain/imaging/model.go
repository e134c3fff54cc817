// Package imaging lists MRI reports from the backend, shows one report and
// exports a filtered listing as CSV.
package imaging

import (
	"sort"
	"strconv"
	"strings"

	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Sorts accepted by the report listing. The empty sort is newest first.
var Sorts = []string{"date", "-date", "patient"}

// Statuses offered by the status filter.
var Statuses = []string{"pending", "preliminary", "final", "amended"}

// Query filters and orders the report listing.
type Query struct {
	PatientID string `schema:"patient_id"`
	Status    string `schema:"status"`
	Sort      string `schema:"sort"`
}

// Backend returns the filter passed on to the backend.
func (q Query) Backend() apiclient.MRIQuery {
	return apiclient.MRIQuery{PatientID: strings.TrimSpace(q.PatientID), Status: q.Status}
}

// Apply filters reports by q and orders them. The backend may ignore its
// filters, so they are applied again here.
func (q Query) Apply(reports []apiclient.MRIReport) []apiclient.MRIReport {
	pid := strings.TrimSpace(q.PatientID)
	out := lo.Filter(reports, func(r apiclient.MRIReport, _ int) bool {
		if pid != "" && !strings.EqualFold(r.PatientID.String(), pid) {
			return false
		}
		return q.Status == "" || strings.EqualFold(r.Status, q.Status)
	})

	switch q.Sort {
	case "patient":
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].PatientID != out[j].PatientID {
				return out[i].PatientID < out[j].PatientID
			}
			return out[i].StudyDate > out[j].StudyDate
		})
	case "date":
		sort.SliceStable(out, func(i, j int) bool { return out[i].StudyDate < out[j].StudyDate })
	default:
		sort.SliceStable(out, func(i, j int) bool { return out[i].StudyDate > out[j].StudyDate })
	}
	return out
}

// csvHeader and csvRow lay reports out for the export.
var csvHeader = []string{
	"id", "patient_id", "study_date", "status", "body_part", "sequence_type",
	"tumor_size_cm", "findings", "impression", "radiologist",
}

func csvRow(r apiclient.MRIReport) []string {
	size := ""
	if r.TumorSizeCM != 0 {
		size = strconv.FormatFloat(r.TumorSizeCM.Float64(), 'f', -1, 64)
	}
	return []string{
		r.ID.String(), r.PatientID.String(), r.StudyDate, r.Status, r.BodyPart, r.SequenceType,
		size, r.Findings, r.Impression, r.Radiologist,
	}
}
