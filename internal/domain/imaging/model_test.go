package imaging

import (
	"testing"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

func sampleReports() []apiclient.MRIReport {
	return []apiclient.MRIReport{
		{ID: "r1", PatientID: "P2", StudyDate: "2024-01-10", Status: "final"},
		{ID: "r2", PatientID: "P1", StudyDate: "2024-03-05", Status: "preliminary"},
		{ID: "r3", PatientID: "P1", StudyDate: "2023-11-20", Status: "final"},
	}
}

func ids(reports []apiclient.MRIReport) []string {
	out := make([]string, len(reports))
	for i, r := range reports {
		out[i] = r.ID.String()
	}
	return out
}

func TestQuery_Apply(t *testing.T) {
	tests := []struct {
		name string
		q    Query
		want []string
	}{
		{"newest first by default", Query{}, []string{"r2", "r1", "r3"}},
		{"oldest first", Query{Sort: "date"}, []string{"r3", "r1", "r2"}},
		{"by patient", Query{Sort: "patient"}, []string{"r2", "r3", "r1"}},
		{"patient filter", Query{PatientID: " p1 "}, []string{"r2", "r3"}},
		{"status filter", Query{Status: "final"}, []string{"r1", "r3"}},
		{"both filters", Query{PatientID: "P1", Status: "final"}, []string{"r3"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(tt.q.Apply(sampleReports()))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("expected %v, got %v", tt.want, got)
				}
			}
		})
	}
}

func TestCSVRow(t *testing.T) {
	row := csvRow(apiclient.MRIReport{ID: "r1", PatientID: "P1", TumorSizeCM: 3.5, Findings: "mass, distal"})
	if len(row) != len(csvHeader) {
		t.Fatalf("expected %d columns, got %d", len(csvHeader), len(row))
	}
	if row[6] != "3.5" || row[7] != "mass, distal" {
		t.Errorf("unexpected row %v", row)
	}
	if empty := csvRow(apiclient.MRIReport{ID: "r2"}); empty[6] != "" {
		t.Errorf("expected an empty size, got %q", empty[6])
	}
}
