package patient

import (
	"testing"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

func samplePatients() []apiclient.Patient {
	return []apiclient.Patient{
		{ID: "3", Name: "Carol Diaz", Age: 71, HasAge: true, Gender: "female"},
		{ID: "1", FirstName: "alan", LastName: "Byrne", Age: 45, HasAge: true, Gender: "male"},
		{PatientID: "2", Name: "Bea Ng", Age: 58, HasAge: true, Gender: "female"},
	}
}

func keys(ps []apiclient.Patient) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Key()
	}
	return out
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQuery_Sort(t *testing.T) {
	tests := []struct {
		sort string
		want []string
	}{
		{"", []string{"3", "1", "2"}},
		{"name", []string{"1", "2", "3"}},
		{"age", []string{"1", "2", "3"}},
		{"-age", []string{"3", "2", "1"}},
		{"id", []string{"1", "2", "3"}},
	}
	for _, tt := range tests {
		t.Run(tt.sort, func(t *testing.T) {
			got := keys(Query{Sort: tt.sort}.Apply(samplePatients()))
			if !equal(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestQuery_FilterIsCaseInsensitive(t *testing.T) {
	got := keys(Query{Q: "  BYR "}.Apply(samplePatients()))
	if !equal(got, []string{"1"}) {
		t.Errorf("expected [1], got %v", got)
	}
	got = keys(Query{Q: "2"}.Apply(samplePatients()))
	if !equal(got, []string{"2"}) {
		t.Errorf("expected id match [2], got %v", got)
	}
}

func TestQuery_ApplyLeavesInputAlone(t *testing.T) {
	in := samplePatients()
	Query{Sort: "id"}.Apply(in)
	if !equal(keys(in), []string{"3", "1", "2"}) {
		t.Errorf("expected input order kept, got %v", keys(in))
	}
}

func TestFind(t *testing.T) {
	if p, ok := Find(samplePatients(), "2"); !ok || p.Name != "Bea Ng" {
		t.Errorf("expected Bea Ng, got %+v ok=%v", p, ok)
	}
	if _, ok := Find(samplePatients(), "9"); ok {
		t.Error("expected no match")
	}
}
