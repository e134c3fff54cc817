package synthetic

import (
	"testing"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

func TestGenerateForm_Request(t *testing.T) {
	f := DefaultForm()
	f.Seed = " 42 "
	req, err := f.Request()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Count != 100 || !req.IncludeStaging || req.CancerRatio != 0.3 {
		t.Errorf("unexpected request %+v", req)
	}
	if req.Seed == nil || *req.Seed != 42 {
		t.Errorf("expected seed 42, got %v", req.Seed)
	}

	f.Seed = ""
	req, _ = f.Request()
	if req.Seed != nil {
		t.Errorf("expected no seed, got %d", *req.Seed)
	}
}

func TestGenerateForm_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*GenerateForm)
	}{
		{"zero count", func(f *GenerateForm) { f.Count = 0 }},
		{"count too large", func(f *GenerateForm) { f.Count = MaxCount + 1 }},
		{"negative ratio", func(f *GenerateForm) { f.CancerRatio = -0.1 }},
		{"ratio above one", func(f *GenerateForm) { f.CancerRatio = 1.5 }},
		{"text seed", func(f *GenerateForm) { f.Seed = "abc" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := DefaultForm()
			tt.mutate(&f)
			if _, err := f.Request(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestNewCohort(t *testing.T) {
	res := &apiclient.SyntheticResult{Summary: apiclient.Record{"total": 25.0}}
	for i := 0; i < 25; i++ {
		gender := "male"
		if i%5 == 0 {
			gender = "female"
		}
		res.Patients = append(res.Patients, apiclient.Record{"id": float64(i), "gender": gender, "age": 50.0 + float64(i)})
	}

	c := newCohort(DefaultForm(), res)
	if c.Total != 25 {
		t.Errorf("expected total 25, got %d", c.Total)
	}
	if len(c.Preview) != PreviewRows {
		t.Errorf("expected %d preview rows, got %d", PreviewRows, len(c.Preview))
	}
	if want := []string{"age", "gender", "id"}; len(c.Columns) != 3 || c.Columns[0] != want[0] || c.Columns[2] != want[2] {
		t.Errorf("expected columns %v, got %v", want, c.Columns)
	}
	if c.Counts["gender"]["female"] != 5 || c.Counts["gender"]["male"] != 20 {
		t.Errorf("unexpected gender counts %v", c.Counts["gender"])
	}
	if _, ok := c.Counts["t_stage"]; ok {
		t.Error("expected no t_stage counts for a cohort without staging")
	}
}

func TestRows(t *testing.T) {
	records := []apiclient.Record{{"a": "x", "b": 1.5}, {"a": "y"}}
	got := rows(records, []string{"a", "b"})
	if len(got) != 2 || got[0][1] != "1.5" || got[1][1] != "" {
		t.Errorf("unexpected rows %v", got)
	}
}
