package assessment

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// IntakeDraft holds the patient demographics and risk factors being edited.
type IntakeDraft struct {
	Age           int     `schema:"age" json:"age"`
	Gender        string  `schema:"gender" json:"gender"`
	BMI           float64 `schema:"bmi" json:"bmi"`
	Smoking       bool    `schema:"smoking" json:"smoking"`
	Alcohol       bool    `schema:"alcohol" json:"alcohol"`
	GERD          bool    `schema:"gerd" json:"gerd"`
	FamilyHistory bool    `schema:"family_history" json:"family_history"`
}

// DefaultIntake is the draft a new visitor starts with.
func DefaultIntake() IntakeDraft {
	return IntakeDraft{Age: 60, Gender: "male", BMI: 25}
}

// Genders accepted by the backend.
var Genders = []string{"male", "female", "other"}

// Factors are the boolean risk factors, in display order.
var Factors = []string{"smoking", "alcohol", "gerd", "family_history"}

// Validate checks the ranges the backend accepts.
func (d IntakeDraft) Validate() error {
	if d.Age < 0 || d.Age > 120 {
		return fmt.Errorf("age must be between 0 and 120")
	}
	if d.BMI < 10 || d.BMI > 80 {
		return fmt.Errorf("BMI must be between 10 and 80")
	}
	if !lo.Contains(Genders, d.Gender) {
		return fmt.Errorf("gender must be one of %s", strings.Join(Genders, ", "))
	}
	return nil
}

// Factor reports the value of a boolean risk factor.
func (d IntakeDraft) Factor(name string) bool {
	switch name {
	case "smoking":
		return d.Smoking
	case "alcohol":
		return d.Alcohol
	case "gerd":
		return d.GERD
	case "family_history":
		return d.FamilyHistory
	}
	return false
}

// Toggle flips one boolean risk factor and leaves every other field as is.
func (d *IntakeDraft) Toggle(factor string) error {
	switch factor {
	case "smoking":
		d.Smoking = !d.Smoking
	case "alcohol":
		d.Alcohol = !d.Alcohol
	case "gerd":
		d.GERD = !d.GERD
	case "family_history":
		d.FamilyHistory = !d.FamilyHistory
	default:
		return fmt.Errorf("unknown risk factor %q", factor)
	}
	return nil
}

// RiskRequest builds the risk prediction body. Its fields equal the draft.
func (d IntakeDraft) RiskRequest(patientID string) apiclient.RiskRequest {
	return apiclient.RiskRequest{
		Age:           d.Age,
		Gender:        d.Gender,
		BMI:           d.BMI,
		Smoking:       d.Smoking,
		Alcohol:       d.Alcohol,
		GERD:          d.GERD,
		FamilyHistory: d.FamilyHistory,
		PatientID:     patientID,
	}
}

// StagingDraft holds the tumor staging being edited. TNM codes are opaque
// categorical values.
type StagingDraft struct {
	TStage            string  `schema:"t_stage" json:"t_stage"`
	NStage            string  `schema:"n_stage" json:"n_stage"`
	MStage            string  `schema:"m_stage" json:"m_stage"`
	TumorLengthCM     float64 `schema:"tumor_length_cm" json:"tumor_length_cm"`
	HistologicalGrade string  `schema:"histological_grade" json:"histological_grade"`
}

// DefaultStaging is the staging a new visitor starts with.
func DefaultStaging() StagingDraft {
	return StagingDraft{TStage: "T2", NStage: "N0", MStage: "M0", TumorLengthCM: 3, HistologicalGrade: "G2"}
}

// Allowed staging codes.
var (
	TStages = []string{"Tis", "T1", "T1a", "T1b", "T2", "T3", "T4", "T4a", "T4b", "TX"}
	NStages = []string{"N0", "N1", "N2", "N3", "NX"}
	MStages = []string{"M0", "M1", "MX"}
	Grades  = []string{"G1", "G2", "G3", "GX"}
)

// Validate checks the staging codes and tumor length.
func (d StagingDraft) Validate() error {
	switch {
	case !lo.Contains(TStages, d.TStage):
		return fmt.Errorf("T stage %q is not one of %s", d.TStage, strings.Join(TStages, ", "))
	case !lo.Contains(NStages, d.NStage):
		return fmt.Errorf("N stage %q is not one of %s", d.NStage, strings.Join(NStages, ", "))
	case !lo.Contains(MStages, d.MStage):
		return fmt.Errorf("M stage %q is not one of %s", d.MStage, strings.Join(MStages, ", "))
	case d.TumorLengthCM < 0 || d.TumorLengthCM > 30:
		return fmt.Errorf("tumor length must be between 0 and 30 cm")
	case !lo.Contains(Grades, d.HistologicalGrade):
		return fmt.Errorf("histological grade %q is not one of %s", d.HistologicalGrade, strings.Join(Grades, ", "))
	}
	return nil
}

// TreatmentRequest builds the treatment recommendation body from both drafts
// and the last predicted risk level.
func TreatmentRequest(intake IntakeDraft, staging StagingDraft, patientID, riskLevel string) apiclient.TreatmentRequest {
	return apiclient.TreatmentRequest{
		RiskRequest: intake.RiskRequest(patientID),
		StagingRequest: apiclient.StagingRequest{
			TStage:            staging.TStage,
			NStage:            staging.NStage,
			MStage:            staging.MStage,
			TumorLengthCM:     staging.TumorLengthCM,
			HistologicalGrade: staging.HistologicalGrade,
		},
		RiskLevel: riskLevel,
	}
}

// fingerprint identifies a request body so a cached result can be reused
// while the inputs have not changed.
func fingerprint(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
