package workflow

import (
	"errors"
	"math"

	"github.com/ecds/dashboard/internal/domain/assessment"
	"github.com/ecds/dashboard/internal/platform/apiclient"
)

// Signals are the draft fields the browser sends on every debounced edit.
// Numbers may arrive as JSON strings, depending on the input.
type Signals struct {
	Age           apiclient.Float `json:"age"`
	Gender        string          `json:"gender"`
	BMI           apiclient.Float `json:"bmi"`
	Smoking       bool            `json:"smoking"`
	Alcohol       bool            `json:"alcohol"`
	GERD          bool            `json:"gerd"`
	FamilyHistory bool            `json:"family_history"`

	TStage            string          `json:"t_stage"`
	NStage            string          `json:"n_stage"`
	MStage            string          `json:"m_stage"`
	TumorLengthCM     apiclient.Float `json:"tumor_length_cm"`
	HistologicalGrade string          `json:"histological_grade"`
}

// SignalsFrom seeds the browser's signals with the current drafts.
func SignalsFrom(st *assessment.State) Signals {
	return Signals{
		Age:               apiclient.Float(st.Intake.Age),
		Gender:            st.Intake.Gender,
		BMI:               apiclient.Float(st.Intake.BMI),
		Smoking:           st.Intake.Smoking,
		Alcohol:           st.Intake.Alcohol,
		GERD:              st.Intake.GERD,
		FamilyHistory:     st.Intake.FamilyHistory,
		TStage:            st.Staging.TStage,
		NStage:            st.Staging.NStage,
		MStage:            st.Staging.MStage,
		TumorLengthCM:     apiclient.Float(st.Staging.TumorLengthCM),
		HistologicalGrade: st.Staging.HistologicalGrade,
	}
}

// Validate rejects values the drafts cannot hold without rounding.
func (s Signals) Validate() error {
	if f := float64(s.Age); f != math.Trunc(f) {
		return errors.New("invalid value for age")
	}
	return nil
}

// Drafts converts the signals back into drafts.
func (s Signals) Drafts() (assessment.IntakeDraft, assessment.StagingDraft) {
	return assessment.IntakeDraft{
			Age:           s.Age.Int(),
			Gender:        s.Gender,
			BMI:           s.BMI.Float64(),
			Smoking:       s.Smoking,
			Alcohol:       s.Alcohol,
			GERD:          s.GERD,
			FamilyHistory: s.FamilyHistory,
		}, assessment.StagingDraft{
			TStage:            s.TStage,
			NStage:            s.NStage,
			MStage:            s.MStage,
			TumorLengthCM:     s.TumorLengthCM.Float64(),
			HistologicalGrade: s.HistologicalGrade,
		}
}
