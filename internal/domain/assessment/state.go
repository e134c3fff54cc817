package assessment

import (
	"github.com/ecds/dashboard/internal/platform/apiclient"
	"github.com/ecds/dashboard/internal/platform/session"
)

const stateKey = "cds"

// State is the visitor's clinical decision support state: both drafts, the
// selected backend patient, and the last results with the fingerprint of the
// request that produced them. The workflow wizard shares it with the CDS page.
type State struct {
	Intake    IntakeDraft  `json:"intake"`
	Staging   StagingDraft `json:"staging"`
	PatientID string       `json:"patient_id,omitempty"`

	Risk         *apiclient.RiskResult      `json:"risk,omitempty"`
	RiskFor      string                     `json:"risk_for,omitempty"`
	Treatment    *apiclient.TreatmentResult `json:"treatment,omitempty"`
	TreatmentFor string                     `json:"treatment_for,omitempty"`
}

// NewState returns the state of a new visitor.
func NewState() *State {
	return &State{Intake: DefaultIntake(), Staging: DefaultStaging()}
}

// LoadState reads the state from the session. A missing or unreadable value
// yields NewState.
func LoadState(s *session.Session) *State {
	st := NewState()
	if ok, err := s.Get(stateKey, st); !ok || err != nil {
		return NewState()
	}
	return st
}

// SaveState writes st to the session.
func SaveState(s *session.Session, st *State) error {
	return s.Put(stateKey, st)
}

// RiskRequest builds the risk prediction body for the current intake.
func (st *State) RiskRequest() apiclient.RiskRequest {
	return st.Intake.RiskRequest(st.PatientID)
}

// TreatmentRequest builds the treatment body for the current drafts, using
// the risk level of a current risk result.
func (st *State) TreatmentRequest() apiclient.TreatmentRequest {
	level := ""
	if st.RiskCurrent() {
		level = st.Risk.RiskLevel
	}
	return TreatmentRequest(st.Intake, st.Staging, st.PatientID, level)
}

// RiskCurrent reports whether the cached risk result was computed from the
// current intake.
func (st *State) RiskCurrent() bool {
	return st.Risk != nil && st.RiskFor == fingerprint(st.RiskRequest())
}

// TreatmentCurrent reports whether the cached treatment result was computed
// from the current drafts.
func (st *State) TreatmentCurrent() bool {
	return st.Treatment != nil && st.TreatmentFor == fingerprint(st.TreatmentRequest())
}

// SetRisk caches r for req. A nil r clears the result.
func (st *State) SetRisk(req apiclient.RiskRequest, r *apiclient.RiskResult) {
	st.Risk, st.RiskFor = r, ""
	if r != nil {
		st.RiskFor = fingerprint(req)
	}
}

// SetTreatment caches r for req. A nil r clears the result.
func (st *State) SetTreatment(req apiclient.TreatmentRequest, r *apiclient.TreatmentResult) {
	st.Treatment, st.TreatmentFor = r, ""
	if r != nil {
		st.TreatmentFor = fingerprint(req)
	}
}

// SelectPatient copies age and gender from a backend patient record into the
// intake draft and remembers the patient id. Fields the record lacks keep
// their draft values; an age of 0 is taken as given.
func (st *State) SelectPatient(p apiclient.Patient) {
	st.PatientID = p.Key()
	if p.HasAge {
		st.Intake.Age = p.Age.Int()
	}
	if g := normalizeGender(p.Gender); g != "" {
		st.Intake.Gender = g
	}
}

func normalizeGender(g string) string {
	switch g {
	case "male", "Male", "M", "m":
		return "male"
	case "female", "Female", "F", "f":
		return "female"
	case "":
		return ""
	default:
		return "other"
	}
}
