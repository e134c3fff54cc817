// Package workflow is the four step clinical wizard: intake, staging, risk
// assessment, treatment plan. It shares its drafts and results with the CDS
// page.
package workflow

import (
	"github.com/ecds/dashboard/internal/platform/session"
)

// Steps of the wizard.
const (
	StepIntake = iota
	StepStaging
	StepRisk
	StepTreatment
)

// LastStep is the index of the final step.
const LastStep = StepTreatment

// StepNames label the steps in order.
var StepNames = []string{"Patient intake", "Tumor staging", "Risk assessment", "Treatment plan"}

const wizardKey = "workflow"

// Wizard tracks the active step. Next and Back move by exactly one and stop
// at the ends.
type Wizard struct {
	Step int `json:"step"`
}

// Next advances one step. It reports false on the last step.
func (w *Wizard) Next() bool {
	w.clamp()
	if w.Step >= LastStep {
		return false
	}
	w.Step++
	return true
}

// Back returns one step. It reports false on the first step.
func (w *Wizard) Back() bool {
	w.clamp()
	if w.Step <= StepIntake {
		return false
	}
	w.Step--
	return true
}

// Name returns the label of the active step.
func (w *Wizard) Name() string {
	w.clamp()
	return StepNames[w.Step]
}

func (w *Wizard) clamp() {
	if w.Step < StepIntake {
		w.Step = StepIntake
	}
	if w.Step > LastStep {
		w.Step = LastStep
	}
}

// LoadWizard reads the wizard from the session, starting at the first step
// when none is stored.
func LoadWizard(s *session.Session) *Wizard {
	w := &Wizard{}
	if ok, err := s.Get(wizardKey, w); !ok || err != nil {
		return &Wizard{}
	}
	w.clamp()
	return w
}

// SaveWizard writes w to the session.
func SaveWizard(s *session.Session, w *Wizard) error {
	return s.Put(wizardKey, w)
}
