package workflow

import (
	"testing"
)

func TestWizard_MovesByOneWithinBounds(t *testing.T) {
	w := &Wizard{}
	if w.Back() || w.Step != StepIntake {
		t.Fatalf("expected Back on the first step to do nothing, got step %d", w.Step)
	}

	for want := 1; want <= LastStep; want++ {
		prev := w.Step
		if !w.Next() {
			t.Fatalf("expected Next from %d to move", prev)
		}
		if w.Step != want || w.Step-prev != 1 {
			t.Fatalf("expected step %d, got %d", want, w.Step)
		}
	}
	if w.Next() || w.Step != LastStep {
		t.Fatalf("expected Next on the last step to do nothing, got step %d", w.Step)
	}

	for want := LastStep - 1; want >= 0; want-- {
		prev := w.Step
		w.Back()
		if w.Step != want || prev-w.Step != 1 {
			t.Fatalf("expected step %d, got %d", want, w.Step)
		}
	}
}

func TestWizard_AnySequenceStaysInRange(t *testing.T) {
	w := &Wizard{}
	moves := "nnbnnnnnbbbbbbnbnnbnnnnbn"
	for i, m := range moves {
		prev := w.Step
		if m == 'n' {
			w.Next()
		} else {
			w.Back()
		}
		if w.Step < 0 || w.Step > LastStep {
			t.Fatalf("move %d left the range: %d", i, w.Step)
		}
		if d := w.Step - prev; d > 1 || d < -1 {
			t.Fatalf("move %d jumped by %d", i, d)
		}
	}
}

func TestWizard_ClampsStoredStep(t *testing.T) {
	w := &Wizard{Step: 9}
	w.Back()
	if w.Step != LastStep-1 {
		t.Errorf("expected an out of range step to clamp before moving, got %d", w.Step)
	}
	w = &Wizard{Step: -4}
	if w.Name() != "Patient intake" {
		t.Errorf("expected the first step name, got %q", w.Name())
	}
}
