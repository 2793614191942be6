package playback

import (
	"errors"
	"testing"

	"kiko-backend/models"
)

func intPtr(n int) *int { return &n }

func TestMachine_StateTransitions(t *testing.T) {
	m := NewMachine()
	if m.State() != StateEmpty {
		t.Fatalf("initial state = %s, want empty", m.State())
	}

	m.SetPointA(2.0)
	if m.State() != StatePartialA {
		t.Errorf("after SetPointA = %s, want partial_a", m.State())
	}

	m.SetPointB(5.0)
	if m.State() != StateReady {
		t.Errorf("after SetPointB = %s, want ready", m.State())
	}

	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if m.State() != StateLooping {
		t.Errorf("after Activate = %s, want looping", m.State())
	}

	m.Clear()
	if m.State() != StateEmpty {
		t.Errorf("after Clear = %s, want empty", m.State())
	}
}

func TestMachine_PointBFirst(t *testing.T) {
	m := NewMachine()
	m.SetPointB(5.0)
	if m.State() != StatePartialB {
		t.Errorf("state = %s, want partial_b", m.State())
	}
	m.SetPointA(2.0)
	if m.State() != StateReady {
		t.Errorf("state = %s, want ready", m.State())
	}
}

func TestMachine_InvertedPointsAreRecoverable(t *testing.T) {
	m := NewMachine()
	m.SetPointA(5.0)
	m.SetPointB(2.0) // inverted: recorded, but not activatable

	if err := m.Activate(); !errors.Is(err, models.ErrInvalidRange) {
		t.Errorf("Activate on inverted pair = %v, want ErrInvalidRange", err)
	}

	// Correcting either point recovers without clearing.
	m.SetPointB(7.0)
	if m.State() != StateReady {
		t.Errorf("state after correction = %s, want ready", m.State())
	}
	if err := m.Activate(); err != nil {
		t.Errorf("Activate after correction: %v", err)
	}
}

func TestMachine_ActivateFromEmpty(t *testing.T) {
	m := NewMachine()
	if err := m.Activate(); !errors.Is(err, models.ErrInvalidRange) {
		t.Errorf("Activate from empty = %v, want ErrInvalidRange", err)
	}
}

func TestMachine_TickEmitsSingleSeek(t *testing.T) {
	m := NewMachine()
	m.SetPointA(2.0)
	m.SetPointB(5.0)
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	var seeks []float64
	for _, pos := range []float64{2.0, 3.0, 5.1} {
		for _, intent := range m.Tick(pos) {
			if s, ok := intent.(SeekTo); ok {
				seeks = append(seeks, s.Position)
			}
		}
	}

	if len(seeks) != 1 {
		t.Fatalf("seek intents = %d, want exactly 1", len(seeks))
	}
	if seeks[0] != 2.0 {
		t.Errorf("seek target = %v, want 2.0", seeks[0])
	}
	if m.RepeatCount() != 1 {
		t.Errorf("repeat count = %d, want 1", m.RepeatCount())
	}
	if m.State() != StateLooping {
		t.Errorf("state = %s, want still looping", m.State())
	}
}

func TestMachine_MaxRepeatsAutoDeactivates(t *testing.T) {
	m := NewMachine()
	m.SetPointA(2.0)
	m.SetPointB(5.0)
	m.SetMaxRepeats(intPtr(2))
	if err := m.Activate(); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	// First crossing: loop back, still active.
	intents := m.Tick(5.2)
	if len(intents) != 1 {
		t.Fatalf("first crossing intents = %d, want 1", len(intents))
	}
	if m.State() != StateLooping {
		t.Errorf("state after first crossing = %s, want looping", m.State())
	}

	// Second crossing: budget reached, deactivate with LoopComplete.
	intents = m.Tick(5.2)
	if len(intents) != 2 {
		t.Fatalf("second crossing intents = %d, want 2", len(intents))
	}
	if _, ok := intents[0].(SeekTo); !ok {
		t.Errorf("first intent = %T, want SeekTo", intents[0])
	}
	done, ok := intents[1].(LoopComplete)
	if !ok {
		t.Fatalf("second intent = %T, want LoopComplete", intents[1])
	}
	if done.Repeats != 2 {
		t.Errorf("completed repeats = %d, want 2", done.Repeats)
	}
	if m.State() != StateReady {
		t.Errorf("state after budget = %s, want ready", m.State())
	}

	// Further ticks are inert.
	if extra := m.Tick(5.2); extra != nil {
		t.Errorf("tick after deactivation = %v, want nil", extra)
	}
}

func TestMachine_TickBeforeBoundary(t *testing.T) {
	m := NewMachine()
	m.SetPointA(2.0)
	m.SetPointB(5.0)
	m.Activate()

	if intents := m.Tick(4.999); intents != nil {
		t.Errorf("tick before boundary = %v, want nil", intents)
	}
}

func TestMachine_EditingPointWhileLooping(t *testing.T) {
	m := NewMachine()
	m.SetPointA(2.0)
	m.SetPointB(5.0)
	m.Activate()

	// Shrinking the loop keeps it active.
	m.SetPointB(4.0)
	if m.State() != StateLooping {
		t.Errorf("state after valid edit = %s, want looping", m.State())
	}

	// Making the pair invalid deactivates instead of seeking forever.
	m.SetPointB(1.0)
	if m.State() == StateLooping {
		t.Error("invalid pair must not keep looping")
	}
	if intents := m.Tick(10.0); intents != nil {
		t.Errorf("tick on invalid pair = %v, want nil", intents)
	}
}

func TestValidateLoop(t *testing.T) {
	if err := ValidateLoop(2.0, 5.0); err != nil {
		t.Errorf("valid loop rejected: %v", err)
	}
	for _, c := range [][2]float64{{5, 2}, {2, 2}, {-1, 5}, {0, -3}} {
		if err := ValidateLoop(c[0], c[1]); !errors.Is(err, models.ErrInvalidRange) {
			t.Errorf("ValidateLoop(%v, %v) = %v, want ErrInvalidRange", c[0], c[1], err)
		}
	}
}
