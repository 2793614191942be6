// Package playback holds the pure playback-control logic: the A/B repeat
// state machine and the position tracker that drives it. Nothing here does
// I/O; side effects are expressed as returned intents so the same logic can
// run wherever the audio clock lives.
package playback

import (
	"fmt"

	"kiko-backend/models"
)

// State of the A/B repeat machine.
type State int

const (
	StateEmpty State = iota
	StatePartialA
	StatePartialB
	StateReady
	StateLooping
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StatePartialA:
		return "partial_a"
	case StatePartialB:
		return "partial_b"
	case StateReady:
		return "ready"
	case StateLooping:
		return "looping"
	default:
		return "unknown"
	}
}

// Intent is a side effect the machine wants performed. The caller owns the
// actual seek and notification.
type Intent interface{ intent() }

// SeekTo asks the player to jump to Position.
type SeekTo struct {
	Position float64
}

// LoopComplete reports that the loop hit its repeat budget and deactivated.
type LoopComplete struct {
	Repeats int
}

func (SeekTo) intent()       {}
func (LoopComplete) intent() {}

// Machine is the A/B repeat state machine. Point setters always record the
// value: an inverted pair (a >= b) is a recoverable user state that merely
// blocks activation, not an error.
type Machine struct {
	pointA      *float64
	pointB      *float64
	lastSetWasA bool
	active      bool
	repeatCount int
	maxRepeats  *int
}

func NewMachine() *Machine {
	return &Machine{}
}

// SetPointA records the loop start. If the pair becomes invalid while
// looping, the loop deactivates rather than seeking backwards forever.
func (m *Machine) SetPointA(t float64) {
	m.pointA = &t
	m.lastSetWasA = true
	if m.active && !m.validPair() {
		m.active = false
	}
}

// SetPointB records the loop end, with the same invalid-pair rule.
func (m *Machine) SetPointB(t float64) {
	m.pointB = &t
	m.lastSetWasA = false
	if m.active && !m.validPair() {
		m.active = false
	}
}

// SetMaxRepeats bounds the loop; nil means repeat until cleared.
func (m *Machine) SetMaxRepeats(n *int) {
	m.maxRepeats = n
}

// Activate starts looping. Only valid from Ready.
func (m *Machine) Activate() error {
	if m.State() != StateReady {
		return fmt.Errorf("activate from %s: %w", m.State(), models.ErrInvalidRange)
	}
	m.active = true
	m.repeatCount = 0
	return nil
}

// Deactivate drops back to Ready, keeping both points.
func (m *Machine) Deactivate() {
	m.active = false
}

// Clear resets to Empty from any state.
func (m *Machine) Clear() {
	*m = Machine{}
}

// Tick feeds the current playback position through the machine. While
// looping, crossing point B emits exactly one SeekTo(pointA) and counts a
// repeat; reaching the repeat budget auto-deactivates and emits
// LoopComplete.
func (m *Machine) Tick(position float64) []Intent {
	if !m.active || !m.validPair() {
		return nil
	}
	if position < *m.pointB {
		return nil
	}

	m.repeatCount++
	intents := []Intent{SeekTo{Position: *m.pointA}}

	if m.maxRepeats != nil && m.repeatCount >= *m.maxRepeats {
		m.active = false
		intents = append(intents, LoopComplete{Repeats: m.repeatCount})
	}
	return intents
}

// State derives the machine state from its recorded points.
func (m *Machine) State() State {
	switch {
	case m.pointA == nil && m.pointB == nil:
		return StateEmpty
	case m.pointA != nil && m.pointB == nil:
		return StatePartialA
	case m.pointA == nil:
		return StatePartialB
	case !m.validPair():
		// Both points set but inverted: report the side set last so the
		// client knows which point still needs correcting.
		if m.lastSetWasA {
			return StatePartialA
		}
		return StatePartialB
	case m.active:
		return StateLooping
	default:
		return StateReady
	}
}

// RepeatCount reports completed boundary crossings for the current
// activation.
func (m *Machine) RepeatCount() int { return m.repeatCount }

// Points returns the recorded loop points; nil means unset.
func (m *Machine) Points() (a, b *float64) { return m.pointA, m.pointB }

func (m *Machine) validPair() bool {
	return m.pointA != nil && m.pointB != nil && *m.pointA < *m.pointB
}

// ValidateLoop checks loop bounds the way the machine would: both
// non-negative and strictly ordered. Used by the session manager before
// persisting a loop request.
func ValidateLoop(start, end float64) error {
	if start < 0 || end < 0 || start >= end {
		return fmt.Errorf("loop [%.3f, %.3f]: %w", start, end, models.ErrInvalidRange)
	}
	return nil
}
