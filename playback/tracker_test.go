package playback

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func TestTracker_SeekIntentForwarded(t *testing.T) {
	m := NewMachine()
	m.SetPointA(2.0)
	m.SetPointB(5.0)
	m.Activate()

	var seeks []float64
	tr := NewTracker(m, nil, func(pos float64) { seeks = append(seeks, pos) }, nil, testLogger())

	now := time.Now()
	for i, pos := range []float64{2.0, 3.0, 5.1} {
		tr.step(context.Background(), now.Add(time.Duration(i)*tr.tickEvery), pos, true)
	}

	if len(seeks) != 1 || seeks[0] != 2.0 {
		t.Errorf("seeks = %v, want [2.0]", seeks)
	}
}

func TestTracker_PersistsOnInterval(t *testing.T) {
	var persisted []float64
	sink := func(_ context.Context, pos float64) error {
		persisted = append(persisted, pos)
		return nil
	}
	tr := NewTracker(NewMachine(), nil, nil, sink, testLogger())

	base := time.Now()
	// Three ticks inside one persist window, a fourth past it.
	tr.step(context.Background(), base, 1.0, true)
	tr.step(context.Background(), base.Add(time.Second), 2.0, true)
	tr.step(context.Background(), base.Add(2*time.Second), 3.0, true)
	tr.step(context.Background(), base.Add(tr.persistEvery+3*time.Second), 9.0, true)

	// First tick persists immediately (lastPersist zero), then the window
	// suppresses the next two.
	if len(persisted) != 2 {
		t.Fatalf("persist calls = %d, want 2 (%v)", len(persisted), persisted)
	}
	if persisted[1] != 9.0 {
		t.Errorf("second persist = %v, want 9.0", persisted[1])
	}
}

func TestTracker_PausedEmitsNothing(t *testing.T) {
	calls := 0
	sink := func(context.Context, float64) error {
		calls++
		return nil
	}
	m := NewMachine()
	m.SetPointA(0.0)
	m.SetPointB(1.0)
	m.Activate()

	tr := NewTracker(m, nil, func(float64) { calls++ }, sink, testLogger())
	tr.step(context.Background(), time.Now(), 5.0, false)

	if calls != 0 {
		t.Errorf("paused tick produced %d side effects, want 0", calls)
	}
}

func TestTracker_PersistFailureIsDropped(t *testing.T) {
	sink := func(context.Context, float64) error {
		return errors.New("db down")
	}
	tr := NewTracker(NewMachine(), nil, nil, sink, testLogger())

	// Must not panic or propagate; next window retries implicitly.
	tr.step(context.Background(), time.Now(), 1.0, true)
}
