package playback

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// PositionSource reports the current playback position and whether audio is
// playing. The tracker polls it on every tick.
type PositionSource func() (position float64, playing bool)

// SeekFunc executes a seek intent emitted by the loop machine.
type SeekFunc func(position float64)

// ProgressSink persists a progress tick. Failures are logged and dropped;
// the next tick supersedes the lost one.
type ProgressSink func(ctx context.Context, position float64) error

// Tracker drives periodic progress persistence and loop enforcement from a
// time source. It owns no playback state itself: position comes from the
// source, loop decisions from the machine.
type Tracker struct {
	machine *Machine
	source  PositionSource
	seek    SeekFunc
	persist ProgressSink
	log     *logrus.Logger

	tickEvery      time.Duration
	persistEvery   time.Duration
	persistTimeout time.Duration

	lastPersist time.Time
}

func NewTracker(machine *Machine, source PositionSource, seek SeekFunc, persist ProgressSink, log *logrus.Logger) *Tracker {
	return &Tracker{
		machine:        machine,
		source:         source,
		seek:           seek,
		persist:        persist,
		log:            log,
		tickEvery:      250 * time.Millisecond,
		persistEvery:   5 * time.Second,
		persistTimeout: 2 * time.Second,
	}
}

// Run polls the position source until the context is cancelled.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.tickEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			position, playing := t.source()
			t.step(ctx, now, position, playing)
		}
	}
}

// step is one tick of the tracker: feed the loop machine, act on its
// intents, and persist progress on the persistence interval.
func (t *Tracker) step(ctx context.Context, now time.Time, position float64, playing bool) {
	if !playing {
		return
	}

	for _, intent := range t.machine.Tick(position) {
		switch v := intent.(type) {
		case SeekTo:
			if t.seek != nil {
				t.seek(v.Position)
			}
		case LoopComplete:
			t.log.WithField("repeats", v.Repeats).Info("loop complete")
		}
	}

	if t.persist == nil || now.Sub(t.lastPersist) < t.persistEvery {
		return
	}
	t.lastPersist = now

	pctx, cancel := context.WithTimeout(ctx, t.persistTimeout)
	defer cancel()
	if err := t.persist(pctx, position); err != nil {
		// A lost progress tick is not user-visible; the next one wins.
		t.log.WithError(err).Debug("progress persist dropped")
	}
}
