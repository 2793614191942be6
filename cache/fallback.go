package cache

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Fallback wraps a primary backend and transparently serves from a memory
// twin while the primary is unreachable. Callers never see the switch; the
// transition is logged once per direction so a flapping Redis does not spam.
type Fallback struct {
	primary  Backend
	memory   *MemoryBackend
	log      *logrus.Logger
	degraded atomic.Bool
}

func NewFallback(primary Backend, log *logrus.Logger) *Fallback {
	return &Fallback{
		primary: primary,
		memory:  NewMemoryBackend(),
		log:     log,
	}
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, ok, err := f.primary.Get(ctx, key)
	if err != nil {
		f.markDegraded(err)
		return f.memory.Get(ctx, key)
	}
	f.markHealthy()
	return val, ok, nil
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	// Mirror every write into memory so a later primary outage still has
	// recent entries to serve.
	_ = f.memory.Set(ctx, key, value, ttl)

	if err := f.primary.Set(ctx, key, value, ttl); err != nil {
		f.markDegraded(err)
		return nil
	}
	f.markHealthy()
	return nil
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	_ = f.memory.Delete(ctx, key)

	if err := f.primary.Delete(ctx, key); err != nil {
		f.markDegraded(err)
		return nil
	}
	f.markHealthy()
	return nil
}

func (f *Fallback) markDegraded(err error) {
	if f.degraded.CompareAndSwap(false, true) {
		f.log.WithError(err).Warn("cache backend unreachable, serving from memory fallback")
	}
}

func (f *Fallback) markHealthy() {
	if f.degraded.CompareAndSwap(true, false) {
		f.log.Info("cache backend recovered")
	}
}
