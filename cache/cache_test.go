package cache

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

// flakyBackend fails every call while down is true.
type flakyBackend struct {
	inner *MemoryBackend
	down  bool
}

var errBackendDown = errors.New("backend down")

func (f *flakyBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.down {
		return nil, false, errBackendDown
	}
	return f.inner.Get(ctx, key)
}

func (f *flakyBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if f.down {
		return errBackendDown
	}
	return f.inner.Set(ctx, key, value, ttl)
}

func (f *flakyBackend) Delete(ctx context.Context, key string) error {
	if f.down {
		return errBackendDown
	}
	return f.inner.Delete(ctx, key)
}

func TestMemoryBackend_RoundTrip(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	if err := b.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	val, ok, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if string(val) != "v" {
		t.Errorf("value = %q, want %q", val, "v")
	}
}

func TestMemoryBackend_Expiry(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	if err := b.Set(ctx, "k", []byte("v"), time.Nanosecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	_, ok, err := b.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected expired entry to miss")
	}
}

func TestMemoryBackend_Delete(t *testing.T) {
	ctx := context.Background()
	b := NewMemoryBackend()

	b.Set(ctx, "k", []byte("v"), 0)
	if err := b.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := b.Get(ctx, "k"); ok {
		t.Error("expected miss after delete")
	}
}

func TestFallback_ServesWhilePrimaryDown(t *testing.T) {
	ctx := context.Background()
	primary := &flakyBackend{inner: NewMemoryBackend()}
	f := NewFallback(primary, testLogger())

	// Healthy write lands in both primary and the memory twin.
	if err := f.Set(ctx, "k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}

	primary.down = true

	val, ok, err := f.Get(ctx, "k")
	if err != nil {
		t.Fatalf("Get during outage: %v", err)
	}
	if !ok || string(val) != "v" {
		t.Fatalf("Get during outage = (%q, %v), want (v, true)", val, ok)
	}

	// Writes during the outage must succeed and stay readable.
	if err := f.Set(ctx, "k2", []byte("v2"), time.Minute); err != nil {
		t.Fatalf("Set during outage: %v", err)
	}
	val, ok, _ = f.Get(ctx, "k2")
	if !ok || string(val) != "v2" {
		t.Fatalf("round-trip during outage = (%q, %v), want (v2, true)", val, ok)
	}
}

func TestFallback_RecoversToPrimary(t *testing.T) {
	ctx := context.Background()
	primary := &flakyBackend{inner: NewMemoryBackend()}
	f := NewFallback(primary, testLogger())

	primary.down = true
	f.Set(ctx, "k", []byte("v"), time.Minute)
	primary.down = false

	// Primary is back: reads go through it again.
	if err := f.Set(ctx, "k", []byte("fresh"), time.Minute); err != nil {
		t.Fatalf("Set after recovery: %v", err)
	}
	val, ok, _ := primary.inner.Get(ctx, "k")
	if !ok || string(val) != "fresh" {
		t.Errorf("primary after recovery = (%q, %v), want (fresh, true)", val, ok)
	}
}

func TestManager_JSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryBackend())

	type payload struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}

	in := payload{Name: "stream", Value: 3.5}
	if err := m.SetJSON(ctx, StreamInfoKey("s1", "medium"), in, StreamInfoTTL); err != nil {
		t.Fatalf("SetJSON: %v", err)
	}

	var out payload
	ok, err := m.GetJSON(ctx, StreamInfoKey("s1", "medium"), &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !ok {
		t.Fatal("expected hit")
	}
	if out != in {
		t.Errorf("round-trip = %+v, want %+v", out, in)
	}
}

func TestManager_CorruptEntryIsMiss(t *testing.T) {
	ctx := context.Background()
	backend := NewMemoryBackend()
	m := NewManager(backend)

	backend.Set(ctx, "bad", []byte("{not json"), 0)

	var out map[string]any
	ok, err := m.GetJSON(ctx, "bad", &out)
	if err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if ok {
		t.Error("corrupt entry should read as a miss")
	}
}

func TestKeyNamespacing(t *testing.T) {
	if got := StreamInfoKey("abc", "high"); got != "audio:stream:abc:high" {
		t.Errorf("StreamInfoKey = %q", got)
	}
	if got := SessionKey("s"); got != "audio:session:s" {
		t.Errorf("SessionKey = %q", got)
	}
	if got := PrepareStatusKey("abc"); got != "audio:prepare:abc" {
		t.Errorf("PrepareStatusKey = %q", got)
	}
	if got := MappingKey("sent"); got != "mapping:sentence:sent" {
		t.Errorf("MappingKey = %q", got)
	}
}
