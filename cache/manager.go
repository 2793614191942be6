package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Default TTLs. Stream metadata is stable for a day; sessions outlive any
// realistic listening stint; preparation status turns over quickly.
const (
	DefaultTTL       = time.Hour
	StreamInfoTTL    = 24 * time.Hour
	SessionTTL       = 2 * time.Hour
	PrepareStatusTTL = 5 * time.Minute
	MappingTTL       = 5 * time.Minute
)

// Manager adds domain key namespacing and JSON codec on top of a Backend.
// Keys carry the entity id so invalidation targets one entity, never a scan.
type Manager struct {
	backend Backend
}

func NewManager(backend Backend) *Manager {
	return &Manager{backend: backend}
}

// GetJSON unmarshals the entry at key into dest. Returns false on miss or
// on an undecodable entry (treated as a miss: cached state is recomputable).
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	raw, ok, err := m.backend.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, nil
	}
	return true, nil
}

func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return m.backend.Set(ctx, key, raw, ttl)
}

func (m *Manager) Delete(ctx context.Context, key string) error {
	return m.backend.Delete(ctx, key)
}

// Key builders.

func StreamInfoKey(scriptID, quality string) string {
	return fmt.Sprintf("audio:stream:%s:%s", scriptID, quality)
}

func SessionKey(sessionID string) string {
	return fmt.Sprintf("audio:session:%s", sessionID)
}

func PrepareStatusKey(scriptID string) string {
	return fmt.Sprintf("audio:prepare:%s", scriptID)
}

func MappingKey(sentenceID string) string {
	return fmt.Sprintf("mapping:sentence:%s", sentenceID)
}
