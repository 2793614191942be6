package models

import (
	"time"

	"github.com/google/uuid"
)

// Stream quality presets and their bitrates (bps).
const (
	QualityLow    = "low"
	QualityMedium = "medium"
	QualityHigh   = "high"
)

// BitrateFor returns the bitrate for a quality preset, defaulting to medium.
func BitrateFor(quality string) int {
	switch quality {
	case QualityLow:
		return 64000
	case QualityHigh:
		return 256000
	default:
		return 128000
	}
}

// Audio preparation states surfaced by POST /api/audio/prepare.
const (
	PrepareQueued     = "queued"
	PrepareProcessing = "processing"
	PrepareReady      = "ready"
	PrepareFailed     = "failed"
)

// AudioSession is one listener's playback session. A session holds the
// authoritative stream URL and the last persisted position; it expires two
// hours after creation unless ended explicitly.
type AudioSession struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ScriptID       uuid.UUID  `gorm:"type:uuid;not null;index" json:"script_id"`
	UserID         *uuid.UUID `gorm:"type:uuid" json:"user_id,omitempty"`
	StartPosition  float64    `json:"start_position"`
	LastPosition   float64    `json:"last_position"`
	LastSentenceID *uuid.UUID `gorm:"type:uuid" json:"last_sentence_id,omitempty"`
	PlaybackRate   float64    `gorm:"not null;default:1.0" json:"playback_rate"`
	StreamURL      string     `json:"stream_url"`
	TotalDuration  float64    `json:"total_duration"`
	IsActive       bool       `gorm:"not null;default:true;index" json:"is_active"`
	StartedAt      time.Time  `json:"started_at"`
	EndedAt        *time.Time `json:"ended_at,omitempty"`
	ExpiresAt      time.Time  `json:"expires_at"`
}

// ABLoop is a persisted A/B repeat request attached to a session. The live
// loop state machine runs in the playback package; this row is what survives
// a reconnect.
type ABLoop struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID   uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	PointA      float64   `gorm:"not null" json:"point_a"`
	PointB      float64   `gorm:"not null" json:"point_b"`
	MaxRepeats  *int      `json:"max_repeats,omitempty"`
	RepeatCount int       `gorm:"not null;default:0" json:"repeat_count"`
	IsActive    bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Bookmark marks a position in a script. Independent of mappings and
// sessions.
type Bookmark struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	ScriptID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"script_id"`
	UserID    *uuid.UUID `gorm:"type:uuid" json:"user_id,omitempty"`
	Position  float64    `gorm:"not null" json:"position"`
	Note      string     `json:"note,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// StreamInfo is the resolved playable stream for a script+quality, cached
// for 24h.
type StreamInfo struct {
	StreamURL string    `json:"stream_url"`
	Duration  float64   `json:"duration"`
	Bitrate   int       `json:"bitrate"`
	Format    string    `json:"format"`
	Cached    bool      `json:"cached"`
	ExpiresAt time.Time `json:"expires_at"`
}

// PrepareStatus reports background audio preparation progress.
type PrepareStatus struct {
	Status        string `json:"status"`
	Progress      int    `json:"progress"`
	EstimatedTime int    `json:"estimated_time,omitempty"`
	Error         string `json:"error,omitempty"`
}
