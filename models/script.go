package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Script is a transcript with its audio recording. Immutable once created
// except Metadata; owned by its creator.
type Script struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Title     string         `gorm:"not null" json:"title"`
	Language  string         `gorm:"not null;default:'ja'" json:"language"`
	Duration  float64        `json:"duration"` // seconds of audio
	AudioKey  string         `json:"audio_key,omitempty"` // storage object key; empty means no audio uploaded
	Metadata  string         `gorm:"type:jsonb;default:'{}'" json:"metadata"`
	CreatedBy *uuid.UUID     `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Sentences []Sentence `gorm:"constraint:OnDelete:CASCADE" json:"sentences,omitempty"`
}

// Sentence is one transcript line. OrderIndex is dense, zero-based and
// unique within a script; it defines the reading order.
type Sentence struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	ScriptID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_script_order" json:"script_id"`
	Text       string    `gorm:"not null" json:"text"`
	OrderIndex int       `gorm:"not null;uniqueIndex:idx_script_order" json:"order_index"`
	CreatedAt  time.Time `json:"created_at"`
}

// Mapping generation type.
const (
	MappingManual      = "manual"
	MappingAuto        = "auto"
	MappingAIGenerated = "ai_generated"
)

// SentenceMapping associates a sentence with a [StartTime, EndTime) range of
// the audio. At most one row per sentence has IsActive=true; edits insert a
// new active row and flip the old one off, so history is never lost.
type SentenceMapping struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SentenceID  uuid.UUID  `gorm:"type:uuid;not null;index" json:"sentence_id"`
	StartTime   float64    `gorm:"not null" json:"start_time"`
	EndTime     float64    `gorm:"not null" json:"end_time"`
	MappingType string     `gorm:"not null;default:'manual'" json:"mapping_type"`
	Confidence  float64    `gorm:"not null;default:1.0" json:"confidence"`
	IsActive    bool       `gorm:"not null;default:true;index" json:"is_active"`
	CreatedBy   *uuid.UUID `gorm:"type:uuid" json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// MappingEdit is one row of the mapping edit history: which mapping replaced
// which, with the old and new bounds snapshotted so history survives even if
// mapping rows are ever purged.
type MappingEdit struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SentenceID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"sentence_id"`
	OldMappingID *uuid.UUID `gorm:"type:uuid" json:"old_mapping_id,omitempty"`
	NewMappingID *uuid.UUID `gorm:"type:uuid" json:"new_mapping_id,omitempty"`
	OldStartTime *float64   `json:"old_start_time,omitempty"`
	OldEndTime   *float64   `json:"old_end_time,omitempty"`
	NewStartTime *float64   `json:"new_start_time,omitempty"`
	NewEndTime   *float64   `json:"new_end_time,omitempty"`
	EditType     string     `gorm:"not null;default:'manual'" json:"edit_type"`
	EditReason   string     `json:"edit_reason,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}
