// Package mapping owns sentence-to-timestamp mappings: the durable store,
// its edit history, and the timeline lookup used to resolve a playback
// position to a sentence.
package mapping

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kiko-backend/cache"
	"kiko-backend/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ChangeEvent describes a committed mapping mutation. The store is the
// single source of truth; subscribers (the sync hub) only ever see final
// commit results, never in-flight edits.
type ChangeEvent struct {
	ScriptID    uuid.UUID
	SentenceID  uuid.UUID
	StartTime   float64
	EndTime     float64
	MappingType string
	Deactivated bool
}

// Store persists SentenceMapping rows. Concurrent edits to the same sentence
// resolve last-write-wins by commit order.
type Store struct {
	db     *gorm.DB
	log    *logrus.Logger
	cache  *cache.Manager
	notify func(ChangeEvent)
}

func NewStore(conn *gorm.DB, log *logrus.Logger) *Store {
	return &Store{db: conn, log: log}
}

// WithCache enables the per-sentence active-mapping cache. Writes invalidate
// the cached entry; reads through ActiveMapping fill it.
func (s *Store) WithCache(mgr *cache.Manager) *Store {
	s.cache = mgr
	return s
}

// OnChange registers the callback invoked after every committed mutation.
// Must be set before the store starts serving requests.
func (s *Store) OnChange(fn func(ChangeEvent)) {
	s.notify = fn
}

// GetActiveMappings returns the active mapping rows for a script, ordered by
// the parent sentence's order index.
func (s *Store) GetActiveMappings(ctx context.Context, scriptID uuid.UUID) ([]models.SentenceMapping, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Script{}).Where("id = ?", scriptID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("loading script: %w", err)
	}
	if count == 0 {
		return nil, fmt.Errorf("script %s: %w", scriptID, models.ErrNotFound)
	}

	var mappings []models.SentenceMapping
	err := s.db.WithContext(ctx).
		Joins("JOIN sentences ON sentences.id = sentence_mappings.sentence_id").
		Where("sentences.script_id = ? AND sentence_mappings.is_active = ?", scriptID, true).
		Order("sentences.order_index").
		Find(&mappings).Error
	if err != nil {
		return nil, fmt.Errorf("loading mappings: %w", err)
	}
	return mappings, nil
}

// ActiveMapping returns the single active mapping for a sentence,
// cache-first with the short mapping TTL.
func (s *Store) ActiveMapping(ctx context.Context, sentenceID uuid.UUID) (*models.SentenceMapping, error) {
	key := cache.MappingKey(sentenceID.String())
	if s.cache != nil {
		var cached models.SentenceMapping
		if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	var m models.SentenceMapping
	err := s.db.WithContext(ctx).
		Where("sentence_id = ? AND is_active = ?", sentenceID, true).
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("active mapping for sentence %s: %w", sentenceID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("loading mapping: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, m, cache.MappingTTL); err != nil {
			s.log.WithError(err).Debug("mapping cache write failed")
		}
	}
	return &m, nil
}

func (s *Store) invalidate(ctx context.Context, sentenceID uuid.UUID) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, cache.MappingKey(sentenceID.String())); err != nil {
		s.log.WithError(err).Debug("mapping cache invalidation failed")
	}
}

// UpsertMapping replaces the active mapping for a sentence in one
// transaction: the prior active row is deactivated, the new row inserted and
// an edit-history row recorded. Partial states are never observable.
func (s *Store) UpsertMapping(ctx context.Context, sentenceID uuid.UUID, start, end float64, mappingType, editReason string) (*models.SentenceMapping, error) {
	if start < 0 || end < 0 || start >= end {
		return nil, fmt.Errorf("start=%.3f end=%.3f: %w", start, end, models.ErrInvalidRange)
	}

	var created models.SentenceMapping
	var scriptID uuid.UUID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sentence models.Sentence
		if err := tx.First(&sentence, "id = ?", sentenceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("sentence %s: %w", sentenceID, models.ErrNotFound)
			}
			return err
		}
		scriptID = sentence.ScriptID

		var script models.Script
		if err := tx.First(&script, "id = ?", sentence.ScriptID).Error; err != nil {
			return err
		}
		if script.Duration > 0 && end > script.Duration {
			return fmt.Errorf("end=%.3f exceeds duration=%.3f: %w", end, script.Duration, models.ErrInvalidRange)
		}

		var old models.SentenceMapping
		hadOld := true
		if err := tx.Where("sentence_id = ? AND is_active = ?", sentenceID, true).
			First(&old).Error; err != nil {
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}
			hadOld = false
		}

		if hadOld {
			if err := tx.Model(&models.SentenceMapping{}).
				Where("sentence_id = ? AND is_active = ?", sentenceID, true).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}

		created = models.SentenceMapping{
			ID:          uuid.New(),
			SentenceID:  sentenceID,
			StartTime:   start,
			EndTime:     end,
			MappingType: mappingType,
			Confidence:  confidenceFor(mappingType, end-start),
			IsActive:    true,
			CreatedAt:   time.Now(),
			UpdatedAt:   time.Now(),
		}
		if err := tx.Create(&created).Error; err != nil {
			return err
		}

		edit := models.MappingEdit{
			ID:           uuid.New(),
			SentenceID:   sentenceID,
			NewMappingID: &created.ID,
			NewStartTime: &created.StartTime,
			NewEndTime:   &created.EndTime,
			EditType:     created.MappingType,
			EditReason:   editReason,
			CreatedAt:    time.Now(),
		}
		if hadOld {
			edit.OldMappingID = &old.ID
			edit.OldStartTime = &old.StartTime
			edit.OldEndTime = &old.EndTime
		}
		return tx.Create(&edit).Error
	})
	if err != nil {
		return nil, err
	}

	s.invalidate(ctx, sentenceID)
	s.emit(ChangeEvent{
		ScriptID:    scriptID,
		SentenceID:  sentenceID,
		StartTime:   created.StartTime,
		EndTime:     created.EndTime,
		MappingType: created.MappingType,
	})
	return &created, nil
}

// DeactivateMapping soft-deletes the active mapping for a sentence, keeping
// it in history. Returns ErrNotFound when there is nothing active.
func (s *Store) DeactivateMapping(ctx context.Context, sentenceID uuid.UUID, editReason string) error {
	var scriptID uuid.UUID
	var old models.SentenceMapping

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var sentence models.Sentence
		if err := tx.First(&sentence, "id = ?", sentenceID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("sentence %s: %w", sentenceID, models.ErrNotFound)
			}
			return err
		}
		scriptID = sentence.ScriptID

		if err := tx.Where("sentence_id = ? AND is_active = ?", sentenceID, true).
			First(&old).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("active mapping for sentence %s: %w", sentenceID, models.ErrNotFound)
			}
			return err
		}

		if err := tx.Model(&old).Update("is_active", false).Error; err != nil {
			return err
		}

		edit := models.MappingEdit{
			ID:           uuid.New(),
			SentenceID:   sentenceID,
			OldMappingID: &old.ID,
			OldStartTime: &old.StartTime,
			OldEndTime:   &old.EndTime,
			EditType:     old.MappingType,
			EditReason:   editReason,
			CreatedAt:    time.Now(),
		}
		return tx.Create(&edit).Error
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, sentenceID)
	s.emit(ChangeEvent{
		ScriptID:    scriptID,
		SentenceID:  sentenceID,
		StartTime:   old.StartTime,
		EndTime:     old.EndTime,
		MappingType: old.MappingType,
		Deactivated: true,
	})
	return nil
}

// EditHistory returns the most recent edit rows for a sentence, newest
// first.
func (s *Store) EditHistory(ctx context.Context, sentenceID uuid.UUID, limit int) ([]models.MappingEdit, error) {
	if limit <= 0 {
		limit = 50
	}
	var edits []models.MappingEdit
	err := s.db.WithContext(ctx).
		Where("sentence_id = ?", sentenceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&edits).Error
	if err != nil {
		return nil, fmt.Errorf("loading edit history: %w", err)
	}
	return edits, nil
}

func (s *Store) emit(ev ChangeEvent) {
	if s.notify == nil {
		return
	}
	s.notify(ev)
	s.log.WithFields(logrus.Fields{
		"script_id":   ev.ScriptID,
		"sentence_id": ev.SentenceID,
	}).Debug("mapping change broadcast")
}

// confidenceFor mirrors the scoring used by the alignment pipeline: manual
// edits are authoritative, machine alignments degrade with short sentences.
func confidenceFor(mappingType string, duration float64) float64 {
	switch mappingType {
	case models.MappingManual:
		return 1.0
	case models.MappingAIGenerated:
		switch {
		case duration < 1.0:
			return 0.3
		case duration < 3.0:
			return 0.6
		default:
			return 0.8
		}
	default:
		return 0.5
	}
}
