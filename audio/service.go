// Package audio is the session manager: it resolves scripts into playable
// streams, tracks playback sessions and their progress, and owns bookmarks
// and A/B loop records.
package audio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kiko-backend/cache"
	"kiko-backend/models"
	"kiko-backend/playback"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	sessionLifetime = 2 * time.Hour
	segmentSeconds  = 10
	dbWriteTimeout  = 3 * time.Second
)

// Service coordinates the cache, the durable store and the stream resolver.
// Cache entries are always recomputable; the database rows are the truth.
type Service struct {
	db       *gorm.DB
	cache    *cache.Manager
	resolver StreamResolver
	log      *logrus.Logger

	// async runs best-effort writes off the request path. Overridable so
	// tests can run them inline.
	async func(fn func())
	// prepareStepDelay paces the simulated preparation progress.
	prepareStepDelay time.Duration
	now              func() time.Time
}

func NewService(conn *gorm.DB, cacheMgr *cache.Manager, resolver StreamResolver, log *logrus.Logger) *Service {
	return &Service{
		db:               conn,
		cache:            cacheMgr,
		resolver:         resolver,
		log:              log,
		async:            func(fn func()) { go fn() },
		prepareStepDelay: 2 * time.Second,
		now:              time.Now,
	}
}

// GetStreamInfo resolves the playable stream for a script. Cache-first with
// the 24h stream TTL; a script without uploaded audio is NotFound.
func (s *Service) GetStreamInfo(ctx context.Context, scriptID uuid.UUID, quality, format string) (*models.StreamInfo, error) {
	if quality == "" {
		quality = models.QualityMedium
	}
	if format == "" {
		format = "hls"
	}

	key := cache.StreamInfoKey(scriptID.String(), quality)
	var cached models.StreamInfo
	if hit, err := s.cache.GetJSON(ctx, key, &cached); err == nil && hit {
		cached.Cached = true
		return &cached, nil
	}

	var script models.Script
	if err := s.db.WithContext(ctx).First(&script, "id = ?", scriptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("script %s: %w", scriptID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("loading script: %v: %w", err, models.ErrUnavailable)
	}
	if script.AudioKey == "" {
		return nil, fmt.Errorf("script %s has no audio: %w", scriptID, models.ErrNotFound)
	}

	streamURL, err := s.resolver.ManifestURL(ctx, script.AudioKey, quality, format)
	if err != nil {
		return nil, fmt.Errorf("resolving stream: %v: %w", err, models.ErrUnavailable)
	}

	info := models.StreamInfo{
		StreamURL: streamURL,
		Duration:  script.Duration,
		Bitrate:   models.BitrateFor(quality),
		Format:    format,
		ExpiresAt: s.now().Add(cache.StreamInfoTTL),
	}
	if err := s.cache.SetJSON(ctx, key, info, cache.StreamInfoTTL); err != nil {
		s.log.WithError(err).Debug("stream info cache write failed")
	}
	return &info, nil
}

// CreatePlaySession opens a playback session. The start position is clamped
// to [0, duration).
func (s *Service) CreatePlaySession(ctx context.Context, scriptID uuid.UUID, userID *uuid.UUID, position float64, sentenceID *uuid.UUID) (*models.AudioSession, error) {
	info, err := s.GetStreamInfo(ctx, scriptID, models.QualityMedium, "hls")
	if err != nil {
		return nil, err
	}

	start := clamp(position, 0, info.Duration)
	if info.Duration > 0 && start >= info.Duration {
		start = 0
	}

	session := models.AudioSession{
		ID:             uuid.New(),
		ScriptID:       scriptID,
		UserID:         userID,
		StartPosition:  start,
		LastPosition:   start,
		LastSentenceID: sentenceID,
		PlaybackRate:   1.0,
		StreamURL:      info.StreamURL,
		TotalDuration:  info.Duration,
		IsActive:       true,
		StartedAt:      s.now(),
		ExpiresAt:      s.now().Add(sessionLifetime),
	}
	if err := s.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, fmt.Errorf("creating session: %v: %w", err, models.ErrUnavailable)
	}

	if err := s.cache.SetJSON(ctx, cache.SessionKey(session.ID.String()), session, cache.SessionTTL); err != nil {
		s.log.WithError(err).Debug("session cache write failed")
	}
	return &session, nil
}

// UpdateProgress records a progress tick. Idempotent: rewinds are as valid
// as forward motion. The cache is updated synchronously; the database write
// is best-effort off the request path, and a failure only costs one tick.
func (s *Service) UpdateProgress(ctx context.Context, sessionID uuid.UUID, position float64, sentenceID *uuid.UUID, playbackRate float64) (float64, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	session.LastPosition = clamp(position, 0, session.TotalDuration)
	if sentenceID != nil {
		session.LastSentenceID = sentenceID
	}
	if playbackRate > 0 {
		session.PlaybackRate = playbackRate
	}

	if err := s.cache.SetJSON(ctx, cache.SessionKey(sessionID.String()), session, cache.SessionTTL); err != nil {
		s.log.WithError(err).Debug("session cache write failed")
	}

	progress := 0.0
	if session.TotalDuration > 0 {
		progress = session.LastPosition / session.TotalDuration * 100
	}

	update := map[string]any{
		"last_position": session.LastPosition,
		"playback_rate": session.PlaybackRate,
	}
	if sentenceID != nil {
		update["last_sentence_id"] = *sentenceID
	}
	s.async(func() {
		wctx, cancel := context.WithTimeout(context.Background(), dbWriteTimeout)
		defer cancel()
		if err := s.db.WithContext(wctx).Model(&models.AudioSession{}).
			Where("id = ?", sessionID).Updates(update).Error; err != nil {
			s.log.WithError(err).WithField("session_id", sessionID).Debug("progress write dropped")
		}
	})

	return progress, nil
}

// Seek moves the session position, clamped to the stream bounds, and returns
// the new position plus the segment URL covering it.
func (s *Service) Seek(ctx context.Context, sessionID uuid.UUID, position float64, sentenceID *uuid.UUID) (float64, string, error) {
	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return 0, "", err
	}

	newPos := clamp(position, 0, session.TotalDuration)
	if _, err := s.UpdateProgress(ctx, sessionID, newPos, sentenceID, 0); err != nil {
		return 0, "", err
	}

	var script models.Script
	segmentURL := ""
	if err := s.db.WithContext(ctx).First(&script, "id = ?", session.ScriptID).Error; err == nil && script.AudioKey != "" {
		if u, err := s.resolver.SegmentURL(ctx, script.AudioKey, int(newPos)/segmentSeconds); err == nil {
			segmentURL = u
		}
	}
	return newPos, segmentURL, nil
}

// SetLoop persists an A/B loop for the session after validating the bounds
// the way the repeat machine does. Any previously active loop on the session
// is replaced.
func (s *Service) SetLoop(ctx context.Context, sessionID uuid.UUID, start, end float64, maxRepeats *int) (*models.ABLoop, error) {
	if err := playback.ValidateLoop(start, end); err != nil {
		return nil, err
	}

	session, err := s.getSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session.TotalDuration > 0 && end > session.TotalDuration {
		return nil, fmt.Errorf("loop end %.3f exceeds duration %.3f: %w", end, session.TotalDuration, models.ErrInvalidRange)
	}

	loop := models.ABLoop{
		ID:         uuid.New(),
		SessionID:  sessionID,
		PointA:     start,
		PointB:     end,
		MaxRepeats: maxRepeats,
		IsActive:   true,
		CreatedAt:  s.now(),
		UpdatedAt:  s.now(),
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.ABLoop{}).
			Where("session_id = ? AND is_active = ?", sessionID, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(&loop).Error
	})
	if err != nil {
		return nil, fmt.Errorf("saving loop: %v: %w", err, models.ErrUnavailable)
	}
	return &loop, nil
}

// CancelLoop deactivates a loop on the session.
func (s *Service) CancelLoop(ctx context.Context, sessionID, loopID uuid.UUID) error {
	res := s.db.WithContext(ctx).Model(&models.ABLoop{}).
		Where("id = ? AND session_id = ?", loopID, sessionID).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("cancelling loop: %v: %w", res.Error, models.ErrUnavailable)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("loop %s: %w", loopID, models.ErrNotFound)
	}
	return nil
}

// EndSession closes a session: final progress stays as last persisted,
// the row is deactivated and the cache entry invalidated. Ending a session
// twice is a no-op.
func (s *Service) EndSession(ctx context.Context, sessionID uuid.UUID) error {
	var session models.AudioSession
	if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
		}
		return fmt.Errorf("loading session: %v: %w", err, models.ErrUnavailable)
	}

	if session.IsActive {
		ended := s.now()
		err := s.db.WithContext(ctx).Model(&session).Updates(map[string]any{
			"is_active": false,
			"ended_at":  ended,
		}).Error
		if err != nil {
			return fmt.Errorf("ending session: %v: %w", err, models.ErrUnavailable)
		}
	}

	if err := s.cache.Delete(ctx, cache.SessionKey(sessionID.String())); err != nil {
		s.log.WithError(err).Debug("session cache invalidation failed")
	}
	return nil
}

// Prepare reports (or kicks off) background audio preparation for a script.
// The status record lives only in the cache with a 5 minute TTL.
func (s *Service) Prepare(ctx context.Context, scriptID uuid.UUID) (*models.PrepareStatus, error) {
	key := cache.PrepareStatusKey(scriptID.String())

	var existing models.PrepareStatus
	if hit, err := s.cache.GetJSON(ctx, key, &existing); err == nil && hit {
		return &existing, nil
	}

	var script models.Script
	if err := s.db.WithContext(ctx).First(&script, "id = ?", scriptID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("script %s: %w", scriptID, models.ErrNotFound)
		}
		return nil, fmt.Errorf("loading script: %v: %w", err, models.ErrUnavailable)
	}

	status := models.PrepareStatus{Status: models.PrepareQueued, Progress: 0, EstimatedTime: 30}
	if err := s.cache.SetJSON(ctx, key, status, cache.PrepareStatusTTL); err != nil {
		return nil, fmt.Errorf("recording prepare status: %v: %w", err, models.ErrUnavailable)
	}

	s.async(func() { s.runPreparation(scriptID) })
	return &status, nil
}

// runPreparation steps the status record through processing to ready. The
// actual transcoding runs in the external pipeline; this tracks its phases
// for polling clients.
func (s *Service) runPreparation(scriptID uuid.UUID) {
	key := cache.PrepareStatusKey(scriptID.String())
	ctx := context.Background()

	for _, progress := range []int{25, 50, 75, 100} {
		time.Sleep(s.prepareStepDelay)

		status := models.PrepareStatus{
			Status:   models.PrepareProcessing,
			Progress: progress,
		}
		if progress == 100 {
			status.Status = models.PrepareReady
		} else {
			status.EstimatedTime = 30 - progress/4
		}
		if err := s.cache.SetJSON(ctx, key, status, cache.PrepareStatusTTL); err != nil {
			s.log.WithError(err).WithField("script_id", scriptID).Warn("prepare status write failed")
			return
		}
	}
}

// CreateBookmark marks a position in a script.
func (s *Service) CreateBookmark(ctx context.Context, scriptID uuid.UUID, userID *uuid.UUID, position float64, note string) (*models.Bookmark, error) {
	if position < 0 {
		return nil, fmt.Errorf("bookmark position %.3f: %w", position, models.ErrInvalidRange)
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&models.Script{}).Where("id = ?", scriptID).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("loading script: %v: %w", err, models.ErrUnavailable)
	}
	if count == 0 {
		return nil, fmt.Errorf("script %s: %w", scriptID, models.ErrNotFound)
	}

	bookmark := models.Bookmark{
		ID:        uuid.New(),
		ScriptID:  scriptID,
		UserID:    userID,
		Position:  position,
		Note:      note,
		CreatedAt: s.now(),
	}
	if err := s.db.WithContext(ctx).Create(&bookmark).Error; err != nil {
		return nil, fmt.Errorf("creating bookmark: %v: %w", err, models.ErrUnavailable)
	}
	return &bookmark, nil
}

// DeleteBookmark removes a bookmark.
func (s *Service) DeleteBookmark(ctx context.Context, bookmarkID uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&models.Bookmark{}, "id = ?", bookmarkID)
	if res.Error != nil {
		return fmt.Errorf("deleting bookmark: %v: %w", res.Error, models.ErrUnavailable)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("bookmark %s: %w", bookmarkID, models.ErrNotFound)
	}
	return nil
}

// getSession loads a live session, cache-first. Expired sessions surface as
// ErrSessionExpired whether or not the cache entry is still around.
func (s *Service) getSession(ctx context.Context, sessionID uuid.UUID) (*models.AudioSession, error) {
	var session models.AudioSession
	hit, err := s.cache.GetJSON(ctx, cache.SessionKey(sessionID.String()), &session)
	if err != nil || !hit {
		if err := s.db.WithContext(ctx).First(&session, "id = ?", sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrNotFound)
			}
			return nil, fmt.Errorf("loading session: %v: %w", err, models.ErrUnavailable)
		}
	}

	if !session.IsActive {
		return nil, fmt.Errorf("session %s ended: %w", sessionID, models.ErrNotFound)
	}
	if s.now().After(session.ExpiresAt) {
		return nil, fmt.Errorf("session %s: %w", sessionID, models.ErrSessionExpired)
	}
	return &session, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if hi > 0 && v > hi {
		return hi
	}
	return v
}
