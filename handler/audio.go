package handler

import (
	"net/http"

	"kiko-backend/audio"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// AudioHandler exposes the session manager over REST.
type AudioHandler struct {
	svc      *audio.Service
	validate *validator.Validate
	log      *logrus.Logger
}

func NewAudioHandler(svc *audio.Service, log *logrus.Logger) *AudioHandler {
	return &AudioHandler{
		svc:      svc,
		validate: validator.New(),
		log:      log,
	}
}

// GetStream handles GET /api/audio/stream/{scriptId}.
func (h *AudioHandler) GetStream(w http.ResponseWriter, r *http.Request) {
	scriptID, ok := pathUUID(w, r, "scriptId")
	if !ok {
		return
	}
	quality := r.URL.Query().Get("quality")
	format := r.URL.Query().Get("format")

	info, err := h.svc.GetStreamInfo(r.Context(), scriptID, quality, format)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Prepare handles POST /api/audio/prepare/{scriptId}.
func (h *AudioHandler) Prepare(w http.ResponseWriter, r *http.Request) {
	scriptID, ok := pathUUID(w, r, "scriptId")
	if !ok {
		return
	}
	status, err := h.svc.Prepare(r.Context(), scriptID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusAccepted, status)
}

type playRequest struct {
	ScriptID   string   `json:"script_id" validate:"required,uuid"`
	Position   float64  `json:"position" validate:"gte=0"`
	SentenceID *string  `json:"sentence_id,omitempty" validate:"omitempty,uuid"`
	UserID     *string  `json:"user_id,omitempty" validate:"omitempty,uuid"`
}

// Play handles POST /api/audio/play.
func (h *AudioHandler) Play(w http.ResponseWriter, r *http.Request) {
	var req playRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	scriptID, _ := uuid.Parse(req.ScriptID)
	session, err := h.svc.CreatePlaySession(r.Context(), scriptID, parseOptionalUUID(req.UserID), req.Position, parseOptionalUUID(req.SentenceID))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{
		"session_id":     session.ID,
		"stream_url":     session.StreamURL,
		"start_position": session.StartPosition,
		"expires_at":     session.ExpiresAt,
	})
}

type progressRequest struct {
	SessionID    string   `json:"session_id" validate:"required,uuid"`
	Position     float64  `json:"position" validate:"gte=0"`
	SentenceID   *string  `json:"sentence_id,omitempty" validate:"omitempty,uuid"`
	PlaybackRate float64  `json:"playback_rate" validate:"gte=0,lte=4"`
}

// Progress handles PUT /api/audio/progress. Best-effort by contract: a
// dropped database write still answers synced because the cache took it.
func (h *AudioHandler) Progress(w http.ResponseWriter, r *http.Request) {
	var req progressRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	sessionID, _ := uuid.Parse(req.SessionID)
	percent, err := h.svc.UpdateProgress(r.Context(), sessionID, req.Position, parseOptionalUUID(req.SentenceID), req.PlaybackRate)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":           "synced",
		"progress_percent": percent,
	})
}

type seekRequest struct {
	SessionID  string  `json:"session_id" validate:"required,uuid"`
	Position   float64 `json:"position" validate:"gte=0"`
	SentenceID *string `json:"sentence_id,omitempty" validate:"omitempty,uuid"`
}

// Seek handles POST /api/audio/seek.
func (h *AudioHandler) Seek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	sessionID, _ := uuid.Parse(req.SessionID)
	newPos, segmentURL, err := h.svc.Seek(r.Context(), sessionID, req.Position, parseOptionalUUID(req.SentenceID))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"new_position": newPos,
		"segment_url":  segmentURL,
		"status":       "ok",
	})
}

type bookmarkRequest struct {
	ScriptID string  `json:"script_id" validate:"required,uuid"`
	Position float64 `json:"position" validate:"gte=0"`
	Note     string  `json:"note" validate:"max=500"`
	UserID   *string `json:"user_id,omitempty" validate:"omitempty,uuid"`
}

// CreateBookmark handles POST /api/audio/bookmarks.
func (h *AudioHandler) CreateBookmark(w http.ResponseWriter, r *http.Request) {
	var req bookmarkRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	scriptID, _ := uuid.Parse(req.ScriptID)
	bookmark, err := h.svc.CreateBookmark(r.Context(), scriptID, parseOptionalUUID(req.UserID), req.Position, req.Note)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, bookmark)
}

// DeleteBookmark handles DELETE /api/audio/bookmarks/{id}.
func (h *AudioHandler) DeleteBookmark(w http.ResponseWriter, r *http.Request) {
	bookmarkID, ok := pathUUID(w, r, "id")
	if !ok {
		return
	}
	if err := h.svc.DeleteBookmark(r.Context(), bookmarkID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type loopRequest struct {
	SessionID  string  `json:"session_id" validate:"required,uuid"`
	StartTime  float64 `json:"start_time" validate:"gte=0"`
	EndTime    float64 `json:"end_time" validate:"gt=0"`
	MaxRepeats *int    `json:"max_repeats,omitempty" validate:"omitempty,gte=1,lte=99"`
}

// SetLoop handles POST /api/audio/loop.
func (h *AudioHandler) SetLoop(w http.ResponseWriter, r *http.Request) {
	var req loopRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}

	sessionID, _ := uuid.Parse(req.SessionID)
	loop, err := h.svc.SetLoop(r.Context(), sessionID, req.StartTime, req.EndTime, req.MaxRepeats)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, loop)
}

// CancelLoop handles DELETE /api/audio/loop/{loopId}?session_id=.
func (h *AudioHandler) CancelLoop(w http.ResponseWriter, r *http.Request) {
	loopID, ok := pathUUID(w, r, "loopId")
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(r.URL.Query().Get("session_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "session_id query parameter required")
		return
	}

	if err := h.svc.CancelLoop(r.Context(), sessionID, loopID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cancelled": true})
}

// EndSession handles DELETE /api/audio/session/{sessionId}. Idempotent.
func (h *AudioHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := pathUUID(w, r, "sessionId")
	if !ok {
		return
	}
	if err := h.svc.EndSession(r.Context(), sessionID); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"ended": true})
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[name])
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func parseOptionalUUID(raw *string) *uuid.UUID {
	if raw == nil {
		return nil
	}
	id, err := uuid.Parse(*raw)
	if err != nil {
		return nil
	}
	return &id
}
