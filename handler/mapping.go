package handler

import (
	"net/http"
	"strconv"

	"kiko-backend/mapping"
	"kiko-backend/models"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// MappingHandler exposes the sentence mapping store over REST.
type MappingHandler struct {
	store    *mapping.Store
	validate *validator.Validate
	log      *logrus.Logger
}

func NewMappingHandler(store *mapping.Store, log *logrus.Logger) *MappingHandler {
	return &MappingHandler{
		store:    store,
		validate: validator.New(),
		log:      log,
	}
}

// GetScriptMappings handles GET /api/sync/mappings/script/{scriptId}.
func (h *MappingHandler) GetScriptMappings(w http.ResponseWriter, r *http.Request) {
	scriptID, ok := pathUUID(w, r, "scriptId")
	if !ok {
		return
	}

	mappings, err := h.store.GetActiveMappings(r.Context(), scriptID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"script_id": scriptID,
		"mappings":  mappings,
		"count":     len(mappings),
	})
}

// GetSentenceMapping handles GET /api/sync/mappings/sentence/{sentenceId}.
func (h *MappingHandler) GetSentenceMapping(w http.ResponseWriter, r *http.Request) {
	sentenceID, ok := pathUUID(w, r, "sentenceId")
	if !ok {
		return
	}

	m, err := h.store.ActiveMapping(r.Context(), sentenceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

type upsertMappingRequest struct {
	StartTime   float64 `json:"start_time" validate:"gte=0"`
	EndTime     float64 `json:"end_time" validate:"gt=0"`
	MappingType string  `json:"mapping_type" validate:"omitempty,oneof=manual auto ai_generated"`
	EditReason  string  `json:"edit_reason" validate:"max=500"`
}

// UpsertMapping handles PUT /api/sync/mappings/sentence/{sentenceId}.
// Concurrent edits resolve last-write-wins by commit order.
func (h *MappingHandler) UpsertMapping(w http.ResponseWriter, r *http.Request) {
	sentenceID, ok := pathUUID(w, r, "sentenceId")
	if !ok {
		return
	}

	var req upsertMappingRequest
	if !decodeAndValidate(w, r, h.validate, &req) {
		return
	}
	if req.MappingType == "" {
		req.MappingType = models.MappingManual
	}

	m, err := h.store.UpsertMapping(r.Context(), sentenceID, req.StartTime, req.EndTime, req.MappingType, req.EditReason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

// DeactivateMapping handles DELETE /api/sync/mappings/sentence/{sentenceId}.
func (h *MappingHandler) DeactivateMapping(w http.ResponseWriter, r *http.Request) {
	sentenceID, ok := pathUUID(w, r, "sentenceId")
	if !ok {
		return
	}

	reason := r.URL.Query().Get("reason")
	if err := h.store.DeactivateMapping(r.Context(), sentenceID, reason); err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deactivated": true})
}

// EditHistory handles GET /api/sync/mappings/sentence/{sentenceId}/history.
func (h *MappingHandler) EditHistory(w http.ResponseWriter, r *http.Request) {
	sentenceID, ok := pathUUID(w, r, "sentenceId")
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	edits, err := h.store.EditHistory(r.Context(), sentenceID, limit)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"sentence_id": sentenceID,
		"edits":       edits,
		"count":       len(edits),
	})
}
