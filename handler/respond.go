package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"kiko-backend/models"

	"github.com/go-playground/validator/v10"
)

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"status": "success",
		"data":   data,
	})
}

func respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]any{
		"status":  "error",
		"message": message,
	})
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidRange):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrSessionExpired):
		respondError(w, http.StatusGone, err.Error())
	case errors.Is(err, models.ErrUnavailable), errors.Is(err, models.ErrConnectionTimeout):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeAndValidate unmarshals the request body into dest and runs the
// validator tags. Returns false after writing the 400 response itself.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, validate *validator.Validate, dest any) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	if err := validate.Struct(dest); err != nil {
		respondError(w, http.StatusBadRequest, formatValidationErrors(err))
		return false
	}
	return true
}

func formatValidationErrors(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid request"
	}
	msg := "validation failed:"
	for _, fe := range verrs {
		msg += fmt.Sprintf(" field '%s' failed on '%s';", fe.Field(), fe.Tag())
	}
	return msg
}
