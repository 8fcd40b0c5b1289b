package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/vantagefolio/valora/internal/contracts"
)

// validate is the shared request validator instance
var validate = validator.New(validator.WithRequiredStructEnabled())

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// respondDomainError maps domain error types onto HTTP statuses.
// Anything unrecognized is a 500.
func respondDomainError(w http.ResponseWriter, err error) {
	var notFound contracts.NotFoundError
	var validation contracts.ValidationError
	var immutable contracts.ImmutableMethodError

	switch {
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, notFound.Error())
	case errors.As(err, &validation):
		respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
			"error": validation.Error(),
			"field": validation.Field,
		})
	case errors.As(err, &immutable):
		respondError(w, http.StatusConflict, immutable.Error())
	default:
		respondError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// parseOptionalDate parses a YYYY-MM-DD field when present. Returns
// ok=false after writing a 400 response.
func parseOptionalDate(w http.ResponseWriter, raw *string, field string) (*time.Time, bool) {
	if raw == nil || *raw == "" {
		return nil, true
	}
	t, err := time.Parse("2006-01-02", *raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid '"+field+"' date format (expected YYYY-MM-DD)")
		return nil, false
	}
	return &t, true
}

// decodeJSON parses and validates a request body into dst. The caller
// gets false after a response has already been written.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]string{
				"error": "validation failed on field '" + verrs[0].Field() + "' (" + verrs[0].Tag() + ")",
				"field": verrs[0].Field(),
			})
			return false
		}
		respondError(w, http.StatusUnprocessableEntity, "validation failed")
		return false
	}
	return true
}
