package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/dentalcare/slot-booking/internal/apperr"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}

// writeServiceError maps the error taxonomy onto HTTP. Internal failures
// never echo the underlying error text.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr     *apperr.ValidationError
		conflict *apperr.SlotUnavailableError
	)

	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "validation_error",
			Message: "request validation failed",
			Details: verr.Fields,
		})
	case errors.As(err, &conflict):
		if conflict.Alternatives == nil {
			writeError(w, http.StatusConflict, "slot_unavailable", conflict.Error())
			return
		}
		writeJSON(w, http.StatusConflict, ConflictResponse{
			Error:            "slot_unavailable",
			Message:          conflict.Error(),
			RequestedDate:    conflict.RequestedDate,
			RequestedTime:    conflict.RequestedTime,
			AlternativeSlots: conflict.Alternatives,
		})
	case errors.Is(err, apperr.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", apperr.ErrSlotUnavailable.Error())
	case errors.Is(err, apperr.ErrCancellationWindowExpired):
		writeError(w, http.StatusBadRequest, "cancellation_window_expired",
			"appointments can only be cancelled more than one hour before they start")
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperr.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden", "you are not allowed to access this resource")
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
