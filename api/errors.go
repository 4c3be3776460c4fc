package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fieldops/partsledger/inventory"
)

// writeDomainError maps err to an HTTP status and writes a JSON error
// response. Uses errors.Is so wrapped sentinels match. Unrecognized errors
// are 500s; their text is hidden when HideInternalErrors is set.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := mapErrorToStatus(err)

	var details any
	var stock *inventory.InsufficientStockError
	var invalid *inventory.ValidationError
	switch {
	case errors.As(err, &stock):
		details = map[string]any{
			"part_code": stock.PartCode,
			"requested": stock.Requested,
			"available": stock.Available,
		}
	case errors.As(err, &invalid):
		details = map[string]string{invalid.Field: invalid.Reason}
	}

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
		if h.HideInternalErrors {
			message = "internal error"
		}
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeError(w, status, message, code, details)
}

func mapErrorToStatus(err error) (int, string) {
	switch {
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound, "not_found" // 404
	case errors.Is(err, inventory.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock" // 409
	case errors.Is(err, inventory.ErrDuplicateCode):
		return http.StatusConflict, "duplicate_code" // 409
	case errors.Is(err, inventory.ErrPartInUse):
		return http.StatusConflict, "part_in_use" // 409
	case errors.Is(err, inventory.ErrCycle):
		return http.StatusUnprocessableEntity, "location_cycle" // 422
	case errors.Is(err, inventory.ErrInvalidLocation):
		return http.StatusUnprocessableEntity, "invalid_location" // 422
	case errors.Is(err, inventory.ErrValidation):
		return http.StatusUnprocessableEntity, "validation_failed" // 422
	case errors.Is(err, inventory.ErrConcurrencyConflict):
		return http.StatusServiceUnavailable, "concurrency_conflict" // 503
	default:
		return http.StatusInternalServerError, "internal" // 500
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message, code string, details any) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}
