package api

import (
	"encoding/json"
	stdliberrors "errors"
	"net/http"
	"time"

	apperrors "github.com/savanahq/savana/pkg/errors"
	"github.com/savanahq/savana/pkg/storage"
)

// respondJSON sends a JSON response with appropriate headers.
func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	_ = enc.Encode(payload)
}

// respondError sends a structured JSON error response.
func respondError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	response := struct {
		Error     string `json:"error"`
		Status    int    `json:"status"`
		Code      string `json:"code,omitempty"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}{
		Status:    status,
		Message:   http.StatusText(status),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var serr *apperrors.Error
	if stdliberrors.As(err, &serr) {
		response.Code = string(serr.Code)
		if serr.UserMessage != "" {
			response.Message = serr.UserMessage
		} else if serr.Message != "" {
			response.Message = serr.Message
		}
	} else if err != nil {
		response.Message = err.Error()
	}

	response.Error = response.Message
	_ = json.NewEncoder(w).Encode(response)
}

// statusForStoreError maps storage sentinels to HTTP status codes.
func statusForStoreError(err error) int {
	switch {
	case stdliberrors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case stdliberrors.Is(err, storage.ErrDuplicate):
		return http.StatusBadRequest
	case stdliberrors.Is(err, storage.ErrNotMember):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
