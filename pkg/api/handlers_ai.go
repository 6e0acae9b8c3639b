package api

import (
	"net/http"
	"strings"

	apperrors "github.com/savanahq/savana/pkg/errors"
)

// handleGetResult runs a generation synchronously for the caller. This is
// the direct REST path; room-triggered generations go through the router.
func (s *Server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	prompt := strings.TrimSpace(r.URL.Query().Get("prompt"))
	if prompt == "" {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "prompt is required"))
		return
	}

	reply, err := s.generator.Generate(r.Context(), prompt)
	if err != nil {
		respondError(w, http.StatusBadGateway, apperrors.Wrap(err, apperrors.ErrCodeGenerationFailed, "generation failed"))
		return
	}

	respondJSON(w, http.StatusOK, reply)
}
