package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/savanahq/savana/pkg/errors"
	"github.com/savanahq/savana/pkg/storage"
)

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "project name is required"))
		return
	}

	claims := claimsFromContext(r.Context())
	project, err := s.store.CreateProject(r.Context(), req.Name, claims.UserID)
	if err != nil {
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, apperrors.ErrCodeProjectDuplicate, "project name already taken"))
		return
	}

	s.logger.Info("project created", "project", project.ID, "user", claims.Email)
	respondJSON(w, http.StatusCreated, map[string]any{"project": project})
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	projects, err := s.store.ListProjectsByUser(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "listing projects"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"projects": projects})
}

func (s *Server) handleAddUsers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string   `json:"projectId"`
		Users     []string `json:"users"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if !storage.ValidProjectID(req.ProjectID) {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid project id"))
		return
	}
	if len(req.Users) == 0 {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "users must not be empty"))
		return
	}

	claims := claimsFromContext(r.Context())
	project, err := s.store.AddUsersToProject(r.Context(), req.ProjectID, req.Users, claims.UserID)
	if err != nil {
		code := apperrors.ErrCodeStorageWrite
		if err == storage.ErrNotMember {
			code = apperrors.ErrCodeNotMember
		}
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, code, "adding users to project"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"project": project})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	if !storage.ValidProjectID(projectID) {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid project id"))
		return
	}

	project, err := s.store.GetProject(r.Context(), projectID)
	if err != nil {
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, apperrors.ErrCodeProjectNotFound, "project not found"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"project": project})
}

func (s *Server) handleUpdateFileTree(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string          `json:"projectId"`
		FileTree  json.RawMessage `json:"fileTree"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}
	if !storage.ValidProjectID(req.ProjectID) {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "invalid project id"))
		return
	}
	if len(req.FileTree) == 0 || !json.Valid(req.FileTree) {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "fileTree must be valid JSON"))
		return
	}

	project, err := s.store.UpdateFileTree(r.Context(), req.ProjectID, req.FileTree)
	if err != nil {
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, apperrors.ErrCodeStorageWrite, "updating file tree"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{"project": project})
}
