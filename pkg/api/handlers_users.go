package api

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	apperrors "github.com/savanahq/savana/pkg/errors"
)

// minPasswordLength gates registration; existing hashes are never re-checked.
const minPasswordLength = 6

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(req.Email); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodeInvalidInput, "email must be a valid email address"))
		return
	}
	if len(req.Password) < minPasswordLength {
		respondError(w, http.StatusBadRequest, apperrors.New(apperrors.ErrCodePasswordTooWeak, "password must be at least 6 characters"))
		return
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.ErrCodeInternal, "hashing password"))
		return
	}

	user, err := s.store.CreateUser(r.Context(), req.Email, hash)
	if err != nil {
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, apperrors.ErrCodeUserDuplicate, "user already exists"))
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.ErrCodeInternal, "issuing token"))
		return
	}

	s.logger.Info("user registered", "user", user.Email)
	respondJSON(w, http.StatusCreated, map[string]any{
		"user":  user,
		"token": token,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid request body"))
		return
	}

	user, err := s.store.GetUserByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		// Same answer whether the user is unknown or the password is
		// wrong; do not leak which.
		respondError(w, http.StatusUnauthorized, apperrors.New(apperrors.ErrCodeBadCredentials, "invalid credentials"))
		return
	}
	if err := s.hasher.Compare(user.PasswordHash, req.Password); err != nil {
		respondError(w, http.StatusUnauthorized, apperrors.New(apperrors.ErrCodeBadCredentials, "invalid credentials"))
		return
	}

	token, err := s.tokens.GenerateToken(user.ID, user.Email)
	if err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.ErrCodeInternal, "issuing token"))
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"user":  user,
		"token": token,
	})
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	respondJSON(w, http.StatusOK, map[string]any{
		"user": map[string]string{
			"_id":   claims.UserID,
			"email": claims.Email,
		},
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if err := s.tokens.Revoke(token); err != nil {
		respondError(w, http.StatusInternalServerError, apperrors.Wrap(err, apperrors.ErrCodeInternal, "revoking token"))
		return
	}
	s.logger.Info("user logged out", "user", claimsFromContext(r.Context()).Email)
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	claims := claimsFromContext(r.Context())
	users, err := s.store.ListUsersExcept(r.Context(), claims.UserID)
	if err != nil {
		respondError(w, statusForStoreError(err), apperrors.Wrap(err, apperrors.ErrCodeStorageRead, "listing users"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"users": users})
}
