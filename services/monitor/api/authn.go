package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/SaltProphet/SystemZero/services/monitor/internal/auth"
	"github.com/SaltProphet/SystemZero/services/monitor/internal/middleware"
)

type createTokenRequest struct {
	Name        string `json:"name"`
	Role        string `json:"role"`
	Description string `json:"description"`
}

// handleCreateToken mints a new API key. The plaintext appears in this
// response and nowhere else.
func (s *Server) handleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "name is required")
		return
	}

	plaintext, err := s.keys.CreateKey(req.Name, req.Role, req.Description)
	if errors.Is(err, auth.ErrInvalidRole) {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid role")
		return
	}
	if err != nil {
		s.logger.Error(r.Context(), "key creation failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "key creation failed")
		return
	}
	middleware.WriteJSON(w, http.StatusCreated, map[string]any{
		"api_key": plaintext,
		"name":    req.Name,
		"role":    req.Role,
	})
}

// handleValidateKey reflects the caller's key metadata. Any valid key may
// introspect itself.
func (s *Server) handleValidateKey(w http.ResponseWriter, r *http.Request) {
	key := middleware.KeyFromRequest(r)
	if key == "" {
		middleware.WriteError(w, http.StatusUnauthorized, "missing API key")
		return
	}
	rec, ok := s.keys.Validate(key)
	if !ok {
		middleware.WriteError(w, http.StatusUnauthorized, "invalid API key")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"valid":       true,
		"name":        rec.Name,
		"role":        rec.Role,
		"permissions": auth.Permissions(rec.Role),
	})
}

func (s *Server) handleListKeys(w http.ResponseWriter, r *http.Request) {
	listing, err := s.keys.ListKeys()
	if err != nil {
		s.logger.Error(r.Context(), "key listing failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "key listing failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{
		"keys":  listing,
		"count": len(listing),
	})
}

type revokeRequest struct {
	APIKey string `json:"api_key"`
}

func (s *Server) handleRevokeKey(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.APIKey) == "" {
		middleware.WriteError(w, http.StatusUnprocessableEntity, "api_key is required")
		return
	}
	removed, err := s.keys.Revoke(req.APIKey)
	if err != nil {
		s.logger.Error(r.Context(), "key revocation failed", map[string]any{"error": err.Error()})
		middleware.WriteError(w, http.StatusInternalServerError, "key revocation failed")
		return
	}
	middleware.WriteJSON(w, http.StatusOK, map[string]any{"revoked": removed})
}
