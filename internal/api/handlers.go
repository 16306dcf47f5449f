package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meshcom-gateway/meshcom-server/internal/auth"
	"github.com/meshcom-gateway/meshcom-server/internal/validation"
)

// ========== Auth handlers ==========

// HandleLogin handles user login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required,max=64"`
		Password string `json:"password" validate:"required"`
	}

	if !s.decodeRequest(w, r, &req) {
		return
	}

	if !s.auth.Enabled() {
		s.respondError(w, http.StatusNotFound, "authentication is not configured")
		return
	}

	token, expiresAt, err := s.auth.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			s.respondError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		s.respondError(w, http.StatusInternalServerError, "failed to generate token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token": token,
		"expires_in":   int(time.Until(expiresAt).Seconds()),
		"token_type":   "Bearer",
	})
}

// ========== System handlers ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	id := s.gw.Identity()

	gw := map[string]interface{}{
		"bound":     false,
		"my_call":   id.Callsign(),
		"groups":    id.Groups(),
		"listeners": s.gw.ListenerCount(),
	}
	if addr := s.gw.LocalAddr(); addr != nil {
		gw["bound"] = true
		gw["addr"] = addr.String()
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"time":    time.Now(),
		"gateway": gw,
		"history": s.store != nil,
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": s.config.Server.Name,
		"version": s.config.Server.Version,
		"health":  "/api/v1/health",
		"stream":  "/api/v1/ws",
	})
}

// ========== Helper functions ==========

// decodeRequest decodes and validates a JSON body, responding 400 on failure
func (s *RESTServer) decodeRequest(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return false
	}

	if err := s.validator.Validate(v); err != nil {
		var fe *validation.FieldError
		if errors.As(err, &fe) {
			s.respondError(w, http.StatusBadRequest, fe.Error())
			return false
		}
		s.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}

	return true
}

// pagination reads limit/offset query parameters
func pagination(r *http.Request) (int, int) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// timeParam parses an optional RFC3339 query parameter
func timeParam(r *http.Request, name string) (*time.Time, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// stringParam returns a pointer to a non-empty query parameter
func stringParam(r *http.Request, name string) *string {
	v := r.URL.Query().Get(name)
	if v == "" {
		return nil
	}
	return &v
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
