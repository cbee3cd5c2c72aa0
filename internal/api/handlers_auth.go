package api

import (
	"errors"
	"net/http"

	"remindr/internal/metrics"
	"remindr/internal/models"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// allowAttempt applies the per-address limit for action. It writes the
// response and returns false when the caller must stop.
func (s *HTTPServer) allowAttempt(w http.ResponseWriter, r *http.Request, action string) bool {
	key := action + ":" + clientIP(r, s.TrustedProxies)
	ok, err := s.Limiter.Allow(r.Context(), key, s.RateLimit.Attempts, s.RateLimit.Window)
	if err != nil {
		// Fail open on limiter errors.
		s.logger.Warn().Err(err).Str("action", action).Msg("rate limiter unavailable")
		return true
	}
	if !ok {
		metrics.IncAuthAttempt(action, "throttled")
		writeError(w, http.StatusTooManyRequests, "too many attempts, try again later")
		return false
	}
	return true
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowAttempt(w, r, "register") {
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}

	session, err := s.Auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		metrics.IncAuthAttempt("register", "rejected")
		s.writeServiceError(w, err)
		return
	}
	metrics.IncAuthAttempt("register", "success")
	writeJSON(w, http.StatusCreated, session)
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowAttempt(w, r, "login") {
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}

	session, err := s.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		outcome := "error"
		if errors.Is(err, models.ErrInvalidCredentials) {
			outcome = "rejected"
		}
		metrics.IncAuthAttempt("login", outcome)
		s.writeServiceError(w, err)
		return
	}
	metrics.IncAuthAttempt("login", "success")
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.Auth.Me(r.Context(), identity(r).UserID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u.ToResponse())
}
