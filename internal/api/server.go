// Package api exposes accounts, reminders and operator controls over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"remindr/internal/access"
	"remindr/internal/auth"
	"remindr/internal/limiter"
	"remindr/internal/metrics"
	"remindr/internal/models"
	"remindr/internal/service"
	"remindr/shared/reminders"
)

// Runner is the scheduling loop as seen by operators.
type Runner interface {
	RunNow(ctx context.Context) (reminders.PassStats, bool)
	State() reminders.State
}

// RateLimitConfig bounds login and registration attempts per client address.
type RateLimitConfig struct {
	Attempts int
	Window   time.Duration
}

// Deps wires the server to the rest of the application.
type Deps struct {
	Reminders *service.ReminderService
	Auth      *service.AuthService
	Tokens    *auth.Manager
	Access    *access.Service
	Runner    Runner
	Tracker   *PassTracker
	Limiter   limiter.Limiter
	RateLimit RateLimitConfig

	// TrustedProxies may set X-Forwarded-For; other peers are keyed by their
	// socket address.
	TrustedProxies []netip.Prefix
}

// HTTPServer serves the JSON API.
type HTTPServer struct {
	Deps
	logger zerolog.Logger
	mux    *http.ServeMux
}

func NewHTTPServer(deps Deps, logger zerolog.Logger) *HTTPServer {
	if deps.Limiter == nil {
		deps.Limiter = limiter.NewMemory()
	}
	if deps.RateLimit.Attempts <= 0 {
		deps.RateLimit.Attempts = 10
	}
	if deps.RateLimit.Window <= 0 {
		deps.RateLimit.Window = time.Minute
	}

	s := &HTTPServer{
		Deps:   deps,
		logger: logger.With().Str("component", "api").Logger(),
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *HTTPServer) routes() {
	s.handle("POST /api/auth/register", s.handleRegister)
	s.handle("POST /api/auth/login", s.handleLogin)
	s.handleAuth("GET /api/auth/me", s.handleMe)

	s.handleAuth("GET /api/reminders", s.handleListReminders)
	s.handleAuth("POST /api/reminders", s.handleCreateReminder)
	s.handleAuth("GET /api/reminders/export", s.handleExportReminders)
	s.handleAuth("GET /api/reminders/check", s.handleRunNow)
	s.handleAuth("POST /api/reminders/check", s.handleRunNow)
	s.handleAuth("GET /api/reminders/{id}", s.handleGetReminder)
	s.handleAuth("PUT /api/reminders/{id}", s.handleUpdateReminder)
	s.handleAuth("DELETE /api/reminders/{id}", s.handleDeleteReminder)

	s.handleAuth("GET /api/scheduler/status", s.handleSchedulerStatus)
}

func (s *HTTPServer) handle(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, h))
}

func (s *HTTPServer) handleAuth(pattern string, h http.HandlerFunc) {
	s.mux.Handle(pattern, instrument(pattern, s.Tokens.Middleware(h)))
}

// Handler returns the root handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *HTTPServer) Start(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", addr).Msg("api server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func instrument(route string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.IncHTTP(route, rec.status)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps domain errors to status codes.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, err.Error())
	case access.IsAccessDenied(err):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, models.ErrAlreadySent), errors.Is(err, models.ErrEmailTaken):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", models.ErrValidation)
	}
	return nil
}

// clientIP returns the caller's address. X-Forwarded-For is only read when
// the peer is a trusted proxy, and then the right-most hop that is not itself
// a trusted proxy wins.
func clientIP(r *http.Request, trusted []netip.Prefix) string {
	remote, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		remote = r.RemoteAddr
	}
	if !isTrusted(remote, trusted) {
		return remote
	}

	var hops []string
	for _, h := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(h, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	for i := len(hops) - 1; i >= 0; i-- {
		if !isTrusted(hops[i], trusted) {
			return hops[i]
		}
	}
	if len(hops) > 0 {
		return hops[0]
	}
	return remote
}

func isTrusted(ip string, trusted []netip.Prefix) bool {
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}
