// Package access decides which accounts may use operator functions.
package access

import (
	"errors"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Service holds the operator allow-list. It is safe for concurrent use and
// can be replaced at runtime.
type Service struct {
	mu        sync.RWMutex
	operators map[string]struct{}
	logger    zerolog.Logger
}

// NewService creates an access service with the given operator emails.
func NewService(operators []string, logger zerolog.Logger) *Service {
	s := &Service{logger: logger.With().Str("component", "access").Logger()}
	s.SetOperators(operators)
	return s
}

// SetOperators replaces the allow-list.
func (s *Service) SetOperators(emails []string) {
	next := make(map[string]struct{}, len(emails))
	for _, e := range emails {
		e = normalize(e)
		if e != "" {
			next[e] = struct{}{}
		}
	}

	s.mu.Lock()
	s.operators = next
	s.mu.Unlock()

	s.logger.Info().Int("operators", len(next)).Msg("operator list updated")
}

// Operators returns the current allow-list, sorted.
func (s *Service) Operators() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.operators))
	for e := range s.operators {
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// IsOperator reports whether email belongs to an operator.
func (s *Service) IsOperator(email string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.operators[normalize(email)]
	return ok
}

// RequireOperator returns an AccessDeniedError unless email is an operator.
func (s *Service) RequireOperator(email string) error {
	if !s.IsOperator(email) {
		s.logger.Warn().Str("email", email).Msg("operator action denied")
		return &AccessDeniedError{Reason: "this action is available to operators only"}
	}
	return nil
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AccessDeniedError is returned when access is denied.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string {
	return e.Reason
}

// IsAccessDenied checks if err is, or wraps, an AccessDeniedError.
func IsAccessDenied(err error) bool {
	var denied *AccessDeniedError
	return errors.As(err, &denied)
}
