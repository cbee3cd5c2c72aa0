package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"remindr/internal/models"
)

const minPasswordLength = 6

// Session is the result of a successful login or registration.
type Session struct {
	Token     string              `json:"token"`
	ExpiresAt time.Time           `json:"expiresAt"`
	User      models.UserResponse `json:"user"`
}

// AuthService registers accounts and verifies credentials.
type AuthService struct {
	users  UserRepository
	tokens TokenIssuer
	cost   int
	logger zerolog.Logger
	now    func() time.Time
}

func NewAuthService(users UserRepository, tokens TokenIssuer, bcryptCost int, logger zerolog.Logger) *AuthService {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &AuthService{
		users:  users,
		tokens: tokens,
		cost:   bcryptCost,
		logger: logger.With().Str("component", "auth").Logger(),
		now:    time.Now,
	}
}

// Register creates an account and opens a session for it.
func (s *AuthService) Register(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))

	switch {
	case name == "" || email == "" || password == "":
		return nil, fmt.Errorf("%w: name, email and password are required", models.ErrValidation)
	case len(password) < minPasswordLength:
		return nil, fmt.Errorf("%w: password must be at least %d characters", models.ErrValidation, minPasswordLength)
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", models.ErrValidation)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		return nil, err
	}

	s.logger.Info().Str("user_id", u.ID).Msg("user registered")
	return s.session(u)
}

// Login verifies credentials. Unknown email and wrong password are
// indistinguishable to the caller.
func (s *AuthService) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.users.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn().Str("user_id", u.ID).Msg("login failed")
		return nil, models.ErrInvalidCredentials
	}

	return s.session(u)
}

// Me returns the account behind a session.
func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) session(u *models.User) (*Session, error) {
	token, expires, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expires, User: u.ToResponse()}, nil
}
