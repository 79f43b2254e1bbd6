// Package auth handles account registration and token-based login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/gavelhq/gavel/internal/clock"
	"github.com/gavelhq/gavel/internal/config"
	"github.com/gavelhq/gavel/internal/store"
)

var (
	// ErrInvalidCredentials is returned when the username or password is wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for expired or malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
)

// Service issues and verifies signed session tokens backed by the user store.
type Service struct {
	users  store.UserRepository
	cfg    config.AuthConfig
	clk    clock.Clock
	logger *slog.Logger
}

// NewService returns an auth service over the given user repository.
func NewService(users store.UserRepository, cfg config.AuthConfig, clk clock.Clock, logger *slog.Logger) *Service {
	return &Service{users: users, cfg: cfg, clk: clk, logger: logger}
}

// Register creates an account with a bcrypt-hashed password and returns it.
func (s *Service) Register(ctx context.Context, username, password string) (*store.User, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: empty username or password", ErrInvalidCredentials)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}
	u := &store.User{Username: username, PasswordHash: string(hash)}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}
	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", u.ID))
	return u, nil
}

// Login verifies the credentials and returns a signed token for the user.
func (s *Service) Login(ctx context.Context, username, password string) (string, *store.User, error) {
	u, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return "", nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", nil, ErrInvalidCredentials
	}

	now := s.clk.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   u.ID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TokenTTL)),
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", nil, fmt.Errorf("signing token: %w", err)
	}
	return signed, u, nil
}

// Verify parses a token and returns the user it belongs to.
func (s *Service) Verify(ctx context.Context, tokenString string) (*store.User, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return []byte(s.cfg.JWTSecret), nil
		},
		jwt.WithTimeFunc(s.clk.Now),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	u, err := s.users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return u, nil
}
