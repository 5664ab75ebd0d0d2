package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/ternarybob/arbor"
	"golang.org/x/crypto/bcrypt"

	"github.com/ternarybob/stash/internal/common"
	"github.com/ternarybob/stash/internal/interfaces"
	"github.com/ternarybob/stash/internal/models"
)

// CookieName is the session cookie checked by the auth middleware.
const CookieName = "X-Auth-Token"

const tokenScheme = "Bearer "

// Typed failures for callers that map them to HTTP status codes.
var (
	ErrInvalidCredentials = errors.New("incorrect username or password")
	ErrInvalidToken       = errors.New("could not validate credentials")
	ErrUserDisabled       = errors.New("user is disabled")
)

// Service issues and verifies HS256 session tokens backed by the user
// store.
type Service struct {
	config *common.Config
	users  interfaces.UserStore
	logger arbor.ILogger
}

// New creates the auth service.
func New(config *common.Config, users interfaces.UserStore, logger arbor.ILogger) *Service {
	return &Service{
		config: config,
		users:  users,
		logger: logger,
	}
}

// HashPassword hashes a cleartext password for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// GenerateToken verifies the login and returns a signed token with its
// expiry.
func (s *Service) GenerateToken(ctx context.Context, login *models.LoginRequest) (*models.AuthResponse, error) {
	user, err := s.users.GetByUsername(ctx, login.Username)
	if err != nil {
		return nil, ErrInvalidCredentials
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(login.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	expiresAt := time.Now().Add(s.config.TokenExpiration())
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.Username,
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	})

	signed, err := token.SignedString([]byte(s.config.Auth.SecretKey))
	if err != nil {
		return nil, fmt.Errorf("failed to sign token: %w", err)
	}

	s.logger.Info().Str("username", user.Username).Msg("Session token issued")
	return &models.AuthResponse{
		Username:  user.Username,
		Token:     signed,
		ExpiresAt: expiresAt.Format(time.RFC3339),
	}, nil
}

// VerifyToken parses the "Bearer <jwt>" cookie value, validates the
// signature and expiry, and resolves the subject against the user
// store.
func (s *Service) VerifyToken(ctx context.Context, cookieValue string) (*models.User, error) {
	if !strings.HasPrefix(cookieValue, tokenScheme) {
		return nil, ErrInvalidToken
	}
	raw := strings.TrimPrefix(cookieValue, tokenScheme)

	token, err := jwt.ParseWithClaims(raw, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.config.Auth.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	user, err := s.users.GetByUsername(ctx, claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}
	if user.Disabled {
		return nil, ErrUserDisabled
	}
	return user, nil
}

// CookieValue formats a token for the session cookie.
func CookieValue(token string) string {
	return tokenScheme + token
}
