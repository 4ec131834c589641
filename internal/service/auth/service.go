package auth

import (
	"context"
	"errors"
	"strings"

	"log/slog"

	"github.com/ratekl/api/internal/domain"
	"github.com/ratekl/api/internal/store"
	"github.com/ratekl/api/pkg/config"
	"github.com/ratekl/api/pkg/crypto"
	jwtpkg "github.com/ratekl/api/pkg/jwt"
)

// ErrInvalidCredentials reports a failed login.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// MemberFinder loads a member of the request's tenant.
type MemberFinder interface {
	FindByID(ctx context.Context, id string, filter store.Filter) (domain.AppMember, error)
}

// Service handles authentication workflows.
type Service struct {
	members MemberFinder
	logger  *slog.Logger
	cfg     config.APIConfig
}

// New constructs a Service.
func New(members MemberFinder, logger *slog.Logger, cfg config.APIConfig) Service {
	return Service{members: members, logger: logger, cfg: cfg}
}

// Login authenticates a member of the current tenant and returns a signed
// token. The password matches a stored bcrypt hash, or a stored plaintext
// password equal to the member's phone digits.
func (s Service) Login(ctx context.Context, userName, password string) (string, error) {
	userName = strings.TrimSpace(userName)
	if userName == "" || password == "" {
		return "", ErrInvalidCredentials
	}
	m, err := s.members.FindByID(ctx, userName, store.Filter{})
	if err != nil {
		s.logger.Debug("login lookup failed", "user_name", userName, "error", err)
		return "", ErrInvalidCredentials
	}
	if !passwordMatches(m, password) {
		s.logger.Info("login rejected", "user_name", userName)
		return "", ErrInvalidCredentials
	}
	token, err := jwtpkg.GenerateToken(m.UserName, m.Email, m.DisplayName(), s.cfg.JWTSecret, s.cfg.AccessTokenTTL)
	if err != nil {
		return "", err
	}
	s.logger.Info("member logged in", "user_name", m.UserName)
	return token, nil
}

func passwordMatches(m domain.AppMember, password string) bool {
	if crypto.IsHash(m.Password) && crypto.ComparePassword([]byte(m.Password), password) == nil {
		return true
	}
	return m.Password != "" && m.Password == m.PhoneDigits() && m.Password == password
}

// Authorize validates a bearer token and returns the caller it names.
func (s Service) Authorize(token string) (domain.Principal, error) {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return domain.Principal{}, errors.New("token required")
	}
	claims, err := jwtpkg.Parse(trimmed, s.cfg.JWTSecret)
	if err != nil {
		return domain.Principal{}, err
	}
	if claims.UserID == "" {
		return domain.Principal{}, errors.New("token has no subject")
	}
	return domain.Principal{ID: claims.UserID, Email: claims.Email, Name: claims.Name}, nil
}
