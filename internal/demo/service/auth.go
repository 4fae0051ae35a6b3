package service

import (
	"context"
	"errors"

	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = errors.New("invalid credentials")

// AuthService выдает токен гардиану демо-сети.
// Логин: адрес гардиана, пароль сверяется с bcrypt-хешем из конфигурации.
type AuthService struct {
	guardian     string
	passwordHash []byte
	issuer       *auth.TokenIssuer
}

func NewAuthService(guardian, passwordHash string, issuer *auth.TokenIssuer) *AuthService {
	return &AuthService{
		guardian:     guardian,
		passwordHash: []byte(passwordHash),
		issuer:       issuer,
	}
}

func (s *AuthService) GenerateToken(_ context.Context, username, password string) (*domain.TokenResponse, error) {
	if len(s.passwordHash) == 0 || username != s.guardian {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(s.passwordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issuer.Issue(s.guardian, map[string]bool{domain.ScopeGuardian: true})
}
