package domain

import (
	"github.com/golang-jwt/jwt/v5"
)

// ScopeGuardian: право менять политику (лимит, allowlist, реестр).
const ScopeGuardian = "guardian"

type CustomClaims struct {
	Address string          `json:"address"` // адрес гардиана в демо-сети
	Scopes  map[string]bool `json:"scopes"`
	jwt.RegisteredClaims
}

// Secure Token Issuing
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"` // Всегда "Bearer"
	ExpiresIn   int64  `json:"expires_in"`
}
