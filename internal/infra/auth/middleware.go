package auth

import (
	"context"
	"fmt"
	"net/http"

	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

// TokenValidator: интерфейс, который реализуют HTTP middleware и gRPC interceptor
type TokenValidator interface {
	VerifyToken(tokenStr string) (*domain.CustomClaims, error)
}

type ctxKey struct{}

// WithClaims кладет проверенные claims в контекст.
func WithClaims(ctx context.Context, claims *domain.CustomClaims) context.Context {
	return context.WithValue(ctx, ctxKey{}, claims)
}

func ClaimsFromContext(ctx context.Context) (*domain.CustomClaims, bool) {
	claims, ok := ctx.Value(ctxKey{}).(*domain.CustomClaims)
	return claims, ok && claims != nil
}

// EnsureGuardian пропускает только вызывающего, чей токен выписан на адрес гардиана.
func EnsureGuardian(ctx context.Context, guardian string) error {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return fmt.Errorf("no credentials: %w", domain.ErrNotGuardian)
	}
	if claims.Address != guardian || !claims.Scopes[domain.ScopeGuardian] {
		return fmt.Errorf("caller %s: %w", claims.Subject, domain.ErrNotGuardian)
	}
	return nil
}

// NewMiddleware требует валидный токен на всех запросах группы.
func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// NewOptionalMiddleware разбирает токен, если он есть, но не требует его.
// Решение о доступе принимает сервис (EnsureGuardian).
func NewOptionalMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" || v == nil {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.Error(err))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}
