package handler

import (
	"errors"
	"net/http"

	"github.com/xela07ax/guardian-demo/internal/demo/service"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

type AuthHandler struct {
	service *service.AuthService
	logger  *zap.Logger
}

func NewAuthHandler(s *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{service: s, logger: logger.Named("auth-api")}
}

// Login выдает токен гардиана по адресу и паролю.
// POST /auth/token {"username": "<адрес гардиана>", "password": "..."}
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	resp, err := h.service.GenerateToken(r.Context(), req.Username, req.Password)
	if errors.Is(err, service.ErrInvalidCredentials) {
		// не уточняем, что именно неверно (логин или пароль)
		h.logger.Warn("login rejected", zap.String("username", req.Username))
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "Invalid credentials"})
		return
	}
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
