package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xela07ax/guardian-demo/internal/demo/handler"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"go.uber.org/zap"
)

type DemoServer struct {
	router *chi.Mux
	logger *zap.Logger

	// nil, если авторизация выключена: тогда все роуты открыты.
	// Иначе история аудита требует токен, а мутации еще и адрес гардиана.
	authValidator auth.TokenValidator

	authHandler  *handler.AuthHandler  // /auth/token
	panelHandler *handler.PanelHandler // /v1/state, /v1/policy, /v1/registry, /v1/check
	auditHandler *handler.AuditHandler // /v1/audit
}

// NewDemoServer собирает HTTP API демо-сессии. authH может быть nil.
func NewDemoServer(
	logger *zap.Logger,
	validator auth.TokenValidator,
	authH *handler.AuthHandler,
	panelH *handler.PanelHandler,
	auditH *handler.AuditHandler,
) *DemoServer {
	s := &DemoServer{
		router:        chi.NewRouter(),
		logger:        logger.Named("demo-api"),
		authValidator: validator,
		authHandler:   authH,
		panelHandler:  panelH,
		auditHandler:  auditH,
	}

	s.routes()
	return s
}

func (s *DemoServer) routes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TracingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Group(func(r chi.Router) {
		if s.authHandler != nil {
			r.Post("/auth/token", s.authHandler.Login)
		}

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	// Токен необязателен: чтение и проверки публичные,
	// мутации отклоняет сервис, если вызывающий не гардиан.
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewOptionalMiddleware(s.authValidator, s.logger))
		}

		r.Get("/v1/state", s.panelHandler.State)
		r.Get("/v1/events", s.panelHandler.Events)
		r.Get("/v1/loading", s.panelHandler.Loading)

		r.Route("/v1/policy", func(r chi.Router) {
			r.Post("/cap", s.panelHandler.SetCap)
			r.Put("/allowlist", s.panelHandler.UpdateAllowlist)
		})

		r.Route("/v1/registry/flags", func(r chi.Router) {
			r.Post("/", s.panelHandler.Flag)
			r.Delete("/{address}", s.panelHandler.Unflag)
		})

		r.Post("/v1/check", s.panelHandler.Check)
	})

	// История переживает рестарты и раскрывает всю активность: только по токену.
	r.Group(func(r chi.Router) {
		if s.authValidator != nil {
			r.Use(auth.NewMiddleware(s.authValidator, s.logger))
		}

		r.Get("/v1/audit", s.auditHandler.GetLogs)
		r.Get("/v1/audit/stats", s.auditHandler.GetStats)
	})
}

func (s *DemoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
