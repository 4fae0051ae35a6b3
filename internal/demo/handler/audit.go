package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/guardian-demo/internal/audit"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/repository/postgres"
	"go.uber.org/zap"
)

// AuditReader: история событий, пережившая рестарты (PostgreSQL).
type AuditReader interface {
	ListRecent(ctx context.Context, f postgres.ListFilter) ([]audit.Record, error)
	Stats(ctx context.Context, window time.Duration) (*domain.AuditStats, error)
}

const (
	defaultStatsWindow = time.Hour
	maxStatsWindow     = 7 * 24 * time.Hour
)

type AuditHandler struct {
	repo   AuditReader
	logger *zap.Logger
}

// NewAuditHandler: repo может быть nil, если база не настроена.
func NewAuditHandler(repo AuditReader, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{repo: repo, logger: logger.Named("audit-api")}
}

// GetLogs возвращает историю событий с фильтрами
// GET /v1/audit?type=FLAG&address=...&limit=100
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "audit storage is not configured"})
		return
	}

	q := r.URL.Query()
	f := postgres.ListFilter{
		Type:    domain.EventType(strings.ToUpper(q.Get("type"))),
		Address: q.Get("address"),
	}
	if f.Type != "" && !f.Type.Valid() {
		writeError(w, h.logger, domain.NewValidationError("type", "Unknown event type"))
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, h.logger, domain.NewValidationError("limit", "Limit must be a non-negative integer"))
			return
		}
		f.Limit = n
	}

	logs, err := h.repo.ListRecent(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to fetch audit logs", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch audit logs"})
		return
	}
	writeJSON(w, http.StatusOK, logs)
}

// GetStats: сводка по истории за окно (по умолчанию час).
// GET /v1/audit/stats?window=24h
func (h *AuditHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "audit storage is not configured"})
		return
	}

	window := defaultStatsWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 || d > maxStatsWindow {
			writeError(w, h.logger, domain.NewValidationError("window", "Window must be a duration up to 168h"))
			return
		}
		window = d
	}

	stats, err := h.repo.Stats(r.Context(), window)
	if err != nil {
		h.logger.Error("failed to fetch audit stats", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Failed to fetch stats"})
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
