package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/xela07ax/guardian-demo/internal/demo/render"
	"github.com/xela07ax/guardian-demo/internal/demo/service"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"go.uber.org/zap"
)

type PanelHandler struct {
	service *service.PanelService
	logger  *zap.Logger
	now     func() time.Time
}

func NewPanelHandler(s *service.PanelService, logger *zap.Logger) *PanelHandler {
	return &PanelHandler{service: s, logger: logger.Named("panel-api"), now: time.Now}
}

type stateView struct {
	domain.State
	Remaining domain.Balance `json:"remaining"`
}

type eventView struct {
	ID          string              `json:"id"`
	Type        domain.EventType    `json:"type"`
	Data        domain.EventPayload `json:"data"`
	Timestamp   int64               `json:"timestamp"`
	Icon        string              `json:"icon"`
	Description string              `json:"description"`
	Ago         string              `json:"ago"`
}

// State возвращает снимок политики вместе с остатком лимита.
// GET /v1/state
func (h *PanelHandler) State(w http.ResponseWriter, r *http.Request) {
	st := h.service.State()
	writeJSON(w, http.StatusOK, stateView{State: st, Remaining: st.Remaining()})
}

// Events возвращает журнал, свежие первыми.
// GET /v1/events?type=FLAG
func (h *PanelHandler) Events(w http.ResponseWriter, r *http.Request) {
	t := domain.EventType(strings.ToUpper(r.URL.Query().Get("type")))
	if t != "" && !t.Valid() {
		writeError(w, h.logger, domain.NewValidationError("type", "Unknown event type"))
		return
	}

	now := h.now()
	events := h.service.Events(t)
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, eventView{
			ID:          e.ID,
			Type:        e.Type,
			Data:        e.Data,
			Timestamp:   e.Timestamp,
			Icon:        render.Icon(e.Type),
			Description: render.Describe(e),
			Ago:         render.TimeSince(e.Timestamp, now),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// Loading: флаги "операция в процессе" по ключам панелей.
// GET /v1/loading
func (h *PanelHandler) Loading(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.service.Loading())
}

type capRequest struct {
	Cap formValue `json:"cap"`
}

// SetCap POST /v1/policy/cap
func (h *PanelHandler) SetCap(w http.ResponseWriter, r *http.Request) {
	var req capRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	limit, err := h.service.SetCap(r.Context(), string(req.Cap))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]domain.Balance{"cap": limit})
}

type allowlistRequest struct {
	Addresses formValue `json:"addresses"` // "a, b, c"
}

// UpdateAllowlist заменяет allowlist целиком.
// PUT /v1/policy/allowlist
func (h *PanelHandler) UpdateAllowlist(w http.ResponseWriter, r *http.Request) {
	var req allowlistRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	addrs, err := h.service.UpdateAllowlist(r.Context(), string(req.Addresses))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"addresses": addrs})
}

type flagRequest struct {
	Address string `json:"address"`
	Reason  string `json:"reason"`
}

// Flag POST /v1/registry/flags
func (h *PanelHandler) Flag(w http.ResponseWriter, r *http.Request) {
	var req flagRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	if err := h.service.Flag(r.Context(), req.Address, req.Reason); err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// Unflag DELETE /v1/registry/flags/{address}
func (h *PanelHandler) Unflag(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Unflag(r.Context(), chi.URLParam(r, "address")); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type checkRequest struct {
	Address string `json:"address"`
}

// Check: проверка безопасности на демо-сумме. Заблокированная транзакция отдается как 200 с approved=false.
// POST /v1/check
func (h *PanelHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := decode(r, &req); err != nil {
		writeError(w, h.logger, err)
		return
	}

	res, err := h.service.Check(r.Context(), req.Address)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
