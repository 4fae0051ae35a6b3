package handler

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/guardian-demo/internal/audit"
	"github.com/xela07ax/guardian-demo/internal/demo/service"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/engine"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"github.com/xela07ax/guardian-demo/internal/policy"
	"github.com/xela07ax/guardian-demo/internal/repository/postgres"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	allowedAddr = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	flaggedAddr = "5CiPPseXPECbkjWCa6MnjNokrgYjMqmKndv2rSnekmSK2DjL"
	childAddr   = "5HpG9w8EBLe5XCrbczpwq5TSXvedjrBGCwqxK1iQ7qUsSWFc"
)

func newRouter(t *testing.T) http.Handler {
	t.Helper()
	store := policy.NewStore(policy.DefaultSeed(time.Now()))
	sim := engine.NewSimulator(store, engine.SimulatorConfig{SimulatedAmount: engine.DefaultSimulatedAmount})
	h := NewPanelHandler(service.NewPanelService(sim), zap.NewNop())

	r := chi.NewRouter()
	r.Get("/v1/state", h.State)
	r.Get("/v1/events", h.Events)
	r.Get("/v1/loading", h.Loading)
	r.Post("/v1/policy/cap", h.SetCap)
	r.Put("/v1/policy/allowlist", h.UpdateAllowlist)
	r.Post("/v1/registry/flags", h.Flag)
	r.Delete("/v1/registry/flags/{address}", h.Unflag)
	r.Post("/v1/check", h.Check)
	return r
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestStateEndpoint(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/v1/state", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string]any](t, rec)
	assert.Equal(t, policy.DemoGuardian, body["guardian"])
	assert.Equal(t, float64(1000), body["spend_cap"])
	assert.Equal(t, float64(1000), body["remaining"])
	assert.Len(t, body["flagged_addresses"], 2)
}

func TestSetCapEndpoint(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/policy/cap", `{"cap": 2000}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cap": 2000}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/policy/cap", `{"cap": "500"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/policy/cap", `{"cap": "abc"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error": "Please enter a valid positive number", "field": "cap"}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/v1/policy/cap", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAllowlistEndpoint(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPut, "/v1/policy/allowlist", `{"addresses": "`+allowedAddr+`, `+childAddr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[map[string][]string](t, rec)
	assert.Equal(t, []string{allowedAddr, childAddr}, body["addresses"])

	rec = do(t, h, http.MethodPut, "/v1/policy/allowlist", `{"addresses": "x"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid address format: x")
}

func TestRegistryEndpoints(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/registry/flags", `{"address": "`+childAddr+`", "reason": "phishing"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/registry/flags", `{"address": "`+childAddr+`", "reason": "again"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/v1/registry/flags", `{"address": "`+childAddr+`", "reason": " "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/registry/flags/"+childAddr, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/registry/flags/"+childAddr, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodDelete, "/v1/registry/flags/bad", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckEndpoint(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodPost, "/v1/check", `{"address": "`+flaggedAddr+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeBody[domain.CheckResult](t, rec)
	assert.False(t, res.Approved)
	assert.Equal(t, domain.OutcomeFlagged, res.Outcome)

	rec = do(t, h, http.MethodPost, "/v1/check", `{"address": ""}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter an address to check")
}

func TestEventsEndpoint(t *testing.T) {
	h := newRouter(t)
	do(t, h, http.MethodPost, "/v1/check", `{"address": "`+allowedAddr+`"}`)
	do(t, h, http.MethodPost, "/v1/policy/cap", `{"cap": 10}`)

	rec := do(t, h, http.MethodGet, "/v1/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	all := decodeBody[[]map[string]any](t, rec)
	require.Len(t, all, 2)
	assert.Equal(t, "SET_CAP", all[0]["type"])
	assert.Equal(t, "Spend cap set to 10 DOT", all[0]["description"])
	assert.Equal(t, "💰", all[0]["icon"])
	assert.Equal(t, "0s ago", all[0]["ago"])

	rec = do(t, h, http.MethodGet, "/v1/events?type=check", "")
	checks := decodeBody[[]map[string]any](t, rec)
	require.Len(t, checks, 1)
	assert.Equal(t, "CHECK", checks[0]["type"])

	rec = do(t, h, http.MethodGet, "/v1/events?type=PAUSE", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoadingEndpoint(t *testing.T) {
	h := newRouter(t)

	rec := do(t, h, http.MethodGet, "/v1/loading", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"setCap": false, "allowlist": false, "flag": false, "unflag": false, "check": false}`, rec.Body.String())
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		code int
	}{
		{domain.NewValidationError("f", "bad"), http.StatusBadRequest},
		{domain.ErrDuplicateFlag, http.StatusConflict},
		{domain.ErrNotFlagged, http.StatusNotFound},
		{errors.Join(errors.New("caller"), domain.ErrNotGuardian), http.StatusForbidden},
		{context.DeadlineExceeded, http.StatusGatewayTimeout},
		{context.Canceled, statusClientClosedRequest},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		writeError(rec, zap.NewNop(), tt.err)
		assert.Equal(t, tt.code, rec.Code, tt.err.Error())
	}
}

type fakeAuditReader struct {
	got    postgres.ListFilter
	recs   []audit.Record
	window time.Duration
	err    error
}

func (f *fakeAuditReader) Stats(_ context.Context, window time.Duration) (*domain.AuditStats, error) {
	f.window = window
	if f.err != nil {
		return nil, f.err
	}
	return &domain.AuditStats{WindowMinutes: int(window.Minutes()), TotalEvents: 3}, nil
}

func (f *fakeAuditReader) ListRecent(_ context.Context, filter postgres.ListFilter) ([]audit.Record, error) {
	f.got = filter
	return f.recs, f.err
}

func TestAuditEndpoint(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		h := NewAuditHandler(nil, zap.NewNop())
		rec := do(t, http.HandlerFunc(h.GetLogs), http.MethodGet, "/v1/audit", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("filters", func(t *testing.T) {
		repo := &fakeAuditReader{recs: []audit.Record{{ID: "e1", Type: domain.EventFlag, Payload: json.RawMessage(`{}`)}}}
		h := NewAuditHandler(repo, zap.NewNop())

		rec := do(t, http.HandlerFunc(h.GetLogs), http.MethodGet, "/v1/audit?type=flag&address="+flaggedAddr+"&limit=5", "")

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, postgres.ListFilter{Type: domain.EventFlag, Address: flaggedAddr, Limit: 5}, repo.got)
		assert.Contains(t, rec.Body.String(), `"id":"e1"`)
	})

	t.Run("bad input", func(t *testing.T) {
		h := NewAuditHandler(&fakeAuditReader{}, zap.NewNop())
		assert.Equal(t, http.StatusBadRequest, do(t, http.HandlerFunc(h.GetLogs), http.MethodGet, "/v1/audit?limit=-1", "").Code)
		assert.Equal(t, http.StatusBadRequest, do(t, http.HandlerFunc(h.GetLogs), http.MethodGet, "/v1/audit?type=nope", "").Code)
	})

	t.Run("storage error", func(t *testing.T) {
		h := NewAuditHandler(&fakeAuditReader{err: errors.New("db down")}, zap.NewNop())
		assert.Equal(t, http.StatusInternalServerError, do(t, http.HandlerFunc(h.GetLogs), http.MethodGet, "/v1/audit", "").Code)
	})
}

func TestAuditStatsEndpoint(t *testing.T) {
	repo := &fakeAuditReader{}
	h := http.HandlerFunc(NewAuditHandler(repo, zap.NewNop()).GetStats)

	rec := do(t, h, http.MethodGet, "/v1/audit/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Hour, repo.window)
	assert.Equal(t, int64(3), decodeBody[domain.AuditStats](t, rec).TotalEvents)

	rec = do(t, h, http.MethodGet, "/v1/audit/stats?window=24h", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 24*time.Hour, repo.window)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/audit/stats?window=1000h", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/v1/audit/stats?window=soon", "").Code)

	disabled := http.HandlerFunc(NewAuditHandler(nil, zap.NewNop()).GetStats)
	assert.Equal(t, http.StatusServiceUnavailable, do(t, disabled, http.MethodGet, "/v1/audit/stats", "").Code)
}

func TestLoginEndpoint(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)
	svc := service.NewAuthService(policy.DemoGuardian, string(hash), auth.NewTokenIssuer(key, time.Hour))
	h := http.HandlerFunc(NewAuthHandler(svc, zap.NewNop()).Login)

	t.Run("valid credentials", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/auth/token", `{"username": "`+policy.DemoGuardian+`", "password": "s3cret"}`)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

		var tok domain.TokenResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
		assert.Equal(t, "Bearer", tok.TokenType)
		assert.NotEmpty(t, tok.AccessToken)
	})

	t.Run("wrong password is a JSON 401", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/auth/token", `{"username": "`+policy.DemoGuardian+`", "password": "nope"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		assert.JSONEq(t, `{"error": "Invalid credentials"}`, rec.Body.String())
	})

	t.Run("malformed body", func(t *testing.T) {
		rec := do(t, h, http.MethodPost, "/auth/token", `{`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid request body")
	})
}
