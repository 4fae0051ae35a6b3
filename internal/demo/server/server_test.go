package server

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/guardian-demo/internal/demo/handler"
	"github.com/xela07ax/guardian-demo/internal/demo/service"
	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/engine"
	"github.com/xela07ax/guardian-demo/internal/infra/auth"
	"github.com/xela07ax/guardian-demo/internal/policy"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const (
	allowedAddr = "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty"
	childAddr   = "5HpG9w8EBLe5XCrbczpwq5TSXvedjrBGCwqxK1iQ7qUsSWFc"
	password    = "guardian-pass"
)

type fixture struct {
	panel     *service.PanelService
	validator *auth.BaseValidator
	issuer    *auth.TokenIssuer
	authSvc   *service.AuthService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	store := policy.NewStore(policy.DefaultSeed(time.Now()))
	sim := engine.NewSimulator(store, engine.SimulatorConfig{SimulatedAmount: engine.DefaultSimulatedAmount})
	issuer := auth.NewTokenIssuer(key, time.Hour)

	return &fixture{
		panel:     service.NewPanelService(sim, service.WithGuardianOnly(true)),
		validator: auth.NewBaseValidator(&key.PublicKey),
		issuer:    issuer,
		authSvc:   service.NewAuthService(policy.DemoGuardian, string(hash), issuer),
	}
}

func (f *fixture) httpServer() *DemoServer {
	logger := zap.NewNop()
	return NewDemoServer(logger, f.validator,
		handler.NewAuthHandler(f.authSvc, logger),
		handler.NewPanelHandler(f.panel, logger),
		handler.NewAuditHandler(nil, logger))
}

func request(t *testing.T, h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndTraceHeader(t *testing.T) {
	srv := newFixture(t).httpServer()

	rec := request(t, srv, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(TraceHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(TraceHeader, "trace-42")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, "trace-42", rec.Header().Get(TraceHeader))
}

func TestGuardianFlowOverHTTP(t *testing.T) {
	srv := newFixture(t).httpServer()

	// без токена мутации запрещены, чтение и проверки открыты
	rec := request(t, srv, http.MethodPost, "/v1/policy/cap", `{"cap": 5}`, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = request(t, srv, http.MethodPost, "/v1/check", `{"address": "`+allowedAddr+`"}`, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, srv, http.MethodPost, "/auth/token", `{"username": "`+policy.DemoGuardian+`", "password": "nope"}`, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = request(t, srv, http.MethodPost, "/auth/token", `{"username": "`+policy.DemoGuardian+`", "password": "`+password+`"}`, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var tok domain.TokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))

	rec = request(t, srv, http.MethodPost, "/v1/policy/cap", `{"cap": 5}`, tok.AccessToken)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = request(t, srv, http.MethodPost, "/v1/registry/flags", `{"address": "`+childAddr+`", "reason": "test"}`, tok.AccessToken)
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = request(t, srv, http.MethodDelete, "/v1/registry/flags/"+childAddr, "", tok.AccessToken)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = request(t, srv, http.MethodPost, "/v1/policy/cap", `{"cap": 5}`, "garbage")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// история аудита закрыта целиком: без токена и с мусором 401, с токеном доходит до хранилища
	for _, path := range []string{"/v1/audit", "/v1/audit/stats"} {
		assert.Equal(t, http.StatusUnauthorized, request(t, srv, http.MethodGet, path, "", "").Code, path)
		assert.Equal(t, http.StatusUnauthorized, request(t, srv, http.MethodGet, path, "", "garbage").Code, path)
		assert.Equal(t, http.StatusServiceUnavailable, request(t, srv, http.MethodGet, path, "", tok.AccessToken).Code, path)
	}
}

func TestAuditOpenWhenAuthDisabled(t *testing.T) {
	f := newFixture(t)
	logger := zap.NewNop()
	srv := NewDemoServer(logger, nil, nil,
		handler.NewPanelHandler(f.panel, logger),
		handler.NewAuditHandler(nil, logger))

	assert.Equal(t, http.StatusServiceUnavailable, request(t, srv, http.MethodGet, "/v1/audit", "", "").Code)
	assert.Equal(t, http.StatusNotFound, request(t, srv, http.MethodPost, "/auth/token", `{}`, "").Code)
}

func dialBuf(t *testing.T, srv *grpc.Server) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestPolicyServiceOverGRPC(t *testing.T) {
	f := newFixture(t)
	conn := dialBuf(t, NewGRPCServer(f.panel, f.validator, zap.NewNop()))
	client := NewPolicyClient(conn)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hc, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: PolicyServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hc.GetStatus())

	res, err := client.CheckAddress(ctx, allowedAddr)
	require.NoError(t, err)
	assert.True(t, res.GetFields()["approved"].GetBoolValue())
	assert.Equal(t, "approved", res.GetFields()["outcome"].GetStringValue())

	_, err = client.CheckAddress(ctx, "bad")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	st, err := client.GetState(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(150), st.GetFields()["current_spent"].GetNumberValue())
	assert.Equal(t, float64(850), st.GetFields()["remaining"].GetNumberValue())

	_, err = client.FlagAddress(ctx, childAddr, "scam")
	assert.Equal(t, codes.PermissionDenied, status.Code(err))

	tok, err := f.issuer.Issue(policy.DemoGuardian, map[string]bool{domain.ScopeGuardian: true})
	require.NoError(t, err)
	authed := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer "+tok.AccessToken)

	_, err = client.FlagAddress(authed, childAddr, "scam")
	require.NoError(t, err)
	_, err = client.FlagAddress(authed, childAddr, "scam")
	assert.Equal(t, codes.AlreadyExists, status.Code(err))
	_, err = client.UnflagAddress(authed, childAddr)
	require.NoError(t, err)
	_, err = client.UnflagAddress(authed, childAddr)
	assert.Equal(t, codes.NotFound, status.Code(err))

	bad := metadata.AppendToOutgoingContext(ctx, "authorization", "Bearer nope")
	_, err = client.GetState(bad)
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
