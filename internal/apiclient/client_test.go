package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/guardian-demo/internal/domain"
)

var guardianAddr = "0x" + strings.Repeat("ab", 20)

func newTestClient(t *testing.T, h http.HandlerFunc) (*Client, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		h(w, r)
	}))
	t.Cleanup(srv.Close)

	rw := NewReliabilityWrapper(ReliabilityConfig{
		RetryAttempts:  3,
		AttemptTimeout: time.Second,
		CBMaxRequests:  1,
		CBInterval:     time.Minute,
		CBTimeout:      time.Minute,
	})
	return New(srv.URL+"/api/", WithReliability(rw)), &calls
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateChild(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/children", r.URL.Path)
		var req domain.CreateChildRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Alice", req.Name)
		writeJSON(w, http.StatusCreated, domain.APIResponse[domain.Child]{
			Success: true,
			Data:    domain.Child{ID: "c1", Name: req.Name, DID: req.DID, CredentialStatus: domain.CredentialPending},
		})
	})

	resp, err := c.CreateChild(context.Background(), domain.CreateChildRequest{Name: "Alice", DID: "did:kilt:4abc"})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "c1", resp.Data.ID)
	assert.Equal(t, domain.CredentialPending, resp.Data.CredentialStatus)
	assert.Equal(t, int32(1), calls.Load())
}

func TestValidationFailureIsNotSent(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})
	ctx := context.Background()

	_, err := c.CreateChild(ctx, domain.CreateChildRequest{Name: "A"})
	var vErr *domain.ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "name", vErr.Field)
	assert.Equal(t, "Must be at least 2 characters", vErr.Message)

	_, err = c.AddGuardian(ctx, domain.AddGuardianRequest{Address: "nope", Name: "Bob", PermissionLevel: domain.PermissionViewer, ChildID: "c1"})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "address", vErr.Field)

	_, err = c.AddGuardian(ctx, domain.AddGuardianRequest{Address: guardianAddr, Name: "Bob", PermissionLevel: "root", ChildID: "c1"})
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "permissionLevel", vErr.Field)

	_, err = c.RemoveGuardian(ctx, "")
	assert.Error(t, err)

	_, err = c.LogActivity(ctx, "c1", domain.ActivityEntityBlocked, "")
	require.True(t, errors.As(err, &vErr))
	assert.Equal(t, "description", vErr.Field)

	assert.Zero(t, calls.Load())
}

func TestGetGuardiansPassesChildFilter(t *testing.T) {
	var gotQuery atomic.Value
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery.Store(r.URL.RawQuery)
		writeJSON(w, http.StatusOK, domain.APIResponse[[]domain.Guardian]{
			Success: true,
			Data:    []domain.Guardian{{ID: "g1", Address: guardianAddr, PermissionLevel: domain.PermissionAdmin, ChildIDs: []string{"c1"}}},
		})
	})

	resp := c.GetGuardians(context.Background(), "c1")
	assert.True(t, resp.Success)
	require.Len(t, resp.Data, 1)
	assert.Equal(t, "childId=c1", gotQuery.Load())

	c.GetGuardians(context.Background(), "")
	assert.Equal(t, "", gotQuery.Load())
}

func TestLogActivityBody(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, map[string]string{"childId": "c1", "type": "entity_blocked", "description": "blocked 5Go4"}, body)
		writeJSON(w, http.StatusOK, domain.APIResponse[domain.ActivityEntry]{Success: true, Data: domain.ActivityEntry{ID: "a1"}})
	})

	resp, err := c.LogActivity(context.Background(), "c1", domain.ActivityEntityBlocked, "blocked 5Go4")
	require.NoError(t, err)
	assert.Equal(t, "a1", resp.Data.ID)
}

func TestServerErrorsAreRetriedThenMapped(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	resp := c.GetChildren(context.Background())

	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to fetch children", resp.Error)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClientErrorsAreNotRetried(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, domain.APIResponse[domain.Child]{Success: false, Error: "not found"})
	})

	resp, err := c.GetChild(context.Background(), "missing")

	require.NoError(t, err)
	assert.False(t, resp.Success)
	assert.Equal(t, "Failed to fetch child", resp.Error)
	assert.Equal(t, int32(1), calls.Load())
}

func TestThrottledThenSucceeds(t *testing.T) {
	var n atomic.Int32
	c, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if n.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		writeJSON(w, http.StatusOK, domain.APIResponse[[]domain.ActivityEntry]{Success: true, Data: []domain.ActivityEntry{}})
	})

	resp := c.GetActivityLog(context.Background(), "c1")

	assert.True(t, resp.Success)
	assert.Equal(t, int32(2), calls.Load())
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url)
	resp, err := c.RemoveGuardian(context.Background(), "g1")

	require.NoError(t, err)
	assert.Equal(t, domain.APIResponse[struct{}]{Success: false, Error: "Failed to remove guardian"}, resp)
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 3*time.Second, parseRetryAfter("3"))
	assert.Zero(t, parseRetryAfter(""))
	assert.Zero(t, parseRetryAfter("soon"))
}
