// Package apiclient: клиент внешнего REST API управления детьми, гардианами
// и журналом активности. Ответы API приходят в конверте {success, data?, error?}.
//
// Транспортные ошибки не возвращаются вызывающему: они превращаются в
// {success:false, error:"Failed to ..."}. Ошибкой (*domain.ValidationError)
// возвращается только некорректный ввод, который не был отправлен.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xela07ax/guardian-demo/internal/domain"
	"github.com/xela07ax/guardian-demo/internal/validation"
	"go.uber.org/zap"
)

const DefaultBaseURL = "http://localhost:3001/api"

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithReliability(rw *ReliabilityWrapper) Option {
	return func(c *Client) { c.rw = rw }
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger.Named("apiclient") }
}

type Client struct {
	baseURL string
	http    *http.Client
	rw      *ReliabilityWrapper
	logger  *zap.Logger
}

func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.rw == nil {
		c.rw = NewReliabilityWrapper(ReliabilityConfig{RetryAttempts: 1})
	}
	return c
}

var (
	createChildRules = validation.New(
		validation.F("name", validation.Required, validation.MinLength(2)),
		validation.F("did", validation.DID),
	)
	addGuardianRules = validation.New(
		validation.F("address", validation.Required, validation.Address),
		validation.F("name", validation.Required, validation.MinLength(2)),
		validation.F("email", validation.Email),
		validation.F("permissionLevel", validation.Required,
			validation.OneOf(string(domain.PermissionAdmin), string(domain.PermissionModerator), string(domain.PermissionViewer))),
		validation.F("childId", validation.Required),
	)
	idRules = validation.New(
		validation.F("id", validation.Required),
	)
	logActivityRules = validation.New(
		validation.F("childId", validation.Required),
		validation.F("type", validation.Required),
		validation.F("description", validation.Required),
	)
)

func (c *Client) CreateChild(ctx context.Context, req domain.CreateChildRequest) (domain.APIResponse[domain.Child], error) {
	if err := createChildRules.Check(map[string]string{"name": req.Name, "did": req.DID}); err != nil {
		return domain.APIResponse[domain.Child]{}, err
	}
	return call[domain.Child](ctx, c, http.MethodPost, "/children", nil, req, "Failed to create child"), nil
}

func (c *Client) GetChildren(ctx context.Context) domain.APIResponse[[]domain.Child] {
	return call[[]domain.Child](ctx, c, http.MethodGet, "/children", nil, nil, "Failed to fetch children")
}

func (c *Client) GetChild(ctx context.Context, id string) (domain.APIResponse[domain.Child], error) {
	if err := idRules.Check(map[string]string{"id": id}); err != nil {
		return domain.APIResponse[domain.Child]{}, err
	}
	return call[domain.Child](ctx, c, http.MethodGet, "/children/"+url.PathEscape(id), nil, nil, "Failed to fetch child"), nil
}

func (c *Client) AddGuardian(ctx context.Context, req domain.AddGuardianRequest) (domain.APIResponse[domain.Guardian], error) {
	err := addGuardianRules.Check(map[string]string{
		"address":         req.Address,
		"name":            req.Name,
		"email":           req.Email,
		"permissionLevel": string(req.PermissionLevel),
		"childId":         req.ChildID,
	})
	if err != nil {
		return domain.APIResponse[domain.Guardian]{}, err
	}
	return call[domain.Guardian](ctx, c, http.MethodPost, "/guardians", nil, req, "Failed to add guardian"), nil
}

// GetGuardians: все гардианы или только привязанные к childID (если не пуст).
func (c *Client) GetGuardians(ctx context.Context, childID string) domain.APIResponse[[]domain.Guardian] {
	return call[[]domain.Guardian](ctx, c, http.MethodGet, "/guardians", childQuery(childID), nil, "Failed to fetch guardians")
}

func (c *Client) RemoveGuardian(ctx context.Context, guardianID string) (domain.APIResponse[struct{}], error) {
	if err := idRules.Check(map[string]string{"id": guardianID}); err != nil {
		return domain.APIResponse[struct{}]{}, err
	}
	return call[struct{}](ctx, c, http.MethodDelete, "/guardians/"+url.PathEscape(guardianID), nil, nil, "Failed to remove guardian"), nil
}

func (c *Client) GetActivityLog(ctx context.Context, childID string) domain.APIResponse[[]domain.ActivityEntry] {
	return call[[]domain.ActivityEntry](ctx, c, http.MethodGet, "/activity", childQuery(childID), nil, "Failed to fetch activity log")
}

func (c *Client) LogActivity(ctx context.Context, childID string, typ domain.ActivityType, description string) (domain.APIResponse[domain.ActivityEntry], error) {
	err := logActivityRules.Check(map[string]string{"childId": childID, "type": string(typ), "description": description})
	if err != nil {
		return domain.APIResponse[domain.ActivityEntry]{}, err
	}
	body := domain.LogActivityRequest{ChildID: childID, Type: typ, Description: description}
	return call[domain.ActivityEntry](ctx, c, http.MethodPost, "/activity", nil, body, "Failed to log activity"), nil
}

func childQuery(childID string) url.Values {
	if childID == "" {
		return nil
	}
	return url.Values{"childId": {childID}}
}

// call выполняет запрос через ReliabilityWrapper и разбирает конверт ответа.
// Любой сбой (сеть, статус вне 2xx, битый JSON) превращается в failMsg.
func call[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any, failMsg string) domain.APIResponse[T] {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			c.logger.Error("encode request", zap.String("path", path), zap.Error(err))
			return domain.APIResponse[T]{Success: false, Error: failMsg}
		}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var out domain.APIResponse[T]
	err := c.rw.Call(ctx, func(ctx context.Context) error {
		var rdr io.Reader
		if payload != nil {
			rdr = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rdr)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
		if err != nil {
			return err
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			return &ThrottleError{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")), Cause: &StatusError{Code: resp.StatusCode}}
		case resp.StatusCode < 200 || resp.StatusCode > 299:
			return &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 200)}
		}

		var env domain.APIResponse[T]
		if err := json.Unmarshal(raw, &env); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		out = env
		return nil
	})
	if err != nil {
		c.logger.Warn("api call failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err))
		return domain.APIResponse[T]{Success: false, Error: failMsg}
	}
	return out
}

func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
