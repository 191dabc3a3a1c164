// Package accessclient is a typed client for the data room's access-control
// workflow: capability checks, request/approval lifecycle and revocation.
// It is UI-framework free so dashboards, CLIs and tests share one implementation.
package accessclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"dataroom-backend/pkg/models"
)

// Session carries the caller's identity explicitly instead of reading
// role/token from ambient storage. The gate's admin bypass keys off Role.
type Session struct {
	UserID string
	Email  string
	Role   models.UserRole
	Token  string
}

// IsAdmin 检查会话角色是否为管理员
func (s Session) IsAdmin() bool {
	return s.Role == models.RoleAdmin
}

// APIError is returned when the backend responds with a non-2xx status.
// Error() yields the backend message verbatim so callers can surface it
// to the user unmodified.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return e.Message
}

// Client is a typed HTTP client for the access-control endpoints.
type Client struct {
	BaseURL    string
	Session    Session
	HTTPClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTPClient = hc }
}

// WithTimeout sets the HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.HTTPClient.Timeout = d }
}

// NewClient creates a client bound to one user session.
func NewClient(baseURL string, session Session, opts ...Option) *Client {
	c := &Client{
		BaseURL: baseURL,
		Session: session,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// envelope 后端统一响应包装
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do 发送请求。raw=true 时响应体不带统一包装（访问检查端点）。
func (c *Client) do(ctx context.Context, method, path string, body any, out any, raw bool) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Session.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Session.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{Status: resp.StatusCode, Message: "unexpected error"}
		var env envelope
		if err := json.NewDecoder(resp.Body).Decode(&env); err == nil {
			if env.Error != nil && env.Error.Message != "" {
				apiErr.Code = env.Error.Code
				apiErr.Message = env.Error.Message
			} else if env.Message != "" {
				apiErr.Message = env.Message
			}
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if raw {
		return json.NewDecoder(resp.Body).Decode(out)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("malformed response: %w", err)
	}
	if env.Data == nil {
		return fmt.Errorf("malformed response: missing data")
	}
	return json.Unmarshal(env.Data, out)
}

// FetchAccess calls GET /api/access/check for the session user.
// The response shape {hasAccess, accessTypes} is a fixed contract.
func (c *Client) FetchAccess(ctx context.Context, itemID string, itemType models.ItemType) (models.AccessCheckResponse, error) {
	var out models.AccessCheckResponse
	q := url.Values{}
	q.Set("itemId", itemID)
	q.Set("itemType", string(itemType))
	err := c.do(ctx, http.MethodGet, "/api/access/check?"+q.Encode(), nil, &out, true)
	return out, err
}

// CreateRequestInput is the payload for a new access request.
type CreateRequestInput struct {
	ItemID      string              `json:"itemId"`
	ItemType    models.ItemType     `json:"itemType"`
	ItemName    string              `json:"itemName"`
	AccessTypes []models.AccessType `json:"accessTypes"`
}

// CreateRequest calls POST /api/access/request.
func (c *Client) CreateRequest(ctx context.Context, input CreateRequestInput) (*models.AccessRequest, error) {
	var out models.AccessRequest
	if err := c.do(ctx, http.MethodPost, "/api/access/request", input, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListRequests calls GET /api/access/requests. status narrows the listing
// when non-empty; non-admin sessions only ever see their own requests.
func (c *Client) ListRequests(ctx context.Context, status models.AccessRequestStatus) ([]models.AccessRequest, error) {
	path := "/api/access/requests"
	if status != "" {
		path += "?status=" + url.QueryEscape(string(status))
	}
	var out struct {
		Requests []models.AccessRequest `json:"requests"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return out.Requests, nil
}

// GetRequest calls GET /api/access/requests/{id}.
func (c *Client) GetRequest(ctx context.Context, requestID string) (*models.AccessRequest, error) {
	var out models.AccessRequest
	if err := c.do(ctx, http.MethodGet, "/api/access/requests/"+url.PathEscape(requestID), nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// DecideRequest calls PUT /api/access/requests/{id} with a status verdict.
func (c *Client) DecideRequest(ctx context.Context, requestID string, status models.AccessRequestStatus) (*models.AccessRequest, error) {
	var out models.AccessRequest
	body := map[string]models.AccessRequestStatus{"status": status}
	if err := c.do(ctx, http.MethodPut, "/api/access/requests/"+url.PathEscape(requestID), body, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// RevokeAccessType calls PUT /api/access/requests/{id} with a revoke action,
// removing one capability tag from an approved request.
func (c *Client) RevokeAccessType(ctx context.Context, requestID string, accessType models.AccessType) error {
	body := map[string]any{"action": "revoke", "accessType": accessType}
	var out json.RawMessage
	return c.do(ctx, http.MethodPut, "/api/access/requests/"+url.PathEscape(requestID), body, &out, false)
}

// DeleteRequest calls DELETE /api/access/requests/{id}, revoking every
// capability the request granted.
func (c *Client) DeleteRequest(ctx context.Context, requestID string) error {
	var out json.RawMessage
	return c.do(ctx, http.MethodDelete, "/api/access/requests/"+url.PathEscape(requestID), nil, &out, false)
}

// ItemUsers calls GET /api/access/item-users (admin only).
func (c *Client) ItemUsers(ctx context.Context, itemID string, itemType models.ItemType) ([]models.ItemUserAccess, error) {
	q := url.Values{}
	q.Set("itemId", itemID)
	q.Set("itemType", string(itemType))
	var out struct {
		Users []models.ItemUserAccess `json:"users"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/access/item-users?"+q.Encode(), nil, &out, false); err != nil {
		return nil, err
	}
	return out.Users, nil
}
