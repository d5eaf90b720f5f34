// Package xboard is the typed client for the XBoard analytics backend.
package xboard

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"xboard/internal/models"
)

// ErrUnauthorized is wrapped by APIError for 401/403 responses so callers can
// detect a dead session with errors.Is.
var ErrUnauthorized = errors.New("unauthorized")

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

func (e *APIError) Unwrap() error {
	if e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}

// IsAuthError reports whether err is a credential rejection from the backend.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(httpClient *http.Client, baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:3001/api"
	}
	baseURL = strings.TrimRight(baseURL, "/")
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body any, out any) error {
	fullURL := c.baseURL + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, fullURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

type authResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	var ar authResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", "", nil, map[string]string{
		"email":    email,
		"password": password,
	}, &ar)
	if err != nil {
		return "", err
	}
	if !ar.Success || strings.TrimSpace(ar.Token) == "" {
		return "", fmt.Errorf("login rejected: %s", ar.Error)
	}
	return strings.TrimSpace(ar.Token), nil
}

// RegisterRequest carries the new-account and store credentials.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	ShopDomain  string `json:"shop_domain"`
	AccessToken string `json:"access_token"`
}

// Register creates an account bound to a store and returns a session token.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (string, error) {
	var ar authResponse
	if err := c.do(ctx, http.MethodPost, "/auth/register", "", nil, req, &ar); err != nil {
		return "", err
	}
	if !ar.Success || strings.TrimSpace(ar.Token) == "" {
		return "", fmt.Errorf("register rejected: %s", ar.Error)
	}
	return strings.TrimSpace(ar.Token), nil
}

func (c *Client) Me(ctx context.Context, token string) (*models.UserInfo, error) {
	var out models.UserInfo
	if err := c.do(ctx, http.MethodGet, "/me", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Overview(ctx context.Context, token string) (*models.Overview, error) {
	var out models.Overview
	if err := c.do(ctx, http.MethodGet, "/overview", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) OrdersByDate(ctx context.Context, token string) ([]models.OrderByDate, error) {
	var out []models.OrderByDate
	if err := c.do(ctx, http.MethodGet, "/orders-by-date", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) TopCustomers(ctx context.Context, token string) ([]models.TopCustomer, error) {
	var out []models.TopCustomer
	if err := c.do(ctx, http.MethodGet, "/top-customers", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) RecentOrders(ctx context.Context, token string, limit int) ([]models.RecentOrder, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out []models.RecentOrder
	if err := c.do(ctx, http.MethodGet, "/recent-orders", token, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) WebhookStatus(ctx context.Context, token string) (*models.WebhookStatus, error) {
	var out models.WebhookStatus
	if err := c.do(ctx, http.MethodGet, "/webhook-status", token, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupWebhooks asks the backend to (re-)register the store's real-time
// push integration.
func (c *Client) SetupWebhooks(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/auth/setup-webhooks", token, nil, nil, nil)
}

// TriggerSync asks the backend to pull fresh data from the commerce platform
// before the dashboard re-reads it.
func (c *Client) TriggerSync(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodPost, "/sync", token, nil, nil, nil)
}
