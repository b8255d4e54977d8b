// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"
	"time"
)

// Client is an HTTP client for testing API endpoints. It holds the bearer
// token of one portal session and replaces it with every token the session
// endpoints hand back.
type Client struct {
	BaseURL     string
	Token       string
	HTTPClient  *http.Client
	Validator   *OpenAPIValidator
	ValidateAPI bool
	t           *testing.T
}

// SessionResponse mirrors the body returned by the session endpoints.
type SessionResponse struct {
	Data struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
		Session   struct {
			ID              string `json:"id"`
			Role            string `json:"role"`
			IsAuthenticated bool   `json:"is_authenticated"`
			Identity        *struct {
				ID    string `json:"id"`
				Email string `json:"email"`
			} `json:"identity"`
		} `json:"session"`
	} `json:"data"`
}

// NewClient creates a new test client without validation.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// NewClientWithValidator creates a new test client with a pre-loaded OpenAPI validator.
// Use this in TestMain where *testing.T is not available during initialization.
func NewClientWithValidator(baseURL string, validator *OpenAPIValidator) *Client {
	c := NewClient(baseURL)
	c.Validator = validator
	c.ValidateAPI = true
	return c
}

// SetT sets the testing.T for validation error reporting.
func (c *Client) SetT(t *testing.T) {
	c.t = t
}

// WithoutValidation returns a copy of the client with validation disabled.
// Use this for negative tests where you expect invalid responses.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.ValidateAPI = false
	return &clone
}

// StartSession opens a guest session and keeps its token.
func (c *Client) StartSession(t *testing.T) SessionResponse {
	t.Helper()
	return c.sessionCall(t, http.MethodPost, "/api/v1/session", nil, http.StatusCreated)
}

// Login signs the session in with email and password.
func (c *Client) Login(t *testing.T, email, password string) SessionResponse {
	t.Helper()
	return c.sessionCall(t, http.MethodPost, "/api/v1/session/login", map[string]string{
		"email":    email,
		"password": password,
	}, http.StatusOK)
}

// LoginAsAdmin signs the session in with the administrator credential pair.
func (c *Client) LoginAsAdmin(t *testing.T, identifier, secret string) SessionResponse {
	t.Helper()
	return c.sessionCall(t, http.MethodPost, "/api/v1/session/admin", map[string]string{
		"identifier": identifier,
		"secret":     secret,
	}, http.StatusOK)
}

// Logout signs the session out.
func (c *Client) Logout(t *testing.T) SessionResponse {
	t.Helper()
	return c.sessionCall(t, http.MethodPost, "/api/v1/session/logout", nil, http.StatusOK)
}

func (c *Client) sessionCall(t *testing.T, method, path string, body interface{}, want int) SessionResponse {
	t.Helper()
	if c.t == nil {
		c.t = t
	}

	resp, err := c.do(method, path, body)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status=%d body=%s", method, path, resp.StatusCode, ReadBody(t, resp))
	}

	var result SessionResponse
	DecodeJSON(t, resp, &result)
	c.Token = result.Data.Token
	return result
}

// ClearToken forgets the session token.
func (c *Client) ClearToken() {
	c.Token = ""
}

// GET performs a GET request.
func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

// POST performs a POST request with JSON body.
func (c *Client) POST(path string, body interface{}) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

// PUT performs a PUT request with JSON body.
func (c *Client) PUT(path string, body interface{}) (*http.Response, error) {
	return c.do(http.MethodPut, path, body)
}

// PATCH performs a PATCH request with JSON body.
func (c *Client) PATCH(path string, body interface{}) (*http.Response, error) {
	return c.do(http.MethodPatch, path, body)
}

// DELETE performs a DELETE request.
func (c *Client) DELETE(path string) (*http.Response, error) {
	return c.do(http.MethodDelete, path, nil)
}

func (c *Client) do(method, path string, body interface{}) (*http.Response, error) {
	var bodyBytes []byte
	if body != nil {
		var err error
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
	}

	req, err := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}

	if c.ValidateAPI && c.Validator != nil && c.t != nil {
		validationReq, _ := http.NewRequest(method, c.BaseURL+path, bytes.NewReader(bodyBytes))
		validationReq.Header = req.Header
		c.Validator.ValidateResponse(c.t, validationReq, resp)
	}

	return resp, nil
}

// DecodeJSON decodes response body into v.
func DecodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and returns response body as string.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
