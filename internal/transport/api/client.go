// Package api is the authenticated client for the mindtracking backend.
package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"mindtracking-client/internal/domain/kv"
	"mindtracking-client/internal/platform/errors"
	"mindtracking-client/internal/platform/logging"
)

// TokenKey is the kv key holding the bearer token.
const TokenKey = "token"

const (
	defaultTimeout = 15 * time.Second
	maxBodyBytes   = 4 << 20
)

// ErrUnauthorized is returned on a 401. The stored token has already been removed.
var ErrUnauthorized = errors.New(errors.KindAuth, "api.request", "session expired or token rejected")

// StatusError is a non-2xx response other than 401.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.Status)
}

// Options configures a Client.
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Store      kv.Store
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client issues JSON requests against the backend, attaching the stored token.
type Client struct {
	baseURL    string
	store      kv.Store
	httpClient *http.Client
	logger     *slog.Logger
}

func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New(errors.KindConfig, "api.new", "base url is required")
	}
	if opts.Store == nil {
		return nil, errors.New(errors.KindConfig, "api.new", "kv store is required")
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		store:      opts.Store,
		httpClient: httpClient,
		logger:     logging.OrDefault(opts.Logger).With(slog.String("component", "api")),
	}, nil
}

// GetProfile returns the raw body of GET /auth/profile.
func (c *Client) GetProfile(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/auth/profile", nil)
}

// UpdateProfilePayload is the body of PUT /auth/profile.
type UpdateProfilePayload struct {
	Nome           string `json:"nome"`
	Telefone       string `json:"telefone"`
	DataNascimento string `json:"data_nascimento"`
	Genero         string `json:"genero"`
}

func (c *Client) UpdateProfile(ctx context.Context, payload UpdateProfilePayload) ([]byte, error) {
	return c.do(ctx, http.MethodPut, "/auth/profile", payload)
}

// Me returns the raw body of GET /auth/me.
func (c *Client) Me(ctx context.Context) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/auth/me", nil)
}

// LoginResponse is the part of the login body the client uses.
type LoginResponse struct {
	Token   string `json:"token"`
	Nome    string `json:"nome"`
	Message string `json:"message"`
}

func (c *Client) Login(ctx context.Context, email, senha string) (*LoginResponse, error) {
	body, err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{"email": email, "senha": senha})
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := sonic.Unmarshal(body, &resp); err != nil {
		return nil, errors.Wrap(errors.KindShape, "api.login", "decode login response", err)
	}
	return &resp, nil
}

// SavePhoto stores url as the user's profile photo.
func (c *Client) SavePhoto(ctx context.Context, url string) error {
	_, err := c.do(ctx, http.MethodPost, "/usuario/photo", map[string]string{"foto": url})
	return err
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	op := "api." + strings.ToLower(method) + "." + strings.Trim(strings.ReplaceAll(path, "/", "_"), "_")

	var body io.Reader
	if payload != nil {
		encoded, err := sonic.Marshal(payload)
		if err != nil {
			return nil, errors.Wrap(errors.KindShape, op, "encode request body", err)
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, op, "build request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token, ok, err := c.store.Get(ctx, TokenKey); err != nil {
		c.logger.WarnContext(ctx, "token lookup failed", slog.Any("error", err))
	} else if ok && token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, op, "send request", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(errors.KindNetwork, op, "read response body", err)
	}

	c.logger.DebugContext(ctx, "backend request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)),
	)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		if err := c.store.Remove(ctx, TokenKey); err != nil {
			c.logger.WarnContext(ctx, "token removal failed", slog.Any("error", err))
		}
		return nil, ErrUnauthorized
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.Wrap(errors.KindNetwork, op, "unexpected status", &StatusError{
			Method:  method,
			Path:    path,
			Status:  resp.StatusCode,
			Message: messageOf(data),
		})
	}
	return data, nil
}

// messageOf extracts the backend's "message" field, if any.
func messageOf(body []byte) string {
	node, err := sonic.Get(body, "message")
	if err != nil {
		return ""
	}
	msg, err := node.String()
	if err != nil {
		return ""
	}
	return msg
}

// Message returns the backend message carried by err, if any.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Message
	}
	return ""
}
