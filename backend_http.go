package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// HTTPBackend talks to a hosted GoTrue-style identity service. Credential
// storage and token cryptography live upstream; this client only exchanges
// and invalidates credentials.
type HTTPBackend struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  Logger

	mu      sync.Mutex
	current *BackendSession
}

var _ IdentityBackend = (*HTTPBackend)(nil)

// HTTPBackendOption customizes the backend client.
type HTTPBackendOption func(*HTTPBackend)

// WithBackendHTTPClient overrides the HTTP client.
func WithBackendHTTPClient(client *http.Client) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if client != nil {
			b.client = client
		}
	}
}

// WithBackendLogger sets the diagnostic logger.
func WithBackendLogger(logger Logger) HTTPBackendOption {
	return func(b *HTTPBackend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewHTTPBackend builds a client for the hosted identity service.
func NewHTTPBackend(cfg Config, opts ...HTTPBackendOption) *HTTPBackend {
	b := &HTTPBackend{
		baseURL: strings.TrimRight(cfg.GetBackendURL(), "/"),
		apiKey:  cfg.GetBackendKey(),
		client:  &http.Client{Timeout: 15 * time.Second},
		logger:  defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

type backendTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
}

type backendErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	Message          string `json:"msg"`
}

func (b *HTTPBackend) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*BackendSession, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}
	if len(metadata) > 0 {
		payload["data"] = metadata
	}

	var res backendTokenResponse
	if err := b.do(ctx, http.MethodPost, "/auth/v1/signup", "", payload, &res); err != nil {
		return nil, err
	}

	return b.adoptSession(res), nil
}

func (b *HTTPBackend) SignIn(ctx context.Context, email, password string) (*BackendSession, error) {
	payload := map[string]any{
		"email":    email,
		"password": password,
	}

	var res backendTokenResponse
	if err := b.do(ctx, http.MethodPost, "/auth/v1/token?grant_type=password", "", payload, &res); err != nil {
		return nil, err
	}

	return b.adoptSession(res), nil
}

func (b *HTTPBackend) SignOut(ctx context.Context, accessToken string) error {
	err := b.do(ctx, http.MethodPost, "/auth/v1/logout", accessToken, nil, nil)

	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()

	return err
}

// CurrentSession returns the session adopted by the most recent successful
// exchange in this process, if the token is still within its lifetime.
func (b *HTTPBackend) CurrentSession(ctx context.Context) (*BackendSession, error) {
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	if current.ExpiresAt != nil && time.Now().After(*current.ExpiresAt) {
		return nil, nil
	}

	return current, nil
}

func (b *HTTPBackend) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	payload := map[string]any{
		"email":         email,
		"password":      password,
		"email_confirm": true,
	}
	if len(metadata) > 0 {
		payload["user_metadata"] = metadata
	}

	var res struct {
		ID string `json:"id"`
	}
	if err := b.do(ctx, http.MethodPost, "/auth/v1/admin/users", "", payload, &res); err != nil {
		return "", err
	}

	return res.ID, nil
}

func (b *HTTPBackend) AdminDeleteUser(ctx context.Context, userID string) error {
	return b.do(ctx, http.MethodDelete, "/auth/v1/admin/users/"+userID, "", nil, nil)
}

func (b *HTTPBackend) adoptSession(res backendTokenResponse) *BackendSession {
	session := &BackendSession{
		UserID:       res.User.ID,
		Email:        res.User.Email,
		AccessToken:  res.AccessToken,
		RefreshToken: res.RefreshToken,
	}

	if res.ExpiresIn > 0 {
		expires := time.Now().Add(time.Duration(res.ExpiresIn) * time.Second)
		session.ExpiresAt = &expires
	}

	b.mu.Lock()
	b.current = session
	b.mu.Unlock()

	return session
}

func (b *HTTPBackend) do(ctx context.Context, method, path, bearer string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, body)
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("apikey", b.apiKey)
	}
	if bearer == "" {
		bearer = b.apiKey
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	res, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return decodeBackendError(res)
	}

	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}

	return json.NewDecoder(res.Body).Decode(out)
}

// decodeBackendError surfaces the backend's own message verbatim so the UI
// can show it unchanged.
func decodeBackendError(res *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(res.Body, 1<<16))

	var payload backendErrorResponse
	if err := json.Unmarshal(raw, &payload); err == nil {
		switch {
		case payload.ErrorDescription != "":
			return errors.New(payload.ErrorDescription)
		case payload.Message != "":
			return errors.New(payload.Message)
		case payload.Error != "":
			return errors.New(payload.Error)
		}
	}

	return fmt.Errorf("identity backend error: status %d", res.StatusCode)
}
