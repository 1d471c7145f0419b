package identity

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockBackend is a testify mock for the IdentityBackend interface.
type MockBackend struct {
	mock.Mock
}

var _ IdentityBackend = (*MockBackend)(nil)

func (m *MockBackend) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*BackendSession, error) {
	args := m.Called(ctx, email, password, metadata)
	var bs *BackendSession
	if v := args.Get(0); v != nil {
		bs = v.(*BackendSession)
	}
	return bs, args.Error(1)
}

func (m *MockBackend) SignIn(ctx context.Context, email, password string) (*BackendSession, error) {
	args := m.Called(ctx, email, password)
	var bs *BackendSession
	if v := args.Get(0); v != nil {
		bs = v.(*BackendSession)
	}
	return bs, args.Error(1)
}

func (m *MockBackend) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

func (m *MockBackend) CurrentSession(ctx context.Context) (*BackendSession, error) {
	args := m.Called(ctx)
	var bs *BackendSession
	if v := args.Get(0); v != nil {
		bs = v.(*BackendSession)
	}
	return bs, args.Error(1)
}

func (m *MockBackend) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	args := m.Called(ctx, email, password, metadata)
	return args.String(0), args.Error(1)
}

func (m *MockBackend) AdminDeleteUser(ctx context.Context, userID string) error {
	args := m.Called(ctx, userID)
	return args.Error(0)
}

// staticConfig is a fixed-value Config for tests.
type staticConfig struct {
	backendURL     string
	backendKey     string
	bootstrapEmail string
	initialBalance float64
	geoEndpoint    string
	signingKey     string
	signingMethod  string
	jwkSetURL      string
	issuer         string
}

var _ Config = (*staticConfig)(nil)

func (c staticConfig) GetBackendURL() string          { return c.backendURL }
func (c staticConfig) GetBackendKey() string          { return c.backendKey }
func (c staticConfig) GetBootstrapAdminEmail() string { return c.bootstrapEmail }
func (c staticConfig) GetInitialBalance() float64     { return c.initialBalance }
func (c staticConfig) GetGeoEndpoint() string         { return c.geoEndpoint }
func (c staticConfig) GetSigningKey() string          { return c.signingKey }
func (c staticConfig) GetSigningMethod() string       { return c.signingMethod }
func (c staticConfig) GetJWKSetURL() string           { return c.jwkSetURL }
func (c staticConfig) GetIssuer() string              { return c.issuer }

// waitNotifier records welcome dispatches and lets tests await the async
// delivery goroutine.
type waitNotifier struct {
	mu       sync.Mutex
	profiles []*Profile
	done     chan struct{}
}

func newWaitNotifier() *waitNotifier {
	return &waitNotifier{done: make(chan struct{}, 4)}
}

func (n *waitNotifier) SendWelcome(_ context.Context, profile *Profile) error {
	n.mu.Lock()
	n.profiles = append(n.profiles, profile)
	n.mu.Unlock()
	n.done <- struct{}{}
	return nil
}

func (n *waitNotifier) sent() []*Profile {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*Profile, len(n.profiles))
	copy(out, n.profiles)
	return out
}
