package identity

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// BackendSession is the live credential session returned by the identity
// backend after a successful credential exchange.
type BackendSession struct {
	UserID       string     `json:"user_id"`
	Email        string     `json:"email"`
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// IdentityBackend is the hosted credential service. This core never stores
// passwords or mints primary tokens; both stay behind this interface.
type IdentityBackend interface {
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*BackendSession, error)
	SignIn(ctx context.Context, email, password string) (*BackendSession, error)
	SignOut(ctx context.Context, accessToken string) error
	CurrentSession(ctx context.Context) (*BackendSession, error)
	AdminCreateUser(ctx context.Context, email, password string, metadata map[string]any) (string, error)
	AdminDeleteUser(ctx context.Context, userID string) error
}

// EnvironmentHints carries the client-reported execution environment for one
// request. The values are descriptive, never authoritative.
type EnvironmentHints struct {
	UserAgent        string `json:"user_agent,omitempty"`
	Platform         string `json:"platform,omitempty"`
	Language         string `json:"language,omitempty"`
	ScreenResolution string `json:"screen_resolution,omitempty"`
	Timezone         string `json:"timezone,omitempty"`
	CookiesEnabled   bool   `json:"cookies_enabled,omitempty"`
	Online           bool   `json:"online,omitempty"`
	IP               string `json:"ip,omitempty"`
}

// DeviceCollector derives a device signature from environment hints. It is
// synchronous and must not fail; unknown fields degrade to empty strings.
type DeviceCollector interface {
	Collect(env EnvironmentHints) DeviceInfo
}

// DeviceIdentifier decides whether a live device signature matches a stored
// session. The default is an exact device-name string match; swap it for a
// persisted device token without touching callers.
type DeviceIdentifier interface {
	SameDevice(device DeviceInfo, session *Session) bool
}

// GeoResolver turns an IP address into an approximate location. Advisory
// only: implementations return UnknownLocation on any failure.
type GeoResolver interface {
	Resolve(ctx context.Context, ip string) LocationInfo
}

// Notifier delivers best-effort notifications. Failures never propagate into
// the auth flow.
type Notifier interface {
	SendWelcome(ctx context.Context, profile *Profile) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, profile *Profile) error

// SendWelcome implements Notifier.
func (f NotifierFunc) SendWelcome(ctx context.Context, profile *Profile) error {
	if f == nil {
		return nil
	}
	return f(ctx, profile)
}

type noopNotifier struct{}

func (noopNotifier) SendWelcome(context.Context, *Profile) error { return nil }

// Config holds identity core options
type Config interface {
	GetBackendURL() string
	GetBackendKey() string
	GetBootstrapAdminEmail() string
	GetInitialBalance() float64
	GetGeoEndpoint() string
	GetSigningKey() string
	GetSigningMethod() string
	GetJWKSetURL() string
	GetIssuer() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] IDENT "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] IDENT "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] IDENT "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] IDENT "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
