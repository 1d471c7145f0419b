package local

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	identity "github.com/orbitbank/go-identity"
	"golang.org/x/crypto/bcrypt"
)

// ErrInvalidCredentials is returned for a wrong email/password pair. The
// message matches what hosted backends surface so UI handling stays uniform.
var ErrInvalidCredentials = errors.New("Invalid login credentials")

// ErrEmailTaken is returned when registering an email that already exists.
var ErrEmailTaken = errors.New("User already registered")

// BackendConfig configures the local identity backend.
type BackendConfig struct {
	// SigningKey is the HS256 secret used for minted access tokens.
	SigningKey string

	// Issuer is stamped into minted tokens.
	Issuer string

	// TokenTTL bounds minted token lifetime. Defaults to one hour.
	TokenTTL time.Duration

	// BcryptCost overrides the hashing cost. Defaults to bcrypt.DefaultCost
	// so tests stay fast; raise it for anything long-lived.
	BcryptCost int
}

type credentialRecord struct {
	id           uuid.UUID
	email        string
	passwordHash string
	metadata     map[string]any
}

// Backend is an in-memory credential store that satisfies
// identity.IdentityBackend.
type Backend struct {
	cfg   BackendConfig
	clock func() time.Time

	mu      sync.Mutex
	byEmail map[string]*credentialRecord
	current *identity.BackendSession
}

var _ identity.IdentityBackend = (*Backend)(nil)

// BackendOption customizes the local backend.
type BackendOption func(*Backend)

// WithClock injects a custom clock (useful for tests).
func WithClock(clock func() time.Time) BackendOption {
	return func(b *Backend) {
		if clock != nil {
			b.clock = clock
		}
	}
}

// NewBackend creates an in-process identity backend.
func NewBackend(cfg BackendConfig, opts ...BackendOption) (*Backend, error) {
	if strings.TrimSpace(cfg.SigningKey) == "" {
		return nil, fmt.Errorf("local: signing key is required")
	}

	if cfg.TokenTTL <= 0 {
		cfg.TokenTTL = time.Hour
	}

	if cfg.BcryptCost <= 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}

	b := &Backend{
		cfg:     cfg,
		clock:   time.Now,
		byEmail: map[string]*credentialRecord{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b, nil
}

func (b *Backend) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*identity.BackendSession, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, identity.ErrNoEmptyString
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cfg.BcryptCost)
	if err != nil {
		return nil, err
	}

	b.mu.Lock()
	if _, exists := b.byEmail[email]; exists {
		b.mu.Unlock()
		return nil, ErrEmailTaken
	}

	record := &credentialRecord{
		id:           uuid.New(),
		email:        email,
		passwordHash: string(hash),
		metadata:     metadata,
	}
	b.byEmail[email] = record
	b.mu.Unlock()

	return b.mintSession(record)
}

func (b *Backend) SignIn(ctx context.Context, email, password string) (*identity.BackendSession, error) {
	email = normalizeEmail(email)

	b.mu.Lock()
	record, ok := b.byEmail[email]
	b.mu.Unlock()

	if !ok {
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.passwordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	return b.mintSession(record)
}

func (b *Backend) SignOut(ctx context.Context, accessToken string) error {
	b.mu.Lock()
	b.current = nil
	b.mu.Unlock()
	return nil
}

func (b *Backend) CurrentSession(ctx context.Context) (*identity.BackendSession, error) {
	b.mu.Lock()
	current := b.current
	b.mu.Unlock()

	if current == nil {
		return nil, nil
	}

	if current.ExpiresAt != nil && b.clock().After(*current.ExpiresAt) {
		return nil, nil
	}

	return current, nil
}

func (b *Backend) AdminCreateUser(ctx context.Context, email, password string, metadata map[string]any) (string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return "", identity.ErrNoEmptyString
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), b.cfg.BcryptCost)
	if err != nil {
		return "", err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.byEmail[email]; exists {
		return "", ErrEmailTaken
	}

	record := &credentialRecord{
		id:           uuid.New(),
		email:        email,
		passwordHash: string(hash),
		metadata:     metadata,
	}
	b.byEmail[email] = record

	return record.id.String(), nil
}

func (b *Backend) AdminDeleteUser(ctx context.Context, userID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for email, record := range b.byEmail {
		if record.id.String() == userID {
			delete(b.byEmail, email)
			return nil
		}
	}

	return fmt.Errorf("local: user %s not found", userID)
}

func (b *Backend) mintSession(record *credentialRecord) (*identity.BackendSession, error) {
	now := b.clock()
	expires := now.Add(b.cfg.TokenTTL)

	claims := jwt.RegisteredClaims{
		Subject:   record.id.String(),
		Issuer:    b.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, struct {
		jwt.RegisteredClaims
		Email string `json:"email"`
	}{RegisteredClaims: claims, Email: record.email})

	signed, err := token.SignedString([]byte(b.cfg.SigningKey))
	if err != nil {
		return nil, err
	}

	session := &identity.BackendSession{
		UserID:      record.id.String(),
		Email:       record.email,
		AccessToken: signed,
		ExpiresAt:   &expires,
	}

	b.mu.Lock()
	b.current = session
	b.mu.Unlock()

	return session, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
