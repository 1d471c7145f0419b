package identity

import (
	"errors"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// ErrTokenExpired is returned for backend tokens past their expiry.
var ErrTokenExpired = goerrors.New("backend token is expired", goerrors.CategoryAuth).
	WithTextCode("TOKEN_EXPIRED").
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is returned for tokens that cannot be parsed.
var ErrTokenMalformed = goerrors.New("backend token is malformed", goerrors.CategoryAuth).
	WithTextCode("TOKEN_MALFORMED").
	WithCode(goerrors.CodeUnauthorized)

// BackendClaims are the claims this core reads from a backend-issued access
// token. Token issuance and cryptography stay with the backend; we only
// verify and extract.
type BackendClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// TokenValidator verifies a backend access token and extracts its claims.
type TokenValidator interface {
	Validate(tokenString string) (*BackendClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*BackendClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*BackendClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

type hmacTokenValidator struct {
	key    []byte
	issuer string
}

// NewHMACTokenValidator verifies HS256 tokens with the backend's shared
// secret. This is the common deployment shape for hosted backends.
func NewHMACTokenValidator(signingKey, issuer string) TokenValidator {
	return &hmacTokenValidator{
		key:    []byte(signingKey),
		issuer: issuer,
	}
}

func (v *hmacTokenValidator) Validate(tokenString string) (*BackendClaims, error) {
	claims := &BackendClaims{}

	parserOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return v.key, nil
	}, parserOpts...)

	return checkParsedToken(token, claims, err)
}

type jwksTokenValidator struct {
	jwks   *keyfunc.JWKS
	issuer string
}

// NewJWKSTokenValidator verifies asymmetric backend tokens against the
// backend's published JWK set. The key set refreshes in the background.
func NewJWKSTokenValidator(jwkSetURL, issuer string) (TokenValidator, error) {
	jwks, err := keyfunc.Get(jwkSetURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshUnknownKID: true,
		RefreshErrorHandler: func(err error) {
			defLogger{}.Warn("jwks refresh failed: %v", err)
		},
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "unable to load backend JWK set")
	}

	return &jwksTokenValidator{jwks: jwks, issuer: issuer}, nil
}

func (v *jwksTokenValidator) Validate(tokenString string) (*BackendClaims, error) {
	claims := &BackendClaims{}

	parserOpts := []jwt.ParserOption{}
	if v.issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(v.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, v.jwks.Keyfunc, parserOpts...)

	return checkParsedToken(token, claims, err)
}

func checkParsedToken(token *jwt.Token, claims *BackendClaims, err error) (*BackendClaims, error) {
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		if errors.Is(err, jwt.ErrTokenMalformed) {
			return nil, ErrTokenMalformed
		}
		return nil, err
	}

	if token == nil || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// NewTokenValidator picks the validator shape from configuration: a JWK set
// URL wins over a shared signing key.
func NewTokenValidator(cfg Config) (TokenValidator, error) {
	if url := cfg.GetJWKSetURL(); url != "" {
		return NewJWKSTokenValidator(url, cfg.GetIssuer())
	}

	if key := cfg.GetSigningKey(); key != "" {
		return NewHMACTokenValidator(key, cfg.GetIssuer()), nil
	}

	return nil, errors.New("token validator requires a signing key or JWK set URL")
}
