package identity

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// EnvConfig is an environment-backed Config for hosts that do not carry
// their own configuration container.
type EnvConfig struct {
	BackendURL          string
	BackendKey          string
	BootstrapAdminEmail string
	InitialBalance      float64
	GeoEndpoint         string
	SigningKey          string
	SigningMethod       string
	JWKSetURL           string
	Issuer              string
}

var _ Config = (*EnvConfig)(nil)

// LoadConfig reads configuration from the environment, merging an optional
// dotenv file first. A missing dotenv file is not an error.
func LoadConfig(files ...string) (*EnvConfig, error) {
	if len(files) > 0 {
		godotenv.Load(files...)
	} else {
		godotenv.Load()
	}

	cfg := &EnvConfig{
		BackendURL:          os.Getenv("IDENTITY_BACKEND_URL"),
		BackendKey:          os.Getenv("IDENTITY_BACKEND_KEY"),
		BootstrapAdminEmail: os.Getenv("IDENTITY_BOOTSTRAP_ADMIN_EMAIL"),
		GeoEndpoint:         os.Getenv("IDENTITY_GEO_ENDPOINT"),
		SigningKey:          os.Getenv("IDENTITY_SIGNING_KEY"),
		SigningMethod:       getEnvOr("IDENTITY_SIGNING_METHOD", "HS256"),
		JWKSetURL:           os.Getenv("IDENTITY_JWK_SET_URL"),
		Issuer:              os.Getenv("IDENTITY_ISSUER"),
	}

	if raw := os.Getenv("IDENTITY_INITIAL_BALANCE"); raw != "" {
		balance, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, err
		}
		cfg.InitialBalance = balance
	}

	return cfg, nil
}

func getEnvOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (c *EnvConfig) GetBackendURL() string          { return c.BackendURL }
func (c *EnvConfig) GetBackendKey() string          { return c.BackendKey }
func (c *EnvConfig) GetBootstrapAdminEmail() string { return c.BootstrapAdminEmail }
func (c *EnvConfig) GetInitialBalance() float64     { return c.InitialBalance }
func (c *EnvConfig) GetGeoEndpoint() string         { return c.GeoEndpoint }
func (c *EnvConfig) GetSigningKey() string          { return c.SigningKey }
func (c *EnvConfig) GetSigningMethod() string       { return c.SigningMethod }
func (c *EnvConfig) GetJWKSetURL() string           { return c.JWKSetURL }
func (c *EnvConfig) GetIssuer() string              { return c.Issuer }
