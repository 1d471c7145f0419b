package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// LocationInfo is an approximate, display-only location snapshot.
type LocationInfo struct {
	IP          string `json:"ip,omitempty"`
	City        string `json:"city,omitempty"`
	Region      string `json:"region,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
}

const locationUnknown = "Unknown"

// UnknownLocation is the degraded value returned when the lookup fails.
func UnknownLocation(ip string) LocationInfo {
	return LocationInfo{
		IP:          ip,
		City:        locationUnknown,
		Region:      locationUnknown,
		Country:     locationUnknown,
		CountryCode: locationUnknown,
		Timezone:    locationUnknown,
	}
}

// IsUnknown reports whether the lookup degraded to the unknown value.
func (l LocationInfo) IsUnknown() bool {
	return l.City == locationUnknown && l.Country == locationUnknown
}

type httpGeoResolver struct {
	endpoint string
	client   *http.Client
	logger   Logger
}

// GeoResolverOption customizes the HTTP geolocation resolver.
type GeoResolverOption func(*httpGeoResolver)

// WithGeoHTTPClient overrides the HTTP client used for lookups.
func WithGeoHTTPClient(client *http.Client) GeoResolverOption {
	return func(r *httpGeoResolver) {
		if client != nil {
			r.client = client
		}
	}
}

// WithGeoLogger sets the diagnostic logger for lookup failures.
func WithGeoLogger(logger Logger) GeoResolverOption {
	return func(r *httpGeoResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewGeoResolver builds the default resolver against an unauthenticated
// ipapi-style JSON endpoint. The endpoint may contain a %s placeholder for
// the IP address. A single attempt is made per invocation; all failures
// degrade to UnknownLocation because this data is advisory.
func NewGeoResolver(endpoint string, opts ...GeoResolverOption) GeoResolver {
	r := &httpGeoResolver{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 5 * time.Second},
		logger:   defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

type geoResponse struct {
	IP          string `json:"ip"`
	City        string `json:"city"`
	Region      string `json:"region"`
	Country     string `json:"country_name"`
	CountryAlt  string `json:"country"`
	CountryCode string `json:"country_code"`
	Timezone    string `json:"timezone"`
}

func (r *httpGeoResolver) Resolve(ctx context.Context, ip string) LocationInfo {
	url := r.endpoint
	if strings.Contains(url, "%s") {
		url = fmt.Sprintf(url, ip)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.logger.Debug("geo lookup request build failed: %v", err)
		return UnknownLocation(ip)
	}

	res, err := r.client.Do(req)
	if err != nil {
		r.logger.Debug("geo lookup failed: %v", err)
		return UnknownLocation(ip)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		r.logger.Debug("geo lookup status %d", res.StatusCode)
		return UnknownLocation(ip)
	}

	var payload geoResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		r.logger.Debug("geo lookup decode failed: %v", err)
		return UnknownLocation(ip)
	}

	loc := LocationInfo{
		IP:          orDefault(payload.IP, ip),
		City:        orDefault(payload.City, locationUnknown),
		Region:      orDefault(payload.Region, locationUnknown),
		Country:     orDefault(orDefault(payload.Country, payload.CountryAlt), locationUnknown),
		CountryCode: orDefault(payload.CountryCode, locationUnknown),
		Timezone:    orDefault(payload.Timezone, locationUnknown),
	}

	return loc
}

func orDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

// noopGeoResolver always reports an unknown location. Useful for tests and
// air-gapped deployments.
type noopGeoResolver struct{}

// NewNoopGeoResolver returns a resolver that never performs network calls.
func NewNoopGeoResolver() GeoResolver {
	return noopGeoResolver{}
}

func (noopGeoResolver) Resolve(_ context.Context, ip string) LocationInfo {
	return UnknownLocation(ip)
}
