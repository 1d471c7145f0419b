package activitymap

import (
	"strings"
	"time"

	"github.com/google/uuid"
	identity "github.com/orbitbank/go-identity"
)

const (
	// MetadataKeyDevice stores the human-readable device summary.
	MetadataKeyDevice = "device"
	// MetadataKeyCountry stores the resolved country code.
	MetadataKeyCountry = "country"
	// MetadataKeyTokenPrefix stores the truncated session-token prefix.
	MetadataKeyTokenPrefix = "session_token_prefix"
	// MetadataKeyError stores the failure message for unsuccessful actions.
	MetadataKeyError = "error"
)

const (
	defaultChannel    = "identity"
	defaultObjectType = "profile"
	defaultActorID    = "system"
)

// Normalized is a transport-agnostic activity shape for downstream audit
// pipelines. Security review tooling consumes this instead of the raw
// activity_logs rows.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Success    bool           `json:"success"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(identity.ActivityLog) string
}

// Normalize converts a persisted activity row into the generic shape. The
// environment snapshots are flattened into scalar metadata so downstream
// systems never need the jsonb column layout.
func Normalize(record identity.ActivityLog, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := options.actorFallback
	if record.ProfileID != uuid.Nil {
		actorID = record.ProfileID.String()
	}

	objectType := strings.TrimSpace(record.ResourceType)
	if objectType == "" {
		objectType = options.objectType
	}

	occurredAt := time.Now().UTC()
	if record.CreatedAt != nil && !record.CreatedAt.IsZero() {
		occurredAt = *record.CreatedAt
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       record.Action,
		ObjectType: objectType,
		ObjectID:   resolveObjectID(record, options.objectIDResolver),
		Channel:    options.channel,
		Success:    record.Success,
		Metadata:   normalizeMetadata(record),
		OccurredAt: occurredAt,
	}
}

// NormalizeAll maps a page of activity rows, preserving order.
func NormalizeAll(records []*identity.ActivityLog, opts ...Option) []Normalized {
	out := make([]Normalized, 0, len(records))
	for _, record := range records {
		if record == nil {
			continue
		}
		out = append(out, Normalize(*record, opts...))
	}
	return out
}

// WithDefaultChannel sets the default channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type used when the row carries none.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object-id extraction from the activity row.
func WithObjectIDResolver(resolver func(identity.ActivityLog) string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the row has no profile.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if opts == nil {
			return
		}
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
}

func resolveObjectID(record identity.ActivityLog, resolver func(identity.ActivityLog) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(record))
	}
	if id := strings.TrimSpace(record.ResourceID); id != "" {
		return id
	}
	if record.ProfileID != uuid.Nil {
		return record.ProfileID.String()
	}
	return ""
}

func normalizeMetadata(record identity.ActivityLog) map[string]any {
	metadata := cloneMap(record.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	if record.DeviceSnapshot != nil && record.DeviceSnapshot.DeviceName != "" {
		set(MetadataKeyDevice, record.DeviceSnapshot.DeviceName)
	}

	if record.LocationSnapshot != nil && record.LocationSnapshot.CountryCode != "" {
		set(MetadataKeyCountry, record.LocationSnapshot.CountryCode)
	}

	if record.SessionTokenPrefix != "" {
		set(MetadataKeyTokenPrefix, record.SessionTokenPrefix)
	}

	if !record.Success && record.ErrorMessage != "" {
		set(MetadataKeyError, record.ErrorMessage)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
