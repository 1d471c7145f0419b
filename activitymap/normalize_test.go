package activitymap

import (
	"testing"
	"time"

	"github.com/google/uuid"
	identity "github.com/orbitbank/go-identity"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeLoginRow(t *testing.T) {
	profileID := uuid.New()
	occurred := time.Date(2026, 2, 14, 9, 30, 0, 0, time.UTC)

	record := identity.ActivityLog{
		ProfileID: profileID,
		Action:    identity.ActionLogin,
		DeviceSnapshot: &identity.DeviceInfo{
			DeviceName: "Chrome on macOS",
		},
		LocationSnapshot: &identity.LocationInfo{
			CountryCode: "DE",
		},
		SessionTokenPrefix: "deadbeef",
		Success:            true,
		CreatedAt:          &occurred,
	}

	got := Normalize(record)

	assert.Equal(t, profileID.String(), got.ActorID)
	assert.Equal(t, identity.ActionLogin, got.Verb)
	assert.Equal(t, "profile", got.ObjectType)
	assert.Equal(t, profileID.String(), got.ObjectID)
	assert.Equal(t, "identity", got.Channel)
	assert.True(t, got.Success)
	assert.Equal(t, occurred, got.OccurredAt)

	assert.Equal(t, "Chrome on macOS", got.Metadata[MetadataKeyDevice])
	assert.Equal(t, "DE", got.Metadata[MetadataKeyCountry])
	assert.Equal(t, "deadbeef", got.Metadata[MetadataKeyTokenPrefix])
	assert.NotContains(t, got.Metadata, MetadataKeyError)
}

func TestNormalizeFailedLoginCarriesError(t *testing.T) {
	record := identity.ActivityLog{
		ProfileID:    uuid.New(),
		Action:       identity.ActionLoginFailed,
		Success:      false,
		ErrorMessage: "Invalid login credentials",
	}

	got := Normalize(record)

	assert.False(t, got.Success)
	assert.Equal(t, "Invalid login credentials", got.Metadata[MetadataKeyError])
	assert.False(t, got.OccurredAt.IsZero(), "missing timestamp falls back to now")
}

func TestNormalizeResourceRow(t *testing.T) {
	record := identity.ActivityLog{
		ProfileID:    uuid.New(),
		Action:       identity.ActionSessionTerminated,
		ResourceType: "session",
		ResourceID:   "3f5c9a10-0000-0000-0000-000000000001",
		Success:      true,
	}

	got := Normalize(record)

	assert.Equal(t, "session", got.ObjectType)
	assert.Equal(t, "3f5c9a10-0000-0000-0000-000000000001", got.ObjectID)
}

func TestNormalizeOptions(t *testing.T) {
	record := identity.ActivityLog{
		Action:  identity.ActionResourceMutation,
		Success: true,
	}

	got := Normalize(record,
		WithDefaultChannel("back-office"),
		WithDefaultObjectType("account"),
		WithActorFallback("reconciler"),
		WithObjectIDResolver(func(r identity.ActivityLog) string {
			return "fixed-object"
		}),
	)

	assert.Equal(t, "back-office", got.Channel)
	assert.Equal(t, "account", got.ObjectType)
	assert.Equal(t, "reconciler", got.ActorID)
	assert.Equal(t, "fixed-object", got.ObjectID)
}

func TestNormalizeKeepsExistingMetadata(t *testing.T) {
	record := identity.ActivityLog{
		ProfileID:          uuid.New(),
		Action:             identity.ActionLogin,
		SessionTokenPrefix: "deadbeef",
		Success:            true,
		Metadata: map[string]any{
			MetadataKeyTokenPrefix: "preset",
			"custom":               "value",
		},
	}

	got := Normalize(record)

	// row metadata wins over derived values
	assert.Equal(t, "preset", got.Metadata[MetadataKeyTokenPrefix])
	assert.Equal(t, "value", got.Metadata["custom"])
}

func TestNormalizeAll(t *testing.T) {
	rows := []*identity.ActivityLog{
		{ProfileID: uuid.New(), Action: identity.ActionLogin, Success: true},
		nil,
		{ProfileID: uuid.New(), Action: identity.ActionLogout, Success: true},
	}

	got := NormalizeAll(rows)

	assert.Len(t, got, 2)
	assert.Equal(t, identity.ActionLogin, got[0].Verb)
	assert.Equal(t, identity.ActionLogout, got[1].Verb)
}
