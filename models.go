package identity

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminRole is the sub-role attached to an administrative grant
type AdminRole = string

const (
	// AdminRoleSupport can view accounts and sessions
	AdminRoleSupport AdminRole = "support"
	// AdminRoleManager can additionally mutate customer records
	AdminRoleManager AdminRole = "manager"
	// AdminRoleSuper holds every back-office permission
	AdminRoleSuper AdminRole = "super_admin"
	// AdminRoleDefault is used when neither source carries a sub-role
	AdminRoleDefault AdminRole = "admin"
)

// Profile extends the backend identity record with console-owned fields.
// The row shares its id with the backend's identity store.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	DisplayName   string     `bun:"display_name" json:"display_name,omitempty"`
	AccountNumber string     `bun:"account_number,unique" json:"account_number,omitempty"`
	Phone         string     `bun:"phone_number" json:"phone_number,omitempty"`
	Balance       float64    `bun:"balance" json:"balance"`
	IsAdmin       bool       `bun:"is_admin" json:"is_admin,omitempty"`
	Role          string     `bun:"role" json:"role,omitempty"`
	IsVerified    bool       `bun:"is_verified" json:"is_verified,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Session is one authenticated device context for a profile. Rows are never
// hard-deleted; Terminate flips IsActive so the audit trail stays intact.
type Session struct {
	bun.BaseModel `bun:"table:user_sessions,alias:ses"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ProfileID     uuid.UUID  `bun:"profile_id,notnull,type:uuid" json:"profile_id,omitempty"`
	SessionToken  string     `bun:"session_token,notnull,unique" json:"session_token,omitempty"`
	DeviceName    string     `bun:"device_name" json:"device_name,omitempty"`
	DeviceType    string     `bun:"device_type" json:"device_type,omitempty"`
	Browser       string     `bun:"browser" json:"browser,omitempty"`
	OS            string     `bun:"os" json:"os,omitempty"`
	IPAddress     string     `bun:"ip_address" json:"ip_address,omitempty"`
	City          string     `bun:"city" json:"city,omitempty"`
	Region        string     `bun:"region" json:"region,omitempty"`
	Country       string     `bun:"country" json:"country,omitempty"`
	CountryCode   string     `bun:"country_code" json:"country_code,omitempty"`
	Timezone      string     `bun:"timezone" json:"timezone,omitempty"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	LastActivity  time.Time  `bun:"last_activity,nullzero,default:current_timestamp" json:"last_activity,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	ExpiresAt     *time.Time `bun:"expires_at,nullzero" json:"expires_at,omitempty"`
}

// TokenPrefix returns the truncated session token used to correlate activity
// rows without exposing the secret.
func (s *Session) TokenPrefix() string {
	return TruncateToken(s.SessionToken)
}

// ActivityLog is one immutable audit row. The repository exposes no update
// or delete operations for this model.
type ActivityLog struct {
	bun.BaseModel      `bun:"table:activity_logs,alias:act"`
	ID                 uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ProfileID          uuid.UUID      `bun:"profile_id,notnull,type:uuid" json:"profile_id,omitempty"`
	Action             string         `bun:"action,notnull" json:"action,omitempty"`
	ResourceType       string         `bun:"resource_type" json:"resource_type,omitempty"`
	ResourceID         string         `bun:"resource_id" json:"resource_id,omitempty"`
	DeviceSnapshot     *DeviceInfo    `bun:"device_info,type:jsonb" json:"device_info,omitempty"`
	LocationSnapshot   *LocationInfo  `bun:"location_info,type:jsonb" json:"location_info,omitempty"`
	SessionTokenPrefix string         `bun:"session_token_prefix" json:"session_token_prefix,omitempty"`
	Success            bool           `bun:"success" json:"success"`
	ErrorMessage       string         `bun:"error_message" json:"error_message,omitempty"`
	Metadata           map[string]any `bun:"metadata,type:jsonb" json:"metadata,omitempty"`
	CreatedAt          *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// AddMetadata will append information to a metadata attribute
func (a *ActivityLog) AddMetadata(key string, val any) *ActivityLog {
	if a.Metadata == nil {
		a.Metadata = make(map[string]any)
	}
	a.Metadata[key] = val
	return a
}

// AdminUser is a role-assignment record, the second of the two admin-privilege
// sources reconciled by the resolver.
type AdminUser struct {
	bun.BaseModel `bun:"table:admin_users,alias:adm"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	ProfileID     uuid.UUID  `bun:"profile_id,notnull,unique,type:uuid" json:"profile_id,omitempty"`
	Role          AdminRole  `bun:"role,notnull" json:"role,omitempty"`
	IsActive      bool       `bun:"is_active" json:"is_active"`
	GrantedBy     string     `bun:"granted_by" json:"granted_by,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

const tokenPrefixLen = 8

// TruncateToken reduces a session token to a short non-reversible prefix.
func TruncateToken(token string) string {
	if len(token) <= tokenPrefixLen {
		return token
	}
	return token[:tokenPrefixLen]
}
