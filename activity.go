package identity

import (
	"context"

	"github.com/google/uuid"
)

// Action names for security-relevant events.
const (
	ActionLogin             = "login"
	ActionLoginFailed       = "login_failed"
	ActionLogout            = "logout"
	ActionSignUp            = "sign_up"
	ActionSessionTerminated = "session_terminated"
	ActionResourceMutation  = "resource_mutation"
)

// ActivityEntry describes one security-relevant action to be recorded. The
// session token is truncated before persistence; the full secret never
// reaches the ledger.
type ActivityEntry struct {
	ProfileID    uuid.UUID
	Action       string
	ResourceType string
	ResourceID   string
	Device       *DeviceInfo
	Location     *LocationInfo
	SessionToken string
	Success      bool
	ErrorMessage string
	Metadata     map[string]any
}

// ActivityRecorder consumes activity entries for auditing purposes.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) error
}

// ActivityRecorderFunc adapts a function to the ActivityRecorder interface.
type ActivityRecorderFunc func(ctx context.Context, entry ActivityEntry) error

// Record implements ActivityRecorder.
func (f ActivityRecorderFunc) Record(ctx context.Context, entry ActivityEntry) error {
	if f == nil {
		return nil
	}
	return f(ctx, entry)
}

type noopActivityRecorder struct{}

func (noopActivityRecorder) Record(context.Context, ActivityEntry) error {
	return nil
}

func normalizeRecorder(r ActivityRecorder) ActivityRecorder {
	if r == nil {
		return noopActivityRecorder{}
	}
	return r
}

type dbActivityRecorder struct {
	logs ActivityLogs
}

// NewActivityRecorder persists entries to the activity_logs ledger.
func NewActivityRecorder(logs ActivityLogs) ActivityRecorder {
	return &dbActivityRecorder{logs: logs}
}

func (r *dbActivityRecorder) Record(ctx context.Context, entry ActivityEntry) error {
	record := &ActivityLog{
		ProfileID:          entry.ProfileID,
		Action:             entry.Action,
		ResourceType:       entry.ResourceType,
		ResourceID:         entry.ResourceID,
		DeviceSnapshot:     entry.Device,
		LocationSnapshot:   entry.Location,
		SessionTokenPrefix: TruncateToken(entry.SessionToken),
		Success:            entry.Success,
		ErrorMessage:       entry.ErrorMessage,
		Metadata:           entry.Metadata,
	}

	_, err := r.logs.Append(ctx, record)
	return err
}

// ActivityView wraps a ledger row for display. The read marker is cosmetic
// client-side state; the stored row never changes.
type ActivityView struct {
	*ActivityLog
	Read bool `json:"read"`
}

// NewActivityViews wraps ledger rows for the audit panel.
func NewActivityViews(records []*ActivityLog) []*ActivityView {
	views := make([]*ActivityView, 0, len(records))
	for _, record := range records {
		views = append(views, &ActivityView{ActivityLog: record})
	}
	return views
}

// MarkRead flips the cosmetic marker on the view only.
func (v *ActivityView) MarkRead() *ActivityView {
	v.Read = true
	return v
}
