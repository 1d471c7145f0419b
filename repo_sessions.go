package identity

import (
	"fmt"
	"strings"
	"time"

	"context"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Sessions persists one row per active device login. Terminations are soft:
// rows are flagged inactive, never deleted.
type Sessions interface {
	repository.Repository[*Session]

	ListActive(ctx context.Context, profileID uuid.UUID) ([]*Session, error)
	ListActiveTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID) ([]*Session, error)

	FindActiveByDevice(ctx context.Context, profileID uuid.UUID, deviceName string) (*Session, error)
	FindActiveByDeviceTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, deviceName string) (*Session, error)

	CreateForDevice(ctx context.Context, profileID uuid.UUID, device DeviceInfo, location LocationInfo) (*Session, error)
	CreateForDeviceTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, device DeviceInfo, location LocationInfo) (*Session, error)

	Terminate(ctx context.Context, sessionID, ownerID uuid.UUID) error
	TerminateTx(ctx context.Context, tx bun.IDB, sessionID, ownerID uuid.UUID) error

	TerminateByToken(ctx context.Context, profileID uuid.UUID, token string) error
	TerminateOthers(ctx context.Context, profileID uuid.UUID, keepToken string) (int64, error)

	Touch(ctx context.Context, sessionID uuid.UUID) error
}

type sessions struct {
	repository.Repository[*Session]
	db  *bun.DB
	now func() time.Time
}

var (
	_ Sessions                        = (*sessions)(nil)
	_ repository.Repository[*Session] = (*sessions)(nil)
)

// SessionsOption configures the sessions repository.
type SessionsOption func(*sessions)

// WithSessionsClock injects a custom clock (useful for tests).
func WithSessionsClock(clock func() time.Time) SessionsOption {
	return func(s *sessions) {
		if clock != nil {
			s.now = clock
		}
	}
}

func NewSessionsRepository(db *bun.DB, opts ...SessionsOption) Sessions {
	repo := repository.NewRepository[*Session](db, repository.ModelHandlers[*Session]{
		NewRecord: func() *Session { return &Session{} },
		GetID: func(s *Session) uuid.UUID {
			if s == nil {
				return uuid.Nil
			}
			return s.ID
		},
		SetID: func(s *Session, id uuid.UUID) {
			if s != nil {
				s.ID = id
			}
		},
		GetIdentifier: func() string {
			return "session_token"
		},
	})

	repoSessions := &sessions{
		Repository: repo,
		db:         db,
		now:        time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repoSessions)
		}
	}

	return repoSessions
}

func (r *sessions) ListActive(ctx context.Context, profileID uuid.UUID) ([]*Session, error) {
	return r.ListActiveTx(ctx, r.db, profileID)
}

func (r *sessions) ListActiveTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID) ([]*Session, error) {
	records := []*Session{}

	err := tx.NewSelect().
		Model(&records).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.is_active = ?", true).
		Order("last_activity DESC").
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (r *sessions) FindActiveByDevice(ctx context.Context, profileID uuid.UUID, deviceName string) (*Session, error) {
	return r.FindActiveByDeviceTx(ctx, r.db, profileID, deviceName)
}

func (r *sessions) FindActiveByDeviceTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, deviceName string) (*Session, error) {
	record := &Session{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.is_active = ?", true).
		Where("?TableAlias.device_name = ?", deviceName).
		Order("last_activity DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"profile_id":  profileID.String(),
					"device_name": deviceName,
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *sessions) CreateForDevice(ctx context.Context, profileID uuid.UUID, device DeviceInfo, location LocationInfo) (*Session, error) {
	return r.CreateForDeviceTx(ctx, r.db, profileID, device, location)
}

func (r *sessions) CreateForDeviceTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, device DeviceInfo, location LocationInfo) (*Session, error) {
	record := &Session{
		ID:           uuid.New(),
		ProfileID:    profileID,
		SessionToken: newSessionToken(r.now()),
		DeviceName:   device.DeviceName,
		DeviceType:   device.DeviceType,
		Browser:      device.Browser,
		OS:           device.OS,
		IPAddress:    location.IP,
		City:         location.City,
		Region:       location.Region,
		Country:      location.Country,
		CountryCode:  location.CountryCode,
		Timezone:     location.Timezone,
		IsActive:     true,
		LastActivity: r.now(),
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *sessions) Terminate(ctx context.Context, sessionID, ownerID uuid.UUID) error {
	return r.TerminateTx(ctx, r.db, sessionID, ownerID)
}

// TerminateTx flips is_active on a session owned by ownerID. The ownership
// check happens inside the UPDATE itself so a mismatched owner mutates
// nothing and surfaces the same outcome as a missing row. Already-inactive
// sessions read as not-found too, keeping repeat terminations loud.
func (r *sessions) TerminateTx(ctx context.Context, tx bun.IDB, sessionID, ownerID uuid.UUID) error {
	res, err := tx.NewUpdate().
		Model((*Session)(nil)).
		Set("is_active = ?", false).
		Where("?TableAlias.id = ?", sessionID).
		Where("?TableAlias.profile_id = ?", ownerID).
		Where("?TableAlias.is_active = ?", true).
		Exec(ctx)

	if err != nil {
		return err
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return ErrSessionNotFound.WithMetadata(map[string]any{
			"session_id": sessionID.String(),
			"profile_id": ownerID.String(),
		})
	}

	return nil
}

// TerminateByToken deactivates the session matching the given token. This is
// the sign-out path: only the current device's session goes inactive. A
// missing row is not an error so repeated sign-outs stay no-ops.
func (r *sessions) TerminateByToken(ctx context.Context, profileID uuid.UUID, token string) error {
	if token == "" {
		return nil
	}

	_, err := r.db.NewUpdate().
		Model((*Session)(nil)).
		Set("is_active = ?", false).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.session_token = ?", token).
		Exec(ctx)

	return err
}

// TerminateOthers deactivates every active session except the one holding
// keepToken. Returns the number of sessions terminated.
func (r *sessions) TerminateOthers(ctx context.Context, profileID uuid.UUID, keepToken string) (int64, error) {
	res, err := r.db.NewUpdate().
		Model((*Session)(nil)).
		Set("is_active = ?", false).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.is_active = ?", true).
		Where("?TableAlias.session_token != ?", keepToken).
		Exec(ctx)

	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// Touch bumps last_activity. Last-writer-wins is fine here, the column is
// advisory.
func (r *sessions) Touch(ctx context.Context, sessionID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*Session)(nil)).
		Set("last_activity = ?", r.now()).
		Where("?TableAlias.id = ?", sessionID).
		Exec(ctx)

	return err
}

// newSessionToken combines a high-resolution timestamp with a random
// component so collisions are negligible without coordinating callers.
func newSessionToken(now time.Time) string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")
	return fmt.Sprintf("%x.%s", now.UnixNano(), random)
}
