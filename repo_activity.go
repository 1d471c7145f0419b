package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// DefaultActivityLimit bounds audit views unless the caller asks otherwise.
const DefaultActivityLimit = 10

// ActivityLogs is the append-only audit ledger. On purpose this interface
// does not embed the generic repository: rows can be appended and read,
// never updated or deleted.
type ActivityLogs interface {
	Append(ctx context.Context, record *ActivityLog) (*ActivityLog, error)
	AppendTx(ctx context.Context, tx bun.IDB, record *ActivityLog) (*ActivityLog, error)

	// RecentActivity returns rows at or after since, newest first. Rows
	// predating the principal's account creation are excluded by passing the
	// profile's CreatedAt as since.
	RecentActivity(ctx context.Context, profileID uuid.UUID, since time.Time, limit int) ([]*ActivityLog, error)

	CountForProfile(ctx context.Context, profileID uuid.UUID) (int, error)
}

type activityLogs struct {
	db  *bun.DB
	now func() time.Time
}

var _ ActivityLogs = (*activityLogs)(nil)

// ActivityLogsOption configures the activity ledger.
type ActivityLogsOption func(*activityLogs)

// WithActivityClock injects a custom clock (useful for tests).
func WithActivityClock(clock func() time.Time) ActivityLogsOption {
	return func(a *activityLogs) {
		if clock != nil {
			a.now = clock
		}
	}
}

func NewActivityLogsRepository(db *bun.DB, opts ...ActivityLogsOption) ActivityLogs {
	repo := &activityLogs{
		db:  db,
		now: time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(repo)
		}
	}

	return repo
}

func (a *activityLogs) Append(ctx context.Context, record *ActivityLog) (*ActivityLog, error) {
	return a.AppendTx(ctx, a.db, record)
}

func (a *activityLogs) AppendTx(ctx context.Context, tx bun.IDB, record *ActivityLog) (*ActivityLog, error) {
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := a.now()
		record.CreatedAt = &now
	}

	if _, err := tx.NewInsert().Model(record).Exec(ctx); err != nil {
		return nil, err
	}

	return record, nil
}

func (a *activityLogs) RecentActivity(ctx context.Context, profileID uuid.UUID, since time.Time, limit int) ([]*ActivityLog, error) {
	if limit <= 0 {
		limit = DefaultActivityLimit
	}

	records := []*ActivityLog{}

	err := a.db.NewSelect().
		Model(&records).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.created_at >= ?", since).
		Order("created_at DESC").
		Limit(limit).
		Scan(ctx)

	if err != nil {
		return nil, err
	}

	return records, nil
}

func (a *activityLogs) CountForProfile(ctx context.Context, profileID uuid.UUID) (int, error) {
	return a.db.NewSelect().
		Model((*ActivityLog)(nil)).
		Where("?TableAlias.profile_id = ?", profileID).
		Count(ctx)
}
