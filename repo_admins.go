package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// AdminUsers persists role-assignment records keyed by profile id.
type AdminUsers interface {
	repository.Repository[*AdminUser]

	FindActiveByProfile(ctx context.Context, profileID uuid.UUID) (*AdminUser, error)
	FindActiveByProfileTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID) (*AdminUser, error)

	// UpsertGrant inserts or reactivates the grant for a profile. Idempotent:
	// repeating the call with the same arguments leaves the same row.
	UpsertGrant(ctx context.Context, profileID uuid.UUID, role AdminRole, grantedBy string) (*AdminUser, error)
	UpsertGrantTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, role AdminRole, grantedBy string) (*AdminUser, error)

	Revoke(ctx context.Context, profileID uuid.UUID) error
}

type adminUsers struct {
	repository.Repository[*AdminUser]
	db *bun.DB
}

var (
	_ AdminUsers                        = (*adminUsers)(nil)
	_ repository.Repository[*AdminUser] = (*adminUsers)(nil)
)

func NewAdminUsersRepository(db *bun.DB) AdminUsers {
	repo := repository.NewRepository[*AdminUser](db, repository.ModelHandlers[*AdminUser]{
		NewRecord: func() *AdminUser { return &AdminUser{} },
		GetID: func(a *AdminUser) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *AdminUser, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
	})

	return &adminUsers{
		Repository: repo,
		db:         db,
	}
}

func (r *adminUsers) FindActiveByProfile(ctx context.Context, profileID uuid.UUID) (*AdminUser, error) {
	return r.FindActiveByProfileTx(ctx, r.db, profileID)
}

func (r *adminUsers) FindActiveByProfileTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID) (*AdminUser, error) {
	record := &AdminUser{}

	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.profile_id = ?", profileID).
		Where("?TableAlias.is_active = ?", true).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"profile_id": profileID.String(),
				})
		}
		return nil, err
	}

	return record, nil
}

func (r *adminUsers) UpsertGrant(ctx context.Context, profileID uuid.UUID, role AdminRole, grantedBy string) (*AdminUser, error) {
	return r.UpsertGrantTx(ctx, r.db, profileID, role, grantedBy)
}

func (r *adminUsers) UpsertGrantTx(ctx context.Context, tx bun.IDB, profileID uuid.UUID, role AdminRole, grantedBy string) (*AdminUser, error) {
	existing := &AdminUser{}

	err := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.profile_id = ?", profileID).
		Limit(1).
		Scan(ctx)

	if err == nil {
		now := time.Now()
		existing.Role = role
		existing.IsActive = true
		existing.UpdatedAt = &now

		_, uerr := tx.NewUpdate().
			Model(existing).
			Column("role", "is_active", "updated_at").
			WherePK().
			Exec(ctx)

		if uerr != nil {
			return nil, uerr
		}

		return existing, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	record := &AdminUser{
		ID:        uuid.New(),
		ProfileID: profileID,
		Role:      role,
		IsActive:  true,
		GrantedBy: grantedBy,
	}

	return r.Repository.CreateTx(ctx, tx, record)
}

func (r *adminUsers) Revoke(ctx context.Context, profileID uuid.UUID) error {
	_, err := r.db.NewUpdate().
		Model((*AdminUser)(nil)).
		Set("is_active = ?", false).
		Where("?TableAlias.profile_id = ?", profileID).
		Exec(ctx)

	return err
}
