package identity

import (
	"context"
	"net/mail"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var GrantInitialBalanceSQL = `UPDATE "profiles" AS "prf"
SET
	"balance" = ?
WHERE
	"prf"."deleted_at" IS NULL
AND (
	"prf"."id" = ?
)
AND (
	"prf"."balance" IS NULL OR "prf"."balance" = 0
) RETURNING *;`

// Profiles persists the console-owned extension of the backend identity.
type Profiles interface {
	repository.Repository[*Profile]

	GetOrCreate(ctx context.Context, record *Profile) (*Profile, error)
	GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error)
	Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error)

	// GrantInitialBalance sets the opening balance if and only if the stored
	// balance is zero or null. Safe to repeat: a nonzero balance is never
	// overwritten. Reports whether the grant was applied.
	GrantInitialBalance(ctx context.Context, id uuid.UUID, amount float64) (bool, error)
	GrantInitialBalanceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, amount float64) (bool, error)

	// SetAdminRole marks the profile-embedded admin source. Idempotent.
	SetAdminRole(ctx context.Context, id uuid.UUID, role string) error
	SetAdminRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role string) error
}

type profiles struct {
	repository.Repository[*Profile]
	db *bun.DB
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

func NewProfilesRepository(db *bun.DB) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &profiles{
		Repository: repo,
		db:         db,
	}
}

func (a *profiles) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Profile, error) {
	return a.GetByIdentifierTx(ctx, a.db, identifier, criteria...)
}

func (a *profiles) GetByIdentifierTx(ctx context.Context, tx bun.IDB, identifier string, criteria ...repository.SelectCriteria) (*Profile, error) {
	column := "email"
	value := strings.TrimSpace(identifier)

	if isProfileUUID(value) {
		column = "id"
	} else if !isProfileEmail(value) {
		column = "account_number"
	}

	record := &Profile{}
	q := tx.NewSelect().Model(record)

	for _, c := range criteria {
		q.Apply(c)
	}

	err := q.
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"identifier": identifier,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *profiles) Create(ctx context.Context, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *profiles) CreateTx(ctx context.Context, tx bun.IDB, record *Profile, criteria ...repository.InsertCriteria) (*Profile, error) {
	prepareProfileDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *profiles) GetOrCreate(ctx context.Context, record *Profile) (*Profile, error) {
	return a.GetOrCreateTx(ctx, a.db, record)
}

func (a *profiles) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Profile) (*Profile, error) {
	identifier := record.Email
	if record.ID != uuid.Nil {
		identifier = record.ID.String()
	}

	profile, err := a.GetByIdentifierTx(ctx, tx, identifier)
	if err == nil {
		return profile, nil
	}

	if !repository.IsRecordNotFound(err) {
		return nil, err
	}

	return a.CreateTx(ctx, tx, record)
}

func (a *profiles) GrantInitialBalance(ctx context.Context, id uuid.UUID, amount float64) (bool, error) {
	return a.GrantInitialBalanceTx(ctx, a.db, id, amount)
}

func (a *profiles) GrantInitialBalanceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, amount float64) (bool, error) {
	res, err := a.Repository.RawTx(ctx, tx, GrantInitialBalanceSQL, amount, id.String())
	if err != nil {
		return false, err
	}

	return len(res) > 0, nil
}

func (a *profiles) SetAdminRole(ctx context.Context, id uuid.UUID, role string) error {
	return a.SetAdminRoleTx(ctx, a.db, id, role)
}

func (a *profiles) SetAdminRoleTx(ctx context.Context, tx bun.IDB, id uuid.UUID, role string) error {
	_, err := tx.NewUpdate().
		Model((*Profile)(nil)).
		Set("is_admin = ?", true).
		Set("role = ?", role).
		Where("?TableAlias.id = ?", id).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	return err
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.AccountNumber == "" {
		record.AccountNumber = newAccountNumber(record.ID)
	}
}

// newAccountNumber derives a stable display account number from the profile
// id. Not a routing identifier, just what the dashboard shows.
func newAccountNumber(id uuid.UUID) string {
	raw := strings.ReplaceAll(id.String(), "-", "")
	return "ACCT-" + strings.ToUpper(raw[:12])
}

func isProfileEmail(email string) bool {
	_, err := mail.ParseAddress(email)
	return err == nil
}

func isProfileUUID(identifier string) bool {
	_, err := uuid.Parse(identifier)
	return err == nil
}
