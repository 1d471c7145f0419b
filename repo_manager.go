package identity

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Profiles() Profiles
	Sessions() Sessions
	ActivityLogs() ActivityLogs
	AdminUsers() AdminUsers
}

type mngr struct {
	db           *bun.DB
	profiles     Profiles
	sessions     Sessions
	activityLogs ActivityLogs
	adminUsers   AdminUsers
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		profiles:     NewProfilesRepository(db),
		sessions:     NewSessionsRepository(db),
		activityLogs: NewActivityLogsRepository(db),
		adminUsers:   NewAdminUsersRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.sessions == nil {
		return errors.New("repository sessions should be initialized")
	}

	if m.activityLogs == nil {
		return errors.New("repository activityLogs should be initialized")
	}

	if m.adminUsers == nil {
		return errors.New("repository adminUsers should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Profiles() Profiles {
	return m.profiles
}

func (m mngr) Sessions() Sessions {
	return m.sessions
}

func (m mngr) ActivityLogs() ActivityLogs {
	return m.activityLogs
}

func (m mngr) AdminUsers() AdminUsers {
	return m.adminUsers
}
