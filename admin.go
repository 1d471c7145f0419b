package identity

import (
	"context"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// AdminStatus is tri-state: consumers must treat Unknown as "do not render
// privileged views yet", not as a denial.
type AdminStatus int

const (
	// AdminUnknown means resolution has not completed
	AdminUnknown AdminStatus = iota
	// AdminNo means resolution completed and denied privilege
	AdminNo
	// AdminYes means resolution completed and granted privilege
	AdminYes
)

func (s AdminStatus) String() string {
	switch s {
	case AdminYes:
		return "admin"
	case AdminNo:
		return "not-admin"
	default:
		return "unknown"
	}
}

// AdminDecision is the reconciled outcome of the two privilege sources plus
// the bootstrap escape hatch.
type AdminDecision struct {
	Status         AdminStatus
	Role           AdminRole
	ProfileFlag    bool
	GrantActive    bool
	BootstrapMatch bool
}

// IsAdmin reports whether privilege was granted.
func (d AdminDecision) IsAdmin() bool {
	return d.Status == AdminYes
}

// Diverged reports whether the two persisted sources disagree with the
// decision and a self-healing write would change stored state.
func (d AdminDecision) Diverged() bool {
	return d.IsAdmin() && (!d.ProfileFlag || !d.GrantActive)
}

// ResolveAdminDecision reconciles the two privilege sources with an
// OR-of-sources policy: any positive source grants admin. Role precedence
// when sources disagree: active grant role, then the profile role string,
// then the implicit default. Pure, so the policy is testable without a
// backend.
func ResolveAdminDecision(profileIsAdmin bool, profileRole string, grant *AdminUser, bootstrapMatch bool) AdminDecision {
	decision := AdminDecision{
		Status:         AdminNo,
		ProfileFlag:    profileIsAdmin,
		GrantActive:    grant != nil && grant.IsActive,
		BootstrapMatch: bootstrapMatch,
	}

	if !profileIsAdmin && !decision.GrantActive && !bootstrapMatch {
		return decision
	}

	decision.Status = AdminYes

	switch {
	case decision.GrantActive && grant.Role != "":
		decision.Role = grant.Role
	case profileRole != "":
		decision.Role = profileRole
	default:
		decision.Role = AdminRoleDefault
	}

	return decision
}

// AdminResolver reconciles the profile flag, the role-assignment table, and
// the bootstrap identity into one decision, healing divergence as it goes.
type AdminResolver struct {
	repo           RepositoryManager
	bootstrapEmail string
	logger         Logger
}

// AdminResolverOption configures the resolver.
type AdminResolverOption func(*AdminResolver)

// WithAdminResolverLogger overrides the resolver logger.
func WithAdminResolverLogger(logger Logger) AdminResolverOption {
	return func(r *AdminResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewAdminResolver builds a resolver. bootstrapEmail is the hard-coded
// super-admin identity used to seed the first administrator; pass "" to
// disable the escape hatch.
func NewAdminResolver(repo RepositoryManager, bootstrapEmail string, opts ...AdminResolverOption) *AdminResolver {
	r := &AdminResolver{
		repo:           repo,
		bootstrapEmail: bootstrapEmail,
		logger:         defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	return r
}

// Resolve fetches both privilege sources concurrently and reconciles them.
// A failed source fails closed: it contributes false/absent rather than an
// error, so a flaky table can only under-grant, never block sign-in.
func (r *AdminResolver) Resolve(ctx context.Context, profileID uuid.UUID, email string) (AdminDecision, error) {
	var (
		profile *Profile
		grant   *AdminUser
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		record, err := r.repo.Profiles().GetByIdentifier(gctx, profileID.String())
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			r.logger.Warn("admin resolve profile source failed: %v", err)
			return nil
		}
		profile = record
		return nil
	})

	g.Go(func() error {
		record, err := r.repo.AdminUsers().FindActiveByProfile(gctx, profileID)
		if err != nil {
			if repository.IsRecordNotFound(err) {
				return nil
			}
			r.logger.Warn("admin resolve grant source failed: %v", err)
			return nil
		}
		grant = record
		return nil
	})

	if err := g.Wait(); err != nil {
		return AdminDecision{Status: AdminNo}, err
	}

	profileFlag := false
	profileRole := ""
	if profile != nil {
		profileFlag = profile.IsAdmin
		profileRole = profile.Role
	}

	bootstrapMatch := r.bootstrapEmail != "" &&
		strings.EqualFold(strings.TrimSpace(email), r.bootstrapEmail)

	decision := ResolveAdminDecision(profileFlag, profileRole, grant, bootstrapMatch)

	if decision.Diverged() {
		r.logger.Info("admin sources diverged for %s (flag=%t grant=%t bootstrap=%t), repairing",
			profileID, decision.ProfileFlag, decision.GrantActive, decision.BootstrapMatch)
		r.heal(ctx, profileID, decision)
	}

	return decision, nil
}

// heal persists the reconciled grant back into both sources so subsequent
// resolutions no longer depend on the bootstrap check. Idempotent; failures
// are logged and dropped because the in-memory decision already stands.
func (r *AdminResolver) heal(ctx context.Context, profileID uuid.UUID, decision AdminDecision) {
	if !decision.ProfileFlag {
		if err := r.repo.Profiles().SetAdminRole(ctx, profileID, decision.Role); err != nil {
			r.logger.Warn("admin self-heal profile flag failed: %v", err)
		}
	}

	if !decision.GrantActive {
		grantedBy := "reconciler"
		if decision.BootstrapMatch {
			grantedBy = "bootstrap"
		}
		if _, err := r.repo.AdminUsers().UpsertGrant(ctx, profileID, decision.Role, grantedBy); err != nil {
			r.logger.Warn("admin self-heal grant failed: %v", err)
		}
	}
}
