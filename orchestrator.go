package identity

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// Orchestrator owns the credential exchange, drives session creation,
// triggers admin resolution, and broadcasts the resulting identity state.
// It is the only component that mutates identity state; everything else
// observes snapshots.
type Orchestrator struct {
	backend   IdentityBackend
	repo      RepositoryManager
	cfg       Config
	logger    Logger
	collector DeviceCollector
	geo       GeoResolver
	deviceID  DeviceIdentifier
	recorder  ActivityRecorder
	notifier  Notifier
	resolver  *AdminResolver
	tokens    TokenValidator
	state     *identityStateMachine
	now       func() time.Time
	inFlight  atomic.Bool

	mu             sync.Mutex
	backendSession *BackendSession
}

// New returns an Orchestrator wired with default collaborators. Use the
// With* builders to swap any of them.
func New(backend IdentityBackend, repo RepositoryManager, cfg Config) *Orchestrator {
	var geo GeoResolver = noopGeoResolver{}
	if cfg.GetGeoEndpoint() != "" {
		geo = NewGeoResolver(cfg.GetGeoEndpoint())
	}

	o := &Orchestrator{
		backend:   backend,
		repo:      repo,
		cfg:       cfg,
		logger:    defLogger{},
		collector: NewDeviceCollector(),
		geo:       geo,
		deviceID:  NewDeviceIdentifier(),
		recorder:  NewActivityRecorder(repo.ActivityLogs()),
		notifier:  noopNotifier{},
		resolver:  NewAdminResolver(repo, cfg.GetBootstrapAdminEmail()),
		now:       time.Now,
	}
	o.state = newIdentityStateMachine(o.logger)

	// best-effort: configs without token material skip restore verification
	if validator, err := NewTokenValidator(cfg); err == nil {
		o.tokens = validator
	}

	return o
}

func (o *Orchestrator) WithLogger(logger Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
		o.state.logger = logger
	}
	return o
}

// WithDeviceCollector swaps the device signature source.
func (o *Orchestrator) WithDeviceCollector(collector DeviceCollector) *Orchestrator {
	if collector != nil {
		o.collector = collector
	}
	return o
}

// WithGeoResolver swaps the IP geolocation source.
func (o *Orchestrator) WithGeoResolver(geo GeoResolver) *Orchestrator {
	if geo != nil {
		o.geo = geo
	}
	return o
}

// WithDeviceIdentifier swaps the current-device matching heuristic.
func (o *Orchestrator) WithDeviceIdentifier(id DeviceIdentifier) *Orchestrator {
	if id != nil {
		o.deviceID = id
	}
	return o
}

// WithRecorder configures the activity recorder used for audit entries.
func (o *Orchestrator) WithRecorder(recorder ActivityRecorder) *Orchestrator {
	o.recorder = normalizeRecorder(recorder)
	return o
}

// WithNotifier configures the welcome notification side-channel.
func (o *Orchestrator) WithNotifier(notifier Notifier) *Orchestrator {
	if notifier != nil {
		o.notifier = notifier
	}
	return o
}

// WithTokenValidator swaps the access-token verifier used during restore.
func (o *Orchestrator) WithTokenValidator(validator TokenValidator) *Orchestrator {
	if validator != nil {
		o.tokens = validator
	}
	return o
}

// WithAdminResolver swaps the privilege resolver.
func (o *Orchestrator) WithAdminResolver(resolver *AdminResolver) *Orchestrator {
	if resolver != nil {
		o.resolver = resolver
	}
	return o
}

// WithClock injects a custom clock (useful for tests).
func (o *Orchestrator) WithClock(clock func() time.Time) *Orchestrator {
	if clock != nil {
		o.now = clock
	}
	return o
}

// Current returns the latest identity snapshot.
func (o *Orchestrator) Current() Snapshot {
	return o.state.Current()
}

// Subscribe registers an identity observer; the returned function cancels
// the subscription.
func (o *Orchestrator) Subscribe(fn SubscriberFunc) func() {
	return o.state.Subscribe(fn)
}

// SignUp delegates credential creation to the backend and, when the backend
// returns a live session (no confirmation gate), initializes the device
// session as a brand-new principal. Backend errors surface verbatim.
func (o *Orchestrator) SignUp(ctx context.Context, req SignUpRequest) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return o.state.Current(), err
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return o.state.Current(), ErrAuthInFlight
	}
	defer o.inFlight.Store(false)

	if err := o.state.transition(StateAuthenticating, nil); err != nil {
		return o.state.Current(), err
	}

	bs, err := o.backend.SignUp(ctx, req.Email, req.Password, map[string]any{
		"display_name": req.DisplayName,
	})
	if err != nil {
		o.abortAuth()
		return o.state.Current(), err
	}

	if bs == nil || bs.AccessToken == "" {
		// confirmation gate enabled upstream; nothing to initialize yet
		o.abortAuth()
		return o.state.Current(), ErrBackendSessionMissing
	}

	profile, err := o.adoptProfile(ctx, bs, req.DisplayName, req.Phone)
	if err != nil {
		o.abortAuth()
		return o.state.Current(), err
	}

	return o.initializeSession(ctx, bs, profile, req.Env, initOptions{
		isNew:       true,
		recordLogin: true,
	})
}

// SignIn delegates credential verification to the backend and initializes
// the device session. A failed attempt still captures a device/location
// snapshot for the audit trail; that capture can never fail the flow.
func (o *Orchestrator) SignIn(ctx context.Context, req SignInRequest) (Snapshot, error) {
	if err := req.Validate(); err != nil {
		return o.state.Current(), err
	}

	if !o.inFlight.CompareAndSwap(false, true) {
		return o.state.Current(), ErrAuthInFlight
	}
	defer o.inFlight.Store(false)

	if err := o.state.transition(StateAuthenticating, nil); err != nil {
		return o.state.Current(), err
	}

	bs, err := o.backend.SignIn(ctx, req.Email, req.Password)
	if err != nil {
		o.recordFailedLogin(ctx, req.Email, req.Env, err)
		o.abortAuth()
		return o.state.Current(), err
	}

	profile, err := o.adoptProfile(ctx, bs, "", "")
	if err != nil {
		o.abortAuth()
		return o.state.Current(), err
	}

	return o.initializeSession(ctx, bs, profile, req.Env, initOptions{
		recordLogin: true,
	})
}

// Restore re-adopts an existing backend session on process start. It does
// not write a login activity row and never grants funds. A stored token
// that fails verification leaves the console anonymous rather than
// erroring: an expired session is a normal boot condition.
func (o *Orchestrator) Restore(ctx context.Context, env EnvironmentHints) (Snapshot, error) {
	bs, err := o.backend.CurrentSession(ctx)
	if err != nil || bs == nil || bs.AccessToken == "" {
		if err != nil {
			o.logger.Debug("restore found no backend session: %v", err)
		}
		return o.state.Current(), nil
	}

	if o.tokens != nil {
		if _, err := o.tokens.Validate(bs.AccessToken); err != nil {
			o.logger.Debug("restore rejected stored token: %v", err)
			return o.state.Current(), nil
		}
	}

	profile, err := o.adoptProfile(ctx, bs, "", "")
	if err != nil {
		return o.state.Current(), err
	}

	return o.initializeSession(ctx, bs, profile, env, initOptions{})
}

// SignOut writes a logout entry, deactivates only the current device's
// session, clears identity state, and finally invalidates the backend
// credential. Safe to call when already signed out.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	snapshot := o.state.Current()
	if !snapshot.IsAuthenticated() {
		return nil
	}

	profile := snapshot.Profile
	session := snapshot.Session

	entry := ActivityEntry{
		ProfileID: profile.ID,
		Action:    ActionLogout,
		Success:   true,
	}
	if session != nil {
		entry.SessionToken = session.SessionToken
		entry.Device = &DeviceInfo{
			DeviceName: session.DeviceName,
			DeviceType: session.DeviceType,
			Browser:    session.Browser,
			OS:         session.OS,
		}
	}
	o.recordActivity(ctx, entry)

	if session != nil {
		if err := o.repo.Sessions().TerminateByToken(ctx, profile.ID, session.SessionToken); err != nil {
			o.logger.Warn("sign-out session deactivation failed: %v", err)
		}
	}

	token := o.takeBackendToken()

	if err := o.state.transition(StateAnonymous, nil); err != nil {
		return err
	}

	if token != "" {
		if err := o.backend.SignOut(ctx, token); err != nil {
			// local state is already cleared; the backend credential will
			// expire on its own
			o.logger.Warn("backend sign-out failed: %v", err)
		}
	}

	return nil
}

// ListSessions returns the signed-in principal's active sessions, most
// recent activity first, with the current device marked.
func (o *Orchestrator) ListSessions(ctx context.Context) ([]*SessionView, error) {
	snapshot := o.state.Current()
	if !snapshot.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	records, err := o.repo.Sessions().ListActive(ctx, snapshot.Profile.ID)
	if err != nil {
		return nil, err
	}

	current := ""
	if snapshot.Session != nil {
		current = snapshot.Session.SessionToken
	}

	views := make([]*SessionView, 0, len(records))
	for _, record := range records {
		views = append(views, &SessionView{
			Session: record,
			Current: current != "" && record.SessionToken == current,
		})
	}

	return views, nil
}

// TerminateSession deactivates one of the principal's own sessions. The
// ownership check lives in the store; a session owned by someone else
// surfaces as not found and mutates nothing.
func (o *Orchestrator) TerminateSession(ctx context.Context, sessionID uuid.UUID) error {
	snapshot := o.state.Current()
	if !snapshot.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	if err := o.repo.Sessions().Terminate(ctx, sessionID, snapshot.Profile.ID); err != nil {
		return err
	}

	entry := ActivityEntry{
		ProfileID:    snapshot.Profile.ID,
		Action:       ActionSessionTerminated,
		ResourceType: "session",
		ResourceID:   sessionID.String(),
		Success:      true,
	}
	if snapshot.Session != nil {
		entry.SessionToken = snapshot.Session.SessionToken
	}
	o.recordActivity(ctx, entry)

	return nil
}

// TerminateOtherSessions deactivates every session except the current one.
func (o *Orchestrator) TerminateOtherSessions(ctx context.Context) (int64, error) {
	snapshot := o.state.Current()
	if !snapshot.IsAuthenticated() || snapshot.Session == nil {
		return 0, ErrNotAuthenticated
	}

	count, err := o.repo.Sessions().TerminateOthers(ctx, snapshot.Profile.ID, snapshot.Session.SessionToken)
	if err != nil {
		return 0, err
	}

	if count > 0 {
		o.recordActivity(ctx, ActivityEntry{
			ProfileID:    snapshot.Profile.ID,
			Action:       ActionSessionTerminated,
			ResourceType: "session",
			ResourceID:   "others",
			SessionToken: snapshot.Session.SessionToken,
			Success:      true,
			Metadata:     map[string]any{"count": count},
		})
	}

	return count, nil
}

// RecentActivity returns the principal's audit feed, bounded and excluding
// anything older than the account itself.
func (o *Orchestrator) RecentActivity(ctx context.Context, limit int) ([]*ActivityView, error) {
	snapshot := o.state.Current()
	if !snapshot.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	since := time.Time{}
	if snapshot.Profile.CreatedAt != nil {
		since = *snapshot.Profile.CreatedAt
	}

	records, err := o.repo.ActivityLogs().RecentActivity(ctx, snapshot.Profile.ID, since, limit)
	if err != nil {
		return nil, err
	}

	return NewActivityViews(records), nil
}

// Touch bumps the current session's last-activity stamp. Best-effort.
func (o *Orchestrator) Touch(ctx context.Context) {
	snapshot := o.state.Current()
	if !snapshot.IsAuthenticated() || snapshot.Session == nil {
		return
	}

	if err := o.repo.Sessions().Touch(ctx, snapshot.Session.ID); err != nil {
		o.logger.Warn("session touch failed: %v", err)
	}
}

type initOptions struct {
	isNew       bool
	recordLogin bool
}

// initializeSession runs the post-credential sequence: device collection,
// geolocation, admin resolution, session reuse-or-create, audit entry, and
// the new-principal extras. Steps are sequential because each depends on
// the previous one.
func (o *Orchestrator) initializeSession(ctx context.Context, bs *BackendSession, profile *Profile, env EnvironmentHints, opts initOptions) (Snapshot, error) {
	device := o.collector.Collect(env)
	location := o.geo.Resolve(ctx, env.IP)

	decision, err := o.resolver.Resolve(ctx, profile.ID, profile.Email)
	if err != nil {
		// fail closed: principal signs in without privilege
		o.logger.Warn("admin resolution failed, denying privilege: %v", err)
		decision = AdminDecision{Status: AdminNo}
	}

	session, err := o.reuseOrCreateSession(ctx, profile.ID, device, location)
	if err != nil {
		o.abortAuth()
		return o.state.Current(), ErrSessionCreateFailed.WithMetadata(map[string]any{
			"profile_id": profile.ID.String(),
			"cause":      err.Error(),
		})
	}

	if opts.recordLogin {
		o.recordActivity(ctx, ActivityEntry{
			ProfileID:    profile.ID,
			Action:       ActionLogin,
			Device:       &device,
			Location:     &location,
			SessionToken: session.SessionToken,
			Success:      true,
		})
	}

	if opts.isNew {
		granted, err := o.repo.Profiles().GrantInitialBalance(ctx, profile.ID, o.cfg.GetInitialBalance())
		if err != nil {
			o.logger.Warn("initial balance grant failed: %v", err)
		} else if granted {
			profile.Balance = o.cfg.GetInitialBalance()
		}

		o.dispatchWelcome(profile)
	}

	o.setBackendSession(bs)

	err = o.state.transition(StateAuthenticated, func(s *Snapshot) {
		s.Profile = profile
		s.Session = session
		s.Admin = decision
	})
	if err != nil {
		return o.state.Current(), err
	}

	return o.state.Current(), nil
}

// reuseOrCreateSession keeps at most one active session per device
// signature: an existing match gets its activity bumped, otherwise a fresh
// row is inserted.
func (o *Orchestrator) reuseOrCreateSession(ctx context.Context, profileID uuid.UUID, device DeviceInfo, location LocationInfo) (*Session, error) {
	existing, err := o.repo.Sessions().FindActiveByDevice(ctx, profileID, device.DeviceName)
	if err == nil && o.deviceID.SameDevice(device, existing) {
		if terr := o.repo.Sessions().Touch(ctx, existing.ID); terr != nil {
			o.logger.Warn("session touch on reuse failed: %v", terr)
		}
		existing.LastActivity = o.now()
		return existing, nil
	}

	return o.repo.Sessions().CreateForDevice(ctx, profileID, device, location)
}

// adoptProfile ensures a console profile row exists for the backend
// identity. The id follows the backend's when parseable, otherwise a
// deterministic UUID derived from the email.
func (o *Orchestrator) adoptProfile(ctx context.Context, bs *BackendSession, displayName, phone string) (*Profile, error) {
	record := &Profile{
		Email:       bs.Email,
		DisplayName: displayName,
		Phone:       phone,
	}

	if id, err := uuid.Parse(bs.UserID); err == nil {
		record.ID = id
	} else if id, err := hashid.NewUUID(bs.Email); err == nil {
		record.ID = id
	}

	return o.repo.Profiles().GetOrCreate(ctx, record)
}

// recordFailedLogin captures a failed-attempt audit entry. It must not
// propagate errors: wrong credentials and unreachable geolocation both
// leave the primary error untouched. Attempts against unknown emails are
// skipped because there is no principal to attach the row to.
func (o *Orchestrator) recordFailedLogin(ctx context.Context, email string, env EnvironmentHints, cause error) {
	profile, err := o.repo.Profiles().GetByIdentifier(ctx, email)
	if err != nil {
		o.logger.Debug("failed-login audit skipped for unknown identifier")
		return
	}

	device := o.collector.Collect(env)
	location := o.geo.Resolve(ctx, env.IP)

	o.recordActivity(ctx, ActivityEntry{
		ProfileID:    profile.ID,
		Action:       ActionLoginFailed,
		Device:       &device,
		Location:     &location,
		Success:      false,
		ErrorMessage: cause.Error(),
	})
}

// recordActivity appends to the ledger best-effort: a failed insert is
// logged and the primary flow continues.
func (o *Orchestrator) recordActivity(ctx context.Context, entry ActivityEntry) {
	recorder := normalizeRecorder(o.recorder)
	if err := recorder.Record(ctx, entry); err != nil {
		o.logger.Warn("activity recorder error: %v", err)
	}
}

// dispatchWelcome fires the welcome notification without awaiting it.
func (o *Orchestrator) dispatchWelcome(profile *Profile) {
	handler := &WelcomeNotificationHandler{
		notifier: o.notifier,
		logger:   o.logger,
	}

	msg := WelcomeNotificationMessage{
		ProfileID:   profile.ID,
		Email:       profile.Email,
		DisplayName: profile.DisplayName,
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := handler.Execute(ctx, msg); err != nil {
			o.logger.Warn("welcome notification failed: %v", err)
		}
	}()
}

func (o *Orchestrator) abortAuth() {
	if err := o.state.transition(StateAnonymous, nil); err != nil {
		o.logger.Error("abort transition failed: %v", err)
	}
}

func (o *Orchestrator) setBackendSession(bs *BackendSession) {
	o.mu.Lock()
	o.backendSession = bs
	o.mu.Unlock()
}

func (o *Orchestrator) takeBackendToken() string {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.backendSession == nil {
		return ""
	}

	token := o.backendSession.AccessToken
	o.backendSession = nil
	return token
}

// SessionView wraps a session row for the management panel, marking the
// current device.
type SessionView struct {
	*Session
	Current bool `json:"current"`
}
