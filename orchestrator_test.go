package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testEnv() EnvironmentHints {
	return EnvironmentHints{
		UserAgent: uaChromeMac,
		Language:  "en-US",
		IP:        "203.0.113.7",
	}
}

func newTestOrchestrator(t *testing.T, backend IdentityBackend, repo RepositoryManager, cfg staticConfig) (*Orchestrator, *waitNotifier) {
	t.Helper()

	notifier := newWaitNotifier()
	auth := New(backend, repo, cfg).
		WithGeoResolver(NewNoopGeoResolver()).
		WithNotifier(notifier)

	return auth, notifier
}

func backendSessionFor(email string) *BackendSession {
	return &BackendSession{
		UserID:      uuid.NewString(),
		Email:       email,
		AccessToken: "access-token-" + email,
	}
}

func TestOrchestratorSignUpInitializesNewPrincipal(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	backend := &MockBackend{}
	bs := backendSessionFor("new@example.com")
	backend.On("SignUp", mock.Anything, "new@example.com", "super-secret-pw", mock.Anything).
		Return(bs, nil)

	auth, notifier := newTestOrchestrator(t, backend, repo, staticConfig{initialBalance: 1500})

	snap, err := auth.SignUp(context.Background(), SignUpRequest{
		Email:       "new@example.com",
		Password:    "super-secret-pw",
		DisplayName: "New Customer",
		Env:         testEnv(),
	})
	require.NoError(t, err)

	require.True(t, snap.IsAuthenticated())
	require.NotNil(t, snap.Session)
	assert.Equal(t, "Chrome on macOS", snap.Session.DeviceName)
	assert.True(t, snap.Session.IsActive)

	// the opening balance was applied exactly once
	profile, err := repo.Profiles().GetByIdentifier(context.Background(), "new@example.com")
	require.NoError(t, err)
	assert.Equal(t, float64(1500), profile.Balance)

	// the login was recorded with a truncated token
	records, err := repo.ActivityLogs().RecentActivity(context.Background(), profile.ID, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, ActionLogin, records[0].Action)
	assert.True(t, records[0].Success)
	assert.Equal(t, TruncateToken(snap.Session.SessionToken), records[0].SessionTokenPrefix)
	assert.NotEqual(t, snap.Session.SessionToken, records[0].SessionTokenPrefix)

	// the welcome dispatch runs off the critical path
	select {
	case <-notifier.done:
	case <-time.After(2 * time.Second):
		t.Fatal("welcome notification never dispatched")
	}
	sent := notifier.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "new@example.com", sent[0].Email)

	backend.AssertExpectations(t)
}

func TestOrchestratorSignUpWithoutBackendSession(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	backend := &MockBackend{}
	backend.On("SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	_, err := auth.SignUp(context.Background(), SignUpRequest{
		Email:       "gated@example.com",
		Password:    "super-secret-pw",
		DisplayName: "Gated",
		Env:         testEnv(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendSessionMissing)
	assert.Equal(t, StateAnonymous, auth.Current().State)
}

func TestOrchestratorSignInValidationShortCircuits(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	backend := &MockBackend{}
	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	_, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "not-an-email",
		Password: "pw",
	})
	require.Error(t, err)

	backend.AssertNotCalled(t, "SignIn", mock.Anything, mock.Anything, mock.Anything)
}

func TestOrchestratorSignInReusesDeviceSession(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("repeat@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "repeat@example.com", "super-secret-pw").
		Return(bs, nil)

	first, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err := first.SignIn(context.Background(), SignInRequest{
		Email:    "repeat@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)
	firstSessionID := snap.Session.ID

	// a process restart without sign-out leaves the device row active; the
	// next sign-in from the same device adopts it instead of inserting
	second, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err = second.SignIn(context.Background(), SignInRequest{
		Email:    "repeat@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)
	assert.Equal(t, firstSessionID, snap.Session.ID, "same device reuses the session row")

	sessions, err := second.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1, "one row per device")
	assert.True(t, sessions[0].Current)
}

func TestOrchestratorSignInNewDeviceAddsSession(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("multi@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "multi@example.com", "super-secret-pw").
		Return(bs, nil)

	laptop, _ := newTestOrchestrator(t, backend, repo, staticConfig{})
	_, err := laptop.SignIn(context.Background(), SignInRequest{
		Email:    "multi@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)

	phone, _ := newTestOrchestrator(t, backend, repo, staticConfig{})
	snap, err := phone.SignIn(context.Background(), SignInRequest{
		Email:    "multi@example.com",
		Password: "super-secret-pw",
		Env:      EnvironmentHints{UserAgent: uaSafariIOS, IP: "203.0.113.8"},
	})
	require.NoError(t, err)

	sessions, err := phone.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	var currentCount int
	for _, s := range sessions {
		if s.Current {
			currentCount++
			assert.Equal(t, snap.Session.ID, s.ID)
		}
	}
	assert.Equal(t, 1, currentCount, "exactly one session marked current")
}

func TestOrchestratorFailedSignInRecordsAttempt(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	// a principal the console already knows about
	profile, err := repo.Profiles().Create(context.Background(), &Profile{Email: "known@example.com"})
	require.NoError(t, err)

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "known@example.com", "wrong-password").
		Return(nil, errors.New("Invalid login credentials"))

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	_, err = auth.SignIn(context.Background(), SignInRequest{
		Email:    "known@example.com",
		Password: "wrong-password",
		Env:      testEnv(),
	})
	require.Error(t, err)
	assert.Equal(t, "Invalid login credentials", err.Error(), "backend message passes through verbatim")
	assert.Equal(t, StateAnonymous, auth.Current().State)

	records, rerr := repo.ActivityLogs().RecentActivity(context.Background(), profile.ID, time.Time{}, 0)
	require.NoError(t, rerr)
	require.Len(t, records, 1)
	assert.Equal(t, ActionLoginFailed, records[0].Action)
	assert.False(t, records[0].Success)
	assert.Equal(t, "Invalid login credentials", records[0].ErrorMessage)
}

func TestOrchestratorFailedSignInUnknownEmailSkipsAudit(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "ghost@example.com", "whatever-pass").
		Return(nil, errors.New("Invalid login credentials"))

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	_, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "ghost@example.com",
		Password: "whatever-pass",
		Env:      testEnv(),
	})
	require.Error(t, err)
	// no profile, no audit row, and above all no panic
}

func TestOrchestratorSignOut(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("leaving@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "leaving@example.com", "super-secret-pw").
		Return(bs, nil)
	backend.On("SignOut", mock.Anything, bs.AccessToken).Return(nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "leaving@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)

	profileID := snap.Profile.ID
	currentToken := snap.Session.SessionToken

	// a second device session must survive the sign-out
	otherSession, err := repo.Sessions().CreateForDevice(context.Background(), profileID,
		DeviceInfo{DeviceName: "Safari on iOS"}, LocationInfo{})
	require.NoError(t, err)

	require.NoError(t, auth.SignOut(context.Background()))
	assert.Equal(t, StateAnonymous, auth.Current().State)

	remaining, err := repo.Sessions().ListActive(context.Background(), profileID)
	require.NoError(t, err)
	require.Len(t, remaining, 1, "only the current device session deactivates")
	assert.Equal(t, otherSession.ID, remaining[0].ID)

	records, err := repo.ActivityLogs().RecentActivity(context.Background(), profileID, time.Time{}, 0)
	require.NoError(t, err)
	require.NotEmpty(t, records)
	assert.Equal(t, ActionLogout, records[0].Action)
	assert.Equal(t, TruncateToken(currentToken), records[0].SessionTokenPrefix)

	backend.AssertCalled(t, "SignOut", mock.Anything, bs.AccessToken)

	// already signed out: a repeat is a no-op
	require.NoError(t, auth.SignOut(context.Background()))
}

func TestOrchestratorRestoreWritesNoLoginRow(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("restored@example.com")

	backend := &MockBackend{}
	backend.On("CurrentSession", mock.Anything).Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err := auth.Restore(context.Background(), testEnv())
	require.NoError(t, err)
	require.True(t, snap.IsAuthenticated())
	assert.Equal(t, "restored@example.com", snap.Profile.Email)

	records, err := repo.ActivityLogs().RecentActivity(context.Background(), snap.Profile.ID, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, records, "restore is not a login event")
}

func TestOrchestratorRestoreWithoutBackendSession(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	backend := &MockBackend{}
	backend.On("CurrentSession", mock.Anything).Return(nil, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err := auth.Restore(context.Background(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, snap.State)
}

func TestOrchestratorRestoreVerifiesStoredToken(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("verified@example.com")
	bs.AccessToken = mintTestToken(t, testSigningKey, jwt.RegisteredClaims{
		Subject:   bs.UserID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, jwt.SigningMethodHS256)

	backend := &MockBackend{}
	backend.On("CurrentSession", mock.Anything).Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{signingKey: testSigningKey})

	snap, err := auth.Restore(context.Background(), testEnv())
	require.NoError(t, err)
	require.True(t, snap.IsAuthenticated())
	assert.Equal(t, "verified@example.com", snap.Profile.Email)
}

func TestOrchestratorRestoreRejectsExpiredToken(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("stale@example.com")
	bs.AccessToken = mintTestToken(t, testSigningKey, jwt.RegisteredClaims{
		Subject:   bs.UserID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}, jwt.SigningMethodHS256)

	backend := &MockBackend{}
	backend.On("CurrentSession", mock.Anything).Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{signingKey: testSigningKey})

	// an expired stored token is a normal boot condition, not an error
	snap, err := auth.Restore(context.Background(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, snap.State)

	// no principal was adopted
	_, err = repo.Profiles().GetByIdentifier(context.Background(), "stale@example.com")
	assert.Error(t, err)
}

func TestOrchestratorRestoreRejectsMalformedToken(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("garbled@example.com")

	backend := &MockBackend{}
	backend.On("CurrentSession", mock.Anything).Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})
	auth.WithTokenValidator(NewHMACTokenValidator(testSigningKey, ""))

	snap, err := auth.Restore(context.Background(), testEnv())
	require.NoError(t, err)
	assert.Equal(t, StateAnonymous, snap.State)
}

func TestOrchestratorSignInWhileAuthInFlight(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("busy@example.com")
	entered := make(chan struct{})
	release := make(chan struct{})

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "busy@example.com", "super-secret-pw").
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	done := make(chan error, 1)
	go func() {
		_, err := auth.SignIn(context.Background(), SignInRequest{
			Email:    "busy@example.com",
			Password: "super-secret-pw",
			Env:      testEnv(),
		})
		done <- err
	}()

	<-entered

	// the backend is still holding the first exchange
	_, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "busy@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	assert.ErrorIs(t, err, ErrAuthInFlight)

	close(release)
	require.NoError(t, <-done)
	assert.True(t, auth.Current().IsAuthenticated(), "first exchange completes untouched")
}

func TestOrchestratorSignInSessionPersistenceFails(t *testing.T) {
	db, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewRepositoryManager(db)

	bs := backendSessionFor("unlucky@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "unlucky@example.com", "super-secret-pw").
		Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	// sever session persistence after the credential exchange is set up
	_, err := db.Exec("DROP TABLE user_sessions")
	require.NoError(t, err)

	_, err = auth.SignIn(context.Background(), SignInRequest{
		Email:    "unlucky@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.Error(t, err)
	assert.True(t, IsSessionCreateFailed(err))
	assert.Equal(t, StateAnonymous, auth.Current().State, "a half-initialized sign-in rolls back to anonymous")
}

func TestOrchestratorTerminateSession(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("manager@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "manager@example.com", "super-secret-pw").
		Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "manager@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)

	other, err := repo.Sessions().CreateForDevice(context.Background(), snap.Profile.ID,
		DeviceInfo{DeviceName: "Safari on iOS"}, LocationInfo{})
	require.NoError(t, err)

	require.NoError(t, auth.TerminateSession(context.Background(), other.ID))

	sessions, err := auth.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)

	// a foreign session id surfaces as not found
	err = auth.TerminateSession(context.Background(), uuid.New())
	assert.True(t, IsSessionNotFound(err))
}

func TestOrchestratorTerminateOtherSessions(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("sweeper@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "sweeper@example.com", "super-secret-pw").
		Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	snap, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "sweeper@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)

	for _, device := range []string{"Safari on iOS", "Firefox on Linux"} {
		_, err = repo.Sessions().CreateForDevice(context.Background(), snap.Profile.ID,
			DeviceInfo{DeviceName: device}, LocationInfo{})
		require.NoError(t, err)
	}

	count, err := auth.TerminateOtherSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	sessions, err := auth.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.True(t, sessions[0].Current)
}

func TestOrchestratorRequiresAuthentication(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	auth, _ := newTestOrchestrator(t, &MockBackend{}, repo, staticConfig{})

	_, err := auth.ListSessions(context.Background())
	assert.True(t, IsNotAuthenticated(err))

	err = auth.TerminateSession(context.Background(), uuid.New())
	assert.True(t, IsNotAuthenticated(err))

	_, err = auth.TerminateOtherSessions(context.Background())
	assert.True(t, IsNotAuthenticated(err))

	_, err = auth.RecentActivity(context.Background(), 10)
	assert.True(t, IsNotAuthenticated(err))

	// Touch is best-effort and silent when signed out
	auth.Touch(context.Background())
}

func TestOrchestratorBootstrapAdminSignIn(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("root@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "root@example.com", "super-secret-pw").
		Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{
		bootstrapEmail: "root@example.com",
	})

	snap, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "root@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)

	assert.Equal(t, AdminYes, snap.Admin.Status)
	assert.True(t, snap.CanRenderPrivileged())

	// the bootstrap decision was healed into the grant table
	grant, err := repo.AdminUsers().FindActiveByProfile(context.Background(), snap.Profile.ID)
	require.NoError(t, err)
	assert.Equal(t, "bootstrap", grant.GrantedBy)
}

func TestOrchestratorRecentActivityBounds(t *testing.T) {
	repo, cleanup := setupTestRepos(t)
	defer cleanup()

	bs := backendSessionFor("history@example.com")

	backend := &MockBackend{}
	backend.On("SignIn", mock.Anything, "history@example.com", "super-secret-pw").
		Return(bs, nil)

	auth, _ := newTestOrchestrator(t, backend, repo, staticConfig{})

	_, err := auth.SignIn(context.Background(), SignInRequest{
		Email:    "history@example.com",
		Password: "super-secret-pw",
		Env:      testEnv(),
	})
	require.NoError(t, err)

	views, err := auth.RecentActivity(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, views, 1, "the sign-in itself is the only entry")
	assert.Equal(t, ActionLogin, views[0].Action)
	assert.False(t, views[0].Read)
}
