package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/observability/logging"
	"github.com/vetpath/vetpath-client/internal/observability/metrics"
)

type fakeIdentityProvider struct {
	token        domain.Token
	currentErr   error
	signInToken  domain.Token
	signInErr    error
	refreshToken domain.Token
	refreshErr   error
	signOutErr   error
	identity     domain.Identity
	attrsErr     error

	signOutCalls int
}

func (f *fakeIdentityProvider) CurrentSession(context.Context) (domain.Token, error) {
	if f.currentErr != nil {
		return domain.Token{}, f.currentErr
	}
	return f.token, nil
}

func (f *fakeIdentityProvider) SignIn(context.Context, domain.Credentials) (domain.Token, error) {
	if f.signInErr != nil {
		return domain.Token{}, f.signInErr
	}
	return f.signInToken, nil
}

func (f *fakeIdentityProvider) Refresh(context.Context) (domain.Token, error) {
	if f.refreshErr != nil {
		return domain.Token{}, f.refreshErr
	}
	return f.refreshToken, nil
}

func (f *fakeIdentityProvider) SignOut(context.Context) error {
	f.signOutCalls++
	return f.signOutErr
}

func (f *fakeIdentityProvider) FetchAttributes(context.Context, domain.Token) (domain.Identity, error) {
	if f.attrsErr != nil {
		return domain.Identity{}, f.attrsErr
	}
	return f.identity, nil
}

type eventRecorder struct {
	events []domain.SessionEvent
}

func (r *eventRecorder) record(event domain.SessionEvent) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) count(event domain.SessionEvent) int {
	n := 0
	for _, got := range r.events {
		if got == event {
			n++
		}
	}
	return n
}

func newTestManager(t *testing.T, idp *fakeIdentityProvider) (*SessionManager, *fakeScheduler, *eventRecorder) {
	t.Helper()
	sm := NewSessionManager(
		SessionConfig{Timeout: 30 * time.Minute, WarningLead: 25 * time.Minute},
		idp,
		metrics.NewClientMetrics("test"),
		logging.Discard(),
	)
	sched := &fakeScheduler{}
	sm.clock.newTimer = sched.factory
	rec := &eventRecorder{}
	sm.SetListener(rec.record)
	return sm, sched, rec
}

func validToken() domain.Token {
	return domain.Token{Raw: "tok", Subject: "veteran-1", ExpiresAt: time.Now().Add(time.Hour)}
}

func TestCheckAuthTreatsExpiredTokenAsExpiredSession(t *testing.T) {
	idp := &fakeIdentityProvider{
		token: domain.Token{Raw: "tok", Subject: "veteran-1", ExpiresAt: time.Now().Add(-time.Minute)},
	}
	sm, sched, rec := newTestManager(t, idp)

	err := sm.CheckAuth(context.Background())
	if !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected session expired error, got %v", err)
	}
	if sm.IsAuthenticated() {
		t.Fatalf("expired token must not authenticate")
	}
	snap := sm.Snapshot()
	if !snap.Expired {
		t.Fatalf("snapshot should flag the expired session")
	}
	if rec.count(domain.SessionExpired) != 1 {
		t.Fatalf("expected one expired event, got %v", rec.events)
	}
	if len(sched.pending()) != 0 {
		t.Fatalf("timers must not be armed for an expired session")
	}
}

func TestCheckAuthNoSessionIsClean(t *testing.T) {
	idp := &fakeIdentityProvider{currentErr: domain.ErrNoSession}
	sm, _, rec := newTestManager(t, idp)

	if err := sm.CheckAuth(context.Background()); err != nil {
		t.Fatalf("no session should not be an error, got %v", err)
	}
	if sm.IsAuthenticated() {
		t.Fatalf("no session must not authenticate")
	}
	if len(rec.events) != 0 {
		t.Fatalf("no events expected, got %v", rec.events)
	}
}

func TestCheckAuthArmsTimersAndClearsExpired(t *testing.T) {
	idp := &fakeIdentityProvider{token: validToken(), identity: domain.Identity{Subject: "veteran-1", Email: "v@example.org"}}
	sm, sched, _ := newTestManager(t, idp)
	sm.expired = true

	if err := sm.CheckAuth(context.Background()); err != nil {
		t.Fatalf("check auth failed: %v", err)
	}
	if !sm.IsAuthenticated() {
		t.Fatalf("valid token should authenticate")
	}
	snap := sm.Snapshot()
	if snap.Expired || snap.Warning {
		t.Fatalf("fresh auth should clear expired and warning, got %+v", snap)
	}
	if snap.Identity == nil || snap.Identity.Email != "v@example.org" {
		t.Fatalf("identity not resolved: %+v", snap.Identity)
	}
	if len(sched.pending()) != 2 {
		t.Fatalf("expected armed timer pair, got %d", len(sched.pending()))
	}
}

func TestCheckAuthDegradesWhenAttributesUnavailable(t *testing.T) {
	idp := &fakeIdentityProvider{token: validToken(), attrsErr: errors.New("userinfo down")}
	sm, _, _ := newTestManager(t, idp)

	if err := sm.CheckAuth(context.Background()); err != nil {
		t.Fatalf("attribute failure must not abort auth: %v", err)
	}
	snap := sm.Snapshot()
	if snap.Identity == nil || snap.Identity.Subject != "veteran-1" || snap.Identity.Email != "" {
		t.Fatalf("expected minimal identity, got %+v", snap.Identity)
	}
}

func TestSignOutClearsStateWhenRemoteFails(t *testing.T) {
	idp := &fakeIdentityProvider{
		signInToken: validToken(),
		signOutErr:  errors.New("revocation endpoint down"),
	}
	sm, sched, rec := newTestManager(t, idp)
	if err := sm.SignIn(context.Background(), domain.Credentials{Username: "v", Password: "p"}); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	sm.SignOut(context.Background())
	sm.SignOut(context.Background())

	if sm.IsAuthenticated() {
		t.Fatalf("sign-out must clear authentication even when the remote call fails")
	}
	if sm.Snapshot().Identity != nil {
		t.Fatalf("identity should be cleared on sign-out")
	}
	if len(sched.pending()) != 0 {
		t.Fatalf("timers must be disarmed on sign-out")
	}
	if rec.count(domain.SessionSignedOut) != 2 {
		t.Fatalf("each sign-out emits its event, got %v", rec.events)
	}
}

func TestRefreshFailureMarksExpired(t *testing.T) {
	idp := &fakeIdentityProvider{refreshErr: errors.New("grant revoked")}
	sm, _, rec := newTestManager(t, idp)

	if err := sm.RefreshSession(context.Background()); err == nil {
		t.Fatalf("expected refresh error")
	}
	if !sm.Snapshot().Expired {
		t.Fatalf("failed refresh should mark the session expired")
	}
	if rec.count(domain.SessionExpired) != 1 {
		t.Fatalf("expected one expired event, got %v", rec.events)
	}
}

func TestRefreshSuccessClearsWarningAndExpired(t *testing.T) {
	idp := &fakeIdentityProvider{refreshToken: validToken()}
	sm, sched, rec := newTestManager(t, idp)
	sm.expired = true
	sm.warning = true

	if err := sm.RefreshSession(context.Background()); err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	snap := sm.Snapshot()
	if snap.Expired || snap.Warning {
		t.Fatalf("refresh should clear expired and warning, got %+v", snap)
	}
	if len(sched.pending()) != 2 {
		t.Fatalf("refresh should re-arm the timer pair")
	}
	if rec.count(domain.SessionAuthenticated) != 1 {
		t.Fatalf("expected authenticated event, got %v", rec.events)
	}
}

func TestWarningThenExpiryFlow(t *testing.T) {
	idp := &fakeIdentityProvider{signInToken: validToken()}
	sm, sched, rec := newTestManager(t, idp)
	if err := sm.SignIn(context.Background(), domain.Credentials{}); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}

	pair := sched.pending()
	pair[0].fn()
	if !sm.Snapshot().Warning {
		t.Fatalf("warning callback should set the warning flag")
	}
	if rec.count(domain.SessionWarning) != 1 {
		t.Fatalf("expected one warning event, got %v", rec.events)
	}

	pair[1].fn()
	snap := sm.Snapshot()
	if !snap.Expired || snap.Warning || snap.Authenticated {
		t.Fatalf("expiry should sign out and leave only the expired flag, got %+v", snap)
	}
	if idp.signOutCalls != 1 {
		t.Fatalf("expiry should trigger exactly one sign-out, got %d", idp.signOutCalls)
	}
	if rec.count(domain.SessionExpired) != 1 {
		t.Fatalf("expected one expired event, got %v", rec.events)
	}
}

func TestWarningSkippedWhenSignedOut(t *testing.T) {
	idp := &fakeIdentityProvider{signInToken: validToken()}
	sm, sched, rec := newTestManager(t, idp)
	if err := sm.SignIn(context.Background(), domain.Credentials{}); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	warn := sched.pending()[0]
	sm.SignOut(context.Background())

	warn.fn()
	if sm.Snapshot().Warning {
		t.Fatalf("warning must not fire for a signed-out session")
	}
	if rec.count(domain.SessionWarning) != 0 {
		t.Fatalf("no warning event expected, got %v", rec.events)
	}
}

func TestUpdateActivityThrottlesReArms(t *testing.T) {
	idp := &fakeIdentityProvider{signInToken: validToken()}
	sm, _, _ := newTestManager(t, idp)
	sm.limiter = nil
	cfg := sm.cfg
	cfg.ActivityThrottle = time.Hour
	throttled := NewSessionManager(cfg, idp, metrics.NewClientMetrics("test"), logging.Discard())
	sched := &fakeScheduler{}
	throttled.clock.newTimer = sched.factory
	if err := throttled.SignIn(context.Background(), domain.Credentials{}); err != nil {
		t.Fatalf("sign in failed: %v", err)
	}
	armsAfterSignIn := len(sched.timers)

	throttled.UpdateActivity()
	throttled.UpdateActivity()
	throttled.UpdateActivity()

	// One re-arm schedules two timers; the burst collapses into one re-arm.
	if got := len(sched.timers) - armsAfterSignIn; got != 2 {
		t.Fatalf("expected one coalesced re-arm, got %d new timers", got)
	}
}

func TestUpdateActivityIgnoredWhenNotAuthenticated(t *testing.T) {
	idp := &fakeIdentityProvider{}
	sm, sched, _ := newTestManager(t, idp)

	sm.UpdateActivity()
	if len(sched.timers) != 0 {
		t.Fatalf("activity before auth must not arm timers")
	}
	if sm.lastActivity.IsZero() {
		t.Fatalf("activity time should still be recorded")
	}
}
