package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/core/ports"
	"github.com/vetpath/vetpath-client/internal/observability/metrics"
)

type SessionConfig struct {
	Timeout     time.Duration
	WarningLead time.Duration
	// ActivityThrottle coalesces bursts of tracked user events into at most
	// one timer re-arm per window. Zero disables throttling.
	ActivityThrottle time.Duration
	Service          string
}

// SessionManager wraps the identity provider and owns all session state.
// The token's embedded expiry is ground truth; the authenticated flag is
// only a cache of it.
type SessionManager struct {
	cfg     SessionConfig
	idp     ports.IdentityProvider
	clock   *SessionClock
	metrics *metrics.ClientMetrics
	logger  *slog.Logger
	limiter *rate.Limiter
	now     func() time.Time

	mu            sync.Mutex
	authenticated bool
	identity      *domain.Identity
	lastActivity  time.Time
	expired       bool
	warning       bool
	listener      func(domain.SessionEvent)
}

func NewSessionManager(cfg SessionConfig, idp ports.IdentityProvider, m *metrics.ClientMetrics, logger *slog.Logger) *SessionManager {
	if cfg.Service == "" {
		cfg.Service = "uploader"
	}
	sm := &SessionManager{
		cfg:     cfg,
		idp:     idp,
		metrics: m,
		logger:  logger,
		now:     time.Now,
	}
	if cfg.ActivityThrottle > 0 {
		sm.limiter = rate.NewLimiter(rate.Every(cfg.ActivityThrottle), 1)
	}
	sm.clock = NewSessionClock(
		ClockConfig{Timeout: cfg.Timeout, WarningLead: cfg.WarningLead},
		sm.handleWarning,
		sm.handleExpiry,
		logger,
	)
	return sm
}

// SetListener registers the single event listener. Must be called during
// wiring, before timers can fire.
func (sm *SessionManager) SetListener(fn func(domain.SessionEvent)) {
	sm.mu.Lock()
	sm.listener = fn
	sm.mu.Unlock()
}

func (sm *SessionManager) IsAuthenticated() bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.authenticated
}

func (sm *SessionManager) Snapshot() domain.SessionSnapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	snap := domain.SessionSnapshot{
		Authenticated:  sm.authenticated,
		LastActivityAt: sm.lastActivity,
		Expired:        sm.expired,
		Warning:        sm.warning,
	}
	if sm.identity != nil {
		identity := *sm.identity
		snap.Identity = &identity
	}
	return snap
}

// CheckAuth queries the identity provider and reconciles local state with
// the token's embedded expiry. A present token whose expiry has passed is
// treated as no session, whatever any cached flag says.
func (sm *SessionManager) CheckAuth(ctx context.Context) error {
	token, err := sm.idp.CurrentSession(ctx)
	if err != nil {
		sm.mu.Lock()
		sm.authenticated = false
		sm.identity = nil
		sm.warning = false
		sm.mu.Unlock()
		sm.clock.Disarm()
		sm.metrics.SetSessionActive(false)
		if domain.IsKind(err, domain.ErrNoSession) {
			return nil
		}
		return fmt.Errorf("check auth: %w", err)
	}

	if token.ExpiredAt(sm.now()) {
		sm.mu.Lock()
		sm.authenticated = false
		sm.identity = nil
		sm.expired = true
		sm.warning = false
		sm.mu.Unlock()
		sm.clock.Disarm()
		sm.metrics.SetSessionActive(false)
		sm.emit(domain.SessionExpired)
		return domain.ErrSessionExpired
	}

	identity := sm.resolveIdentity(ctx, token)

	sm.mu.Lock()
	sm.authenticated = true
	sm.identity = &identity
	sm.expired = false
	sm.warning = false
	sm.lastActivity = sm.now()
	last := sm.lastActivity
	sm.mu.Unlock()

	sm.clock.Arm(last)
	sm.metrics.SetSessionActive(true)
	return nil
}

func (sm *SessionManager) SignIn(ctx context.Context, creds domain.Credentials) error {
	token, err := sm.idp.SignIn(ctx, creds)
	if err != nil {
		return fmt.Errorf("sign in: %w", err)
	}

	identity := sm.resolveIdentity(ctx, token)

	sm.mu.Lock()
	sm.authenticated = true
	sm.identity = &identity
	sm.expired = false
	sm.warning = false
	sm.lastActivity = sm.now()
	last := sm.lastActivity
	sm.mu.Unlock()

	sm.clock.Arm(last)
	sm.metrics.SetSessionActive(true)
	sm.metrics.SessionEvent(sm.cfg.Service, string(domain.SessionAuthenticated))
	sm.emit(domain.SessionAuthenticated)
	return nil
}

// RefreshSession forces a new token. On failure the expired flag is set and
// the caller decides whether to retry or force sign-in.
func (sm *SessionManager) RefreshSession(ctx context.Context) error {
	if _, err := sm.idp.Refresh(ctx); err != nil {
		sm.mu.Lock()
		sm.expired = true
		sm.mu.Unlock()
		sm.metrics.SessionEvent(sm.cfg.Service, string(domain.SessionExpired))
		sm.emit(domain.SessionExpired)
		return fmt.Errorf("refresh session: %w", err)
	}

	sm.mu.Lock()
	sm.authenticated = true
	sm.expired = false
	sm.warning = false
	sm.lastActivity = sm.now()
	last := sm.lastActivity
	sm.mu.Unlock()

	sm.clock.Arm(last)
	sm.metrics.SetSessionActive(true)
	sm.metrics.SessionEvent(sm.cfg.Service, string(domain.SessionAuthenticated))
	sm.emit(domain.SessionAuthenticated)
	return nil
}

// SignOut attempts remote sign-out but unconditionally clears local state,
// so a failed network call never leaves a half-signed-in client.
func (sm *SessionManager) SignOut(ctx context.Context) {
	if err := sm.idp.SignOut(ctx); err != nil {
		sm.logger.Warn("remote_sign_out_failed", "error", err)
	}

	sm.mu.Lock()
	sm.authenticated = false
	sm.identity = nil
	sm.warning = false
	sm.mu.Unlock()

	sm.clock.Disarm()
	sm.metrics.SetSessionActive(false)
	sm.metrics.SessionEvent(sm.cfg.Service, string(domain.SessionSignedOut))
	sm.emit(domain.SessionSignedOut)
}

// Close releases pending timers without signing the user out.
func (sm *SessionManager) Close() {
	sm.clock.Disarm()
}

// UpdateActivity refreshes the inactivity baseline. Re-arming is throttled;
// a suppressed re-arm still records the activity time, and the next allowed
// re-arm uses it.
func (sm *SessionManager) UpdateActivity() {
	sm.mu.Lock()
	sm.lastActivity = sm.now()
	last := sm.lastActivity
	authed := sm.authenticated
	sm.mu.Unlock()

	if !authed {
		return
	}
	if sm.limiter != nil && !sm.limiter.Allow() {
		return
	}
	sm.clock.Arm(last)
}

func (sm *SessionManager) handleWarning() {
	sm.mu.Lock()
	if !sm.authenticated {
		sm.mu.Unlock()
		return
	}
	sm.warning = true
	sm.mu.Unlock()

	sm.logger.Info("session_warning")
	sm.metrics.SessionEvent(sm.cfg.Service, string(domain.SessionWarning))
	sm.emit(domain.SessionWarning)
}

func (sm *SessionManager) handleExpiry() {
	sm.mu.Lock()
	sm.expired = true
	sm.warning = false
	sm.mu.Unlock()

	sm.logger.Info("session_expired")
	sm.metrics.SessionEvent(sm.cfg.Service, string(domain.SessionExpired))
	sm.SignOut(context.Background())
	sm.emit(domain.SessionExpired)
}

// resolveIdentity degrades to a minimal record when attribute lookup fails;
// a broken profile endpoint must not abort authentication.
func (sm *SessionManager) resolveIdentity(ctx context.Context, token domain.Token) domain.Identity {
	identity, err := sm.idp.FetchAttributes(ctx, token)
	if err != nil {
		sm.logger.Warn("identity_attributes_unavailable", "error", err)
		return domain.Identity{Subject: token.Subject}
	}
	return identity
}

func (sm *SessionManager) emit(event domain.SessionEvent) {
	sm.mu.Lock()
	fn := sm.listener
	sm.mu.Unlock()
	if fn != nil {
		fn(event)
	}
}
