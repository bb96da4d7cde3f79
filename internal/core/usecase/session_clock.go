package usecase

import (
	"log/slog"
	"sync"
	"time"
)

const (
	defaultSessionTimeout     = 30 * time.Minute
	defaultSessionWarningLead = 25 * time.Minute
)

// TimerHandle is an owned, cancellable scheduled callback.
type TimerHandle interface {
	Stop() bool
}

// TimerFactory lets tests substitute deterministic timers.
type TimerFactory func(d time.Duration, fn func()) TimerHandle

func afterFunc(d time.Duration, fn func()) TimerHandle {
	return time.AfterFunc(d, fn)
}

type ClockConfig struct {
	// Timeout is the inactivity window after which the session expires.
	Timeout time.Duration
	// WarningLead is the inactivity window after which the advisory warning
	// fires. Must be shorter than Timeout; invalid pairs fall back to the
	// 25/30 minute defaults.
	WarningLead time.Duration
}

func (c ClockConfig) normalize() ClockConfig {
	if c.Timeout <= 0 || c.WarningLead <= 0 || c.WarningLead >= c.Timeout {
		return ClockConfig{Timeout: defaultSessionTimeout, WarningLead: defaultSessionWarningLead}
	}
	return c
}

// SessionClock owns the pair of scheduled callbacks that track inactivity.
// Re-arming always cancels the previous pair first, and a generation counter
// keeps a callback scheduled before a re-arm from firing after it.
type SessionClock struct {
	cfg       ClockConfig
	onWarning func()
	onExpiry  func()
	logger    *slog.Logger

	newTimer TimerFactory
	now      func() time.Time

	mu          sync.Mutex
	gen         uint64
	warnTimer   TimerHandle
	expiryTimer TimerHandle
}

func NewSessionClock(cfg ClockConfig, onWarning, onExpiry func(), logger *slog.Logger) *SessionClock {
	return &SessionClock{
		cfg:       cfg.normalize(),
		onWarning: onWarning,
		onExpiry:  onExpiry,
		logger:    logger,
		newTimer:  afterFunc,
		now:       time.Now,
	}
}

// Arm schedules the warning and expiry callbacks relative to lastActivity,
// cancelling any previously pending pair. At most one pair is ever pending.
func (c *SessionClock) Arm(lastActivity time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	gen := c.gen
	c.stopLocked()

	now := c.now()
	warnDelay := lastActivity.Add(c.cfg.WarningLead).Sub(now)
	expiryDelay := lastActivity.Add(c.cfg.Timeout).Sub(now)
	if warnDelay < 0 {
		warnDelay = 0
	}
	if expiryDelay < 0 {
		expiryDelay = 0
	}

	c.warnTimer = c.newTimer(warnDelay, func() { c.fire(gen, c.onWarning, "warning") })
	c.expiryTimer = c.newTimer(expiryDelay, func() { c.fire(gen, c.onExpiry, "expiry") })
}

// Disarm cancels both pending callbacks. Safe to call repeatedly.
func (c *SessionClock) Disarm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.stopLocked()
}

// Armed reports whether a timer pair is currently pending.
func (c *SessionClock) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.warnTimer != nil || c.expiryTimer != nil
}

func (c *SessionClock) stopLocked() {
	if c.warnTimer != nil {
		c.warnTimer.Stop()
		c.warnTimer = nil
	}
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
		c.expiryTimer = nil
	}
}

// fire runs a scheduled callback unless a later Arm or Disarm superseded it.
// Callbacks never panic past this boundary.
func (c *SessionClock) fire(gen uint64, fn func(), kind string) {
	c.mu.Lock()
	live := c.gen == gen
	c.mu.Unlock()
	if !live || fn == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("session_timer_panic", "kind", kind, "panic", r)
		}
	}()
	fn()
}
