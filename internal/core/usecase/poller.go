package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lthibault/jitterbug/v2"

	"github.com/vetpath/vetpath-client/internal/core/ports"
	"github.com/vetpath/vetpath-client/internal/observability/metrics"
)

const (
	defaultPollInterval = 2 * time.Second
	defaultPollCeiling  = 5 * time.Minute
	pollRequestTimeout  = 5 * time.Second
)

// Ticker abstracts the poll pacing source so tests can drive ticks manually.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type jitterTicker struct {
	inner *jitterbug.Ticker
}

func (t jitterTicker) C() <-chan time.Time { return t.inner.C }
func (t jitterTicker) Stop()               { t.inner.Stop() }

// newJitterTicker paces ticks at the nominal interval with millisecond-scale
// jitter so a fleet of clients does not align on the status endpoint.
func newJitterTicker(d time.Duration) Ticker {
	return jitterTicker{inner: jitterbug.New(d, &jitterbug.Norm{Stdev: 100 * time.Millisecond})}
}

type PollerConfig struct {
	Interval time.Duration
	Ceiling  time.Duration
	Service  string
}

// StatusPoller repeatedly fetches backend step statuses for one document.
// At most one poll session is live; starting a new one tears down the old
// one first, and late responses for a torn-down session are discarded.
type StatusPoller struct {
	cfg     PollerConfig
	backend ports.UploadBackend
	metrics *metrics.ClientMetrics
	logger  *slog.Logger

	newTicker TickerFactory
	now       func() time.Time

	mu      sync.Mutex
	current *pollSession
}

type pollSession struct {
	documentID string
	stop       chan struct{}
	stopOnce   sync.Once
	done       chan struct{}
}

func NewStatusPoller(cfg PollerConfig, backend ports.UploadBackend, m *metrics.ClientMetrics, logger *slog.Logger) *StatusPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = defaultPollCeiling
	}
	if cfg.Service == "" {
		cfg.Service = "uploader"
	}
	return &StatusPoller{
		cfg:       cfg,
		backend:   backend,
		metrics:   m,
		logger:    logger,
		newTicker: newJitterTicker,
		now:       time.Now,
	}
}

// Start begins polling for documentID, replacing any live poll session.
func (p *StatusPoller) Start(documentID string, sink ports.PollSink) {
	p.Stop()

	sess := &pollSession{
		documentID: documentID,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}

	p.mu.Lock()
	p.current = sess
	p.mu.Unlock()

	p.metrics.PollSessionStarted()
	p.logger.Info("poll_started", "document_id", documentID)
	go p.run(sess, sink)
}

// Stop tears down the live poll session, waiting for its loop to exit.
// Safe to call repeatedly and with no session live.
func (p *StatusPoller) Stop() {
	p.mu.Lock()
	sess := p.current
	p.mu.Unlock()
	if sess == nil {
		return
	}

	sess.stopOnce.Do(func() { close(sess.stop) })
	<-sess.done
}

func (p *StatusPoller) run(sess *pollSession, sink ports.PollSink) {
	defer func() {
		p.mu.Lock()
		if p.current == sess {
			p.current = nil
		}
		p.mu.Unlock()
		p.metrics.PollSessionStopped()
		close(sess.done)
	}()

	deadline := p.now().Add(p.cfg.Ceiling)
	ticker := p.newTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-sess.stop:
			return
		case <-ticker.C():
		}

		if !p.now().Before(deadline) {
			// Give up politely: the backend may still finish, so the last
			// known job state stands untouched.
			p.logger.Info("poll_ceiling_reached", "document_id", sess.documentID)
			p.metrics.PollCeilingReached()
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), pollRequestTimeout)
		report, err := p.backend.UploadStatus(ctx, sess.documentID)
		cancel()

		if p.stale(sess) {
			return
		}
		if err != nil {
			p.logger.Warn("poll_tick_failed", "document_id", sess.documentID, "error", err)
			p.metrics.PollTick(p.cfg.Service, "error")
			continue
		}

		p.metrics.PollTick(p.cfg.Service, "ok")
		sink.HandleReport(sess.documentID, report)

		if report.Terminal() {
			p.logger.Info("poll_finished", "document_id", sess.documentID, "status", string(report.Status))
			return
		}
	}
}

// stale reports whether sess has been superseded or stopped while a request
// was in flight.
func (p *StatusPoller) stale(sess *pollSession) bool {
	select {
	case <-sess.stop:
		return true
	default:
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != sess
}
