package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/observability/logging"
	"github.com/vetpath/vetpath-client/internal/observability/metrics"
)

type fakeTickerSource struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func (s *fakeTickerSource) factory(time.Duration) Ticker {
	ticker := &manualTicker{ch: make(chan time.Time, 16)}
	s.mu.Lock()
	s.tickers = append(s.tickers, ticker)
	s.mu.Unlock()
	return ticker
}

// wait blocks until the poll loop has created its nth ticker. The ticker is
// created after the loop computes its ceiling deadline, so a returned ticker
// also means the session is fully started.
func (s *fakeTickerSource) wait(t *testing.T, n int) *manualTicker {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		s.mu.Lock()
		count := len(s.tickers)
		var last *manualTicker
		if count > 0 {
			last = s.tickers[count-1]
		}
		s.mu.Unlock()
		if count >= n {
			return last
		}
		select {
		case <-deadline:
			t.Fatalf("poll loop never created ticker %d", n)
		case <-time.After(2 * time.Millisecond):
		}
	}
}

type manualTicker struct {
	ch chan time.Time
}

func (t *manualTicker) C() <-chan time.Time { return t.ch }
func (t *manualTicker) Stop()               {}

func (t *manualTicker) tick() {
	t.ch <- time.Now()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) get() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type scriptedBackend struct {
	mu      sync.Mutex
	calls   []string
	results []statusResult
	block   chan struct{}
}

type statusResult struct {
	report domain.StatusReport
	err    error
}

func (b *scriptedBackend) CreateUpload(context.Context, domain.UploadRequest) (domain.UploadTarget, error) {
	return domain.UploadTarget{}, errors.New("not used")
}

func (b *scriptedBackend) UploadStatus(_ context.Context, documentID string) (domain.StatusReport, error) {
	if b.block != nil {
		<-b.block
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, documentID)
	if len(b.results) == 0 {
		return domain.StatusReport{Status: domain.PipelineProcessing}, nil
	}
	next := b.results[0]
	b.results = b.results[1:]
	return next.report, next.err
}

func (b *scriptedBackend) callIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.calls))
	copy(out, b.calls)
	return out
}

type recordingSink struct {
	mu      sync.Mutex
	reports []domain.StatusReport
	handled chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{handled: make(chan struct{}, 16)}
}

func (s *recordingSink) HandleReport(_ string, report domain.StatusReport) {
	s.mu.Lock()
	s.reports = append(s.reports, report)
	s.mu.Unlock()
	s.handled <- struct{}{}
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.reports)
}

func (s *recordingSink) waitHandled(t *testing.T) {
	t.Helper()
	select {
	case <-s.handled:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for a report")
	}
}

func newTestPoller(backend *scriptedBackend) (*StatusPoller, *fakeTickerSource) {
	src := &fakeTickerSource{}
	p := NewStatusPoller(
		PollerConfig{Interval: 2 * time.Second, Ceiling: 5 * time.Minute},
		backend,
		metrics.NewClientMetrics("test"),
		logging.Discard(),
	)
	p.newTicker = src.factory
	return p, src
}

func waitStopped(t *testing.T, p *StatusPoller) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		p.mu.Lock()
		idle := p.current == nil
		p.mu.Unlock()
		if idle {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("poll session did not stop")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestPollerStopsAfterTerminalReport(t *testing.T) {
	backend := &scriptedBackend{results: []statusResult{
		{report: domain.StatusReport{Status: domain.PipelineProcessing}},
		{report: domain.StatusReport{Status: domain.PipelineComplete}},
	}}
	p, src := newTestPoller(backend)
	sink := newRecordingSink()

	p.Start("doc-1", sink)
	ticker := src.wait(t, 1)

	ticker.tick()
	sink.waitHandled(t)
	ticker.tick()
	sink.waitHandled(t)
	waitStopped(t, p)

	if got := sink.count(); got != 2 {
		t.Fatalf("expected 2 reports, got %d", got)
	}
	// The loop has exited; a further tick has no reader and must not reach
	// the sink.
	ticker.tick()
	time.Sleep(20 * time.Millisecond)
	if got := sink.count(); got != 2 {
		t.Fatalf("terminal report should end polling, got %d reports", got)
	}
}

func TestPollerReplacesLiveSession(t *testing.T) {
	backend := &scriptedBackend{}
	p, src := newTestPoller(backend)
	sink := newRecordingSink()

	p.Start("doc-old", sink)
	src.wait(t, 1)
	p.Start("doc-new", sink)
	ticker := src.wait(t, 2)

	ticker.tick()
	sink.waitHandled(t)
	p.Stop()

	for _, id := range backend.callIDs() {
		if id != "doc-new" {
			t.Fatalf("old session polled after replacement: %v", backend.callIDs())
		}
	}
}

func TestPollerCeilingEndsQuietly(t *testing.T) {
	backend := &scriptedBackend{}
	p, src := newTestPoller(backend)
	sink := newRecordingSink()
	clock := &fakeClock{now: time.Now()}
	p.now = clock.get

	p.Start("doc-1", sink)
	ticker := src.wait(t, 1)
	clock.advance(6 * time.Minute)

	ticker.tick()
	waitStopped(t, p)

	if got := sink.count(); got != 0 {
		t.Fatalf("ceiling must not surface a report or error, got %d reports", got)
	}
	if len(backend.callIDs()) != 0 {
		t.Fatalf("no status request expected past the ceiling")
	}
}

func TestPollerContinuesAfterTransportError(t *testing.T) {
	backend := &scriptedBackend{results: []statusResult{
		{err: errors.New("gateway timeout")},
		{report: domain.StatusReport{Status: domain.PipelineComplete}},
	}}
	p, src := newTestPoller(backend)
	sink := newRecordingSink()

	p.Start("doc-1", sink)
	ticker := src.wait(t, 1)
	ticker.tick()
	ticker.tick()
	sink.waitHandled(t)
	waitStopped(t, p)

	if got := sink.count(); got != 1 {
		t.Fatalf("failed tick must be skipped, not surfaced: %d reports", got)
	}
}

func TestPollerDiscardsResponseAfterStop(t *testing.T) {
	backend := &scriptedBackend{block: make(chan struct{})}
	p, src := newTestPoller(backend)
	sink := newRecordingSink()

	p.Start("doc-1", sink)
	src.wait(t, 1).tick()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()

	close(backend.block)
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return")
	}

	if got := sink.count(); got != 0 {
		t.Fatalf("response arriving after stop must be discarded, got %d reports", got)
	}
}

func TestPollerStopWithoutSessionIsSafe(t *testing.T) {
	p, _ := newTestPoller(&scriptedBackend{})
	p.Stop()
	p.Stop()
}
