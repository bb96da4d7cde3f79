package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/core/ports"
	"github.com/vetpath/vetpath-client/internal/observability/metrics"
)

type LifecycleConfig struct {
	// StepTemplate fixes the named pipeline steps a job is created with.
	// Empty falls back to the default template.
	StepTemplate []string
	Service      string
}

// ProcessingLifecycle is the coordinator: it owns the UploadJob, merges
// submitter and poller outcomes into one state, and reconciles session
// events. Session expiry pauses presentation but never aborts backend work
// already in flight: the pipeline does not need a live client session to
// finish, only result retrieval does.
type ProcessingLifecycle struct {
	cfg       LifecycleConfig
	session   ports.SessionState
	submitter ports.Submitter
	poller    ports.Poller
	snapshots ports.SnapshotStore
	metrics   *metrics.ClientMetrics
	logger    *slog.Logger

	// onComplete is the injected host notification, fired at most once per
	// job with the document identifier.
	onComplete func(documentID string)
	// onEngagement signals the passive wait-time surface; fire-and-forget.
	onEngagement func()

	now func() time.Time

	mu                 sync.Mutex
	job                *domain.UploadJob
	disclosureAccepted bool
	paused             bool
	notified           bool
	lastProcessed      string
}

func NewProcessingLifecycle(
	cfg LifecycleConfig,
	session ports.SessionState,
	submitter ports.Submitter,
	poller ports.Poller,
	snapshots ports.SnapshotStore,
	onComplete func(documentID string),
	onEngagement func(),
	m *metrics.ClientMetrics,
	logger *slog.Logger,
) *ProcessingLifecycle {
	if cfg.Service == "" {
		cfg.Service = "uploader"
	}
	return &ProcessingLifecycle{
		cfg:          cfg,
		session:      session,
		submitter:    submitter,
		poller:       poller,
		snapshots:    snapshots,
		metrics:      m,
		logger:       logger,
		onComplete:   onComplete,
		onEngagement: onEngagement,
		now:          time.Now,
		job:          domain.NewUploadJob(cfg.StepTemplate),
	}
}

func (l *ProcessingLifecycle) AcceptDisclosure() {
	l.mu.Lock()
	l.disclosureAccepted = true
	l.mu.Unlock()
}

// RestoreSnapshot reads the best-effort mirror so a restarted client can
// re-show a completion banner. It never resumes an in-progress poll: any
// non-complete mirrored state starts over from idle.
func (l *ProcessingLifecycle) RestoreSnapshot(ctx context.Context) {
	snap, err := l.snapshots.Load(ctx)
	if err != nil {
		l.logger.Warn("snapshot_restore_failed", "error", err)
		return
	}
	if snap.Processed && snap.DocumentID != "" {
		l.mu.Lock()
		l.lastProcessed = snap.DocumentID
		l.mu.Unlock()
	}
}

// LastProcessed returns the mirrored identifier of a previously completed
// document, if any.
func (l *ProcessingLifecycle) LastProcessed() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastProcessed, l.lastProcessed != ""
}

// Submit runs the idle → uploading → processing leg. Preconditions fail
// fast before any network call; a transport failure lands the job in error
// with the document identifier still unset, so retry restarts cleanly.
func (l *ProcessingLifecycle) Submit(ctx context.Context, file domain.FileInput) error {
	l.mu.Lock()
	if l.job.Status != domain.JobIdle {
		l.mu.Unlock()
		return domain.WrapError(domain.ErrJobConflict, "submit upload",
			fmt.Errorf("a job is already %s", l.job.Status))
	}
	if !l.session.IsAuthenticated() {
		l.mu.Unlock()
		return domain.WrapError(domain.ErrNotAuthenticated, "submit upload",
			errors.New("sign in before uploading a document"))
	}
	if !l.disclosureAccepted {
		l.mu.Unlock()
		return domain.WrapError(domain.ErrValidation, "submit upload",
			errors.New("the data-use disclosure has not been accepted"))
	}
	l.job.Status = domain.JobUploading
	l.job.StartedAt = l.now()
	l.job.Progress = 0
	started := l.job.StartedAt
	l.mu.Unlock()

	target, err := l.submitter.Submit(ctx, file, l.setProgress)
	if err != nil {
		l.mu.Lock()
		if domain.IsKind(err, domain.ErrValidation) {
			// Rejected before any network call; the user corrects the
			// input and the job never leaves idle.
			l.job.Status = domain.JobIdle
			l.job.Progress = 0
			l.mu.Unlock()
			return err
		}
		l.job.Status = domain.JobError
		l.job.Error = err.Error()
		l.mu.Unlock()
		l.metrics.ObserveUpload(l.cfg.Service, "error", started)
		return err
	}

	l.mu.Lock()
	if l.job.DocumentID == "" {
		l.job.DocumentID = target.DocumentID
	}
	l.job.Status = domain.JobProcessing
	l.job.Progress = 100
	l.notified = false
	l.mu.Unlock()

	l.logger.Info("upload_accepted", "document_id", target.DocumentID)
	if l.onEngagement != nil {
		l.onEngagement()
	}
	l.poller.Start(target.DocumentID, l)
	return nil
}

func (l *ProcessingLifecycle) setProgress(pct int) {
	l.mu.Lock()
	if l.job.Status == domain.JobUploading {
		l.job.Progress = pct
	}
	l.mu.Unlock()
}

// HandleReport applies one poll result. Reports for a document that is no
// longer the current processing job are discarded.
func (l *ProcessingLifecycle) HandleReport(documentID string, report domain.StatusReport) {
	l.mu.Lock()
	if l.job.DocumentID != documentID || l.job.Status != domain.JobProcessing {
		l.mu.Unlock()
		return
	}

	for name, update := range report.Steps {
		l.job.ApplyStepUpdate(name, update.Status, update.Timestamp)
	}

	switch report.Status {
	case domain.PipelineComplete:
		l.job.Status = domain.JobComplete
		started := l.job.StartedAt
		fire := !l.notified
		l.notified = true
		l.mu.Unlock()

		l.metrics.ObserveUpload(l.cfg.Service, "complete", started)
		l.persistSnapshot(documentID)
		if fire && l.onComplete != nil {
			l.onComplete(documentID)
		}
	case domain.PipelineError:
		msg := report.Error
		if msg == "" {
			msg = "document processing failed"
		}
		l.job.Status = domain.JobError
		l.job.Error = msg
		started := l.job.StartedAt
		l.mu.Unlock()

		l.metrics.ObserveUpload(l.cfg.Service, "error", started)
	default:
		l.mu.Unlock()
	}
}

// HandleSessionEvent reconciles session transitions with the job. Expiry
// while work is in flight suspends presentation only; the poller keeps
// running so finished backend work is not thrown away.
func (l *ProcessingLifecycle) HandleSessionEvent(event domain.SessionEvent) {
	switch event {
	case domain.SessionExpired:
		l.mu.Lock()
		if l.job.Status == domain.JobUploading || l.job.Status == domain.JobProcessing {
			l.paused = true
			l.logger.Info("processing_paused", "document_id", l.job.DocumentID)
		}
		l.mu.Unlock()
	case domain.SessionAuthenticated:
		l.mu.Lock()
		if l.paused {
			l.paused = false
			l.logger.Info("processing_resumed", "document_id", l.job.DocumentID)
		}
		l.mu.Unlock()
	}
}

// Reset returns to a fresh idle job. The accepted disclosure survives; it
// belongs to the session, not the job.
func (l *ProcessingLifecycle) Reset() {
	l.poller.Stop()

	l.mu.Lock()
	l.job = domain.NewUploadJob(l.cfg.StepTemplate)
	l.paused = false
	l.notified = false
	l.mu.Unlock()
}

func (l *ProcessingLifecycle) Job() domain.UploadJob {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.job.Clone()
}

func (l *ProcessingLifecycle) Paused() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.paused
}

// Close releases the poller. Session timers are the manager's to release.
func (l *ProcessingLifecycle) Close() {
	l.poller.Stop()
}

func (l *ProcessingLifecycle) persistSnapshot(documentID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	snap := domain.ProcessingSnapshot{DocumentID: documentID, Processed: true}
	if err := l.snapshots.Save(ctx, snap); err != nil {
		// Best effort only; the in-memory state remains authoritative.
		l.logger.Warn("snapshot_persist_failed", "document_id", documentID, "error", err)
		return
	}
	l.mu.Lock()
	l.lastProcessed = documentID
	l.mu.Unlock()
}
