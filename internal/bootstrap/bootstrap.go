package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vetpath/vetpath-client/internal/config"
	"github.com/vetpath/vetpath-client/internal/core/ports"
	"github.com/vetpath/vetpath-client/internal/core/usecase"
	"github.com/vetpath/vetpath-client/internal/infrastructure/backend/api"
	"github.com/vetpath/vetpath-client/internal/infrastructure/identity/oidc"
	"github.com/vetpath/vetpath-client/internal/infrastructure/resilience"
	"github.com/vetpath/vetpath-client/internal/infrastructure/storage/snapshotstore"
	"github.com/vetpath/vetpath-client/internal/infrastructure/transfer/objectstore"
	"github.com/vetpath/vetpath-client/internal/infrastructure/validation"
	"github.com/vetpath/vetpath-client/internal/observability/metrics"
)

const serviceName = "uploader"

// Hooks are the host application's notification points.
type Hooks struct {
	// OnComplete fires at most once per job when processing finishes.
	OnComplete func(documentID string)
	// OnEngagement fires when an accepted upload enters the processing wait.
	OnEngagement func()
}

type App struct {
	Config  config.Config
	Metrics *metrics.ClientMetrics

	Session   ports.SessionService
	Lifecycle ports.DocumentLifecycle

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, hooks Hooks, logger *slog.Logger) (*App, error) {
	snapshots, err := snapshotstore.New(cfg.SnapshotPath)
	if err != nil {
		return nil, fmt.Errorf("init snapshot store: %w", err)
	}

	m := metrics.NewClientMetrics(serviceName)
	exec := resilience.NewExecutor(resilience.DefaultConfig())

	provider := oidc.New(cfg.IdentityURL, cfg.IdentityClientID, exec)
	backend := api.New(cfg.BackendURL, provider, exec)
	transfer := objectstore.New()
	validator := validation.New(cfg.MaxUploadBytes, cfg.AllowedFileTypes)

	session := usecase.NewSessionManager(usecase.SessionConfig{
		Timeout:          cfg.SessionTimeout,
		WarningLead:      cfg.SessionWarningLead,
		ActivityThrottle: cfg.ActivityThrottle,
		Service:          serviceName,
	}, provider, m, logger)

	submitter := usecase.NewUploadSubmitter(backend, transfer, validator, logger)
	poller := usecase.NewStatusPoller(usecase.PollerConfig{
		Interval: cfg.PollInterval,
		Ceiling:  cfg.PollCeiling,
		Service:  serviceName,
	}, backend, m, logger)

	lifecycle := usecase.NewProcessingLifecycle(
		usecase.LifecycleConfig{StepTemplate: cfg.StepTemplate, Service: serviceName},
		session,
		submitter,
		poller,
		snapshots,
		hooks.OnComplete,
		hooks.OnEngagement,
		m,
		logger,
	)

	session.SetListener(lifecycle.HandleSessionEvent)
	lifecycle.RestoreSnapshot(ctx)

	return &App{
		Config:  cfg,
		Metrics: m,

		Session:   session,
		Lifecycle: lifecycle,

		closeFn: func() {
			lifecycle.Close()
			session.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
