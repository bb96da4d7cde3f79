package ports

import (
	"context"

	"github.com/vetpath/vetpath-client/internal/core/domain"
)

// SessionService is the host-facing session surface.
type SessionService interface {
	SessionState
	CheckAuth(ctx context.Context) error
	SignIn(ctx context.Context, creds domain.Credentials) error
	SignOut(ctx context.Context)
	RefreshSession(ctx context.Context) error
	UpdateActivity()
	Snapshot() domain.SessionSnapshot
}

// DocumentLifecycle is the host-facing processing surface.
type DocumentLifecycle interface {
	AcceptDisclosure()
	Submit(ctx context.Context, file domain.FileInput) error
	Reset()
	Job() domain.UploadJob
	Paused() bool
}
