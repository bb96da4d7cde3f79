package ports

import (
	"context"
	"io"

	"github.com/vetpath/vetpath-client/internal/core/domain"
)

// IdentityProvider is the opaque auth collaborator. Only success/failure and
// the token's embedded expiry are consumed by the core.
type IdentityProvider interface {
	// CurrentSession returns the live session token or domain.ErrNoSession.
	CurrentSession(ctx context.Context) (domain.Token, error)
	SignIn(ctx context.Context, creds domain.Credentials) (domain.Token, error)
	Refresh(ctx context.Context) (domain.Token, error)
	SignOut(ctx context.Context) error
	// FetchAttributes may fail independently of authentication; callers
	// degrade to a minimal identity record.
	FetchAttributes(ctx context.Context, token domain.Token) (domain.Identity, error)
}

// TokenSource supplies the bearer credential for backend calls.
type TokenSource interface {
	BearerToken(ctx context.Context) (string, error)
}

// UploadBackend is the recommendation service's upload surface.
type UploadBackend interface {
	CreateUpload(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error)
	UploadStatus(ctx context.Context, documentID string) (domain.StatusReport, error)
}

// FileTransfer moves the raw file to the backend-issued upload target.
type FileTransfer interface {
	Put(ctx context.Context, url, contentType string, body io.Reader, size int64, progress func(pct int)) error
}

// SnapshotStore persists the best-effort processing mirror. Load returns a
// zero snapshot when none exists.
type SnapshotStore interface {
	Load(ctx context.Context) (domain.ProcessingSnapshot, error)
	Save(ctx context.Context, snap domain.ProcessingSnapshot) error
}

// FileValidator enforces upload preconditions before any network call.
type FileValidator interface {
	Validate(file domain.FileInput) error
}
