package ports

import (
	"context"

	"github.com/vetpath/vetpath-client/internal/core/domain"
)

// SessionState is the slice of session the lifecycle coordinator reads when
// enforcing the auth coupling invariant.
type SessionState interface {
	IsAuthenticated() bool
}

// Submitter validates a file and carries it through target request and
// transfer, returning the backend-assigned target.
type Submitter interface {
	Submit(ctx context.Context, file domain.FileInput, progress func(pct int)) (domain.UploadTarget, error)
}

// PollSink receives each applied poll result. Reports for a document that is
// no longer current are discarded before the sink is invoked.
type PollSink interface {
	HandleReport(documentID string, report domain.StatusReport)
}

// Poller repeatedly fetches step statuses for one document until a terminal
// report, its wall-clock ceiling, or Stop. Start for a new document first
// tears down any prior poll session; Stop is idempotent.
type Poller interface {
	Start(documentID string, sink PollSink)
	Stop()
}
