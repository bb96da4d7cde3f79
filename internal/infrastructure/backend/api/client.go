package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/core/ports"
	"github.com/vetpath/vetpath-client/internal/infrastructure/resilience"
)

// Client talks to the recommendation service's upload surface.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     ports.TokenSource
	exec       *resilience.Executor
}

func New(baseURL string, tokens ports.TokenSource, exec *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 15 * time.Second},
		tokens:     tokens,
		exec:       exec,
	}
}

// CreateUpload requests an upload target and document identifier. The call
// is not retried: a failed attempt is terminal and the user restarts cleanly.
func (c *Client) CreateUpload(ctx context.Context, req domain.UploadRequest) (domain.UploadTarget, error) {
	var target domain.UploadTarget
	if err := c.postJSON(ctx, "/uploads", req, &target, "create upload"); err != nil {
		return domain.UploadTarget{}, err
	}
	if target.UploadURL == "" || target.DocumentID == "" {
		return domain.UploadTarget{}, fmt.Errorf("create upload: backend returned incomplete target")
	}
	return target, nil
}

// UploadStatus fetches the pipeline step statuses for one document. Reads
// are retried through the executor since a missed tick costs nothing.
func (c *Client) UploadStatus(ctx context.Context, documentID string) (domain.StatusReport, error) {
	var report domain.StatusReport
	err := c.exec.Execute(ctx, "upload status", func(callCtx context.Context) error {
		return c.getJSON(callCtx, "/uploads/"+documentID+"/status", &report, "upload status")
	}, classifyBackendError)
	if err != nil {
		return domain.StatusReport{}, wrapTemporaryIfNeeded("upload status", err)
	}
	return report, nil
}
