package objectstore

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Transfer PUTs file bytes to the backend-issued presigned URL. No credential
// is attached; the URL itself carries authorization.
type Transfer struct {
	httpClient *http.Client
}

func New() *Transfer {
	return &Transfer{
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

func (t *Transfer) Put(ctx context.Context, url, contentType string, body io.Reader, size int64, progress func(pct int)) error {
	reader := body
	if progress != nil && size > 0 {
		reader = &progressReader{inner: body, total: size, report: progress}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, reader)
	if err != nil {
		return fmt.Errorf("create transfer request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("transfer file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if trimmed := strings.TrimSpace(string(msg)); trimmed != "" {
			return fmt.Errorf("transfer status: %s: %s", resp.Status, trimmed)
		}
		return fmt.Errorf("transfer status: %s", resp.Status)
	}
	if progress != nil {
		progress(100)
	}
	return nil
}

type progressReader struct {
	inner   io.Reader
	total   int64
	read    int64
	lastPct int
	report  func(pct int)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	r.read += int64(n)
	pct := int(r.read * 100 / r.total)
	if pct > 100 {
		pct = 100
	}
	if pct > r.lastPct {
		r.lastPct = pct
		r.report(pct)
	}
	return n, err
}
