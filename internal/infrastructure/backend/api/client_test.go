package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/infrastructure/resilience"
)

type staticTokens struct {
	token string
	err   error
}

func (s staticTokens) BearerToken(context.Context) (string, error) {
	return s.token, s.err
}

func newTestExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts: 1,
		BreakerEnabled:   false,
	})
}

func TestCreateUploadSendsBearerAndRequestID(t *testing.T) {
	var gotAuth, gotRequestID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/uploads" {
			http.NotFound(w, r)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		gotRequestID = r.Header.Get("X-Request-Id")

		var req domain.UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req.Filename != "dd214.pdf" {
			t.Fatalf("unexpected filename %q", req.Filename)
		}
		_, _ = w.Write([]byte(`{"uploadUrl":"https://storage.example/put/doc-1","documentId":"doc-1"}`))
	}))
	defer server.Close()

	client := New(server.URL, staticTokens{token: "tok"}, newTestExecutor())
	target, err := client.CreateUpload(context.Background(), domain.UploadRequest{Filename: "dd214.pdf", FileType: "application/pdf"})
	if err != nil {
		t.Fatalf("CreateUpload() error = %v", err)
	}
	if target.DocumentID != "doc-1" {
		t.Fatalf("unexpected document id %q", target.DocumentID)
	}
	if gotAuth != "Bearer tok" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotRequestID == "" {
		t.Fatalf("expected request id header")
	}
}

func TestCreateUploadRejectsIncompleteTarget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"documentId":"doc-1"}`))
	}))
	defer server.Close()

	client := New(server.URL, staticTokens{token: "tok"}, newTestExecutor())
	_, err := client.CreateUpload(context.Background(), domain.UploadRequest{Filename: "a.pdf", FileType: "application/pdf"})
	if err == nil || !strings.Contains(err.Error(), "incomplete target") {
		t.Fatalf("expected incomplete target error, got %v", err)
	}
}

func TestUploadStatusParsesStepMap(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/uploads/doc-1/status" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`{"status":"processing","steps":{"Document Validation":{"status":"complete","timestamp":"2026-08-30T12:00:00Z"}}}`))
	}))
	defer server.Close()

	client := New(server.URL, staticTokens{token: "tok"}, newTestExecutor())
	report, err := client.UploadStatus(context.Background(), "doc-1")
	if err != nil {
		t.Fatalf("UploadStatus() error = %v", err)
	}
	if report.Status != domain.PipelineProcessing {
		t.Fatalf("unexpected status %q", report.Status)
	}
	step, ok := report.Steps["Document Validation"]
	if !ok || step.Status != domain.StepComplete {
		t.Fatalf("unexpected steps %+v", report.Steps)
	}
	if step.Timestamp == nil {
		t.Fatalf("expected timestamp to be parsed")
	}
}

func TestUploadStatusRetriesTemporaryFailures(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "upstream hiccup", http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"status":"processing","steps":{}}`))
	}))
	defer server.Close()

	exec := resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:    2,
		RetryInitialBackoff: 1,
		RetryMaxBackoff:     1,
		RetryMultiplier:     2,
		BreakerEnabled:      false,
	})
	client := New(server.URL, staticTokens{token: "tok"}, exec)
	if _, err := client.UploadStatus(context.Background(), "doc-1"); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestUploadStatusIncludesBodyInError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "document not found", http.StatusNotFound)
	}))
	defer server.Close()

	client := New(server.URL, staticTokens{token: "tok"}, newTestExecutor())
	_, err := client.UploadStatus(context.Background(), "doc-9")
	if err == nil || !strings.Contains(err.Error(), "document not found") {
		t.Fatalf("expected body in error, got %v", err)
	}
}
