package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vetpath/vetpath-client/internal/bootstrap"
	"github.com/vetpath/vetpath-client/internal/config"
	"github.com/vetpath/vetpath-client/internal/core/domain"
	"github.com/vetpath/vetpath-client/internal/observability/logging"
)

func main() {
	acceptDisclosure := flag.Bool("accept-disclosure", false, "acknowledge the data-use disclosure before uploading")
	filePath := flag.String("file", "", "document to upload")
	flag.Parse()

	_ = godotenv.Load()
	cfg := config.Load()
	logger := logging.NewJSONLogger("uploader", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	done := make(chan string, 1)
	app, err := bootstrap.New(ctx, cfg, bootstrap.Hooks{
		OnComplete:   func(documentID string) { done <- documentID },
		OnEngagement: func() { logger.Info("processing_wait_started") },
	}, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	metricsServer := &http.Server{
		Addr:         ":" + cfg.MetricsPort,
		Handler:      observabilityMux(app),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("metrics_listening", "port", cfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("metrics server error: %v", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	if err := run(ctx, app, *acceptDisclosure, *filePath, done); err != nil {
		logger.Error("uploader_failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, app *bootstrap.App, acceptDisclosure bool, filePath string, done <-chan string) error {
	if filePath == "" {
		return fmt.Errorf("no document given, pass -file")
	}
	if !acceptDisclosure {
		return fmt.Errorf("pass -accept-disclosure to acknowledge the data-use disclosure")
	}

	if err := app.Session.CheckAuth(ctx); err != nil && !domain.IsKind(err, domain.ErrSessionExpired) {
		return fmt.Errorf("check auth: %w", err)
	}
	if !app.Session.IsAuthenticated() {
		creds := domain.Credentials{
			Username: os.Getenv("UPLOAD_USERNAME"),
			Password: os.Getenv("UPLOAD_PASSWORD"),
		}
		if creds.Username == "" {
			return fmt.Errorf("no session and no UPLOAD_USERNAME credentials")
		}
		if err := app.Session.SignIn(ctx, creds); err != nil {
			return err
		}
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read %s: %w", filePath, err)
	}

	app.Lifecycle.AcceptDisclosure()
	app.Session.UpdateActivity()

	file := domain.FileInput{
		Name:        filepath.Base(filePath),
		ContentType: contentTypeFor(filePath),
		Data:        data,
	}
	if err := app.Lifecycle.Submit(ctx, file); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case documentID := <-done:
			log.Printf("document %s processed", documentID)
			return nil
		case <-ticker.C:
			job := app.Lifecycle.Job()
			if job.Status == domain.JobError {
				return fmt.Errorf("processing failed: %s", job.Error)
			}
		}
	}
}

func observabilityMux(app *bootstrap.App) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", app.Metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
