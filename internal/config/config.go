package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LogLevel string

	BackendURL       string
	IdentityURL      string
	IdentityClientID string

	SnapshotPath string

	SessionTimeout     time.Duration
	SessionWarningLead time.Duration
	ActivityThrottle   time.Duration

	PollInterval time.Duration
	PollCeiling  time.Duration

	MaxUploadBytes   int64
	AllowedFileTypes []string

	StepTemplateFile string
	StepTemplate     []string

	MetricsPort string
}

func Load() Config {
	cfg := Config{
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		BackendURL:       mustEnv("BACKEND_URL", "http://localhost:8080"),
		IdentityURL:      mustEnv("IDENTITY_URL", "http://localhost:8081"),
		IdentityClientID: mustEnv("IDENTITY_CLIENT_ID", "vetpath-client"),

		SnapshotPath: mustEnv("SNAPSHOT_PATH", "./data/session"),

		SessionTimeout:     mustEnvDuration("SESSION_TIMEOUT", 30*time.Minute),
		SessionWarningLead: mustEnvDuration("SESSION_WARNING_LEAD", 25*time.Minute),
		ActivityThrottle:   mustEnvDuration("ACTIVITY_THROTTLE", time.Second),

		PollInterval: mustEnvDuration("POLL_INTERVAL", 2*time.Second),
		PollCeiling:  mustEnvDuration("POLL_CEILING", 5*time.Minute),

		MaxUploadBytes:   mustEnvInt64("MAX_UPLOAD_BYTES", 10<<20),
		AllowedFileTypes: mustEnvList("ALLOWED_FILE_TYPES", []string{"application/pdf", "image/jpeg", "image/png"}),

		StepTemplateFile: mustEnv("STEP_TEMPLATE_FILE", ""),

		MetricsPort: mustEnv("METRICS_PORT", "9090"),
	}

	if cfg.StepTemplateFile != "" {
		steps, err := loadStepTemplate(cfg.StepTemplateFile)
		if err == nil && len(steps) > 0 {
			cfg.StepTemplate = steps
		}
	}

	return cfg
}

type stepTemplateFile struct {
	Steps []string `yaml:"steps"`
}

func loadStepTemplate(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read step template: %w", err)
	}
	var parsed stepTemplateFile
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("parse step template: %w", err)
	}
	out := make([]string, 0, len(parsed.Steps))
	for _, step := range parsed.Steps {
		step = strings.TrimSpace(step)
		if step != "" {
			out = append(out, step)
		}
	}
	return out, nil
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
