package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	unsetCoreEnv(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Webhook.Timeout != 60*time.Second {
		t.Fatalf("Webhook.Timeout = %v, want 60s", cfg.Webhook.Timeout)
	}
	if cfg.Webhook.Concurrency != 1 {
		t.Fatalf("Webhook.Concurrency = %d, want 1", cfg.Webhook.Concurrency)
	}
	if len(cfg.Progress.Stages) != 4 {
		t.Fatalf("len(Progress.Stages) = %d, want 4", len(cfg.Progress.Stages))
	}
	if cfg.Progress.StageInterval != time.Second {
		t.Fatalf("Progress.StageInterval = %v, want 1s", cfg.Progress.StageInterval)
	}
	if cfg.Progress.PollInterval != 3*time.Second {
		t.Fatalf("Progress.PollInterval = %v, want 3s", cfg.Progress.PollInterval)
	}
	if cfg.Onboarding.PhonePrefix != "08" || cfg.Onboarding.PhoneMinLength != 10 {
		t.Fatalf("unexpected onboarding defaults: %+v", cfg.Onboarding)
	}
	if cfg.Transcript.URL != "" {
		t.Fatalf("Transcript.URL = %q, want empty default", cfg.Transcript.URL)
	}
}

func TestLoadUsesExplicitEnv(t *testing.T) {
	unsetCoreEnv(t)
	t.Setenv("WEBHOOK_URL", " http://localhost:7777/custom ")
	t.Setenv("WEBHOOK_TIMEOUT", "5s")
	t.Setenv("WEBHOOK_CONCURRENCY", "3")
	t.Setenv("PROGRESS_STAGES", "one| two |")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhook.URL != "http://localhost:7777/custom" {
		t.Fatalf("Webhook.URL = %q, want trimmed explicit value", cfg.Webhook.URL)
	}
	if cfg.Webhook.Timeout != 5*time.Second {
		t.Fatalf("Webhook.Timeout = %v, want 5s", cfg.Webhook.Timeout)
	}
	if cfg.Webhook.Concurrency != 3 {
		t.Fatalf("Webhook.Concurrency = %d, want 3", cfg.Webhook.Concurrency)
	}
	if len(cfg.Progress.Stages) != 2 || cfg.Progress.Stages[1] != "two" {
		t.Fatalf("Progress.Stages = %q, want [one two]", cfg.Progress.Stages)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	unsetCoreEnv(t)
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	body := []byte("webhook:\n  url: http://n8n.internal/webhook/chat\n  timeout: 30s\nprogress:\n  stages:\n    - thinking\n")
	if err := os.WriteFile(path, body, 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhook.URL != "http://n8n.internal/webhook/chat" {
		t.Fatalf("Webhook.URL = %q, want value from file", cfg.Webhook.URL)
	}
	if cfg.Webhook.Timeout != 30*time.Second {
		t.Fatalf("Webhook.Timeout = %v, want 30s", cfg.Webhook.Timeout)
	}
	if len(cfg.Progress.Stages) != 1 || cfg.Progress.Stages[0] != "thinking" {
		t.Fatalf("Progress.Stages = %q, want [thinking]", cfg.Progress.Stages)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"WEBHOOK_CONCURRENCY":            "0",
		"APP_SESSION_INACTIVITY_TIMEOUT": "1s",
		"PROGRESS_STAGE_INTERVAL":        "0s",
		"LOG_FORMAT":                     "xml",
		"WEBHOOK_TIMEOUT":                "soon",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			unsetCoreEnv(t)
			t.Setenv(key, value)
			if _, err := Load(""); err == nil {
				t.Fatalf("Load() with %s=%q expected error", key, value)
			}
		})
	}
}

func TestLoadRejectsMessageTemplatesWithoutSingleVerb(t *testing.T) {
	cases := []struct {
		key   string
		value string
	}{
		{"WEBHOOK_TIMEOUT_MESSAGE", "The assistant timed out."},
		{"WEBHOOK_TIMEOUT_MESSAGE", "Timed out after %s seconds (%s)."},
		{"WEBHOOK_TIMEOUT_MESSAGE", "Timed out after %d seconds."},
		{"WEBHOOK_FAILURE_MESSAGE", "Connection failed."},
	}
	for _, tc := range cases {
		t.Run(tc.key+"/"+tc.value, func(t *testing.T) {
			unsetCoreEnv(t)
			t.Setenv(tc.key, tc.value)
			if _, err := Load(""); err == nil {
				t.Fatalf("Load() with %s=%q expected error", tc.key, tc.value)
			}
		})
	}
}

func TestLoadAcceptsMessageTemplateWithLiteralPercent(t *testing.T) {
	unsetCoreEnv(t)
	t.Setenv("WEBHOOK_TIMEOUT_MESSAGE", "100%% sorry, no answer after %s seconds.")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Webhook.TimeoutMessage != "100%% sorry, no answer after %s seconds." {
		t.Fatalf("TimeoutMessage = %q", cfg.Webhook.TimeoutMessage)
	}
}

func unsetCoreEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_SESSION_INACTIVITY_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"WEBHOOK_URL",
		"WEBHOOK_TIMEOUT",
		"WEBHOOK_CONCURRENCY",
		"WEBHOOK_TIMEOUT_MESSAGE",
		"WEBHOOK_FAILURE_MESSAGE",
		"WEBHOOK_FALLBACK_MESSAGE",
		"PROGRESS_STAGES",
		"PROGRESS_STAGE_INTERVAL",
		"PROGRESS_POLL_INTERVAL",
		"ONBOARDING_PHONE_PREFIX",
		"ONBOARDING_PHONE_MIN_LENGTH",
		"ONBOARDING_GREETING",
		"TRANSCRIPT_URL",
		"TRANSCRIPT_REDACT_PII",
		"TRANSCRIPT_TTL",
	}
	for _, key := range keys {
		// Setenv registers the restore; cleanenv treats a present-but-empty
		// variable as a value, so the key has to be removed outright.
		t.Setenv(key, "")
		if err := os.Unsetenv(key); err != nil {
			t.Fatalf("Unsetenv(%s) error = %v", key, err)
		}
	}
}
