package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != 8080 || cfg.StoreDriver != "postgres" || cfg.Provider != "simulated" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.WorkerMaxAttempts != 3 || cfg.ChatRevealDelay != 20*time.Millisecond {
		t.Errorf("unexpected worker/chat defaults: %+v", cfg)
	}
	if cfg.AIEnabled {
		t.Errorf("AI should be off without a key")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("WORKER_POLL_INTERVAL", "500ms")
	t.Setenv("JOB_DEADLINE", "1h")
	t.Setenv("NOTIFICATION_CHANCE", "0.25")
	t.Setenv("SIMULATE_NOTIFICATIONS", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("SQS_QUEUE_URL", "https://sqs.us-east-1.amazonaws.com/1/jobs")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Port != 9090 || cfg.StoreDriver != "memory" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
	if cfg.WorkerPollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %s", cfg.WorkerPollInterval)
	}
	if cfg.JobDeadline != time.Hour || cfg.WorkerClaimLease != 5*time.Minute {
		t.Errorf("deadline/lease = %s/%s", cfg.JobDeadline, cfg.WorkerClaimLease)
	}
	if cfg.NotificationChance != 0.25 || !cfg.SimulateNotifications {
		t.Errorf("notification settings not applied: %+v", cfg)
	}
	if !cfg.AIEnabled {
		t.Errorf("AI should be enabled with a key")
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad_port", map[string]string{"PORT": "eighty"}, "invalid PORT"},
		{"bad_duration", map[string]string{"JWT_TTL": "1 day"}, "invalid JWT_TTL"},
		{"chance_out_of_range", map[string]string{"NOTIFICATION_CHANCE": "1.5"}, "invalid NOTIFICATION_CHANCE"},
		{"bad_bool", map[string]string{"SIMULATE_NOTIFICATIONS": "sometimes"}, "invalid SIMULATE_NOTIFICATIONS"},
		{"bad_driver", map[string]string{"STORE_DRIVER": "mongo"}, "STORE_DRIVER"},
		{"webhook_without_url", map[string]string{"PROVIDER": "webhook", "CALLBACK_SECRET": "s"}, "PROVIDER_URL"},
		{"webhook_without_secret", map[string]string{"PROVIDER": "webhook", "PROVIDER_URL": "http://gen"}, "CALLBACK_SECRET"},
		{"production_default_secret", map[string]string{"ENV": "production"}, "JWT_SECRET"},
		{"zero_attempts", map[string]string{"WORKER_MAX_ATTEMPTS": "0"}, "WORKER_MAX_ATTEMPTS"},
		{"deadline_within_lease", map[string]string{"WORKER_CLAIM_LEASE": "10m", "JOB_DEADLINE": "5m"}, "JOB_DEADLINE"},
		{"bad_lease", map[string]string{"WORKER_CLAIM_LEASE": "soon"}, "invalid WORKER_CLAIM_LEASE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
