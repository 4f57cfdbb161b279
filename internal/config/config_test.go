package config

import (
	"os"
	"testing"
	"time"
)

func TestEnvOr(t *testing.T) {
	// Unset key returns fallback
	os.Unsetenv("TEST_ENVOR_KEY")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "default" {
		t.Errorf("envOr unset key = %q, want %q", got, "default")
	}

	// Set key returns value
	os.Setenv("TEST_ENVOR_KEY", "custom")
	defer os.Unsetenv("TEST_ENVOR_KEY")
	if got := envOr("TEST_ENVOR_KEY", "default"); got != "custom" {
		t.Errorf("envOr set key = %q, want %q", got, "custom")
	}

	// Empty string returns fallback
	os.Setenv("TEST_ENVOR_KEY", "")
	if got := envOr("TEST_ENVOR_KEY", "fallback"); got != "fallback" {
		t.Errorf("envOr empty key = %q, want %q", got, "fallback")
	}
}

func TestEnvIntOr(t *testing.T) {
	os.Setenv("TEST_ENVINT_KEY", "42")
	defer os.Unsetenv("TEST_ENVINT_KEY")
	if got := envIntOr("TEST_ENVINT_KEY", 7); got != 42 {
		t.Errorf("envIntOr = %d, want 42", got)
	}

	// Garbage and non-positive values fall back
	os.Setenv("TEST_ENVINT_KEY", "not-a-number")
	if got := envIntOr("TEST_ENVINT_KEY", 7); got != 7 {
		t.Errorf("envIntOr garbage = %d, want 7", got)
	}
	os.Setenv("TEST_ENVINT_KEY", "-3")
	if got := envIntOr("TEST_ENVINT_KEY", 7); got != 7 {
		t.Errorf("envIntOr negative = %d, want 7", got)
	}
}

func TestEnvDurationOr(t *testing.T) {
	os.Setenv("TEST_ENVDUR_KEY", "90s")
	defer os.Unsetenv("TEST_ENVDUR_KEY")
	if got := envDurationOr("TEST_ENVDUR_KEY", time.Minute); got != 90*time.Second {
		t.Errorf("envDurationOr = %v, want 90s", got)
	}

	os.Setenv("TEST_ENVDUR_KEY", "soon")
	if got := envDurationOr("TEST_ENVDUR_KEY", time.Minute); got != time.Minute {
		t.Errorf("envDurationOr garbage = %v, want 1m", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	// Clear all relevant env vars
	for _, k := range []string{
		"PORT", "DATABASE_URL", "REDIS_URL", "REDIS_PASSWORD", "KAFKA_BROKERS",
		"FRONTEND_ORIGIN", "MAIL_API_URL", "MAIL_API_KEY", "MAIL_FROM",
		"PRICE_API_URL", "SCHEDULER_INTERVAL", "FETCH_BATCH_SIZE",
		"CACHE_TTL", "CACHE_FRESH_WINDOW", "LOCK_TTL", "BEFORE_TP_DEFAULT_PCT",
		"INFISICAL_CLIENT_ID", "INFISICAL_CLIENT_SECRET",
	} {
		os.Unsetenv(k)
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port = %q, want %q", cfg.Port, "8080")
	}
	if cfg.FrontendOrigin != "*" {
		t.Errorf("FrontendOrigin = %q, want %q", cfg.FrontendOrigin, "*")
	}
	if cfg.DatabaseURL != "" {
		t.Errorf("DatabaseURL = %q, want empty", cfg.DatabaseURL)
	}
	if cfg.SchedulerInterval != 60*time.Second {
		t.Errorf("SchedulerInterval = %v, want 60s", cfg.SchedulerInterval)
	}
	if cfg.FetchBatchSize != 100 {
		t.Errorf("FetchBatchSize = %d, want 100", cfg.FetchBatchSize)
	}
	if cfg.CacheFreshWindow != 30*time.Second {
		t.Errorf("CacheFreshWindow = %v, want 30s", cfg.CacheFreshWindow)
	}
	if cfg.LockTTL != 300*time.Second {
		t.Errorf("LockTTL = %v, want 5m", cfg.LockTTL)
	}
	if cfg.BeforeTPPct != 2.0 {
		t.Errorf("BeforeTPPct = %v, want 2.0", cfg.BeforeTPPct)
	}
}

func TestLoadFromEnv(t *testing.T) {
	os.Setenv("PORT", "9090")
	os.Setenv("DATABASE_URL", "postgres://test")
	os.Setenv("KAFKA_BROKERS", "kafka:9092")
	os.Setenv("SCHEDULER_INTERVAL", "30s")
	os.Setenv("BEFORE_TP_DEFAULT_PCT", "5")
	defer func() {
		os.Unsetenv("PORT")
		os.Unsetenv("DATABASE_URL")
		os.Unsetenv("KAFKA_BROKERS")
		os.Unsetenv("SCHEDULER_INTERVAL")
		os.Unsetenv("BEFORE_TP_DEFAULT_PCT")
	}()

	cfg := Load()

	if cfg.Port != "9090" {
		t.Errorf("Port = %q, want %q", cfg.Port, "9090")
	}
	if cfg.DatabaseURL != "postgres://test" {
		t.Errorf("DatabaseURL = %q, want %q", cfg.DatabaseURL, "postgres://test")
	}
	if cfg.KafkaBrokers != "kafka:9092" {
		t.Errorf("KafkaBrokers = %q, want %q", cfg.KafkaBrokers, "kafka:9092")
	}
	if cfg.SchedulerInterval != 30*time.Second {
		t.Errorf("SchedulerInterval = %v, want 30s", cfg.SchedulerInterval)
	}
	if cfg.BeforeTPPct != 5.0 {
		t.Errorf("BeforeTPPct = %v, want 5.0", cfg.BeforeTPPct)
	}
}
