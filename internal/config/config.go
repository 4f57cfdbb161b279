package config

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	infisical "github.com/infisical/go-sdk"
)

type Config struct {
	Port           string
	DatabaseURL    string
	RedisURL       string
	RedisPassword  string
	KafkaBrokers   string
	FrontendOrigin string

	MailAPIURL string
	MailAPIKey string
	MailFrom   string

	PriceAPIURL string

	SchedulerInterval time.Duration
	FetchBatchSize    int
	CacheTTL          time.Duration
	CacheFreshWindow  time.Duration
	LockTTL           time.Duration
	BeforeTPPct       float64
}

func Load() Config {
	cfg := Config{
		Port:           envOr("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       envOr("REDIS_URL", "redis://localhost:6379/0"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:   os.Getenv("KAFKA_BROKERS"),
		FrontendOrigin: envOr("FRONTEND_ORIGIN", "*"),

		MailAPIURL: envOr("MAIL_API_URL", "https://api.resend.com/emails"),
		MailAPIKey: os.Getenv("MAIL_API_KEY"),
		MailFrom:   envOr("MAIL_FROM", "alerts@tp-monitor.dev"),

		PriceAPIURL: envOr("PRICE_API_URL", "https://api.coingecko.com/api/v3"),

		SchedulerInterval: envDurationOr("SCHEDULER_INTERVAL", 60*time.Second),
		FetchBatchSize:    envIntOr("FETCH_BATCH_SIZE", 100),
		CacheTTL:          envDurationOr("CACHE_TTL", 60*time.Second),
		CacheFreshWindow:  envDurationOr("CACHE_FRESH_WINDOW", 30*time.Second),
		LockTTL:           envDurationOr("LOCK_TTL", 300*time.Second),
		BeforeTPPct:       envFloatOr("BEFORE_TP_DEFAULT_PCT", 2.0),
	}

	// If Infisical credentials are available, fetch secrets from Infisical
	clientID := os.Getenv("INFISICAL_CLIENT_ID")
	clientSecret := os.Getenv("INFISICAL_CLIENT_SECRET")
	if clientID != "" && clientSecret != "" {
		loadFromInfisical(&cfg, clientID, clientSecret)
	}

	return cfg
}

func loadFromInfisical(cfg *Config, clientID, clientSecret string) {
	siteURL := envOr("INFISICAL_SITE_URL",
		"http://infisical-infisical-standalone-infisical.infisical.svc.cluster.local:8080")
	projectID := os.Getenv("INFISICAL_PROJECT_ID")
	envSlug := envOr("INFISICAL_ENV", "prod")

	if projectID == "" {
		slog.Warn("INFISICAL_PROJECT_ID not set, skipping Infisical")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := infisical.NewInfisicalClient(ctx, infisical.Config{
		SiteUrl:          siteURL,
		AutoTokenRefresh: false,
	})

	_, err := client.Auth().UniversalAuthLogin(clientID, clientSecret)
	if err != nil {
		slog.Error("infisical auth failed", "error", err)
		return
	}

	secrets := map[string]*string{
		"MAIL_API_KEY":   &cfg.MailAPIKey,
		"REDIS_PASSWORD": &cfg.RedisPassword,
	}

	for key, target := range secrets {
		if *target != "" {
			continue // env var already set, skip
		}
		secret, err := client.Secrets().Retrieve(infisical.RetrieveSecretOptions{
			SecretKey:   key,
			Environment: envSlug,
			ProjectID:   projectID,
			SecretPath:  "/",
		})
		if err != nil {
			slog.Warn("failed to retrieve secret from infisical", "key", key, "error", err)
			continue
		}
		*target = secret.SecretValue
		slog.Info("loaded secret from infisical", "key", key)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
