package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/cryptofolio/tp-monitor/internal/alert"
	"github.com/cryptofolio/tp-monitor/internal/config"
	"github.com/cryptofolio/tp-monitor/internal/handler"
	"github.com/cryptofolio/tp-monitor/internal/lock"
	"github.com/cryptofolio/tp-monitor/internal/mailer"
	"github.com/cryptofolio/tp-monitor/internal/middleware"
	"github.com/cryptofolio/tp-monitor/internal/pricing"
	"github.com/cryptofolio/tp-monitor/internal/queue"
	"github.com/cryptofolio/tp-monitor/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := config.Load()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	if cfg.MailAPIKey == "" {
		logger.Error("MAIL_API_KEY is required")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	db, err := store.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database connected and migrated")

	// Redis backs both the price cache and the alert dedup locks
	// (retry up to 30s for ExternalSecret to sync).
	var rdb *redis.Client
	for i := 0; i < 6; i++ {
		rdb, err = connectRedis(ctx, cfg.RedisURL, cfg.RedisPassword)
		if err == nil {
			break
		}
		logger.Warn("redis not ready, retrying...", "attempt", i+1, "error", err)
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		logger.Error("failed to connect to redis after retries", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()
	logger.Info("redis connected")

	// Pricing pipeline
	cache := pricing.NewCache(rdb, cfg.CacheTTL, cfg.CacheFreshWindow)
	provider := pricing.NewCoinGecko(cfg.PriceAPIURL)
	fetcher := pricing.NewFetcher(cache, provider, logger, cfg.FetchBatchSize)

	// Alert pipeline
	guard := lock.NewGuard(rdb, cfg.LockTTL)
	registry := alert.NewRegistry(db, logger)
	mail := mailer.New(cfg.MailAPIURL, cfg.MailAPIKey, cfg.MailFrom)
	dispatcher := alert.NewDispatcher(db, mail, logger)

	var pub queue.Publisher
	var runConsumer func(context.Context)

	if cfg.KafkaBrokers != "" {
		kpub, err := queue.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			logger.Error("failed to create kafka producer", "error", err)
			os.Exit(1)
		}
		defer kpub.Close()
		pub = kpub

		evaluator := alert.NewEvaluator(db, guard, pub, logger, cfg.BeforeTPPct)
		worker := alert.NewWorker(fetcher, evaluator, logger)

		consumer, err := queue.NewKafkaConsumer(cfg.KafkaBrokers, "tp-monitor", map[string]queue.Handler{
			queue.TopicCheckBatch: worker.HandleCheckBatch,
			queue.TopicEmail:      dispatcher.HandleEmail,
		}, logger)
		if err != nil {
			logger.Error("failed to create kafka consumer", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		runConsumer = consumer.Run
		logger.Info("kafka connected", "brokers", cfg.KafkaBrokers)
	} else {
		// Single-node mode: no broker, jobs stay in process.
		mem := queue.NewMemory()
		pub = mem

		evaluator := alert.NewEvaluator(db, guard, pub, logger, cfg.BeforeTPPct)
		worker := alert.NewWorker(fetcher, evaluator, logger)

		runConsumer = func(ctx context.Context) {
			ticker := time.NewTicker(time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := mem.Drain(ctx, queue.TopicCheckBatch, worker.HandleCheckBatch); err != nil {
						logger.Error("drain check-batch jobs", "error", err)
					}
					if err := mem.Drain(ctx, queue.TopicEmail, dispatcher.HandleEmail); err != nil {
						logger.Error("drain email jobs", "error", err)
					}
				}
			}
		}
		logger.Info("no KAFKA_BROKERS set, using in-process queue")
	}

	scheduler := alert.NewScheduler(registry, pub, logger, cfg.SchedulerInterval, cfg.FetchBatchSize)

	// Start background goroutines
	go runConsumer(ctx)
	go scheduler.Run(ctx)

	// HTTP routes
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS(cfg.FrontendOrigin))

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", handler.Health())
	r.Get("/readyz", handler.Ready(db))

	r.Route("/api", func(r chi.Router) {
		r.Get("/watched", handler.Watched(registry))
		r.Get("/prices", handler.Prices(fetcher))
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down gracefully")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}

func connectRedis(ctx context.Context, url, password string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if password != "" {
		opts.Password = password
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
