package main

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Discovita/testing-grounds/internal/ratelimit"
	"github.com/Discovita/testing-grounds/internal/util"
	"github.com/Discovita/testing-grounds/pkg/lock"
	"github.com/Discovita/testing-grounds/services/journey/internal/app"
	"github.com/Discovita/testing-grounds/services/journey/internal/config"
	"github.com/Discovita/testing-grounds/services/journey/internal/events"
	"github.com/Discovita/testing-grounds/services/journey/internal/metrics"
	"github.com/Discovita/testing-grounds/services/journey/internal/server"
)

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := util.InitLogger(cfg.LogLevel)

	// Redis is optional: without it the journey lock is process-local and
	// turn processing is not rate limited.
	var redisClient *redis.Client
	var distributedLock lock.DistributedLocker
	var limiter *ratelimit.FixedWindowLimiter
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		distributedLock = lock.NewRedisLocker(redisClient, "journey:")
		if cfg.RateLimitPerMin > 0 {
			limiter, err = ratelimit.New(redisClient, "journey:ratelimit", cfg.RateLimitPerMin, time.Minute)
			if err != nil {
				log.Fatalf("failed to init rate limiter: %v", err)
			}
		}
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange, logger)
		if err != nil {
			log.Fatalf("failed to init event publisher: %v", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	var proxies *util.TrustedProxies
	if len(cfg.TrustedProxyCIDRs) > 0 {
		proxies, err = util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
		if err != nil {
			log.Fatalf("failed to parse trusted proxies: %v", err)
		}
	}

	m := metrics.New()

	appCore, err := app.New(app.Config{
		DBDriver:           cfg.DBDriver,
		DSN:                cfg.DatabaseDSN,
		GenerationProvider: cfg.GenerationProvider,
		GenerationBaseURL:  cfg.GenerationBaseURL,
		GenerationAPIKey:   cfg.GenerationAPIKey,
		GenerationModel:    cfg.GenerationModel,
		GeminiAPIKey:       cfg.GeminiAPIKey,
		OllamaBaseURL:      cfg.OllamaBaseURL,
		ExtractionProvider: cfg.ExtractionProvider,
		ExtractionBaseURL:  cfg.ExtractionBaseURL,
		ExtractionAPIKey:   cfg.ExtractionAPIKey,
		ExtractionModel:    cfg.ExtractionModel,
		FallbackKeywords:   cfg.FallbackKeywords,
		SchemaFile:         cfg.SchemaFile,
		SentinelWindow:     cfg.SentinelWindow,
		HistoryLimit:       cfg.HistoryLimit,
		Locker:             distributedLock,
		Events:             publisher,
		Metrics:            m,
	})
	if err != nil {
		log.Fatalf("failed to init app: %v", err)
	}

	httpServer := server.New(server.Config{
		App:            appCore,
		Metrics:        m,
		Limiter:        limiter,
		TrustedProxies: proxies,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	slog.Info("journey server listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server error", "err", err)
	}
}
