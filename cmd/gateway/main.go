package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"go.uber.org/zap"

	"github.com/lalithlochan/clipforge/internal/ai"
	"github.com/lalithlochan/clipforge/internal/api"
	"github.com/lalithlochan/clipforge/internal/auth"
	"github.com/lalithlochan/clipforge/internal/circuitbreaker"
	"github.com/lalithlochan/clipforge/internal/config"
	"github.com/lalithlochan/clipforge/internal/db"
	"github.com/lalithlochan/clipforge/internal/jobs"
	"github.com/lalithlochan/clipforge/internal/notify"
	"github.com/lalithlochan/clipforge/internal/observ"
	"github.com/lalithlochan/clipforge/internal/redis"
	"github.com/lalithlochan/clipforge/internal/sns"
	"github.com/lalithlochan/clipforge/internal/sqs"
	"github.com/lalithlochan/clipforge/internal/storage"
	"github.com/lalithlochan/clipforge/internal/worker"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := observ.NewLogger("clipforge-gateway", cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting clipforge gateway",
		zap.String("env", cfg.Env),
		zap.Int("port", cfg.Port),
		zap.String("version", version),
		zap.String("store", cfg.StoreDriver),
		zap.String("provider", cfg.Provider),
	)

	ctx := context.Background()

	// Storage
	var (
		jobRepo       jobs.Repository
		notifications notify.Store
		center        *notify.Center
	)
	switch cfg.StoreDriver {
	case "postgres":
		database, err := db.New(ctx, db.Config{
			Host:     cfg.DBHost,
			Port:     cfg.DBPort,
			User:     cfg.DBUser,
			Password: cfg.DBPassword,
			Database: cfg.DBName,
			SSLMode:  cfg.DBSSLMode,
		}, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer database.Close()

		jobRepo = db.NewJobRepository(database, logger)
		notifications = db.NewNotificationRepository(database, logger)
	default:
		jobRepo = jobs.NewMemoryStore()
		center = notify.NewCenter(notify.WithDemoSeed())
		notifications = center
		logger.Warn("using in-memory storage, data is lost on restart")
	}

	// Redis for idempotency and rate limiting
	redisClient, err := redis.New(ctx, redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, logger)
	if err != nil {
		logger.Warn("redis unavailable, idempotency cache and rate limiting disabled",
			zap.Error(err),
			zap.String("host", cfg.RedisHost),
		)
	}

	var handlerOpts []api.Option
	var rateLimiter *redis.RateLimiter
	if redisClient != nil {
		defer redisClient.Close()
		handlerOpts = append(handlerOpts, api.WithIdempotency(redis.NewIdempotencyService(redisClient, logger)))
		rateLimiter = redis.NewRateLimiter(redisClient, logger, redis.RateLimitConfig{
			Limit:  cfg.RateLimit,
			Window: cfg.RateLimitWindow,
		})
	}

	// Fanout: in-app notifications, SNS events, completion emails
	var fanoutOpts []notify.FanoutOption
	if cfg.SNSTopicARN != "" {
		var publisher *sns.Publisher
		if cfg.AWSEndpoint != "" {
			publisher, err = sns.NewPublisherWithEndpoint(ctx, cfg.SNSTopicARN, cfg.AWSEndpoint, cfg.AWSRegion)
		} else {
			publisher, err = sns.NewPublisher(ctx, cfg.SNSTopicARN, awsconfig.WithRegion(cfg.AWSRegion))
		}
		if err != nil {
			logger.Warn("sns publisher unavailable, job events will not be published", zap.Error(err))
		} else {
			fanoutOpts = append(fanoutOpts, notify.WithEventPublisher(publisher))
		}
	}
	if cfg.SESFromEmail != "" {
		mailer, err := notify.NewSESMailer(ctx, notify.SESConfig{
			Region:    cfg.AWSRegion,
			FromEmail: cfg.SESFromEmail,
		}, logger)
		if err != nil {
			logger.Warn("ses mailer unavailable, completion emails disabled", zap.Error(err))
		} else {
			fanoutOpts = append(fanoutOpts, notify.WithMailer(mailer))
		}
	}
	fanout := notify.NewFanout(notifications, logger, fanoutOpts...)

	// Jobs
	jobOpts := []jobs.Option{jobs.WithNotifier(fanout)}
	if cfg.SQSQueueURL != "" {
		producer, err := sqs.NewProducer(ctx, sqs.Config{
			Region:   cfg.AWSRegion,
			QueueURL: cfg.SQSQueueURL,
			Endpoint: cfg.AWSEndpoint,
		}, logger)
		if err != nil {
			logger.Warn("sqs producer unavailable, jobs will not be enqueued", zap.Error(err))
		} else {
			jobOpts = append(jobOpts, jobs.WithEnqueuer(producer))
		}
	}
	svc := jobs.NewService(jobRepo, logger, jobOpts...)

	// AI
	var aiClient *ai.Client
	if cfg.AIEnabled {
		aiClient, err = ai.NewClient(ai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.OpenAIModel,
		}, logger)
		if err != nil {
			logger.Warn("ai client unavailable, chat and prompt enhancement disabled", zap.Error(err))
			aiClient = nil
		}
	}
	if aiClient != nil {
		handlerOpts = append(handlerOpts, api.WithChat(aiClient))
	}
	handlerOpts = append(handlerOpts,
		api.WithCallbackSecret(cfg.CallbackSecret),
		api.WithRevealDelay(cfg.ChatRevealDelay),
	)

	// Uploads
	if cfg.S3Bucket != "" {
		uploader, err := storage.NewUploader(ctx, storage.Config{
			Region:   cfg.AWSRegion,
			Bucket:   cfg.S3Bucket,
			Endpoint: cfg.S3Endpoint,
			URLTTL:   cfg.UploadURLTTL,
		}, logger)
		if err != nil {
			logger.Warn("s3 uploader unavailable, uploads disabled", zap.Error(err))
		} else {
			handlerOpts = append(handlerOpts, api.WithUploads(uploader))
		}
	}

	// Generation provider
	var (
		base      worker.Provider
		simulated *worker.SimulatedProvider
	)
	switch cfg.Provider {
	case "webhook":
		base = worker.NewWebhookProvider(worker.WebhookConfig{
			URL:             cfg.ProviderURL,
			Timeout:         cfg.ProviderTimeout,
			CallbackBaseURL: cfg.PublicBaseURL,
			CallbackSecret:  cfg.CallbackSecret,
		}, logger)
	default:
		simulated = worker.NewSimulatedProvider(svc, worker.SimulatedConfig{
			FailureRate: cfg.SimulatedFailure,
		}, logger)
		base = simulated
	}

	breaker := circuitbreaker.New(circuitbreaker.Config{
		Name:                cfg.Provider,
		MaxFailures:         cfg.BreakerMaxFailures,
		RecoveryTimeout:     cfg.BreakerRecoveryTime,
		HalfOpenMaxRequests: 1,
	}, logger)

	var provider worker.Provider = circuitbreaker.NewProtectedProvider(base, breaker, logger)
	if aiClient != nil {
		provider = ai.NewPromptEnhancer(provider, aiClient, logger)
	}
	provider = worker.NewMultiProvider(logger, provider)

	w := worker.New(svc, provider, worker.Config{
		PollInterval: cfg.WorkerPollInterval,
		BatchSize:    cfg.WorkerBatchSize,
		MaxAttempts:  cfg.WorkerMaxAttempts,
		ClaimLease:   cfg.WorkerClaimLease,
		JobDeadline:  cfg.JobDeadline,
	}, logger)

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	go w.Start(bgCtx)
	logger.Info("dispatch worker started")

	if cfg.SimulateNotifications && center != nil {
		sim := notify.NewSimulator(center, notify.SimulatorConfig{
			Tick:   cfg.NotificationTick,
			Chance: cfg.NotificationChance,
		}, logger)
		go sim.Run(bgCtx)
		logger.Info("notification simulator started")
	}

	issuer, err := auth.NewIssuer(auth.Config{
		Secret: cfg.JWTSecret,
		Issuer: cfg.JWTIssuer,
		TTL:    cfg.JWTTTL,
	})
	if err != nil {
		return fmt.Errorf("failed to create token issuer: %w", err)
	}

	handler := api.NewHandler(logger, svc, notifications, handlerOpts...)
	router := api.NewRouter(api.RouterConfig{
		Handler:  handler,
		Issuer:   issuer,
		Limiter:  rateLimiter,
		Breakers: []*circuitbreaker.CircuitBreaker{breaker},
		Logger:   logger,
	})

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Port),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// The chat reveal streams for minutes on long replies.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("server listening", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-shutdown:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			srv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	bgCancel()
	if simulated != nil {
		simulated.Wait()
	}
	logger.Info("server stopped gracefully")
	return nil
}
