package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"notification-engine/config"
	"notification-engine/internal/adapter/channel"
	"notification-engine/internal/adapter/gateway"
	httpHandler "notification-engine/internal/adapter/http/handler"
	"notification-engine/internal/adapter/messaging/kafka"
	pgStorage "notification-engine/internal/adapter/storage/postgres"
	redisStorage "notification-engine/internal/adapter/storage/redis"
	"notification-engine/internal/core/ports"
	"notification-engine/internal/service"
	"notification-engine/pkg/logger"
	"notification-engine/pkg/metrics"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Notification Engine")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	m := metrics.New(prometheus.DefaultRegisterer)

	// Repositories
	ledger := pgStorage.NewDeliveryRepo(pool)
	registrationRepo := pgStorage.NewRegistrationRepo(pool)
	installmentRepo := pgStorage.NewInstallmentRepo(pool)
	deviceRepo := pgStorage.NewDeviceTokenRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis stores
	jobQueue := redisStorage.NewJobQueue(rdb, redisStorage.JobQueueConfig{
		VisibilityTimeout:  cfg.Queue.VisibilityTimeout,
		CompletedRetention: cfg.Queue.CompletedRetention,
		FailedRetention:    cfg.Queue.FailedRetention,
	})
	hub := redisStorage.NewPresenceHub(rdb, cfg.Realtime.PresenceTTL)
	dedupe := redisStorage.NewWebhookDedupe(rdb)
	locker := redisStorage.NewInstallmentLock(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Channels
	senders := []ports.ChannelSender{
		channel.NewPushSender(channel.PushConfig{
			Endpoint:    cfg.Push.Endpoint,
			AccessToken: cfg.Push.AccessToken,
		}, deviceRepo, &http.Client{Timeout: cfg.Push.Timeout}, log),
		channel.NewEmailSender(channel.NewSMTPMailer(channel.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
			FromName: cfg.SMTP.FromName,
			Timeout:  cfg.SMTP.Timeout,
			TLS:      cfg.SMTP.TLS,
		}), cfg.SMTP.From, cfg.SMTP.FromName, cfg.SMTP.Timeout, log),
		channel.NewRealtimeSender(hub, log),
	}

	// Delivery
	renderer := service.NewTemplateRenderer()
	pipeline := service.NewDeliveryPipeline(renderer, senders, ledger, service.ChannelTimeouts{
		Push:     cfg.Push.Timeout,
		Email:    cfg.SMTP.Timeout,
		Realtime: cfg.Realtime.Timeout,
	}, m, log)
	queueHealth := service.NewQueueHealthProbe(redisHealth, cfg.Queue.HealthTTL, log)
	dispatcher := service.NewNotificationDispatcher(jobQueue, queueHealth, renderer, pipeline, service.DispatcherConfig{
		MaxAttempts:    cfg.Queue.MaxAttempts,
		BaseBackoff:    cfg.Queue.BaseBackoff,
		EnqueueTimeout: cfg.Queue.EnqueueTimeout,
	}, m, log)
	workers := service.NewWorkerPool(jobQueue, pipeline, service.WorkerPoolConfig{
		Workers:        cfg.Queue.Workers,
		PollInterval:   cfg.Queue.PollInterval,
		ReaperInterval: cfg.Queue.ReaperInterval,
	}, m, log)

	// Registrations & reconciliation
	auditSvc := service.NewAuditService(auditRepo, log)
	stateMachine := service.NewRegistrationStateMachine(registrationRepo, installmentRepo, dispatcher, log)
	registrationSvc := service.NewRegistrationService(registrationRepo, installmentRepo, transactor, stateMachine, dispatcher, auditSvc, log)
	gatewayClient := gateway.NewMercadoPagoClient(gateway.Config{
		BaseURL:     cfg.Gateway.BaseURL,
		AccessToken: cfg.Gateway.AccessToken,
	}, &http.Client{Timeout: cfg.Gateway.Timeout}, log)
	reconciler := service.NewPaymentReconciler(
		gatewayClient,
		installmentRepo,
		registrationRepo,
		stateMachine,
		dispatcher,
		locker,
		dedupe,
		auditSvc,
		service.ReconcilerConfig{},
		m,
		log,
	)

	readStateSvc := service.NewReadStateService(ledger, log)
	deviceRegistry := service.NewDeviceRegistry(deviceRepo, log)
	reminderSvc := service.NewReminderService(installmentRepo, dispatcher, service.ReminderConfig{}, log)
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	var background sync.WaitGroup

	background.Add(1)
	go func() {
		defer background.Done()
		if err := workers.Run(ctx); err != nil {
			log.Error().Err(err).Msg("worker pool stopped")
		}
	}()

	if cfg.Kafka.Enabled {
		consumer, err := kafka.NewConsumer(cfg.Kafka, kafka.NewEventHandler(dispatcher, log), log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to start Kafka consumer")
		}
		background.Add(1)
		go func() {
			defer background.Done()
			defer consumer.Close()
			if err := consumer.Run(ctx); err != nil {
				log.Error().Err(err).Msg("kafka consumer stopped")
			}
		}()
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Dispatcher:     dispatcher,
		Reconciler:     reconciler,
		ReadState:      readStateSvc,
		Registrations:  registrationSvc,
		Devices:        deviceRegistry,
		Reminders:      reminderSvc,
		TokenSvc:       tokenSvc,
		SigSvc:         sigSvc,
		WebhookSecret:  cfg.Gateway.WebhookSecret,
		InternalAPIKey: cfg.Server.InternalAPIKey,
		CORSOrigins:    cfg.Server.CORSOrigins,
		Hub:            hub,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Metrics:        prometheus.DefaultGatherer,
		Logger:         log,
	})

	// SSE streams never go idle, so request contexts are cancelled when
	// shutdown starts. Interrupted webhooks are redelivered by the gateway.
	reqCtx, cancelRequests := context.WithCancel(context.Background())
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return reqCtx },
	}
	srv.RegisterOnShutdown(cancelRequests)

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	background.Wait()
	log.Info().Msg("Server exited")
}
