package handler

import (
	"notification-engine/internal/adapter/http/middleware"
	redisStore "notification-engine/internal/adapter/storage/redis"
	"notification-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Dispatcher     ports.EventDispatcher
	Reconciler     ports.PaymentReconciler
	ReadState      ports.ReadStateService
	Registrations  ports.RegistrationService
	Devices        ports.DeviceRegistry
	Reminders      ports.ReminderService
	TokenSvc       ports.TokenService
	SigSvc         ports.SignatureService
	WebhookSecret  string // empty = signature check disabled
	InternalAPIKey string
	CORSOrigins    []string
	Hub            *redisStore.PresenceHub    // nil = live stream disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        prometheus.Gatherer // nil = /metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.CORS(deps.CORSOrigins))
	r.Use(middleware.MaxBodySize(1 << 20))

	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	if deps.Metrics != nil {
		r.GET("/metrics", Metrics(deps.Metrics))
	}

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Gateway webhook (signature-verified) ---
	webhookHandler := NewWebhookHandler(deps.Reconciler, deps.Logger)
	v1.POST("/webhooks/gateway",
		rl("webhook"),
		middleware.WebhookSignature(deps.SigSvc, deps.WebhookSecret, deps.Logger),
		webhookHandler.Receive,
	)

	// --- Recipient routes (JWT) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	notificationHandler := NewNotificationHandler(deps.ReadState)
	notifications := v1.Group("/notifications", jwtAuth)
	{
		notifications.GET("", rl("notifications"), notificationHandler.History)
		notifications.GET("/unread-count", rl("notifications"), notificationHandler.UnreadCount)
		notifications.PATCH("/:id/read", rl("notifications"), notificationHandler.MarkRead)
		notifications.POST("/read-all", rl("notifications"), notificationHandler.MarkAllRead)
		if deps.Hub != nil {
			streamHandler := NewStreamHandler(deps.Hub, deps.Logger)
			notifications.GET("/stream", rl("stream"), streamHandler.Stream)
		}
	}

	deviceHandler := NewDeviceHandler(deps.Devices)
	devices := v1.Group("/devices", jwtAuth)
	{
		devices.POST("", rl("devices"), deviceHandler.Register)
		devices.DELETE("", rl("devices"), deviceHandler.Unregister)
	}

	// --- Internal routes (shared key) ---
	internal := r.Group("/internal", middleware.InternalAuth(deps.InternalAPIKey))
	{
		internal.POST("/events", NewEventHandler(deps.Dispatcher).Dispatch)
		internal.POST("/tokens", NewTokenHandler(deps.TokenSvc).Issue)

		registrationHandler := NewRegistrationHandler(deps.Registrations)
		internal.POST("/registrations", registrationHandler.Create)
		internal.POST("/registrations/:id/cancel", registrationHandler.Cancel)
		internal.PUT("/installments/:id/status", registrationHandler.OverrideInstallment)

		reminderHandler := NewReminderHandler(deps.Reminders)
		internal.POST("/reminders/payments", reminderHandler.PaymentReminders)
		internal.POST("/reminders/credentials", reminderHandler.CredentialExpiry)
	}

	return r
}
