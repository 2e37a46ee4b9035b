package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"notification-engine/internal/core/ports"
	"notification-engine/internal/service"
	"notification-engine/pkg/apperror"
	"notification-engine/pkg/response"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	// Webhook signature headers sent by the payment gateway
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"

	// HeaderInternalKey authenticates calls from the rest of the application.
	HeaderInternalKey = "X-Internal-Key"

	// Context keys
	CtxRequestID      = "request_id"
	CtxRecipientEmail = "recipient_email"
	CtxRecipientID    = "recipient_id"
)

// RequestID propagates the caller's X-Request-Id or assigns a new one.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = uuid.New().String()
		}
		c.Set(CtxRequestID, id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// WebhookSignature verifies the gateway's "x-signature: ts=..,v1=.." header as
// HMAC-SHA256 over id:<data.id>;request-id:<x-request-id>;ts:<ts>;.
// With an empty secret verification is disabled.
func WebhookSignature(sigSvc ports.SignatureService, secret string, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		ts, v1, ok := service.ParseSignatureHeader(c.GetHeader(HeaderSignature))
		if !ok {
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		dataID := c.Query("data.id")
		if dataID == "" {
			bodyBytes, err := io.ReadAll(c.Request.Body)
			if err != nil {
				response.Error(c, apperror.ErrInvalidWebhookPayload())
				c.Abort()
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			dataID = bodyDataID(bodyBytes)
		}

		manifest := sigSvc.BuildManifest(dataID, c.GetHeader(HeaderRequestID), ts)
		if !sigSvc.Verify(secret, manifest, v1) {
			log.Warn().Str("data_id", dataID).Msg("webhook signature mismatch")
			response.Error(c, apperror.ErrInvalidSignature())
			c.Abort()
			return
		}

		c.Next()
	}
}

func bodyDataID(body []byte) string {
	var notice struct {
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &notice); err != nil {
		return ""
	}
	return strings.Trim(string(notice.Data.ID), `"`)
}

// JWTAuth creates a middleware that validates recipient tokens for the
// notification API. The stream endpoint also accepts ?access_token= since
// EventSource cannot set headers.
func JWTAuth(tokenSvc ports.TokenService, log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := ""
		authHeader := c.GetHeader("Authorization")
		if len(authHeader) > 7 && authHeader[:7] == "Bearer " {
			tokenStr = authHeader[7:]
		} else if q := c.Query("access_token"); q != "" && strings.HasSuffix(c.Request.URL.Path, "/stream") {
			tokenStr = q
		}
		if tokenStr == "" {
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		claims, err := tokenSvc.Validate(tokenStr)
		if err != nil {
			log.Debug().Err(err).Msg("token rejected")
			response.Error(c, apperror.ErrInvalidToken())
			c.Abort()
			return
		}

		c.Set(CtxRecipientEmail, claims.RecipientEmail)
		c.Set(CtxRecipientID, claims.RecipientID)
		c.Next()
	}
}

// InternalAuth guards the internal API with a shared key. An empty key
// rejects every request.
func InternalAuth(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		got := c.GetHeader(HeaderInternalKey)
		if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			response.Error(c, apperror.ErrInvalidInternalKey())
			c.Abort()
			return
		}
		c.Next()
	}
}

// CORS allows the configured browser origins to call the notification API.
func CORS(origins []string) gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", HeaderRequestID}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.ExposeHeaders = []string{HeaderRequestID, "X-RateLimit-Remaining", "Retry-After"}
	cfg.MaxAge = 12 * time.Hour

	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}
	if allowAll {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}

// MaxBodySize limits the request body; reads past the limit fail and the
// request is rejected by the binding step.
func MaxBodySize(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		}
		c.Next()
	}
}

// RequestLogger creates a middleware that logs every HTTP request.
func RequestLogger(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		status := c.Writer.Status()

		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Error()
		} else if status >= http.StatusBadRequest {
			event = log.Warn()
		}

		event.
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", status).
			Dur("latency", latency).
			Str("client_ip", c.ClientIP()).
			Str("request_id", c.GetString(CtxRequestID)).
			Msg("http request")
	}
}

// Recovery creates a panic recovery middleware.
func Recovery(log zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Request.URL.Path).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error_code": "SYS_001",
					"message":    "Internal server error",
				})
			}
		}()
		c.Next()
	}
}
