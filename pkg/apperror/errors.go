package apperror

import (
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

// ---- Notifications (NTF) ----

func ErrInvalidEvent(message string) *AppError {
	return New("NTF_001", message, http.StatusBadRequest)
}

func ErrUnknownTemplate(eventType string) *AppError {
	return New("NTF_002", fmt.Sprintf("No template registered for event type %q", eventType), http.StatusUnprocessableEntity)
}

func ErrNotificationNotFound() *AppError {
	return New("NTF_003", "Notification not found", http.StatusNotFound)
}

// ---- Reconciliation (REC) ----

func ErrInvalidWebhookPayload() *AppError {
	return New("REC_001", "Invalid webhook payload", http.StatusBadRequest)
}

func ErrInvalidSignature() *AppError {
	return New("REC_002", "Invalid webhook signature", http.StatusUnauthorized)
}

// ---- Registrations (REG) ----

func ErrRegistrationNotFound() *AppError {
	return New("REG_001", "Registration not found", http.StatusNotFound)
}

func ErrInvalidInstallmentCount() *AppError {
	return New("REG_002", "Installment count must be between 1 and 24", http.StatusBadRequest)
}

func ErrInstallmentNotFound() *AppError {
	return New("REG_003", "Installment not found", http.StatusNotFound)
}

func ErrInvalidStatusOverride(from, to string) *AppError {
	return New("REG_004", fmt.Sprintf("Cannot move installment from %s to %s", from, to), http.StatusConflict)
}

// ---- Authentication (AUTH) ----

func ErrInvalidToken() *AppError {
	return New("AUTH_003", "Invalid or expired token", http.StatusUnauthorized)
}

func ErrInvalidInternalKey() *AppError {
	return New("AUTH_005", "Invalid internal API key", http.StatusUnauthorized)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrLockTimeout(err error) *AppError {
	return Wrap("SYS_002", "Lock acquisition timeout", http.StatusServiceUnavailable, err)
}

func ErrUpstreamUnavailable(err error) *AppError {
	return Wrap("SYS_003", "Upstream service unavailable", http.StatusBadGateway, err)
}

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err)
}

// Validation returns an NTF_001-style validation error.
func Validation(message string) *AppError {
	return New("NTF_001", message, http.StatusBadRequest)
}
