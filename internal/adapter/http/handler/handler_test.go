package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"notification-engine/internal/adapter/http/middleware"
	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/internal/core/ports/mocks"
	"notification-engine/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func jsonRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func withRecipient(c *gin.Context, email string) {
	c.Set(middleware.CtxRecipientEmail, email)
	c.Set(middleware.CtxRecipientID, "user-1")
}

// --- Event Handler Tests ---

func TestDispatch_Accepted(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockEventDispatcher(ctrl)
	h := NewEventHandler(dispatcher)

	var got domain.DomainEvent
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, e domain.DomainEvent) (domain.DispatchOutcome, error) {
			got = e
			return domain.OutcomeQueued, nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/events", map[string]interface{}{
		"type":              "payment_validated",
		"recipientEmail":    "ana@example.com",
		"priority":          "high",
		"requestedChannels": []string{"push", "realtime"},
		"payload":           map[string]interface{}{"installment_number": 1},
	})

	h.Dispatch(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEqual(t, uuid.Nil, got.ID)
	assert.Equal(t, domain.EventPaymentValidated, got.Type)
	assert.Equal(t, domain.PriorityHigh, got.Priority)
	assert.Equal(t, []domain.Channel{domain.ChannelPush, domain.ChannelRealtime}, got.RequestedChannels)

	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, got.ID.String(), data["event_id"])
	assert.Equal(t, "queued", data["outcome"])
}

func TestDispatch_KeepsCallerEventID(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockEventDispatcher(ctrl)
	h := NewEventHandler(dispatcher)

	id := uuid.New()
	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, e domain.DomainEvent) (domain.DispatchOutcome, error) {
			assert.Equal(t, id, e.ID)
			return domain.OutcomeDeliveredDirect, nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/events", map[string]interface{}{
		"id":             id.String(),
		"type":           "registration_created",
		"recipientEmail": "ana@example.com",
	})

	h.Dispatch(c)

	assert.Equal(t, http.StatusAccepted, w.Code)
}

func TestDispatch_InvalidEvent(t *testing.T) {
	tests := []struct {
		name string
		body interface{}
	}{
		{"malformed json", "{"},
		{"missing type", map[string]interface{}{"recipientEmail": "ana@example.com"}},
		{"unknown type", map[string]interface{}{"type": "order_shipped", "recipientEmail": "ana@example.com"}},
		{"bad email", map[string]interface{}{"type": "payment_validated", "recipientEmail": "not-an-email"}},
		{"bad channel", map[string]interface{}{
			"type": "payment_validated", "recipientEmail": "ana@example.com", "requestedChannels": []string{"sms"},
		}},
		{"bad priority", map[string]interface{}{
			"type": "payment_validated", "recipientEmail": "ana@example.com", "priority": "urgent",
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			h := NewEventHandler(mocks.NewMockEventDispatcher(ctrl))

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = jsonRequest(http.MethodPost, "/internal/events", tt.body)

			h.Dispatch(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, "NTF_001", decodeBody(t, w)["error_code"])
		})
	}
}

func TestDispatch_UnknownTemplate(t *testing.T) {
	ctrl := gomock.NewController(t)
	dispatcher := mocks.NewMockEventDispatcher(ctrl)
	h := NewEventHandler(dispatcher)

	dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).
		Return(domain.DispatchOutcome(""), apperror.ErrUnknownTemplate("payment_reinstated"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/events", map[string]interface{}{
		"type": "payment_reinstated", "recipientEmail": "ana@example.com",
	})

	h.Dispatch(c)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, "NTF_002", decodeBody(t, w)["error_code"])
}

// --- Webhook Handler Tests ---

func TestWebhook_Received(t *testing.T) {
	ctrl := gomock.NewController(t)
	reconciler := mocks.NewMockPaymentReconciler(ctrl)
	h := NewWebhookHandler(reconciler, zerolog.Nop())

	reconciler.EXPECT().HandleNotice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, n domain.GatewayNotice) error {
			assert.Equal(t, domain.NoticeID("77"), n.ID)
			assert.Equal(t, "payment", n.Type)
			assert.Equal(t, "555", n.PaymentID())
			return nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/api/v1/webhooks/gateway",
		`{"id":77,"type":"payment","action":"payment.updated","data":{"id":"555"}}`)

	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_QueryFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	reconciler := mocks.NewMockPaymentReconciler(ctrl)
	h := NewWebhookHandler(reconciler, zerolog.Nop())

	reconciler.EXPECT().HandleNotice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, n domain.GatewayNotice) error {
			assert.Equal(t, "payment", n.Type)
			assert.Equal(t, "999", n.PaymentID())
			return nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/api/v1/webhooks/gateway?type=payment&data.id=999", `{}`)

	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_InvalidPayloadIsLoggedAndAcknowledged(t *testing.T) {
	ctrl := gomock.NewController(t)
	var logs bytes.Buffer
	h := NewWebhookHandler(mocks.NewMockPaymentReconciler(ctrl), zerolog.New(&logs))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/api/v1/webhooks/gateway", `not json`)

	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code, "a 4xx would make the gateway redeliver forever")
	assert.Contains(t, logs.String(), `"level":"warn"`)
	assert.Contains(t, logs.String(), "unparsable notification body")
}

func TestWebhook_NonJSONBodyWithQueryNotice(t *testing.T) {
	ctrl := gomock.NewController(t)
	reconciler := mocks.NewMockPaymentReconciler(ctrl)
	h := NewWebhookHandler(reconciler, zerolog.Nop())

	reconciler.EXPECT().HandleNotice(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, n domain.GatewayNotice) error {
			assert.Equal(t, "payment", n.Type)
			assert.Equal(t, "321", n.PaymentID())
			return nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/api/v1/webhooks/gateway?type=payment&data.id=321", ``)

	h.Receive(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestWebhook_UpstreamFailureAsksForRedelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	reconciler := mocks.NewMockPaymentReconciler(ctrl)
	h := NewWebhookHandler(reconciler, zerolog.Nop())

	reconciler.EXPECT().HandleNotice(gomock.Any(), gomock.Any()).
		Return(apperror.ErrUpstreamUnavailable(errors.New("timeout")))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/api/v1/webhooks/gateway", `{"type":"payment","data":{"id":"1"}}`)

	h.Receive(c)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "SYS_003", decodeBody(t, w)["error_code"])
}

// --- Notification Handler Tests ---

func TestHistory_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	readState := mocks.NewMockReadStateService(ctrl)
	h := NewNotificationHandler(readState)

	now := time.Now()
	readState.EXPECT().History(gomock.Any(), "ana@example.com", 10, 5).Return([]domain.DeliveryRecord{
		{ID: 2, RecipientEmail: "ana@example.com", Type: domain.EventPaymentValidated, Title: "Pago validado", CreatedAt: now},
		{ID: 1, RecipientEmail: "ana@example.com", Type: domain.EventRegistrationCreated, Title: "Inscripción", Read: true, CreatedAt: now},
	}, int64(7), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=10&offset=5", nil)
	withRecipient(c, "ana@example.com")

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(7), data["total"])
	assert.Equal(t, float64(10), data["limit"])
	assert.Len(t, data["items"], 2)
}

func TestHistory_ClampsPagination(t *testing.T) {
	ctrl := gomock.NewController(t)
	readState := mocks.NewMockReadStateService(ctrl)
	h := NewNotificationHandler(readState)

	readState.EXPECT().History(gomock.Any(), "ana@example.com", 20, 0).Return(nil, int64(0), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/notifications?limit=500&offset=-3", nil)
	withRecipient(c, "ana@example.com")

	h.History(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHistory_NoRecipient(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewNotificationHandler(mocks.NewMockReadStateService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)

	h.History(c)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnreadCount(t *testing.T) {
	ctrl := gomock.NewController(t)
	readState := mocks.NewMockReadStateService(ctrl)
	h := NewNotificationHandler(readState)

	readState.EXPECT().UnreadCount(gomock.Any(), "ana@example.com").Return(int64(3), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil)
	withRecipient(c, "ana@example.com")

	h.UnreadCount(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(3), data["unread"])
}

func TestMarkRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	readState := mocks.NewMockReadStateService(ctrl)
	h := NewNotificationHandler(readState)

	readState.EXPECT().MarkRead(gomock.Any(), "ana@example.com", int64(42)).Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/42/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	withRecipient(c, "ana@example.com")

	h.MarkRead(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMarkRead_InvalidID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewNotificationHandler(mocks.NewMockReadStateService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/abc/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	withRecipient(c, "ana@example.com")

	h.MarkRead(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMarkRead_NotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	readState := mocks.NewMockReadStateService(ctrl)
	h := NewNotificationHandler(readState)

	readState.EXPECT().MarkRead(gomock.Any(), "ana@example.com", int64(9)).Return(apperror.ErrNotificationNotFound())

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPatch, "/api/v1/notifications/9/read", nil)
	c.Params = gin.Params{{Key: "id", Value: "9"}}
	withRecipient(c, "ana@example.com")

	h.MarkRead(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NTF_003", decodeBody(t, w)["error_code"])
}

func TestMarkAllRead(t *testing.T) {
	ctrl := gomock.NewController(t)
	readState := mocks.NewMockReadStateService(ctrl)
	h := NewNotificationHandler(readState)

	readState.EXPECT().MarkAllRead(gomock.Any(), "ana@example.com").Return(int64(4), nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/api/v1/notifications/read-all", nil)
	withRecipient(c, "ana@example.com")

	h.MarkAllRead(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(4), data["updated"])
}

// --- Device Handler Tests ---

func TestRegisterDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := mocks.NewMockDeviceRegistry(ctrl)
	h := NewDeviceHandler(devices)

	id := uuid.New()
	devices.EXPECT().Register(gomock.Any(), domain.Recipient{ID: "user-1", Email: "ana@example.com"}, "ExponentPushToken[abc]", "ios").
		Return(&domain.DeviceToken{ID: id, Token: "ExponentPushToken[abc]", Platform: "ios"}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/api/v1/devices", map[string]string{
		"token": " ExponentPushToken[abc] ", "platform": "ios",
	})
	withRecipient(c, "ana@example.com")

	h.Register(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, id.String(), data["id"])
}

func TestUnregisterDevice(t *testing.T) {
	ctrl := gomock.NewController(t)
	devices := mocks.NewMockDeviceRegistry(ctrl)
	h := NewDeviceHandler(devices)

	devices.EXPECT().Unregister(gomock.Any(), "ana@example.com", "tok-1").Return(nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodDelete, "/api/v1/devices", map[string]string{"token": "tok-1"})
	withRecipient(c, "ana@example.com")

	h.Unregister(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

// --- Registration Handler Tests ---

func TestCreateRegistration(t *testing.T) {
	ctrl := gomock.NewController(t)
	registrations := mocks.NewMockRegistrationService(ctrl)
	h := NewRegistrationHandler(registrations)

	reg := &domain.Registration{
		ID:               uuid.New(),
		RecipientEmail:   "ana@example.com",
		EventName:        "Retiro",
		Status:           domain.RegistrationPending,
		InstallmentCount: 2,
	}
	items := []*domain.Installment{
		{ID: uuid.New(), RegistrationID: reg.ID, SequenceNumber: 1, Amount: 50, Status: domain.InstallmentPending},
		{ID: uuid.New(), RegistrationID: reg.ID, SequenceNumber: 2, Amount: 50, Status: domain.InstallmentPending},
	}
	registrations.EXPECT().Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, req ports.CreateRegistrationRequest) (*domain.Registration, []*domain.Installment, error) {
			assert.Equal(t, "Retiro", req.EventName)
			assert.Equal(t, 2, req.InstallmentCount)
			assert.Equal(t, int64(100), req.Amount)
			return reg, items, nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/registrations", map[string]interface{}{
		"recipient_email":   "ana@example.com",
		"event_name":        "Retiro",
		"installment_count": 2,
		"amount":            100,
	})

	h.Create(c)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "PENDING", data["status"])
	assert.Len(t, data["installments"], 2)
}

func TestCreateRegistration_Validation(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewRegistrationHandler(mocks.NewMockRegistrationService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/registrations", map[string]interface{}{
		"recipient_email":   "ana@example.com",
		"event_name":        "Retiro",
		"installment_count": 30,
		"amount":            100,
	})

	h.Create(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelRegistration_NoBody(t *testing.T) {
	ctrl := gomock.NewController(t)
	registrations := mocks.NewMockRegistrationService(ctrl)
	h := NewRegistrationHandler(registrations)

	id := uuid.New()
	registrations.EXPECT().Cancel(gomock.Any(), id, "").
		Return(&domain.Registration{ID: id, Status: domain.RegistrationCancelled}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/internal/registrations/"+id.String()+"/cancel", nil)
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "CANCELLED", data["status"])
}

func TestCancelRegistration_WithReason(t *testing.T) {
	ctrl := gomock.NewController(t)
	registrations := mocks.NewMockRegistrationService(ctrl)
	h := NewRegistrationHandler(registrations)

	id := uuid.New()
	registrations.EXPECT().Cancel(gomock.Any(), id, "cupo agotado").
		Return(&domain.Registration{ID: id, Status: domain.RegistrationCancelled}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/", map[string]string{"reason": "cupo agotado"})
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.Cancel(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCancelRegistration_BadID(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewRegistrationHandler(mocks.NewMockRegistrationService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)
	c.Params = gin.Params{{Key: "id", Value: "nope"}}

	h.Cancel(c)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "REG_001", decodeBody(t, w)["error_code"])
}

func TestOverrideInstallment(t *testing.T) {
	ctrl := gomock.NewController(t)
	registrations := mocks.NewMockRegistrationService(ctrl)
	h := NewRegistrationHandler(registrations)

	id := uuid.New()
	registrations.EXPECT().OverrideInstallment(gomock.Any(), id, domain.InstallmentCompleted).
		Return(&domain.Installment{ID: id, SequenceNumber: 1, Status: domain.InstallmentCompleted}, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPut, "/", map[string]string{"status": "COMPLETED"})
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.OverrideInstallment(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "COMPLETED", data["status"])
}

func TestOverrideInstallment_Rejected(t *testing.T) {
	ctrl := gomock.NewController(t)
	registrations := mocks.NewMockRegistrationService(ctrl)
	h := NewRegistrationHandler(registrations)

	id := uuid.New()
	registrations.EXPECT().OverrideInstallment(gomock.Any(), id, domain.InstallmentPending).
		Return(nil, apperror.ErrInvalidStatusOverride("REFUNDED", "PENDING"))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPut, "/", map[string]string{"status": "PENDING"})
	c.Params = gin.Params{{Key: "id", Value: id.String()}}

	h.OverrideInstallment(c)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOverrideInstallment_UnknownStatus(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewRegistrationHandler(mocks.NewMockRegistrationService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPut, "/", map[string]string{"status": "PAID"})
	c.Params = gin.Params{{Key: "id", Value: uuid.New().String()}}

	h.OverrideInstallment(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Reminder Handler Tests ---

func TestPaymentReminders(t *testing.T) {
	ctrl := gomock.NewController(t)
	reminders := mocks.NewMockReminderService(ctrl)
	h := NewReminderHandler(reminders)

	reminders.EXPECT().EmitPaymentReminders(gomock.Any()).Return(5, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/internal/reminders/payments", nil)

	h.PaymentReminders(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, float64(5), data["dispatched"])
}

func TestCredentialExpiry(t *testing.T) {
	ctrl := gomock.NewController(t)
	reminders := mocks.NewMockReminderService(ctrl)
	h := NewReminderHandler(reminders)

	expires := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	reminders.EXPECT().EmitCredentialExpiry(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ interface{}, notices []ports.CredentialNotice) (int, error) {
			require.Len(t, notices, 1)
			assert.Equal(t, "Carnet de socio", notices[0].CredentialName)
			assert.True(t, expires.Equal(notices[0].ExpiresAt))
			return 1, nil
		})

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/reminders/credentials", map[string]interface{}{
		"notices": []map[string]interface{}{{
			"recipient_email": "ana@example.com",
			"credential_name": "Carnet de socio",
			"expires_at":      expires.Format(time.RFC3339),
		}},
	})

	h.CredentialExpiry(c)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestCredentialExpiry_Empty(t *testing.T) {
	ctrl := gomock.NewController(t)
	h := NewReminderHandler(mocks.NewMockReminderService(ctrl))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/reminders/credentials", map[string]interface{}{"notices": []interface{}{}})

	h.CredentialExpiry(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// --- Token Handler Tests ---

func TestIssueToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	tokenSvc := mocks.NewMockTokenService(ctrl)
	h := NewTokenHandler(tokenSvc)

	expiry := time.Now().Add(time.Hour)
	tokenSvc.EXPECT().Generate(domain.Recipient{ID: "user-1", Email: "ana@example.com"}).Return("jwt-123", expiry, nil)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = jsonRequest(http.MethodPost, "/internal/tokens", map[string]string{
		"recipient_email": "ana@example.com", "recipient_id": "user-1",
	})

	h.Issue(c)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeBody(t, w)["data"].(map[string]interface{})
	assert.Equal(t, "jwt-123", data["token"])
	assert.Equal(t, float64(expiry.Unix()), data["expiry"])
}

// --- Health & Metrics ---

func TestHealthCheck(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck()(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", decodeBody(t, w)["status"])
}

func TestHealthCheck_Degraded(t *testing.T) {
	ctrl := gomock.NewController(t)
	pg := mocks.NewMockHealthChecker(ctrl)
	rd := mocks.NewMockHealthChecker(ctrl)
	pg.EXPECT().Ping(gomock.Any()).Return(nil)
	pg.EXPECT().Name().Return("postgres").AnyTimes()
	rd.EXPECT().Ping(gomock.Any()).Return(errors.New("connection refused"))
	rd.EXPECT().Name().Return("redis").AnyTimes()

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	HealthCheck(pg, rd)(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	resp := decodeBody(t, w)
	assert.Equal(t, "degraded", resp["status"])
	deps := resp["dependencies"].(map[string]interface{})
	assert.Equal(t, "healthy", deps["postgres"].(map[string]interface{})["status"])
	assert.Equal(t, "unhealthy", deps["redis"].(map[string]interface{})["status"])
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "notify_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	r := gin.New()
	r.GET("/metrics", Metrics(reg))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "notify_test_total 3")
}
