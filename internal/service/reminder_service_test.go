package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"notification-engine/internal/core/domain"
	"notification-engine/internal/core/ports"
	"notification-engine/internal/core/ports/mocks"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestReminder_EmitPaymentReminders(t *testing.T) {
	ctrl := gomock.NewController(t)
	installments := mocks.NewMockInstallmentRepository(ctrl)
	dispatcher := &recordingDispatcher{}
	svc := NewReminderService(installments, dispatcher, ReminderConfig{}, zerolog.Nop())
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.(*reminderService).now = func() time.Time { return now }

	due := now.Add(48 * time.Hour)
	installments.EXPECT().ListDueForReminder(gomock.Any(), now.Add(72*time.Hour), 500).Return([]ports.InstallmentReminder{
		{
			Installment:      domain.Installment{ID: uuid.New(), RegistrationID: uuid.New(), SequenceNumber: 2, Amount: 15000, DueDate: &due},
			RecipientEmail:   "ana@example.com",
			EventName:        "Retiro",
			InstallmentCount: 3,
		},
		{
			Installment:      domain.Installment{ID: uuid.New(), RegistrationID: uuid.New(), SequenceNumber: 1, Amount: 9000},
			RecipientEmail:   "bia@example.com",
			EventName:        "Congresso",
			InstallmentCount: 1,
		},
	}, nil)

	n, err := svc.EmitPaymentReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, dispatcher.events, 2)

	first := dispatcher.events[0]
	assert.Equal(t, domain.EventPaymentReminder, first.Type)
	assert.Equal(t, domain.PriorityLow, first.Priority)
	assert.Equal(t, []domain.Channel{domain.ChannelEmail}, first.RequestedChannels)
	assert.Equal(t, due.Format(time.RFC3339), first.Payload["due_date"])
	_, hasDue := dispatcher.events[1].Payload["due_date"]
	assert.False(t, hasDue)
}

func TestReminder_DispatchFailureSkipsOne(t *testing.T) {
	ctrl := gomock.NewController(t)
	installments := mocks.NewMockInstallmentRepository(ctrl)
	dispatcher := mocks.NewMockEventDispatcher(ctrl)
	svc := NewReminderService(installments, dispatcher, ReminderConfig{Lookahead: time.Hour, BatchSize: 10}, zerolog.Nop())

	installments.EXPECT().ListDueForReminder(gomock.Any(), gomock.Any(), 10).Return([]ports.InstallmentReminder{
		{RecipientEmail: "a@example.com"},
		{RecipientEmail: "b@example.com"},
	}, nil)
	gomock.InOrder(
		dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(domain.DispatchOutcome(""), errors.New("bad")),
		dispatcher.EXPECT().Dispatch(gomock.Any(), gomock.Any()).Return(domain.OutcomeQueued, nil),
	)

	n, err := svc.EmitPaymentReminders(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestReminder_RepositoryError(t *testing.T) {
	ctrl := gomock.NewController(t)
	installments := mocks.NewMockInstallmentRepository(ctrl)
	svc := NewReminderService(installments, &recordingDispatcher{}, ReminderConfig{}, zerolog.Nop())

	installments.EXPECT().ListDueForReminder(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil, errors.New("down"))

	_, err := svc.EmitPaymentReminders(context.Background())
	requireAppCode(t, err, "SYS_001")
}

func TestReminder_EmitCredentialExpiry(t *testing.T) {
	dispatcher := &recordingDispatcher{}
	svc := NewReminderService(nil, dispatcher, ReminderConfig{}, zerolog.Nop())
	expires := time.Now().Add(10*24*time.Hour + time.Hour)

	n, err := svc.EmitCredentialExpiry(context.Background(), []ports.CredentialNotice{
		{RecipientEmail: "ana@example.com", CredentialName: "Carteirinha", ExpiresAt: expires},
		{RecipientEmail: "bia@example.com", CredentialName: "Crachá", ExpiresAt: time.Now().Add(-time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, dispatcher.events, 2)
	assert.Equal(t, domain.EventCredentialExpiringSoon, dispatcher.events[0].Type)
	assert.Equal(t, 10, dispatcher.events[0].Payload["days_left"])
	assert.Equal(t, 0, dispatcher.events[1].Payload["days_left"])
}
