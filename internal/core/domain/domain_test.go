package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriority_Weight(t *testing.T) {
	assert.Equal(t, 10, PriorityHigh.Weight())
	assert.Equal(t, 5, PriorityNormal.Weight())
	assert.Equal(t, 1, PriorityLow.Weight())
	assert.Equal(t, 5, Priority("").Weight())
}

func TestMapExternalStatus(t *testing.T) {
	tests := []struct {
		external string
		want     InstallmentStatus
		ok       bool
	}{
		{"approved", InstallmentCompleted, true},
		{"rejected", InstallmentCancelled, true},
		{"cancelled", InstallmentCancelled, true},
		{"refunded", InstallmentRefunded, true},
		{"charged_back", InstallmentRefunded, true},
		{"pending", InstallmentPending, true},
		{"in_process", InstallmentPending, true},
		{"in_mediation", InstallmentPending, true},
		{" APPROVED ", InstallmentCompleted, true},
		{"something_else", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.external, func(t *testing.T) {
			got, ok := MapExternalStatus(tt.external)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveTransition(t *testing.T) {
	tests := []struct {
		name        string
		current     InstallmentStatus
		external    string
		wantTo      InstallmentStatus
		wantResult  ReconcileResult
		wantCascade bool
	}{
		{"pending approved", InstallmentPending, "approved", InstallmentCompleted, ReconcileApplied, true},
		{"pending rejected", InstallmentPending, "rejected", InstallmentCancelled, ReconcileApplied, false},
		{"pending stays pending", InstallmentPending, "in_process", InstallmentPending, ReconcileNoop, false},
		{"completed approved again", InstallmentCompleted, "approved", InstallmentCompleted, ReconcileNoop, false},
		{"completed to pending is a regression", InstallmentCompleted, "pending", InstallmentCompleted, ReconcileConflict, false},
		{"completed to cancelled is a regression", InstallmentCompleted, "rejected", InstallmentCompleted, ReconcileConflict, false},
		{"completed refunded", InstallmentCompleted, "refunded", InstallmentRefunded, ReconcileApplied, true},
		{"completed charged back", InstallmentCompleted, "charged_back", InstallmentRefunded, ReconcileApplied, true},
		{"cancelled then approved", InstallmentCancelled, "approved", InstallmentCompleted, ReconcileApplied, true},
		{"cancelled reinstated", InstallmentCancelled, "pending", InstallmentPending, ReconcileApplied, false},
		{"cancelled refunded", InstallmentCancelled, "refunded", InstallmentCancelled, ReconcileConflict, false},
		{"refunded is terminal", InstallmentRefunded, "approved", InstallmentRefunded, ReconcileConflict, false},
		{"unmapped", InstallmentPending, "weird", InstallmentPending, ReconcileUnmapped, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveTransition(tt.current, tt.external)
			assert.Equal(t, tt.current, got.From)
			assert.Equal(t, tt.wantTo, got.To)
			assert.Equal(t, tt.wantResult, got.Result)
			assert.Equal(t, tt.wantCascade, got.Cascade)
		})
	}
}

func TestResolveTransition_Idempotent(t *testing.T) {
	first := ResolveTransition(InstallmentPending, "approved")
	assert.True(t, first.Changed())

	second := ResolveTransition(first.To, "approved")
	assert.False(t, second.Changed())
	assert.False(t, second.Cascade)
}

func TestTransition_InstallmentEvent(t *testing.T) {
	ev, ok := ResolveTransition(InstallmentPending, "approved").InstallmentEvent()
	assert.True(t, ok)
	assert.Equal(t, EventPaymentValidated, ev)

	ev, ok = ResolveTransition(InstallmentPending, "rejected").InstallmentEvent()
	assert.True(t, ok)
	assert.Equal(t, EventPaymentRejected, ev)

	ev, ok = ResolveTransition(InstallmentCancelled, "pending").InstallmentEvent()
	assert.True(t, ok)
	assert.Equal(t, EventPaymentReinstated, ev)

	_, ok = ResolveTransition(InstallmentCompleted, "approved").InstallmentEvent()
	assert.False(t, ok)

	_, ok = ResolveTransition(InstallmentCompleted, "refunded").InstallmentEvent()
	assert.False(t, ok)
}

func TestRegistration_DeriveStatus(t *testing.T) {
	r := &Registration{Status: RegistrationPending, InstallmentCount: 3}
	assert.Equal(t, RegistrationPending, r.DeriveStatus(0))
	assert.Equal(t, RegistrationPending, r.DeriveStatus(2))
	assert.Equal(t, RegistrationConfirmed, r.DeriveStatus(3))

	r.Status = RegistrationCancelled
	assert.Equal(t, RegistrationCancelled, r.DeriveStatus(3))
}

func TestNewInstallments(t *testing.T) {
	regID := uuid.New()
	first := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	batch := NewInstallments(regID, 3, 100, &first)
	assert.Len(t, batch, 3)
	for i, inst := range batch {
		assert.Equal(t, regID, inst.RegistrationID)
		assert.Equal(t, i+1, inst.SequenceNumber)
		assert.Equal(t, int64(100), inst.Amount)
		assert.Equal(t, InstallmentPending, inst.Status)
	}
	assert.Equal(t, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC), *batch[2].DueDate)
}

func TestSentViaFrom(t *testing.T) {
	assert.Equal(t, SentViaNone, SentViaFrom(false, false))
	assert.Equal(t, SentViaPush, SentViaFrom(true, false))
	assert.Equal(t, SentViaEmail, SentViaFrom(false, true))
	assert.Equal(t, SentViaBoth, SentViaFrom(true, true))
}

func TestChannelOutcome_Succeeded(t *testing.T) {
	assert.False(t, ChannelOutcome{}.Succeeded())
	assert.True(t, ChannelOutcome{PushAttempted: true, EmailAttempted: true, EmailSuccess: true}.Succeeded())
	assert.False(t, ChannelOutcome{PushAttempted: true, RealtimeAttempted: true, RealtimeSuccess: true}.Succeeded(),
		"realtime alone must not mask a failed guaranteed channel")
	assert.True(t, ChannelOutcome{RealtimeAttempted: true, RealtimeSuccess: true}.Succeeded())
}

func TestNotificationJob_Backoff(t *testing.T) {
	job := NewNotificationJob(DomainEvent{Priority: PriorityHigh}, AllChannels, 3, time.Second)
	assert.Equal(t, 10, job.Weight)
	assert.Equal(t, JobWaiting, job.State)

	var prev time.Duration
	for attempt := 1; attempt <= 3; attempt++ {
		job.Attempt = attempt
		d := job.Backoff()
		assert.Greater(t, d, prev)
		prev = d
	}
	job.Attempt = 1
	assert.Equal(t, 2*time.Second, job.Backoff())
	assert.False(t, job.Exhausted())
	job.Attempt = 3
	assert.True(t, job.Exhausted())
}

func TestBuildWebhookDedupeKey(t *testing.T) {
	n := GatewayNotice{ID: "123", Type: "payment"}
	assert.Equal(t, "notice:123", BuildWebhookDedupeKey(n))

	n = GatewayNotice{Type: "payment", Action: "payment.updated"}
	n.Data.ID = "999"
	assert.Equal(t, "payment:999:payment.updated", BuildWebhookDedupeKey(n))
}

func TestGatewayNotice_NumericAndStringIDs(t *testing.T) {
	var n GatewayNotice
	require.NoError(t, json.Unmarshal([]byte(`{"id":12345,"type":"payment","data":{"id":"987"}}`), &n))
	assert.Equal(t, NoticeID("12345"), n.ID)
	assert.Equal(t, "987", n.PaymentID())

	require.NoError(t, json.Unmarshal([]byte(`{"id":"abc","type":"payment","data":{"id":555}}`), &n))
	assert.Equal(t, NoticeID("abc"), n.ID)
	assert.Equal(t, "555", n.PaymentID())

	var empty GatewayNotice
	require.NoError(t, json.Unmarshal([]byte(`{"id":null,"type":"payment","data":{"id":"1"}}`), &empty))
	assert.Empty(t, empty.ID)

	assert.Error(t, json.Unmarshal([]byte(`{"id":{},"type":"payment"}`), &empty))
}
