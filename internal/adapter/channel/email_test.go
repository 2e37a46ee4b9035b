package channel

import (
	"context"
	"errors"
	"testing"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

type captureMailer struct {
	sent []*mail.Msg
	err  error
}

func (m *captureMailer) Send(_ context.Context, msg *mail.Msg) error {
	m.sent = append(m.sent, msg)
	return m.err
}

// hangingMailer never returns until released, ignoring ctx like a stuck TCP write.
type hangingMailer struct {
	release chan struct{}
}

func (m *hangingMailer) Send(_ context.Context, _ *mail.Msg) error {
	<-m.release
	return nil
}

func TestEmailSender_BuildsMultipartMessage(t *testing.T) {
	mailer := &captureMailer{}
	s := NewEmailSender(mailer, "avisos@example.com", "Avisos", time.Second, zerolog.Nop())

	event := testEvent()
	err := s.Send(context.Background(), event.Recipient(), domain.RenderedMessage{
		Title: "Pagamento confirmado",
		Body:  "Parcela 1 confirmada.",
		HTML:  "<p>Parcela 1 confirmada.</p>",
	}, event)
	require.NoError(t, err)
	require.Len(t, mailer.sent, 1)

	msg := mailer.sent[0]
	rcpts, err := msg.GetRecipients()
	require.NoError(t, err)
	assert.Equal(t, []string{"ana@example.com"}, rcpts)
	assert.Equal(t, []string{"Pagamento confirmado"}, msg.GetGenHeader(mail.HeaderSubject))
	assert.Len(t, msg.GetParts(), 2, "plain text plus html alternative")
}

func TestEmailSender_TransportError(t *testing.T) {
	mailer := &captureMailer{err: errors.New("421 service not available")}
	s := NewEmailSender(mailer, "avisos@example.com", "Avisos", time.Second, zerolog.Nop())

	event := testEvent()
	err := s.Send(context.Background(), event.Recipient(), domain.RenderedMessage{Title: "t", Body: "b"}, event)
	assert.ErrorContains(t, err, "421")
}

func TestEmailSender_HardTimeout(t *testing.T) {
	mailer := &hangingMailer{release: make(chan struct{})}
	defer close(mailer.release)
	s := NewEmailSender(mailer, "avisos@example.com", "Avisos", 50*time.Millisecond, zerolog.Nop())

	event := testEvent()
	start := time.Now()
	err := s.Send(context.Background(), event.Recipient(), domain.RenderedMessage{Title: "t", Body: "b"}, event)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestEmailSender_InvalidAddress(t *testing.T) {
	s := NewEmailSender(&captureMailer{}, "avisos@example.com", "Avisos", time.Second, zerolog.Nop())

	err := s.Send(context.Background(), domain.Recipient{Email: "not-an-email"}, domain.RenderedMessage{Title: "t"}, testEvent())
	assert.ErrorIs(t, err, domain.ErrRecipientInvalid)
}

func TestEmailSender_NoAddress(t *testing.T) {
	s := NewEmailSender(&captureMailer{}, "avisos@example.com", "Avisos", time.Second, zerolog.Nop())

	err := s.Send(context.Background(), domain.Recipient{}, domain.RenderedMessage{Title: "t"}, testEvent())
	assert.ErrorIs(t, err, domain.ErrNoTargets)
}
