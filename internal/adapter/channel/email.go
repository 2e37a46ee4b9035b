package channel

import (
	"context"
	"fmt"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// Mailer sends one prepared message.
type Mailer interface {
	Send(ctx context.Context, msg *mail.Msg) error
}

// SMTPConfig configures the SMTP transport.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
	Timeout  time.Duration
	TLS      bool
}

// SMTPMailer is a Mailer that opens one SMTP session per message.
type SMTPMailer struct {
	cfg SMTPConfig
}

// NewSMTPMailer creates an SMTP Mailer.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send dials the server and delivers msg.
func (m *SMTPMailer) Send(ctx context.Context, msg *mail.Msg) error {
	opts := []mail.Option{
		mail.WithPort(m.cfg.Port),
		mail.WithTimeout(m.cfg.Timeout),
	}
	if m.cfg.TLS {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	}
	if m.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.cfg.Username),
			mail.WithPassword(m.cfg.Password),
		)
	}

	client, err := mail.NewClient(m.cfg.Host, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// EmailSender delivers a plain-text body with an HTML alternative.
// Each send is bounded by a hard timeout that holds even if the
// transport ignores context cancellation.
type EmailSender struct {
	mailer   Mailer
	from     string
	fromName string
	timeout  time.Duration
	log      zerolog.Logger
}

// NewEmailSender creates an email ChannelSender.
func NewEmailSender(mailer Mailer, from, fromName string, timeout time.Duration, log zerolog.Logger) *EmailSender {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &EmailSender{mailer: mailer, from: from, fromName: fromName, timeout: timeout, log: log}
}

// Channel implements ports.ChannelSender.
func (s *EmailSender) Channel() domain.Channel { return domain.ChannelEmail }

// Send implements ports.ChannelSender.
func (s *EmailSender) Send(ctx context.Context, recipient domain.Recipient, msg domain.RenderedMessage, event domain.DomainEvent) error {
	if recipient.Email == "" {
		return domain.ErrNoTargets
	}

	m, err := s.build(recipient, msg, event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- s.mailer.Send(ctx, m)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.log.Warn().
			Str("event_id", event.ID.String()).
			Dur("timeout", s.timeout).
			Msg("email: send abandoned after hard timeout")
		return fmt.Errorf("email send: %w", ctx.Err())
	}
}

func (s *EmailSender) build(recipient domain.Recipient, msg domain.RenderedMessage, event domain.DomainEvent) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.FromFormat(s.fromName, s.from); err != nil {
		return nil, fmt.Errorf("email from address: %w", err)
	}
	if err := m.To(recipient.Email); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrRecipientInvalid, err)
	}
	m.Subject(msg.Title)
	m.SetMessageIDWithValue(event.ID.String() + "@notification-engine")
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}
	return m, nil
}
