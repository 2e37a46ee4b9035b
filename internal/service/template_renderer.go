package service

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"strings"
	"text/template"
	"time"

	"notification-engine/internal/core/domain"
)

// messageTemplate holds the text templates for one event type.
type messageTemplate struct {
	title    *template.Template
	body     *template.Template
	channels []domain.Channel
}

type templateSource struct {
	title    string
	body     string
	channels []domain.Channel
}

// Reminders go out by e-mail only to avoid push storms when the scheduler
// emits a large batch.
var templateSources = map[domain.EventType]templateSource{
	domain.EventPaymentValidated: {
		title: "Pagamento confirmado",
		body:  `Recebemos o pagamento da parcela {{num .installment_number}}{{with .installment_count}} de {{num .}}{{end}} da sua inscrição em {{or .event_name "seu evento"}}{{with .amount}} no valor de {{money .}}{{end}}.`,
	},
	domain.EventPaymentRejected: {
		title: "Pagamento não aprovado",
		body:  `O pagamento da parcela {{num .installment_number}} da sua inscrição em {{or .event_name "seu evento"}} não foi aprovado. Tente novamente com outro meio de pagamento.`,
	},
	domain.EventPaymentReinstated: {
		title: "Parcela reaberta",
		body:  `A parcela {{num .installment_number}} da sua inscrição em {{or .event_name "seu evento"}} voltou a ficar pendente e aguarda pagamento.`,
	},
	domain.EventPaymentReminder: {
		title:    "Lembrete de pagamento",
		body:     `A parcela {{num .installment_number}}{{with .installment_count}} de {{num .}}{{end}} da sua inscrição em {{or .event_name "seu evento"}}{{with .amount}} no valor de {{money .}}{{end}} vence em {{date .due_date}}.`,
		channels: []domain.Channel{domain.ChannelEmail},
	},
	domain.EventRegistrationCreated: {
		title: "Inscrição recebida",
		body:  `Sua inscrição em {{or .event_name "seu evento"}} foi registrada{{with .installment_count}} com {{num .}} parcela(s){{end}}. Ela será confirmada após o pagamento.`,
	},
	domain.EventRegistrationConfirmed: {
		title: "Inscrição confirmada",
		body:  `Todas as parcelas foram pagas. Sua inscrição em {{or .event_name "seu evento"}} está confirmada.`,
	},
	domain.EventRegistrationCancelled: {
		title: "Inscrição cancelada",
		body:  `Sua inscrição em {{or .event_name "seu evento"}} foi cancelada.{{with .reason}} Motivo: {{.}}.{{end}}`,
	},
	domain.EventRegistrationUpdated: {
		title: "Inscrição atualizada",
		body:  `O status da sua inscrição em {{or .event_name "seu evento"}} mudou para {{or .status "pendente"}}.`,
	},
	domain.EventCredentialExpiringSoon: {
		title: "Sua credencial está perto de expirar",
		body:  `Sua credencial{{with .credential_name}} {{.}}{{end}} expira em {{date .expires_at}}. Renove para continuar com acesso.`,
	},
}

var htmlLayout = htmltemplate.Must(htmltemplate.New("layout").Parse(
	`<!DOCTYPE html><html><body style="font-family:sans-serif">` +
		`<h2>{{.Title}}</h2><p>{{.Body}}</p>` +
		`</body></html>`))

var templateFuncs = template.FuncMap{
	"num":   formatNumber,
	"money": formatMoney,
	"date":  formatDate,
}

// TemplateRenderer implements ports.TemplateRenderer with compiled
// text/template bodies and a shared HTML layout. It is safe for concurrent use.
type TemplateRenderer struct {
	templates map[domain.EventType]messageTemplate
}

// NewTemplateRenderer compiles the built-in templates.
func NewTemplateRenderer() *TemplateRenderer {
	r := &TemplateRenderer{templates: make(map[domain.EventType]messageTemplate, len(templateSources))}
	for eventType, src := range templateSources {
		channels := src.channels
		if len(channels) == 0 {
			channels = domain.AllChannels
		}
		r.templates[eventType] = messageTemplate{
			title:    mustParse(string(eventType)+".title", src.title),
			body:     mustParse(string(eventType)+".body", src.body),
			channels: channels,
		}
	}
	return r
}

// Supports reports whether a template is registered for eventType.
func (r *TemplateRenderer) Supports(eventType domain.EventType) bool {
	_, ok := r.templates[eventType]
	return ok
}

// DefaultChannels returns the channel set used when an event requests none.
func (r *TemplateRenderer) DefaultChannels(eventType domain.EventType) []domain.Channel {
	tpl, ok := r.templates[eventType]
	if !ok {
		return nil
	}
	out := make([]domain.Channel, len(tpl.channels))
	copy(out, tpl.channels)
	return out
}

// Render produces title, plain-text body and HTML body. The output depends only
// on (eventType, payload).
func (r *TemplateRenderer) Render(eventType domain.EventType, payload map[string]any) (domain.RenderedMessage, error) {
	tpl, ok := r.templates[eventType]
	if !ok {
		return domain.RenderedMessage{}, fmt.Errorf("%w: %s", domain.ErrUnknownEventType, eventType)
	}
	if payload == nil {
		payload = map[string]any{}
	}

	title, err := execute(tpl.title, payload)
	if err != nil {
		return domain.RenderedMessage{}, fmt.Errorf("render %s title: %w", eventType, err)
	}
	body, err := execute(tpl.body, payload)
	if err != nil {
		return domain.RenderedMessage{}, fmt.Errorf("render %s body: %w", eventType, err)
	}

	var html bytes.Buffer
	if err := htmlLayout.Execute(&html, struct{ Title, Body string }{title, body}); err != nil {
		return domain.RenderedMessage{}, fmt.Errorf("render %s html: %w", eventType, err)
	}

	return domain.RenderedMessage{Title: title, Body: body, HTML: html.String()}, nil
}

// Missing payload keys evaluate to nil so "or" and "with" can supply fallbacks.
func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Option("missingkey=zero").Funcs(templateFuncs).Parse(text))
}

func execute(t *template.Template, payload map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, payload); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

// toInt64 normalises numbers that arrive as Go ints or as JSON float64.
func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case float32:
		return int64(n), true
	}
	return 0, false
}

func formatNumber(v any) string {
	if n, ok := toInt64(v); ok {
		return fmt.Sprintf("%d", n)
	}
	if v == nil {
		return "?"
	}
	return fmt.Sprint(v)
}

// formatMoney renders an amount in cents as "R$ 1.234,56".
func formatMoney(v any) string {
	cents, ok := toInt64(v)
	if !ok {
		return fmt.Sprint(v)
	}
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	units := fmt.Sprintf("%d", cents/100)
	var grouped strings.Builder
	for i, c := range units {
		if i > 0 && (len(units)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(c)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, grouped.String(), cents%100)
}

func formatDate(v any) string {
	switch d := v.(type) {
	case time.Time:
		return d.Format("02/01/2006")
	case *time.Time:
		if d != nil {
			return d.Format("02/01/2006")
		}
	case string:
		if t, err := time.Parse(time.RFC3339, d); err == nil {
			return t.Format("02/01/2006")
		}
		if t, err := time.Parse("2006-01-02", d); err == nil {
			return t.Format("02/01/2006")
		}
		return d
	}
	return "data não informada"
}
