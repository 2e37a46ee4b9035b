package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"notification-engine/internal/core/domain"

	"github.com/rs/zerolog"
)

// HTTPClient interface for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Config holds the payment gateway API settings.
type Config struct {
	BaseURL     string
	AccessToken string
}

// paymentResource is the subset of the payment resource the engine reads.
type paymentResource struct {
	ID                json.Number `json:"id"`
	Status            string      `json:"status"`
	StatusDetail      string      `json:"status_detail"`
	ExternalReference string      `json:"external_reference"`
	DateApproved      *time.Time  `json:"date_approved"`
}

// MercadoPagoClient implements ports.PaymentGateway against the payments API.
type MercadoPagoClient struct {
	cfg        Config
	httpClient HTTPClient
	log        zerolog.Logger
}

// NewMercadoPagoClient creates a gateway client.
func NewMercadoPagoClient(cfg Config, httpClient HTTPClient, log zerolog.Logger) *MercadoPagoClient {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &MercadoPagoClient{cfg: cfg, httpClient: httpClient, log: log}
}

// GetPayment fetches the current state of a payment.
// Returns domain.ErrPaymentNotFound for unknown ids.
func (c *MercadoPagoClient) GetPayment(ctx context.Context, paymentID string) (*domain.WebhookNotification, error) {
	if strings.TrimSpace(paymentID) == "" {
		return nil, domain.ErrPaymentNotFound
	}

	endpoint := c.cfg.BaseURL + "/v1/payments/" + url.PathEscape(paymentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create payment request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch payment: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.ErrPaymentNotFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, fmt.Errorf("fetch payment %s: gateway returned status %d", paymentID, resp.StatusCode)
	}

	var p paymentResource
	dec := json.NewDecoder(io.LimitReader(resp.Body, 1<<20))
	dec.UseNumber()
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("decode payment: %w", err)
	}

	id := p.ID.String()
	if id == "" {
		id = paymentID
	}
	c.log.Debug().
		Str("payment_id", id).
		Str("status", p.Status).
		Str("status_detail", p.StatusDetail).
		Msg("gateway: payment fetched")

	return &domain.WebhookNotification{
		ExternalPaymentID: id,
		ExternalStatus:    p.Status,
		StatusDetail:      p.StatusDetail,
		ExternalReference: p.ExternalReference,
		DateApproved:      p.DateApproved,
	}, nil
}
