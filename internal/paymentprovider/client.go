// Package paymentprovider адаптер Stripe: создание сессий оплаты и разбор
// подписанных webhook-событий.
package paymentprovider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// Типы событий, которые обрабатывает платформа.
const (
	EventCheckoutCompleted   = "checkout.session.completed"
	EventInvoicePaid         = "invoice.paid"
	EventSubscriptionDeleted = "customer.subscription.deleted"
)

// BillingReasonCreate причина первого счёта подписки; период по нему продлевает checkout.
const BillingReasonCreate = "subscription_create"

// Значения metadata["kind"] сессии оплаты.
const (
	KindParentIntent = "parent_intent"
	KindSubscription = "subscription"
)

// ErrInvalidSignature подпись webhook не прошла проверку.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CheckoutRequest параметры сессии оплаты плана.
type CheckoutRequest struct {
	Plan     string
	Title    string
	Cycle    string // monthly | yearly
	Amount   int64  // в центах
	Email    string
	Metadata map[string]string
}

// Session созданная сессия оплаты.
type Session struct {
	ID  string
	URL string
}

// Client клиент Stripe.
type Client struct {
	api           *client.API
	webhookSecret string
	successURL    string
	cancelURL     string
	currency      string
}

// Option настраивает Client.
type Option func(*stripe.BackendConfig)

// WithBackendURL направляет запросы к API на указанный адрес.
func WithBackendURL(url string) Option {
	return func(c *stripe.BackendConfig) {
		c.URL = stripe.String(url)
	}
}

// NewClient создаёт клиента Stripe по настройкам cfg.
func NewClient(cfg config.Stripe, opts ...Option) *Client {
	bc := &stripe.BackendConfig{
		MaxNetworkRetries: stripe.Int64(2),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
	}
	for _, opt := range opts {
		opt(bc)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, bc)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})
	return &Client{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		successURL:    cfg.SuccessURL,
		cancelURL:     cfg.CancelURL,
		currency:      cfg.Currency,
	}
}

func interval(cycle string) string {
	if cycle == "yearly" {
		return string(stripe.PriceRecurringIntervalYear)
	}
	return string(stripe.PriceRecurringIntervalMonth)
}

// CreateCheckout создаёт сессию оплаты подписки. Metadata копируется и в сессию,
// и в подписку Stripe, чтобы события подписки можно было сопоставить с платформой.
func (c *Client) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Session, error) {
	const op = "paymentprovider.CreateCheckout"

	params := &stripe.CheckoutSessionParams{
		Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		SuccessURL: stripe.String(c.successURL),
		CancelURL:  stripe.String(c.cancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			Quantity: stripe.Int64(1),
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.currency),
				UnitAmount: stripe.Int64(req.Amount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.Title),
				},
				Recurring: &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
					Interval: stripe.String(interval(req.Cycle)),
				},
			},
		}},
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: req.Metadata,
		},
	}
	if req.Email != "" {
		params.CustomerEmail = stripe.String(req.Email)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := c.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &Session{ID: s.ID, URL: s.URL}, nil
}

// ParseWebhook проверяет подпись заголовка Stripe-Signature и разбирает событие.
// Для неизвестных типов возвращается событие только с ID и Type.
func (c *Client) ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	const op = "paymentprovider.ParseWebhook"

	if err := webhook.ValidatePayload(payload, signature, c.webhookSecret); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", op, ErrInvalidSignature, err)
	}
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := &models.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil {
		return out, nil
	}

	switch out.Type {
	case EventCheckoutCompleted:
		var s stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
			return nil, fmt.Errorf("%s: checkout session: %w", op, err)
		}
		out.SessionID = s.ID
		out.Metadata = s.Metadata
		if s.Customer != nil {
			out.CustomerID = s.Customer.ID
		}
		if s.Subscription != nil {
			out.StripeSubscriptionID = s.Subscription.ID
		}
	case EventInvoicePaid:
		var inv stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
			return nil, fmt.Errorf("%s: invoice: %w", op, err)
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.StripeSubscriptionID = inv.Subscription.ID
		}
		out.BillingReason = string(inv.BillingReason)
	case EventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%s: subscription: %w", op, err)
		}
		out.StripeSubscriptionID = sub.ID
		out.Metadata = sub.Metadata
		if sub.Customer != nil {
			out.CustomerID = sub.Customer.ID
		}
	}
	return out, nil
}
