// Package payment обрабатывает события Stripe: завершение оплаты, оплату
// очередного счёта и удаление подписки.
package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// Parser проверяет подпись и разбирает событие.
type Parser interface {
	ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error)
}

// Subscriptions изменения подписок по событиям оплаты.
type Subscriptions interface {
	ActivatePaid(ctx context.Context, ev *models.PaymentEvent) (*models.Subscription, error)
	ExtendByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error)
	CancelByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error)
}

// Intents завершение регистрации родителя.
type Intents interface {
	CompleteFromIntent(ctx context.Context, intentID string, ev *models.PaymentEvent) (*models.ParentAccount, error)
}

// PaymentService сервис обработки событий оплаты.
type PaymentService struct {
	parser  Parser
	subs    Subscriptions
	intents Intents
	log     *slog.Logger
}

// New создаёт сервис.
func New(parser Parser, subs Subscriptions, intents Intents, log *slog.Logger) *PaymentService {
	return &PaymentService{parser: parser, subs: subs, intents: intents, log: log}
}

// HandleWebhook проверяет подпись и применяет событие. Ошибка подписи или
// формата возвращается как ErrInvalidInput; прочие ошибки означают, что Stripe
// должен повторить доставку.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := s.parser.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, paymentprovider.ErrInvalidSignature) {
			s.log.Warn("webhook signature rejected", sl.Err(err))
		}
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	err = s.Handle(ctx, ev)
	metrics.PaymentEvents.WithLabelValues(ev.Type, metrics.Result(err)).Inc()
	return err
}

// Handle применяет проверенное событие. Неизвестные события игнорируются.
func (s *PaymentService) Handle(ctx context.Context, ev *models.PaymentEvent) error {
	log := s.log.With(slog.String("event_id", ev.ID), slog.String("type", ev.Type))

	switch ev.Type {
	case paymentprovider.EventCheckoutCompleted:
		return s.checkoutCompleted(ctx, log, ev)

	case paymentprovider.EventInvoicePaid:
		if ev.BillingReason == paymentprovider.BillingReasonCreate || ev.StripeSubscriptionID == "" {
			log.Debug("invoice skipped", slog.String("billing_reason", ev.BillingReason))
			return nil
		}
		sub, err := s.subs.ExtendByStripeID(ctx, ev.StripeSubscriptionID)
		if errors.Is(err, errs.ErrNotFound) {
			log.Warn("invoice for unknown subscription", slog.String("stripe_subscription", ev.StripeSubscriptionID))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("subscription extended", slog.String("id", sub.ID), slog.Time("end_date", sub.EndDate))
		return nil

	case paymentprovider.EventSubscriptionDeleted:
		sub, err := s.subs.CancelByStripeID(ctx, ev.StripeSubscriptionID)
		if errors.Is(err, errs.ErrNotFound) {
			log.Warn("deletion of unknown subscription", slog.String("stripe_subscription", ev.StripeSubscriptionID))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("subscription cancelled", slog.String("id", sub.ID))
		return nil

	default:
		log.Debug("event ignored")
		return nil
	}
}

func (s *PaymentService) checkoutCompleted(ctx context.Context, log *slog.Logger, ev *models.PaymentEvent) error {
	switch kind := ev.Metadata["kind"]; kind {
	case paymentprovider.KindParentIntent:
		intentID := ev.Metadata["intent_id"]
		if err := uuid.Validate(intentID); err != nil {
			log.Error("checkout metadata rejected", slog.String("session_id", ev.SessionID),
				slog.String("intent_id", intentID), sl.Err(err))
			return nil
		}
		account, err := s.intents.CompleteFromIntent(ctx, intentID, ev)
		switch {
		case errors.Is(err, errs.ErrAlreadyProcessed):
			log.Info("intent already completed", slog.String("intent_id", intentID))
			return nil
		case errors.Is(err, errs.ErrIntentExpired), errors.Is(err, errs.ErrNotFound), errors.Is(err, errs.ErrDuplicateEmail):
			// оплата прошла, но аккаунт создать нельзя: нужен ручной возврат
			log.Error("paid intent cannot be completed", slog.String("intent_id", intentID),
				slog.String("session_id", ev.SessionID), sl.Err(err))
			return nil
		case err != nil:
			return err
		}
		log.Info("parent registered", slog.String("intent_id", intentID), slog.String("parent_id", account.Parent.ID))
		return nil

	case paymentprovider.KindSubscription:
		sub, err := s.subs.ActivatePaid(ctx, ev)
		if errors.Is(err, errs.ErrInvalidInput) || errors.Is(err, errs.ErrUnknownPlan) {
			log.Error("checkout metadata rejected", slog.String("session_id", ev.SessionID), sl.Err(err))
			return nil
		}
		if err != nil {
			return err
		}
		log.Info("subscription paid", slog.String("id", sub.ID), slog.String("plan", sub.Plan))
		return nil

	default:
		log.Warn("checkout without known kind", slog.String("kind", kind), slog.String("session_id", ev.SessionID))
		return nil
	}
}
