package payment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

type MockParser struct {
	mock.Mock
}

func (m *MockParser) ParseWebhook(payload []byte, signature string) (*models.PaymentEvent, error) {
	args := m.Called(payload, signature)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentEvent), args.Error(1)
}

type MockSubscriptions struct {
	mock.Mock
}

func (m *MockSubscriptions) result(args mock.Arguments) (*models.Subscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *MockSubscriptions) ActivatePaid(ctx context.Context, ev *models.PaymentEvent) (*models.Subscription, error) {
	return m.result(m.Called(ctx, ev))
}

func (m *MockSubscriptions) ExtendByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	return m.result(m.Called(ctx, stripeID))
}

func (m *MockSubscriptions) CancelByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	return m.result(m.Called(ctx, stripeID))
}

type MockIntents struct {
	mock.Mock
}

func (m *MockIntents) CompleteFromIntent(ctx context.Context, intentID string, ev *models.PaymentEvent) (*models.ParentAccount, error) {
	args := m.Called(ctx, intentID, ev)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ParentAccount), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

const intentID = "3f2b6c1e-8d4a-4e7b-9a51-2c0d7e6f9b13"

func checkout(kind string) *models.PaymentEvent {
	return &models.PaymentEvent{
		ID: "evt_1", Type: paymentprovider.EventCheckoutCompleted, SessionID: "cs_1",
		StripeSubscriptionID: "sub_1",
		Metadata:             map[string]string{"kind": kind, "intent_id": intentID, "plan": "student_premium", "billing_cycle": "monthly", "user_id": "u1"},
	}
}

func TestPaymentService_Handle(t *testing.T) {
	transient := errors.New("db down")

	tests := []struct {
		name       string
		event      *models.PaymentEvent
		setupMocks func(*MockSubscriptions, *MockIntents)
		wantErr    error
	}{
		{
			name:  "parent intent completed",
			event: checkout(paymentprovider.KindParentIntent),
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				i.On("CompleteFromIntent", mock.Anything, intentID, mock.Anything).
					Return(&models.ParentAccount{Parent: &models.User{ID: "p1"}}, nil).Once()
			},
		},
		{
			name:  "parent intent replayed",
			event: checkout(paymentprovider.KindParentIntent),
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				i.On("CompleteFromIntent", mock.Anything, intentID, mock.Anything).Return(nil, errs.ErrAlreadyProcessed).Once()
			},
		},
		{
			name:  "parent intent expired is acknowledged",
			event: checkout(paymentprovider.KindParentIntent),
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				i.On("CompleteFromIntent", mock.Anything, intentID, mock.Anything).Return(nil, errs.ErrIntentExpired).Once()
			},
		},
		{
			name:  "parent intent transient failure is retried",
			event: checkout(paymentprovider.KindParentIntent),
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				i.On("CompleteFromIntent", mock.Anything, intentID, mock.Anything).Return(nil, transient).Once()
			},
			wantErr: transient,
		},
		{
			name:  "parent intent without id is acknowledged",
			event: withIntentID(checkout(paymentprovider.KindParentIntent), ""),
		},
		{
			name:  "parent intent with malformed id is acknowledged",
			event: withIntentID(checkout(paymentprovider.KindParentIntent), "intent-1"),
		},
		{
			name:  "subscription checkout activates",
			event: checkout(paymentprovider.KindSubscription),
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				s.On("ActivatePaid", mock.Anything, mock.Anything).Return(&models.Subscription{ID: "s1"}, nil).Once()
			},
		},
		{
			name:  "first invoice is skipped",
			event: &models.PaymentEvent{Type: paymentprovider.EventInvoicePaid, StripeSubscriptionID: "sub_1", BillingReason: paymentprovider.BillingReasonCreate},
		},
		{
			name:  "cycle invoice extends",
			event: &models.PaymentEvent{Type: paymentprovider.EventInvoicePaid, StripeSubscriptionID: "sub_1", BillingReason: "subscription_cycle"},
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				s.On("ExtendByStripeID", mock.Anything, "sub_1").Return(&models.Subscription{ID: "s1"}, nil).Once()
			},
		},
		{
			name:  "invoice for unknown subscription",
			event: &models.PaymentEvent{Type: paymentprovider.EventInvoicePaid, StripeSubscriptionID: "sub_x", BillingReason: "subscription_cycle"},
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				s.On("ExtendByStripeID", mock.Anything, "sub_x").Return(nil, errs.ErrNotFound).Once()
			},
		},
		{
			name:  "subscription deleted cancels",
			event: &models.PaymentEvent{Type: paymentprovider.EventSubscriptionDeleted, StripeSubscriptionID: "sub_1"},
			setupMocks: func(s *MockSubscriptions, i *MockIntents) {
				s.On("CancelByStripeID", mock.Anything, "sub_1").Return(&models.Subscription{ID: "s1"}, nil).Once()
			},
		},
		{
			name:  "unknown event ignored",
			event: &models.PaymentEvent{Type: "customer.created"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			subs, intents := new(MockSubscriptions), new(MockIntents)
			if tt.setupMocks != nil {
				tt.setupMocks(subs, intents)
			}
			svc := New(new(MockParser), subs, intents, newNoopLogger())

			err := svc.Handle(context.Background(), tt.event)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			subs.AssertExpectations(t)
			intents.AssertExpectations(t)
			if tt.setupMocks == nil {
				intents.AssertNotCalled(t, "CompleteFromIntent", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func withIntentID(ev *models.PaymentEvent, id string) *models.PaymentEvent {
	ev.Metadata["intent_id"] = id
	return ev
}

func TestPaymentService_HandleWebhook_BadSignature(t *testing.T) {
	parser := new(MockParser)
	parser.On("ParseWebhook", []byte("{}"), "bad").
		Return(nil, fmt.Errorf("paymentprovider.ParseWebhook: %w", paymentprovider.ErrInvalidSignature))
	svc := New(parser, new(MockSubscriptions), new(MockIntents), newNoopLogger())

	err := svc.HandleWebhook(context.Background(), []byte("{}"), "bad")
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestPaymentService_HandleWebhook_Dispatches(t *testing.T) {
	parser, subs := new(MockParser), new(MockSubscriptions)
	ev := &models.PaymentEvent{ID: "evt_2", Type: paymentprovider.EventSubscriptionDeleted, StripeSubscriptionID: "sub_9"}
	parser.On("ParseWebhook", []byte("payload"), "sig").Return(ev, nil)
	subs.On("CancelByStripeID", mock.Anything, "sub_9").Return(&models.Subscription{ID: "s9"}, nil)

	err := New(parser, subs, new(MockIntents), newNoopLogger()).HandleWebhook(context.Background(), []byte("payload"), "sig")
	assert.NoError(t, err)
	subs.AssertExpectations(t)
}
