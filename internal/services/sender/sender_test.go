package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/schoolhub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) Send(ctx context.Context, msg models.EmailMessage) error {
	return m.Called(ctx, msg).Error(0)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestSenderService_HandleMessage(t *testing.T) {
	smtpErr := errors.New("connection refused")

	tests := []struct {
		name          string
		body          string
		setupMocks    func(*MockMailer)
		wantErr       error
		wantPermanent bool
	}{
		{
			name: "sent",
			body: `{"to":["a@mail.com"],"subject":"Hi","body":"<p>Hi</p>","kind":"student_welcome"}`,
			setupMocks: func(m *MockMailer) {
				m.On("Send", mock.Anything, models.EmailMessage{
					To: []string{"a@mail.com"}, Subject: "Hi", Body: "<p>Hi</p>", Kind: "student_welcome",
				}).Return(nil).Once()
			},
		},
		{
			name: "transport failure is retried",
			body: `{"to":["a@mail.com"],"subject":"Hi","body":"x"}`,
			setupMocks: func(m *MockMailer) {
				m.On("Send", mock.Anything, mock.Anything).Return(smtpErr).Once()
			},
			wantErr: smtpErr,
		},
		{
			name:          "broken json is dropped",
			body:          `{"to":`,
			wantErr:       rabbitmq.ErrPermanent,
			wantPermanent: true,
		},
		{
			name:          "no recipients is dropped",
			body:          `{"to":[],"subject":"Hi"}`,
			wantErr:       rabbitmq.ErrPermanent,
			wantPermanent: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mailer := new(MockMailer)
			if tt.setupMocks != nil {
				tt.setupMocks(mailer)
			}
			svc := NewSenderService(mailer, "smtp", newNoopLogger())

			err := svc.HandleMessage(context.Background(), []byte(tt.body))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			if !tt.wantPermanent {
				assert.NotErrorIs(t, err, rabbitmq.ErrPermanent)
			}
			mailer.AssertExpectations(t)
		})
	}
}

func TestSenderService_CountsDeliveries(t *testing.T) {
	mailer := new(MockMailer)
	mailer.On("Send", mock.Anything, mock.Anything).Return(nil)
	before := testutil.ToFloat64(metrics.EmailsDelivered.WithLabelValues("sendgrid", "ok"))

	svc := NewSenderService(mailer, "sendgrid", newNoopLogger())
	assert.NoError(t, svc.HandleMessage(context.Background(), []byte(`{"to":["b@mail.com"],"subject":"s","body":"b"}`)))

	assert.Equal(t, before+1, testutil.ToFloat64(metrics.EmailsDelivered.WithLabelValues("sendgrid", "ok")))
}
