// Package sender собирает процесс доставки писем из очереди email.
package sender

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sendgrid"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/lib/smtp"
	senderservice "github.com/magabrotheeeer/schoolhub/internal/services/sender"
)

// Провайдеры отправки писем.
const (
	ProviderSMTP     = "smtp"
	ProviderSendGrid = "sendgrid"
)

// App потребитель очереди писем.
type App struct {
	conn          *amqp.Connection
	ch            *amqp.Channel
	senderService *senderservice.SenderService
	logger        *slog.Logger
}

// NewMailer выбирает способ отправки по cfg.Mail.Provider.
func NewMailer(cfg *config.Config, logger *slog.Logger) (senderservice.Mailer, error) {
	switch cfg.Provider {
	case ProviderSMTP:
		return smtp.NewMailer(smtp.NewTransport(cfg.SMTP, logger), cfg.From, logger), nil
	case ProviderSendGrid:
		if cfg.SendGridAPIKey == "" {
			return nil, errors.New("sendgrid_api_key is required for sendgrid provider")
		}
		return sendgrid.NewMailer(cfg.SendGridAPIKey, cfg.FromName, cfg.From, logger), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Provider)
	}
}

// New подключается к брокеру и готовит отправителя писем.
func New(_ context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	mailer, err := NewMailer(cfg, logger)
	if err != nil {
		return nil, err
	}

	conn, err := rabbitmq.Connect(cfg.RabbitMQURL, cfg.RabbitMQMaxRetries, cfg.RabbitMQRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("failed to connect RabbitMQ: %w", err)
	}
	ch, err := rabbitmq.SetupChannel(conn, rabbitmq.GetNotificationQueues())
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to setup RabbitMQ channel: %w", err)
	}

	return &App{
		conn:          conn,
		ch:            ch,
		senderService: senderservice.NewSenderService(mailer, cfg.Provider, logger),
		logger:        logger,
	}, nil
}

// Run читает очередь писем до отмены ctx.
func (a *App) Run(ctx context.Context) error {
	err := rabbitmq.ConsumerMessage(ctx, a.ch, rabbitmq.QueueEmail, a.logger, a.senderService.HandleMessage)
	if err != nil {
		a.logger.Error("failed to start email consumer", sl.Err(err))
		return err
	}

	<-ctx.Done()
	a.logger.Info("sender service shutting down gracefully")

	if err := a.ch.Close(); err != nil {
		a.logger.Error("failed to close channel", sl.Err(err))
	}
	if err := a.conn.Close(); err != nil {
		a.logger.Error("failed to close connection", sl.Err(err))
	}
	return nil
}
