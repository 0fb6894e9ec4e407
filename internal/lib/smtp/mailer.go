package smtp

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// Mailer отправляет письма через TransportInterface.
type Mailer struct {
	transport TransportInterface
	from      string
	log       *slog.Logger
}

// NewMailer создаёт Mailer с адресом отправителя from.
func NewMailer(transport TransportInterface, from string, log *slog.Logger) *Mailer {
	return &Mailer{transport: transport, from: from, log: log}
}

// Send отправляет письмо в формате HTML.
func (m *Mailer) Send(ctx context.Context, msg models.EmailMessage) error {
	const op = "smtp.Send"
	log := m.log.With(slog.String("op", op))

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("%s: no recipients", op)
	}

	client, err := m.transport.Connect()
	if err != nil {
		log.Error("failed to connect to SMTP server", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = client.Close()
	}()

	if err := client.Mail(m.from); err != nil {
		log.Error("failed to set MAIL FROM", slog.String("from", m.from), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	for _, addr := range msg.To {
		if err := client.Rcpt(addr); err != nil {
			log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return fmt.Errorf("%s: %w", op, err)
		}
	}

	wc, err := client.Data()
	if err != nil {
		log.Error("failed to get Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if _, err := wc.Write([]byte(m.build(msg))); err != nil {
		log.Error("failed to write email body", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := wc.Close(); err != nil {
		log.Error("failed to close Data writer", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	if err := client.Quit(); err != nil {
		log.Error("failed to quit SMTP client", sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}

	log.Info("email sent successfully", slog.Any("to", msg.To), slog.String("kind", msg.Kind))
	return nil
}

func (m *Mailer) build(msg models.EmailMessage) string {
	return strings.Join([]string{
		"From: " + m.from,
		"To: " + strings.Join(msg.To, ", "),
		"Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject),
		"Date: " + time.Now().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=\"UTF-8\"",
		"",
		msg.Body,
	}, "\r\n")
}
