// Package sender доставляет письма из очереди через настроенного почтового провайдера.
package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/schoolhub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

// Mailer отправляет письмо.
type Mailer interface {
	Send(ctx context.Context, msg models.EmailMessage) error
}

// SenderService обработчик очереди писем.
type SenderService struct {
	mailer   Mailer
	provider string
	log      *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService. provider используется как метка метрик.
func NewSenderService(mailer Mailer, provider string, log *slog.Logger) *SenderService {
	return &SenderService{mailer: mailer, provider: provider, log: log}
}

// HandleMessage разбирает письмо из очереди и отправляет его. Неразбираемое или
// пустое сообщение отбрасывается через rabbitmq.ErrPermanent, ошибка отправки
// возвращает сообщение в очередь.
func (s *SenderService) HandleMessage(ctx context.Context, body []byte) error {
	const op = "sender.HandleMessage"
	var msg models.EmailMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: %w: %v", op, rabbitmq.ErrPermanent, err)
	}
	if len(msg.To) == 0 {
		return fmt.Errorf("%s: %w: no recipients", op, rabbitmq.ErrPermanent)
	}

	err := s.mailer.Send(ctx, msg)
	metrics.EmailsDelivered.WithLabelValues(s.provider, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Error("failed to send email", slog.String("kind", msg.Kind), sl.Err(err))
		return fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("email sent", slog.String("kind", msg.Kind), slog.Any("to", msg.To))
	return nil
}
