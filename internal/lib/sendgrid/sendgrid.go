// Package sendgrid отправляет письма через SendGrid v3 mail API.
package sendgrid

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	sg "github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// Mailer отправляет письма через SendGrid.
type Mailer struct {
	key  string
	host string
	from *sgmail.Email
	log  *slog.Logger
}

// NewMailer создаёт Mailer с ключом API и адресом отправителя.
func NewMailer(key, fromName, fromEmail string, log *slog.Logger) *Mailer {
	return &Mailer{
		key:  key,
		host: defaultHost,
		from: sgmail.NewEmail(fromName, fromEmail),
		log:  log,
	}
}

// WithHost переопределяет адрес API.
func (m *Mailer) WithHost(host string) *Mailer {
	m.host = host
	return m
}

func (m *Mailer) prepare(msg models.EmailMessage) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail("", to))
	}

	mail := sgmail.NewV3Mail()
	mail.SetFrom(m.from)
	mail.AddPersonalizations(p)
	mail.AddContent(sgmail.NewContent("text/html", msg.Body))
	if msg.Kind != "" {
		mail.AddCategories(msg.Kind)
	}
	return mail
}

// Send отправляет письмо. Ответ со статусом 4xx/5xx считается ошибкой.
func (m *Mailer) Send(ctx context.Context, msg models.EmailMessage) error {
	const op = "sendgrid.Send"
	if len(msg.To) == 0 {
		return fmt.Errorf("%s: no recipients", op)
	}

	req := sg.GetRequest(m.key, endpoint, m.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m.prepare(msg))

	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}
	res, err := sg.API(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("%s: unexpected status %d: %s", op, res.StatusCode, res.Body)
	}

	m.log.Info("email sent successfully", slog.String("op", op), slog.Any("to", msg.To), slog.String("kind", msg.Kind))
	return nil
}
