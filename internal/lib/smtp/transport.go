package smtp

import (
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
)

// implicitTLSPort порт, на котором TLS поднимается сразу, без STARTTLS.
const implicitTLSPort = "465"

// ErrNoStartTLS сервер не поддерживает STARTTLS, а передавать учётные данные открыто нельзя.
var ErrNoStartTLS = errors.New("smtp server does not support STARTTLS")

// Transport реализует SMTP транспорт. Порты перебираются по порядку,
// пока не удастся подключиться и авторизоваться.
type Transport struct {
	host    string
	user    string
	pass    string
	ports   []string
	timeout time.Duration
	log     *slog.Logger

	// dial подменяется в тестах.
	dial func(port string) (Client, error)
}

// smtpClientWrapper обертка для *smtp.Client, реализующая интерфейс Client.
type smtpClientWrapper struct {
	client *smtp.Client
}

func (w *smtpClientWrapper) Mail(from string) error {
	return w.client.Mail(from)
}

func (w *smtpClientWrapper) Rcpt(to string) error {
	return w.client.Rcpt(to)
}

func (w *smtpClientWrapper) Data() (io.WriteCloser, error) {
	return w.client.Data()
}

func (w *smtpClientWrapper) Quit() error {
	return w.client.Quit()
}

func (w *smtpClientWrapper) Close() error {
	return w.client.Close()
}

// NewTransport создает новый экземпляр Transport.
func NewTransport(cfg config.SMTP, log *slog.Logger) *Transport {
	t := &Transport{
		host:    cfg.SMTPHost,
		user:    cfg.SMTPUser,
		pass:    cfg.SMTPPass,
		ports:   cfg.SMTPPorts(),
		timeout: cfg.SMTPDialTimeout,
		log:     log,
	}
	t.dial = t.dialPort
	return t
}

// Connect устанавливает соединение с SMTP сервером, перебирая порты.
func (t *Transport) Connect() (Client, error) {
	const op = "smtp.Connect"
	if len(t.ports) == 0 {
		return nil, fmt.Errorf("%s: no ports configured", op)
	}
	var errs []error
	for _, port := range t.ports {
		client, err := t.dial(port)
		if err == nil {
			return client, nil
		}
		t.log.Warn("smtp port failed, trying next", slog.String("port", port), sl.Err(err))
		errs = append(errs, fmt.Errorf("port %s: %w", port, err))
	}
	return nil, fmt.Errorf("%s: %w", op, errors.Join(errs...))
}

func (t *Transport) dialPort(port string) (Client, error) {
	addr := net.JoinHostPort(t.host, port)
	tlsConfig := &tls.Config{
		ServerName: t.host,
		MinVersion: tls.VersionTLS12,
	}
	dialer := &net.Dialer{Timeout: t.timeout}

	var conn net.Conn
	var err error
	if port == implicitTLSPort {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	client, err := smtp.NewClient(conn, t.host)
	if err != nil {
		if closeErr := conn.Close(); closeErr != nil {
			t.log.Error("failed to close connection", sl.Err(closeErr))
		}
		return nil, fmt.Errorf("failed to create SMTP client: %w", err)
	}

	fail := func(err error) (Client, error) {
		if closeErr := client.Close(); closeErr != nil {
			t.log.Error("failed to close client", sl.Err(closeErr))
		}
		return nil, err
	}

	if port != implicitTLSPort {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fail(fmt.Errorf("failed to start TLS: %w", err))
			}
		} else if t.user != "" {
			return fail(ErrNoStartTLS)
		}
	}

	if t.user != "" {
		auth := smtp.PlainAuth("", t.user, t.pass, t.host)
		if err := client.Auth(auth); err != nil {
			return fail(fmt.Errorf("smtp auth failed: %w", err))
		}
	}

	return &smtpClientWrapper{client: client}, nil
}
