package sender

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/schoolhub/internal/config"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sendgrid"
	"github.com/magabrotheeeer/schoolhub/internal/lib/smtp"
)

func TestNewMailer(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("smtp", func(t *testing.T) {
		cfg := &config.Config{Mail: config.Mail{Provider: ProviderSMTP, From: "no-reply@schoolhub.local"}}
		m, err := NewMailer(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &smtp.Mailer{}, m)
	})

	t.Run("sendgrid", func(t *testing.T) {
		cfg := &config.Config{Mail: config.Mail{Provider: ProviderSendGrid, SendGridAPIKey: "SG.key"}}
		m, err := NewMailer(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &sendgrid.Mailer{}, m)
	})

	t.Run("sendgrid without key", func(t *testing.T) {
		cfg := &config.Config{Mail: config.Mail{Provider: ProviderSendGrid}}
		_, err := NewMailer(cfg, logger)
		assert.Error(t, err)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := &config.Config{Mail: config.Mail{Provider: "pigeon"}}
		_, err := NewMailer(cfg, logger)
		assert.ErrorContains(t, err, "pigeon")
	})
}
