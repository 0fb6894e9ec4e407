// Package notification создаёт уведомления внутри приложения и отправляет
// письма и push-события через брокер сообщений.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/schoolhub/internal/lib/rabbitmq"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// Repository хранилище уведомлений.
type Repository interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}

// Publisher публикует сообщения в обменник уведомлений.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, msg any) error
}

// Service сервис уведомлений.
type Service struct {
	repo Repository
	pub  Publisher
	log  *slog.Logger
}

// NewService создаёт сервис уведомлений.
func NewService(repo Repository, pub Publisher, log *slog.Logger) *Service {
	return &Service{repo: repo, pub: pub, log: log}
}

// Notify сохраняет уведомление и отправляет владельцу событие notification:new.
// Ошибка публикации только логируется: уведомление уже сохранено.
func (s *Service) Notify(ctx context.Context, n *models.Notification) error {
	const op = "notification.Notify"
	if err := s.repo.CreateNotification(ctx, n); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.NotificationsSent.WithLabelValues("inapp", n.Type).Inc()

	if err := s.Push(ctx, models.PushEvent{Event: models.EventNotificationNew, UserID: n.UserID, Data: n}); err != nil {
		s.log.Warn("failed to publish notification push", slog.String("op", op),
			slog.String("notification_id", n.ID), sl.Err(err))
	}
	return nil
}

// NotifyData собирает уведомление с произвольными данными и сохраняет его.
func (s *Service) NotifyData(ctx context.Context, userID string, tenantID *string, typ, title, message string, data any) error {
	n := &models.Notification{UserID: userID, TenantID: tenantID, Type: typ, Title: title, Message: message}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("notification.NotifyData: %w", err)
		}
		n.Data = raw
	}
	return s.Notify(ctx, n)
}

// Email формирует письмо по шаблону и публикует его в очередь отправки.
func (s *Service) Email(ctx context.Context, to []string, tmpl string, data map[string]any) error {
	const op = "notification.Email"
	if len(to) == 0 {
		return nil
	}
	subject, body, err := Render(tmpl, data)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	msg := models.EmailMessage{To: to, Subject: subject, Body: body, Kind: tmpl}
	if err := s.pub.Publish(ctx, rabbitmq.RoutingKeyEmail, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	metrics.NotificationsSent.WithLabelValues("email", tmpl).Inc()
	return nil
}

// TryEmail как Email, но ошибка только логируется.
func (s *Service) TryEmail(ctx context.Context, to []string, tmpl string, data map[string]any) {
	if err := s.Email(ctx, to, tmpl, data); err != nil {
		s.log.Error("failed to queue email", slog.String("template", tmpl), sl.Err(err))
	}
}

// Push публикует событие для подключённых клиентов.
func (s *Service) Push(ctx context.Context, ev models.PushEvent) error {
	if err := s.pub.Publish(ctx, rabbitmq.RoutingKeyPush, ev); err != nil {
		return fmt.Errorf("notification.Push: %w", err)
	}
	return nil
}

// List возвращает уведомления пользователя.
func (s *Service) List(ctx context.Context, filter models.NotificationFilter) ([]*models.Notification, error) {
	list, err := s.repo.ListNotifications(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("notification.List: %w", err)
	}
	return list, nil
}

// UnreadCount возвращает число непрочитанных уведомлений.
func (s *Service) UnreadCount(ctx context.Context, userID string) (int, error) {
	n, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("notification.UnreadCount: %w", err)
	}
	return n, nil
}

// MarkRead отмечает уведомление прочитанным. Чужое уведомление неотличимо от отсутствующего.
func (s *Service) MarkRead(ctx context.Context, id, userID string) error {
	err := s.repo.MarkRead(ctx, id, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return errs.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("notification.MarkRead: %w", err)
	}
	return nil
}

// MarkAllRead отмечает все уведомления пользователя прочитанными.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("notification.MarkAllRead: %w", err)
	}
	return n, nil
}
