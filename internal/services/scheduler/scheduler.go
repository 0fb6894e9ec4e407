// Package scheduler выполняет периодические задачи: напоминания об окончании
// подписок, перевод просроченных подписок в expired и очистку намерений родителей.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/metrics"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/notification"
)

const day = 24 * time.Hour

// Repository выборки и изменения, нужные задачам.
type Repository interface {
	ListExpiring(ctx context.Context, now, until time.Time) ([]*models.ExpiringSubscription, error)
	RecordExpirationNotification(ctx context.Context, subscriptionID string, daysBefore int, endDate time.Time) (bool, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]*models.ExpiringSubscription, error)
	ExpirePendingIntents(ctx context.Context, now time.Time) (int64, error)
}

// Notifier доставляет уведомления, письма и push-события.
type Notifier interface {
	NotifyData(ctx context.Context, userID string, tenantID *string, typ, title, message string, data any) error
	TryEmail(ctx context.Context, to []string, tmpl string, data map[string]any)
	Push(ctx context.Context, ev models.PushEvent) error
}

// Subscriptions сброс кеша изменённых подписок.
type Subscriptions interface {
	Invalidate(ctx context.Context, sub *models.Subscription)
}

// SchedulerService исполнитель периодических задач.
type SchedulerService struct {
	repo     Repository
	notifier Notifier
	subs     Subscriptions
	offsets  []int
	interval time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewSchedulerService создаёт планировщик. offsets дни до окончания, за которые
// отправляются напоминания; 0 означает, что подписка заканчивается в ближайшие сутки.
func NewSchedulerService(repo Repository, notifier Notifier, subs Subscriptions, offsets []int,
	interval time.Duration, log *slog.Logger) *SchedulerService {
	return &SchedulerService{
		repo: repo, notifier: notifier, subs: subs, offsets: offsets,
		interval: interval, log: log, now: time.Now,
	}
}

// Run выполняет задачи сразу и затем каждые interval до отмены ctx.
func (s *SchedulerService) Run(ctx context.Context) {
	s.RunOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce выполняет все задачи по одному разу.
func (s *SchedulerService) RunOnce(ctx context.Context) {
	s.track("reminders", func() (int64, error) {
		n, err := s.SendReminders(ctx)
		return int64(n), err
	})
	s.track("expiry_sweep", func() (int64, error) {
		n, err := s.SweepExpired(ctx)
		return int64(n), err
	})
	s.track("intent_purge", func() (int64, error) {
		return s.PurgeIntents(ctx)
	})
}

func (s *SchedulerService) track(job string, fn func() (int64, error)) {
	n, err := fn()
	metrics.SchedulerRuns.WithLabelValues(job, metrics.Result(err)).Inc()
	if err != nil {
		s.log.Error("scheduler job failed", slog.String("job", job), sl.Err(err))
		return
	}
	if n > 0 {
		s.log.Info("scheduler job done", slog.String("job", job), slog.Int64("count", n))
	}
}

// SendReminders отправляет напоминания подпискам, до окончания которых осталось
// ровно offset полных суток. Повторная отправка для того же срока исключается
// отметкой в хранилище. Возвращает число отправленных напоминаний.
func (s *SchedulerService) SendReminders(ctx context.Context) (int, error) {
	const op = "scheduler.SendReminders"
	if len(s.offsets) == 0 {
		return 0, nil
	}
	now := s.now().UTC()
	until := now.Add(time.Duration(slices.Max(s.offsets)+1) * day)

	list, err := s.repo.ListExpiring(ctx, now, until)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	sent := 0
	for _, item := range list {
		sub := item.Subscription
		days := sub.DaysUntilExpiry(now)
		if !slices.Contains(s.offsets, days) {
			continue
		}
		fresh, err := s.repo.RecordExpirationNotification(ctx, sub.ID, days, sub.EndDate)
		if err != nil {
			s.log.Error("failed to record reminder", slog.String("subscription_id", sub.ID), sl.Err(err))
			continue
		}
		if !fresh {
			continue
		}
		s.remind(ctx, item, days)
		sent++
	}
	return sent, nil
}

func (s *SchedulerService) remind(ctx context.Context, item *models.ExpiringSubscription, days int) {
	sub := item.Subscription
	end := sub.EndDate.Format(time.DateOnly)
	message := fmt.Sprintf("Your %s subscription ends on %s.", sub.Plan, end)
	if days == 0 {
		message = fmt.Sprintf("Your %s subscription ends today.", sub.Plan)
	}
	data := map[string]any{
		"subscriptionId":  sub.ID,
		"plan":            sub.Plan,
		"endDate":         end,
		"daysUntilExpiry": days,
	}

	if item.OwnerID == "" {
		s.log.Warn("expiring subscription has no owner", slog.String("subscription_id", sub.ID))
		return
	}
	if err := s.notifier.NotifyData(ctx, item.OwnerID, sub.TenantID, models.NotificationSubscriptionExpiring,
		"Subscription expiring", message, data); err != nil {
		s.log.Warn("failed to create reminder", slog.String("user_id", item.OwnerID), sl.Err(err))
	}
	s.notifier.TryEmail(ctx, []string{item.OwnerEmail}, notification.TemplateSubscriptionExpiring, map[string]any{
		"Name": item.OwnerName, "Plan": sub.Plan, "EndDate": end, "DaysLeft": days,
	})

	ev := models.PushEvent{Event: models.EventSubscriptionExpiration, UserID: item.OwnerID, Data: data}
	if sub.TenantID != nil {
		ev.TenantID = *sub.TenantID
	}
	if err := s.notifier.Push(ctx, ev); err != nil {
		s.log.Warn("failed to push reminder", slog.String("user_id", item.OwnerID), sl.Err(err))
	}
}

// SweepExpired переводит в expired подписки с истёкшим сроком и извещает владельцев.
func (s *SchedulerService) SweepExpired(ctx context.Context) (int, error) {
	const op = "scheduler.SweepExpired"
	list, err := s.repo.ExpireOverdue(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	for _, item := range list {
		sub := item.Subscription
		s.subs.Invalidate(ctx, sub)
		if item.OwnerID == "" {
			continue
		}
		end := sub.EndDate.Format(time.DateOnly)
		if err := s.notifier.NotifyData(ctx, item.OwnerID, sub.TenantID, models.NotificationSubscriptionExpired,
			"Subscription expired", fmt.Sprintf("Your %s subscription expired on %s.", sub.Plan, end),
			map[string]string{"subscriptionId": sub.ID}); err != nil {
			s.log.Warn("failed to notify expiry", slog.String("user_id", item.OwnerID), sl.Err(err))
		}
		s.notifier.TryEmail(ctx, []string{item.OwnerEmail}, notification.TemplateSubscriptionExpired, map[string]any{
			"Name": item.OwnerName, "Plan": sub.Plan, "EndDate": end,
		})
	}
	return len(list), nil
}

// PurgeIntents помечает просроченные намерения регистрации родителей.
func (s *SchedulerService) PurgeIntents(ctx context.Context) (int64, error) {
	n, err := s.repo.ExpirePendingIntents(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("scheduler.PurgeIntents: %w", err)
	}
	return n, nil
}
