// Package renewal обрабатывает заявки на продление подписок: подачу владельцем
// и рассмотрение супер-администратором.
package renewal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/plans"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/services/notification"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// Repository хранилище заявок.
type Repository interface {
	CreateRenewalRequest(ctx context.Context, r *models.SubscriptionRenewalRequest) error
	ListRenewalRequests(ctx context.Context, status string) ([]*models.SubscriptionRenewalRequest, error)
	ApproveRenewal(ctx context.Context, id, reviewerID, adminNote string,
		apply func(r *models.SubscriptionRenewalRequest, sub *models.Subscription) error,
	) (*models.SubscriptionRenewalRequest, *models.Subscription, error)
	RejectRenewal(ctx context.Context, id, reviewerID, adminNote string) (*models.SubscriptionRenewalRequest, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Subscriptions доступ к подписке владельца.
type Subscriptions interface {
	Managed(ctx context.Context, id models.Identity) (*models.Subscription, error)
	Invalidate(ctx context.Context, sub *models.Subscription)
}

// Notifier отправляет уведомления и письма.
type Notifier interface {
	NotifyData(ctx context.Context, userID string, tenantID *string, typ, title, message string, data any) error
	TryEmail(ctx context.Context, to []string, tmpl string, data map[string]any)
}

// Service сервис заявок на продление.
type Service struct {
	repo     Repository
	subs     Subscriptions
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// NewService создаёт сервис.
func NewService(repo Repository, subs Subscriptions, notifier Notifier, log *slog.Logger) *Service {
	return &Service{repo: repo, subs: subs, notifier: notifier, log: log, now: time.Now}
}

// Request подаёт заявку на продление подписки пользователя.
func (s *Service) Request(ctx context.Context, id models.Identity, in models.RenewalRequestInput) (*models.SubscriptionRenewalRequest, error) {
	const op = "renewal.Request"
	if _, err := plans.Get(in.Plan); err != nil {
		return nil, errs.ErrUnknownPlan
	}
	if _, err := plans.Price(in.Plan, in.BillingCycle); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	if (in.Plan == plans.EducationalInstitutionsPremium) != (id.Role == models.RoleSchoolAdmin) {
		return nil, errs.ErrForbidden
	}
	sub, err := s.subs.Managed(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.TenantID != nil && id.Role != models.RoleSchoolAdmin {
		return nil, errs.ErrForbidden
	}
	r := &models.SubscriptionRenewalRequest{
		SubscriptionID: sub.ID, RequestedBy: id.UserID, Plan: in.Plan,
		BillingCycle: in.BillingCycle, Status: models.RenewalStatusPending, Note: in.Note,
	}
	if err := s.repo.CreateRenewalRequest(ctx, r); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errs.ErrPendingRequestExists
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("renewal requested", slog.String("request_id", r.ID), slog.String("subscription_id", sub.ID))
	return r, nil
}

// List возвращает заявки в статусе status.
func (s *Service) List(ctx context.Context, status string) ([]*models.SubscriptionRenewalRequest, error) {
	list, err := s.repo.ListRenewalRequests(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("renewal.List: %w", err)
	}
	return list, nil
}

// Approve одобряет заявку: срок отсчитывается от max(now, end_date), план
// и период берутся из заявки, подписка становится активной.
func (s *Service) Approve(ctx context.Context, id, reviewerID, adminNote string) (*models.SubscriptionRenewalRequest, *models.Subscription, error) {
	const op = "renewal.Approve"
	now := s.now().UTC()
	r, sub, err := s.repo.ApproveRenewal(ctx, id, reviewerID, adminNote, func(r *models.SubscriptionRenewalRequest, sub *models.Subscription) error {
		amount, err := plans.Price(r.Plan, r.BillingCycle)
		if err != nil {
			return err
		}
		end, err := plans.NextEndDate(plans.RenewalBase(now, sub.EndDate), r.BillingCycle)
		if err != nil {
			return err
		}
		if !sub.IsActive(now) {
			sub.StartDate = now
		}
		sub.Plan = r.Plan
		sub.BillingCycle = r.BillingCycle
		sub.Amount = amount
		sub.Currency = plans.Currency
		sub.Status = models.SubscriptionStatusActive
		sub.EndDate = end
		return nil
	})
	if err != nil {
		return nil, nil, reviewErr(op, err)
	}
	s.subs.Invalidate(ctx, sub)
	s.log.Info("renewal approved", slog.String("request_id", r.ID), slog.Time("end_date", sub.EndDate))

	s.inform(ctx, r, models.NotificationRenewalApproved, "Renewal approved",
		fmt.Sprintf("Your %s subscription is active until %s.", r.Plan, sub.EndDate.Format(time.DateOnly)),
		notification.TemplateRenewalApproved, map[string]any{
			"Plan": r.Plan, "BillingCycle": r.BillingCycle,
			"EndDate": sub.EndDate.Format(time.DateOnly), "AdminNote": adminNote,
		})
	return r, sub, nil
}

// Reject отклоняет заявку.
func (s *Service) Reject(ctx context.Context, id, reviewerID, adminNote string) (*models.SubscriptionRenewalRequest, error) {
	const op = "renewal.Reject"
	r, err := s.repo.RejectRenewal(ctx, id, reviewerID, adminNote)
	if err != nil {
		return nil, reviewErr(op, err)
	}
	s.log.Info("renewal rejected", slog.String("request_id", r.ID))
	s.inform(ctx, r, models.NotificationRenewalRejected, "Renewal rejected",
		fmt.Sprintf("Your renewal request for %s was rejected.", r.Plan),
		notification.TemplateRenewalRejected, map[string]any{"Plan": r.Plan, "AdminNote": adminNote})
	return r, nil
}

// inform уведомляет автора заявки в приложении и письмом.
func (s *Service) inform(ctx context.Context, r *models.SubscriptionRenewalRequest, typ, title, message, tmpl string, data map[string]any) {
	u, err := s.repo.GetUser(ctx, r.RequestedBy)
	if err != nil {
		s.log.Warn("failed to load requester", slog.String("user_id", r.RequestedBy), sl.Err(err))
		return
	}
	if err := s.notifier.NotifyData(ctx, u.ID, u.TenantID, typ, title, message,
		map[string]string{"requestId": r.ID, "status": r.Status}); err != nil {
		s.log.Warn("failed to notify requester", slog.String("user_id", u.ID), sl.Err(err))
	}
	data["Name"] = u.Name
	s.notifier.TryEmail(ctx, []string{u.Email}, tmpl, data)
}

func reviewErr(op string, err error) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return errs.ErrNotFound
	case errors.Is(err, repository.ErrConflict):
		return errs.ErrAlreadyProcessed
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
