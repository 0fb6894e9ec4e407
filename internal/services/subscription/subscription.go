// Package subscription содержит бизнес-логику подписок: просмотр с кешированием,
// оплату через Stripe, отмену, администрирование и изменения по событиям оплаты.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/cache"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/plans"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// Repository определяет методы для работы с подписками в хранилище.
type Repository interface {
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	UpdateSubscription(ctx context.Context, sub *models.Subscription) error
	DeleteSubscription(ctx context.Context, id string) error
	GetSubscription(ctx context.Context, id string) (*models.Subscription, error)
	GetSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error)
	GetSubscriptionByTenant(ctx context.Context, tenantID string) (*models.Subscription, error)
	GetSubscriptionByStripeID(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error)
	ListSubscriptions(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error)
}

// Cache описывает методы для кэширования данных.
type Cache interface {
	Get(ctx context.Context, key string, result any) (bool, error)
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

// Checkout создаёт сессии оплаты.
type Checkout interface {
	CreateCheckout(ctx context.Context, req paymentprovider.CheckoutRequest) (*paymentprovider.Session, error)
}

// Service реализует бизнес-логику работы с подписками, включая кеширование.
type Service struct {
	repo     Repository
	cache    Cache
	checkout Checkout
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time
}

// NewService создает новый экземпляр Service.
func NewService(repo Repository, cache Cache, checkout Checkout, ttl time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo:     repo,
		cache:    cache,
		checkout: checkout,
		ttl:      ttl,
		log:      log,
		now:      time.Now,
	}
}

// Catalog возвращает каталог планов.
func (s *Service) Catalog() []plans.Plan {
	return plans.All()
}

func ownerKey(sub *models.Subscription) string {
	if sub.TenantID != nil {
		return cache.SubscriptionTenantKey(*sub.TenantID)
	}
	if sub.UserID != nil {
		return cache.SubscriptionUserKey(*sub.UserID)
	}
	return ""
}

func (s *Service) invalidate(ctx context.Context, sub *models.Subscription) {
	key := ownerKey(sub)
	if key == "" {
		return
	}
	if err := s.cache.Invalidate(ctx, key); err != nil {
		s.log.Warn("failed to invalidate subscription cache", slog.String("key", key), sl.Err(err))
	}
}

func (s *Service) cached(ctx context.Context, key string, load func() (*models.Subscription, error)) (*models.Subscription, error) {
	var sub models.Subscription
	found, err := s.cache.Get(ctx, key, &sub)
	if err != nil {
		s.log.Warn("subscription cache read failed", slog.String("key", key), sl.Err(err))
	}
	if found {
		return &sub, nil
	}

	loaded, err := load()
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, loaded, s.ttl); err != nil {
		s.log.Warn("failed to add to cache", slog.String("key", key), sl.Err(err))
	}
	return loaded, nil
}

// ByTenant возвращает подписку арендатора.
func (s *Service) ByTenant(ctx context.Context, tenantID string) (*models.Subscription, error) {
	sub, err := s.cached(ctx, cache.SubscriptionTenantKey(tenantID), func() (*models.Subscription, error) {
		return s.repo.GetSubscriptionByTenant(ctx, tenantID)
	})
	return sub, mapRepoErr("subscription.ByTenant", err)
}

// ByUser возвращает личную подписку пользователя.
func (s *Service) ByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.cached(ctx, cache.SubscriptionUserKey(userID), func() (*models.Subscription, error) {
		return s.repo.GetSubscriptionByUser(ctx, userID)
	})
	return sub, mapRepoErr("subscription.ByUser", err)
}

// Owned возвращает подписку, действующую для пользователя: администратору школы
// подписку арендатора, остальным личную, а ученику школы без личной подписки
// подписку его арендатора.
func (s *Service) Owned(ctx context.Context, id models.Identity) (*models.Subscription, error) {
	if id.Role == models.RoleSchoolAdmin {
		if id.TenantID == "" {
			return nil, errs.ErrNotFound
		}
		return s.ByTenant(ctx, id.TenantID)
	}
	sub, err := s.ByUser(ctx, id.UserID)
	if errors.Is(err, errs.ErrNotFound) && id.TenantID != "" {
		return s.ByTenant(ctx, id.TenantID)
	}
	return sub, err
}

// Managed возвращает подписку, которой пользователь вправе распоряжаться:
// администратору школы подписку арендатора, остальным только личную.
// Подписка арендатора для ученика доступна лишь на чтение через Owned.
func (s *Service) Managed(ctx context.Context, id models.Identity) (*models.Subscription, error) {
	if id.Role == models.RoleSchoolAdmin {
		if id.TenantID == "" {
			return nil, errs.ErrNotFound
		}
		return s.ByTenant(ctx, id.TenantID)
	}
	return s.ByUser(ctx, id.UserID)
}

// View собирает представление подписки с вычисляемыми полями.
func (s *Service) View(sub *models.Subscription) *models.SubscriptionView {
	now := s.now()
	view := &models.SubscriptionView{
		Subscription:    sub,
		IsActive:        sub.IsActive(now),
		DaysUntilExpiry: sub.DaysUntilExpiry(now),
		Features:        []string{},
		Limits:          map[string]int{},
	}
	if p, err := plans.Get(sub.Plan); err == nil {
		view.Features = p.Features
		view.Limits = p.Limits
	}
	return view
}

// Me возвращает подписку пользователя с вычисляемыми полями.
func (s *Service) Me(ctx context.Context, id models.Identity) (*models.SubscriptionView, error) {
	sub, err := s.Owned(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.View(sub), nil
}

// RequireActive возвращает ErrSubscriptionInactive, если у пользователя нет действующей подписки.
func (s *Service) RequireActive(ctx context.Context, id models.Identity) (*models.Subscription, error) {
	sub, err := s.Owned(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrSubscriptionInactive
	}
	if err != nil {
		return nil, err
	}
	if !sub.IsActive(s.now()) {
		return nil, errs.ErrSubscriptionInactive
	}
	return sub, nil
}

// Checkout создаёт сессию оплаты плана для владельца подписки.
func (s *Service) Checkout(ctx context.Context, id models.Identity, plan, cycle string) (*paymentprovider.Session, error) {
	const op = "subscription.Checkout"

	p, amount, err := priced(plan, cycle)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: plan %q does not require payment", errs.ErrInvalidInput, plan)
	}
	institutional := plan == plans.EducationalInstitutionsPremium
	if institutional != (id.Role == models.RoleSchoolAdmin) {
		return nil, errs.ErrForbidden
	}
	if institutional && id.TenantID == "" {
		return nil, errs.ErrForbidden
	}

	meta := map[string]string{
		"kind":          paymentprovider.KindSubscription,
		"plan":          plan,
		"billing_cycle": cycle,
	}
	if institutional {
		meta["tenant_id"] = id.TenantID
	} else {
		meta["user_id"] = id.UserID
	}

	session, err := s.checkout.CreateCheckout(ctx, paymentprovider.CheckoutRequest{
		Plan: plan, Title: p.Title, Cycle: cycle, Amount: amount, Email: id.Email, Metadata: meta,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("checkout session created", slog.String("user_id", id.UserID), slog.String("plan", plan))
	return session, nil
}

// Cancel отменяет подписку пользователя и отключает автопродление.
func (s *Service) Cancel(ctx context.Context, id models.Identity) (*models.Subscription, error) {
	const op = "subscription.Cancel"
	sub, err := s.Managed(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return nil, errs.ErrAlreadyProcessed
	}
	sub.Status = models.SubscriptionStatusCancelled
	sub.AutoRenew = false
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, mapRepoErr(op, err)
	}
	s.invalidate(ctx, sub)
	return sub, nil
}

func priced(plan, cycle string) (plans.Plan, int64, error) {
	p, err := plans.Get(plan)
	if err != nil {
		return plans.Plan{}, 0, errs.ErrUnknownPlan
	}
	amount, err := plans.Price(plan, cycle)
	if err != nil {
		return plans.Plan{}, 0, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return p, amount, nil
}

// List возвращает подписки для администратора.
func (s *Service) List(ctx context.Context, filter models.SubscriptionFilter) ([]*models.Subscription, error) {
	list, err := s.repo.ListSubscriptions(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("subscription.List: %w", err)
	}
	return list, nil
}

func (s *Service) apply(sub *models.Subscription, in models.SubscriptionInput) error {
	_, amount, err := priced(in.Plan, in.BillingCycle)
	if err != nil {
		return err
	}
	start := sub.StartDate
	if in.StartDate != "" {
		start, err = time.Parse(time.DateOnly, in.StartDate)
		if err != nil {
			return fmt.Errorf("%w: startDate must be YYYY-MM-DD", errs.ErrInvalidInput)
		}
	}
	if start.IsZero() {
		start = s.now().UTC()
	}
	end, err := plans.NextEndDate(start, in.BillingCycle)
	if err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	sub.Plan = in.Plan
	sub.BillingCycle = in.BillingCycle
	sub.Amount = amount
	sub.Currency = plans.Currency
	sub.StartDate = start
	sub.EndDate = end
	sub.AutoRenew = in.AutoRenew
	if in.Status != "" {
		sub.Status = in.Status
	}
	return nil
}

// Create создаёт подписку администратором. Владелец указывается ровно один.
func (s *Service) Create(ctx context.Context, in models.SubscriptionInput) (*models.Subscription, error) {
	const op = "subscription.Create"
	if (in.UserID == nil) == (in.TenantID == nil) {
		return nil, fmt.Errorf("%w: exactly one of userId and tenantId is required", errs.ErrInvalidInput)
	}
	sub := &models.Subscription{UserID: in.UserID, TenantID: in.TenantID, Status: models.SubscriptionStatusActive}
	if err := s.apply(sub, in); err != nil {
		return nil, err
	}
	if err := s.repo.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: owner already has a subscription", errs.ErrInvalidInput)
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, sub)
	s.log.Info("subscription created", slog.String("id", sub.ID), slog.String("plan", sub.Plan))
	return sub, nil
}

// Update изменяет подписку администратором. Владелец не меняется.
func (s *Service) Update(ctx context.Context, id string, in models.SubscriptionInput) (*models.Subscription, error) {
	const op = "subscription.Update"
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return nil, mapRepoErr(op, err)
	}
	if err := s.apply(sub, in); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, mapRepoErr(op, err)
	}
	s.invalidate(ctx, sub)
	return sub, nil
}

// Delete удаляет подписку.
func (s *Service) Delete(ctx context.Context, id string) error {
	const op = "subscription.Delete"
	sub, err := s.repo.GetSubscription(ctx, id)
	if err != nil {
		return mapRepoErr(op, err)
	}
	if err := s.repo.DeleteSubscription(ctx, id); err != nil {
		return mapRepoErr(op, err)
	}
	s.invalidate(ctx, sub)
	return nil
}

// TrialFor строит пробную подписку арендатора на days дней.
func (s *Service) TrialFor(tenantID string, days int) *models.Subscription {
	now := s.now().UTC()
	return &models.Subscription{
		TenantID:     &tenantID,
		Plan:         plans.EducationalInstitutionsPremium,
		Status:       models.SubscriptionStatusTrial,
		BillingCycle: plans.CycleMonthly,
		Currency:     plans.Currency,
		StartDate:    now,
		EndDate:      now.AddDate(0, 0, days),
	}
}

// Free строит бесплатную подписку пользователя.
func (s *Service) Free(userID string) *models.Subscription {
	now := s.now().UTC()
	return &models.Subscription{
		UserID:       &userID,
		Plan:         plans.Free,
		Status:       models.SubscriptionStatusActive,
		BillingCycle: plans.CycleYearly,
		Currency:     plans.Currency,
		StartDate:    now,
		EndDate:      now.AddDate(100, 0, 0),
	}
}

// Invalidate сбрасывает кеш подписки после изменений в других сервисах.
func (s *Service) Invalidate(ctx context.Context, sub *models.Subscription) {
	s.invalidate(ctx, sub)
}

// ActivatePaid применяет оплаченную сессию checkout: продлевает существующую
// подписку владельца или создаёт новую. Повтор события с тем же идентификатором
// подписки Stripe ничего не меняет.
func (s *Service) ActivatePaid(ctx context.Context, ev *models.PaymentEvent) (*models.Subscription, error) {
	const op = "subscription.ActivatePaid"
	meta := ev.Metadata
	plan, cycle := meta["plan"], meta["billing_cycle"]
	_, amount, err := priced(plan, cycle)
	if err != nil {
		return nil, err
	}

	var current *models.Subscription
	switch {
	case meta["tenant_id"] != "":
		current, err = s.repo.GetSubscriptionByTenant(ctx, meta["tenant_id"])
	case meta["user_id"] != "":
		current, err = s.repo.GetSubscriptionByUser(ctx, meta["user_id"])
	default:
		return nil, fmt.Errorf("%w: checkout metadata has no owner", errs.ErrInvalidInput)
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if current != nil && ev.StripeSubscriptionID != "" && current.StripeSubscriptionID != nil &&
		*current.StripeSubscriptionID == ev.StripeSubscriptionID {
		return current, nil
	}

	now := s.now().UTC()
	sub := current
	if sub == nil {
		sub = &models.Subscription{StartDate: now, EndDate: now}
		if t := meta["tenant_id"]; t != "" {
			sub.TenantID = &t
		} else {
			u := meta["user_id"]
			sub.UserID = &u
		}
	}
	base := plans.RenewalBase(now, sub.EndDate)
	if !sub.IsActive(now) {
		sub.StartDate = now
	}
	end, err := plans.NextEndDate(base, cycle)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	sub.Plan = plan
	sub.BillingCycle = cycle
	sub.Amount = amount
	sub.Currency = plans.Currency
	sub.Status = models.SubscriptionStatusActive
	sub.EndDate = end
	sub.AutoRenew = true
	if ev.CustomerID != "" {
		sub.StripeCustomerID = &ev.CustomerID
	}
	if ev.StripeSubscriptionID != "" {
		sub.StripeSubscriptionID = &ev.StripeSubscriptionID
	}

	if current == nil {
		err = s.repo.CreateSubscription(ctx, sub)
	} else {
		err = s.repo.UpdateSubscription(ctx, sub)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.invalidate(ctx, sub)
	s.log.Info("subscription activated by payment", slog.String("id", sub.ID), slog.String("plan", plan),
		slog.Time("end_date", sub.EndDate))
	return sub, nil
}

// ExtendByStripeID продлевает подписку, привязанную к подписке Stripe, на её период.
func (s *Service) ExtendByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	const op = "subscription.ExtendByStripeID"
	sub, err := s.repo.GetSubscriptionByStripeID(ctx, stripeID)
	if err != nil {
		return nil, mapRepoErr(op, err)
	}
	now := s.now().UTC()
	end, err := plans.NextEndDate(plans.RenewalBase(now, sub.EndDate), sub.BillingCycle)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	sub.EndDate = end
	sub.Status = models.SubscriptionStatusActive
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, mapRepoErr(op, err)
	}
	s.invalidate(ctx, sub)
	return sub, nil
}

// CancelByStripeID отменяет подписку после удаления подписки в Stripe.
func (s *Service) CancelByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	const op = "subscription.CancelByStripeID"
	sub, err := s.repo.GetSubscriptionByStripeID(ctx, stripeID)
	if err != nil {
		return nil, mapRepoErr(op, err)
	}
	if sub.Status == models.SubscriptionStatusCancelled {
		return sub, nil
	}
	sub.Status = models.SubscriptionStatusCancelled
	sub.AutoRenew = false
	if err := s.repo.UpdateSubscription(ctx, sub); err != nil {
		return nil, mapRepoErr(op, err)
	}
	s.invalidate(ctx, sub)
	return sub, nil
}

func mapRepoErr(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrNotFound):
		return errs.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
