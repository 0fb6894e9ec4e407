// Package parent реализует регистрацию родителей через намерение с оплатой
// и привязку детей по коду ученика.
package parent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/magabrotheeeer/schoolhub/internal/lib/linkcode"
	"github.com/magabrotheeeer/schoolhub/internal/lib/password"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/plans"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/services/notification"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// Repository хранилище намерений, пользователей и связей родитель-ученик.
type Repository interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetStudentByLinkCode(ctx context.Context, code string) (*models.User, error)
	CreateIntent(ctx context.Context, i *models.ParentRegistrationIntent) error
	SetIntentCheckoutSession(ctx context.Context, id, sessionID string) error
	CompleteParentIntent(ctx context.Context, intentID string, now time.Time,
		build func(i *models.ParentRegistrationIntent) (*models.User, *models.Subscription, error),
	) (*models.ParentAccount, error)
	LinkParent(ctx context.Context, parentID, studentID string) error
	ListChildren(ctx context.Context, parentID string) ([]*models.User, error)
	CountChildren(ctx context.Context, parentID string) (int, error)
}

// Subscriptions доступ к подпискам родителя.
type Subscriptions interface {
	ByUser(ctx context.Context, userID string) (*models.Subscription, error)
	Invalidate(ctx context.Context, sub *models.Subscription)
}

// Checkout создаёт сессии оплаты.
type Checkout interface {
	CreateCheckout(ctx context.Context, req paymentprovider.CheckoutRequest) (*paymentprovider.Session, error)
}

// Notifier отправляет уведомления и письма.
type Notifier interface {
	NotifyData(ctx context.Context, userID string, tenantID *string, typ, title, message string, data any) error
	TryEmail(ctx context.Context, to []string, tmpl string, data map[string]any)
}

// Service сервис родителей.
type Service struct {
	repo      Repository
	subs      Subscriptions
	checkout  Checkout
	notifier  Notifier
	intentTTL time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// NewService создаёт сервис.
func NewService(repo Repository, subs Subscriptions, checkout Checkout, notifier Notifier,
	intentTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		repo: repo, subs: subs, checkout: checkout, notifier: notifier,
		intentTTL: intentTTL, log: log, now: time.Now,
	}
}

// parentPlan проверяет, что план доступен родителю, и возвращает его цену.
func parentPlan(plan, cycle string) (plans.Plan, int64, error) {
	p, err := plans.Get(plan)
	if err != nil {
		return plans.Plan{}, 0, errs.ErrUnknownPlan
	}
	if plan == plans.EducationalInstitutionsPremium {
		return plans.Plan{}, 0, fmt.Errorf("%w: plan %q is for schools", errs.ErrInvalidInput, plan)
	}
	amount, err := plans.Price(plan, cycle)
	if err != nil {
		return plans.Plan{}, 0, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return p, amount, nil
}

func (s *Service) studentByCode(ctx context.Context, raw string) (*models.User, error) {
	code := linkcode.Normalize(raw)
	if !linkcode.Valid(code) {
		return nil, errs.ErrInvalidLinkCode
	}
	st, err := s.repo.GetStudentByLinkCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.ErrInvalidLinkCode
	}
	if err != nil {
		return nil, fmt.Errorf("parent.studentByCode: %w", err)
	}
	return st, nil
}

// CreateIntent сохраняет намерение регистрации. Для платного плана возвращает
// ссылку на оплату, для бесплатного сразу создаёт аккаунт.
func (s *Service) CreateIntent(ctx context.Context, in models.ParentIntentInput) (*models.ParentIntentResult, error) {
	const op = "parent.CreateIntent"
	log := s.log.With(slog.String("op", op))

	p, amount, err := parentPlan(in.Plan, in.BillingCycle)
	if err != nil {
		return nil, err
	}
	student, err := s.studentByCode(ctx, in.StudentLinkCode)
	if err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	taken, err := s.repo.EmailTaken(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if taken {
		return nil, errs.ErrDuplicateEmail
	}
	hash, err := password.GetHash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}

	intent := &models.ParentRegistrationIntent{
		Email: email, Name: strings.TrimSpace(in.Name), PasswordHash: hash, StudentID: student.ID,
		Plan: in.Plan, BillingCycle: in.BillingCycle, Status: models.IntentStatusPending,
		ExpiresAt: s.now().UTC().Add(s.intentTTL),
	}
	if err := s.repo.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("parent intent created", slog.String("intent_id", intent.ID), slog.String("plan", in.Plan))

	res := &models.ParentIntentResult{IntentID: intent.ID, ExpiresAt: intent.ExpiresAt.Format(time.RFC3339)}
	if amount == 0 {
		account, err := s.CompleteFromIntent(ctx, intent.ID, nil)
		if err != nil {
			return nil, err
		}
		res.ParentID = account.Parent.ID
		return res, nil
	}

	session, err := s.checkout.CreateCheckout(ctx, paymentprovider.CheckoutRequest{
		Plan: in.Plan, Title: p.Title, Cycle: in.BillingCycle, Amount: amount, Email: email,
		Metadata: map[string]string{
			"kind":          paymentprovider.KindParentIntent,
			"intent_id":     intent.ID,
			"plan":          in.Plan,
			"billing_cycle": in.BillingCycle,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.repo.SetIntentCheckoutSession(ctx, intent.ID, session.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	res.CheckoutURL = session.URL
	return res, nil
}

// CompleteFromIntent создаёт аккаунт родителя из намерения: пользователя, связь
// с учеником и подписку, в одной транзакции. ev содержит данные оплаты, nil для
// бесплатного плана.
func (s *Service) CompleteFromIntent(ctx context.Context, intentID string, ev *models.PaymentEvent) (*models.ParentAccount, error) {
	const op = "parent.CompleteFromIntent"
	now := s.now().UTC()

	account, err := s.repo.CompleteParentIntent(ctx, intentID, now, func(i *models.ParentRegistrationIntent) (*models.User, *models.Subscription, error) {
		_, amount, err := parentPlan(i.Plan, i.BillingCycle)
		if err != nil {
			return nil, nil, err
		}
		end := now.AddDate(100, 0, 0)
		if amount > 0 {
			if end, err = plans.NextEndDate(now, i.BillingCycle); err != nil {
				return nil, nil, err
			}
		}
		parent := &models.User{
			Email: i.Email, PasswordHash: i.PasswordHash, Name: i.Name,
			Role: models.RoleParent, Status: models.UserStatusActive,
		}
		sub := &models.Subscription{
			Plan: i.Plan, Status: models.SubscriptionStatusActive, BillingCycle: i.BillingCycle,
			Amount: amount, Currency: plans.Currency, StartDate: now, EndDate: end, AutoRenew: amount > 0,
		}
		if ev != nil {
			if ev.CustomerID != "" {
				sub.StripeCustomerID = &ev.CustomerID
			}
			if ev.StripeSubscriptionID != "" {
				sub.StripeSubscriptionID = &ev.StripeSubscriptionID
			}
		}
		return parent, sub, nil
	})
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrConflict):
		return nil, errs.ErrAlreadyProcessed
	case errors.Is(err, repository.ErrIntentExpired):
		return nil, errs.ErrIntentExpired
	case errors.Is(err, repository.ErrNotFound):
		return nil, errs.ErrNotFound
	case errors.Is(err, repository.ErrDuplicate):
		return nil, errs.ErrDuplicateEmail
	default:
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.subs.Invalidate(ctx, account.Subscription)
	s.log.Info("parent account created", slog.String("intent_id", intentID), slog.String("parent_id", account.Parent.ID))
	s.welcome(ctx, account)
	return account, nil
}

func (s *Service) welcome(ctx context.Context, account *models.ParentAccount) {
	studentName := ""
	if st, err := s.repo.GetUser(ctx, account.StudentID); err == nil {
		studentName = st.Name
		s.childLinked(ctx, account.Parent, st)
	} else {
		s.log.Warn("failed to load linked student", slog.String("student_id", account.StudentID), sl.Err(err))
	}
	p := account.Parent
	if err := s.notifier.NotifyData(ctx, p.ID, nil, models.NotificationWelcome, "Welcome",
		"Your parent account is ready.", map[string]string{"plan": account.Subscription.Plan}); err != nil {
		s.log.Warn("failed to notify parent", slog.String("user_id", p.ID), sl.Err(err))
	}
	s.notifier.TryEmail(ctx, []string{p.Email}, notification.TemplateParentWelcome, map[string]any{
		"Name": p.Name, "StudentName": studentName, "Plan": account.Subscription.Plan,
	})
}

func (s *Service) childLinked(ctx context.Context, parent, student *models.User) {
	err := s.notifier.NotifyData(ctx, student.ID, student.TenantID, models.NotificationParentLinked,
		"Parent linked", fmt.Sprintf("%s is now linked to your account.", parent.Name),
		map[string]string{"parentId": parent.ID})
	if err != nil {
		s.log.Warn("failed to notify student", slog.String("user_id", student.ID), sl.Err(err))
	}
}

// LinkChild привязывает ещё одного ребёнка с учётом ограничения плана родителя.
func (s *Service) LinkChild(ctx context.Context, parent models.Identity, rawCode string) (*models.Student, error) {
	const op = "parent.LinkChild"
	student, err := s.studentByCode(ctx, rawCode)
	if err != nil {
		return nil, err
	}
	sub, err := s.subs.ByUser(ctx, parent.UserID)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, errs.ErrSubscriptionInactive
	}
	if err != nil {
		return nil, err
	}
	if !sub.IsActive(s.now()) {
		return nil, errs.ErrSubscriptionInactive
	}
	if limit := plans.Limit(sub.Plan, plans.LimitChildren); limit > 0 {
		n, err := s.repo.CountChildren(ctx, parent.UserID)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if n >= limit {
			return nil, fmt.Errorf("%w: children limit is %d", errs.ErrPlanLimitReached, limit)
		}
	}
	if err := s.repo.LinkParent(ctx, parent.UserID, student.ID); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("child linked", slog.String("parent_id", parent.UserID), slog.String("student_id", student.ID))
	p, err := s.repo.GetUser(ctx, parent.UserID)
	if err != nil {
		s.log.Warn("failed to load parent", slog.String("user_id", parent.UserID), sl.Err(err))
		p = &models.User{ID: parent.UserID, Name: parent.Email}
	}
	s.childLinked(ctx, p, student)
	st := models.StudentOf(student)
	return &st, nil
}

// Children возвращает детей родителя.
func (s *Service) Children(ctx context.Context, parentID string) ([]models.Student, error) {
	list, err := s.repo.ListChildren(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("parent.Children: %w", err)
	}
	res := make([]models.Student, 0, len(list))
	for _, u := range list {
		res = append(res, models.StudentOf(u))
	}
	return res, nil
}
