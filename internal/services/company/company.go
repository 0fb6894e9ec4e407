// Package company реализует регистрацию школ и компаний и их рассмотрение
// супер-администратором.
package company

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
	"github.com/magabrotheeeer/schoolhub/internal/plans"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/services/notification"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// Repository хранилище компаний и пользователей.
type Repository interface {
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateCompanySignup(ctx context.Context, c *models.Company, org *models.Organization, admin *models.User) error
	ListCompaniesByStatus(ctx context.Context, status string) ([]*models.Company, error)
	ApproveCompany(ctx context.Context, companyID, reviewerID string,
		trial func(org *models.Organization) *models.Subscription) (*models.Company, *models.Organization, error)
	RejectCompany(ctx context.Context, companyID, reviewerID, reason string) (*models.Company, error)
	ListUsersByRole(ctx context.Context, role string) ([]*models.User, error)
	ListTenantAdmins(ctx context.Context, tenantID string) ([]*models.User, error)
}

// Notifier отправляет уведомления и письма.
type Notifier interface {
	NotifyData(ctx context.Context, userID string, tenantID *string, typ, title, message string, data any) error
	TryEmail(ctx context.Context, to []string, tmpl string, data map[string]any)
}

// Trials строит пробную подписку арендатора.
type Trials interface {
	TrialFor(tenantID string, days int) *models.Subscription
	Invalidate(ctx context.Context, sub *models.Subscription)
}

// Service сервис регистрации компаний.
type Service struct {
	repo      Repository
	notifier  Notifier
	trials    Trials
	trialDays int
	log       *slog.Logger
}

// NewService создаёт сервис.
func NewService(repo Repository, notifier Notifier, trials Trials, trialDays int, log *slog.Logger) *Service {
	return &Service{repo: repo, notifier: notifier, trials: trials, trialDays: trialDays, log: log}
}

// Signup регистрирует компанию, её организацию и администратора, ожидающих одобрения,
// и извещает супер-администраторов.
func (s *Service) Signup(ctx context.Context, in models.CompanySignup) (*models.Company, error) {
	const op = "company.Signup"
	log := s.log.With(slog.String("op", op))

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
	kind := in.Kind
	if kind == "" {
		kind = models.CompanyKindSchool
	}

	c := &models.Company{
		Name: in.CompanyName, Email: email, Phone: in.Phone, Address: in.Address,
		ContactName: in.ContactName, Kind: kind, Status: models.CompanyStatusPending,
	}
	org := &models.Organization{Name: in.CompanyName, Code: linkcode.OrgCode(in.CompanyName)}
	admin := &models.User{
		Email: email, PasswordHash: hash, Name: in.ContactName,
		Role: models.RoleSchoolAdmin, Status: models.UserStatusPending,
	}
	if err := s.repo.CreateCompanySignup(ctx, c, org, admin); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, errs.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	log.Info("company registered", slog.String("company_id", c.ID), slog.String("org_code", org.Code))

	admins, err := s.repo.ListUsersByRole(ctx, models.RoleSuperAdmin)
	if err != nil {
		log.Error("failed to list super admins", sl.Err(err))
		return c, nil
	}
	to := make([]string, 0, len(admins))
	for _, a := range admins {
		to = append(to, a.Email)
	}
	s.notifier.TryEmail(ctx, to, notification.TemplateSchoolPending, map[string]any{
		"CompanyName": c.Name, "Kind": c.Kind, "ContactName": c.ContactName, "Email": c.Email,
	})
	return c, nil
}

// Pending возвращает компании, ожидающие рассмотрения.
func (s *Service) Pending(ctx context.Context) ([]*models.Company, error) {
	list, err := s.repo.ListCompaniesByStatus(ctx, models.CompanyStatusPending)
	if err != nil {
		return nil, fmt.Errorf("company.Pending: %w", err)
	}
	return list, nil
}

// Approve одобряет компанию: администраторы активируются, арендатор получает
// пробную подписку, школа получает письмо.
func (s *Service) Approve(ctx context.Context, companyID, reviewerID string) (*models.Company, error) {
	const op = "company.Approve"

	var trial *models.Subscription
	c, org, err := s.repo.ApproveCompany(ctx, companyID, reviewerID, func(o *models.Organization) *models.Subscription {
		trial = s.trials.TrialFor(o.ID, s.trialDays)
		return trial
	})
	if err != nil {
		return nil, reviewErr(op, err)
	}
	s.trials.Invalidate(ctx, trial)
	s.log.Info("company approved", slog.String("company_id", c.ID), slog.String("reviewer", reviewerID))

	s.notifier.TryEmail(ctx, []string{c.Email}, notification.TemplateSchoolApproved, map[string]any{
		"ContactName": c.ContactName, "CompanyName": c.Name, "Plan": plans.EducationalInstitutionsPremium,
		"TrialEnd": trial.EndDate.Format(time.DateOnly), "OrgCode": org.Code,
	})
	admins, err := s.repo.ListTenantAdmins(ctx, org.ID)
	if err != nil {
		s.log.Warn("failed to list tenant admins", slog.String("tenant_id", org.ID), sl.Err(err))
		return c, nil
	}
	for _, a := range admins {
		if err := s.notifier.NotifyData(ctx, a.ID, &org.ID, models.NotificationSchoolApproved,
			"School approved", fmt.Sprintf("%s is approved. Trial ends %s.", c.Name, trial.EndDate.Format(time.DateOnly)),
			map[string]string{"companyId": c.ID}); err != nil {
			s.log.Warn("failed to notify school admin", slog.String("user_id", a.ID), sl.Err(err))
		}
	}
	return c, nil
}

// Reject отклоняет компанию и блокирует её администраторов.
func (s *Service) Reject(ctx context.Context, companyID, reviewerID, reason string) (*models.Company, error) {
	const op = "company.Reject"
	c, err := s.repo.RejectCompany(ctx, companyID, reviewerID, reason)
	if err != nil {
		return nil, reviewErr(op, err)
	}
	s.log.Info("company rejected", slog.String("company_id", c.ID), slog.String("reviewer", reviewerID))
	s.notifier.TryEmail(ctx, []string{c.Email}, notification.TemplateSchoolRejected, map[string]any{
		"ContactName": c.ContactName, "CompanyName": c.Name, "Reason": reason,
	})
	return c, nil
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
