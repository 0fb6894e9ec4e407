// Package school управляет арендатором школы: классами, учениками и их
// присоединением по коду класса, а также самостоятельной регистрацией учеников.
package school

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

// codeAttempts число попыток подобрать свободный код класса или привязки.
const codeAttempts = 5

// Repository хранилище классов и учеников.
type Repository interface {
	CreateClass(ctx context.Context, c *models.Class) error
	ListClasses(ctx context.Context, tenantID string) ([]*models.Class, error)
	CountClasses(ctx context.Context, tenantID string) (int, error)
	GetClass(ctx context.Context, tenantID, id string) (*models.Class, error)
	GetClassByJoinCode(ctx context.Context, code string) (*models.Class, error)
	EmailTaken(ctx context.Context, email string) (bool, error)
	CreateSchoolStudent(ctx context.Context, u *models.User, number func(orgCode string, seq int) string) error
	CreateUserWithSubscription(ctx context.Context, u *models.User, sub *models.Subscription) error
	AttachStudentToClass(ctx context.Context, studentID string, class *models.Class,
		number func(orgCode string, seq int) string) (*models.User, error)
	ListStudents(ctx context.Context, tenantID string, limit, offset int) ([]*models.User, error)
	CountStudents(ctx context.Context, tenantID string) (int, error)
}

// Subscriptions доступ к подпискам арендатора.
type Subscriptions interface {
	ByTenant(ctx context.Context, tenantID string) (*models.Subscription, error)
	Free(userID string) *models.Subscription
	Invalidate(ctx context.Context, sub *models.Subscription)
}

// Notifier доставляет push-события и письма.
type Notifier interface {
	Push(ctx context.Context, ev models.PushEvent) error
	TryEmail(ctx context.Context, to []string, tmpl string, data map[string]any)
}

// Service сервис школы.
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

// checkLimit проверяет, что подписка арендатора действует и count не достиг ограничения key её плана.
func (s *Service) checkLimit(ctx context.Context, tenantID, key string, count func(context.Context, string) (int, error)) error {
	sub, err := s.subs.ByTenant(ctx, tenantID)
	if errors.Is(err, errs.ErrNotFound) {
		return errs.ErrSubscriptionInactive
	}
	if err != nil {
		return err
	}
	if !sub.IsActive(s.now()) {
		return errs.ErrSubscriptionInactive
	}
	limit := plans.Limit(sub.Plan, key)
	if limit == 0 {
		return nil
	}
	n, err := count(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("school.checkLimit: %w", err)
	}
	if n >= limit {
		return fmt.Errorf("%w: %s limit is %d", errs.ErrPlanLimitReached, key, limit)
	}
	return nil
}

// CreateClass создаёт класс с уникальным кодом присоединения.
func (s *Service) CreateClass(ctx context.Context, tenantID string, in models.ClassInput) (*models.Class, error) {
	const op = "school.CreateClass"
	if err := s.checkLimit(ctx, tenantID, plans.LimitClasses, s.repo.CountClasses); err != nil {
		return nil, err
	}
	c := &models.Class{TenantID: tenantID, Name: strings.TrimSpace(in.Name), Grade: in.Grade}
	for range codeAttempts {
		code, err := linkcode.New()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		c.JoinCode = code
		err = s.repo.CreateClass(ctx, c)
		if err == nil {
			s.log.Info("class created", slog.String("tenant_id", tenantID), slog.String("class_id", c.ID))
			return c, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	return nil, fmt.Errorf("%s: no free join code after %d attempts", op, codeAttempts)
}

// Classes возвращает классы арендатора.
func (s *Service) Classes(ctx context.Context, tenantID string) ([]*models.Class, error) {
	list, err := s.repo.ListClasses(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("school.Classes: %w", err)
	}
	return list, nil
}

func (s *Service) admissionNumber(orgCode string, seq int) string {
	return linkcode.AdmissionNumber(orgCode, s.now().Year(), seq)
}

// CreateStudent создаёт ученика арендатора с номером зачисления.
func (s *Service) CreateStudent(ctx context.Context, tenantID string, in models.StudentInput) (*models.Student, error) {
	const op = "school.CreateStudent"
	if err := s.checkLimit(ctx, tenantID, plans.LimitStudents, s.repo.CountStudents); err != nil {
		return nil, err
	}
	if in.ClassID != nil {
		if _, err := s.repo.GetClass(ctx, tenantID, *in.ClassID); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: unknown class", errs.ErrInvalidInput)
			}
			return nil, fmt.Errorf("%s: %w", op, err)
		}
	}
	u, err := s.newStudent(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	u.TenantID = &tenantID
	u.ClassID = in.ClassID
	if err := withLinkCode(u, func() error {
		return s.repo.CreateSchoolStudent(ctx, u, s.admissionNumber)
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && !errors.Is(err, repository.ErrCodeTaken) {
			return nil, errs.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("student created", slog.String("tenant_id", tenantID), slog.String("student_id", u.ID))
	s.rosterChanged(ctx, tenantID, "created", u)
	st := models.StudentOf(u)
	return &st, nil
}

// Students возвращает учеников арендатора постранично.
func (s *Service) Students(ctx context.Context, tenantID string, limit, offset int) ([]models.Student, error) {
	list, err := s.repo.ListStudents(ctx, tenantID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("school.Students: %w", err)
	}
	res := make([]models.Student, 0, len(list))
	for _, u := range list {
		res = append(res, models.StudentOf(u))
	}
	return res, nil
}

// JoinSchool присоединяет ученика к классу по коду и назначает номер зачисления.
func (s *Service) JoinSchool(ctx context.Context, studentID, joinCode string) (*models.Student, error) {
	const op = "school.JoinSchool"
	code := linkcode.Normalize(joinCode)
	if !linkcode.Valid(code) {
		return nil, errs.ErrInvalidLinkCode
	}
	class, err := s.repo.GetClassByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.ErrInvalidLinkCode
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := s.checkLimit(ctx, class.TenantID, plans.LimitStudents, s.repo.CountStudents); err != nil {
		return nil, err
	}
	u, err := s.repo.AttachStudentToClass(ctx, studentID, class, s.admissionNumber)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.log.Info("student joined class", slog.String("student_id", studentID), slog.String("class_id", class.ID))
	s.rosterChanged(ctx, class.TenantID, "joined", u)
	st := models.StudentOf(u)
	return &st, nil
}

// Signup регистрирует самостоятельного ученика на бесплатном плане с кодом привязки родителя.
func (s *Service) Signup(ctx context.Context, in models.StudentSignup) (*models.User, error) {
	const op = "school.Signup"
	u, err := s.newStudent(ctx, in.Name, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	sub := s.subs.Free("")
	if err := withLinkCode(u, func() error {
		return s.repo.CreateUserWithSubscription(ctx, u, sub)
	}); err != nil {
		if errors.Is(err, repository.ErrDuplicate) && !errors.Is(err, repository.ErrCodeTaken) {
			return nil, errs.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.subs.Invalidate(ctx, sub)
	s.log.Info("student registered", slog.String("user_id", u.ID))
	s.notifier.TryEmail(ctx, []string{u.Email}, notification.TemplateStudentWelcome, map[string]any{
		"Name": u.Name, "LinkCode": *u.ParentLinkCode,
	})
	return u, nil
}

// withLinkCode назначает ученику код привязки родителя и вызывает create,
// подбирая новый код, пока хранилище сообщает о занятом.
func withLinkCode(u *models.User, create func() error) error {
	var err error
	for range codeAttempts {
		code, genErr := linkcode.New()
		if genErr != nil {
			return genErr
		}
		u.ParentLinkCode = &code
		if err = create(); !errors.Is(err, repository.ErrCodeTaken) {
			return err
		}
	}
	return fmt.Errorf("no free link code after %d attempts: %w", codeAttempts, err)
}

func (s *Service) newStudent(ctx context.Context, name, email, pw string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	taken, err := s.repo.EmailTaken(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("school.newStudent: %w", err)
	}
	if taken {
		return nil, errs.ErrDuplicateEmail
	}
	hash, err := password.GetHash(pw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return &models.User{
		Email: email, PasswordHash: hash, Name: strings.TrimSpace(name),
		Role: models.RoleStudent, Status: models.UserStatusActive,
	}, nil
}

func (s *Service) rosterChanged(ctx context.Context, tenantID, action string, u *models.User) {
	err := s.notifier.Push(ctx, models.PushEvent{
		Event:    models.EventStudentsUpdated,
		TenantID: tenantID,
		Data:     map[string]any{"action": action, "student": models.StudentOf(u)},
	})
	if err != nil {
		s.log.Warn("failed to publish roster update", slog.String("tenant_id", tenantID), sl.Err(err))
	}
}
