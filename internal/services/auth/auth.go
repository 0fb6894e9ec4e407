// Package auth содержит логику входа пользователей и проверки JWT.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/magabrotheeeer/schoolhub/internal/lib/jwt"
	"github.com/magabrotheeeer/schoolhub/internal/lib/password"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// UserRepository описывает контракт для чтения пользователей из базы данных.
type UserRepository interface {
	// GetUserByEmail возвращает пользователя по email или repository.ErrNotFound.
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUser возвращает пользователя по ID.
	GetUser(ctx context.Context, id string) (*models.User, error)
}

// Service отвечает за авторизацию и валидацию JWT.
type Service struct {
	users    UserRepository
	jwtMaker jwt.Maker
}

// NewService создает новый экземпляр Service.
func NewService(users UserRepository, jwtMaker jwt.Maker) *Service {
	return &Service{
		users:    users,
		jwtMaker: jwtMaker,
	}
}

// Login проверяет пароль и статус пользователя и выпускает JWT.
func (s *Service) Login(ctx context.Context, email, rawPassword string) (string, *models.User, error) {
	const op = "auth.Login"

	user, err := s.users.GetUserByEmail(ctx, email)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil, errs.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := password.CompareHash(user.PasswordHash, rawPassword); err != nil {
		return "", nil, errs.ErrInvalidCredentials
	}
	if err := checkStatus(user); err != nil {
		return "", nil, err
	}

	token, err := s.jwtMaker.GenerateToken(identityOf(user))
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", op, err)
	}
	return token, user, nil
}

// ValidateToken проверяет подпись и срок токена, а также то, что пользователь
// всё ещё может входить в систему.
func (s *Service) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	const op = "auth.ValidateToken"

	claims, err := s.jwtMaker.ParseToken(token)
	if err != nil {
		return nil, errs.ErrUnauthorized
	}
	user, err := s.users.GetUser(ctx, claims.UserID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errs.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := checkStatus(user); err != nil {
		return nil, err
	}
	// роль и арендатор берутся из базы: ученик мог перейти в школу после выпуска токена
	identity := identityOf(user)
	return &identity, nil
}

func checkStatus(u *models.User) error {
	switch u.Status {
	case models.UserStatusActive:
		return nil
	case models.UserStatusPending:
		if u.Role == models.RoleSchoolAdmin {
			return errs.ErrSchoolPending
		}
		return errs.ErrAccountDisabled
	default:
		return errs.ErrAccountDisabled
	}
}

func identityOf(u *models.User) models.Identity {
	id := models.Identity{UserID: u.ID, Email: u.Email, Role: u.Role}
	if u.TenantID != nil {
		id.TenantID = *u.TenantID
	}
	return id
}
