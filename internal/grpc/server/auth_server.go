// Package server реализует gRPC-сервер для авторизационного сервиса.
//
// AuthServer обрабатывает запросы входа и валидации JWT, логирует операции
// и делегирует бизнес-логику сервису авторизации. Доменные ошибки передаются
// клиенту кодом статуса и кодом ошибки API в сообщении статуса.
package server

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/magabrotheeeer/schoolhub/internal/grpc/authpb"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// AuthServiceInterface бизнес-логика, которую обслуживает сервер.
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password string) (string, *models.User, error)
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
}

// AuthServer реализует gRPC-сервис авторизации
type AuthServer struct {
	authService AuthServiceInterface
	log         *slog.Logger
}

var _ authpb.AuthServiceServer = (*AuthServer)(nil)

// NewAuthServer создает новый экземпляр AuthServer с указанным сервисом аутентификации и логгером.
func NewAuthServer(authService AuthServiceInterface, logger *slog.Logger) *AuthServer {
	return &AuthServer{
		authService: authService,
		log:         logger,
	}
}

// Login проверяет пользователя и генерирует JWT
func (s *AuthServer) Login(ctx context.Context, req *authpb.LoginRequest) (*authpb.LoginResponse, error) {
	s.log.Info("Login request", slog.String("email", req.Email))

	token, user, err := s.authService.Login(ctx, req.Email, req.Password)
	if err != nil {
		s.log.Warn("Login failed", slog.String("email", req.Email), sl.Err(err))
		return nil, toStatus(err)
	}

	resp := &authpb.LoginResponse{
		Token:  token,
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	}
	if user.TenantID != nil {
		resp.TenantID = *user.TenantID
	}
	return resp, nil
}

// ValidateToken проверяет валидность JWT и возвращает данные пользователя
func (s *AuthServer) ValidateToken(ctx context.Context, req *authpb.ValidateTokenRequest) (*authpb.ValidateTokenResponse, error) {
	identity, err := s.authService.ValidateToken(ctx, req.Token)
	if err != nil {
		s.log.Debug("Invalid token", sl.Err(err))
		return nil, toStatus(err)
	}

	return &authpb.ValidateTokenResponse{
		UserID:   identity.UserID,
		Email:    identity.Email,
		Role:     identity.Role,
		TenantID: identity.TenantID,
	}, nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, errs.ErrInvalidCredentials), errors.Is(err, errs.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, errs.CodeUnauthorized)
	case errors.Is(err, errs.ErrSchoolPending), errors.Is(err, errs.ErrAccountDisabled):
		return status.Error(codes.PermissionDenied, errs.Code(err))
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, errs.CodeInternal)
	}
}
