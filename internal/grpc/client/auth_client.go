// Package client предоставляет клиент gRPC-сервиса авторизации для API.
package client

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/magabrotheeeer/schoolhub/internal/grpc/authpb"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// AuthClient обёртка над gRPC-клиентом, возвращающая доменные типы и ошибки.
type AuthClient struct {
	conn   *grpc.ClientConn
	client authpb.AuthServiceClient
}

// NewAuthClient создаёт клиента к сервису авторизации по адресу addr.
// Соединение устанавливается лениво, при первом вызове.
func NewAuthClient(addr string, opts ...grpc.DialOption) (*AuthClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc.NewAuthClient: %w", err)
	}
	return &AuthClient{conn: conn, client: authpb.NewAuthServiceClient(conn)}, nil
}

// Close закрывает соединение.
func (a *AuthClient) Close() error {
	return a.conn.Close()
}

// Login выполняет вход и возвращает токен и идентичность пользователя.
func (a *AuthClient) Login(ctx context.Context, email, password string) (string, *models.Identity, error) {
	resp, err := a.client.Login(ctx, &authpb.LoginRequest{Email: email, Password: password})
	if err != nil {
		return "", nil, fromStatus(err, errs.ErrInvalidCredentials)
	}
	return resp.Token, &models.Identity{
		UserID:   resp.UserID,
		Email:    resp.Email,
		Role:     resp.Role,
		TenantID: resp.TenantID,
	}, nil
}

// ValidateToken проверяет токен и возвращает идентичность его владельца.
func (a *AuthClient) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	resp, err := a.client.ValidateToken(ctx, &authpb.ValidateTokenRequest{Token: token})
	if err != nil {
		return nil, fromStatus(err, errs.ErrUnauthorized)
	}
	return &models.Identity{
		UserID:   resp.UserID,
		Email:    resp.Email,
		Role:     resp.Role,
		TenantID: resp.TenantID,
	}, nil
}

// fromStatus переводит статус gRPC в доменную ошибку; unauthenticated
// возвращается для codes.Unauthenticated.
func fromStatus(err, unauthenticated error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Unauthenticated:
		return unauthenticated
	case codes.PermissionDenied:
		if domain := errs.FromCode(st.Message()); domain != nil {
			return domain
		}
		return errs.ErrForbidden
	default:
		return fmt.Errorf("auth service: %w", err)
	}
}
