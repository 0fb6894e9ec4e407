package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"

	"github.com/magabrotheeeer/schoolhub/internal/grpc/authpb"
	"github.com/magabrotheeeer/schoolhub/internal/grpc/server"
	"github.com/magabrotheeeer/schoolhub/internal/lib/jwt"
	"github.com/magabrotheeeer/schoolhub/internal/lib/password"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/auth"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

// memUsers хранилище пользователей в памяти для сквозного теста клиента и сервера.
type memUsers map[string]*models.User

func (m memUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range m {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (m memUsers) GetUser(_ context.Context, id string) (*models.User, error) {
	if u, ok := m[id]; ok {
		return u, nil
	}
	return nil, repository.ErrNotFound
}

func startServer(t *testing.T, users memUsers) *AuthClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := grpc.NewServer()
	svc := auth.NewService(users, jwt.NewJWTMaker("test-secret", time.Hour))
	authpb.RegisterAuthServiceServer(srv, server.NewAuthServer(svc, logger))
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewAuthClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestAuthClient_RoundTrip(t *testing.T) {
	hash, err := password.GetHash("password123")
	require.NoError(t, err)
	tenant := "tenant-1"
	users := memUsers{
		"u1": {ID: "u1", Email: "head@school.edu", PasswordHash: hash, Role: models.RoleSchoolAdmin,
			Status: models.UserStatusActive, TenantID: &tenant},
		"u2": {ID: "u2", Email: "new@school.edu", PasswordHash: hash, Role: models.RoleSchoolAdmin,
			Status: models.UserStatusPending},
	}
	c := startServer(t, users)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	token, identity, err := c.Login(ctx, "head@school.edu", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, tenant, identity.TenantID)

	validated, err := c.ValidateToken(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, *identity, *validated)

	_, _, err = c.Login(ctx, "head@school.edu", "wrong-password")
	assert.ErrorIs(t, err, errs.ErrInvalidCredentials)

	_, _, err = c.Login(ctx, "new@school.edu", "password123")
	assert.ErrorIs(t, err, errs.ErrSchoolPending)

	_, err = c.ValidateToken(ctx, "garbage")
	assert.ErrorIs(t, err, errs.ErrUnauthorized)
}
