package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/magabrotheeeer/schoolhub/internal/grpc/authpb"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// MockAuthService - мок для сервиса авторизации
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	args := m.Called(ctx, email, password)
	if args.Get(1) == nil {
		return args.String(0), nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*models.User), args.Error(2)
}

func (m *MockAuthService) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

var _ AuthServiceInterface = (*MockAuthService)(nil)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAuthServer_Login(t *testing.T) {
	tenant := "t-1"
	tests := []struct {
		name        string
		mockSetup   func(*MockAuthService)
		wantCode    codes.Code
		wantMessage string
	}{
		{
			name: "success",
			mockSetup: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "head@school.edu", "pw").Return("tok",
					&models.User{ID: "u1", Email: "head@school.edu", Role: models.RoleSchoolAdmin, TenantID: &tenant}, nil)
			},
			wantCode: codes.OK,
		},
		{
			name: "bad credentials",
			mockSetup: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "head@school.edu", "pw").Return("", nil, errs.ErrInvalidCredentials)
			},
			wantCode:    codes.Unauthenticated,
			wantMessage: errs.CodeUnauthorized,
		},
		{
			name: "school pending",
			mockSetup: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "head@school.edu", "pw").Return("", nil, errs.ErrSchoolPending)
			},
			wantCode:    codes.PermissionDenied,
			wantMessage: errs.CodeSchoolPending,
		},
		{
			name: "disabled",
			mockSetup: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "head@school.edu", "pw").Return("", nil, errs.ErrAccountDisabled)
			},
			wantCode:    codes.PermissionDenied,
			wantMessage: errs.CodeAccountDisabled,
		},
		{
			name: "internal",
			mockSetup: func(m *MockAuthService) {
				m.On("Login", mock.Anything, "head@school.edu", "pw").Return("", nil, errors.New("db down"))
			},
			wantCode:    codes.Internal,
			wantMessage: errs.CodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := new(MockAuthService)
			tt.mockSetup(m)
			srv := NewAuthServer(m, newTestLogger())

			resp, err := srv.Login(context.Background(), &authpb.LoginRequest{Email: "head@school.edu", Password: "pw"})
			if tt.wantCode == codes.OK {
				require.NoError(t, err)
				assert.Equal(t, "tok", resp.Token)
				assert.Equal(t, "u1", resp.UserID)
				assert.Equal(t, tenant, resp.TenantID)
				return
			}
			st, ok := status.FromError(err)
			require.True(t, ok)
			assert.Equal(t, tt.wantCode, st.Code())
			assert.Equal(t, tt.wantMessage, st.Message())
			m.AssertExpectations(t)
		})
	}
}

func TestAuthServer_ValidateToken(t *testing.T) {
	m := new(MockAuthService)
	m.On("ValidateToken", mock.Anything, "good").Return(&models.Identity{UserID: "u1", Role: models.RoleParent}, nil)
	m.On("ValidateToken", mock.Anything, "bad").Return(nil, errs.ErrUnauthorized)
	srv := NewAuthServer(m, newTestLogger())

	resp, err := srv.ValidateToken(context.Background(), &authpb.ValidateTokenRequest{Token: "good"})
	require.NoError(t, err)
	assert.Equal(t, "u1", resp.UserID)
	assert.Equal(t, models.RoleParent, resp.Role)

	_, err = srv.ValidateToken(context.Background(), &authpb.ValidateTokenRequest{Token: "bad"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}
