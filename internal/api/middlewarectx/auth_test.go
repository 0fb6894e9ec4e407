package middlewarectx

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

type MockAuthClient struct {
	mock.Mock
}

func (m *MockAuthClient) ValidateToken(ctx context.Context, token string) (*models.Identity, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Identity), args.Error(1)
}

func newNoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{}))
}

func TestJWTMiddleware(t *testing.T) {
	admin := &models.Identity{UserID: "u1", Email: "head@school.io", Role: models.RoleSchoolAdmin, TenantID: "t1"}

	tests := []struct {
		name           string
		authHeader     string
		setupMocks     func(*MockAuthClient)
		expectedStatus int
		expectedBody   string
		wantIdentity   *models.Identity
	}{
		{
			name:       "valid token",
			authHeader: "Bearer good",
			setupMocks: func(ac *MockAuthClient) {
				ac.On("ValidateToken", mock.Anything, "good").Return(admin, nil).Once()
			},
			expectedStatus: http.StatusOK,
			wantIdentity:   admin,
		},
		{
			name:           "missing header",
			setupMocks:     func(*MockAuthClient) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"missing or invalid authorization header","code":"UNAUTHORIZED"}`,
		},
		{
			name:           "not a bearer token",
			authHeader:     "Basic abc",
			setupMocks:     func(*MockAuthClient) {},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"missing or invalid authorization header","code":"UNAUTHORIZED"}`,
		},
		{
			name:       "rejected token",
			authHeader: "Bearer stale",
			setupMocks: func(ac *MockAuthClient) {
				ac.On("ValidateToken", mock.Anything, "stale").Return(nil, errs.ErrUnauthorized).Once()
			},
			expectedStatus: http.StatusUnauthorized,
			expectedBody:   `{"status":"Error","error":"invalid or expired token","code":"UNAUTHORIZED"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac := new(MockAuthClient)
			tt.setupMocks(ac)

			var got models.Identity
			var called bool
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				got, _ = IdentityFrom(r.Context())
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/subscriptions/me", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			w := httptest.NewRecorder()

			JWTMiddleware(ac, newNoopLogger())(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.wantIdentity != nil {
				assert.True(t, called)
				assert.Equal(t, *tt.wantIdentity, got)
			} else {
				assert.False(t, called)
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			ac.AssertExpectations(t)
		})
	}
}

func TestRequireRole(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mw := RequireRole(newNoopLogger(), models.RoleSuperAdmin)

	tests := []struct {
		name     string
		identity *models.Identity
		want     int
	}{
		{name: "allowed role", identity: &models.Identity{UserID: "a", Role: models.RoleSuperAdmin}, want: http.StatusNoContent},
		{name: "other role", identity: &models.Identity{UserID: "p", Role: models.RoleParent}, want: http.StatusForbidden},
		{name: "no identity", want: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/subscriptions", nil)
			if tt.identity != nil {
				req = req.WithContext(WithIdentity(req.Context(), *tt.identity))
			}
			w := httptest.NewRecorder()

			mw(next).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
		})
	}
}

type MockSubscriptionChecker struct {
	mock.Mock
}

func (m *MockSubscriptionChecker) RequireActive(ctx context.Context, id models.Identity) (*models.Subscription, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func TestSubscriptionStatusMiddleware(t *testing.T) {
	id := models.Identity{UserID: "u1", Role: models.RoleSchoolAdmin, TenantID: "t1"}

	tests := []struct {
		name           string
		setupMocks     func(*MockSubscriptionChecker)
		expectedStatus int
		expectedBody   string
	}{
		{
			name: "active subscription",
			setupMocks: func(m *MockSubscriptionChecker) {
				m.On("RequireActive", mock.Anything, id).Return(&models.Subscription{ID: "s1"}, nil).Once()
			},
			expectedStatus: http.StatusOK,
		},
		{
			name: "inactive subscription",
			setupMocks: func(m *MockSubscriptionChecker) {
				m.On("RequireActive", mock.Anything, id).Return(nil, errs.ErrSubscriptionInactive).Once()
			},
			expectedStatus: http.StatusForbidden,
			expectedBody:   `{"status":"Error","error":"subscription inactive","code":"SUBSCRIPTION_INACTIVE"}`,
		},
		{
			name: "lookup failure",
			setupMocks: func(m *MockSubscriptionChecker) {
				m.On("RequireActive", mock.Anything, id).Return(nil, errors.New("redis down")).Once()
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"status":"Error","error":"internal error","code":"INTERNAL"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := new(MockSubscriptionChecker)
			tt.setupMocks(checker)

			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/school/classes", nil)
			req = req.WithContext(WithIdentity(req.Context(), id))
			w := httptest.NewRecorder()

			SubscriptionStatusMiddleware(newNoopLogger(), checker)(next).ServeHTTP(w, req)

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			checker.AssertExpectations(t)
		})
	}
}
