package subscription

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/schoolhub/internal/cache"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/paymentprovider"
	"github.com/magabrotheeeer/schoolhub/internal/plans"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
	"github.com/magabrotheeeer/schoolhub/internal/storage/repository"
)

type RepoMock struct {
	mock.Mock
}

func (m *RepoMock) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	args := m.Called(ctx, sub)
	if args.Error(0) == nil && sub.ID == "" {
		sub.ID = "new-sub"
	}
	return args.Error(0)
}

func (m *RepoMock) UpdateSubscription(ctx context.Context, sub *models.Subscription) error {
	return m.Called(ctx, sub).Error(0)
}

func (m *RepoMock) DeleteSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *RepoMock) sub(args mock.Arguments) (*models.Subscription, error) {
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Subscription), args.Error(1)
}

func (m *RepoMock) GetSubscription(ctx context.Context, id string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, id))
}

func (m *RepoMock) GetSubscriptionByUser(ctx context.Context, userID string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, userID))
}

func (m *RepoMock) GetSubscriptionByTenant(ctx context.Context, tenantID string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, tenantID))
}

func (m *RepoMock) GetSubscriptionByStripeID(ctx context.Context, id string) (*models.Subscription, error) {
	return m.sub(m.Called(ctx, id))
}

func (m *RepoMock) ListSubscriptions(ctx context.Context, f models.SubscriptionFilter) ([]*models.Subscription, error) {
	args := m.Called(ctx, f)
	return args.Get(0).([]*models.Subscription), args.Error(1)
}

type CheckoutMock struct {
	mock.Mock
}

func (m *CheckoutMock) CreateCheckout(ctx context.Context, req paymentprovider.CheckoutRequest) (*paymentprovider.Session, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*paymentprovider.Session), args.Error(1)
}

var now = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *RepoMock, *CheckoutMock, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c := &cache.Cache{Db: redis.NewClient(&redis.Options{Addr: mr.Addr()})}
	t.Cleanup(func() { _ = c.Close() })

	repo, co := new(RepoMock), new(CheckoutMock)
	svc := NewService(repo, c, co, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return now }
	return svc, repo, co, mr
}

func ptr(s string) *string { return &s }

func TestService_Me_CachesAndFallsBackToTenant(t *testing.T) {
	svc, repo, _, mr := setup(t)
	tenantSub := &models.Subscription{ID: "s-t", TenantID: ptr("t1"), Plan: plans.EducationalInstitutionsPremium,
		Status: models.SubscriptionStatusTrial, EndDate: now.AddDate(0, 0, 10)}
	repo.On("GetSubscriptionByUser", mock.Anything, "kid").Return(nil, repository.ErrNotFound)
	repo.On("GetSubscriptionByTenant", mock.Anything, "t1").Return(tenantSub, nil).Once()

	student := models.Identity{UserID: "kid", Role: models.RoleStudent, TenantID: "t1"}
	view, err := svc.Me(context.Background(), student)
	require.NoError(t, err)
	assert.True(t, view.IsActive)
	assert.Equal(t, 10, view.DaysUntilExpiry)
	assert.Contains(t, view.Features, plans.FeatureClassManagement)
	assert.True(t, mr.Exists(cache.SubscriptionTenantKey("t1")))

	admin := models.Identity{UserID: "head", Role: models.RoleSchoolAdmin, TenantID: "t1"}
	view, err = svc.Me(context.Background(), admin)
	require.NoError(t, err)
	assert.Equal(t, "s-t", view.Subscription.ID)
	repo.AssertNumberOfCalls(t, "GetSubscriptionByTenant", 1)
}

func TestService_Me_NotFound(t *testing.T) {
	svc, repo, _, _ := setup(t)
	repo.On("GetSubscriptionByUser", mock.Anything, "p1").Return(nil, repository.ErrNotFound)

	_, err := svc.Me(context.Background(), models.Identity{UserID: "p1", Role: models.RoleParent})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.RequireActive(context.Background(), models.Identity{UserID: "p1", Role: models.RoleParent})
	assert.ErrorIs(t, err, errs.ErrSubscriptionInactive)
}

func TestService_RequireActive_Expired(t *testing.T) {
	svc, repo, _, _ := setup(t)
	repo.On("GetSubscriptionByTenant", mock.Anything, "t1").Return(&models.Subscription{
		ID: "s", TenantID: ptr("t1"), Status: models.SubscriptionStatusActive, EndDate: now.Add(-time.Hour),
	}, nil)

	_, err := svc.RequireActive(context.Background(), models.Identity{UserID: "h", Role: models.RoleSchoolAdmin, TenantID: "t1"})
	assert.ErrorIs(t, err, errs.ErrSubscriptionInactive)
}

func TestService_Cancel_InvalidatesCache(t *testing.T) {
	svc, repo, _, mr := setup(t)
	sub := &models.Subscription{ID: "s1", UserID: ptr("u1"), Plan: plans.StudentPremium,
		Status: models.SubscriptionStatusActive, AutoRenew: true, EndDate: now.AddDate(0, 1, 0)}
	repo.On("GetSubscriptionByUser", mock.Anything, "u1").Return(sub, nil)
	repo.On("UpdateSubscription", mock.Anything, mock.Anything).Return(nil)

	id := models.Identity{UserID: "u1", Role: models.RoleStudent}
	got, err := svc.Cancel(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, got.Status)
	assert.False(t, got.AutoRenew)
	assert.False(t, mr.Exists(cache.SubscriptionUserKey("u1")))

	_, err = svc.Cancel(context.Background(), id)
	assert.ErrorIs(t, err, errs.ErrAlreadyProcessed)
}

func TestService_Cancel_SchoolStudentCannotReachTenant(t *testing.T) {
	svc, repo, _, _ := setup(t)
	repo.On("GetSubscriptionByUser", mock.Anything, "kid").Return(nil, repository.ErrNotFound)
	repo.On("GetSubscriptionByTenant", mock.Anything, "t1").Return(&models.Subscription{
		ID: "s-t", TenantID: ptr("t1"), Plan: plans.EducationalInstitutionsPremium,
		Status: models.SubscriptionStatusActive, EndDate: now.AddDate(0, 1, 0),
	}, nil).Maybe()

	student := models.Identity{UserID: "kid", Role: models.RoleStudent, TenantID: "t1"}
	_, err := svc.Cancel(context.Background(), student)

	assert.ErrorIs(t, err, errs.ErrNotFound)
	repo.AssertNotCalled(t, "GetSubscriptionByTenant", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything)
}

func TestService_Managed(t *testing.T) {
	svc, repo, _, _ := setup(t)
	tenantSub := &models.Subscription{ID: "s-t", TenantID: ptr("t1"), Status: models.SubscriptionStatusActive}
	repo.On("GetSubscriptionByTenant", mock.Anything, "t1").Return(tenantSub, nil)
	repo.On("GetSubscriptionByUser", mock.Anything, "kid").Return(nil, repository.ErrNotFound)

	got, err := svc.Managed(context.Background(), models.Identity{UserID: "head", Role: models.RoleSchoolAdmin, TenantID: "t1"})
	require.NoError(t, err)
	assert.Equal(t, "s-t", got.ID)

	_, err = svc.Managed(context.Background(), models.Identity{UserID: "head", Role: models.RoleSchoolAdmin})
	assert.ErrorIs(t, err, errs.ErrNotFound)

	_, err = svc.Managed(context.Background(), models.Identity{UserID: "kid", Role: models.RoleStudent, TenantID: "t1"})
	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_Checkout(t *testing.T) {
	tests := []struct {
		name    string
		id      models.Identity
		plan    string
		cycle   string
		wantErr error
		meta    map[string]string
	}{
		{
			name: "student buys premium", id: models.Identity{UserID: "u1", Role: models.RoleStudent, Email: "kid@mail.com"},
			plan: plans.StudentPremium, cycle: plans.CycleMonthly,
			meta: map[string]string{"kind": "subscription", "plan": plans.StudentPremium, "billing_cycle": "monthly", "user_id": "u1"},
		},
		{
			name: "school buys institutional", id: models.Identity{UserID: "h1", Role: models.RoleSchoolAdmin, TenantID: "t1"},
			plan: plans.EducationalInstitutionsPremium, cycle: plans.CycleYearly,
			meta: map[string]string{"kind": "subscription", "plan": plans.EducationalInstitutionsPremium, "billing_cycle": "yearly", "tenant_id": "t1"},
		},
		{
			name: "free plan", id: models.Identity{UserID: "u1", Role: models.RoleStudent},
			plan: plans.Free, cycle: plans.CycleMonthly, wantErr: errs.ErrInvalidInput,
		},
		{
			name: "unknown plan", id: models.Identity{UserID: "u1", Role: models.RoleStudent},
			plan: "gold", cycle: plans.CycleMonthly, wantErr: errs.ErrUnknownPlan,
		},
		{
			name: "school admin without tenant", id: models.Identity{UserID: "h1", Role: models.RoleSchoolAdmin},
			plan: plans.EducationalInstitutionsPremium, cycle: plans.CycleMonthly, wantErr: errs.ErrForbidden,
		},
		{
			name: "parent cannot buy institutional", id: models.Identity{UserID: "p1", Role: models.RoleParent},
			plan: plans.EducationalInstitutionsPremium, cycle: plans.CycleMonthly, wantErr: errs.ErrForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _, co, _ := setup(t)
			co.On("CreateCheckout", mock.Anything, mock.MatchedBy(func(r paymentprovider.CheckoutRequest) bool {
				return assert.ObjectsAreEqual(tt.meta, r.Metadata)
			})).Return(&paymentprovider.Session{ID: "cs_1", URL: "https://pay"}, nil).Maybe()

			s, err := svc.Checkout(context.Background(), tt.id, tt.plan, tt.cycle)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				co.AssertNotCalled(t, "CreateCheckout", mock.Anything, mock.Anything)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "https://pay", s.URL)
		})
	}
}

func TestService_Create(t *testing.T) {
	svc, repo, _, _ := setup(t)
	repo.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil).Once()

	sub, err := svc.Create(context.Background(), models.SubscriptionInput{
		UserID: ptr("u1"), Plan: plans.StudentPremium, BillingCycle: plans.CycleYearly, StartDate: "2025-01-15",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4990), sub.Amount)
	assert.Equal(t, time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC), sub.EndDate)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)

	_, err = svc.Create(context.Background(), models.SubscriptionInput{
		UserID: ptr("u1"), TenantID: ptr("t1"), Plan: plans.StudentPremium, BillingCycle: plans.CycleYearly,
	})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = svc.Create(context.Background(), models.SubscriptionInput{
		UserID: ptr("u1"), Plan: plans.StudentPremium, BillingCycle: plans.CycleYearly, StartDate: "15-01-2025",
	})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	repo.On("CreateSubscription", mock.Anything, mock.Anything).Return(repository.ErrDuplicate).Once()
	_, err = svc.Create(context.Background(), models.SubscriptionInput{
		TenantID: ptr("t1"), Plan: plans.EducationalInstitutionsPremium, BillingCycle: plans.CycleMonthly,
	})
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestService_Delete_NotFound(t *testing.T) {
	svc, repo, _, _ := setup(t)
	repo.On("GetSubscription", mock.Anything, "nope").Return(nil, repository.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(context.Background(), "nope"), errs.ErrNotFound)
}

func TestService_ActivatePaid(t *testing.T) {
	t.Run("extends active subscription from its end date", func(t *testing.T) {
		svc, repo, _, _ := setup(t)
		current := &models.Subscription{ID: "s1", UserID: ptr("u1"), Plan: plans.Free,
			Status: models.SubscriptionStatusActive, StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 0, 5)}
		repo.On("GetSubscriptionByUser", mock.Anything, "u1").Return(current, nil)
		repo.On("UpdateSubscription", mock.Anything, current).Return(nil)

		sub, err := svc.ActivatePaid(context.Background(), &models.PaymentEvent{
			CustomerID: "cus_1", StripeSubscriptionID: "sub_1",
			Metadata: map[string]string{"kind": "subscription", "plan": plans.StudentPremium, "billing_cycle": "monthly", "user_id": "u1"},
		})
		require.NoError(t, err)
		assert.Equal(t, plans.StudentPremium, sub.Plan)
		assert.Equal(t, now.AddDate(0, 0, 5).AddDate(0, 1, 0), sub.EndDate)
		assert.Equal(t, "sub_1", *sub.StripeSubscriptionID)
		assert.True(t, sub.AutoRenew)
	})

	t.Run("repeated event is ignored", func(t *testing.T) {
		svc, repo, _, _ := setup(t)
		current := &models.Subscription{ID: "s1", UserID: ptr("u1"), StripeSubscriptionID: ptr("sub_1"),
			Status: models.SubscriptionStatusActive, EndDate: now.AddDate(0, 1, 0)}
		repo.On("GetSubscriptionByUser", mock.Anything, "u1").Return(current, nil)

		_, err := svc.ActivatePaid(context.Background(), &models.PaymentEvent{StripeSubscriptionID: "sub_1",
			Metadata: map[string]string{"plan": plans.StudentPremium, "billing_cycle": "monthly", "user_id": "u1"}})
		require.NoError(t, err)
		repo.AssertNotCalled(t, "UpdateSubscription", mock.Anything, mock.Anything)
	})

	t.Run("creates tenant subscription", func(t *testing.T) {
		svc, repo, _, _ := setup(t)
		repo.On("GetSubscriptionByTenant", mock.Anything, "t1").Return(nil, repository.ErrNotFound)
		repo.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(s *models.Subscription) bool {
			return s.TenantID != nil && *s.TenantID == "t1" && s.UserID == nil
		})).Return(nil)

		sub, err := svc.ActivatePaid(context.Background(), &models.PaymentEvent{
			Metadata: map[string]string{"plan": plans.EducationalInstitutionsPremium, "billing_cycle": "yearly", "tenant_id": "t1"}})
		require.NoError(t, err)
		assert.Equal(t, now.AddDate(1, 0, 0), sub.EndDate)
		assert.Equal(t, now, sub.StartDate)
	})

	t.Run("metadata without owner", func(t *testing.T) {
		svc, _, _, _ := setup(t)
		_, err := svc.ActivatePaid(context.Background(), &models.PaymentEvent{
			Metadata: map[string]string{"plan": plans.StudentPremium, "billing_cycle": "monthly"}})
		assert.ErrorIs(t, err, errs.ErrInvalidInput)
	})
}

func TestService_StripeLifecycle(t *testing.T) {
	svc, repo, _, _ := setup(t)
	sub := &models.Subscription{ID: "s1", UserID: ptr("u1"), BillingCycle: plans.CycleMonthly,
		Status: models.SubscriptionStatusActive, EndDate: now.Add(-time.Hour)}
	repo.On("GetSubscriptionByStripeID", mock.Anything, "sub_1").Return(sub, nil)
	repo.On("UpdateSubscription", mock.Anything, sub).Return(nil)

	got, err := svc.ExtendByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, now.AddDate(0, 1, 0), got.EndDate, "lapsed subscription renews from now")

	got, err = svc.CancelByStripeID(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusCancelled, got.Status)
}
