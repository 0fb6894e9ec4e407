package repository

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/magabrotheeeer/schoolhub/internal/migrations"
	"github.com/magabrotheeeer/schoolhub/internal/models"
)

const pgPort nat.Port = "5432/tcp"

// setupTestDatabase поднимает PostgreSQL в контейнере и применяет миграции.
func setupTestDatabase(t *testing.T) *Storage {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping PostgreSQL integration test in short mode")
	}
	ctx := context.Background()

	container, err := postgres.Run(ctx,
		"postgres:15-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		),
	)
	require.NoError(t, err, "failed to start container")
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, pgPort)
	require.NoError(t, err)
	connStr := fmt.Sprintf("postgres://testuser:testpass@%s:%s/testdb?sslmode=disable", host, port.Port())

	var storage *Storage
	for range 10 {
		storage, err = New(connStr)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err, "failed to create storage after retries")
	t.Cleanup(func() {
		_ = storage.Close()
	})

	root, err := filepath.Abs("../../..")
	require.NoError(t, err)
	require.NoError(t, migrations.Run(storage.DB, filepath.Join(root, "migrations")))
	require.NoError(t, CheckDatabaseReady(ctx, storage))
	return storage
}

// testDataFactory создаёт тестовые данные напрямую через Storage.
type testDataFactory struct {
	t *testing.T
	s *Storage
}

func newTestDataFactory(t *testing.T, s *Storage) *testDataFactory {
	return &testDataFactory{t: t, s: s}
}

func (f *testDataFactory) school(name, code string) (*models.Company, *models.Organization, *models.User) {
	c := &models.Company{
		Name: name, Email: uuid.NewString() + "@school.edu", ContactName: "Head",
		Kind: models.CompanyKindSchool, Status: models.CompanyStatusPending,
	}
	org := &models.Organization{Name: name, Code: code}
	admin := &models.User{
		Email: uuid.NewString() + "@school.edu", PasswordHash: "hash", Name: "Head",
		Role: models.RoleSchoolAdmin, Status: models.UserStatusPending,
	}
	require.NoError(f.t, f.s.CreateCompanySignup(context.Background(), c, org, admin))
	return c, org, admin
}

func (f *testDataFactory) user(role string, tenantID *string) *models.User {
	u := &models.User{
		TenantID: tenantID, Email: uuid.NewString() + "@mail.com", PasswordHash: "hash",
		Name: "User " + role, Role: role, Status: models.UserStatusActive,
	}
	if role == models.RoleStudent {
		code := uuid.NewString()[:8]
		u.ParentLinkCode = &code
	}
	require.NoError(f.t, f.s.CreateUser(context.Background(), u))
	return u
}

func (f *testDataFactory) subscription(userID, tenantID *string, status string, end time.Time) *models.Subscription {
	sub := &models.Subscription{
		UserID: userID, TenantID: tenantID, Plan: "student_premium", Status: status,
		BillingCycle: "monthly", Amount: 499, Currency: "usd",
		StartDate: end.AddDate(0, -1, 0), EndDate: end,
	}
	require.NoError(f.t, f.s.CreateSubscription(context.Background(), sub))
	return sub
}
