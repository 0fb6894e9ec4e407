package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/schoolhub/internal/models"
)

func admission(code string, seq int) string {
	return fmt.Sprintf("%s-2025-%04d", code, seq)
}

func TestStorage(t *testing.T) {
	s := setupTestDatabase(t)
	f := newTestDataFactory(t, s)
	ctx := context.Background()

	t.Run("company signup, duplicate email and unique org code", func(t *testing.T) {
		c, org, admin := f.school("Green Hill School", "GHS")
		assert.NotEmpty(t, c.ID)
		assert.Equal(t, "GHS", org.Code)
		require.NotNil(t, admin.TenantID)
		assert.Equal(t, org.ID, *admin.TenantID)

		_, org2, _ := f.school("Grand Heights School", "GHS")
		assert.Equal(t, "GHS2", org2.Code)

		taken, err := s.EmailTaken(ctx, c.Email)
		require.NoError(t, err)
		assert.True(t, taken)

		dup := &models.User{Email: admin.Email, PasswordHash: "x", Name: "x", Role: models.RoleStudent, Status: models.UserStatusActive}
		err = s.CreateUser(ctx, dup)
		assert.ErrorIs(t, err, ErrDuplicate)

		pending, err := s.ListCompaniesByStatus(ctx, models.CompanyStatusPending)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(pending), 2)
	})

	t.Run("approve company activates admin and creates trial", func(t *testing.T) {
		c, _, admin := f.school("Oak Academy", "OAK")
		reviewer := f.user(models.RoleSuperAdmin, nil)
		end := time.Now().AddDate(0, 0, 30)

		company, org, err := s.ApproveCompany(ctx, c.ID, reviewer.ID, func(o *models.Organization) *models.Subscription {
			return &models.Subscription{
				TenantID: &o.ID, Plan: "educational_institutions_premium", Status: models.SubscriptionStatusTrial,
				BillingCycle: "monthly", Currency: "usd", StartDate: time.Now(), EndDate: end,
			}
		})
		require.NoError(t, err)
		assert.Equal(t, models.CompanyStatusApproved, company.Status)
		require.NotNil(t, company.ReviewedAt)

		u, err := s.GetUser(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, models.UserStatusActive, u.Status)

		sub, err := s.GetSubscriptionByTenant(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusTrial, sub.Status)

		_, _, err = s.ApproveCompany(ctx, c.ID, reviewer.ID, func(*models.Organization) *models.Subscription { return nil })
		assert.ErrorIs(t, err, ErrConflict)

		_, err = s.RejectCompany(ctx, c.ID, reviewer.ID, "late")
		assert.ErrorIs(t, err, ErrConflict)

		_, err = s.RejectCompany(ctx, "00000000-0000-0000-0000-000000000000", reviewer.ID, "x")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("reject company disables admin", func(t *testing.T) {
		c, _, admin := f.school("Pine School", "PSC")
		reviewer := f.user(models.RoleSuperAdmin, nil)

		company, err := s.RejectCompany(ctx, c.ID, reviewer.ID, "incomplete documents")
		require.NoError(t, err)
		require.NotNil(t, company.RejectionReason)
		assert.Equal(t, "incomplete documents", *company.RejectionReason)

		u, err := s.GetUser(ctx, admin.ID)
		require.NoError(t, err)
		assert.Equal(t, models.UserStatusDisabled, u.Status)
	})

	t.Run("admission numbers are sequential under concurrency", func(t *testing.T) {
		_, org, _ := f.school("River School", "RIV")

		var wg sync.WaitGroup
		numbers := make(chan string, 10)
		for i := range 10 {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				u := &models.User{
					TenantID: &org.ID, Email: fmt.Sprintf("riv%d@school.edu", i), PasswordHash: "h",
					Name: "Kid", Role: models.RoleStudent, Status: models.UserStatusActive,
				}
				if assert.NoError(t, s.CreateSchoolStudent(ctx, u, admission)) {
					numbers <- *u.AdmissionNumber
				}
			}(i)
		}
		wg.Wait()
		close(numbers)

		seen := map[string]bool{}
		for n := range numbers {
			assert.False(t, seen[n], "duplicate admission number %s", n)
			seen[n] = true
		}
		assert.Len(t, seen, 10)
		assert.True(t, seen["RIV-2025-0001"])
		assert.True(t, seen["RIV-2025-0010"])

		count, err := s.CountStudents(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, 10, count)
	})

	t.Run("join class assigns tenant and admission number", func(t *testing.T) {
		_, org, _ := f.school("Lake School", "LAK")
		class := &models.Class{TenantID: org.ID, Name: "5A", Grade: "5", JoinCode: "JOINLAK5"}
		require.NoError(t, s.CreateClass(ctx, class))

		found, err := s.GetClassByJoinCode(ctx, "JOINLAK5")
		require.NoError(t, err)
		assert.Equal(t, class.ID, found.ID)

		student := f.user(models.RoleStudent, nil)
		joined, err := s.AttachStudentToClass(ctx, student.ID, found, admission)
		require.NoError(t, err)
		assert.Equal(t, org.ID, *joined.TenantID)
		assert.Equal(t, "LAK-2025-0001", *joined.AdmissionNumber)

		n, err := s.CountClasses(ctx, org.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("one pending renewal per subscription and approval", func(t *testing.T) {
		owner := f.user(models.RoleStudent, nil)
		sub := f.subscription(&owner.ID, nil, models.SubscriptionStatusActive, time.Now().AddDate(0, 0, 5))

		r := &models.SubscriptionRenewalRequest{
			SubscriptionID: sub.ID, RequestedBy: owner.ID, Plan: "student_premium",
			BillingCycle: "yearly", Status: models.RenewalStatusPending,
		}
		require.NoError(t, s.CreateRenewalRequest(ctx, r))

		second := *r
		second.ID = ""
		assert.ErrorIs(t, s.CreateRenewalRequest(ctx, &second), ErrDuplicate)

		admin := f.user(models.RoleSuperAdmin, nil)
		newEnd := sub.EndDate.AddDate(1, 0, 0)
		approved, updated, err := s.ApproveRenewal(ctx, r.ID, admin.ID, "ok",
			func(req *models.SubscriptionRenewalRequest, cur *models.Subscription) error {
				cur.BillingCycle = req.BillingCycle
				cur.EndDate = newEnd
				cur.Amount = 4990
				return nil
			})
		require.NoError(t, err)
		assert.Equal(t, models.RenewalStatusApproved, approved.Status)
		assert.WithinDuration(t, newEnd, updated.EndDate, time.Millisecond)

		_, err = s.RejectRenewal(ctx, r.ID, admin.ID, "too late")
		assert.ErrorIs(t, err, ErrConflict)

		// после рассмотрения можно подать новую заявку
		third := &models.SubscriptionRenewalRequest{
			SubscriptionID: sub.ID, RequestedBy: owner.ID, Plan: "student_premium",
			BillingCycle: "monthly", Status: models.RenewalStatusPending,
		}
		require.NoError(t, s.CreateRenewalRequest(ctx, third))

		applyErr := errors.New("unknown plan")
		_, _, err = s.ApproveRenewal(ctx, third.ID, admin.ID, "",
			func(*models.SubscriptionRenewalRequest, *models.Subscription) error { return applyErr })
		assert.ErrorIs(t, err, applyErr)

		still, err := s.GetRenewalRequest(ctx, third.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RenewalStatusPending, still.Status, "failed approval must roll back")
	})

	t.Run("expiring list, reminder dedup and expiry sweep", func(t *testing.T) {
		now := time.Now()
		owner := f.user(models.RoleStudent, nil)
		sub := f.subscription(&owner.ID, nil, models.SubscriptionStatusActive, now.Add(3*24*time.Hour))

		list, err := s.ListExpiring(ctx, now, now.AddDate(0, 0, 8))
		require.NoError(t, err)
		var found *models.ExpiringSubscription
		for _, e := range list {
			if e.Subscription.ID == sub.ID {
				found = e
			}
		}
		require.NotNil(t, found)
		assert.Equal(t, owner.ID, found.OwnerID)
		assert.Equal(t, owner.Email, found.OwnerEmail)

		inserted, err := s.RecordExpirationNotification(ctx, sub.ID, 3, sub.EndDate)
		require.NoError(t, err)
		assert.True(t, inserted)
		inserted, err = s.RecordExpirationNotification(ctx, sub.ID, 3, sub.EndDate)
		require.NoError(t, err)
		assert.False(t, inserted)

		lapsed := f.user(models.RoleStudent, nil)
		old := f.subscription(&lapsed.ID, nil, models.SubscriptionStatusActive, now.Add(-time.Hour))
		expired, err := s.ExpireOverdue(ctx, now)
		require.NoError(t, err)
		ids := map[string]string{}
		for _, e := range expired {
			ids[e.Subscription.ID] = e.OwnerID
		}
		assert.Equal(t, lapsed.ID, ids[old.ID])
		assert.NotContains(t, ids, sub.ID)

		got, err := s.GetSubscription(ctx, old.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SubscriptionStatusExpired, got.Status)
	})

	t.Run("complete parent intent", func(t *testing.T) {
		student := f.user(models.RoleStudent, nil)
		intent := &models.ParentRegistrationIntent{
			Email: "Parent@Mail.com", Name: "Parent", PasswordHash: "hash", StudentID: student.ID,
			Plan: "student_parent_premium_pro", BillingCycle: "monthly", Status: models.IntentStatusPending,
			ExpiresAt: time.Now().Add(time.Hour),
		}
		require.NoError(t, s.CreateIntent(ctx, intent))
		assert.Equal(t, "parent@mail.com", intent.Email)
		require.NoError(t, s.SetIntentCheckoutSession(ctx, intent.ID, "cs_test_1"))

		build := func(i *models.ParentRegistrationIntent) (*models.User, *models.Subscription, error) {
			return &models.User{Email: i.Email, PasswordHash: i.PasswordHash, Name: i.Name,
					Role: models.RoleParent, Status: models.UserStatusActive},
				&models.Subscription{Plan: i.Plan, Status: models.SubscriptionStatusActive, BillingCycle: i.BillingCycle,
					Amount: 999, Currency: "usd", StartDate: time.Now(), EndDate: time.Now().AddDate(0, 1, 0)},
				nil
		}

		account, err := s.CompleteParentIntent(ctx, intent.ID, time.Now(), build)
		require.NoError(t, err)
		assert.Equal(t, student.ID, account.StudentID)
		assert.Equal(t, account.Parent.ID, *account.Subscription.UserID)

		children, err := s.ListChildren(ctx, account.Parent.ID)
		require.NoError(t, err)
		require.Len(t, children, 1)
		assert.Equal(t, student.ID, children[0].ID)

		_, err = s.CompleteParentIntent(ctx, intent.ID, time.Now(), build)
		assert.ErrorIs(t, err, ErrConflict)

		stale := &models.ParentRegistrationIntent{
			Email: "late@mail.com", Name: "Late", PasswordHash: "hash", StudentID: student.ID,
			Plan: "student_parent_premium_pro", BillingCycle: "monthly", Status: models.IntentStatusPending,
			ExpiresAt: time.Now().Add(-time.Minute),
		}
		require.NoError(t, s.CreateIntent(ctx, stale))
		_, err = s.CompleteParentIntent(ctx, stale.ID, time.Now(), build)
		assert.ErrorIs(t, err, ErrIntentExpired)

		_, err = s.GetUserByEmail(ctx, "late@mail.com")
		assert.ErrorIs(t, err, ErrNotFound, "expired intent must not create a user")

		n, err := s.ExpirePendingIntents(ctx, time.Now())
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, int64(1))
	})

	t.Run("notifications", func(t *testing.T) {
		u := f.user(models.RoleParent, nil)
		for i := range 3 {
			n := &models.Notification{
				UserID: u.ID, Type: models.NotificationWelcome, Title: "t", Message: fmt.Sprint(i),
				Data: json.RawMessage(`{"i":1}`),
			}
			require.NoError(t, s.CreateNotification(ctx, n))
		}

		list, err := s.ListNotifications(ctx, models.NotificationFilter{UserID: u.ID})
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.JSONEq(t, `{"i":1}`, string(list[0].Data))

		require.NoError(t, s.MarkRead(ctx, list[0].ID, u.ID))
		assert.ErrorIs(t, s.MarkRead(ctx, list[0].ID, "00000000-0000-0000-0000-000000000000"), ErrNotFound)

		unread, err := s.CountUnread(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, unread)

		onlyUnread, err := s.ListNotifications(ctx, models.NotificationFilter{UserID: u.ID, UnreadOnly: true})
		require.NoError(t, err)
		assert.Len(t, onlyUnread, 2)

		n, err := s.MarkAllRead(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("self registered student with free subscription", func(t *testing.T) {
		code := "SELFREG2"
		u := &models.User{Email: "Self@Mail.com", PasswordHash: "x", Name: "Self", Role: models.RoleStudent,
			Status: models.UserStatusActive, ParentLinkCode: &code}
		sub := &models.Subscription{Plan: "free", Status: models.SubscriptionStatusActive, BillingCycle: "yearly",
			Currency: "usd", StartDate: time.Now(), EndDate: time.Now().AddDate(100, 0, 0)}
		require.NoError(t, s.CreateUserWithSubscription(ctx, u, sub))
		assert.Equal(t, "self@mail.com", u.Email)

		got, err := s.GetSubscriptionByUser(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.ID, got.ID)

		student, err := s.GetStudentByLinkCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, u.ID, student.ID)

		dup := &models.User{Email: "self@mail.com", PasswordHash: "x", Name: "x", Role: models.RoleStudent, Status: models.UserStatusActive}
		err = s.CreateUserWithSubscription(ctx, dup, &models.Subscription{Plan: "free", Status: models.SubscriptionStatusActive,
			BillingCycle: "yearly", Currency: "usd", StartDate: time.Now(), EndDate: time.Now()})
		assert.ErrorIs(t, err, ErrDuplicate)
	})

	t.Run("enrolled student link code", func(t *testing.T) {
		_, org, _ := f.school("Lake School", "LAK")
		code := "ENROL234"
		u := &models.User{TenantID: &org.ID, Email: "enrolled@school.edu", PasswordHash: "h", Name: "Kid",
			Role: models.RoleStudent, Status: models.UserStatusActive, ParentLinkCode: &code}
		require.NoError(t, s.CreateSchoolStudent(ctx, u, admission))

		student, err := s.GetStudentByLinkCode(ctx, code)
		require.NoError(t, err)
		assert.Equal(t, u.ID, student.ID)

		sameCode := &models.User{TenantID: &org.ID, Email: "other@school.edu", PasswordHash: "h", Name: "Kid",
			Role: models.RoleStudent, Status: models.UserStatusActive, ParentLinkCode: &code}
		err = s.CreateSchoolStudent(ctx, sameCode, admission)
		assert.ErrorIs(t, err, ErrCodeTaken)
		assert.ErrorIs(t, err, ErrDuplicate)

		other := "ENROL235"
		sameEmail := &models.User{TenantID: &org.ID, Email: "enrolled@school.edu", PasswordHash: "h", Name: "Kid",
			Role: models.RoleStudent, Status: models.UserStatusActive, ParentLinkCode: &other}
		err = s.CreateSchoolStudent(ctx, sameEmail, admission)
		assert.ErrorIs(t, err, ErrDuplicate)
		assert.NotErrorIs(t, err, ErrCodeTaken)
	})
}
