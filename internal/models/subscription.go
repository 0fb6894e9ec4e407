package models

import (
	"time"
)

// Статусы подписки.
const (
	SubscriptionStatusTrial     = "trial"
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// Subscription подписка на тарифный план. Владельцем является либо пользователь (UserID),
// либо арендатор-школа (TenantID), но не оба сразу.
type Subscription struct {
	ID                   string    `json:"id"`
	UserID               *string   `json:"user_id,omitempty"`
	TenantID             *string   `json:"tenant_id,omitempty"`
	Plan                 string    `json:"plan"`
	Status               string    `json:"status"`
	BillingCycle         string    `json:"billing_cycle"`
	Amount               int64     `json:"amount"` // в минимальных единицах валюты
	Currency             string    `json:"currency"`
	StartDate            time.Time `json:"start_date"`
	EndDate              time.Time `json:"end_date"`
	AutoRenew            bool      `json:"auto_renew"`
	StripeCustomerID     *string   `json:"stripe_customer_id,omitempty"`
	StripeSubscriptionID *string   `json:"stripe_subscription_id,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// IsActive сообщает, даёт ли подписка доступ на момент now.
func (s *Subscription) IsActive(now time.Time) bool {
	if s.Status != SubscriptionStatusActive && s.Status != SubscriptionStatusTrial {
		return false
	}
	return s.EndDate.After(now)
}

// DaysUntilExpiry число полных суток до окончания; 0, если подписка
// заканчивается в ближайшие сутки или уже истекла.
func (s *Subscription) DaysUntilExpiry(now time.Time) int {
	left := s.EndDate.Sub(now)
	if left <= 0 {
		return 0
	}
	return int(left / (24 * time.Hour))
}

// SubscriptionFilter параметры выборки подписок для администратора.
type SubscriptionFilter struct {
	Status string
	Limit  int
	Offset int
}

// SubscriptionInput данные создания и изменения подписки администратором.
type SubscriptionInput struct {
	UserID       *string `json:"userId" validate:"omitempty,uuid"`
	TenantID     *string `json:"tenantId" validate:"omitempty,uuid"`
	Plan         string  `json:"plan" validate:"required"`
	Status       string  `json:"status" validate:"omitempty,oneof=trial active expired cancelled"`
	BillingCycle string  `json:"billingCycle" validate:"required,oneof=monthly yearly"`
	StartDate    string  `json:"startDate" validate:"omitempty"` // формат 2006-01-02
	AutoRenew    bool    `json:"autoRenew"`
}

// SubscriptionView подписка вместе с вычисляемыми полями и возможностями плана.
type SubscriptionView struct {
	Subscription    *Subscription  `json:"subscription"`
	IsActive        bool           `json:"isActive"`
	DaysUntilExpiry int            `json:"daysUntilExpiry"`
	Features        []string       `json:"features"`
	Limits          map[string]int `json:"limits"`
}

// ExpiringSubscription подписка, найденная планировщиком, с контактом владельца.
type ExpiringSubscription struct {
	Subscription *Subscription
	OwnerID      string // пользователь, которому адресуются уведомления
	OwnerEmail   string
	OwnerName    string
}
