// Package errs содержит доменные ошибки бизнес-логики и их коды для API.
package errs

import "errors"

// Коды ошибок ответа API.
const (
	CodeInvalidBody          = "INVALID_BODY"
	CodeValidationFailed     = "VALIDATION_FAILED"
	CodeDuplicateEmail       = "DUPLICATE_EMAIL"
	CodeUnauthorized         = "UNAUTHORIZED"
	CodeForbidden            = "FORBIDDEN"
	CodeNotFound             = "NOT_FOUND"
	CodeSchoolPending        = "SCHOOL_PENDING_APPROVAL"
	CodeAccountDisabled      = "ACCOUNT_DISABLED"
	CodeAlreadyProcessed     = "ALREADY_PROCESSED"
	CodePendingRequestExists = "PENDING_REQUEST_EXISTS"
	CodeInvalidLinkCode      = "INVALID_LINK_CODE"
	CodePlanLimitReached     = "PLAN_LIMIT_REACHED"
	CodeSubscriptionInactive = "SUBSCRIPTION_INACTIVE"
	CodeIntentExpired        = "INTENT_EXPIRED"
	CodeUnknownPlan          = "UNKNOWN_PLAN"
	CodeInternal             = "INTERNAL"
)

var (
	ErrDuplicateEmail       = errors.New("email already registered")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrSchoolPending        = errors.New("school is pending approval")
	ErrAccountDisabled      = errors.New("account disabled")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrForbidden            = errors.New("forbidden")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyProcessed     = errors.New("already processed")
	ErrPendingRequestExists = errors.New("pending renewal request already exists")
	ErrInvalidLinkCode      = errors.New("invalid link code")
	ErrPlanLimitReached     = errors.New("plan limit reached")
	ErrSubscriptionInactive = errors.New("subscription inactive")
	ErrIntentExpired        = errors.New("registration intent expired")
	ErrUnknownPlan          = errors.New("unknown plan")
	ErrInvalidInput         = errors.New("invalid input")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrDuplicateEmail, CodeDuplicateEmail},
	{ErrInvalidCredentials, CodeUnauthorized},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrSchoolPending, CodeSchoolPending},
	{ErrAccountDisabled, CodeAccountDisabled},
	{ErrForbidden, CodeForbidden},
	{ErrNotFound, CodeNotFound},
	{ErrAlreadyProcessed, CodeAlreadyProcessed},
	{ErrPendingRequestExists, CodePendingRequestExists},
	{ErrInvalidLinkCode, CodeInvalidLinkCode},
	{ErrPlanLimitReached, CodePlanLimitReached},
	{ErrSubscriptionInactive, CodeSubscriptionInactive},
	{ErrIntentExpired, CodeIntentExpired},
	{ErrUnknownPlan, CodeUnknownPlan},
	{ErrInvalidInput, CodeValidationFailed},
}

// Code возвращает код API для ошибки; неизвестные ошибки дают INTERNAL.
func Code(err error) string {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return CodeInternal
}

// Sentinel возвращает доменную ошибку из цепочки err или nil.
func Sentinel(err error) error {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.err
		}
	}
	return nil
}

// FromCode восстанавливает доменную ошибку по коду, пришедшему из другого сервиса.
// Для неизвестного кода возвращает nil.
func FromCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
