// Package response содержит вспомогательные типы и функции для формирования
// унифицированных JSON‑ответов HTTP‑обработчиков: успешных ответов, ошибок
// с кодом API и сообщений валидации.
package response

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

const (
	// StatusOK значение статуса для успешного ответа.
	StatusOK = "OK"
	// StatusError значение статуса для ответа с ошибкой.
	StatusError = "Error"
)

// OKResponse описывает успешный JSON‑ответ сервера.
type OKResponse struct {
	Status string `json:"status" example:"OK"`
	Data   any    `json:"data,omitempty"`
}

// ErrorResponse описывает JSON‑ответ с ошибкой.
// Поле Code содержит машиночитаемый код ошибки API.
type ErrorResponse struct {
	Status string `json:"status" example:"Error"`
	Error  string `json:"error" example:"invalid request body"`
	Code   string `json:"code,omitempty" example:"INVALID_BODY"`
}

// OKWithData возвращает успешный Response с переданными данными.
func OKWithData(data any) OKResponse {
	return OKResponse{
		Status: StatusOK,
		Data:   data,
	}
}

// Error возвращает Response с ошибкой и переданным сообщением.
func Error(msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
	}
}

// ErrorCode возвращает Response с ошибкой, сообщением и кодом API.
func ErrorCode(code, msg string) ErrorResponse {
	return ErrorResponse{
		Status: StatusError,
		Error:  msg,
		Code:   code,
	}
}

// ValidationError формирует Response на основе ошибок валидации.
// Каждое нарушение формируется в человеко‑читаемый текст, объединённый через запятую.
func ValidationError(verrs validator.ValidationErrors) ErrorResponse {
	var msgs []string

	for _, err := range verrs {
		switch err.ActualTag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "email":
			msgs = append(msgs, fmt.Sprintf("field %s must be a valid email", err.Field()))
		case "min":
			msgs = append(msgs, fmt.Sprintf("field %s must be at least %s characters", err.Field(), err.Param()))
		case "max":
			msgs = append(msgs, fmt.Sprintf("field %s must be at most %s characters", err.Field(), err.Param()))
		case "len":
			msgs = append(msgs, fmt.Sprintf("field %s must be exactly %s characters", err.Field(), err.Param()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("field %s must be one of [%s]", err.Field(), err.Param()))
		case "uuid":
			msgs = append(msgs, fmt.Sprintf("field %s can contain only uuid", err.Field()))
		default:
			msgs = append(msgs, fmt.Sprintf("field %s is not a valid", err.Field()))
		}
	}
	return ErrorCode(errs.CodeValidationFailed, strings.Join(msgs, ", "))
}

// HTTPStatus сопоставляет код API со статусом HTTP.
func HTTPStatus(code string) int {
	switch code {
	case errs.CodeInvalidBody, errs.CodeDuplicateEmail, errs.CodeInvalidLinkCode, errs.CodeUnknownPlan:
		return http.StatusBadRequest
	case errs.CodeValidationFailed:
		return http.StatusUnprocessableEntity
	case errs.CodeUnauthorized:
		return http.StatusUnauthorized
	case errs.CodeForbidden, errs.CodeSchoolPending, errs.CodeAccountDisabled,
		errs.CodePlanLimitReached, errs.CodeSubscriptionInactive:
		return http.StatusForbidden
	case errs.CodeNotFound:
		return http.StatusNotFound
	case errs.CodeAlreadyProcessed, errs.CodePendingRequestExists:
		return http.StatusConflict
	case errs.CodeIntentExpired:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// Fail пишет ответ с ошибкой бизнес-логики: статус и код выводятся из err.
// Текст внутренних ошибок наружу не отдаётся.
func Fail(w http.ResponseWriter, r *http.Request, err error) {
	code := errs.Code(err)
	msg := "internal error"
	if sentinel := errs.Sentinel(err); sentinel != nil {
		msg = publicMessage(err, sentinel)
	}
	w.WriteHeader(HTTPStatus(code))
	render.JSON(w, r, ErrorCode(code, msg))
}

// publicMessage ищет в цепочке err самое внешнее сообщение, начинающееся
// с текста доменной ошибки: так отбрасываются префиксы операций, но
// сохраняются уточнения вида "invalid input: startDate must be YYYY-MM-DD".
func publicMessage(err, sentinel error) string {
	prefix := sentinel.Error()
	for e := err; e != nil; e = errors.Unwrap(e) {
		if strings.HasPrefix(e.Error(), prefix) {
			return e.Error()
		}
	}
	return prefix
}

// Created пишет успешный ответ со статусом 201.
func Created(w http.ResponseWriter, r *http.Request, data any) {
	w.WriteHeader(http.StatusCreated)
	render.JSON(w, r, OKWithData(data))
}

// OK пишет успешный ответ со статусом 200.
func OK(w http.ResponseWriter, r *http.Request, data any) {
	render.JSON(w, r, OKWithData(data))
}
