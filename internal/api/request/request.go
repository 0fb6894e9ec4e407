// Package request содержит общий разбор тела и параметров HTTP-запросов.
package request

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"
	"github.com/google/uuid"

	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// Параметры постраничной выдачи.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

var validate = validator.New()

// Decode читает JSON из тела запроса в dst и проверяет его валидатором.
// Пустое тело равносильно пустому объекту. При ошибке пишет ответ (400 или 422)
// и возвращает false.
func Decode(w http.ResponseWriter, r *http.Request, log *slog.Logger, dst any) bool {
	if err := render.DecodeJSON(r.Body, dst); err != nil && !errors.Is(err, io.EOF) {
		log.Error("failed to decode request body", sl.Err(err))
		w.WriteHeader(http.StatusBadRequest)
		render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid request body"))
		return false
	}

	if err := validate.Struct(dst); err != nil {
		log.Error("validation failed", sl.Err(err))
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid request body"))
			return false
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		render.JSON(w, r, response.ValidationError(verrs))
		return false
	}
	return true
}

// Page читает limit и offset из строки запроса. Отсутствующий limit
// заменяется DefaultLimit, превышающий MaxLimit обрезается.
// При некорректных значениях пишет ответ 400 и возвращает ok=false.
func Page(w http.ResponseWriter, r *http.Request, log *slog.Logger) (limit, offset int, ok bool) {
	limit, offset = DefaultLimit, 0
	q := r.URL.Query()

	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			log.Error("invalid limit", slog.String("limit", v))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid limit"))
			return 0, 0, false
		}
		limit = min(n, MaxLimit)
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			log.Error("invalid offset", slog.String("offset", v))
			w.WriteHeader(http.StatusBadRequest)
			render.JSON(w, r, response.ErrorCode(errs.CodeInvalidBody, "invalid offset"))
			return 0, 0, false
		}
		offset = n
	}
	return limit, offset, true
}

// PathID возвращает параметр пути name, если это корректный UUID.
// Иначе пишет ответ 404 и возвращает ok=false.
func PathID(w http.ResponseWriter, r *http.Request, log *slog.Logger, name string) (string, bool) {
	v := chi.URLParam(r, name)
	id, err := uuid.Parse(v)
	if err != nil {
		log.Error("invalid path id", slog.String(name, v))
		response.Fail(w, r, errs.ErrNotFound)
		return "", false
	}
	return id.String(), true
}
