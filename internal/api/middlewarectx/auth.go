// Package middlewarectx содержит HTTP middleware API: проверку JWT через
// gRPC-сервис авторизации, проверку роли и подписки, ограничение частоты запросов.
//
// JWTMiddleware кладёт в контекст запроса идентичность пользователя,
// которую обработчики получают через IdentityFrom.
package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// Key тип для ключей контекста HTTP-запроса.
type Key string

// IdentityKey ключ идентичности пользователя в контексте.
const IdentityKey Key = "identity"

// TokenValidator проверяет токен доступа.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*models.Identity, error)
}

// WithIdentity возвращает контекст с идентичностью пользователя.
func WithIdentity(ctx context.Context, id models.Identity) context.Context {
	return context.WithValue(ctx, IdentityKey, id)
}

// IdentityFrom достаёт идентичность пользователя из контекста.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(IdentityKey).(models.Identity)
	return id, ok && id.UserID != ""
}

// JWTMiddleware проверяет заголовок Authorization: Bearer <token>.
// Невалидный или отсутствующий токен даёт 401 UNAUTHORIZED.
func JWTMiddleware(authClient TokenValidator, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.JWTMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			authHeader := r.Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				log.Error("missing or invalid authorization header")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorCode(errs.CodeUnauthorized, "missing or invalid authorization header"))
				return
			}
			tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

			id, err := authClient.ValidateToken(r.Context(), tokenStr)
			if err != nil {
				log.Error("invalid or expired token", sl.Err(err))
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorCode(errs.CodeUnauthorized, "invalid or expired token"))
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), *id)))
		})
	}
}

// RequireRole пропускает только пользователей с одной из ролей roles, иначе 403 FORBIDDEN.
func RequireRole(log *slog.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				log.Error("identity missing in context")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorCode(errs.CodeUnauthorized, "unauthorized"))
				return
			}
			for _, role := range roles {
				if id.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			log.Warn("role not allowed",
				slog.String("request_id", middleware.GetReqID(r.Context())),
				slog.String("role", id.Role),
				slog.String("path", r.URL.Path),
			)
			w.WriteHeader(http.StatusForbidden)
			render.JSON(w, r, response.ErrorCode(errs.CodeForbidden, "forbidden"))
		})
	}
}

// RequireIdentity достаёт идентичность из контекста, а при её отсутствии
// пишет ответ 401 и возвращает ok=false.
func RequireIdentity(w http.ResponseWriter, r *http.Request, log *slog.Logger) (models.Identity, bool) {
	id, ok := IdentityFrom(r.Context())
	if !ok {
		log.Error("identity not found in context")
		w.WriteHeader(http.StatusUnauthorized)
		render.JSON(w, r, response.ErrorCode(errs.CodeUnauthorized, "unauthorized"))
	}
	return id, ok
}
