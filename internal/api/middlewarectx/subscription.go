package middlewarectx

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/magabrotheeeer/schoolhub/internal/api/response"
	"github.com/magabrotheeeer/schoolhub/internal/lib/sl"
	"github.com/magabrotheeeer/schoolhub/internal/models"
	"github.com/magabrotheeeer/schoolhub/internal/services/errs"
)

// SubscriptionChecker проверяет наличие действующей подписки у владельца.
type SubscriptionChecker interface {
	RequireActive(ctx context.Context, id models.Identity) (*models.Subscription, error)
}

// SubscriptionStatusMiddleware пропускает запрос только при действующей подписке
// пользователя или его школы. Иначе 403 SUBSCRIPTION_INACTIVE.
func SubscriptionStatusMiddleware(log *slog.Logger, subs SubscriptionChecker) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const op = "middlewarectx.SubscriptionStatusMiddleware"

			log := log.With(
				slog.String("op", op),
				slog.String("request_id", middleware.GetReqID(r.Context())),
			)

			id, ok := IdentityFrom(r.Context())
			if !ok {
				log.Error("user identification missing")
				w.WriteHeader(http.StatusUnauthorized)
				render.JSON(w, r, response.ErrorCode(errs.CodeUnauthorized, "user identification missing"))
				return
			}

			if _, err := subs.RequireActive(r.Context(), id); err != nil {
				if errs.Code(err) == errs.CodeInternal {
					log.Error("failed to check subscription", sl.Err(err))
				} else {
					log.Info("subscription inactive, access denied", slog.String("user_id", id.UserID))
				}
				response.Fail(w, r, err)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
